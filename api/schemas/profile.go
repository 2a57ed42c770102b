package schemas

// SenderProfile is the operator's identity and message template.
type SenderProfile struct {
	ID           string   `json:"id"`
	OwnerID      string   `json:"owner_id"`
	DisplayName  string   `json:"display_name"`
	CompanyName  string   `json:"sender_company"`
	Department   string   `json:"sender_department"`
	LastName     string   `json:"sender_last_name"`
	FirstName    string   `json:"sender_first_name"`
	PhoneNumber  string   `json:"phone_number"`
	Email        string   `json:"sender_email"`
	WebsiteURL   string   `json:"sender_url"`
	SubjectTitle string   `json:"subject_title"`
	MessageBody  string   `json:"message_body"`
	IndustryTags []string `json:"industry_tags,omitempty"`
}

// Snapshot returns a deep copy so later edits to the source cannot reach an in-flight job.
func (p SenderProfile) Snapshot() SenderProfile {
	cp := p
	if p.IndustryTags != nil {
		cp.IndustryTags = append([]string(nil), p.IndustryTags...)
	}
	return cp
}
