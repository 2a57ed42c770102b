package schemas

import (
	"context"
	"strings"
)

// FieldSelectorMap holds the CSS selector found for each semantic form slot.
// An empty string means the slot is not present on the page.
type FieldSelectorMap struct {
	CompanyName       string `json:"company_name"`
	LastName          string `json:"last_name"`
	FirstName         string `json:"first_name"`
	PersonName        string `json:"person_name"`
	DepartmentName    string `json:"department_name"`
	PhoneNumber       string `json:"phone_number"`
	Email             string `json:"email"`
	CompanyURL        string `json:"company_url"`
	SubjectTitle      string `json:"subject_title"`
	Body              string `json:"body"`
	AgreementCheckbox string `json:"agreement_checkbox"`
	ConfirmButton     string `json:"confirm_button"`
	SubmitButton      string `json:"submit_button"`
	InquiryCategory   string `json:"inquiry_category_selector"`

	// InquiryCategoryValue is the option to choose when InquiryCategory is a select element.
	InquiryCategoryValue string `json:"inquiry_category_value"`
}

// Slot names, matching the JSON keys produced by the resolver.
const (
	SlotCompanyName       = "company_name"
	SlotLastName          = "last_name"
	SlotFirstName         = "first_name"
	SlotPersonName        = "person_name"
	SlotDepartmentName    = "department_name"
	SlotPhoneNumber       = "phone_number"
	SlotEmail             = "email"
	SlotCompanyURL        = "company_url"
	SlotSubjectTitle      = "subject_title"
	SlotBody              = "body"
	SlotAgreementCheckbox = "agreement_checkbox"
	SlotConfirmButton     = "confirm_button"
	SlotSubmitButton      = "submit_button"
	SlotInquiryCategory   = "inquiry_category_selector"
)

// absentMarkers are placeholder strings models emit instead of JSON null.
var absentMarkers = map[string]struct{}{
	"null":      {},
	"none":      {},
	"n/a":       {},
	"undefined": {},
	"...":       {},
}

// slots returns pointers to every selector slot keyed by name. The category value is not a selector.
func (m *FieldSelectorMap) slots() map[string]*string {
	return map[string]*string{
		SlotCompanyName:       &m.CompanyName,
		SlotLastName:          &m.LastName,
		SlotFirstName:         &m.FirstName,
		SlotPersonName:        &m.PersonName,
		SlotDepartmentName:    &m.DepartmentName,
		SlotPhoneNumber:       &m.PhoneNumber,
		SlotEmail:             &m.Email,
		SlotCompanyURL:        &m.CompanyURL,
		SlotSubjectTitle:      &m.SubjectTitle,
		SlotBody:              &m.Body,
		SlotAgreementCheckbox: &m.AgreementCheckbox,
		SlotConfirmButton:     &m.ConfirmButton,
		SlotSubmitButton:      &m.SubmitButton,
		SlotInquiryCategory:   &m.InquiryCategory,
	}
}

// Normalize trims every slot and clears placeholder values such as "null".
func (m *FieldSelectorMap) Normalize() {
	for _, p := range m.slots() {
		*p = normalizeSlot(*p)
	}
	m.InquiryCategoryValue = normalizeSlot(m.InquiryCategoryValue)
	if m.InquiryCategory == "" {
		m.InquiryCategoryValue = ""
	}
}

func normalizeSlot(v string) string {
	v = strings.TrimSpace(v)
	if _, ok := absentMarkers[strings.ToLower(v)]; ok {
		return ""
	}
	return v
}

// Present returns the names of the slots that carry a selector.
func (m FieldSelectorMap) Present() []string {
	var names []string
	for name, p := range m.slots() {
		if *p != "" {
			names = append(names, name)
		}
	}
	return names
}

// SelectorChecker reports whether a selector resolves to an element on the current page.
type SelectorChecker interface {
	Exists(ctx context.Context, selector string) (bool, error)
}

// Prune clears every slot whose selector does not exist on the page and returns the names it cleared.
// A checker error is treated as "not present".
func (m *FieldSelectorMap) Prune(ctx context.Context, checker SelectorChecker) []string {
	var removed []string
	for name, p := range m.slots() {
		if *p == "" {
			continue
		}
		ok, err := checker.Exists(ctx, *p)
		if err != nil || !ok {
			removed = append(removed, name)
			*p = ""
		}
	}
	if m.InquiryCategory == "" {
		m.InquiryCategoryValue = ""
	}
	return removed
}

// HasSubmitControl reports whether the map offers any step that can submit the form.
func (m FieldSelectorMap) HasSubmitControl() bool {
	return m.ConfirmButton != "" || m.SubmitButton != ""
}
