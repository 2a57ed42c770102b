// Package filler translates a resolved selector map and a sender profile into an
// ordered list of page interactions, and applies them.
package filler

import (
	"strings"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// IndividualCompanyName is entered when neither the profile nor the target names a company.
const IndividualCompanyName = "個人"

// Op is a single kind of page interaction.
type Op string

const (
	OpFill   Op = "fill"
	OpCheck  Op = "check"
	OpClick  Op = "click"
	OpSelect Op = "select"
)

// Action is one planned interaction on the element addressed by Selector.
type Action struct {
	Op       Op     `json:"op"`
	Slot     string `json:"slot"`
	Selector string `json:"selector"`
	Value    string `json:"value,omitempty"`
}

// BuildPlan orders the interactions for a form: company, name, department, phone,
// email, company URL, subject, body, inquiry category and agreement. Slots without a
// selector are skipped.
func BuildPlan(m schemas.FieldSelectorMap, p schemas.SenderProfile, t schemas.Target) []Action {
	var plan []Action
	fill := func(slot, selector, value string) {
		plan = append(plan, Action{Op: OpFill, Slot: slot, Selector: selector, Value: value})
	}
	optional := func(slot, selector, value string) {
		if selector != "" && value != "" {
			fill(slot, selector, value)
		}
	}

	if m.CompanyName != "" {
		fill(schemas.SlotCompanyName, m.CompanyName, companyValue(p, t))
	}

	// Split name fields win over a combined one; never both.
	switch {
	case m.LastName != "" || m.FirstName != "":
		if m.LastName != "" {
			fill(schemas.SlotLastName, m.LastName, p.LastName)
		}
		if m.FirstName != "" {
			fill(schemas.SlotFirstName, m.FirstName, p.FirstName)
		}
	case m.PersonName != "":
		fill(schemas.SlotPersonName, m.PersonName, strings.TrimSpace(p.LastName+" "+p.FirstName))
	}

	optional(schemas.SlotDepartmentName, m.DepartmentName, p.Department)
	optional(schemas.SlotPhoneNumber, m.PhoneNumber, p.PhoneNumber)
	optional(schemas.SlotEmail, m.Email, p.Email)
	optional(schemas.SlotCompanyURL, m.CompanyURL, p.WebsiteURL)
	optional(schemas.SlotSubjectTitle, m.SubjectTitle, p.SubjectTitle)
	optional(schemas.SlotBody, m.Body, p.MessageBody)

	if m.InquiryCategory != "" {
		op := OpClick
		if m.InquiryCategoryValue != "" {
			op = OpSelect
		}
		plan = append(plan, Action{Op: op, Slot: schemas.SlotInquiryCategory, Selector: m.InquiryCategory, Value: m.InquiryCategoryValue})
	}

	if m.AgreementCheckbox != "" {
		plan = append(plan, Action{Op: OpCheck, Slot: schemas.SlotAgreementCheckbox, Selector: m.AgreementCheckbox})
	}
	return plan
}

func companyValue(p schemas.SenderProfile, t schemas.Target) string {
	if v := strings.TrimSpace(p.CompanyName); v != "" {
		return v
	}
	if v := strings.TrimSpace(t.CompanyName); v != "" {
		return v
	}
	return IndividualCompanyName
}
