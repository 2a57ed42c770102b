package resolver

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformedResponse is returned when the model output holds no usable JSON object.
var ErrMalformedResponse = errors.New("malformed resolver response")

// DecodeSelectorMap extracts the selector map from a model reply. Code fences and
// surrounding prose are tolerated, non-string values are treated as absent and
// placeholder strings are normalized away.
func DecodeSelectorMap(reply string) (schemas.FieldSelectorMap, error) {
	var m schemas.FieldSelectorMap

	obj, err := extractObject(reply)
	if err != nil {
		return m, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return m, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}
	m = schemas.FieldSelectorMap{
		CompanyName:          str(schemas.SlotCompanyName),
		LastName:             str(schemas.SlotLastName),
		FirstName:            str(schemas.SlotFirstName),
		PersonName:           str(schemas.SlotPersonName),
		DepartmentName:       str(schemas.SlotDepartmentName),
		PhoneNumber:          str(schemas.SlotPhoneNumber),
		Email:                str(schemas.SlotEmail),
		CompanyURL:           str(schemas.SlotCompanyURL),
		SubjectTitle:         str(schemas.SlotSubjectTitle),
		Body:                 str(schemas.SlotBody),
		AgreementCheckbox:    str(schemas.SlotAgreementCheckbox),
		ConfirmButton:        str(schemas.SlotConfirmButton),
		SubmitButton:         str(schemas.SlotSubmitButton),
		InquiryCategory:      str(schemas.SlotInquiryCategory),
		InquiryCategoryValue: str("inquiry_category_value"),
	}
	m.Normalize()
	return m, nil
}

// extractObject returns the outermost {...} span of s.
func extractObject(s string) (string, error) {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}
	return s[start : end+1], nil
}

// ParseTags splits a comma separated tag reply, accepting full-width commas and
// line breaks, dropping blanks and duplicates.
func ParseTags(reply string) []string {
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == '、' || r == '，' || r == '\n'
	})
	seen := make(map[string]bool, len(fields))
	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		tag := strings.Trim(strings.TrimSpace(f), "#・-*\"'")
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[strings.ToLower(tag)] {
			continue
		}
		seen[strings.ToLower(tag)] = true
		tags = append(tags, tag)
	}
	return tags
}
