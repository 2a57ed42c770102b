package submit

import "github.com/xkilldash9x/formpilot/api/schemas"

// SelectShape decides the submission protocol from the resolved controls. A confirm
// button takes precedence over a submit button.
func SelectShape(m schemas.FieldSelectorMap) schemas.SubmissionShape {
	switch {
	case m.ConfirmButton != "":
		return schemas.ShapeConfirmThenSubmit
	case m.SubmitButton != "":
		return schemas.ShapeDirectSubmit
	default:
		return schemas.ShapeNone
	}
}
