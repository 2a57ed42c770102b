package schemas

import "time"

// SubmissionShape names the UI flow the submission engine executed.
type SubmissionShape string

const (
	ShapeNone              SubmissionShape = ""
	ShapeConfirmThenSubmit SubmissionShape = "confirm_then_submit"
	ShapeDirectSubmit      SubmissionShape = "direct_submit"
)

// SubmissionResult describes how the final step of an attempt went.
type SubmissionResult struct {
	Shape SubmissionShape `json:"shape"`

	// FinalControl is the selector that was clicked last.
	FinalControl string `json:"final_control"`

	// LabelMatch is true when the final control was found by the button-label heuristic.
	LabelMatch bool `json:"label_match"`

	// SecondClick is true when the direct shape found and clicked a follow-up confirmation.
	SecondClick bool `json:"second_click"`
}

// ExecutionAttempt is one navigate, fill and submit run for a job. It is never persisted directly.
type ExecutionAttempt struct {
	ID        string           `json:"id"`
	Ordinal   int              `json:"ordinal"`
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	Selectors FieldSelectorMap `json:"selectors"`
	Profile   SenderProfile    `json:"profile"`
	Result    SubmissionResult `json:"result"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
}

// BatchReport is sent to notifiers once a batch has no outstanding jobs.
type BatchReport struct {
	Summary     BatchSummary `json:"summary"`
	ProfileName string       `json:"profile_name"`
	MessageBody string       `json:"message_body"`
	FinishedAt  time.Time    `json:"finished_at"`
}
