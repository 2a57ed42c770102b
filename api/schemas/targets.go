package schemas

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a Target.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s is an end state of the lifecycle.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Claimable reports whether a job in state s may be picked up by an executor.
func (s JobStatus) Claimable() bool {
	return s == StatusPending || s == StatusQueued
}

// Target is one form-submission job: a URL plus the company it belongs to.
type Target struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	URL         string          `json:"url"`
	CompanyName string          `json:"company_name"`
	PackageName string          `json:"package_name"`
	TotalCount  int             `json:"total_count"`
	Status      JobStatus       `json:"status"`
	ProfileID   string          `json:"profile_id,omitempty"`
	ResultLog   json.RawMessage `json:"result_log,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ClaimFilter narrows which jobs an executor is willing to claim.
type ClaimFilter struct {
	OwnerID   string
	BatchName string
	// Statuses lists the eligible prior states. Empty means pending and queued.
	Statuses []JobStatus
}

// EligibleStatuses returns the statuses the filter accepts, applying the default.
func (f ClaimFilter) EligibleStatuses() []JobStatus {
	if len(f.Statuses) == 0 {
		return []JobStatus{StatusPending, StatusQueued}
	}
	return f.Statuses
}

// Outcome is the terminal result written by Finalize.
type Outcome struct {
	Status    JobStatus
	ProfileID string
	ResultLog ResultLog
	At        time.Time
}

// ResultLog is the structured payload stored in a job's result_log column.
type ResultLog struct {
	Message    string `json:"message"`
	Attempts   int    `json:"attempts"`
	Shape      string `json:"shape,omitempty"`
	LabelMatch bool   `json:"label_match,omitempty"`
	Date       string `json:"date"`
}

// BatchSummary aggregates job counts for one owner/package pair.
type BatchSummary struct {
	OwnerID     string `json:"owner_id"`
	PackageName string `json:"package_name"`
	Total       int    `json:"total"`
	Pending     int    `json:"pending"`
	Queued      int    `json:"queued"`
	Processing  int    `json:"processing"`
	Completed   int    `json:"completed"`
	Errored     int    `json:"errored"`
}

// Add counts n jobs in status st. Unknown statuses only count toward the total.
func (b *BatchSummary) Add(st JobStatus, n int) {
	b.Total += n
	switch st {
	case StatusPending:
		b.Pending += n
	case StatusQueued:
		b.Queued += n
	case StatusProcessing:
		b.Processing += n
	case StatusCompleted:
		b.Completed += n
	case StatusError:
		b.Errored += n
	}
}

// Outstanding is the number of jobs not yet in a terminal state.
func (b BatchSummary) Outstanding() int {
	return b.Pending + b.Queued + b.Processing
}

// Done reports whether every job in the batch reached a terminal state.
func (b BatchSummary) Done() bool {
	return b.Total > 0 && b.Outstanding() == 0
}
