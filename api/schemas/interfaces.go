package schemas

import (
	"context"
	"time"
)

// -- Store Interfaces --

// JobStore is the job claim and state machine persistence surface. Every status
// change it performs is a conditional update on the prior status.
//
//go:generate mockery --name JobStore --output ../../internal/mocks --outpkg mocks
type JobStore interface {
	// ClaimNext moves the oldest eligible job to processing and returns it.
	// Returns ErrNoJob when nothing is eligible and ErrLostRace when another
	// executor won the conditional update.
	ClaimNext(ctx context.Context, filter ClaimFilter) (*Target, error)
	// MarkQueued moves the oldest pending job of a batch to queued.
	MarkQueued(ctx context.Context, ownerID, batchName string) (*Target, error)
	// Finalize writes the terminal outcome of a processing job.
	Finalize(ctx context.Context, jobID string, outcome Outcome) error
	// BatchSummary counts the jobs of a batch per status.
	BatchSummary(ctx context.Context, ownerID, batchName string) (BatchSummary, error)
}

// ProfileStore gives read-only access to sender profiles.
type ProfileStore interface {
	// GetProfile returns the profile with the given id, or the owner's most
	// recently updated profile when profileID is empty.
	GetProfile(ctx context.Context, ownerID, profileID string) (*SenderProfile, error)
}

// -- Resolver Interface --

// SelectorResolver turns page markup into a selector map.
type SelectorResolver interface {
	Resolve(ctx context.Context, html string) (FieldSelectorMap, error)
}

// -- Browser Interfaces --

// ElementKind is the coarse type of a DOM element as seen by the action translator.
type ElementKind string

const (
	KindMissing  ElementKind = ""
	KindSelect   ElementKind = "select"
	KindCheckbox ElementKind = "checkbox"
	KindRadio    ElementKind = "radio"
	KindText     ElementKind = "text"
	KindTextarea ElementKind = "textarea"
	KindButton   ElementKind = "button"
	KindOther    ElementKind = "other"
)

// Toggle reports whether the element is checked by clicking rather than filled.
func (k ElementKind) Toggle() bool {
	return k == KindCheckbox || k == KindRadio
}

// Page is the set of interactions the filler and submission engine need from a
// loaded document.
//
//go:generate mockery --name Page --output ../../internal/mocks --outpkg mocks
type Page interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Exists(ctx context.Context, selector string) (bool, error)
	Fill(ctx context.Context, selector, value string) error
	// Check sets a checkbox or radio to checked. Returns ErrNotCheckable for other elements.
	Check(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	SelectOption(ctx context.Context, selector, value string) error
	ElementKind(ctx context.Context, selector string) (ElementKind, error)
	// FindButtonByLabel returns a selector for the first visible button-like element
	// whose label matches pattern. Elements matching exclude are skipped.
	FindButtonByLabel(ctx context.Context, pattern, exclude string) (string, bool, error)
	WaitDOMReady(ctx context.Context) error
	WaitNetworkIdle(ctx context.Context, quiet time.Duration) error
	Sleep(ctx context.Context, d time.Duration) error
}

// Session is one isolated browser context. Close is idempotent.
//
//go:generate mockery --name Session --output ../../internal/mocks --outpkg mocks
type Session interface {
	Page
	ID() string
	Close(ctx context.Context) error
}

// SessionFactory opens a fresh Session for every attempt.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// -- Notification Interface --

// Notifier receives a report once every job of a batch reached a terminal state.
type Notifier interface {
	BatchCompleted(ctx context.Context, report BatchReport) error
}

// -- LLM Client Schemas & Interface --

// GenerationOptions controls sampling for a single request.
type GenerationOptions struct {
	Temperature     float32 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest is a complete prompt for the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient abstracts the language model provider.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}
