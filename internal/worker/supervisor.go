package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
)

const (
	// SuccessMessage is stored in result_log for completed jobs.
	SuccessMessage = "Sent by Local Worker"

	defaultMaxRetries      = 3
	defaultFinalizeTimeout = 15 * time.Second
	sessionCloseTimeout    = 15 * time.Second
)

// Result is the outcome of supervising one job.
type Result struct {
	Status     schemas.JobStatus
	Message    string
	Attempts   []schemas.ExecutionAttempt
	Submission schemas.SubmissionResult
}

// Supervisor runs a claimed job through a bounded number of attempts, each in its own
// browser session, and persists the terminal outcome.
type Supervisor struct {
	store           schemas.JobStore
	sessions        schemas.SessionFactory
	attempter       Attempter
	maxRetries      int
	finalizeTimeout time.Duration
	logger          *zap.Logger
	now             func() time.Time
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock replaces the time source used for attempt timing and result dates.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// NewSupervisor creates a Supervisor. All collaborators are required.
func NewSupervisor(
	cfg config.Interface,
	logger *zap.Logger,
	store schemas.JobStore,
	sessions schemas.SessionFactory,
	attempter Attempter,
	opts ...Option,
) (*Supervisor, error) {
	if store == nil {
		return nil, errors.New("job store cannot be nil")
	}
	if sessions == nil {
		return nil, errors.New("session factory cannot be nil")
	}
	if attempter == nil {
		return nil, errors.New("attempter cannot be nil")
	}

	s := &Supervisor{
		store:           store,
		sessions:        sessions,
		attempter:       attempter,
		maxRetries:      cfg.Engine().MaxRetries,
		finalizeTimeout: cfg.Engine().FinalizeTimeout,
		logger:          logger.Named("supervisor"),
		now:             time.Now,
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.finalizeTimeout <= 0 {
		s.finalizeTimeout = defaultFinalizeTimeout
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes job with a snapshot of profile and finalizes it as completed or error.
// The returned error is non-nil only when the terminal status could not be persisted,
// in which case the job stays processing.
func (s *Supervisor) Run(ctx context.Context, job *schemas.Target, profile schemas.SenderProfile) (Result, error) {
	snapshot := profile.Snapshot()
	logger := s.logger.With(observability.JobFields(job)...)

	var (
		res     Result
		lastErr error
	)
	for ordinal := 1; ordinal <= s.maxRetries; ordinal++ {
		if err := ctx.Err(); err != nil {
			lastErr = fmt.Errorf("cancelled before attempt %d: %w", ordinal, err)
			break
		}

		rec := s.runAttempt(ctx, job, snapshot, ordinal)
		res.Attempts = append(res.Attempts, rec)
		res.Submission = rec.Result
		if rec.Success {
			lastErr = nil
			break
		}

		lastErr = errors.New(rec.Error)
		logger.Warn("Attempt failed.",
			zap.Int("attempt", ordinal),
			zap.Int("max_retries", s.maxRetries),
			zap.String("error", rec.Error),
		)
	}

	if lastErr == nil {
		res.Status = schemas.StatusCompleted
		res.Message = SuccessMessage
	} else {
		res.Status = schemas.StatusError
		res.Message = lastErr.Error()
	}

	if err := s.finalize(ctx, job, snapshot, res); err != nil {
		logger.Error("Failed to persist job outcome; job remains processing.",
			zap.String("status", string(res.Status)),
			zap.Error(err),
		)
		return res, err
	}

	logger.Info("Job finished.",
		zap.String("status", string(res.Status)),
		zap.Int("attempts", len(res.Attempts)),
		zap.String("shape", string(res.Submission.Shape)),
		zap.Bool("label_match", res.Submission.LabelMatch),
	)
	return res, nil
}

func (s *Supervisor) runAttempt(ctx context.Context, job *schemas.Target, profile schemas.SenderProfile, ordinal int) schemas.ExecutionAttempt {
	rec := schemas.ExecutionAttempt{
		ID:        uuid.NewString(),
		Ordinal:   ordinal,
		Profile:   profile,
		StartedAt: s.now(),
	}

	err := s.withSession(ctx, func(sess schemas.Session) error {
		s.logger.Debug("Starting attempt.",
			zap.String("job_id", job.ID),
			zap.Int("attempt", ordinal),
			zap.String("session_id", sess.ID()),
		)
		return s.attempter.Attempt(ctx, sess, job, profile, &rec)
	})

	rec.Duration = s.now().Sub(rec.StartedAt)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.Success = true
	return rec
}

// withSession opens a session, runs fn and always closes the session before
// returning, converting a panic in fn into an error.
func (s *Supervisor) withSession(ctx context.Context, fn func(schemas.Session) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic during attempt.",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("attempt panicked: %v", r)
		}
	}()

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCloseTimeout)
		defer cancel()
		if cerr := sess.Close(closeCtx); cerr != nil {
			s.logger.Warn("Failed to close browser session.", zap.String("session_id", sess.ID()), zap.Error(cerr))
		}
	}()

	return fn(sess)
}

// finalize persists the terminal status on a context that survives caller cancellation.
func (s *Supervisor) finalize(ctx context.Context, job *schemas.Target, profile schemas.SenderProfile, res Result) error {
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.finalizeTimeout)
	defer cancel()

	at := s.now().UTC()
	outcome := schemas.Outcome{
		Status:    res.Status,
		ProfileID: profile.ID,
		At:        at,
		ResultLog: schemas.ResultLog{
			Message:    res.Message,
			Attempts:   len(res.Attempts),
			Shape:      string(res.Submission.Shape),
			LabelMatch: res.Submission.LabelMatch,
			Date:       at.Format(time.RFC3339),
		},
	}
	if err := s.store.Finalize(finalizeCtx, job.ID, outcome); err != nil {
		return fmt.Errorf("finalize job %s as %s: %w", job.ID, res.Status, err)
	}
	return nil
}
