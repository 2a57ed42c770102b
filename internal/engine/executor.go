// Package engine runs the claim loop: claim a job, snapshot the sender profile,
// supervise the job and report completed batches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/worker"
)

// Runner supervises a single claimed job.
type Runner interface {
	Run(ctx context.Context, job *schemas.Target, profile schemas.SenderProfile) (worker.Result, error)
}

type batchKey struct {
	owner string
	name  string
}

// Executor runs engine.concurrency claim loops against the job store.
type Executor struct {
	cfg      config.EngineConfig
	jobs     schemas.JobStore
	profiles schemas.ProfileStore
	runner   Runner
	notifier schemas.Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	notified map[batchKey]bool
	stats    Stats
}

// Stats counts what an executor did during one Run.
type Stats struct {
	Claimed   int
	Completed int
	Errored   int
	LostRaces int
}

// New creates an Executor. notifier may be nil.
func New(
	cfg config.Interface,
	logger *zap.Logger,
	jobs schemas.JobStore,
	profiles schemas.ProfileStore,
	runner Runner,
	notifier schemas.Notifier,
) (*Executor, error) {
	ec := cfg.Engine()
	if ec.OwnerID == "" {
		return nil, errors.New("engine.owner_id is required")
	}
	if jobs == nil || profiles == nil {
		return nil, errors.New("job and profile stores cannot be nil")
	}
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if ec.Concurrency <= 0 {
		ec.Concurrency = 1
	}
	if ec.PollInterval <= 0 {
		ec.PollInterval = 5 * time.Second
	}
	if ec.FinalizeTimeout <= 0 {
		ec.FinalizeTimeout = 15 * time.Second
	}

	return &Executor{
		cfg:      ec,
		jobs:     jobs,
		profiles: profiles,
		runner:   runner,
		notifier: notifier,
		logger:   logger.Named("executor").With(zap.String("owner_id", ec.OwnerID)),
		now:      time.Now,
		notified: make(map[batchKey]bool),
	}, nil
}

// Filter returns the claim filter the executor uses.
func (e *Executor) Filter() schemas.ClaimFilter {
	f := schemas.ClaimFilter{OwnerID: e.cfg.OwnerID, BatchName: e.cfg.BatchName}
	if e.cfg.QueuedOnly {
		f.Statuses = []schemas.JobStatus{schemas.StatusQueued}
	}
	return f
}

// Run starts the claim loops and blocks until ctx is cancelled, or until the queue is
// empty when engine.exit_when_idle is set.
func (e *Executor) Run(ctx context.Context) (Stats, error) {
	e.logger.Info("Executor starting.",
		zap.Int("concurrency", e.cfg.Concurrency),
		zap.String("batch", e.cfg.BatchName),
		zap.Bool("queued_only", e.cfg.QueuedOnly),
		zap.Bool("exit_when_idle", e.cfg.ExitWhenIdle),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= e.cfg.Concurrency; i++ {
		loopID := i
		g.Go(func() error {
			return e.loop(gctx, loopID)
		})
	}
	err := g.Wait()

	e.mu.Lock()
	stats := e.stats
	e.mu.Unlock()

	e.logger.Info("Executor stopped.",
		zap.Int("claimed", stats.Claimed),
		zap.Int("completed", stats.Completed),
		zap.Int("errored", stats.Errored),
	)
	return stats, err
}

func (e *Executor) loop(ctx context.Context, loopID int) error {
	logger := e.logger.With(zap.Int("loop_id", loopID))
	filter := e.Filter()

	for {
		if ctx.Err() != nil {
			return nil
		}

		job, err := e.jobs.ClaimNext(ctx, filter)
		switch {
		case err == nil:
			e.process(ctx, job, logger)
			continue
		case errors.Is(err, schemas.ErrLostRace):
			e.count(func(s *Stats) { s.LostRaces++ })
			continue
		case errors.Is(err, schemas.ErrNoJob):
			if e.cfg.ExitWhenIdle {
				logger.Debug("No eligible jobs; exiting.")
				return nil
			}
		default:
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("Failed to claim job; retrying after poll interval.", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

// process runs one claimed job to a terminal state.
func (e *Executor) process(ctx context.Context, job *schemas.Target, logger *zap.Logger) {
	logger = logger.With(observability.JobFields(job)...)
	logger.Info("Claimed job.", zap.String("company", job.CompanyName))
	e.count(func(s *Stats) { s.Claimed++ })

	profileID := e.cfg.ProfileID
	if profileID == "" {
		profileID = job.ProfileID
	}
	profile, err := e.profiles.GetProfile(ctx, job.OwnerID, profileID)
	if err != nil {
		logger.Error("Sender profile unavailable; failing job.", zap.Error(err))
		e.failWithoutAttempt(ctx, job, fmt.Errorf("sender profile unavailable: %w", err), logger)
		e.count(func(s *Stats) { s.Errored++ })
		e.maybeNotify(ctx, job, schemas.SenderProfile{}, logger)
		return
	}
	snapshot := profile.Snapshot()

	res, err := e.runner.Run(ctx, job, snapshot)
	if err != nil {
		// The supervisor already logged it; the job stays processing.
		return
	}
	e.count(func(s *Stats) {
		if res.Status == schemas.StatusCompleted {
			s.Completed++
		} else {
			s.Errored++
		}
	})
	e.maybeNotify(ctx, job, snapshot, logger)
}

// failWithoutAttempt finalizes a job that could not be started.
func (e *Executor) failWithoutAttempt(ctx context.Context, job *schemas.Target, cause error, logger *zap.Logger) {
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.FinalizeTimeout)
	defer cancel()

	at := e.now().UTC()
	err := e.jobs.Finalize(finalizeCtx, job.ID, schemas.Outcome{
		Status: schemas.StatusError,
		At:     at,
		ResultLog: schemas.ResultLog{
			Message: cause.Error(),
			Date:    at.Format(time.RFC3339),
		},
	})
	if err != nil {
		logger.Error("Failed to persist job outcome; job remains processing.", zap.Error(err))
	}
}

// maybeNotify reports the job's batch once per run after its last job finished.
func (e *Executor) maybeNotify(ctx context.Context, job *schemas.Target, profile schemas.SenderProfile, logger *zap.Logger) {
	if e.notifier == nil {
		return
	}
	key := batchKey{owner: job.OwnerID, name: job.PackageName}

	e.mu.Lock()
	done := e.notified[key]
	e.mu.Unlock()
	if done {
		return
	}

	summaryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.FinalizeTimeout)
	defer cancel()
	summary, err := e.jobs.BatchSummary(summaryCtx, job.OwnerID, job.PackageName)
	if err != nil {
		logger.Warn("Could not summarize batch.", zap.Error(err))
		return
	}
	if !summary.Done() {
		return
	}

	e.mu.Lock()
	if e.notified[key] {
		e.mu.Unlock()
		return
	}
	e.notified[key] = true
	e.mu.Unlock()

	report := schemas.BatchReport{
		Summary:     summary,
		ProfileName: profile.DisplayName,
		MessageBody: profile.MessageBody,
		FinishedAt:  e.now().UTC(),
	}
	if err := e.notifier.BatchCompleted(summaryCtx, report); err != nil {
		logger.Warn("Batch completion notification failed.", zap.Error(err))
	}
}

func (e *Executor) count(fn func(*Stats)) {
	e.mu.Lock()
	fn(&e.stats)
	e.mu.Unlock()
}
