package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// Dispatcher releases pending jobs to executors running in queued-only mode.
type Dispatcher struct {
	jobs   schemas.JobStore
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher on jobs.
func NewDispatcher(jobs schemas.JobStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{jobs: jobs, logger: logger.Named("dispatcher")}
}

// Dispatch moves up to limit pending jobs of the batch to queued, oldest first.
// A limit of zero or less dispatches the whole batch.
func (d *Dispatcher) Dispatch(ctx context.Context, ownerID, batchName string, limit int) (int, error) {
	if ownerID == "" {
		return 0, errors.New("owner id is required")
	}

	queued := 0
	for limit <= 0 || queued < limit {
		if err := ctx.Err(); err != nil {
			return queued, err
		}
		job, err := d.jobs.MarkQueued(ctx, ownerID, batchName)
		switch {
		case err == nil:
			queued++
			d.logger.Debug("Job queued.", zap.String("job_id", job.ID), zap.String("url", job.URL))
		case errors.Is(err, schemas.ErrLostRace):
			continue
		case errors.Is(err, schemas.ErrNoJob):
			return queued, nil
		default:
			return queued, fmt.Errorf("queueing job: %w", err)
		}
	}
	return queued, nil
}
