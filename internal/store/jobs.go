package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const selectCandidateSQL = `
	SELECT id, owner_id, url, COALESCE(company_name, ''), COALESCE(package_name, ''),
	       COALESCE(total_count, 0), status, COALESCE(profile_id::text, ''), created_at
	FROM targets
	WHERE owner_id = $1
	  AND status = ANY($2::text[])
	  AND ($3::text = '' OR package_name = $3)
	ORDER BY created_at ASC
	LIMIT 1`

// transitionSQL is the only statement that moves a job between non-terminal states.
const transitionSQL = `
	UPDATE targets
	SET status = $3
	WHERE id = $1 AND status = $2`

const finalizeSQL = `
	UPDATE targets
	SET status = $2,
	    result_log = $3,
	    completed_at = $4,
	    profile_id = COALESCE(NULLIF($5::text, ''), profile_id)
	WHERE id = $1 AND status = 'processing'`

const selectStatusSQL = `SELECT status FROM targets WHERE id = $1`

const batchSummarySQL = `
	SELECT status, COUNT(*)
	FROM targets
	WHERE owner_id = $1 AND package_name = $2
	GROUP BY status`

// ClaimNext selects the oldest eligible job and moves it to processing with a
// conditional update. Losing the update to another executor yields ErrLostRace.
func (s *Store) ClaimNext(ctx context.Context, filter schemas.ClaimFilter) (*schemas.Target, error) {
	job, err := s.transitionOldest(ctx, filter.OwnerID, filter.BatchName, filter.EligibleStatuses(), schemas.StatusProcessing)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Claimed job.", zap.String("job_id", job.ID), zap.String("url", job.URL))
	return job, nil
}

// MarkQueued moves the oldest pending job of a batch to queued.
func (s *Store) MarkQueued(ctx context.Context, ownerID, batchName string) (*schemas.Target, error) {
	return s.transitionOldest(ctx, ownerID, batchName, []schemas.JobStatus{schemas.StatusPending}, schemas.StatusQueued)
}

func (s *Store) transitionOldest(ctx context.Context, ownerID, batchName string, from []schemas.JobStatus, to schemas.JobStatus) (*schemas.Target, error) {
	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}

	var (
		job    schemas.Target
		status string
	)
	err := s.pool.QueryRow(ctx, selectCandidateSQL, ownerID, statuses, batchName).Scan(
		&job.ID, &job.OwnerID, &job.URL, &job.CompanyName, &job.PackageName,
		&job.TotalCount, &status, &job.ProfileID, &job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, schemas.ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select candidate job: %w", err)
	}
	job.Status = schemas.JobStatus(status)

	tag, err := s.pool.Exec(ctx, transitionSQL, job.ID, status, string(to))
	if err != nil {
		return nil, fmt.Errorf("failed to move job %s to %s: %w", job.ID, to, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, schemas.ErrLostRace
	}
	job.Status = to
	return &job, nil
}

// Finalize writes the terminal status, result log and, for completed jobs, the
// completion time in one conditional update from processing. The profile id is
// written by the same statement.
func (s *Store) Finalize(ctx context.Context, jobID string, outcome schemas.Outcome) error {
	if !outcome.Status.Terminal() {
		return fmt.Errorf("%w: finalize with %q", schemas.ErrInvalidTransition, outcome.Status)
	}
	at := outcome.At
	if at.IsZero() {
		at = time.Now()
	}
	if outcome.ResultLog.Date == "" {
		outcome.ResultLog.Date = at.UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(outcome.ResultLog)
	if err != nil {
		return fmt.Errorf("failed to encode result log: %w", err)
	}

	var completedAt *time.Time
	if outcome.Status == schemas.StatusCompleted {
		utc := at.UTC()
		completedAt = &utc
	}

	tag, err := s.pool.Exec(ctx, finalizeSQL, jobID, string(outcome.Status), payload, completedAt, outcome.ProfileID)
	if err != nil {
		return fmt.Errorf("failed to finalize job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, selectStatusSQL, jobID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", schemas.ErrJobNotFound, jobID)
	}
	if err != nil {
		return fmt.Errorf("failed to read status of job %s: %w", jobID, err)
	}
	return finalizeConflict(jobID, schemas.JobStatus(current), outcome.Status)
}

// finalizeConflict explains why a finalize from processing matched no row.
func finalizeConflict(jobID string, current, requested schemas.JobStatus) error {
	if current == requested {
		return fmt.Errorf("%w: %s is %s", schemas.ErrAlreadyFinalized, jobID, current)
	}
	return fmt.Errorf("%w: %s is %s, cannot become %s", schemas.ErrInvalidTransition, jobID, current, requested)
}

// BatchSummary counts the jobs of one batch per status.
func (s *Store) BatchSummary(ctx context.Context, ownerID, batchName string) (schemas.BatchSummary, error) {
	summary := schemas.BatchSummary{OwnerID: ownerID, PackageName: batchName}

	rows, err := s.pool.Query(ctx, batchSummarySQL, ownerID, batchName)
	if err != nil {
		return summary, fmt.Errorf("failed to query batch summary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return summary, fmt.Errorf("failed to scan batch summary row: %w", err)
		}
		summary.Add(schemas.JobStatus(status), int(count))
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("error iterating batch summary rows: %w", err)
	}
	return summary, nil
}
