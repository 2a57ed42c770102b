package store

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// MemoryStore is an in-process job and profile store with the same transition
// rules as Store. Claims select and update in two critical sections, so
// concurrent claimers can lose races exactly as they do against Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	jobs     map[string]*memJob
	seq      int
	profiles []schemas.SenderProfile
	now      func() time.Time
}

type memJob struct {
	target schemas.Target
	seq    int
}

var (
	_ schemas.JobStore     = (*MemoryStore)(nil)
	_ schemas.ProfileStore = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*memJob),
		now:  time.Now,
	}
}

// Seed is the document accepted by LoadSeed.
type Seed struct {
	Targets  []schemas.Target        `json:"targets"`
	Profiles []schemas.SenderProfile `json:"profiles"`
}

// LoadSeed reads a JSON seed document and adds its profiles and targets.
func (m *MemoryStore) LoadSeed(r io.Reader) error {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("failed to decode seed: %w", err)
	}
	for _, p := range seed.Profiles {
		m.AddProfile(p)
	}
	for _, t := range seed.Targets {
		if _, err := m.AddJob(t); err != nil {
			return err
		}
	}
	return nil
}

// AddJob inserts a job, filling in id, status and creation time when unset.
func (m *MemoryStore) AddJob(t schemas.Target) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = schemas.StatusPending
	}
	if !t.Status.Valid() {
		return "", fmt.Errorf("job %s has unknown status %q", t.ID, t.Status)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.now()
	}
	if _, exists := m.jobs[t.ID]; exists {
		return "", fmt.Errorf("job %s already exists", t.ID)
	}
	m.seq++
	m.jobs[t.ID] = &memJob{target: t, seq: m.seq}
	return t.ID, nil
}

// AddProfile stores a profile. Later additions count as more recently updated.
func (m *MemoryStore) AddProfile(p schemas.SenderProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.profiles = append(m.profiles, p.Snapshot())
}

// Job returns a copy of the job with the given id.
func (m *MemoryStore) Job(id string) (schemas.Target, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return schemas.Target{}, false
	}
	return j.target, true
}

func (m *MemoryStore) ClaimNext(ctx context.Context, filter schemas.ClaimFilter) (*schemas.Target, error) {
	return m.transitionOldest(ctx, filter.OwnerID, filter.BatchName, filter.EligibleStatuses(), schemas.StatusProcessing)
}

func (m *MemoryStore) MarkQueued(ctx context.Context, ownerID, batchName string) (*schemas.Target, error) {
	return m.transitionOldest(ctx, ownerID, batchName, []schemas.JobStatus{schemas.StatusPending}, schemas.StatusQueued)
}

func (m *MemoryStore) transitionOldest(ctx context.Context, ownerID, batchName string, from []schemas.JobStatus, to schemas.JobStatus) (*schemas.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, prior, ok := m.selectCandidate(ownerID, batchName, from)
	if !ok {
		return nil, schemas.ErrNoJob
	}
	return m.compareAndSet(id, prior, to)
}

func (m *MemoryStore) selectCandidate(ownerID, batchName string, from []schemas.JobStatus) (string, schemas.JobStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *memJob
	for _, j := range m.jobs {
		t := j.target
		if t.OwnerID != ownerID || (batchName != "" && t.PackageName != batchName) || !hasStatus(from, t.Status) {
			continue
		}
		if best == nil || t.CreatedAt.Before(best.target.CreatedAt) ||
			(t.CreatedAt.Equal(best.target.CreatedAt) && j.seq < best.seq) {
			best = j
		}
	}
	if best == nil {
		return "", "", false
	}
	return best.target.ID, best.target.Status, true
}

func (m *MemoryStore) compareAndSet(id string, prior, to schemas.JobStatus) (*schemas.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.target.Status != prior {
		return nil, schemas.ErrLostRace
	}
	j.target.Status = to
	cp := j.target
	return &cp, nil
}

func hasStatus(set []schemas.JobStatus, st schemas.JobStatus) bool {
	for _, s := range set {
		if s == st {
			return true
		}
	}
	return false
}

func (m *MemoryStore) Finalize(ctx context.Context, jobID string, outcome schemas.Outcome) error {
	if !outcome.Status.Terminal() {
		return fmt.Errorf("%w: finalize with %q", schemas.ErrInvalidTransition, outcome.Status)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	at := outcome.At
	if at.IsZero() {
		at = m.now()
	}
	if outcome.ResultLog.Date == "" {
		outcome.ResultLog.Date = at.UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(outcome.ResultLog)
	if err != nil {
		return fmt.Errorf("failed to encode result log: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", schemas.ErrJobNotFound, jobID)
	}
	if j.target.Status != schemas.StatusProcessing {
		return finalizeConflict(jobID, j.target.Status, outcome.Status)
	}

	j.target.Status = outcome.Status
	j.target.ResultLog = payload
	if outcome.ProfileID != "" {
		j.target.ProfileID = outcome.ProfileID
	}
	if outcome.Status == schemas.StatusCompleted {
		utc := at.UTC()
		j.target.CompletedAt = &utc
	}
	return nil
}

func (m *MemoryStore) BatchSummary(ctx context.Context, ownerID, batchName string) (schemas.BatchSummary, error) {
	summary := schemas.BatchSummary{OwnerID: ownerID, PackageName: batchName}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.target.OwnerID == ownerID && j.target.PackageName == batchName {
			summary.Add(j.target.Status, 1)
		}
	}
	return summary, nil
}

func (m *MemoryStore) GetProfile(ctx context.Context, ownerID, profileID string) (*schemas.SenderProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.profiles) - 1; i >= 0; i-- {
		p := m.profiles[i]
		if p.OwnerID == ownerID && (profileID == "" || p.ID == profileID) {
			cp := p.Snapshot()
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: owner %s profile %q", schemas.ErrProfileNotFound, ownerID, profileID)
}
