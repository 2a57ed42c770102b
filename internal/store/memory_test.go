package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func seededMemoryStore(t *testing.T, n int) (*MemoryStore, []string) {
	t.Helper()
	m := NewMemoryStore()
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := m.AddJob(schemas.Target{
			OwnerID:     "owner-1",
			PackageName: "spring",
			URL:         "https://example.com/contact",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return m, ids
}

func TestMemoryStore_ClaimOrder(t *testing.T) {
	ctx := context.Background()
	m, ids := seededMemoryStore(t, 3)

	for _, want := range ids {
		job, err := m.ClaimNext(ctx, schemas.ClaimFilter{OwnerID: "owner-1", BatchName: "spring"})
		require.NoError(t, err)
		assert.Equal(t, want, job.ID, "claims follow creation order")
		assert.Equal(t, schemas.StatusProcessing, job.Status)
	}

	_, err := m.ClaimNext(ctx, schemas.ClaimFilter{OwnerID: "owner-1"})
	assert.ErrorIs(t, err, schemas.ErrNoJob)
}

func TestMemoryStore_ClaimFilters(t *testing.T) {
	ctx := context.Background()
	m, ids := seededMemoryStore(t, 2)

	_, err := m.ClaimNext(ctx, schemas.ClaimFilter{OwnerID: "someone-else"})
	assert.ErrorIs(t, err, schemas.ErrNoJob)

	_, err = m.ClaimNext(ctx, schemas.ClaimFilter{OwnerID: "owner-1", BatchName: "autumn"})
	assert.ErrorIs(t, err, schemas.ErrNoJob)

	_, err = m.ClaimNext(ctx, schemas.ClaimFilter{OwnerID: "owner-1", Statuses: []schemas.JobStatus{schemas.StatusQueued}})
	assert.ErrorIs(t, err, schemas.ErrNoJob, "queued-only claimers ignore pending jobs")

	queued, err := m.MarkQueued(ctx, "owner-1", "spring")
	require.NoError(t, err)
	assert.Equal(t, ids[0], queued.ID)
	assert.Equal(t, schemas.StatusQueued, queued.Status)

	job, err := m.ClaimNext(ctx, schemas.ClaimFilter{OwnerID: "owner-1", Statuses: []schemas.JobStatus{schemas.StatusQueued}})
	require.NoError(t, err)
	assert.Equal(t, ids[0], job.ID)
}

// Many claimers against fewer jobs: every job is claimed by exactly one caller.
func TestMemoryStore_AtMostOneClaim(t *testing.T) {
	const (
		jobs     = 20
		claimers = 64
	)
	ctx := context.Background()
	m, ids := seededMemoryStore(t, jobs)

	var (
		mu     sync.Mutex
		claims = make(map[string]int)
		races  int
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < claimers; i++ {
		g.Go(func() error {
			for {
				job, err := m.ClaimNext(gctx, schemas.ClaimFilter{OwnerID: "owner-1"})
				switch {
				case errors.Is(err, schemas.ErrNoJob):
					return nil
				case errors.Is(err, schemas.ErrLostRace):
					mu.Lock()
					races++
					mu.Unlock()
					continue
				case err != nil:
					return err
				}
				mu.Lock()
				claims[job.ID]++
				mu.Unlock()
			}
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, claims, jobs)
	for _, id := range ids {
		assert.Equal(t, 1, claims[id], "job %s claimed more than once", id)
	}
	t.Logf("lost races observed: %d", races)
}

func TestMemoryStore_Finalize(t *testing.T) {
	ctx := context.Background()
	m, ids := seededMemoryStore(t, 2)
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	err := m.Finalize(ctx, ids[0], schemas.Outcome{Status: schemas.StatusCompleted, At: at})
	assert.ErrorIs(t, err, schemas.ErrInvalidTransition, "a pending job cannot be finalized")

	job, err := m.ClaimNext(ctx, schemas.ClaimFilter{OwnerID: "owner-1"})
	require.NoError(t, err)

	outcome := schemas.Outcome{
		Status:    schemas.StatusCompleted,
		ProfileID: "profile-1",
		ResultLog: schemas.ResultLog{Message: "Sent by Local Worker", Attempts: 2, Shape: "direct_submit"},
		At:        at,
	}
	require.NoError(t, m.Finalize(ctx, job.ID, outcome))

	stored, ok := m.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, schemas.StatusCompleted, stored.Status)
	assert.Equal(t, "profile-1", stored.ProfileID)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.Equal(at))
	assert.JSONEq(t, `{"message":"Sent by Local Worker","attempts":2,"shape":"direct_submit","date":"2024-04-01T12:00:00Z"}`, string(stored.ResultLog))

	// Re-finalizing with the same outcome is rejected and keeps completed_at.
	later := outcome
	later.At = at.Add(time.Hour)
	err = m.Finalize(ctx, job.ID, later)
	assert.ErrorIs(t, err, schemas.ErrAlreadyFinalized)
	stored, _ = m.Job(job.ID)
	assert.True(t, stored.CompletedAt.Equal(at))

	err = m.Finalize(ctx, job.ID, schemas.Outcome{Status: schemas.StatusError})
	assert.ErrorIs(t, err, schemas.ErrInvalidTransition, "completed never changes")

	err = m.Finalize(ctx, "ghost", outcome)
	assert.ErrorIs(t, err, schemas.ErrJobNotFound)
}

func TestMemoryStore_FinalizeError(t *testing.T) {
	ctx := context.Background()
	m, _ := seededMemoryStore(t, 1)
	job, err := m.ClaimNext(ctx, schemas.ClaimFilter{OwnerID: "owner-1"})
	require.NoError(t, err)

	require.NoError(t, m.Finalize(ctx, job.ID, schemas.Outcome{
		Status:    schemas.StatusError,
		ResultLog: schemas.ResultLog{Message: "navigation failed: timeout", Attempts: 3},
	}))
	stored, _ := m.Job(job.ID)
	assert.Equal(t, schemas.StatusError, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.Contains(t, string(stored.ResultLog), "timeout")
}

func TestMemoryStore_BatchSummary(t *testing.T) {
	ctx := context.Background()
	m, _ := seededMemoryStore(t, 3)
	job, err := m.ClaimNext(ctx, schemas.ClaimFilter{OwnerID: "owner-1"})
	require.NoError(t, err)
	require.NoError(t, m.Finalize(ctx, job.ID, schemas.Outcome{Status: schemas.StatusCompleted}))

	summary, err := m.BatchSummary(ctx, "owner-1", "spring")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 2, summary.Pending)
	assert.False(t, summary.Done())
}

func TestMemoryStore_Profiles(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.AddProfile(schemas.SenderProfile{ID: "p1", OwnerID: "owner-1", DisplayName: "old"})
	m.AddProfile(schemas.SenderProfile{ID: "p2", OwnerID: "owner-1", DisplayName: "new", IndustryTags: []string{"retail"}})

	latest, err := m.GetProfile(ctx, "owner-1", "")
	require.NoError(t, err)
	assert.Equal(t, "p2", latest.ID)

	latest.IndustryTags[0] = "mutated"
	again, err := m.GetProfile(ctx, "owner-1", "p2")
	require.NoError(t, err)
	assert.Equal(t, []string{"retail"}, again.IndustryTags, "callers get copies")

	byID, err := m.GetProfile(ctx, "owner-1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "old", byID.DisplayName)

	_, err = m.GetProfile(ctx, "owner-2", "")
	assert.ErrorIs(t, err, schemas.ErrProfileNotFound)
}

func TestMemoryStore_LoadSeed(t *testing.T) {
	seed := `{
		"profiles": [{"id": "p1", "owner_id": "owner-1", "sender_company": "Acme"}],
		"targets": [
			{"id": "t1", "owner_id": "owner-1", "url": "https://a.example", "package_name": "b"},
			{"id": "t2", "owner_id": "owner-1", "url": "https://b.example", "package_name": "b", "status": "queued"}
		]
	}`
	m := NewMemoryStore()
	require.NoError(t, m.LoadSeed(strings.NewReader(seed)))

	t2, ok := m.Job("t2")
	require.True(t, ok)
	assert.Equal(t, schemas.StatusQueued, t2.Status)

	p, err := m.GetProfile(context.Background(), "owner-1", "")
	require.NoError(t, err)
	assert.Equal(t, "Acme", p.CompanyName)

	err = m.LoadSeed(strings.NewReader(`{"targets":[{"id":"t1","owner_id":"owner-1"}]}`))
	assert.ErrorContains(t, err, "already exists")

	err = NewMemoryStore().LoadSeed(strings.NewReader(`{"targets":[{"owner_id":"o","status":"archived"}]}`))
	assert.ErrorContains(t, err, "unknown status")
}
