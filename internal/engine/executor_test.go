package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/mocks"
	"github.com/xkilldash9x/formpilot/internal/store"
	"github.com/xkilldash9x/formpilot/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// storeRunner finalizes jobs directly, failing those whose URL contains "fail".
type storeRunner struct {
	jobs schemas.JobStore

	mu       sync.Mutex
	seen     map[string]int
	profiles []string
}

func newStoreRunner(jobs schemas.JobStore) *storeRunner {
	return &storeRunner{jobs: jobs, seen: make(map[string]int)}
}

func (r *storeRunner) Run(ctx context.Context, job *schemas.Target, profile schemas.SenderProfile) (worker.Result, error) {
	r.mu.Lock()
	r.seen[job.ID]++
	r.profiles = append(r.profiles, profile.ID)
	r.mu.Unlock()

	status := schemas.StatusCompleted
	if strings.Contains(job.URL, "fail") {
		status = schemas.StatusError
	}
	err := r.jobs.Finalize(context.WithoutCancel(ctx), job.ID, schemas.Outcome{
		Status:    status,
		ProfileID: profile.ID,
		ResultLog: schemas.ResultLog{Message: string(status), Attempts: 1},
		At:        time.Now(),
	})
	return worker.Result{Status: status}, err
}

// recordingNotifier collects batch reports.
type recordingNotifier struct {
	mu      sync.Mutex
	reports []schemas.BatchReport
}

func (n *recordingNotifier) BatchCompleted(_ context.Context, r schemas.BatchReport) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, r)
	return nil
}

func testConfig(mutate func(*config.Config)) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.EngineCfg.OwnerID = "owner-1"
	cfg.EngineCfg.ExitWhenIdle = true
	cfg.EngineCfg.PollInterval = 10 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}
	return cfg
}

func seedStore(t *testing.T, batches map[string]int) *store.MemoryStore {
	t.Helper()
	mem := store.NewMemoryStore()
	mem.AddProfile(schemas.SenderProfile{ID: "profile-1", OwnerID: "owner-1", DisplayName: "Sales", MessageBody: "hello"})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	for batch, n := range batches {
		for j := 0; j < n; j++ {
			url := fmt.Sprintf("https://example.jp/%s/%d", batch, j)
			if j%5 == 4 {
				url += "/fail"
			}
			_, err := mem.AddJob(schemas.Target{
				OwnerID:     "owner-1",
				URL:         url,
				PackageName: batch,
				CreatedAt:   base.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
			i++
		}
	}
	return mem
}

func TestNew_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mem := store.NewMemoryStore()

	_, err := New(testConfig(func(c *config.Config) { c.EngineCfg.OwnerID = "" }), logger, mem, mem, newStoreRunner(mem), nil)
	assert.ErrorContains(t, err, "owner_id")

	_, err = New(testConfig(nil), logger, mem, mem, nil, nil)
	assert.Error(t, err)
}

func TestExecutor_ConcurrentClaimsAreExclusive(t *testing.T) {
	mem := seedStore(t, map[string]int{"batch-a": 20, "batch-b": 15})
	runner := newStoreRunner(mem)
	notifier := &recordingNotifier{}

	cfg := testConfig(func(c *config.Config) { c.EngineCfg.Concurrency = 6 })
	e, err := New(cfg, zaptest.NewLogger(t), mem, mem, runner, notifier)
	require.NoError(t, err)

	stats, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 35, stats.Claimed)
	assert.Len(t, runner.seen, 35)
	for id, n := range runner.seen {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}

	for _, batch := range []string{"batch-a", "batch-b"} {
		summary, err := mem.BatchSummary(context.Background(), "owner-1", batch)
		require.NoError(t, err)
		assert.True(t, summary.Done(), "batch %s has outstanding jobs", batch)
	}

	require.Len(t, notifier.reports, 2, "one report per batch")
	for _, r := range notifier.reports {
		assert.Equal(t, "Sales", r.ProfileName)
		assert.Equal(t, "hello", r.MessageBody)
	}
	names := []string{notifier.reports[0].Summary.PackageName, notifier.reports[1].Summary.PackageName}
	assert.ElementsMatch(t, []string{"batch-a", "batch-b"}, names)
}

func TestExecutor_QueuedOnly(t *testing.T) {
	mem := seedStore(t, map[string]int{"batch-a": 4})
	d := NewDispatcher(mem, zaptest.NewLogger(t))
	n, err := d.Dispatch(context.Background(), "owner-1", "batch-a", 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	runner := newStoreRunner(mem)
	notifier := &recordingNotifier{}
	cfg := testConfig(func(c *config.Config) { c.EngineCfg.QueuedOnly = true })
	e, err := New(cfg, zaptest.NewLogger(t), mem, mem, runner, notifier)
	require.NoError(t, err)
	assert.Equal(t, []schemas.JobStatus{schemas.StatusQueued}, e.Filter().Statuses)

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Claimed)

	summary, err := mem.BatchSummary(context.Background(), "owner-1", "batch-a")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pending)
	assert.Empty(t, notifier.reports, "batch still has pending jobs")
}

func TestExecutor_MissingProfileFailsJob(t *testing.T) {
	mem := store.NewMemoryStore()
	id, err := mem.AddJob(schemas.Target{OwnerID: "owner-1", URL: "https://example.jp", PackageName: "b"})
	require.NoError(t, err)

	runner := newStoreRunner(mem)
	notifier := &recordingNotifier{}
	e, err := New(testConfig(nil), zaptest.NewLogger(t), mem, mem, runner, notifier)
	require.NoError(t, err)

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errored)
	assert.Empty(t, runner.seen, "no attempt is made without a profile")

	job, ok := mem.Job(id)
	require.True(t, ok)
	assert.Equal(t, schemas.StatusError, job.Status)
	assert.Contains(t, string(job.ResultLog), "sender profile unavailable")
	require.Len(t, notifier.reports, 1)
	assert.Equal(t, 1, notifier.reports[0].Summary.Errored)
}

func TestExecutor_RetriesLostRace(t *testing.T) {
	jobs := new(mocks.MockJobStore)
	profiles := new(mocks.MockProfileStore)
	job := &schemas.Target{ID: "j1", OwnerID: "owner-1", PackageName: "b"}

	jobs.On("ClaimNext", mock.Anything, mock.Anything).Return(nil, schemas.ErrLostRace).Twice()
	jobs.On("ClaimNext", mock.Anything, mock.Anything).Return(job, nil).Once()
	jobs.On("ClaimNext", mock.Anything, mock.Anything).Return(nil, schemas.ErrNoJob)
	profiles.On("GetProfile", mock.Anything, "owner-1", "").Return(&schemas.SenderProfile{ID: "p1"}, nil)

	runner := &funcRunner{fn: func(*schemas.Target) (worker.Result, error) {
		return worker.Result{Status: schemas.StatusCompleted}, nil
	}}
	e, err := New(testConfig(nil), zaptest.NewLogger(t), jobs, profiles, runner, nil)
	require.NoError(t, err)

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.LostRaces)
	assert.Equal(t, 1, stats.Completed)
	jobs.AssertExpectations(t)
}

func TestExecutor_StopsOnCancel(t *testing.T) {
	mem := store.NewMemoryStore()
	runner := newStoreRunner(mem)
	cfg := testConfig(func(c *config.Config) {
		c.EngineCfg.ExitWhenIdle = false
		c.EngineCfg.Concurrency = 3
	})
	e, err := New(cfg, zaptest.NewLogger(t), mem, mem, runner, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := e.Run(ctx)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop after cancellation")
	}
}

func TestExecutor_StoreErrorIsRetried(t *testing.T) {
	jobs := new(mocks.MockJobStore)
	profiles := new(mocks.MockProfileStore)

	jobs.On("ClaimNext", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("connection reset")).Once()
	jobs.On("ClaimNext", mock.Anything, mock.Anything).Return(nil, schemas.ErrNoJob)

	e, err := New(testConfig(nil), zaptest.NewLogger(t), jobs, profiles, &funcRunner{}, nil)
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.NoError(t, err)
	jobs.AssertNumberOfCalls(t, "ClaimNext", 2)
}

type funcRunner struct {
	fn func(*schemas.Target) (worker.Result, error)
}

func (r *funcRunner) Run(_ context.Context, job *schemas.Target, _ schemas.SenderProfile) (worker.Result, error) {
	return r.fn(job)
}
