package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkTracker_Counts(t *testing.T) {
	tr := newNetworkTracker()

	tr.handle(&network.EventRequestWillBeSent{RequestID: "1"})
	tr.handle(&network.EventRequestWillBeSent{RequestID: "2"})
	tr.handle(&network.EventRequestWillBeSent{RequestID: "3"})
	n, _ := tr.snapshot()
	assert.Equal(t, 3, n)

	tr.handle(&network.EventLoadingFinished{RequestID: "1"})
	tr.handle(&network.EventLoadingFailed{RequestID: "2"})
	tr.handle(&network.EventLoadingFinished{RequestID: "unknown"})
	n, _ = tr.snapshot()
	assert.Equal(t, 1, n)

	// Unrelated events do not count as activity.
	before := tr.lastActivity
	tr.handle(&network.EventDataReceived{RequestID: "3"})
	assert.Equal(t, before, tr.lastActivity)
}

func TestNetworkTracker_WaitIdle(t *testing.T) {
	t.Run("Already idle", func(t *testing.T) {
		tr := newNetworkTracker()
		tr.lastActivity = time.Now().Add(-time.Second)

		require.NoError(t, tr.WaitIdle(context.Background(), 500*time.Millisecond))
	})

	t.Run("Idle after request finishes", func(t *testing.T) {
		tr := newNetworkTracker()
		tr.handle(&network.EventRequestWillBeSent{RequestID: "a"})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(150 * time.Millisecond)
			tr.handle(&network.EventLoadingFinished{RequestID: "a"})
		}()

		start := time.Now()
		require.NoError(t, tr.WaitIdle(context.Background(), 50*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
		wg.Wait()
	})

	t.Run("Context expires while busy", func(t *testing.T) {
		tr := newNetworkTracker()
		tr.handle(&network.EventRequestWillBeSent{RequestID: "stuck"})

		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()
		err := tr.WaitIdle(ctx, 10*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
