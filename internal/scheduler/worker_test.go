package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eternisai/devotional-push/internal/logger"
	"github.com/eternisai/devotional-push/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls   atomic.Int32
	running atomic.Int32
	maxSeen atomic.Int32
	hold    time.Duration
}

func (r *countingRunner) RunScheduled(ctx context.Context) (*notifications.Report, error) {
	n := r.running.Add(1)
	defer r.running.Add(-1)
	if n > r.maxSeen.Load() {
		r.maxSeen.Store(n)
	}
	r.calls.Add(1)
	time.Sleep(r.hold)
	return &notifications.Report{DispatchID: "test"}, nil
}

func TestNewDispatchWorkerRejectsBadSchedule(t *testing.T) {
	_, err := NewDispatchWorker(&countingRunner{}, "every morning", logger.Discard())
	assert.Error(t, err)

	_, err = NewDispatchWorker(&countingRunner{}, "*/15 * * * *", logger.Discard())
	assert.NoError(t, err)
}

func TestDispatchWorkerRunsAndSkipsOverlap(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for real cron ticks")
	}

	runner := &countingRunner{hold: 1500 * time.Millisecond}
	w, err := NewDispatchWorker(runner, "@every 1s", logger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	time.Sleep(2 * time.Second)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, int32(1), runner.maxSeen.Load(), "batches never overlap")
}
