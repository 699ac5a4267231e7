package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikey/support-mailer/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRunner struct {
	calls atomic.Int64
	err   error
}

func (r *countingRunner) RunCycle(ctx context.Context) (*core.CycleStats, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &core.CycleStats{}, nil
}

func TestPollerRunsImmediatelyAndOnTicks(t *testing.T) {
	runner := &countingRunner{}
	p := New(runner, 20*time.Millisecond, zap.NewNop())

	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return runner.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestPollerStopPreventsFurtherTicks(t *testing.T) {
	runner := &countingRunner{}
	p := New(runner, 10*time.Millisecond, zap.NewNop())

	p.Start()
	require.Eventually(t, func() bool {
		return runner.calls.Load() >= 1
	}, time.Second, time.Millisecond)
	p.Stop()
	assert.False(t, p.Running())

	count := runner.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, runner.calls.Load())
}

func TestPollerStartIsIdempotent(t *testing.T) {
	runner := &countingRunner{}
	p := New(runner, time.Hour, zap.NewNop())

	p.Start()
	p.Start()
	assert.True(t, p.Running())
	p.Stop()

	// Exactly one immediate run from the single loop.
	assert.Equal(t, int64(1), runner.calls.Load())
}

func TestPollerStopTwice(t *testing.T) {
	p := New(&countingRunner{}, time.Hour, zap.NewNop())
	p.Start()
	p.Stop()
	p.Stop()
	assert.False(t, p.Running())
}

func TestPollerSurvivesCycleErrors(t *testing.T) {
	runner := &countingRunner{err: core.ErrSyncInProgress}
	p := New(runner, 10*time.Millisecond, zap.NewNop())

	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return runner.calls.Load() >= 2
	}, time.Second, time.Millisecond)
}

type slowRunner struct {
	mu     sync.Mutex
	starts []time.Time
	delay  time.Duration
}

func (r *slowRunner) RunCycle(ctx context.Context) (*core.CycleStats, error) {
	r.mu.Lock()
	r.starts = append(r.starts, time.Now())
	r.mu.Unlock()
	time.Sleep(r.delay)
	return &core.CycleStats{}, nil
}

func (r *slowRunner) startTimes() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.starts...)
}

func TestPollerWaitsFullIntervalAfterSlowCycle(t *testing.T) {
	// A cycle longer than the interval must still be followed by a full
	// interval of sleep, never an immediate catch-up run.
	runner := &slowRunner{delay: 50 * time.Millisecond}
	p := New(runner, 30*time.Millisecond, zap.NewNop())

	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return len(runner.startTimes()) >= 2
	}, time.Second, 5*time.Millisecond)
	p.Stop()

	starts := runner.startTimes()
	gap := starts[1].Sub(starts[0])
	assert.GreaterOrEqual(t, gap, 80*time.Millisecond)
}

func TestPollerRestart(t *testing.T) {
	runner := &countingRunner{}
	p := New(runner, time.Hour, zap.NewNop())

	p.Start()
	p.Stop()
	first := runner.calls.Load()

	p.Start()
	defer p.Stop()
	require.Eventually(t, func() bool {
		return runner.calls.Load() > first
	}, time.Second, time.Millisecond)
}
