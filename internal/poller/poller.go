package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mikey/support-mailer/internal/core"
	"go.uber.org/zap"
)

// CycleRunner is the single operation the poller drives.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*core.CycleStats, error)
}

// Poller runs pull cycles on a fixed interval. Start is idempotent while
// running; Stop prevents any further tick and waits for the loop to exit.
// Overlap protection lives in the runner, not here.
type Poller struct {
	runner   CycleRunner
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a poller ticking at the given interval.
func New(runner CycleRunner, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the polling loop. Calling Start on a running poller is a
// no-op. The first cycle runs immediately, not after the first interval.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)

	p.logger.Info("Poller started", zap.Duration("interval", p.interval))
}

// Stop halts the loop and waits for it to exit. A running cycle finishes; the
// next tick never fires. Stopping a stopped poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("Poller stopped")
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// loop runs a cycle, then sleeps the full interval before the next one. A
// cycle longer than the interval therefore delays the next run instead of
// triggering an immediate catch-up.
func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		p.runOnce(ctx)
		timer.Reset(p.interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// runOnce executes one cycle, containing panics so a misbehaving cycle never
// kills the loop.
func (p *Poller) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Cycle panicked", zap.Any("panic", r))
		}
	}()

	stats, err := p.runner.RunCycle(ctx)
	switch {
	case err == nil:
		p.logger.Debug("Scheduled cycle finished",
			zap.Int("stored", stats.Stored),
			zap.Int("skipped", stats.Skipped))
	case errors.Is(err, core.ErrSyncInProgress):
		p.logger.Debug("Skipping tick, cycle already running")
	case errors.Is(err, core.ErrNoAccount):
		p.logger.Warn("No mail account configured, skipping cycle")
	case errors.Is(err, context.Canceled):
	default:
		p.logger.Error("Cycle failed", zap.Error(err))
	}
}
