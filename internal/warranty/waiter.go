package warranty

import (
	"context"
	"time"

	"github.com/xkilldash9x/warranty-cli/internal/observability"
	"go.uber.org/zap"
)

// Clock is the time source for polling loops.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Condition is a predicate checked on every poll.
type Condition func(ctx context.Context) (bool, error)

// Waiter runs bounded polling loops on a fixed interval.
type Waiter struct {
	clock    Clock
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewWaiter creates a Waiter. A nil clock means the wall clock.
func NewWaiter(clock Clock, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Waiter {
	if clock == nil {
		clock = RealClock()
	}
	return &Waiter{
		clock:    clock,
		interval: interval,
		logger:   logger.Named("waiter"),
		metrics:  metrics,
	}
}

// WaitFor checks cond every interval until it holds, timeout elapses or ctx
// ends. It reports whether cond held. An error from cond stops the loop.
func (w *Waiter) WaitFor(ctx context.Context, timeout time.Duration, cond Condition) (bool, error) {
	deadline := w.clock.Now().Add(timeout)
	for {
		done, err := cond(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
		if !w.clock.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-w.clock.After(w.interval):
		}
	}
}

// WaitForLoad blocks until the page behind probe stops showing its loading
// marker, reloading whenever it shows the stuck marker. It reports false on
// timeout or cancellation; it never returns an error.
func (w *Waiter) WaitForLoad(ctx context.Context, probe LoadProbe, timeout time.Duration) bool {
	loaded, err := w.WaitFor(ctx, timeout, func(ctx context.Context) (bool, error) {
		state, err := probe.LoadState(ctx)
		if err != nil {
			// A page in the middle of navigating cannot be inspected yet.
			w.logger.Debug("Could not read load state, retrying.", zap.Error(err))
			return false, nil
		}
		switch state {
		case LoadStateLoaded:
			return true, nil
		case LoadStateStuck:
			w.logger.Info("Page is stuck, reloading.")
			w.metrics.IncReload()
			if err := probe.Reload(ctx); err != nil {
				w.logger.Warn("Reload failed.", zap.Error(err))
			}
		}
		return false, nil
	})
	if err != nil {
		w.logger.Debug("Wait for page load interrupted.", zap.Error(err))
		return false
	}
	if !loaded {
		w.logger.Warn("Page did not finish loading in time.", zap.Duration("timeout", timeout))
	}
	return loaded
}
