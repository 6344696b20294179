package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Tracker supervises fire-and-forget operations (wallet credits,
// compensations). Each task is added to a shared set; Drain awaits them all
// for graceful shutdown. Individual failures are the task's own business;
// the tracker only logs them. Tasks are not cancelable once issued.
type Tracker struct {
	log       *zap.Logger
	highWater int64

	wg       sync.WaitGroup
	inFlight atomic.Int64
	warned   atomic.Bool
}

func NewTracker(highWater int, log *zap.Logger) *Tracker {
	if highWater <= 0 {
		highWater = 256
	}
	return &Tracker{log: log, highWater: int64(highWater)}
}

func (t *Tracker) InFlight() int64 { return t.inFlight.Load() }

// Go runs fn on its own goroutine, tracked until completion. Panics are
// contained so a misbehaving task cannot take the engine down.
func (t *Tracker) Go(name string, fn func() error) {
	n := t.inFlight.Add(1)
	if n > t.highWater && t.warned.CompareAndSwap(false, true) {
		t.log.Warn("tracked task high-water mark exceeded",
			zap.Int64("inFlight", n), zap.Int64("highWater", t.highWater))
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if t.inFlight.Add(-1) <= t.highWater {
				t.warned.Store(false)
			}
			if r := recover(); r != nil {
				t.log.Error("tracked task panicked",
					zap.String("task", name), zap.Any("panic", r))
			}
		}()
		if err := fn(); err != nil {
			t.log.Warn("tracked task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// Drain waits for every in-flight task, tolerating individual failures.
// Returns the context error if the deadline expires first.
func (t *Tracker) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
