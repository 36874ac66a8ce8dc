package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler starts recurring tasks. Each task owns its own ticker and is
// stopped through the Handle returned by Every.
type Scheduler struct {
	log      *zap.Logger
	interval time.Duration
}

// New creates a Scheduler firing every interval.
func New(log *zap.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		log:      log,
		interval: interval,
	}
}

// Handle owns one recurring task.
type Handle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the task. It is safe to call from inside the task body and
// more than once; it does not wait for the loop to exit.
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Every runs fn every interval until the handle is stopped or ctx is canceled.
// fn never runs concurrently with itself.
func (s *Scheduler) Every(ctx context.Context, name string, fn func(ctx context.Context)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{name: name, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.log.Debug("task stopping", zap.String("task", name))
				return
			case <-ticker.C:
				// A stop issued while waiting wins over a pending tick.
				if ctx.Err() != nil {
					continue
				}
				fn(ctx)
			}
		}
	}()
	return h
}
