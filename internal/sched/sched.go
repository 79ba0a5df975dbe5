// Package sched runs fire-and-forget delayed checks: confirmation timeout,
// payment timeout, offer expiry. Callbacks re-validate current state before
// acting; a timer firing against an order that already moved on is a no-op.
package sched

import (
	"context"
	"sync"
	"time"
)

// Logger is the pair of printf-style loggers threaded from main.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Callback receives the order id the timer was armed for.
type Callback func(ctx context.Context, orderID int64)

// Scheduler arms one-shot timers against a base context. Stop cancels
// everything still pending.
type Scheduler struct {
	base       context.Context
	cancel     context.CancelFunc
	runTimeout time.Duration
	log        Logger

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

func New(runTimeout time.Duration, log Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if runTimeout <= 0 {
		runTimeout = 10 * time.Second
	}
	return &Scheduler{
		base:       ctx,
		cancel:     cancel,
		runTimeout: runTimeout,
		log:        log,
		timers:     make(map[*time.Timer]struct{}),
	}
}

// ScheduleAt arms a timer. The callback runs in its own goroutine with a
// per-run timeout and never blocks the caller.
func (s *Scheduler) ScheduleAt(delay time.Duration, orderID int64, fn Callback) {
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()

		if s.base.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(s.base, s.runTimeout)
		defer cancel()
		fn(ctx, orderID)
	})
	s.mu.Lock()
	s.timers[t] = struct{}{}
	s.mu.Unlock()
}

// Stop cancels the base context and every pending timer.
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	for t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
	s.mu.Unlock()
}
