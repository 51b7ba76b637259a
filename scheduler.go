package authstate

import (
	"sync"
	"time"
)

// Timer is a single armed callback. Cancel reports whether the callback was
// stopped before it fired; cancelling an already-fired or already-cancelled
// timer is a no-op.
type Timer interface {
	Cancel() bool
}

// Scheduler arms one-shot and repeating timers. Modeling timers behind an
// explicit arm/cancel surface keeps the "at most one pending timer" invariant
// of the refresher mechanically checkable in tests.
type Scheduler interface {
	// Schedule arms fn to fire once after d.
	Schedule(d time.Duration, fn func()) Timer
	// Tick arms fn to fire every interval until cancelled.
	Tick(interval time.Duration, fn func()) Timer
}

// NewScheduler returns the wall-clock Scheduler used in production.
func NewScheduler() Scheduler {
	return stdScheduler{}
}

type stdScheduler struct{}

func (stdScheduler) Schedule(d time.Duration, fn func()) Timer {
	return &stdTimer{t: time.AfterFunc(d, fn)}
}

func (stdScheduler) Tick(interval time.Duration, fn func()) Timer {
	tk := &stdTicker{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-tk.ticker.C:
				fn()
			case <-tk.done:
				return
			}
		}
	}()
	return tk
}

type stdTimer struct {
	t *time.Timer
}

func (s *stdTimer) Cancel() bool {
	return s.t.Stop()
}

type stdTicker struct {
	ticker *time.Ticker
	once   sync.Once
	done   chan struct{}
}

func (s *stdTicker) Cancel() bool {
	stopped := false
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
		stopped = true
	})
	return stopped
}
