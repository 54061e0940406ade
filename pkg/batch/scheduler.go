package batch

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// scheduler arranges fixed-rate callbacks on an injected clock.
type scheduler struct {
	clock clockwork.Clock
}

// every runs fn at a fixed rate, first firing one period from now, until the
// returned task is cancelled.
func (s scheduler) every(period time.Duration, fn func()) *flushTask {
	t := &flushTask{stop: make(chan struct{})}
	ticker := s.clock.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.Chan():
				// A cancel that raced the tick wins; one already running
				// callback finishing is the only overlap allowed.
				select {
				case <-t.stop:
					return
				default:
				}
				fn()
			}
		}
	}()
	return t
}

// flushTask is the cancellable handle to a repeating scheduled flush.
// Cancellation is non-interrupting: a callback that is already running is
// allowed to finish.
type flushTask struct {
	once sync.Once
	stop chan struct{}
}

func (t *flushTask) cancel() {
	t.once.Do(func() { close(t.stop) })
}
