package batch

import (
	"context"
	"sync"
)

// Result is the write-once handle returned by Submit. It is completed exactly
// once, either with the response routed out of a downstream batch call, with
// a failure, or with ErrClosed at shutdown.
//
// Abandoning a Result does not cancel anything: once its request has been
// dispatched downstream, the batch call runs to completion or failure
// regardless of whether anyone is still waiting.
type Result[R any] struct {
	mu    sync.Mutex
	done  chan struct{}
	value R
	err   error
}

func newResult[R any]() *Result[R] {
	return &Result[R]{done: make(chan struct{})}
}

// settle completes the handle. Returns false if it was already completed.
func (r *Result[R]) settle(value R, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return false
	default:
	}
	r.value = value
	r.err = err
	close(r.done)
	return true
}

// Done returns a channel that is closed once the result is available.
func (r *Result[R]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the result is available or ctx is done. The context
// bounds the wait only; it does not cancel the underlying request.
func (r *Result[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Value returns the response. Valid only after Done is closed.
func (r *Result[R]) Value() R {
	return r.value
}

// Err returns the failure, if any. Valid only after Done is closed.
func (r *Result[R]) Err() error {
	return r.err
}
