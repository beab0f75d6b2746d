package abort

import (
	"context"
	"sync"
	"time"
)

type outcome[T any] struct {
	v   T
	err error
}

type Options struct {
	// Timeout of zero or less means no timer is armed.
	Timeout time.Duration
	// Message is used as the TimeoutError message.
	Message string
}

// settlement decides which side of a Run owns the outcome: the operation,
// once it committed, or the timer, once it expired.
type settlement struct {
	mu        sync.Mutex
	committed bool
	expired   *TimeoutError
}

type settlementKey struct{}

func (s *settlement) expire(err *TimeoutError) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return false
	}
	s.expired = err
	return true
}

// Commit claims the outcome of the Run call ctx was handed to. It returns the
// abort cause when the call was already cancelled or timed out, and nil
// otherwise. After a nil Commit the timer of that call can no longer fire:
// Run waits for the operation and returns its result, so side effects made
// after Commit are never paired with a TimeoutError. Outside of a Run with a
// timeout, Commit only reports the context's abort cause.
func Commit(ctx context.Context) error {
	s, ok := ctx.Value(settlementKey{}).(*settlement)
	if !ok {
		return FromContext(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired != nil {
		return s.expired
	}
	if err := FromContext(ctx); err != nil {
		return err
	}
	s.committed = true
	return nil
}

// Run executes fn and returns its outcome unchanged, unless the timeout fires
// first. In that case the scope is cancelled with a TimeoutError cause (which
// aborts fn's network work if fn bound its context to the scope), a fresh
// signal is installed, and Run returns the TimeoutError without waiting for fn.
// A timer firing after fn called Commit is ignored. The timer is stopped on
// every path.
func Run[T any](ctx context.Context, s *Scope, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	if opts.Timeout <= 0 {
		return fn(ctx)
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	st := &settlement{}
	ctx = context.WithValue(ctx, settlementKey{}, st)

	// buffered so the goroutine can finish after a timeout without a reader
	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome[T]{v, err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-timer.C:
		err := &TimeoutError{Message: opts.Message, After: opts.Timeout}
		if !st.expire(err) {
			o := <-done
			return o.v, o.err
		}
		s.Cancel(err)
		var zero T
		return zero, err
	}
}
