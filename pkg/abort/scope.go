// Package abort coordinates cancellation of in-flight requests.
//
// A Scope holds the one live cancellation signal shared by every request of a
// client. Triggering it aborts all requests bound to it and installs a fresh
// signal, so requests started afterwards are not born cancelled. Run adds an
// optional timeout on top that triggers the same scope when it expires.
package abort

import (
	"context"
	"sync"
)

type Scope struct {
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelCauseFunc
	generation uint64
}

func NewScope() *Scope {
	s := &Scope{}
	s.ctx, s.cancel = context.WithCancelCause(context.Background())
	return s
}

// Context returns the signal that is live right now.
func (s *Scope) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Generation counts how many times the signal has been replaced.
func (s *Scope) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Cancel aborts everything bound to the live signal with cause and installs
// a new one. A nil cause is recorded as a CanceledError.
func (s *Scope) Cancel(cause error) {
	if cause == nil {
		cause = &CanceledError{}
	}
	s.mu.Lock()
	cancel := s.cancel
	s.ctx, s.cancel = context.WithCancelCause(context.Background())
	s.generation++
	s.mu.Unlock()

	cancel(cause)
}

// Bind derives a context that is done when either parent is done or the
// scope's live signal at the time of the call is triggered. The scope's cause
// is carried over, so context.Cause reports a CanceledError or TimeoutError.
// The returned release function must be called once the request finishes.
func Bind(parent context.Context, s *Scope) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	signal := s.Context()
	stop := context.AfterFunc(signal, func() {
		cancel(context.Cause(signal))
	})
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
