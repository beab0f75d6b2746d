package abort

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Kinds callers can match with errors.Is, instead of looking at message text.
var (
	ErrTimeout  = errors.New("timeout")
	ErrCanceled = errors.New("canceled")
)

const (
	KindTimeout  = "timeout"
	KindCanceled = "canceled"
)

// TimeoutError is returned by Run when the timer fired before the operation
// settled.
type TimeoutError struct {
	Message string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("operation timed out after %s", e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// CanceledError is the cause recorded when a Scope is cancelled explicitly.
type CanceledError struct {
	Reason string
}

func (e *CanceledError) Error() string {
	if e.Reason != "" {
		return "request canceled: " + e.Reason
	}
	return "request canceled"
}

func (e *CanceledError) Is(target error) bool {
	return target == ErrCanceled
}

// Kind reports KindTimeout, KindCanceled, or "" for any other error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrCanceled):
		return KindCanceled
	}
	return ""
}

// FromContext returns why ctx is done, mapped onto the error kinds of this
// package: a scope cause is returned as is, a plain cancellation becomes a
// CanceledError and an expired deadline a TimeoutError. It returns nil while
// ctx is still live.
func FromContext(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	switch {
	case Kind(cause) != "":
		return cause
	case errors.Is(cause, context.DeadlineExceeded):
		return &TimeoutError{Message: "context deadline exceeded"}
	default:
		return &CanceledError{Reason: cause.Error()}
	}
}
