package sse

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// ErrStop can be returned by a Consume handler to end consumption without
// reporting an error.
var ErrStop = errors.New("stop consuming event stream")

const readChunkSize = 4096

// Consume reads r in chunks and hands every dispatched event to handle, in
// stream order. It returns when the reader is exhausted, when handle returns
// an error, or when ctx is done (with the context's cancellation cause).
func Consume(ctx context.Context, r io.Reader, handle func(Event) error) error {
	var handleErr error
	p := NewParser(func(ev Event) {
		if handleErr != nil {
			return
		}
		handleErr = handle(ev)
	})

	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}

		n, err := r.Read(buf)
		if n > 0 {
			p.Feed(buf[:n])
		}
		if handleErr != nil {
			if errors.Is(handleErr, ErrStop) {
				return nil
			}
			return handleErr
		}

		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			if err == io.EOF {
				p.Flush()
				if handleErr != nil && !errors.Is(handleErr, ErrStop) {
					return handleErr
				}
				return nil
			}
			return errors.Wrap(err, "reading event stream")
		}
	}
}
