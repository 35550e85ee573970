package async

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
)

// Result is the outcome of a detached handler
type Result[T any] struct {
	Value T
	Err   error
}

// Detach runs handler in a new goroutine whose context ignores the caller's
// cancellation but keeps its values, including the logger. The returned
// channel is buffered so the goroutine finishes even if nobody receives.
// A panic in the handler is reported as an error.
func Detach[T any](ctx context.Context, handler func(ctx context.Context) (T, error)) <-chan Result[T] {
	bgCtx := context.WithoutCancel(ctx)
	ch := make(chan Result[T], 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.From(bgCtx).Error("panic in detached handler", "panic", r)
				ch <- Result[T]{Err: goerr.New("panic in detached handler", goerr.V("panic", r))}
			}
		}()

		v, err := handler(bgCtx)
		ch <- Result[T]{Value: v, Err: err}
	}()

	return ch
}

// Wait receives the result of a detached handler, or returns ctx.Err() when
// the caller gives up first. The handler keeps running in that case and its
// result is discarded.
func Wait[T any](ctx context.Context, ch <-chan Result[T]) (T, error) {
	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		if ctx.Err() != nil {
			logging.From(ctx).Debug("caller abandoned detached work", "error", ctx.Err())
		}
		return zero, ctx.Err()
	}
}
