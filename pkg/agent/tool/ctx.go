package tool

import "context"

// UpdateFunc reports progress while a tool runs, such as which document is
// being consulted. The CLI prints these lines as the agent works.
type UpdateFunc func(ctx context.Context, message string)

type contextKey struct{}

// WithUpdate returns a new context that carries the given UpdateFunc.
func WithUpdate(ctx context.Context, fn UpdateFunc) context.Context {
	return context.WithValue(ctx, contextKey{}, fn)
}

// Update calls the UpdateFunc stored in ctx. Without one it does nothing.
func Update(ctx context.Context, message string) {
	if fn, ok := ctx.Value(contextKey{}).(UpdateFunc); ok && fn != nil {
		fn(ctx, message)
	}
}
