package ctxutil

import "context"

// Default returns context.Background() for a nil ctx so job hops that lost
// their request context can still carry trace data.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
