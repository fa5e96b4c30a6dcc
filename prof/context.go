package prof

import "context"

// ctxKey is the key type for storing a Thread in context.
type ctxKey struct{}

// WithThread attaches a Thread to ctx. The context must stay on the
// goroutine that owns the Thread.
func WithThread(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// ThreadFromContext extracts the Thread from ctx. If none is attached it
// returns nil, which is a valid disabled Thread.
func ThreadFromContext(ctx context.Context) *Thread {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(ctxKey{}).(*Thread)
	return t
}
