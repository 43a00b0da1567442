package stompclient

import "context"

type contextIDKey struct{}

// WithContextID tags ctx with an opaque execution-context identifier.
// The ContextPool keys connections on it, giving each logical execution
// context (a request handler, a worker) its own exclusive connection.
// The identifier is explicit by design; there is no ambient fallback.
func WithContextID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextIDKey{}, id)
}

// ContextID returns the execution-context identifier carried by ctx,
// or "" when none was set.
func ContextID(ctx context.Context) string {
	id, _ := ctx.Value(contextIDKey{}).(string)
	return id
}
