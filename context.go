package ledgerAuth

import "context"

type requestIDContextKey struct{}

// WithRequestID attaches a correlation ID to ctx. The HTTP backend client
// sends it as X-Request-ID and audit events record it. Without one, each
// backend request gets a random UUID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the ID attached by [WithRequestID], or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
