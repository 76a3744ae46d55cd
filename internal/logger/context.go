package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// correlationIDKey is the context key for the message correlation ID.
var correlationIDKey = contextKey{}

// WithCorrelationID returns a new context carrying the given message
// correlation ID. The router sets it before invoking an inbound handler so
// agent-side logging can tie records to the originating request.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID extracts the message correlation ID from the context.
// Returns an empty string if none is set.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}
