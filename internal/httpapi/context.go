package httpapi

import "context"

type contextKey string

const requestIDKey contextKey = "request_id"

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// requestIDFromContext returns the correlation ID set by
// requestIDMiddleware, or "" if none is present (e.g. in tests that
// call handlers directly without going through the router).
func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
