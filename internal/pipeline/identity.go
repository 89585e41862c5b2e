package pipeline

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// UnknownClient is the identity used when no forwarding header is present.
const UnknownClient = "unknown"

// ClientIdentity derives the rate-limit key for r: the first X-Forwarded-For
// entry, else X-Real-IP, else UnknownClient. Best effort only; the headers
// are set by the fronting proxy.
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if id := strings.TrimSpace(first); id != "" {
			return id
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	return UnknownClient
}

type ctxKey int

const requestIDKey ctxKey = iota

// ContextWithRequestID attaches a request ID for logs and security events.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID set by ContextWithRequestID,
// or a fresh one.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
