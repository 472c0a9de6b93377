// Package correlation assigns and carries the per-request correlation id.
package correlation

import (
	"context"
	"net/http"
	"strings"

	idspkg "github.com/drblury/resourceflow/internal/runtime/ids"
)

// HeaderName is the HTTP header carrying the correlation id in both directions.
const HeaderName = "X-Correlation-Id"

// MetadataKey is the message metadata key carrying the correlation id.
const MetadataKey = "correlation_id"

type ctxKey struct{}

// Assign returns the trimmed header value when it is not blank and a new id otherwise.
func Assign(headerValue string) string {
	if id := strings.TrimSpace(headerValue); id != "" {
		return id
	}
	return idspkg.NewCorrelationID()
}

// WithID returns a copy of ctx carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the correlation id stored in ctx.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// ID returns the correlation id stored in ctx or an empty string.
func ID(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id
}

// Middleware assigns the correlation id of the request, echoes it in the
// response header and exposes it to downstream handlers through the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Assign(r.Header.Get(HeaderName))
		w.Header().Set(HeaderName, id)
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}
