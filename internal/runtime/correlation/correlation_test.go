package correlation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssign(t *testing.T) {
	t.Run("reuses supplied id", func(t *testing.T) {
		assert.Equal(t, "abc-123", Assign("abc-123"))
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		assert.Equal(t, "abc-123", Assign("  abc-123\t"))
	})

	blanks := map[string]string{"empty": "", "spaces": "   ", "control": "\t\n"}
	for name, blank := range blanks {
		t.Run("generates id when "+name, func(t *testing.T) {
			id := Assign(blank)
			require.NotEmpty(t, id)
			_, err := uuid.Parse(id)
			assert.NoError(t, err)
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Empty(t, ID(context.Background()))

	ctx := WithID(context.Background(), "corr-1")
	id, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "corr-1", id)

	_, ok = FromContext(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func TestMiddleware(t *testing.T) {
	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("echoes caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/resources/1", nil)
		req.Header.Set(HeaderName, "caller-id")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, "caller-id", rec.Header().Get(HeaderName))
		assert.Equal(t, "caller-id", seen)
	})

	t.Run("generates id when header blank", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/resources/1", nil)
		req.Header.Set(HeaderName, "   ")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		got := rec.Header().Get(HeaderName)
		require.NotEmpty(t, got)
		assert.Equal(t, got, seen)
	})

	t.Run("request context is not mutated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/resources/1", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		_, ok := FromContext(req.Context())
		assert.False(t, ok)
	})

	t.Run("header present when handler panics", func(t *testing.T) {
		panicking := Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		req := httptest.NewRequest(http.MethodGet, "/resources/1", nil)
		req.Header.Set(HeaderName, "panic-id")
		rec := httptest.NewRecorder()

		assert.Panics(t, func() { panicking.ServeHTTP(rec, req) })
		assert.Equal(t, "panic-id", rec.Header().Get(HeaderName))
		_, ok := FromContext(req.Context())
		assert.False(t, ok)
	})
}
