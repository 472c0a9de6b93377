package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/resourceflow/internal/runtime/correlation"
	"github.com/drblury/resourceflow/internal/runtime/events"
	"github.com/drblury/resourceflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
	"github.com/drblury/resourceflow/internal/runtime/outbound"
	"github.com/drblury/resourceflow/internal/runtime/resource"
	"github.com/drblury/resourceflow/internal/runtime/store/memory"
	"github.com/drblury/resourceflow/transport/transporttest"
)

func testLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestRouter(t *testing.T, mutate ...func(*Deps)) http.Handler {
	t.Helper()
	svc, err := resource.NewService(memory.New())
	require.NoError(t, err)
	deps := Deps{ServiceName: "resourceflow-test", Resources: svc, Logger: testLogger()}
	for _, m := range mutate {
		m(&deps)
	}
	return NewRouter(deps)
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestResourceLifecycle(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/resources", `{"name":"A","description":"first"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/resources/1", rec.Header().Get("Location"))
	var created resource.Entity
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, resource.StatusActive, created.Status)

	rec = do(t, h, http.MethodPost, "/resources", `{"name":"A"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decodeError(t, rec)
	assert.Equal(t, "Conflict", conflict.Error)
	assert.Equal(t, "Resource with name 'A' already exists", conflict.Message)

	rec = do(t, h, http.MethodGet, "/resources/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got resource.Entity
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "A", got.Name)

	rec = do(t, h, http.MethodGet, "/resources/999", "", correlation.HeaderName, "abc-123")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(correlation.HeaderName))
	notFound := decodeError(t, rec)
	assert.Equal(t, 404, notFound.Status)
	assert.Equal(t, "Not Found", notFound.Error)
	assert.Equal(t, "abc-123", notFound.CorrelationID)
	assert.Equal(t, "/resources/999", notFound.Path)
	assert.NotNil(t, notFound.Details)
	_, err := time.Parse(time.RFC3339Nano, notFound.Timestamp)
	assert.NoError(t, err)

	rec = do(t, h, http.MethodPut, "/resources/1", `{"name":"B","description":"renamed","status":"ARCHIVED"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "B", got.Name)
	assert.Equal(t, "ARCHIVED", got.Status)

	rec = do(t, h, http.MethodDelete, "/resources/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/resources/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCorrelationHeaderAssigned(t *testing.T) {
	h := newTestRouter(t)

	for _, header := range []string{"", "   "} {
		rec := do(t, h, http.MethodGet, "/resources/42", "", correlation.HeaderName, header)
		id := rec.Header().Get(correlation.HeaderName)
		_, err := uuid.Parse(id)
		require.NoError(t, err, "blank header should yield a generated id")
		assert.Equal(t, id, decodeError(t, rec).CorrelationID)
	}

	rec := do(t, h, http.MethodGet, "/healthz", "", correlation.HeaderName, "  padded  ")
	assert.Equal(t, "padded", rec.Header().Get(correlation.HeaderName))
}

func TestValidationFailure(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/resources", `{"name":"","status":"`+strings.Repeat("X", 40)+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "Validation Failed", body.Error)
	require.Len(t, body.Details, 2)

	byField := map[string]string{}
	for _, d := range body.Details {
		byField[d.Field] = d.Message
	}
	assert.Equal(t, "must not be blank", byField["name"])
	assert.Equal(t, "size must be at most 32", byField["status"])
}

func TestUpdateValidatesBeforeLookup(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPut, "/resources/999", `{"name":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation Failed", decodeError(t, rec).Error)

	rec = do(t, h, http.MethodPut, "/resources/999", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedRequests(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name    string
		method  string
		target  string
		body    string
		message string
	}{
		{"malformed json", http.MethodPost, "/resources", `{"name":`, "Malformed JSON request body"},
		{"empty body", http.MethodPost, "/resources", "", "Request body is required"},
		{"non numeric id", http.MethodGet, "/resources/abc", "", "Invalid resource id 'abc'"},
		{"blank search", http.MethodGet, "/resources/search?q=%20", "", "Search term cannot be empty"},
		{"bad sort", http.MethodGet, "/resources?sort=secret", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, "Bad Request", body.Error)
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Message)
			}
		})
	}
}

func TestListingRoutes(t *testing.T) {
	h := newTestRouter(t)
	for _, body := range []string{
		`{"name":"alpha","description":"first"}`,
		`{"name":"beta","status":"DRAFT"}`,
		`{"name":"gamma","description":"alphabet"}`,
	} {
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/resources", body).Code)
	}

	var page resource.Page[resource.Entity]

	rec := do(t, h, http.MethodGet, "/resources?size=2&sort=name,desc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Content, 2)
	assert.Equal(t, "gamma", page.Content[0].Name)

	rec = do(t, h, http.MethodGet, "/resources/search?q=alpha", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, int64(2), page.TotalElements)

	rec = do(t, h, http.MethodGet, "/resources/status/DRAFT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Content, 1)
	assert.Equal(t, "beta", page.Content[0].Name)
}

type panickingResources struct {
	ResourceService
}

func (panickingResources) FindByID(context.Context, int64) (resource.Entity, error) {
	panic("db handle is nil: secret-dsn")
}

type failingResources struct {
	ResourceService
}

func (failingResources) FindByID(context.Context, int64) (resource.Entity, error) {
	return resource.Entity{}, errors.New("pq: password authentication failed for user admin")
}

func TestUnexpectedErrorsAreSanitized(t *testing.T) {
	for name, svc := range map[string]ResourceService{
		"panic": panickingResources{},
		"error": failingResources{},
	} {
		t.Run(name, func(t *testing.T) {
			h := newTestRouter(t, func(d *Deps) { d.Resources = svc })
			rec := do(t, h, http.MethodGet, "/resources/1", "")
			require.Equal(t, http.StatusInternalServerError, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, "Internal Server Error", body.Error)
			assert.Equal(t, "An unexpected error occurred", body.Message)
			assert.NotContains(t, rec.Body.String(), "secret-dsn")
			assert.NotContains(t, rec.Body.String(), "password")
			assert.NotEmpty(t, body.CorrelationID)
		})
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "/nope", decodeError(t, rec).Path)

	rec = do(t, h, http.MethodPatch, "/resources/1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "PATCH")
}

func TestPublishEvent(t *testing.T) {
	pub := &transporttest.Publisher{}
	producer, err := events.NewProducer(pub, "resource-events", "resource-events-dlq")
	require.NoError(t, err)
	h := newTestRouter(t, func(d *Deps) { d.Events = producer })

	rec := do(t, h, http.MethodPost, "/events", `{"type":"resource.touched","payload":"{}"}`, correlation.HeaderName, "evt-corr")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted eventAccepted
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.NotEmpty(t, accepted.ID)

	rec = do(t, h, http.MethodPost, "/events", `{"id":"given-1","type":"resource.touched"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "given-1", accepted.ID)

	rec = do(t, h, http.MethodPost, "/events", `{"payload":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "type", decodeError(t, rec).Details[0].Field)

	require.NoError(t, producer.Close(context.Background()))
	msgs := pub.Messages["resource-events"]
	require.Len(t, msgs, 2)
	uuids := []string{msgs[0].UUID, msgs[1].UUID}
	assert.Contains(t, uuids, "given-1")
	for _, msg := range msgs {
		if msg.UUID != "given-1" {
			assert.Equal(t, "evt-corr", msg.Metadata.Get(correlation.MetadataKey))
		}
	}
}

func TestPublishEventIDLength(t *testing.T) {
	pub := &transporttest.Publisher{}
	producer, err := events.NewProducer(pub, "resource-events", "resource-events-dlq")
	require.NoError(t, err)
	h := newTestRouter(t, func(d *Deps) { d.Events = producer })

	longest := strings.Repeat("a", events.MaxIDLength)
	rec := do(t, h, http.MethodPost, "/events", `{"id":"`+longest+`","type":"resource.touched"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodPost, "/events", `{"id":"`+longest+`b","type":"resource.touched"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id", decodeError(t, rec).Details[0].Field)

	require.NoError(t, producer.Close(context.Background()))
}

func TestExternalProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, "maintenance")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"echo":"`+r.Header.Get(correlation.HeaderName)+`","q":"`+r.URL.RawQuery+`"}`)
	}))
	defer upstream.Close()

	client := outbound.NewClient(outbound.WithBaseURL(upstream.URL))
	h := newTestRouter(t, func(d *Deps) { d.External = client })

	rec := do(t, h, http.MethodGet, "/external/items?limit=2", "", correlation.HeaderName, "ext-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"echo":"ext-1","q":"limit=2"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/external/missing", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "External Service Error", decodeError(t, rec).Error)
}

func TestHealthAndReadiness(t *testing.T) {
	healthy := newTestRouter(t, func(d *Deps) {
		d.Readiness = []ReadinessCheck{{Name: "store", Check: func(context.Context) error { return nil }}}
		d.DLQStats = func() any { return map[string]int{"total": 3} }
	})
	assert.Equal(t, http.StatusOK, do(t, healthy, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, healthy, http.MethodGet, "/readyz", "").Code)
	assert.JSONEq(t, `{"total":3}`, do(t, healthy, http.MethodGet, "/dlq/stats", "").Body.String())

	degraded := newTestRouter(t, func(d *Deps) {
		d.Readiness = []ReadinessCheck{{Name: "store", Check: func(context.Context) error { return errors.New("down") }}}
	})
	rec := do(t, degraded, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"not_ready"`)
	assert.Contains(t, rec.Body.String(), `"down"`)
}

func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	h := newTestRouter(t, func(d *Deps) { d.Metrics = metrics })

	do(t, h, http.MethodGet, "/resources/7", "")
	do(t, h, http.MethodGet, "/resources/8", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requests.WithLabelValues(http.MethodGet, "/resources/{id}", "404")))

	again, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, metrics.requests, again.requests)
}

func TestServeListenerShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeListener(ctx, ln, time.Second, newTestRouter(t), testLogger())
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
