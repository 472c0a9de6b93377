// Package httpapi exposes the resource service and the event producer over
// HTTP and renders every failure as a uniform error body.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/drblury/resourceflow/internal/runtime/correlation"
	"github.com/drblury/resourceflow/internal/runtime/events"
	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
	"github.com/drblury/resourceflow/internal/runtime/outbound"
	"github.com/drblury/resourceflow/internal/runtime/resource"
)

// ResourceService is the resource use-case surface the API drives.
type ResourceService interface {
	FindByID(ctx context.Context, id int64) (resource.Entity, error)
	FindAll(ctx context.Context, page resource.PageRequest) (resource.Page[resource.Entity], error)
	FindByStatus(ctx context.Context, status string, page resource.PageRequest) (resource.Page[resource.Entity], error)
	Search(ctx context.Context, term string, page resource.PageRequest) (resource.Page[resource.Entity], error)
	Create(ctx context.Context, in resource.Input) (resource.Entity, error)
	Update(ctx context.Context, id int64, in resource.Input) (resource.Entity, error)
	Delete(ctx context.Context, id int64) error
}

// EventPublisher accepts events for asynchronous publishing.
type EventPublisher interface {
	Publish(ctx context.Context, evt events.Event) *events.Pending
}

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(context.Context) error
}

// Deps are the collaborators of the router. Resources and Logger are required;
// the routes backed by any other nil field are not mounted.
type Deps struct {
	ServiceName string
	Resources   ResourceService
	Events      EventPublisher
	External    *outbound.Client
	Readiness   []ReadinessCheck
	Logger      loggingpkg.ServiceLogger

	// DLQStats and HandlerStats produce the documents served at /dlq/stats
	// and /handlers.
	DLQStats     func() any
	HandlerStats func() any

	// MetricsHandler serves /metrics, usually promhttp.Handler().
	Metrics        *Metrics
	MetricsHandler http.Handler
}

// NewRouter wires middleware and routes.
func NewRouter(d Deps) http.Handler {
	h := &handlers{deps: d, log: d.Logger}

	r := chi.NewRouter()
	r.Use(correlation.Middleware)
	r.Use(traceRequests)
	r.Use(logRequests(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.middleware)
	}
	r.Use(recoverPanics(d.Logger))

	r.NotFound(h.wrap(func(w http.ResponseWriter, r *http.Request) error {
		return notFoundRoute(r)
	}))
	r.MethodNotAllowed(h.wrap(func(w http.ResponseWriter, r *http.Request) error {
		return methodNotAllowed(r)
	}))

	r.Route("/resources", func(r chi.Router) {
		r.Get("/", h.wrap(h.listResources))
		r.Post("/", h.wrap(h.createResource))
		r.Get("/search", h.wrap(h.searchResources))
		r.Get("/status/{status}", h.wrap(h.resourcesByStatus))
		r.Get("/{id}", h.wrap(h.getResource))
		r.Put("/{id}", h.wrap(h.updateResource))
		r.Delete("/{id}", h.wrap(h.deleteResource))
	})

	if d.Events != nil {
		r.Post("/events", h.wrap(h.publishEvent))
	}
	if d.External != nil {
		r.Get("/external/*", h.wrap(h.proxyExternal))
	}
	if d.DLQStats != nil {
		r.Get("/dlq/stats", h.snapshot(d.DLQStats))
	}
	if d.HandlerStats != nil {
		r.Get("/handlers", h.snapshot(d.HandlerStats))
	}
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)

	return r
}
