package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	errspkg "github.com/drblury/resourceflow/internal/runtime/errors"
	"github.com/drblury/resourceflow/internal/runtime/events"
	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
	"github.com/drblury/resourceflow/internal/runtime/resource"
)

type handlers struct {
	deps Deps
	log  loggingpkg.ServiceLogger
}

type resourceRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
	Status      string `json:"status" validate:"omitempty,max=32"`
}

func (req resourceRequest) input() resource.Input {
	return resource.Input{Name: req.Name, Description: req.Description, Status: req.Status}
}

type eventRequest struct {
	ID      string `json:"id" validate:"max=128"`
	Type    string `json:"type" validate:"required,max=255"`
	Payload string `json:"payload"`
}

type eventAccepted struct {
	ID string `json:"id"`
}

// wrap adapts an error-returning handler; any error is written by WriteError.
func (h *handlers) wrap(fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			WriteError(w, r, h.log, err)
		}
	}
}

func (h *handlers) listResources(w http.ResponseWriter, r *http.Request) error {
	page, err := pageRequest(r)
	if err != nil {
		return err
	}
	result, err := h.deps.Resources.FindAll(r.Context(), page)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, result)
	return nil
}

func (h *handlers) searchResources(w http.ResponseWriter, r *http.Request) error {
	page, err := pageRequest(r)
	if err != nil {
		return err
	}
	result, err := h.deps.Resources.Search(r.Context(), r.URL.Query().Get("q"), page)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, result)
	return nil
}

func (h *handlers) resourcesByStatus(w http.ResponseWriter, r *http.Request) error {
	page, err := pageRequest(r)
	if err != nil {
		return err
	}
	result, err := h.deps.Resources.FindByStatus(r.Context(), chi.URLParam(r, "status"), page)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, result)
	return nil
}

func (h *handlers) getResource(w http.ResponseWriter, r *http.Request) error {
	id, err := resourceID(r)
	if err != nil {
		return err
	}
	entity, err := h.deps.Resources.FindByID(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, entity)
	return nil
}

func (h *handlers) createResource(w http.ResponseWriter, r *http.Request) error {
	var req resourceRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	created, err := h.deps.Resources.Create(r.Context(), req.input())
	if err != nil {
		return err
	}
	w.Header().Set("Location", "/resources/"+strconv.FormatInt(created.ID, 10))
	writeJSON(w, http.StatusCreated, created)
	return nil
}

func (h *handlers) updateResource(w http.ResponseWriter, r *http.Request) error {
	id, err := resourceID(r)
	if err != nil {
		return err
	}
	var req resourceRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	updated, err := h.deps.Resources.Update(r.Context(), id, req.input())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, updated)
	return nil
}

func (h *handlers) deleteResource(w http.ResponseWriter, r *http.Request) error {
	id, err := resourceID(r)
	if err != nil {
		return err
	}
	if err := h.deps.Resources.Delete(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *handlers) publishEvent(w http.ResponseWriter, r *http.Request) error {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	pending := h.deps.Events.Publish(r.Context(), events.Event{
		ID:      strings.TrimSpace(req.ID),
		Type:    req.Type,
		Payload: req.Payload,
	})
	writeJSON(w, http.StatusAccepted, eventAccepted{ID: pending.ID()})
	return nil
}

func (h *handlers) proxyExternal(w http.ResponseWriter, r *http.Request) error {
	target := chi.URLParam(r, "*")
	if strings.Contains(target, "://") {
		return errspkg.BadRequest("External path must be relative")
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	resp, err := h.deps.External.Get(r.Context(), target)
	if err != nil {
		return err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
	return nil
}

func (h *handlers) snapshot(fn func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, fn())
	}
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": h.deps.ServiceName,
		"status":  "ok",
	})
}

type checkResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	results := make([]checkResult, 0, len(h.deps.Readiness))
	ready := true

	for _, check := range h.deps.Readiness {
		start := time.Now()
		err := check.Check(r.Context())
		result := checkResult{Name: check.Name, Status: "ok", DurationMs: time.Since(start).Milliseconds()}
		if err != nil {
			ready = false
			result.Status = "fail"
			result.Error = err.Error()
		}
		results = append(results, result)
	}

	status, state := http.StatusOK, "ready"
	if !ready {
		status, state = http.StatusServiceUnavailable, "not_ready"
	}
	writeJSON(w, status, map[string]any{
		"service": h.deps.ServiceName,
		"status":  state,
		"checks":  results,
	})
}

func resourceID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errspkg.BadRequest("Invalid resource id '%s'", raw)
	}
	return id, nil
}

func pageRequest(r *http.Request) (resource.PageRequest, error) {
	q := r.URL.Query()
	return resource.ParsePageRequest(q.Get("page"), q.Get("size"), q.Get("sort"))
}

func notFoundRoute(r *http.Request) error {
	return errspkg.NotFound("No route for %s %s", r.Method, r.URL.Path)
}

func methodNotAllowed(r *http.Request) error {
	return errspkg.BadRequest("Method %s is not supported for %s", r.Method, r.URL.Path)
}
