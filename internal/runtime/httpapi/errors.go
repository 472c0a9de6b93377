package httpapi

import (
	"net/http"
	"time"

	"github.com/drblury/resourceflow/internal/runtime/correlation"
	errspkg "github.com/drblury/resourceflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
)

// ErrorBody is the JSON document written for every failed request.
type ErrorBody struct {
	Timestamp     string                   `json:"timestamp"`
	Status        int                      `json:"status"`
	Error         string                   `json:"error"`
	Message       string                   `json:"message"`
	CorrelationID string                   `json:"correlationId"`
	Path          string                   `json:"path"`
	Details       []errspkg.FieldViolation `json:"details"`
}

// NewErrorBody maps err onto its response body. Errors outside the taxonomy
// are reported as unexpected with a generic message.
func NewErrorBody(r *http.Request, err error, now time.Time) ErrorBody {
	typed := errspkg.As(err)

	message := typed.Message
	if typed.Kind == errspkg.KindUnexpected {
		message = errspkg.Unexpected(nil).Message
	}
	details := typed.Details
	if details == nil {
		details = []errspkg.FieldViolation{}
	}

	return ErrorBody{
		Timestamp:     now.UTC().Format(time.RFC3339Nano),
		Status:        typed.Status(),
		Error:         typed.Kind.Title(),
		Message:       message,
		CorrelationID: correlation.ID(r.Context()),
		Path:          r.URL.Path,
		Details:       details,
	}
}

// WriteError logs err and writes its ErrorBody. Client errors are logged at
// info level, upstream and internal failures at error level.
func WriteError(w http.ResponseWriter, r *http.Request, log loggingpkg.ServiceLogger, err error) {
	body := NewErrorBody(r, err, time.Now())
	if body.CorrelationID == "" {
		body.CorrelationID = w.Header().Get(correlation.HeaderName)
	}

	if log != nil {
		fields := loggingpkg.LogFields{
			"status": body.Status,
			"kind":   errspkg.KindOf(err).String(),
			"path":   body.Path,
			"method": r.Method,
		}
		log = loggingpkg.FromContext(r.Context(), log)
		switch errspkg.KindOf(err) {
		case errspkg.KindUnexpected, errspkg.KindExternal:
			log.Error("Request failed", err, fields)
		default:
			fields["message"] = body.Message
			log.Info("Request rejected", fields)
		}
	}

	writeJSON(w, body.Status, body)
}
