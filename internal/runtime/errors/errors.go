package errors

import (
	sterrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrStoreRequired      = sterrors.New("resourceflow: store is required")
	ErrServiceRequired    = sterrors.New("resourceflow: resource service is required")
	ErrPublisherRequired  = sterrors.New("resourceflow: publisher is required")
	ErrSubscriberRequired = sterrors.New("resourceflow: subscriber is required")
	ErrProcessorRequired  = sterrors.New("resourceflow: event processor is required")
	ErrTopicRequired      = sterrors.New("resourceflow: topic is required")
	ErrRouterRequired     = sterrors.New("resourceflow: router is required")
	ErrLoggerRequired     = sterrors.New("resourceflow: logger is required")
)

// Kind is the closed set of failure categories the HTTP boundary knows how to render.
type Kind int

const (
	KindUnexpected Kind = iota
	KindNotFound
	KindBadRequest
	KindConflict
	KindValidation
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation_failed"
	case KindExternal:
		return "external_service_error"
	default:
		return "unexpected"
	}
}

// Title is the value written to the "error" field of an error response.
func (k Kind) Title() string {
	switch k {
	case KindNotFound:
		return "Not Found"
	case KindBadRequest:
		return "Bad Request"
	case KindConflict:
		return "Conflict"
	case KindValidation:
		return "Validation Failed"
	case KindExternal:
		return "External Service Error"
	default:
		return "Internal Server Error"
	}
}

// FieldViolation describes one rejected input field.
type FieldViolation struct {
	Field         string `json:"field"`
	Message       string `json:"message"`
	RejectedValue any    `json:"rejectedValue"`
}

// Error is the typed error returned by services and the outbound client.
type Error struct {
	Kind    Kind
	Message string
	Details []FieldViolation

	// UpstreamStatus is the status reported by an external service, 0 when unknown.
	UpstreamStatus int
	// Timeout marks external calls that ran past their deadline.
	Timeout bool

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status resolves the HTTP status code for the error.
func (e *Error) Status() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest, KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindExternal:
		if validStatus(e.UpstreamStatus) {
			return e.UpstreamStatus
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func validStatus(code int) bool {
	return code >= 100 && code <= 599
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a validation failure carrying the supplied field violations.
func Validation(details ...FieldViolation) *Error {
	return &Error{Kind: KindValidation, Message: "Request validation failed", Details: details}
}

// External wraps a failed call to another service. status is the upstream
// status code or 0 when the call never produced one.
func External(status int, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:           KindExternal,
		Message:        fmt.Sprintf(format, args...),
		UpstreamStatus: status,
		Err:            cause,
	}
}

// Unexpected wraps err so it is rendered as an internal error.
func Unexpected(err error) *Error {
	return &Error{Kind: KindUnexpected, Message: "An unexpected error occurred", Err: err}
}

// KindOf reports the category of err. Errors that are not *Error are unexpected.
func KindOf(err error) Kind {
	var e *Error
	if sterrors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// As extracts the typed error from err, wrapping anything untyped as unexpected.
func As(err error) *Error {
	var e *Error
	if sterrors.As(err, &e) {
		return e
	}
	return Unexpected(err)
}

func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }
func IsConflict(err error) bool { return err != nil && KindOf(err) == KindConflict }
