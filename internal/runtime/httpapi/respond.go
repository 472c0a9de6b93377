package httpapi

import (
	"errors"
	"io"
	"net/http"

	errspkg "github.com/drblury/resourceflow/internal/runtime/errors"
	"github.com/drblury/resourceflow/internal/runtime/jsoncodec"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = jsoncodec.Encode(w, body)
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	err := jsoncodec.Decode(io.LimitReader(r.Body, maxBodyBytes), v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jsoncodec.ErrEmptyBody):
		return errspkg.BadRequest("Request body is required")
	default:
		return &errspkg.Error{Kind: errspkg.KindBadRequest, Message: "Malformed JSON request body", Err: err}
	}
}
