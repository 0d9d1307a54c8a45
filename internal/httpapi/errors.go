package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"modelhub/internal/hub"
	"modelhub/internal/serve"
	"modelhub/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps well-known hub and serve errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case serve.IsConfiguration(err):
		return http.StatusBadRequest
	case serve.IsModelNotFound(err):
		return http.StatusNotFound
	case serve.IsServeFailed(err):
		return http.StatusBadGateway
	case hub.IsBusy(err):
		return http.StatusConflict
	case hub.IsNotServing(err):
		return http.StatusNotFound
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// outcomeForError labels an error for the serve outcome counter.
func outcomeForError(err error) string {
	switch {
	case serve.IsConfiguration(err):
		return "configuration"
	case serve.IsModelNotFound(err):
		return "model_not_found"
	case serve.IsServeFailed(err):
		return "serve_failed"
	case hub.IsBusy(err):
		return "busy"
	}
	return "error"
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
