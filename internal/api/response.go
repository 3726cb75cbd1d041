package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/daykid555/criterion-mark-sub000/internal/custody"
	"github.com/daykid555/criterion-mark-sub000/internal/lifecycle"
	"github.com/daykid555/criterion-mark-sub000/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// handleError maps domain errors onto HTTP status codes. Anything
// unrecognized is a 500 and gets logged; domain errors carry their own
// message to the client.
func handleError(w http.ResponseWriter, err error) {
	var invalid *lifecycle.InvalidTransitionError
	switch {
	case errors.Is(err, model.ErrValidation):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		jsonError(w, http.StatusNotFound, "not found")
	case errors.As(err, &invalid):
		jsonError(w, http.StatusConflict, invalid.Error())
	case errors.Is(err, custody.ErrMismatch):
		jsonError(w, http.StatusConflict, "confirmation code mismatch")
	case errors.Is(err, lifecycle.ErrRoleNotAllowed):
		jsonError(w, http.StatusForbidden, "role not allowed for this action")
	default:
		slog.Error("request failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
