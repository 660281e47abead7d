package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-qa/pkg/simpleqa"
)

type errorResponse struct {
	Error        string   `json:"error"`
	OrphanedKeys []string `json:"orphaned_keys,omitempty"`
}

// StatusFor maps a service error onto an HTTP status code
func StatusFor(err error) int {
	var partial *simpleqa.PartialFailureError
	var storage *simpleqa.StorageError

	switch {
	case errors.As(err, &partial):
		return http.StatusInternalServerError
	case errors.As(err, &storage):
		return http.StatusBadGateway
	case errors.Is(err, simpleqa.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, simpleqa.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, simpleqa.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, simpleqa.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, simpleqa.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, simpleqa.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFor(err)
	resp := errorResponse{Error: err.Error()}

	var partial *simpleqa.PartialFailureError
	switch {
	case errors.As(err, &partial):
		resp.OrphanedKeys = partial.OrphanedKeys()
		logger.ErrorContext(r.Context(), "partial failure",
			"request_id", RequestID(r.Context()),
			"error", err,
			"orphaned_keys", resp.OrphanedKeys,
		)
	case status >= http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "request failed",
			"request_id", RequestID(r.Context()),
			"status", status,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	case status == http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`"`)
		resp.Error = "access denied"
	}

	writeJSON(w, r, status, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
