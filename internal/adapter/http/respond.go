package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn.Printf("encode response: %v", err)
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var dispatchErr *domain.DispatchError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotAvailable):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrJobRunning):
		return http.StatusConflict
	case errors.As(err, &dispatchErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError answers with {"error": ...}. Unmapped errors are logged and
// reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		body.Field = validationErr.Field
	case status == http.StatusNotFound && !errors.Is(err, domain.ErrNotAvailable):
		body.Error = "not found"
	case status == http.StatusInternalServerError:
		logger.Error.Printf("%s %s: %v", r.Method, logger.SanitizeForLog(r.URL.Path), err)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}
