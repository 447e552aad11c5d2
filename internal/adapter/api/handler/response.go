package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/V4T54L/audit-trail/internal/domain"
)

func respondWithJSON(w http.ResponseWriter, logger *slog.Logger, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError maps domain errors onto status codes.
func respondWithError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrTenantRequired):
		code = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrSearchUnavailable):
		code = http.StatusServiceUnavailable
	}

	msg := http.StatusText(code)
	if code == http.StatusBadRequest {
		msg = err.Error()
	}
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "status", code)
	}
	respondWithJSON(w, logger, code, map[string]string{"error": msg})
}
