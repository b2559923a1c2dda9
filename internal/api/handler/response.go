package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// RateLimitResponse is the fixed body of a 429 answer.
type RateLimitResponse struct {
	Detail string `json:"detail"`
}

// RateLimited writes the 429 body. Headers must be set by the caller.
func RateLimited(w http.ResponseWriter) {
	JSON(w, http.StatusTooManyRequests, RateLimitResponse{Detail: "Rate limit exceeded"})
}

// handleServiceError maps domain errors onto HTTP statuses.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := StatusFor(err)
	switch {
	case errors.Is(err, repository.ErrMalformedUpstreamResponse):
		slog.ErrorContext(r.Context(), "upstream returned malformed data",
			"path", r.URL.Path,
			"error", err,
		)
	case status == http.StatusInternalServerError:
		slog.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
		)
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		slog.WarnContext(r.Context(), "upstream failure",
			"path", r.URL.Path,
			"error", err,
		)
	}
	Error(w, status, message)
}

// StatusFor returns the status code and client message for err.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrMissingAPIKey):
		return http.StatusUnauthorized, "API key required"
	case errors.Is(err, repository.ErrInvalidAPIKey):
		return http.StatusForbidden, "Invalid API key"
	case errors.Is(err, repository.ErrFormatNotFound):
		return http.StatusNotFound, "Format ID not found"
	case errors.Is(err, repository.ErrNoPlayableFormat):
		return http.StatusNotFound, "No suitable format found"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "Media not found"
	case errors.Is(err, repository.ErrHandleNotFound):
		return http.StatusNotFound, "Stream not found"
	case errors.Is(err, repository.ErrHandleExpired):
		return http.StatusGone, "Stream expired"
	case errors.Is(err, repository.ErrInvalidIndex):
		return http.StatusBadRequest, "Invalid index"
	case errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest, invalidInputMessage(err)
	case errors.Is(err, repository.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "Upstream unavailable"
	case errors.Is(err, repository.ErrBusy):
		return http.StatusServiceUnavailable, "Server busy, try again later"
	default:
		return http.StatusInternalServerError, "An unexpected error occurred"
	}
}

// invalidInputMessage exposes the validation detail wrapped around
// ErrInvalidInput ("invalid input: url is required" -> "url is required").
func invalidInputMessage(err error) string {
	if detail, ok := strings.CutPrefix(err.Error(), repository.ErrInvalidInput.Error()+": "); ok && detail != "" {
		return detail
	}
	return "Invalid request"
}
