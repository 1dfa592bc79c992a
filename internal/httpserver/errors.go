package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"correspondence/internal/domain"
)

const (
	ErrInvalidID     = "invalid id"
	ErrInvalidActor  = "invalid actor headers"
	ErrInvalidQuery  = "invalid query"
	ErrDependency    = "dependency error"
	ErrNotFound      = "not found"
	ErrSafetyLimit   = "safety limit exceeded"
	ErrInternalError = "internal error"
)

// statusOf maps domain errors onto HTTP status codes. AlreadyApplied is a
// success from the caller's point of view.
func statusOf(err error) int {
	var pe *domain.PreconditionError
	switch {
	case err == nil, errors.Is(err, domain.ErrAlreadyApplied):
		return http.StatusOK
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &pe):
		if pe.Reason == domain.ReasonInvalidWindowSize || pe.Reason == domain.ReasonInvalidPayload {
			return http.StatusUnprocessableEntity
		}
		return http.StatusConflict
	case errors.Is(err, domain.ErrSafetyLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrExternalTransient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	var pe *domain.PreconditionError
	switch {
	case errors.As(err, &pe):
		http.Error(w, string(pe.Reason), status)
	case status == http.StatusNotFound:
		http.Error(w, ErrNotFound, status)
	case status == http.StatusUnprocessableEntity:
		http.Error(w, ErrSafetyLimit, status)
	case status == http.StatusBadGateway:
		slog.Warn(op+" failed", "err", err)
		http.Error(w, ErrDependency, status)
	default:
		slog.Error(op+" failed", "err", err)
		http.Error(w, ErrInternalError, status)
	}
}
