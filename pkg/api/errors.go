package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/dcm/pkg/services"
)

// errorBody is the shape every HTTP error response carries (spec §7).
type errorBody struct {
	Error   string              `json:"error"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

// mapServiceError maps a service-layer error to an HTTP status + body.
// RateLimited never reaches here — the rate-limit middleware returns 429
// directly, before a request reaches a service.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{
			Error:   "validation_error",
			Message: validErr.Error(),
			Details: map[string][]string{validErr.Field: {validErr.Message}},
		})
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, errorBody{Error: "not_found", Message: "resource not found"})
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, errorBody{Error: "conflict", Message: "resource already exists"})
	}
	if errors.Is(err, services.ErrConflict) {
		return echo.NewHTTPError(http.StatusConflict, errorBody{Error: "conflict", Message: err.Error()})
	}
	if errors.Is(err, services.ErrConcurrentModification) {
		return echo.NewHTTPError(http.StatusConflict, errorBody{Error: "conflict", Message: "concurrent modification detected"})
	}
	if errors.Is(err, services.ErrUnauthorized) {
		return echo.NewHTTPError(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing or invalid token"})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, errorBody{Error: "timeout", Message: "operation deadline exceeded"})
	}

	slog.Error("unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "internal server error"})
}
