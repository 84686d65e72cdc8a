package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cobranca/internal/gateway"
	"cobranca/internal/repository"
	"cobranca/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	status, code := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		Retryable: retryable(err),
	})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes
// and a stable machine-readable code.
func mapErrorToHTTPStatus(err error) (int, string) {
	switch {
	// Divergence first: it may wrap any other error.
	case errors.Is(err, service.ErrIrrecoverableDivergence):
		return http.StatusInternalServerError, "divergence"

	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"

	// Malformed input - Bad Request
	case errors.Is(err, service.ErrInvalidChargeID),
		errors.Is(err, service.ErrInvalidPassengerID),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidDueDate),
		errors.Is(err, service.ErrInvalidPaymentDate),
		errors.Is(err, service.ErrInvalidPaymentType),
		errors.Is(err, service.ErrInvalidOrigin):
		return http.StatusBadRequest, "invalid_request"

	// Business rule errors
	case service.IsValidationError(err):
		return http.StatusUnprocessableEntity, "validation_error"

	case errors.Is(err, service.ErrChargeBusy):
		return http.StatusConflict, "charge_busy"

	case errors.Is(err, gateway.ErrRateLimited):
		return http.StatusTooManyRequests, "gateway_rate_limited"

	case errors.Is(err, gateway.ErrRejected):
		return http.StatusUnprocessableEntity, "gateway_rejected"

	case errors.Is(err, service.ErrGatewayCommunicationFailed):
		return http.StatusBadGateway, "gateway_unavailable"

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "timeout"

	// Default to internal server error
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// retryable tells clients whether repeating the same request is safe and useful.
func retryable(err error) bool {
	if errors.Is(err, service.ErrIrrecoverableDivergence) {
		return false
	}
	return errors.Is(err, service.ErrChargeBusy) ||
		gateway.IsRetryable(err) ||
		errors.Is(err, context.DeadlineExceeded)
}
