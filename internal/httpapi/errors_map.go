package httpapi

import (
	"errors"
	"net/http"

	"github.com/meridianpay/gatewaycore/internal/domain/models"
)

// classifyDomainError maps the sentinel domain errors to an HTTP status and
// a stable machine-readable code; validation and not-found errors surface
// directly to the caller.
func classifyDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrTransactionNotFound),
		errors.Is(err, models.ErrCustomerNotFound),
		errors.Is(err, models.ErrPaymentMethodNotFound),
		errors.Is(err, models.ErrSubscriptionNotFound),
		errors.Is(err, models.ErrPlanNotFound):
		return http.StatusNotFound, "NOT_FOUND"

	case errors.Is(err, models.ErrIdempotencyConflict):
		return http.StatusConflict, "IDEMPOTENCY_CONFLICT"

	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidCurrency),
		errors.Is(err, models.ErrMissingRequiredField),
		errors.Is(err, models.ErrInvalidCardNumber),
		errors.Is(err, models.ErrInvalidCVV),
		errors.Is(err, models.ErrInvalidExpiry),
		errors.Is(err, models.ErrInvalidTransactionAmount),
		errors.Is(err, models.ErrInvalidBillingInterval):
		return http.StatusBadRequest, "VALIDATION"

	case errors.Is(err, models.ErrTransactionCannotBeCaptured),
		errors.Is(err, models.ErrTransactionCannotBeVoided),
		errors.Is(err, models.ErrTransactionCannotBeRefunded),
		errors.Is(err, models.ErrSubscriptionNotActive),
		errors.Is(err, models.ErrSubscriptionAlreadyCancelled),
		errors.Is(err, models.ErrPlanInactive),
		errors.Is(err, models.ErrPaymentMethodExpired),
		errors.Is(err, models.ErrPaymentMethodInactive):
		return http.StatusConflict, "INVALID_STATE"

	case errors.Is(err, models.ErrWebhookSignatureInvalid):
		return http.StatusUnauthorized, "SIGNATURE_ERROR"

	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"

	case errors.Is(err, models.ErrGatewayTimeout):
		return http.StatusGatewayTimeout, "TIMEOUT_ERROR"

	case errors.Is(err, models.ErrGatewayUnavailable), errors.Is(err, models.ErrInvalidGatewayResponse):
		return http.StatusBadGateway, "PROCESSING_ERROR"

	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
