// Package httpapi is the inbound JSON HTTP surface: plain net/http handlers
// over the payment orchestrator, subscription engine, and webhook pipeline.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/meridianpay/gatewaycore/pkg/encoding"
	gwerrors "github.com/meridianpay/gatewaycore/pkg/errors"
	"go.uber.org/zap"
)

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Action  string `json:"suggested_action,omitempty"`
	Retryable bool  `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if v == nil {
		w.WriteHeader(status)
		return
	}
	body, err := encoding.EncodeJSON(v)
	if err != nil {
		logger.Error("failed to encode response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// writeError maps a domain/validation/payment error to an HTTP status and
// body: validation/not-found errors surface directly to the caller,
// retryable processor errors carry SuggestedAction/RetryAfter.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var valErr *gwerrors.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, logger, http.StatusBadRequest, errorBody{Error: valErr.Error(), Code: "VALIDATION"})
		return
	}

	var payErr *gwerrors.PaymentError
	if errors.As(err, &payErr) {
		status := http.StatusUnprocessableEntity
		switch payErr.Category {
		case gwerrors.CategoryInvalidRequest:
			status = http.StatusBadRequest
		case gwerrors.CategorySystemError, gwerrors.CategoryNetworkError:
			status = http.StatusBadGateway
		}
		if payErr.IsRetriable {
			w.Header().Set("Retry-After", strconv.Itoa(payErr.RetryAfterSeconds))
		}
		writeJSON(w, logger, status, errorBody{
			Error:     payErr.Error(),
			Code:      payErr.Code,
			Action:    payErr.SuggestedAction,
			Retryable: payErr.IsRetriable,
		})
		return
	}

	status, code := classifyDomainError(err)
	writeJSON(w, logger, status, errorBody{Error: err.Error(), Code: code})
}
