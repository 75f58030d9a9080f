package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// paymentMethodBody is the payment_method object accepted on purchase,
// authorize, and any other request that onboards raw card details in one
// call.
type paymentMethodBody struct {
	Type           string `json:"type"`
	CardNumber     string `json:"card_number"`
	ExpiryMonth    int    `json:"expiry_month"`
	ExpiryYear     int    `json:"expiry_year"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholder_name"`
}

type addressBody struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type customerBody struct {
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Phone     string      `json:"phone"`
	Address   addressBody `json:"billing_address"`
}

type purchaseBody struct {
	Amount         string             `json:"amount"`
	Currency       string             `json:"currency"`
	PaymentMethod  paymentMethodBody  `json:"payment_method"`
	Customer       customerBody       `json:"customer"`
	IdempotencyKey string             `json:"idempotency_key"`
	OrderID        string             `json:"order_id"`
}

func (b purchaseBody) toPurchaseRequest() (ports.PurchaseRequest, error) {
	amount, err := decimal.NewFromString(b.Amount)
	if err != nil {
		return ports.PurchaseRequest{}, models.ErrInvalidAmount
	}
	return ports.PurchaseRequest{
		Amount:   amount,
		Currency: b.Currency,
		Card: ports.CardDetails{
			Number:         b.PaymentMethod.CardNumber,
			CVV:            b.PaymentMethod.CVV,
			ExpiryMonth:    b.PaymentMethod.ExpiryMonth,
			ExpiryYear:     b.PaymentMethod.ExpiryYear,
			CardholderName: b.PaymentMethod.CardholderName,
		},
		Customer: ports.CustomerDetails{
			Email:     b.Customer.Email,
			FirstName: b.Customer.FirstName,
			LastName:  b.Customer.LastName,
			Phone:     b.Customer.Phone,
			Address: models.Address{
				Line1:      b.Customer.Address.Line1,
				Line2:      b.Customer.Address.Line2,
				City:       b.Customer.Address.City,
				State:      b.Customer.Address.State,
				PostalCode: b.Customer.Address.PostalCode,
				Country:    b.Customer.Address.Country,
			},
		},
		IdempotencyKey: b.IdempotencyKey,
		OrderID:        b.OrderID,
	}, nil
}

type captureBody struct {
	TransactionID  string  `json:"transaction_id"`
	Amount         *string `json:"amount,omitempty"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type voidBody struct {
	TransactionID  string `json:"transaction_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type refundBody struct {
	TransactionID  string  `json:"transaction_id"`
	Amount         *string `json:"amount,omitempty"`
	IdempotencyKey string  `json:"idempotency_key"`
}

func parseOptionalAmount(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	amt, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, models.ErrInvalidAmount
	}
	return &amt, nil
}

type transactionResponse struct {
	ID                  string `json:"id"`
	ExternalProcessorID string `json:"external_processor_id,omitempty"`
	ParentID            string `json:"parent_id,omitempty"`
	Type                string `json:"type"`
	Status              string `json:"status"`
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	AuthCode            string `json:"auth_code,omitempty"`
	CreatedAt           string `json:"created_at"`
}

func toTransactionResponse(t *models.Transaction) transactionResponse {
	return transactionResponse{
		ID:                  t.ID,
		ExternalProcessorID: t.ExternalProcessorID,
		ParentID:            t.ParentID,
		Type:                string(t.Type),
		Status:              string(t.Status),
		Amount:              t.Amount.String(),
		Currency:            t.Currency,
		AuthCode:            t.AuthCode,
		CreatedAt:           t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// PaymentHandlers adapts ports.PaymentOrchestrator to the /payments/*
// routes.
type PaymentHandlers struct {
	orchestrator ports.PaymentOrchestrator
	logger       *zap.Logger
}

// NewPaymentHandlers constructs PaymentHandlers.
func NewPaymentHandlers(orchestrator ports.PaymentOrchestrator, logger *zap.Logger) *PaymentHandlers {
	return &PaymentHandlers{orchestrator: orchestrator, logger: logger}
}

func (h *PaymentHandlers) Purchase(w http.ResponseWriter, r *http.Request) {
	var body purchaseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, models.ErrMissingRequiredField)
		return
	}
	req, err := body.toPurchaseRequest()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	txn, err := h.orchestrator.Purchase(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toTransactionResponse(txn))
}

func (h *PaymentHandlers) Authorize(w http.ResponseWriter, r *http.Request) {
	var body purchaseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, models.ErrMissingRequiredField)
		return
	}
	req, err := body.toPurchaseRequest()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	txn, err := h.orchestrator.Authorize(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toTransactionResponse(txn))
}

func (h *PaymentHandlers) Capture(w http.ResponseWriter, r *http.Request) {
	var body captureBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, models.ErrMissingRequiredField)
		return
	}
	amount, err := parseOptionalAmount(body.Amount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	txn, err := h.orchestrator.Capture(r.Context(), ports.CaptureRequest{
		TransactionID:  body.TransactionID,
		Amount:         amount,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toTransactionResponse(txn))
}

func (h *PaymentHandlers) Void(w http.ResponseWriter, r *http.Request) {
	var body voidBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, models.ErrMissingRequiredField)
		return
	}
	txn, err := h.orchestrator.Void(r.Context(), ports.VoidRequest{
		TransactionID:  body.TransactionID,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toTransactionResponse(txn))
}

func (h *PaymentHandlers) Refund(w http.ResponseWriter, r *http.Request) {
	var body refundBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, models.ErrMissingRequiredField)
		return
	}
	amount, err := parseOptionalAmount(body.Amount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	txn, err := h.orchestrator.Refund(r.Context(), ports.RefundRequest{
		TransactionID:  body.TransactionID,
		Amount:         amount,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toTransactionResponse(txn))
}

// Status handles GET /payments/{id}, returning the current Transaction.
func (h *PaymentHandlers) Status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	txn, err := h.orchestrator.Status(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toTransactionResponse(txn))
}
