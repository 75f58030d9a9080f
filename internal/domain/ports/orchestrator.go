package ports

import (
	"context"

	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/shopspring/decimal"
)

// CardDetails carries the raw instrument fields accepted on a payment
// request before tokenization; the core never persists these in cleartext.
type CardDetails struct {
	Number         string
	CVV            string
	ExpiryMonth    int
	ExpiryYear     int
	CardholderName string
}

// CustomerDetails identifies or creates the Customer on a payment request.
type CustomerDetails struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Address   models.Address
}

// PurchaseRequest drives PaymentOrchestrator.Purchase / Authorize.
type PurchaseRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Card           CardDetails
	Customer       CustomerDetails
	IdempotencyKey string
	OrderID        string
}

// CaptureRequest drives PaymentOrchestrator.Capture.
type CaptureRequest struct {
	TransactionID  string
	Amount         *decimal.Decimal
	IdempotencyKey string
}

// VoidRequest drives PaymentOrchestrator.Void.
type VoidRequest struct {
	TransactionID  string
	IdempotencyKey string
}

// RefundRequest drives PaymentOrchestrator.Refund.
type RefundRequest struct {
	TransactionID  string
	Amount         *decimal.Decimal
	IdempotencyKey string
}

// PurchaseStoredRequest drives PaymentOrchestrator.PurchaseStored: a charge
// against a PaymentMethod already on file, with no fresh card details
// presented. This is how recurring billing charges a subscription,
// as opposed to Purchase/Authorize which onboard a
// new Customer/PaymentMethod pair from raw request details.
type PurchaseStoredRequest struct {
	PaymentMethodID string
	Amount          decimal.Decimal
	Currency        string
	IdempotencyKey  string
	OrderID         string
}

// PaymentOrchestrator is the state machine over the payment processor.
// Each call is wrapped in one database transaction plus one processor call.
type PaymentOrchestrator interface {
	Purchase(ctx context.Context, req PurchaseRequest) (*models.Transaction, error)
	Authorize(ctx context.Context, req PurchaseRequest) (*models.Transaction, error)
	Capture(ctx context.Context, req CaptureRequest) (*models.Transaction, error)
	Void(ctx context.Context, req VoidRequest) (*models.Transaction, error)
	Refund(ctx context.Context, req RefundRequest) (*models.Transaction, error)
	PurchaseStored(ctx context.Context, req PurchaseStoredRequest) (*models.Transaction, error)
	Status(ctx context.Context, id string) (*models.Transaction, error)
}
