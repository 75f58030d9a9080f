package ports

import (
	"context"

	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/shopspring/decimal"
)

// OutcomeKind tags which variant of Outcome a processor call produced.
// Downstream code branches on Kind, never on field presence.
type OutcomeKind string

const (
	OutcomeApproved OutcomeKind = "APPROVED"
	OutcomeDeclined OutcomeKind = "DECLINED"
	OutcomeError    OutcomeKind = "ERROR"
)

// Outcome is the tagged union every ProcessorAdapter call returns.
type Outcome struct {
	Kind OutcomeKind

	// Approved fields
	ExternalID   string
	AuthCode     string
	AVSResponse  string
	CVVResponse  string
	SettleAmount *decimal.Decimal

	// Declined fields
	DeclineCode   string
	DeclineReason string

	// Error fields
	ErrorCode    string
	ErrorMessage string
	Transient    bool
}

// BillingInfo is the cardholder/ACH billing context a processor call needs
// for AVS and stored-credential semantics.
type BillingInfo struct {
	CardholderName string
	Address        models.Address
}

// ProcessorAdapter exposes intent-level operations over the external payment
// processor. Implementations normalize the processor's numeric response
// codes into the Outcome tagged union; no caller ever branches on raw codes.
type ProcessorAdapter interface {
	Authorize(ctx context.Context, amount decimal.Decimal, currency string, pm *models.PaymentMethod, billing BillingInfo) (Outcome, error)
	Capture(ctx context.Context, priorExternalID string, amount *decimal.Decimal) (Outcome, error)
	Void(ctx context.Context, priorExternalID string) (Outcome, error)
	Refund(ctx context.Context, priorExternalID string, amount *decimal.Decimal, pm *models.PaymentMethod) (Outcome, error)
	Purchase(ctx context.Context, amount decimal.Decimal, currency string, pm *models.PaymentMethod, billing BillingInfo) (Outcome, error)

	CreateCustomerProfile(ctx context.Context, customer *models.Customer) (string, error)
	CreatePaymentProfile(ctx context.Context, profileID string, pm *models.PaymentMethod) (string, error)

	CreateRecurring(ctx context.Context, profileID string, pm *models.PaymentMethod, plan *models.SubscriptionPlan) (string, error)
	CancelRecurring(ctx context.Context, gatewaySubscriptionID string) error

	GetTransaction(ctx context.Context, externalID string) (Outcome, error)
}
