package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the SubscriptionInvoice state machine.
type InvoiceStatus string

const (
	InvoiceStatusPending    InvoiceStatus = "PENDING"
	InvoiceStatusProcessing InvoiceStatus = "PROCESSING"
	InvoiceStatusPaid       InvoiceStatus = "PAID"
	InvoiceStatusFailed     InvoiceStatus = "FAILED"
	InvoiceStatusCancelled  InvoiceStatus = "CANCELLED"
)

// InvoiceKind distinguishes why an invoice was generated, since BILL, SETUP,
// and PRORATE invoices follow different creation rules in SubscriptionEngine.
type InvoiceKind string

const (
	InvoiceKindSetup   InvoiceKind = "SETUP"
	InvoiceKindBill    InvoiceKind = "BILL"
	InvoiceKindProrate InvoiceKind = "PRORATE"
)

// SubscriptionInvoice represents one billing period's (or one-off) charge
// attempt against a Subscription.
type SubscriptionInvoice struct {
	Number               string
	SubscriptionID       string
	Kind                 InvoiceKind
	Amount               decimal.Decimal
	Currency             string
	Status               InvoiceStatus
	PeriodStart          time.Time
	PeriodEnd            time.Time
	DueDate              time.Time
	PaymentAttempts      int
	NextPaymentAttempt   *time.Time
	LinkedTransactionID  string
	AppliedCreditID      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanRetry reports whether this invoice may receive another payment attempt
// under the dunning schedule's attempt cap.
func (i *SubscriptionInvoice) CanRetry(maxAttempts int) bool {
	return i.Status == InvoiceStatusFailed && i.PaymentAttempts < maxAttempts
}

// CreditNote is a real ledger entry recording unused-period credit issued on
// a downgrade or cancellation, applied against a subscription's future
// invoices until exhausted.
type CreditNote struct {
	ID              string
	SubscriptionID  string
	Currency        string
	Amount          decimal.Decimal
	RemainingAmount decimal.Decimal
	Reason          string
	CreatedAt       time.Time
}

// Exhausted reports whether the credit note has no remaining balance.
func (c *CreditNote) Exhausted() bool {
	return c.RemainingAmount.LessThanOrEqual(decimal.Zero)
}

// Apply deducts up to amount from the credit note's remaining balance and
// returns the amount actually applied.
func (c *CreditNote) Apply(amount decimal.Decimal) decimal.Decimal {
	applied := decimal.Min(amount, c.RemainingAmount)
	c.RemainingAmount = c.RemainingAmount.Sub(applied)
	return applied
}
