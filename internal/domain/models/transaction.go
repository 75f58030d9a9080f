// Package models defines the entities that make up the payment gateway core:
// the payment ledger, subscription/billing state, webhook delivery records,
// and the supporting value objects each component reads and writes.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes the kind of processor operation a Transaction records.
type TransactionType string

const (
	TransactionTypeAuthorize     TransactionType = "AUTHORIZE"
	TransactionTypeCapture       TransactionType = "CAPTURE"
	TransactionTypeVoid          TransactionType = "VOID"
	TransactionTypeRefund        TransactionType = "REFUND"
	TransactionTypePartialRefund TransactionType = "PARTIAL_REFUND"
	TransactionTypePurchase      TransactionType = "PURCHASE"
)

// PaymentStatus is the Transaction state machine. Edges:
//
//	PENDING         -> AUTHORIZED, FAILED, SETTLED
//	AUTHORIZED      -> CAPTURED, VOIDED, FAILED
//	CAPTURED        -> SETTLED, PARTIALLY_REFUNDED, REFUNDED
//	SETTLED         -> PARTIALLY_REFUNDED, REFUNDED
//	PENDING_REVIEW  -> SETTLED, FAILED
//
// FAILED, VOIDED, and REFUNDED are terminal.
type PaymentStatus string

const (
	PaymentStatusPending            PaymentStatus = "PENDING"
	PaymentStatusAuthorized         PaymentStatus = "AUTHORIZED"
	PaymentStatusCaptured           PaymentStatus = "CAPTURED"
	PaymentStatusSettled            PaymentStatus = "SETTLED"
	PaymentStatusPartiallyRefunded  PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusRefunded           PaymentStatus = "REFUNDED"
	PaymentStatusVoided             PaymentStatus = "VOIDED"
	PaymentStatusFailed             PaymentStatus = "FAILED"
	PaymentStatusPendingReview      PaymentStatus = "PENDING_REVIEW"
)

// statusEdges enumerates the legal transitions out of each PaymentStatus.
var statusEdges = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentStatusPending:       {PaymentStatusAuthorized: true, PaymentStatusFailed: true, PaymentStatusSettled: true},
	PaymentStatusAuthorized:    {PaymentStatusCaptured: true, PaymentStatusVoided: true, PaymentStatusFailed: true},
	PaymentStatusCaptured:      {PaymentStatusSettled: true, PaymentStatusPartiallyRefunded: true, PaymentStatusRefunded: true},
	PaymentStatusSettled:       {PaymentStatusPartiallyRefunded: true, PaymentStatusRefunded: true},
	PaymentStatusPendingReview: {PaymentStatusSettled: true, PaymentStatusFailed: true},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
// PURCHASE transactions settle directly from PENDING, which is why PENDING
// also allows SETTLED above (a purchase is authorize+capture collapsed).
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return statusEdges[s][next]
}

// IsTerminal reports whether no further transitions are legal from s.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusFailed, PaymentStatusVoided, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// Transaction is an immutable-once-terminal record of a single processor
// operation. CAPTURE/VOID/REFUND/PARTIAL_REFUND transactions reference the
// AUTHORIZE (or PURCHASE) they act on via ParentID.
type Transaction struct {
	ID                 string
	ExternalProcessorID string
	ParentID           string
	OrderID            string
	CustomerID         string
	PaymentMethodID    string
	SubscriptionID     string
	Type               TransactionType
	Status             PaymentStatus
	Amount             decimal.Decimal
	Currency           string
	IdempotencyKey     string
	CorrelationID      string
	RequestBlob        []byte
	ResponseBlob       []byte

	AuthCode    string
	AVSResponse string
	CVVResponse string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// IsApproved reports whether the transaction reached a non-declined, non-error outcome.
func (t *Transaction) IsApproved() bool {
	switch t.Status {
	case PaymentStatusAuthorized, PaymentStatusCaptured, PaymentStatusSettled, PaymentStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// CanCapture reports whether this transaction may be the target of a capture.
func (t *Transaction) CanCapture() bool {
	return t.Status == PaymentStatusAuthorized
}

// CanVoid reports whether this transaction may be voided.
func (t *Transaction) CanVoid() bool {
	return t.Status == PaymentStatusAuthorized
}

// CanRefund reports whether this transaction may still accept a refund.
func (t *Transaction) CanRefund() bool {
	return t.Status == PaymentStatusCaptured || t.Status == PaymentStatusSettled || t.Status == PaymentStatusPartiallyRefunded
}
