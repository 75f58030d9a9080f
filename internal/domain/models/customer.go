package models

import "time"

// Customer is created opportunistically on first payment for a given email.
// ProcessorProfileID is set lazily after the first successful profile
// creation at the processor and is immutable thereafter.
type Customer struct {
	ID                 string
	ExternalReference  string
	Email              string
	Name               string
	BillingAddress     Address
	ProcessorProfileID string
	Active             bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Address is the billing address captured alongside a Customer or used
// inline on a payment request for AVS checks.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// PaymentMethodType enumerates the instrument types a PaymentMethod may hold.
type PaymentMethodType string

const (
	PaymentMethodTypeCard PaymentMethodType = "CARD"
	PaymentMethodTypeACH  PaymentMethodType = "ACH"
)

// PaymentMethod stores only a processor token for the instrument; raw PAN/CVV
// are never persisted by the core.
type PaymentMethod struct {
	ID           string
	CustomerID   string
	Type         PaymentMethodType
	Token        string
	Brand        string
	LastFour     string
	ExpiryMonth  int
	ExpiryYear   int
	Default      bool
	Active       bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired reports whether the instrument's expiry precedes the given
// (year, month), at calendar-month granularity.
func (pm *PaymentMethod) IsExpired(asOf time.Time) bool {
	y, m, _ := asOf.Date()
	if pm.ExpiryYear != y {
		return pm.ExpiryYear < y
	}
	return pm.ExpiryMonth < int(m)
}
