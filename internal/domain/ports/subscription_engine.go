package ports

import (
	"context"
	"time"

	"github.com/meridianpay/gatewaycore/internal/domain/models"
)

// ChangeOption selects when a subscription update takes effect.
type ChangeOption string

const (
	ChangeImmediate    ChangeOption = "IMMEDIATE"
	ChangeEndOfPeriod  ChangeOption = "END_OF_PERIOD"
)

// CreateSubscriptionRequest drives SubscriptionEngine.Create.
type CreateSubscriptionRequest struct {
	CustomerID         string
	PlanCode           string
	PaymentMethodID    string
	StartDate          *time.Time
	StartTrial         bool
	BillingCycleAnchor *time.Time
	Prorated           bool
	IdempotencyKey     string
	Metadata           map[string]string
}

// UpdateSubscriptionRequest drives SubscriptionEngine.Update.
type UpdateSubscriptionRequest struct {
	SubscriptionID string
	NewPlanCode    string
	Prorated       bool
	ChangeOption   ChangeOption
	IdempotencyKey string
}

// CancelSubscriptionRequest drives SubscriptionEngine.Cancel.
type CancelSubscriptionRequest struct {
	SubscriptionID string
	When           ChangeOption
	CancelAt       *time.Time
	RefundProrated bool
	Notes          string
	IdempotencyKey string
}

// SubscriptionEngine manages the subscription lifecycle: creation, plan
// changes, pause/resume, and cancellation.
type SubscriptionEngine interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*models.Subscription, error)
	Update(ctx context.Context, req UpdateSubscriptionRequest) (*models.Subscription, error)
	Cancel(ctx context.Context, req CancelSubscriptionRequest) (*models.Subscription, error)
	Pause(ctx context.Context, id string) (*models.Subscription, error)
	Resume(ctx context.Context, id string) (*models.Subscription, error)
	Get(ctx context.Context, id string) (*models.Subscription, error)
	ListByCustomer(ctx context.Context, customerID string, page int32) ([]*models.Subscription, error)
	DueForBilling(ctx context.Context, now time.Time, limit int32) ([]*models.Subscription, error)
}

// ProrationType tags a proration.Result (as returned by
// proration.CalculatePlanChange) as CHARGE/CREDIT/NONE.
type ProrationType string

const (
	ProrationCharge ProrationType = "CHARGE"
	ProrationCredit ProrationType = "CREDIT"
	ProrationNone   ProrationType = "NONE"
)
