package ports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/shopspring/decimal"
)

// Executor is satisfied by both DBTX (pool) and pgx.Tx, so repository
// methods can be called either standalone or inside TransactionManager.WithTx.
type Executor = DBTX

// CustomerRepository persists Customer rows.
type CustomerRepository interface {
	Create(ctx context.Context, ex Executor, c *models.Customer) error
	GetByID(ctx context.Context, ex Executor, id string) (*models.Customer, error)
	GetByEmail(ctx context.Context, ex Executor, email string) (*models.Customer, error)
	SetProcessorProfileID(ctx context.Context, ex Executor, id, profileID string) error
}

// PaymentMethodRepository persists PaymentMethod rows.
type PaymentMethodRepository interface {
	Create(ctx context.Context, ex Executor, pm *models.PaymentMethod) error
	GetByID(ctx context.Context, ex Executor, id string) (*models.PaymentMethod, error)
	ListByCustomer(ctx context.Context, ex Executor, customerID string) ([]*models.PaymentMethod, error)
}

// TransactionRepository persists Transaction rows and supports the
// pessimistic row lock needed for read-modify-write status changes.
type TransactionRepository interface {
	Create(ctx context.Context, ex Executor, t *models.Transaction) error
	GetByID(ctx context.Context, ex Executor, id string) (*models.Transaction, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, ex Executor, key string) (*models.Transaction, error)
	GetByExternalProcessorID(ctx context.Context, ex Executor, externalID string) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, ex Executor, id string, status models.PaymentStatus, externalID, authCode, avs, cvv string, processedAt *time.Time) error
	UpdateAmount(ctx context.Context, ex Executor, id string, amount decimal.Decimal) error
	ListChildren(ctx context.Context, ex Executor, parentID string) ([]*models.Transaction, error)
	ListByCustomer(ctx context.Context, ex Executor, customerID string, limit, offset int32) ([]*models.Transaction, error)
	ListByOrder(ctx context.Context, ex Executor, orderID string) ([]*models.Transaction, error)
	ListPendingOlderThan(ctx context.Context, ex Executor, before time.Time, limit int32) ([]*models.Transaction, error)
}

// OrderRepository persists Order rows.
type OrderRepository interface {
	Create(ctx context.Context, ex Executor, o *models.Order) error
	GetByID(ctx context.Context, ex Executor, id string) (*models.Order, error)
}

// PlanRepository persists SubscriptionPlan rows.
type PlanRepository interface {
	Create(ctx context.Context, ex Executor, p *models.SubscriptionPlan) error
	GetByCode(ctx context.Context, ex Executor, code string) (*models.SubscriptionPlan, error)
	List(ctx context.Context, ex Executor) ([]*models.SubscriptionPlan, error)
}

// SubscriptionRepository persists Subscription rows and supports the
// per-subscription row lock that serializes billing.
type SubscriptionRepository interface {
	Create(ctx context.Context, ex Executor, s *models.Subscription) error
	GetByID(ctx context.Context, ex Executor, id string) (*models.Subscription, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Subscription, error)
	GetByIdempotencyKey(ctx context.Context, ex Executor, customerID, key string) (*models.Subscription, error)
	Update(ctx context.Context, ex Executor, s *models.Subscription) error
	ListByCustomer(ctx context.Context, ex Executor, customerID string, page int32) ([]*models.Subscription, error)
	ListDueForBilling(ctx context.Context, ex Executor, asOf time.Time, limit int32) ([]*models.Subscription, error)
	ListTrialsExpiring(ctx context.Context, ex Executor, asOf time.Time, limit int32) ([]*models.Subscription, error)
	ListScheduledCancellations(ctx context.Context, ex Executor, asOf time.Time, limit int32) ([]*models.Subscription, error)
	ListScheduledPlanChanges(ctx context.Context, ex Executor, asOf time.Time, limit int32) ([]*models.Subscription, error)
}

// InvoiceRepository persists SubscriptionInvoice rows.
type InvoiceRepository interface {
	Create(ctx context.Context, ex Executor, inv *models.SubscriptionInvoice) error
	GetByNumber(ctx context.Context, ex Executor, number string) (*models.SubscriptionInvoice, error)
	Update(ctx context.Context, ex Executor, inv *models.SubscriptionInvoice) error
	ExistsForPeriod(ctx context.Context, ex Executor, subscriptionID string, periodStart, periodEnd time.Time, statuses []models.InvoiceStatus) (bool, error)
	ListRetryable(ctx context.Context, ex Executor, asOf time.Time, maxAttempts int, limit int32) ([]*models.SubscriptionInvoice, error)
}

// CreditNoteRepository persists CreditNote rows.
type CreditNoteRepository interface {
	Create(ctx context.Context, ex Executor, c *models.CreditNote) error
	ListOutstanding(ctx context.Context, ex Executor, subscriptionID string) ([]*models.CreditNote, error)
	UpdateRemaining(ctx context.Context, ex Executor, id string, remaining decimal.Decimal) error
}

// WebhookRepository persists Webhook rows for both inbound and outbound flows.
type WebhookRepository interface {
	Create(ctx context.Context, ex Executor, w *models.Webhook) error
	GetByID(ctx context.Context, ex Executor, id string) (*models.Webhook, error)
	ExistsRecent(ctx context.Context, ex Executor, eventID, eventType string, since time.Time) (bool, error)
	Update(ctx context.Context, ex Executor, w *models.Webhook) error
	ListDueForDelivery(ctx context.Context, ex Executor, asOf time.Time, limit int32) ([]*models.Webhook, error)
	DeleteOlderThan(ctx context.Context, ex Executor, status models.WebhookStatus, before time.Time) (int64, error)
}

// OutboundEventEmitter enqueues a merchant-facing webhook notification for a
// transaction state change. Implementations must be safe to call from inside
// the caller's hot path: enqueueing persists a row, delivery happens later.
type OutboundEventEmitter interface {
	EmitTransactionEvent(ctx context.Context, t *models.Transaction, eventType string) error
}

// RateLimiterStore is the shared-storage backing for the distributed token
// bucket. Implementations must make IsAllowed atomic (a single
// round trip performing the check-and-decrement, e.g. one SQL statement with
// INSERT ... ON CONFLICT, or a Lua script against Redis).
type RateLimiterStore interface {
	IsAllowed(ctx context.Context, key string, limitPerHour, burst int) (allowed bool, remaining int, err error)
}

// AuditRepository appends AuditLog rows.
type AuditRepository interface {
	Append(ctx context.Context, ex Executor, entry *models.AuditLog) error
}
