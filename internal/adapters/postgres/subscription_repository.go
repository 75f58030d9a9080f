package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
)

// subscriptionListPageSize bounds ListByCustomer's page size; callers pass a
// zero-based page index rather than an offset.
const subscriptionListPageSize = 20

// SubscriptionRepository implements ports.SubscriptionRepository, including
// the per-subscription row lock that serializes concurrent
// billing attempts against the same subscription.
type SubscriptionRepository struct {
	db ports.DBPort
}

// NewSubscriptionRepository creates a SubscriptionRepository.
func NewSubscriptionRepository(db ports.DBPort) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const insertSubscriptionSQL = `
INSERT INTO subscriptions (id, customer_id, plan_code, payment_method_id, status,
	current_period_start, current_period_end, billing_cycle_anchor, trial_start, trial_end,
	next_billing_date, cancelled_at, cancellation_reason, scheduled_cancel_at,
	scheduled_plan_code, scheduled_plan_change_at, failure_retry_count, idempotency_key,
	metadata, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
`

func (r *SubscriptionRepository) Create(ctx context.Context, ex ports.Executor, s *models.Subscription) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, insertSubscriptionSQL,
		s.ID, s.CustomerID, s.PlanCode, s.PaymentMethodID, string(s.Status),
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.BillingCycleAnchor, s.TrialStart, s.TrialEnd,
		s.NextBillingDate, s.CancelledAt, nullable(s.CancellationReason), s.ScheduledCancelAt,
		nullable(s.ScheduledPlanCode), s.ScheduledPlanChangeAt, s.FailureRetryCount,
		nullable(s.IdempotencyKey), meta, s.CreatedAt, s.UpdatedAt)
	return err
}

const selectSubscriptionColumns = `
	id, customer_id, plan_code, payment_method_id, status, current_period_start,
	current_period_end, billing_cycle_anchor, trial_start, trial_end, next_billing_date,
	cancelled_at, cancellation_reason, scheduled_cancel_at, scheduled_plan_code,
	scheduled_plan_change_at, failure_retry_count, idempotency_key, metadata,
	created_at, updated_at
`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var s models.Subscription
	var status string
	var cancelReason, scheduledPlanCode, idemKey *string
	var meta []byte
	err := row.Scan(&s.ID, &s.CustomerID, &s.PlanCode, &s.PaymentMethodID, &status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.BillingCycleAnchor, &s.TrialStart, &s.TrialEnd,
		&s.NextBillingDate, &s.CancelledAt, &cancelReason, &s.ScheduledCancelAt,
		&scheduledPlanCode, &s.ScheduledPlanChangeAt, &s.FailureRetryCount, &idemKey, &meta,
		&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Status = models.SubscriptionStatus(status)
	s.CancellationReason = orEmpty(cancelReason)
	s.ScheduledPlanCode = orEmpty(scheduledPlanCode)
	s.IdempotencyKey = orEmpty(idemKey)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, ex ports.Executor, id string) (*models.Subscription, error) {
	row := ex.QueryRow(ctx, "SELECT "+selectSubscriptionColumns+" FROM subscriptions WHERE id = $1", id)
	return scanSubscription(row)
}

// GetForUpdate acquires the row lock a billing attempt must hold while
// mutating status, next_billing_date, and failure_retry_count together.
func (r *SubscriptionRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Subscription, error) {
	row := tx.QueryRow(ctx, "SELECT "+selectSubscriptionColumns+" FROM subscriptions WHERE id = $1 FOR UPDATE", id)
	return scanSubscription(row)
}

func (r *SubscriptionRepository) GetByIdempotencyKey(ctx context.Context, ex ports.Executor, customerID, key string) (*models.Subscription, error) {
	row := ex.QueryRow(ctx,
		"SELECT "+selectSubscriptionColumns+" FROM subscriptions WHERE customer_id = $1 AND idempotency_key = $2",
		customerID, key)
	return scanSubscription(row)
}

const updateSubscriptionSQL = `
UPDATE subscriptions SET
	plan_code = $2, payment_method_id = $3, status = $4, current_period_start = $5,
	current_period_end = $6, billing_cycle_anchor = $7, trial_start = $8, trial_end = $9,
	next_billing_date = $10, cancelled_at = $11, cancellation_reason = $12,
	scheduled_cancel_at = $13, scheduled_plan_code = $14, scheduled_plan_change_at = $15,
	failure_retry_count = $16, metadata = $17, updated_at = now()
WHERE id = $1
`

func (r *SubscriptionRepository) Update(ctx context.Context, ex ports.Executor, s *models.Subscription) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, updateSubscriptionSQL,
		s.ID, s.PlanCode, s.PaymentMethodID, string(s.Status), s.CurrentPeriodStart,
		s.CurrentPeriodEnd, s.BillingCycleAnchor, s.TrialStart, s.TrialEnd, s.NextBillingDate,
		s.CancelledAt, nullable(s.CancellationReason), s.ScheduledCancelAt,
		nullable(s.ScheduledPlanCode), s.ScheduledPlanChangeAt, s.FailureRetryCount, meta)
	return err
}

func (r *SubscriptionRepository) ListByCustomer(ctx context.Context, ex ports.Executor, customerID string, page int32) ([]*models.Subscription, error) {
	if page < 0 {
		page = 0
	}
	rows, err := ex.Query(ctx,
		"SELECT "+selectSubscriptionColumns+" FROM subscriptions WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		customerID, subscriptionListPageSize, page*subscriptionListPageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// ListDueForBilling selects ACTIVE subscriptions whose next_billing_date has
// arrived, for the hourly billing sweep.
func (r *SubscriptionRepository) ListDueForBilling(ctx context.Context, ex ports.Executor, asOf time.Time, limit int32) ([]*models.Subscription, error) {
	rows, err := ex.Query(ctx,
		`SELECT `+selectSubscriptionColumns+` FROM subscriptions
		 WHERE status = $1 AND next_billing_date IS NOT NULL AND next_billing_date <= $2
		 ORDER BY next_billing_date LIMIT $3`,
		string(models.SubscriptionStatusActive), asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// ListTrialsExpiring selects subscriptions whose trial_end has passed and
// have not yet transitioned off their trial, for the daily lifecycle sweep.
func (r *SubscriptionRepository) ListTrialsExpiring(ctx context.Context, ex ports.Executor, asOf time.Time, limit int32) ([]*models.Subscription, error) {
	rows, err := ex.Query(ctx,
		`SELECT `+selectSubscriptionColumns+` FROM subscriptions
		 WHERE status = $1 AND trial_end IS NOT NULL AND trial_end <= $2
		 ORDER BY trial_end LIMIT $3`,
		string(models.SubscriptionStatusActive), asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (r *SubscriptionRepository) ListScheduledCancellations(ctx context.Context, ex ports.Executor, asOf time.Time, limit int32) ([]*models.Subscription, error) {
	rows, err := ex.Query(ctx,
		`SELECT `+selectSubscriptionColumns+` FROM subscriptions
		 WHERE scheduled_cancel_at IS NOT NULL AND scheduled_cancel_at <= $1
		 ORDER BY scheduled_cancel_at LIMIT $2`,
		asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (r *SubscriptionRepository) ListScheduledPlanChanges(ctx context.Context, ex ports.Executor, asOf time.Time, limit int32) ([]*models.Subscription, error) {
	rows, err := ex.Query(ctx,
		`SELECT `+selectSubscriptionColumns+` FROM subscriptions
		 WHERE scheduled_plan_change_at IS NOT NULL AND scheduled_plan_change_at <= $1
		 ORDER BY scheduled_plan_change_at LIMIT $2`,
		asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func scanSubscriptions(rows pgx.Rows) ([]*models.Subscription, error) {
	var out []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ ports.SubscriptionRepository = (*SubscriptionRepository)(nil)
