package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
)

// InvoiceRepository implements ports.InvoiceRepository.
type InvoiceRepository struct {
	db ports.DBPort
}

// NewInvoiceRepository creates an InvoiceRepository.
func NewInvoiceRepository(db ports.DBPort) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const insertInvoiceSQL = `
INSERT INTO subscription_invoices (number, subscription_id, kind, amount, currency, status,
	period_start, period_end, due_date, payment_attempts, next_payment_attempt,
	linked_transaction_id, applied_credit_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`

func (r *InvoiceRepository) Create(ctx context.Context, ex ports.Executor, inv *models.SubscriptionInvoice) error {
	_, err := ex.Exec(ctx, insertInvoiceSQL,
		inv.Number, inv.SubscriptionID, string(inv.Kind), inv.Amount, inv.Currency, string(inv.Status),
		inv.PeriodStart, inv.PeriodEnd, inv.DueDate, inv.PaymentAttempts, inv.NextPaymentAttempt,
		nullable(inv.LinkedTransactionID), nullable(inv.AppliedCreditID), inv.CreatedAt, inv.UpdatedAt)
	return err
}

const selectInvoiceColumns = `
	number, subscription_id, kind, amount, currency, status, period_start, period_end,
	due_date, payment_attempts, next_payment_attempt, linked_transaction_id,
	applied_credit_id, created_at, updated_at
`

func scanInvoice(row pgx.Row) (*models.SubscriptionInvoice, error) {
	var inv models.SubscriptionInvoice
	var kind, status string
	var linkedTxID, appliedCreditID *string
	err := row.Scan(&inv.Number, &inv.SubscriptionID, &kind, &inv.Amount, &inv.Currency, &status,
		&inv.PeriodStart, &inv.PeriodEnd, &inv.DueDate, &inv.PaymentAttempts, &inv.NextPaymentAttempt,
		&linkedTxID, &appliedCreditID, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inv.Kind = models.InvoiceKind(kind)
	inv.Status = models.InvoiceStatus(status)
	inv.LinkedTransactionID = orEmpty(linkedTxID)
	inv.AppliedCreditID = orEmpty(appliedCreditID)
	return &inv, nil
}

func (r *InvoiceRepository) GetByNumber(ctx context.Context, ex ports.Executor, number string) (*models.SubscriptionInvoice, error) {
	row := ex.QueryRow(ctx, "SELECT "+selectInvoiceColumns+" FROM subscription_invoices WHERE number = $1", number)
	return scanInvoice(row)
}

const updateInvoiceSQL = `
UPDATE subscription_invoices SET
	status = $2, payment_attempts = $3, next_payment_attempt = $4,
	linked_transaction_id = $5, applied_credit_id = $6, updated_at = now()
WHERE number = $1
`

func (r *InvoiceRepository) Update(ctx context.Context, ex ports.Executor, inv *models.SubscriptionInvoice) error {
	_, err := ex.Exec(ctx, updateInvoiceSQL, inv.Number, string(inv.Status), inv.PaymentAttempts,
		inv.NextPaymentAttempt, nullable(inv.LinkedTransactionID), nullable(inv.AppliedCreditID))
	return err
}

// ExistsForPeriod reports whether an invoice already covers this billing
// period in one of the given statuses, guarding against double-billing a
// period on sweep re-entry.
func (r *InvoiceRepository) ExistsForPeriod(ctx context.Context, ex ports.Executor, subscriptionID string, periodStart, periodEnd time.Time, statuses []models.InvoiceStatus) (bool, error) {
	strStatuses := make([]string, len(statuses))
	for i, s := range statuses {
		strStatuses[i] = string(s)
	}
	var exists bool
	err := ex.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM subscription_invoices
			WHERE subscription_id = $1 AND period_start = $2 AND period_end = $3
			AND status = ANY($4)
		)`, subscriptionID, periodStart, periodEnd, strStatuses).Scan(&exists)
	return exists, err
}

// ListRetryable selects FAILED invoices due for another dunning attempt.
func (r *InvoiceRepository) ListRetryable(ctx context.Context, ex ports.Executor, asOf time.Time, maxAttempts int, limit int32) ([]*models.SubscriptionInvoice, error) {
	rows, err := ex.Query(ctx,
		`SELECT `+selectInvoiceColumns+` FROM subscription_invoices
		 WHERE status = $1 AND payment_attempts < $2
		 AND next_payment_attempt IS NOT NULL AND next_payment_attempt <= $3
		 ORDER BY next_payment_attempt LIMIT $4`,
		string(models.InvoiceStatusFailed), maxAttempts, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SubscriptionInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

var _ ports.InvoiceRepository = (*InvoiceRepository)(nil)
