package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// TransactionRepository implements ports.TransactionRepository, including
// the pessimistic row lock for read-modify-write status transitions
// (GetForUpdate).
type TransactionRepository struct {
	db ports.DBPort
}

// NewTransactionRepository creates a TransactionRepository.
func NewTransactionRepository(db ports.DBPort) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const insertTransactionSQL = `
INSERT INTO transactions (id, external_processor_id, parent_id, order_id, customer_id,
	payment_method_id, subscription_id, type, status, amount, currency, idempotency_key,
	correlation_id, auth_code, avs_response, cvv_response, created_at, updated_at, processed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
`

func (r *TransactionRepository) Create(ctx context.Context, ex ports.Executor, t *models.Transaction) error {
	_, err := ex.Exec(ctx, insertTransactionSQL,
		t.ID, nullable(t.ExternalProcessorID), nullable(t.ParentID), nullable(t.OrderID),
		nullable(t.CustomerID), nullable(t.PaymentMethodID), nullable(t.SubscriptionID),
		string(t.Type), string(t.Status), t.Amount, t.Currency, nullable(t.IdempotencyKey),
		nullable(t.CorrelationID), nullable(t.AuthCode), nullable(t.AVSResponse),
		nullable(t.CVVResponse), t.CreatedAt, t.UpdatedAt, t.ProcessedAt)
	return err
}

const selectTransactionColumns = `
	id, external_processor_id, parent_id, order_id, customer_id, payment_method_id,
	subscription_id, type, status, amount, currency, idempotency_key, correlation_id,
	auth_code, avs_response, cvv_response, created_at, updated_at, processed_at
`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	var externalID, parentID, orderID, customerID, pmID, subID, idemKey, corrID, authCode, avs, cvv *string
	var txType, status string
	err := row.Scan(&t.ID, &externalID, &parentID, &orderID, &customerID, &pmID, &subID,
		&txType, &status, &t.Amount, &t.Currency, &idemKey, &corrID, &authCode, &avs, &cvv,
		&t.CreatedAt, &t.UpdatedAt, &t.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.ExternalProcessorID = orEmpty(externalID)
	t.ParentID = orEmpty(parentID)
	t.OrderID = orEmpty(orderID)
	t.CustomerID = orEmpty(customerID)
	t.PaymentMethodID = orEmpty(pmID)
	t.SubscriptionID = orEmpty(subID)
	t.IdempotencyKey = orEmpty(idemKey)
	t.CorrelationID = orEmpty(corrID)
	t.AuthCode = orEmpty(authCode)
	t.AVSResponse = orEmpty(avs)
	t.CVVResponse = orEmpty(cvv)
	t.Type = models.TransactionType(txType)
	t.Status = models.PaymentStatus(status)
	return &t, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, ex ports.Executor, id string) (*models.Transaction, error) {
	row := ex.QueryRow(ctx, "SELECT "+selectTransactionColumns+" FROM transactions WHERE id = $1", id)
	return scanTransaction(row)
}

// GetForUpdate acquires the per-transaction row lock needed before
// a read-modify-write status change; callers must hold tx until the status
// update commits.
func (r *TransactionRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Transaction, error) {
	row := tx.QueryRow(ctx, "SELECT "+selectTransactionColumns+" FROM transactions WHERE id = $1 FOR UPDATE", id)
	return scanTransaction(row)
}

func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, ex ports.Executor, key string) (*models.Transaction, error) {
	row := ex.QueryRow(ctx, "SELECT "+selectTransactionColumns+" FROM transactions WHERE idempotency_key = $1", key)
	return scanTransaction(row)
}

func (r *TransactionRepository) GetByExternalProcessorID(ctx context.Context, ex ports.Executor, externalID string) (*models.Transaction, error) {
	row := ex.QueryRow(ctx, "SELECT "+selectTransactionColumns+" FROM transactions WHERE external_processor_id = $1", externalID)
	return scanTransaction(row)
}

const updateTransactionStatusSQL = `
UPDATE transactions
SET status = $2, external_processor_id = COALESCE($3, external_processor_id),
	auth_code = COALESCE($4, auth_code), avs_response = COALESCE($5, avs_response),
	cvv_response = COALESCE($6, cvv_response), processed_at = $7, updated_at = now()
WHERE id = $1
`

func (r *TransactionRepository) UpdateStatus(ctx context.Context, ex ports.Executor, id string, status models.PaymentStatus, externalID, authCode, avs, cvv string, processedAt *time.Time) error {
	_, err := ex.Exec(ctx, updateTransactionStatusSQL, id, string(status),
		nullable(externalID), nullable(authCode), nullable(avs), nullable(cvv), processedAt)
	return err
}

// UpdateAmount overwrites the transaction amount with the processor's
// authoritative settled amount, reported via webhook for partial
// settlements.
func (r *TransactionRepository) UpdateAmount(ctx context.Context, ex ports.Executor, id string, amount decimal.Decimal) error {
	_, err := ex.Exec(ctx, "UPDATE transactions SET amount = $2, updated_at = now() WHERE id = $1", id, amount)
	return err
}

func (r *TransactionRepository) ListChildren(ctx context.Context, ex ports.Executor, parentID string) ([]*models.Transaction, error) {
	rows, err := ex.Query(ctx, "SELECT "+selectTransactionColumns+" FROM transactions WHERE parent_id = $1 ORDER BY created_at", parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (r *TransactionRepository) ListByCustomer(ctx context.Context, ex ports.Executor, customerID string, limit, offset int32) ([]*models.Transaction, error) {
	rows, err := ex.Query(ctx,
		"SELECT "+selectTransactionColumns+" FROM transactions WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		customerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (r *TransactionRepository) ListByOrder(ctx context.Context, ex ports.Executor, orderID string) ([]*models.Transaction, error) {
	rows, err := ex.Query(ctx, "SELECT "+selectTransactionColumns+" FROM transactions WHERE order_id = $1 ORDER BY created_at", orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// ListPendingOlderThan backs the reconciliation sweep:
// transactions that never received a terminal status or inbound webhook
// within the processor's own deadline are candidates for a GetTransaction
// backfill.
func (r *TransactionRepository) ListPendingOlderThan(ctx context.Context, ex ports.Executor, before time.Time, limit int32) ([]*models.Transaction, error) {
	rows, err := ex.Query(ctx,
		"SELECT "+selectTransactionColumns+" FROM transactions WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3",
		string(models.PaymentStatusPending), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

var _ ports.TransactionRepository = (*TransactionRepository)(nil)
