package postgres

import (
	"context"

	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// CreditNoteRepository implements ports.CreditNoteRepository.
type CreditNoteRepository struct {
	db ports.DBPort
}

// NewCreditNoteRepository creates a CreditNoteRepository.
func NewCreditNoteRepository(db ports.DBPort) *CreditNoteRepository {
	return &CreditNoteRepository{db: db}
}

const insertCreditNoteSQL = `
INSERT INTO credit_notes (id, subscription_id, currency, amount, remaining_amount, reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`

func (r *CreditNoteRepository) Create(ctx context.Context, ex ports.Executor, c *models.CreditNote) error {
	_, err := ex.Exec(ctx, insertCreditNoteSQL,
		c.ID, c.SubscriptionID, c.Currency, c.Amount, c.RemainingAmount, c.Reason, c.CreatedAt)
	return err
}

// ListOutstanding selects credit notes with remaining balance, oldest first,
// so credit is applied on a FIFO basis.
func (r *CreditNoteRepository) ListOutstanding(ctx context.Context, ex ports.Executor, subscriptionID string) ([]*models.CreditNote, error) {
	rows, err := ex.Query(ctx,
		`SELECT id, subscription_id, currency, amount, remaining_amount, reason, created_at
		 FROM credit_notes WHERE subscription_id = $1 AND remaining_amount > 0
		 ORDER BY created_at`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CreditNote
	for rows.Next() {
		var c models.CreditNote
		if err := rows.Scan(&c.ID, &c.SubscriptionID, &c.Currency, &c.Amount, &c.RemainingAmount, &c.Reason, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *CreditNoteRepository) UpdateRemaining(ctx context.Context, ex ports.Executor, id string, remaining decimal.Decimal) error {
	_, err := ex.Exec(ctx, "UPDATE credit_notes SET remaining_amount = $2 WHERE id = $1", id, remaining)
	return err
}

var _ ports.CreditNoteRepository = (*CreditNoteRepository)(nil)
