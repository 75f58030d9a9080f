package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
)

// PaymentMethodRepository implements ports.PaymentMethodRepository.
type PaymentMethodRepository struct {
	db ports.DBPort
}

// NewPaymentMethodRepository creates a PaymentMethodRepository.
func NewPaymentMethodRepository(db ports.DBPort) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

const insertPaymentMethodSQL = `
INSERT INTO payment_methods (id, customer_id, type, token, brand, last_four,
	expiry_month, expiry_year, default_flag, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`

func (r *PaymentMethodRepository) Create(ctx context.Context, ex ports.Executor, pm *models.PaymentMethod) error {
	_, err := ex.Exec(ctx, insertPaymentMethodSQL,
		pm.ID, pm.CustomerID, string(pm.Type), pm.Token, pm.Brand, pm.LastFour,
		pm.ExpiryMonth, pm.ExpiryYear, pm.Default, pm.Active, pm.CreatedAt, pm.UpdatedAt)
	return err
}

const selectPaymentMethodColumns = `
	id, customer_id, type, token, brand, last_four, expiry_month, expiry_year,
	default_flag, active, created_at, updated_at
`

func scanPaymentMethod(row pgx.Row) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	var pmType string
	err := row.Scan(&pm.ID, &pm.CustomerID, &pmType, &pm.Token, &pm.Brand, &pm.LastFour,
		&pm.ExpiryMonth, &pm.ExpiryYear, &pm.Default, &pm.Active, &pm.CreatedAt, &pm.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pm.Type = models.PaymentMethodType(pmType)
	return &pm, nil
}

func (r *PaymentMethodRepository) GetByID(ctx context.Context, ex ports.Executor, id string) (*models.PaymentMethod, error) {
	row := ex.QueryRow(ctx, "SELECT "+selectPaymentMethodColumns+" FROM payment_methods WHERE id = $1", id)
	return scanPaymentMethod(row)
}

func (r *PaymentMethodRepository) ListByCustomer(ctx context.Context, ex ports.Executor, customerID string) ([]*models.PaymentMethod, error) {
	rows, err := ex.Query(ctx, "SELECT "+selectPaymentMethodColumns+" FROM payment_methods WHERE customer_id = $1 ORDER BY created_at", customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}

var _ ports.PaymentMethodRepository = (*PaymentMethodRepository)(nil)
