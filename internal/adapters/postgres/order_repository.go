package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
)

// OrderRepository implements ports.OrderRepository. Orders never change
// state after creation (see models.SummarizeOrder), so there is no Update.
type OrderRepository struct {
	db ports.DBPort
}

// NewOrderRepository creates an OrderRepository.
func NewOrderRepository(db ports.DBPort) *OrderRepository {
	return &OrderRepository{db: db}
}

const insertOrderSQL = `
INSERT INTO orders (id, customer_id, subtotal, tax, shipping, discount)
VALUES ($1,$2,$3,$4,$5,$6)
`

func (r *OrderRepository) Create(ctx context.Context, ex ports.Executor, o *models.Order) error {
	_, err := ex.Exec(ctx, insertOrderSQL, o.ID, o.CustomerID, o.Subtotal, o.Tax, o.Shipping, o.Discount)
	return err
}

func (r *OrderRepository) GetByID(ctx context.Context, ex ports.Executor, id string) (*models.Order, error) {
	row := ex.QueryRow(ctx, "SELECT id, customer_id, subtotal, tax, shipping, discount FROM orders WHERE id = $1", id)
	var o models.Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.Subtotal, &o.Tax, &o.Shipping, &o.Discount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

var _ ports.OrderRepository = (*OrderRepository)(nil)
