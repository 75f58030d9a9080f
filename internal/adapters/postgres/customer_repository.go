package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
)

// CustomerRepository implements ports.CustomerRepository.
type CustomerRepository struct {
	db ports.DBPort
}

// NewCustomerRepository creates a CustomerRepository.
func NewCustomerRepository(db ports.DBPort) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const insertCustomerSQL = `
INSERT INTO customers (id, external_reference, email, name, billing_line1, billing_line2,
	billing_city, billing_state, billing_postal_code, billing_country, processor_profile_id,
	active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`

func (r *CustomerRepository) Create(ctx context.Context, ex ports.Executor, c *models.Customer) error {
	_, err := ex.Exec(ctx, insertCustomerSQL,
		c.ID, c.ExternalReference, c.Email, c.Name,
		c.BillingAddress.Line1, c.BillingAddress.Line2, c.BillingAddress.City,
		c.BillingAddress.State, c.BillingAddress.PostalCode, c.BillingAddress.Country,
		nullable(c.ProcessorProfileID), c.Active, c.CreatedAt, c.UpdatedAt)
	return err
}

const selectCustomerColumns = `
	id, external_reference, email, name, billing_line1, billing_line2, billing_city,
	billing_state, billing_postal_code, billing_country, processor_profile_id, active,
	created_at, updated_at
`

func (r *CustomerRepository) scanCustomer(row pgx.Row) (*models.Customer, error) {
	var c models.Customer
	var profileID *string
	err := row.Scan(&c.ID, &c.ExternalReference, &c.Email, &c.Name,
		&c.BillingAddress.Line1, &c.BillingAddress.Line2, &c.BillingAddress.City,
		&c.BillingAddress.State, &c.BillingAddress.PostalCode, &c.BillingAddress.Country,
		&profileID, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if profileID != nil {
		c.ProcessorProfileID = *profileID
	}
	return &c, nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, ex ports.Executor, id string) (*models.Customer, error) {
	row := ex.QueryRow(ctx, "SELECT "+selectCustomerColumns+" FROM customers WHERE id = $1", id)
	return r.scanCustomer(row)
}

func (r *CustomerRepository) GetByEmail(ctx context.Context, ex ports.Executor, email string) (*models.Customer, error) {
	row := ex.QueryRow(ctx, "SELECT "+selectCustomerColumns+" FROM customers WHERE email = $1", email)
	return r.scanCustomer(row)
}

// SetProcessorProfileID implements the lazy, immutable-once-set profile
// backfill: only writes the column if it is currently unset.
func (r *CustomerRepository) SetProcessorProfileID(ctx context.Context, ex ports.Executor, id, profileID string) error {
	_, err := ex.Exec(ctx,
		`UPDATE customers SET processor_profile_id = $2, updated_at = now()
		 WHERE id = $1 AND processor_profile_id IS NULL`, id, profileID)
	return err
}

var _ ports.CustomerRepository = (*CustomerRepository)(nil)
