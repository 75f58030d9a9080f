package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
)

// PlanRepository implements ports.PlanRepository. Plans are keyed by their
// merchant-chosen code rather than a generated ID: a plan is a catalog
// entry, not an aggregate.
type PlanRepository struct {
	db ports.DBPort
}

// NewPlanRepository creates a PlanRepository.
func NewPlanRepository(db ports.DBPort) *PlanRepository {
	return &PlanRepository{db: db}
}

const insertPlanSQL = `
INSERT INTO subscription_plans (code, name, amount, currency, interval_unit, interval_count,
	trial_days, setup_fee, active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`

func (r *PlanRepository) Create(ctx context.Context, ex ports.Executor, p *models.SubscriptionPlan) error {
	_, err := ex.Exec(ctx, insertPlanSQL, p.Code, p.Name, p.Amount, p.Currency,
		string(p.IntervalUnit), p.IntervalCount, p.TrialDays, p.SetupFee, p.Active)
	return err
}

const selectPlanColumns = `
	code, name, amount, currency, interval_unit, interval_count, trial_days, setup_fee, active
`

func scanPlan(row pgx.Row) (*models.SubscriptionPlan, error) {
	var p models.SubscriptionPlan
	var unit string
	err := row.Scan(&p.Code, &p.Name, &p.Amount, &p.Currency, &unit, &p.IntervalCount,
		&p.TrialDays, &p.SetupFee, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.IntervalUnit = models.IntervalUnit(unit)
	return &p, nil
}

func (r *PlanRepository) GetByCode(ctx context.Context, ex ports.Executor, code string) (*models.SubscriptionPlan, error) {
	row := ex.QueryRow(ctx, "SELECT "+selectPlanColumns+" FROM subscription_plans WHERE code = $1", code)
	return scanPlan(row)
}

func (r *PlanRepository) List(ctx context.Context, ex ports.Executor) ([]*models.SubscriptionPlan, error) {
	rows, err := ex.Query(ctx, "SELECT "+selectPlanColumns+" FROM subscription_plans ORDER BY code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SubscriptionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var _ ports.PlanRepository = (*PlanRepository)(nil)
