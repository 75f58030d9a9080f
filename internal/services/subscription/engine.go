// Package subscription implements the subscription lifecycle engine: plan
// subscription, billing-cycle bookkeeping, proration-aware plan changes, and
// cancellation, built over the calendar-clamped Advance() billing math and
// the proration calculator.
package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/meridianpay/gatewaycore/internal/services/proration"
	"github.com/meridianpay/gatewaycore/pkg/timeutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine implements ports.SubscriptionEngine.
type Engine struct {
	db          ports.DBPort
	idempotency ports.IdempotencyStore
	plans       ports.PlanRepository
	subs        ports.SubscriptionRepository
	invoices    ports.InvoiceRepository
	credits     ports.CreditNoteRepository
	audit       ports.AuditRepository
	logger      *zap.Logger
	now         func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(
	db ports.DBPort,
	idempotency ports.IdempotencyStore,
	plans ports.PlanRepository,
	subs ports.SubscriptionRepository,
	invoices ports.InvoiceRepository,
	credits ports.CreditNoteRepository,
	audit ports.AuditRepository,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db: db, idempotency: idempotency, plans: plans, subs: subs,
		invoices: invoices, credits: credits, audit: audit, logger: logger, now: timeutil.Now,
	}
}

// Create implements ports.SubscriptionEngine.
func (e *Engine) Create(ctx context.Context, req ports.CreateSubscriptionRequest) (*models.Subscription, error) {
	if req.IdempotencyKey != "" {
		existing, err := e.subs.GetByIdempotencyKey(ctx, e.db.Pool(), req.CustomerID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	plan, err := e.plans.GetByCode(ctx, e.db.Pool(), req.PlanCode)
	if err != nil {
		return nil, fmt.Errorf("lookup plan: %w", err)
	}
	if plan == nil {
		return nil, models.ErrPlanNotFound
	}
	if !plan.Active {
		return nil, models.ErrPlanInactive
	}

	start := e.now()
	if req.StartDate != nil {
		start = *req.StartDate
	}
	// The anchor aligns future billing to a calendar day; the period itself
	// always begins at the start date.
	anchor := start
	if req.BillingCycleAnchor != nil {
		anchor = *req.BillingCycleAnchor
	}

	sub := &models.Subscription{
		ID:                 uuid.New().String(),
		CustomerID:         req.CustomerID,
		PlanCode:           req.PlanCode,
		PaymentMethodID:    req.PaymentMethodID,
		Status:             models.SubscriptionStatusActive,
		BillingCycleAnchor: anchor,
		IdempotencyKey:     req.IdempotencyKey,
		Metadata:           req.Metadata,
		CreatedAt:          e.now(),
		UpdatedAt:          e.now(),
	}

	inTrial := req.StartTrial && plan.TrialDays > 0
	if inTrial {
		trialEnd := models.Advance(start, models.IntervalDay, plan.TrialDays)
		sub.TrialStart = &start
		sub.TrialEnd = &trialEnd
		sub.CurrentPeriodStart = start
		sub.CurrentPeriodEnd = trialEnd
		sub.NextBillingDate = &trialEnd
	} else {
		periodEnd := models.Advance(start, plan.IntervalUnit, plan.IntervalCount)
		sub.CurrentPeriodStart = start
		sub.CurrentPeriodEnd = periodEnd
		sub.NextBillingDate = &periodEnd
	}

	err = e.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := e.subs.Create(ctx, tx, sub); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		if plan.SetupFee.GreaterThan(decimal.Zero) {
			inv := &models.SubscriptionInvoice{
				Number:         invoiceNumber(sub.ID, 0),
				SubscriptionID: sub.ID,
				Kind:           models.InvoiceKindSetup,
				Amount:         plan.SetupFee,
				Currency:       plan.Currency,
				Status:         models.InvoiceStatusPending,
				PeriodStart:    start,
				PeriodEnd:      start,
				DueDate:        start,
				CreatedAt:      e.now(),
				UpdatedAt:      e.now(),
			}
			if err := e.invoices.Create(ctx, tx, inv); err != nil {
				return fmt.Errorf("create setup invoice: %w", err)
			}
		}
		// A non-trial subscription created with prorated billing is charged
		// its first period up front rather than waiting for the hourly sweep.
		if !inTrial && req.Prorated {
			inv := &models.SubscriptionInvoice{
				Number:         invoiceNumber(sub.ID, 1),
				SubscriptionID: sub.ID,
				Kind:           models.InvoiceKindBill,
				Amount:         plan.Amount,
				Currency:       plan.Currency,
				Status:         models.InvoiceStatusPending,
				PeriodStart:    sub.CurrentPeriodStart,
				PeriodEnd:      sub.CurrentPeriodEnd,
				DueDate:        start,
				CreatedAt:      e.now(),
				UpdatedAt:      e.now(),
			}
			if err := e.invoices.Create(ctx, tx, inv); err != nil {
				return fmt.Errorf("create first-period invoice: %w", err)
			}
		}
		if e.audit != nil {
			_ = e.audit.Append(ctx, tx, &models.AuditLog{
				ID: uuid.New().String(), EntityType: "subscription", EntityID: sub.ID,
				ToStatus: string(sub.Status), Reason: "created", CreatedAt: e.now(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Update implements ports.SubscriptionEngine (plan change with proration).
func (e *Engine) Update(ctx context.Context, req ports.UpdateSubscriptionRequest) (*models.Subscription, error) {
	var result *models.Subscription
	err := e.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sub, err := e.subs.GetForUpdate(ctx, tx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return models.ErrSubscriptionNotFound
		}
		if !sub.IsActive() && sub.Status != models.SubscriptionStatusPastDue {
			return models.ErrSubscriptionNotActive
		}

		oldPlan, err := e.plans.GetByCode(ctx, tx, sub.PlanCode)
		if err != nil || oldPlan == nil {
			return models.ErrPlanNotFound
		}
		newPlan, err := e.plans.GetByCode(ctx, tx, req.NewPlanCode)
		if err != nil || newPlan == nil {
			return models.ErrPlanNotFound
		}
		if !newPlan.Active {
			return models.ErrPlanInactive
		}

		if req.ChangeOption == ports.ChangeEndOfPeriod {
			sub.ScheduledPlanCode = req.NewPlanCode
			sub.ScheduledPlanChangeAt = &sub.CurrentPeriodEnd
			sub.UpdatedAt = e.now()
			result = sub
			return e.subs.Update(ctx, tx, sub)
		}

		now := e.now()
		if req.Prorated {
			pr := proration.CalculatePlanChange(sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now, oldPlan.Amount, newPlan.Amount, oldPlan.Currency)
			if pr.Applies {
				switch pr.Type {
				case ports.ProrationCharge:
					inv := &models.SubscriptionInvoice{
						Number: invoiceNumber(sub.ID, sub.FailureRetryCount+1), SubscriptionID: sub.ID,
						Kind: models.InvoiceKindProrate, Amount: pr.NetAmount, Currency: oldPlan.Currency,
						Status: models.InvoiceStatusPending, PeriodStart: now, PeriodEnd: sub.CurrentPeriodEnd,
						DueDate: now, CreatedAt: now, UpdatedAt: now,
					}
					if err := e.invoices.Create(ctx, tx, inv); err != nil {
						return fmt.Errorf("create proration invoice: %w", err)
					}
				case ports.ProrationCredit:
					cn := &models.CreditNote{
						ID: uuid.New().String(), SubscriptionID: sub.ID, Currency: oldPlan.Currency,
						Amount: pr.NetAmount, RemainingAmount: pr.NetAmount, Reason: "plan downgrade proration",
						CreatedAt: now,
					}
					if err := e.credits.Create(ctx, tx, cn); err != nil {
						return fmt.Errorf("create credit note: %w", err)
					}
				}
			}
		}

		sub.PlanCode = req.NewPlanCode
		sub.ScheduledPlanCode = ""
		sub.ScheduledPlanChangeAt = nil
		sub.UpdatedAt = now
		result = sub
		return e.subs.Update(ctx, tx, sub)
	})
	return result, err
}

// Cancel implements ports.SubscriptionEngine.
func (e *Engine) Cancel(ctx context.Context, req ports.CancelSubscriptionRequest) (*models.Subscription, error) {
	var result *models.Subscription
	err := e.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sub, err := e.subs.GetForUpdate(ctx, tx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return models.ErrSubscriptionNotFound
		}
		if sub.IsCancelled() {
			// Treat a repeat cancellation as an idempotent no-op rather than an
			// error: the processor side may have already reported the
			// subscription cancelled through a separate path.
			result = sub
			return nil
		}

		now := e.now()
		if req.When == ports.ChangeEndOfPeriod {
			cancelAt := sub.CurrentPeriodEnd
			if req.CancelAt != nil {
				cancelAt = *req.CancelAt
			}
			sub.ScheduledCancelAt = &cancelAt
			sub.CancellationReason = req.Notes
			sub.UpdatedAt = now
			result = sub
			return e.subs.Update(ctx, tx, sub)
		}

		if req.RefundProrated {
			plan, err := e.plans.GetByCode(ctx, tx, sub.PlanCode)
			if err == nil && plan != nil {
				pr := proration.CalculateCancellationRefund(sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now, plan.Amount, plan.Currency)
				if pr.Applies && pr.Type == ports.ProrationCredit {
					cn := &models.CreditNote{
						ID: uuid.New().String(), SubscriptionID: sub.ID, Currency: plan.Currency,
						Amount: pr.NetAmount, RemainingAmount: pr.NetAmount, Reason: "cancellation unused-period refund",
						CreatedAt: now,
					}
					_ = e.credits.Create(ctx, tx, cn)
				}
			}
		}

		sub.Status = models.SubscriptionStatusCancelled
		sub.CancelledAt = &now
		sub.CancellationReason = req.Notes
		sub.UpdatedAt = now
		result = sub
		return e.subs.Update(ctx, tx, sub)
	})
	return result, err
}

// Pause implements ports.SubscriptionEngine.
func (e *Engine) Pause(ctx context.Context, id string) (*models.Subscription, error) {
	return e.transitionStatus(ctx, id, models.SubscriptionStatusPaused)
}

// Resume implements ports.SubscriptionEngine.
func (e *Engine) Resume(ctx context.Context, id string) (*models.Subscription, error) {
	return e.transitionStatus(ctx, id, models.SubscriptionStatusActive)
}

func (e *Engine) transitionStatus(ctx context.Context, id string, next models.SubscriptionStatus) (*models.Subscription, error) {
	var result *models.Subscription
	err := e.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sub, err := e.subs.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return models.ErrSubscriptionNotFound
		}
		if !sub.Status.CanTransitionTo(next) {
			return fmt.Errorf("cannot transition subscription from %s to %s", sub.Status, next)
		}
		sub.Status = next
		sub.UpdatedAt = e.now()
		result = sub
		return e.subs.Update(ctx, tx, sub)
	})
	return result, err
}

// Get implements ports.SubscriptionEngine.
func (e *Engine) Get(ctx context.Context, id string) (*models.Subscription, error) {
	sub, err := e.subs.GetByID(ctx, e.db.Pool(), id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, models.ErrSubscriptionNotFound
	}
	return sub, nil
}

// ListByCustomer implements ports.SubscriptionEngine.
func (e *Engine) ListByCustomer(ctx context.Context, customerID string, page int32) ([]*models.Subscription, error) {
	return e.subs.ListByCustomer(ctx, e.db.Pool(), customerID, page)
}

// DueForBilling implements ports.SubscriptionEngine.
func (e *Engine) DueForBilling(ctx context.Context, now time.Time, limit int32) ([]*models.Subscription, error) {
	return e.subs.ListDueForBilling(ctx, e.db.Pool(), now, limit)
}

func invoiceNumber(subscriptionID string, seq int) string {
	return fmt.Sprintf("INV-%s-%d", subscriptionID, seq)
}
