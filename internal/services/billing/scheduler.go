// Package billing implements the recurring-billing scheduler: three
// cooperative sweeps (hourly billing, daily dunning retries, daily
// lifecycle maintenance) plus a bounded PENDING-transaction reconciliation
// sweep, decoupled from any HTTP trigger so the sweep logic is a pure
// service, matching internal/services/webhook and internal/services/subscription.
package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/meridianpay/gatewaycore/pkg/observability"
	"github.com/meridianpay/gatewaycore/pkg/timeutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GraceDays is the due-date offset a fresh BILL invoice is given.
const GraceDays = 3

// MaxRetryAttempts is the dunning attempt cap past which a
// FAILED invoice and its Subscription are cancelled for non-payment.
const MaxRetryAttempts = 5

// retryDelayDays is the dunning schedule indexed by attempts-so-far.
var retryDelayDays = []int{1, 3, 7, 14, 30}

// sweepBatchSize bounds how many rows a single sweep invocation claims.
const sweepBatchSize = 100

// reconciliationBackfillAfter is the processor deadline past which a PENDING
// transaction becomes a reconciliation candidate (the processor call
// deadline).
const reconciliationBackfillAfter = 30 * time.Second

// Scheduler implements the BillingScheduler's sweeps. Each sweep iterates its
// rows one at a time; a single subscription's failure is logged and does not
// abort the sweep.
type Scheduler struct {
	db           ports.DBPort
	plans        ports.PlanRepository
	subs         ports.SubscriptionRepository
	invoices     ports.InvoiceRepository
	credits      ports.CreditNoteRepository
	txns         ports.TransactionRepository
	orchestrator ports.PaymentOrchestrator
	processor    ports.ProcessorAdapter
	audit        ports.AuditRepository
	logger       *zap.Logger
	now          func() time.Time
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	db ports.DBPort,
	plans ports.PlanRepository,
	subs ports.SubscriptionRepository,
	invoices ports.InvoiceRepository,
	credits ports.CreditNoteRepository,
	txns ports.TransactionRepository,
	orchestrator ports.PaymentOrchestrator,
	processor ports.ProcessorAdapter,
	audit ports.AuditRepository,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		db: db, plans: plans, subs: subs, invoices: invoices, credits: credits,
		txns: txns, orchestrator: orchestrator, processor: processor, audit: audit,
		logger: logger, now: timeutil.Now,
	}
}

// SweepResult tallies one sweep's outcome for logging/metrics.
type SweepResult struct {
	Processed int
	Succeeded int
	Failed    int
}

func (r *SweepResult) record(ok bool) {
	r.Processed++
	if ok {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

func (s *Scheduler) logSweepError(sweep, subscriptionID string, err error) {
	if s.logger != nil {
		s.logger.Warn("billing sweep entry failed", zap.String("sweep", sweep),
			zap.String("subscription_id", subscriptionID), zap.Error(err))
	}
}

// ProcessDueBilling is the hourly sweep: every ACTIVE subscription whose
// next billing date has arrived gets an invoice and a payment attempt.
func (s *Scheduler) ProcessDueBilling(ctx context.Context) SweepResult {
	var result SweepResult
	asOf := s.now()
	due, err := s.subs.ListDueForBilling(ctx, s.db.Pool(), asOf, sweepBatchSize)
	if err != nil {
		s.logSweepError("process_due_billing", "", err)
		return result
	}

	for _, sub := range due {
		err := s.billSubscription(ctx, sub)
		result.record(err == nil)
		if err != nil {
			s.logSweepError("process_due_billing", sub.ID, err)
		}
	}
	return result
}

// billSubscription creates the period's BILL invoice (if one doesn't already
// exist) and attempts payment, advancing or penalizing the subscription by
// outcome.
func (s *Scheduler) billSubscription(ctx context.Context, sub *models.Subscription) error {
	plan, err := s.plans.GetByCode(ctx, s.db.Pool(), sub.PlanCode)
	if err != nil {
		return fmt.Errorf("lookup plan: %w", err)
	}
	if plan == nil {
		return models.ErrPlanNotFound
	}

	exists, err := s.invoices.ExistsForPeriod(ctx, s.db.Pool(), sub.ID, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		[]models.InvoiceStatus{models.InvoiceStatusPending, models.InvoiceStatusProcessing, models.InvoiceStatusPaid})
	if err != nil {
		return fmt.Errorf("check existing invoice: %w", err)
	}
	if exists {
		return nil
	}

	inv, err := s.createInvoice(ctx, sub, plan.Amount, plan.Currency, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if err != nil {
		return fmt.Errorf("create bill invoice: %w", err)
	}

	// attemptPayment persists the invoice's resulting status itself regardless
	// of whether the processor call errored or merely declined; either way an
	// unapproved outcome here still needs the subscription penalized.
	approved, attemptErr := s.attemptPayment(ctx, inv, sub)
	if approved {
		return s.advancePeriod(ctx, sub, plan)
	}
	if err := s.markFirstFailure(ctx, sub); err != nil {
		return fmt.Errorf("mark subscription past due: %w", err)
	}
	if attemptErr != nil {
		return fmt.Errorf("attempt payment: %w", attemptErr)
	}
	return nil
}

// createInvoice builds a BILL invoice for the period, deducting any
// outstanding credit note balance first: a downgrade credit's remaining
// amount is consumed by the next invoice generated for the subscription,
// oldest credit first.
func (s *Scheduler) createInvoice(ctx context.Context, sub *models.Subscription, amount decimal.Decimal, currency string, periodStart, periodEnd time.Time) (*models.SubscriptionInvoice, error) {
	now := s.now()
	inv := &models.SubscriptionInvoice{
		Number:         invoiceNumber(sub.ID, periodStart),
		SubscriptionID: sub.ID,
		Kind:           models.InvoiceKindBill,
		Amount:         amount,
		Currency:       currency,
		Status:         models.InvoiceStatusPending,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		DueDate:        now.AddDate(0, 0, GraceDays),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		outstanding, err := s.credits.ListOutstanding(ctx, tx, sub.ID)
		if err != nil {
			return fmt.Errorf("list outstanding credits: %w", err)
		}
		for _, cn := range outstanding {
			if inv.Amount.LessThanOrEqual(decimal.Zero) {
				break
			}
			applied := cn.Apply(inv.Amount)
			if applied.LessThanOrEqual(decimal.Zero) {
				continue
			}
			inv.Amount = inv.Amount.Sub(applied)
			inv.AppliedCreditID = cn.ID
			if err := s.credits.UpdateRemaining(ctx, tx, cn.ID, cn.RemainingAmount); err != nil {
				return fmt.Errorf("update credit remaining: %w", err)
			}
		}
		return s.invoices.Create(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// attemptPayment charges an invoice through the orchestrator under a
// monotonic attempt-suffixed idempotency key.
func (s *Scheduler) attemptPayment(ctx context.Context, inv *models.SubscriptionInvoice, sub *models.Subscription) (approved bool, err error) {
	inv.Status = models.InvoiceStatusProcessing
	inv.UpdatedAt = s.now()
	if err := s.invoices.Update(ctx, s.db.Pool(), inv); err != nil {
		return false, fmt.Errorf("mark invoice processing: %w", err)
	}

	// A zero-amount invoice (fully absorbed by credit) needs no processor
	// call; it is immediately PAID with no linked Transaction.
	if inv.Amount.LessThanOrEqual(decimal.Zero) {
		inv.Status = models.InvoiceStatusPaid
		inv.UpdatedAt = s.now()
		return true, s.invoices.Update(ctx, s.db.Pool(), inv)
	}

	key := fmt.Sprintf("billing:%s:attempt:%d", inv.Number, inv.PaymentAttempts+1)
	txn, purchaseErr := s.orchestrator.PurchaseStored(ctx, ports.PurchaseStoredRequest{
		PaymentMethodID: sub.PaymentMethodID,
		Amount:          inv.Amount,
		Currency:        inv.Currency,
		IdempotencyKey:  key,
	})

	if purchaseErr != nil {
		inv.Status = models.InvoiceStatusFailed
		inv.PaymentAttempts++
		s.scheduleNextAttempt(inv)
		inv.UpdatedAt = s.now()
		if uErr := s.invoices.Update(ctx, s.db.Pool(), inv); uErr != nil && s.logger != nil {
			s.logger.Warn("failed to persist invoice failure", zap.Error(uErr), zap.String("invoice_number", inv.Number))
		}
		return false, purchaseErr
	}

	if txn.Status == models.PaymentStatusSettled {
		inv.Status = models.InvoiceStatusPaid
		inv.LinkedTransactionID = txn.ID
		inv.UpdatedAt = s.now()
		observability.RecordSubscriptionBilling("success",
			inv.Amount.Mul(decimal.NewFromInt(100)).IntPart(), inv.Currency)
		return true, s.invoices.Update(ctx, s.db.Pool(), inv)
	}

	inv.Status = models.InvoiceStatusFailed
	inv.PaymentAttempts++
	inv.LinkedTransactionID = txn.ID
	s.scheduleNextAttempt(inv)
	inv.UpdatedAt = s.now()
	observability.RecordSubscriptionBilling("failed",
		inv.Amount.Mul(decimal.NewFromInt(100)).IntPart(), inv.Currency)
	return false, s.invoices.Update(ctx, s.db.Pool(), inv)
}

// advancePeriod rolls a successfully-billed subscription's period forward.
func (s *Scheduler) advancePeriod(ctx context.Context, sub *models.Subscription, plan *models.SubscriptionPlan) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := s.subs.GetForUpdate(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return models.ErrSubscriptionNotFound
		}
		newEnd := models.Advance(locked.CurrentPeriodEnd, plan.IntervalUnit, plan.IntervalCount)
		locked.CurrentPeriodStart = locked.CurrentPeriodEnd
		locked.CurrentPeriodEnd = newEnd
		locked.NextBillingDate = &newEnd
		locked.FailureRetryCount = 0
		if locked.Status == models.SubscriptionStatusPastDue {
			locked.Status = models.SubscriptionStatusActive
		}
		locked.UpdatedAt = s.now()
		return s.subs.Update(ctx, tx, locked)
	})
}

// markFirstFailure flips a subscription to PAST_DUE the first time a billing
// attempt fails within its current period.
func (s *Scheduler) markFirstFailure(ctx context.Context, sub *models.Subscription) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := s.subs.GetForUpdate(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return models.ErrSubscriptionNotFound
		}
		locked.FailureRetryCount++
		locked.UpdatedAt = s.now()
		if locked.Status == models.SubscriptionStatusActive && locked.Status.CanTransitionTo(models.SubscriptionStatusPastDue) {
			locked.Status = models.SubscriptionStatusPastDue
		}
		return s.subs.Update(ctx, tx, locked)
	})
}

// RetryFailedPayments is the daily 09:00 dunning sweep.
func (s *Scheduler) RetryFailedPayments(ctx context.Context) SweepResult {
	var result SweepResult
	asOf := s.now()
	retryable, err := s.invoices.ListRetryable(ctx, s.db.Pool(), asOf, MaxRetryAttempts, sweepBatchSize)
	if err != nil {
		s.logSweepError("retry_failed_payments", "", err)
		return result
	}

	for _, inv := range retryable {
		err := s.retryInvoice(ctx, inv)
		result.record(err == nil)
		if err != nil {
			s.logSweepError("retry_failed_payments", inv.SubscriptionID, err)
		}
	}
	return result
}

func (s *Scheduler) retryInvoice(ctx context.Context, inv *models.SubscriptionInvoice) error {
	sub, err := s.subs.GetByID(ctx, s.db.Pool(), inv.SubscriptionID)
	if err != nil {
		return fmt.Errorf("lookup subscription: %w", err)
	}
	if sub == nil {
		return models.ErrSubscriptionNotFound
	}

	// attemptPayment persists the invoice's PROCESSING/FAILED/PAID transitions
	// itself regardless of whether the processor call errored or merely
	// declined, so a non-nil err here still leaves retry bookkeeping to do.
	approved, _ := s.attemptPayment(ctx, inv, sub)

	if approved {
		if sub.Status == models.SubscriptionStatusPastDue {
			return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
				locked, err := s.subs.GetForUpdate(ctx, tx, sub.ID)
				if err != nil {
					return err
				}
				if locked == nil {
					return models.ErrSubscriptionNotFound
				}
				if locked.Status == models.SubscriptionStatusPastDue {
					locked.Status = models.SubscriptionStatusActive
					locked.FailureRetryCount = 0
					locked.UpdatedAt = s.now()
					return s.subs.Update(ctx, tx, locked)
				}
				return nil
			})
		}
		return nil
	}

	if inv.PaymentAttempts >= MaxRetryAttempts {
		return s.cancelForNonPayment(ctx, inv, sub)
	}

	// attemptPayment already scheduled and persisted the next attempt.
	return nil
}

// scheduleNextAttempt stamps the invoice with the dunning schedule's next
// retry time, indexed by attempts so far. An invoice at the attempt cap gets
// no next attempt; the dunning sweep cancels it instead.
func (s *Scheduler) scheduleNextAttempt(inv *models.SubscriptionInvoice) {
	if inv.PaymentAttempts >= MaxRetryAttempts {
		inv.NextPaymentAttempt = nil
		return
	}
	delayIdx := inv.PaymentAttempts - 1
	if delayIdx < 0 {
		delayIdx = 0
	}
	if delayIdx >= len(retryDelayDays) {
		delayIdx = len(retryDelayDays) - 1
	}
	next := s.now().AddDate(0, 0, retryDelayDays[delayIdx])
	inv.NextPaymentAttempt = &next
}

// cancelForNonPayment enacts the termination rule once the dunning attempt
// cap is exhausted.
func (s *Scheduler) cancelForNonPayment(ctx context.Context, inv *models.SubscriptionInvoice, sub *models.Subscription) error {
	inv.Status = models.InvoiceStatusCancelled
	inv.NextPaymentAttempt = nil
	inv.UpdatedAt = s.now()
	if err := s.invoices.Update(ctx, s.db.Pool(), inv); err != nil {
		return fmt.Errorf("cancel invoice: %w", err)
	}

	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := s.subs.GetForUpdate(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if locked == nil || locked.IsCancelled() {
			return nil
		}
		now := s.now()
		locked.Status = models.SubscriptionStatusCancelled
		locked.CancelledAt = &now
		locked.CancellationReason = "non-payment"
		locked.NextBillingDate = nil
		locked.UpdatedAt = now
		if err := s.subs.Update(ctx, tx, locked); err != nil {
			return err
		}
		observability.RecordDunningCancellation()
		if s.audit != nil {
			_ = s.audit.Append(ctx, tx, &models.AuditLog{
				ID: uuid.New().String(), EntityType: "subscription", EntityID: locked.ID,
				FromStatus: string(sub.Status), ToStatus: string(models.SubscriptionStatusCancelled),
				Reason: "non-payment", CreatedAt: now,
			})
		}
		return nil
	})
}

// RunLifecycleSweep is the daily 06:00 sweep: trial expirations, scheduled
// cancellations, and scheduled plan changes.
func (s *Scheduler) RunLifecycleSweep(ctx context.Context) SweepResult {
	var result SweepResult
	asOf := s.now()

	s.processTrialExpirations(ctx, asOf, &result)
	s.processScheduledCancellations(ctx, asOf, &result)
	s.processScheduledPlanChanges(ctx, asOf, &result)

	return result
}

func (s *Scheduler) processTrialExpirations(ctx context.Context, asOf time.Time, result *SweepResult) {
	expiring, err := s.subs.ListTrialsExpiring(ctx, s.db.Pool(), asOf, sweepBatchSize)
	if err != nil {
		s.logSweepError("lifecycle:trial_expiration", "", err)
		return
	}
	for _, sub := range expiring {
		err := s.expireTrial(ctx, sub, asOf)
		result.record(err == nil)
		if err != nil {
			s.logSweepError("lifecycle:trial_expiration", sub.ID, err)
		}
	}
}

func (s *Scheduler) expireTrial(ctx context.Context, sub *models.Subscription, asOf time.Time) error {
	plan, err := s.plans.GetByCode(ctx, s.db.Pool(), sub.PlanCode)
	if err != nil {
		return fmt.Errorf("lookup plan: %w", err)
	}
	if plan == nil {
		return models.ErrPlanNotFound
	}

	periodEnd := models.Advance(asOf, plan.IntervalUnit, plan.IntervalCount)
	err = s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := s.subs.GetForUpdate(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return models.ErrSubscriptionNotFound
		}
		locked.TrialStart = nil
		locked.TrialEnd = nil
		locked.CurrentPeriodStart = asOf
		locked.CurrentPeriodEnd = periodEnd
		locked.NextBillingDate = &periodEnd
		locked.UpdatedAt = s.now()
		return s.subs.Update(ctx, tx, locked)
	})
	if err != nil {
		return err
	}
	sub.TrialStart = nil
	sub.TrialEnd = nil
	sub.CurrentPeriodStart = asOf
	sub.CurrentPeriodEnd = periodEnd
	sub.NextBillingDate = &periodEnd

	return s.billSubscription(ctx, sub)
}

func (s *Scheduler) processScheduledCancellations(ctx context.Context, asOf time.Time, result *SweepResult) {
	scheduled, err := s.subs.ListScheduledCancellations(ctx, s.db.Pool(), asOf, sweepBatchSize)
	if err != nil {
		s.logSweepError("lifecycle:scheduled_cancellation", "", err)
		return
	}
	for _, sub := range scheduled {
		err := s.enactScheduledCancellation(ctx, sub)
		result.record(err == nil)
		if err != nil {
			s.logSweepError("lifecycle:scheduled_cancellation", sub.ID, err)
		}
	}
}

// enactScheduledCancellation finalizes an END_OF_PERIOD cancellation. It
// guards the processor-side recurring-profile cancellation with the same row
// lock used for billing so a processor webhook reporting the profile already
// cancelled is a no-op, not an error.
func (s *Scheduler) enactScheduledCancellation(ctx context.Context, sub *models.Subscription) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := s.subs.GetForUpdate(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if locked == nil || locked.IsCancelled() {
			return nil
		}

		if s.processor != nil {
			if err := s.processor.CancelRecurring(ctx, locked.ID); err != nil && s.logger != nil {
				s.logger.Warn("processor recurring cancellation failed, proceeding locally",
					zap.String("subscription_id", locked.ID), zap.Error(err))
			}
		}

		now := s.now()
		locked.Status = models.SubscriptionStatusCancelled
		locked.CancelledAt = &now
		locked.NextBillingDate = nil
		locked.ScheduledCancelAt = nil
		locked.UpdatedAt = now
		return s.subs.Update(ctx, tx, locked)
	})
}

func (s *Scheduler) processScheduledPlanChanges(ctx context.Context, asOf time.Time, result *SweepResult) {
	scheduled, err := s.subs.ListScheduledPlanChanges(ctx, s.db.Pool(), asOf, sweepBatchSize)
	if err != nil {
		s.logSweepError("lifecycle:scheduled_plan_change", "", err)
		return
	}
	for _, sub := range scheduled {
		err := s.enactScheduledPlanChange(ctx, sub)
		result.record(err == nil)
		if err != nil {
			s.logSweepError("lifecycle:scheduled_plan_change", sub.ID, err)
		}
	}
}

func (s *Scheduler) enactScheduledPlanChange(ctx context.Context, sub *models.Subscription) error {
	newPlan, err := s.plans.GetByCode(ctx, s.db.Pool(), sub.ScheduledPlanCode)
	if err != nil {
		return fmt.Errorf("lookup new plan: %w", err)
	}
	if newPlan == nil {
		return models.ErrPlanNotFound
	}
	if !newPlan.Active {
		return models.ErrPlanInactive
	}

	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := s.subs.GetForUpdate(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return models.ErrSubscriptionNotFound
		}
		now := s.now()
		periodEnd := models.Advance(now, newPlan.IntervalUnit, newPlan.IntervalCount)
		locked.PlanCode = newPlan.Code
		locked.ScheduledPlanCode = ""
		locked.ScheduledPlanChangeAt = nil
		locked.CurrentPeriodStart = now
		locked.CurrentPeriodEnd = periodEnd
		locked.NextBillingDate = &periodEnd
		locked.UpdatedAt = now
		return s.subs.Update(ctx, tx, locked)
	})
}

// RunReconciliationSweep backfills PENDING transactions the processor never
// resolved via webhook within its own deadline.
func (s *Scheduler) RunReconciliationSweep(ctx context.Context) SweepResult {
	var result SweepResult
	if s.processor == nil {
		return result
	}
	cutoff := s.now().Add(-reconciliationBackfillAfter)
	pending, err := s.txns.ListPendingOlderThan(ctx, s.db.Pool(), cutoff, sweepBatchSize)
	if err != nil {
		s.logSweepError("reconciliation", "", err)
		return result
	}

	for _, t := range pending {
		err := s.reconcileTransaction(ctx, t)
		result.record(err == nil)
		if err != nil {
			s.logSweepError("reconciliation", t.ID, err)
		}
	}
	return result
}

func (s *Scheduler) reconcileTransaction(ctx context.Context, t *models.Transaction) error {
	if t.ExternalProcessorID == "" {
		return nil // never reached the processor; nothing to reconcile yet
	}
	outcome, err := s.processor.GetTransaction(ctx, t.ExternalProcessorID)
	if err != nil {
		return fmt.Errorf("backfill lookup: %w", err)
	}

	var target models.PaymentStatus
	switch outcome.Kind {
	case ports.OutcomeApproved:
		target = models.PaymentStatusSettled
	case ports.OutcomeDeclined, ports.OutcomeError:
		target = models.PaymentStatusFailed
	default:
		return nil
	}

	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := s.txns.GetForUpdate(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if locked == nil || locked.Status != models.PaymentStatusPending || !locked.Status.CanTransitionTo(target) {
			return nil
		}
		now := s.now()
		return s.txns.UpdateStatus(ctx, tx, locked.ID, target, outcome.ExternalID, outcome.AuthCode, outcome.AVSResponse, outcome.CVVResponse, &now)
	})
}

func invoiceNumber(subscriptionID string, periodStart time.Time) string {
	return fmt.Sprintf("INV-%s-%s", subscriptionID, strconv.FormatInt(periodStart.Unix(), 36))
}
