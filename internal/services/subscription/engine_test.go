package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockDB is a ports.DBPort whose WithTx runs fn with a nil pgx.Tx: every
// repository mock in this file ignores the executor argument.
type mockDB struct{}

func (m *mockDB) Pool() *pgxpool.Pool { return nil }
func (m *mockDB) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	return fn(ctx, nil)
}
func (m *mockDB) WithReadOnlyTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	return fn(ctx, nil)
}

type mockIdempotency struct{ mock.Mock }

func (m *mockIdempotency) Lookup(ctx context.Context, family ports.IdempotencyFamily, key string) (*ports.IdempotentOutcome, error) {
	args := m.Called(ctx, family, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.IdempotentOutcome), args.Error(1)
}
func (m *mockIdempotency) Record(ctx context.Context, outcome ports.IdempotentOutcome) error {
	return m.Called(ctx, outcome).Error(0)
}

type mockPlans struct{ mock.Mock }

func (m *mockPlans) Create(ctx context.Context, ex ports.Executor, p *models.SubscriptionPlan) error {
	return m.Called(ctx, ex, p).Error(0)
}
func (m *mockPlans) GetByCode(ctx context.Context, ex ports.Executor, code string) (*models.SubscriptionPlan, error) {
	args := m.Called(ctx, ex, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubscriptionPlan), args.Error(1)
}
func (m *mockPlans) List(ctx context.Context, ex ports.Executor) ([]*models.SubscriptionPlan, error) {
	args := m.Called(ctx, ex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SubscriptionPlan), args.Error(1)
}

type mockSubs struct{ mock.Mock }

func (m *mockSubs) Create(ctx context.Context, ex ports.Executor, s *models.Subscription) error {
	return m.Called(ctx, ex, s).Error(0)
}
func (m *mockSubs) GetByID(ctx context.Context, ex ports.Executor, id string) (*models.Subscription, error) {
	args := m.Called(ctx, ex, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *mockSubs) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Subscription, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *mockSubs) GetByIdempotencyKey(ctx context.Context, ex ports.Executor, customerID, key string) (*models.Subscription, error) {
	args := m.Called(ctx, ex, customerID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *mockSubs) Update(ctx context.Context, ex ports.Executor, s *models.Subscription) error {
	return m.Called(ctx, ex, s).Error(0)
}
func (m *mockSubs) ListByCustomer(ctx context.Context, ex ports.Executor, customerID string, page int32) ([]*models.Subscription, error) {
	args := m.Called(ctx, ex, customerID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}
func (m *mockSubs) ListDueForBilling(ctx context.Context, ex ports.Executor, asOf time.Time, limit int32) ([]*models.Subscription, error) {
	args := m.Called(ctx, ex, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}
func (m *mockSubs) ListTrialsExpiring(ctx context.Context, ex ports.Executor, asOf time.Time, limit int32) ([]*models.Subscription, error) {
	args := m.Called(ctx, ex, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}
func (m *mockSubs) ListScheduledCancellations(ctx context.Context, ex ports.Executor, asOf time.Time, limit int32) ([]*models.Subscription, error) {
	args := m.Called(ctx, ex, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}
func (m *mockSubs) ListScheduledPlanChanges(ctx context.Context, ex ports.Executor, asOf time.Time, limit int32) ([]*models.Subscription, error) {
	args := m.Called(ctx, ex, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

type mockInvoices struct{ mock.Mock }

func (m *mockInvoices) Create(ctx context.Context, ex ports.Executor, inv *models.SubscriptionInvoice) error {
	return m.Called(ctx, ex, inv).Error(0)
}
func (m *mockInvoices) GetByNumber(ctx context.Context, ex ports.Executor, number string) (*models.SubscriptionInvoice, error) {
	args := m.Called(ctx, ex, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubscriptionInvoice), args.Error(1)
}
func (m *mockInvoices) Update(ctx context.Context, ex ports.Executor, inv *models.SubscriptionInvoice) error {
	return m.Called(ctx, ex, inv).Error(0)
}
func (m *mockInvoices) ExistsForPeriod(ctx context.Context, ex ports.Executor, subscriptionID string, periodStart, periodEnd time.Time, statuses []models.InvoiceStatus) (bool, error) {
	args := m.Called(ctx, ex, subscriptionID, periodStart, periodEnd, statuses)
	return args.Bool(0), args.Error(1)
}
func (m *mockInvoices) ListRetryable(ctx context.Context, ex ports.Executor, asOf time.Time, maxAttempts int, limit int32) ([]*models.SubscriptionInvoice, error) {
	args := m.Called(ctx, ex, asOf, maxAttempts, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SubscriptionInvoice), args.Error(1)
}

type mockCredits struct{ mock.Mock }

func (m *mockCredits) Create(ctx context.Context, ex ports.Executor, c *models.CreditNote) error {
	return m.Called(ctx, ex, c).Error(0)
}
func (m *mockCredits) ListOutstanding(ctx context.Context, ex ports.Executor, subscriptionID string) ([]*models.CreditNote, error) {
	args := m.Called(ctx, ex, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CreditNote), args.Error(1)
}
func (m *mockCredits) UpdateRemaining(ctx context.Context, ex ports.Executor, id string, remaining decimal.Decimal) error {
	return m.Called(ctx, ex, id, remaining).Error(0)
}

type mockAudit struct{ mock.Mock }

func (m *mockAudit) Append(ctx context.Context, ex ports.Executor, entry *models.AuditLog) error {
	return m.Called(ctx, ex, entry).Error(0)
}

func newTestEngine(idem *mockIdempotency, plans *mockPlans, subs *mockSubs, invoices *mockInvoices, credits *mockCredits, audit *mockAudit) *Engine {
	return NewEngine(&mockDB{}, idem, plans, subs, invoices, credits, audit, zap.NewNop())
}

func TestEngine_Create_TrialSetsActiveWithTrialEnd(t *testing.T) {
	idem := &mockIdempotency{}
	plans := &mockPlans{}
	subs := &mockSubs{}
	invoices := &mockInvoices{}
	credits := &mockCredits{}
	audit := &mockAudit{}

	plan := &models.SubscriptionPlan{
		Code: "pro-monthly", Amount: decimal.RequireFromString("29.99"), Currency: "USD",
		IntervalUnit: models.IntervalMonth, IntervalCount: 1, TrialDays: 14, Active: true,
		SetupFee: decimal.Zero,
	}

	subs.On("GetByIdempotencyKey", mock.Anything, mock.Anything, "cust-1", "idem-1").Return(nil, nil)
	plans.On("GetByCode", mock.Anything, mock.Anything, "pro-monthly").Return(plan, nil)
	subs.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	audit.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	e := newTestEngine(idem, plans, subs, invoices, credits, audit)

	sub, err := e.Create(context.Background(), ports.CreateSubscriptionRequest{
		CustomerID: "cust-1", PlanCode: "pro-monthly", PaymentMethodID: "pm-1",
		StartTrial: true, IdempotencyKey: "idem-1",
	})

	require.NoError(t, err)
	require.Equal(t, models.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.TrialEnd)
	require.NotNil(t, sub.NextBillingDate)
	require.True(t, sub.NextBillingDate.Equal(*sub.TrialEnd))
}

func TestEngine_Create_IdempotentReplayReturnsExisting(t *testing.T) {
	idem := &mockIdempotency{}
	plans := &mockPlans{}
	subs := &mockSubs{}
	invoices := &mockInvoices{}
	credits := &mockCredits{}
	audit := &mockAudit{}

	existing := &models.Subscription{ID: "sub-existing", CustomerID: "cust-1", Status: models.SubscriptionStatusActive}
	subs.On("GetByIdempotencyKey", mock.Anything, mock.Anything, "cust-1", "idem-1").Return(existing, nil)

	e := newTestEngine(idem, plans, subs, invoices, credits, audit)

	sub, err := e.Create(context.Background(), ports.CreateSubscriptionRequest{
		CustomerID: "cust-1", PlanCode: "pro-monthly", IdempotencyKey: "idem-1",
	})

	require.NoError(t, err)
	require.Same(t, existing, sub)
	plans.AssertNotCalled(t, "GetByCode", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_Create_InactivePlanRejected(t *testing.T) {
	idem := &mockIdempotency{}
	plans := &mockPlans{}
	subs := &mockSubs{}
	invoices := &mockInvoices{}
	credits := &mockCredits{}
	audit := &mockAudit{}

	plan := &models.SubscriptionPlan{Code: "legacy", Active: false}
	subs.On("GetByIdempotencyKey", mock.Anything, mock.Anything, "cust-1", "").Return(nil, nil)
	plans.On("GetByCode", mock.Anything, mock.Anything, "legacy").Return(plan, nil)

	e := newTestEngine(idem, plans, subs, invoices, credits, audit)

	_, err := e.Create(context.Background(), ports.CreateSubscriptionRequest{CustomerID: "cust-1", PlanCode: "legacy"})
	require.ErrorIs(t, err, models.ErrPlanInactive)
}

func TestEngine_Cancel_ImmediateIsIdempotentOnRepeat(t *testing.T) {
	idem := &mockIdempotency{}
	plans := &mockPlans{}
	subs := &mockSubs{}
	invoices := &mockInvoices{}
	credits := &mockCredits{}
	audit := &mockAudit{}

	now := time.Now()
	cancelled := &models.Subscription{
		ID: "sub-1", Status: models.SubscriptionStatusCancelled, CancelledAt: &now,
	}
	subs.On("GetForUpdate", mock.Anything, mock.Anything, "sub-1").Return(cancelled, nil)

	e := newTestEngine(idem, plans, subs, invoices, credits, audit)

	sub, err := e.Cancel(context.Background(), ports.CancelSubscriptionRequest{
		SubscriptionID: "sub-1", When: ports.ChangeImmediate,
	})

	require.NoError(t, err)
	require.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	subs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_Cancel_EndOfPeriodSchedulesCancellation(t *testing.T) {
	idem := &mockIdempotency{}
	plans := &mockPlans{}
	subs := &mockSubs{}
	invoices := &mockInvoices{}
	credits := &mockCredits{}
	audit := &mockAudit{}

	periodEnd := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	active := &models.Subscription{ID: "sub-1", Status: models.SubscriptionStatusActive, CurrentPeriodEnd: periodEnd}
	subs.On("GetForUpdate", mock.Anything, mock.Anything, "sub-1").Return(active, nil)
	subs.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	e := newTestEngine(idem, plans, subs, invoices, credits, audit)

	sub, err := e.Cancel(context.Background(), ports.CancelSubscriptionRequest{
		SubscriptionID: "sub-1", When: ports.ChangeEndOfPeriod, Notes: "too expensive",
	})

	require.NoError(t, err)
	require.NotNil(t, sub.ScheduledCancelAt)
	require.True(t, sub.ScheduledCancelAt.Equal(periodEnd))
	require.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestEngine_PauseThenResume(t *testing.T) {
	idem := &mockIdempotency{}
	plans := &mockPlans{}
	subs := &mockSubs{}
	invoices := &mockInvoices{}
	credits := &mockCredits{}
	audit := &mockAudit{}

	active := &models.Subscription{ID: "sub-1", Status: models.SubscriptionStatusActive}
	subs.On("GetForUpdate", mock.Anything, mock.Anything, "sub-1").Return(active, nil)
	subs.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	e := newTestEngine(idem, plans, subs, invoices, credits, audit)

	paused, err := e.Pause(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionStatusPaused, paused.Status)

	resumed, err := e.Resume(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionStatusActive, resumed.Status)
}

func TestEngine_Create_AnchorDoesNotMovePeriodStart(t *testing.T) {
	idem := &mockIdempotency{}
	plans := &mockPlans{}
	subs := &mockSubs{}
	invoices := &mockInvoices{}
	credits := &mockCredits{}
	audit := &mockAudit{}

	plan := &models.SubscriptionPlan{
		Code: "pro-monthly", Amount: decimal.RequireFromString("29.99"), Currency: "USD",
		IntervalUnit: models.IntervalMonth, IntervalCount: 1, Active: true,
		SetupFee: decimal.Zero,
	}

	subs.On("GetByIdempotencyKey", mock.Anything, mock.Anything, "cust-1", "idem-anchor").Return(nil, nil)
	plans.On("GetByCode", mock.Anything, mock.Anything, "pro-monthly").Return(plan, nil)
	subs.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	audit.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	e := newTestEngine(idem, plans, subs, invoices, credits, audit)

	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	anchor := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	sub, err := e.Create(context.Background(), ports.CreateSubscriptionRequest{
		CustomerID: "cust-1", PlanCode: "pro-monthly", PaymentMethodID: "pm-1",
		StartDate: &start, BillingCycleAnchor: &anchor, IdempotencyKey: "idem-anchor",
	})

	require.NoError(t, err)
	require.True(t, sub.CurrentPeriodStart.Equal(start), "period start follows start_date, not the anchor")
	require.True(t, sub.BillingCycleAnchor.Equal(anchor))
	require.True(t, sub.CurrentPeriodEnd.Equal(time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)))
}

func TestEngine_Create_ProratedCreatesFirstPeriodInvoice(t *testing.T) {
	idem := &mockIdempotency{}
	plans := &mockPlans{}
	subs := &mockSubs{}
	invoices := &mockInvoices{}
	credits := &mockCredits{}
	audit := &mockAudit{}

	plan := &models.SubscriptionPlan{
		Code: "pro-monthly", Amount: decimal.RequireFromString("29.99"), Currency: "USD",
		IntervalUnit: models.IntervalMonth, IntervalCount: 1, Active: true,
		SetupFee: decimal.Zero,
	}

	subs.On("GetByIdempotencyKey", mock.Anything, mock.Anything, "cust-1", "idem-pro").Return(nil, nil)
	plans.On("GetByCode", mock.Anything, mock.Anything, "pro-monthly").Return(plan, nil)
	subs.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	invoices.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(inv *models.SubscriptionInvoice) bool {
		return inv.Kind == models.InvoiceKindBill && inv.Amount.Equal(plan.Amount) && inv.Status == models.InvoiceStatusPending
	})).Return(nil)
	audit.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	e := newTestEngine(idem, plans, subs, invoices, credits, audit)

	sub, err := e.Create(context.Background(), ports.CreateSubscriptionRequest{
		CustomerID: "cust-1", PlanCode: "pro-monthly", PaymentMethodID: "pm-1",
		Prorated: true, IdempotencyKey: "idem-pro",
	})

	require.NoError(t, err)
	require.Equal(t, models.SubscriptionStatusActive, sub.Status)
	invoices.AssertExpectations(t)
}
