package payment

import (
	"context"
	"encoding/json"
	"errors"
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
// repository mock in this file ignores the executor argument, so a real
// transaction is unnecessary for exercising the orchestrator's control flow.
type mockDB struct{}

func (m *mockDB) Pool() *pgxpool.Pool { return nil }
func (m *mockDB) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	return fn(ctx, nil)
}
func (m *mockDB) WithReadOnlyTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	return fn(ctx, nil)
}

type mockProcessor struct{ mock.Mock }

func (m *mockProcessor) Authorize(ctx context.Context, amount decimal.Decimal, currency string, pm *models.PaymentMethod, billing ports.BillingInfo) (ports.Outcome, error) {
	args := m.Called(ctx, amount, currency, pm, billing)
	return args.Get(0).(ports.Outcome), args.Error(1)
}
func (m *mockProcessor) Capture(ctx context.Context, priorExternalID string, amount *decimal.Decimal) (ports.Outcome, error) {
	args := m.Called(ctx, priorExternalID, amount)
	return args.Get(0).(ports.Outcome), args.Error(1)
}
func (m *mockProcessor) Void(ctx context.Context, priorExternalID string) (ports.Outcome, error) {
	args := m.Called(ctx, priorExternalID)
	return args.Get(0).(ports.Outcome), args.Error(1)
}
func (m *mockProcessor) Refund(ctx context.Context, priorExternalID string, amount *decimal.Decimal, pm *models.PaymentMethod) (ports.Outcome, error) {
	args := m.Called(ctx, priorExternalID, amount, pm)
	return args.Get(0).(ports.Outcome), args.Error(1)
}
func (m *mockProcessor) Purchase(ctx context.Context, amount decimal.Decimal, currency string, pm *models.PaymentMethod, billing ports.BillingInfo) (ports.Outcome, error) {
	args := m.Called(ctx, amount, currency, pm, billing)
	return args.Get(0).(ports.Outcome), args.Error(1)
}
func (m *mockProcessor) CreateCustomerProfile(ctx context.Context, customer *models.Customer) (string, error) {
	args := m.Called(ctx, customer)
	return args.String(0), args.Error(1)
}
func (m *mockProcessor) CreatePaymentProfile(ctx context.Context, profileID string, pm *models.PaymentMethod) (string, error) {
	args := m.Called(ctx, profileID, pm)
	return args.String(0), args.Error(1)
}
func (m *mockProcessor) CreateRecurring(ctx context.Context, profileID string, pm *models.PaymentMethod, plan *models.SubscriptionPlan) (string, error) {
	args := m.Called(ctx, profileID, pm, plan)
	return args.String(0), args.Error(1)
}
func (m *mockProcessor) CancelRecurring(ctx context.Context, gatewaySubscriptionID string) error {
	args := m.Called(ctx, gatewaySubscriptionID)
	return args.Error(0)
}
func (m *mockProcessor) GetTransaction(ctx context.Context, externalID string) (ports.Outcome, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(ports.Outcome), args.Error(1)
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
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

type mockCustomers struct{ mock.Mock }

func (m *mockCustomers) Create(ctx context.Context, ex ports.Executor, c *models.Customer) error {
	return m.Called(ctx, ex, c).Error(0)
}
func (m *mockCustomers) GetByID(ctx context.Context, ex ports.Executor, id string) (*models.Customer, error) {
	args := m.Called(ctx, ex, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}
func (m *mockCustomers) GetByEmail(ctx context.Context, ex ports.Executor, email string) (*models.Customer, error) {
	args := m.Called(ctx, ex, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}
func (m *mockCustomers) SetProcessorProfileID(ctx context.Context, ex ports.Executor, id, profileID string) error {
	return m.Called(ctx, ex, id, profileID).Error(0)
}

type mockMethods struct{ mock.Mock }

func (m *mockMethods) Create(ctx context.Context, ex ports.Executor, pm *models.PaymentMethod) error {
	return m.Called(ctx, ex, pm).Error(0)
}
func (m *mockMethods) GetByID(ctx context.Context, ex ports.Executor, id string) (*models.PaymentMethod, error) {
	args := m.Called(ctx, ex, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentMethod), args.Error(1)
}
func (m *mockMethods) ListByCustomer(ctx context.Context, ex ports.Executor, customerID string) ([]*models.PaymentMethod, error) {
	args := m.Called(ctx, ex, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PaymentMethod), args.Error(1)
}

type mockTxns struct{ mock.Mock }

func (m *mockTxns) Create(ctx context.Context, ex ports.Executor, t *models.Transaction) error {
	return m.Called(ctx, ex, t).Error(0)
}
func (m *mockTxns) GetByID(ctx context.Context, ex ports.Executor, id string) (*models.Transaction, error) {
	args := m.Called(ctx, ex, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *mockTxns) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Transaction, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *mockTxns) GetByIdempotencyKey(ctx context.Context, ex ports.Executor, key string) (*models.Transaction, error) {
	args := m.Called(ctx, ex, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *mockTxns) GetByExternalProcessorID(ctx context.Context, ex ports.Executor, externalID string) (*models.Transaction, error) {
	args := m.Called(ctx, ex, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *mockTxns) UpdateStatus(ctx context.Context, ex ports.Executor, id string, status models.PaymentStatus, externalID, authCode, avs, cvv string, processedAt *time.Time) error {
	return m.Called(ctx, ex, id, status, externalID, authCode, avs, cvv, processedAt).Error(0)
}
func (m *mockTxns) ListChildren(ctx context.Context, ex ports.Executor, parentID string) ([]*models.Transaction, error) {
	args := m.Called(ctx, ex, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}
func (m *mockTxns) ListByCustomer(ctx context.Context, ex ports.Executor, customerID string, limit, offset int32) ([]*models.Transaction, error) {
	args := m.Called(ctx, ex, customerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}
func (m *mockTxns) ListByOrder(ctx context.Context, ex ports.Executor, orderID string) ([]*models.Transaction, error) {
	args := m.Called(ctx, ex, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}
func (m *mockTxns) ListPendingOlderThan(ctx context.Context, ex ports.Executor, before time.Time, limit int32) ([]*models.Transaction, error) {
	args := m.Called(ctx, ex, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}
func (m *mockTxns) UpdateAmount(ctx context.Context, ex ports.Executor, id string, amount decimal.Decimal) error {
	return m.Called(ctx, ex, id, amount).Error(0)
}

type mockAudit struct{ mock.Mock }

func (m *mockAudit) Append(ctx context.Context, ex ports.Executor, entry *models.AuditLog) error {
	return m.Called(ctx, ex, entry).Error(0)
}

func newTestOrchestrator(proc *mockProcessor, idem *mockIdempotency, custs *mockCustomers, methods *mockMethods, txns *mockTxns, audit *mockAudit) *Orchestrator {
	return NewOrchestrator(&mockDB{}, proc, idem, custs, methods, txns, audit, zap.NewNop())
}

func TestOrchestrator_Purchase_Approved_SettlesDirectly(t *testing.T) {
	proc := &mockProcessor{}
	idem := &mockIdempotency{}
	custs := &mockCustomers{}
	methods := &mockMethods{}
	txns := &mockTxns{}
	audit := &mockAudit{}

	idem.On("Lookup", mock.Anything, ports.IdempotencyFamilyPayment, "idem-1").Return(nil, nil)
	idem.On("Record", mock.Anything, mock.Anything).Return(nil)
	custs.On("GetByEmail", mock.Anything, mock.Anything, "buyer@example.com").Return(nil, nil)
	custs.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	custs.On("SetProcessorProfileID", mock.Anything, mock.Anything, mock.Anything, "prof-1").Return(nil)
	methods.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	proc.On("CreateCustomerProfile", mock.Anything, mock.Anything).Return("prof-1", nil)
	proc.On("CreatePaymentProfile", mock.Anything, "prof-1", mock.Anything).Return("payprof-1", nil)
	txns.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	txns.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything, models.PaymentStatusSettled, "ext-123", "AUTH1", "", "", mock.Anything).Return(nil)
	audit.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	proc.On("Purchase", mock.Anything, mock.Anything, "USD", mock.Anything, mock.Anything).
		Return(ports.Outcome{Kind: ports.OutcomeApproved, ExternalID: "ext-123", AuthCode: "AUTH1"}, nil)

	o := newTestOrchestrator(proc, idem, custs, methods, txns, audit)

	req := ports.PurchaseRequest{
		Amount:         decimal.NewFromInt(50),
		Currency:       "USD",
		Card:           ports.CardDetails{Number: "4242 4242 4242 4242", CVV: "123", ExpiryMonth: 12, ExpiryYear: time.Now().Year() + 2, CardholderName: "A Buyer"},
		Customer:       ports.CustomerDetails{Email: "buyer@example.com", FirstName: "A", LastName: "Buyer"},
		IdempotencyKey: "idem-1",
	}

	txn, err := o.Purchase(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSettled, txn.Status)
	require.Equal(t, "ext-123", txn.ExternalProcessorID)
}

func TestOrchestrator_Purchase_Declined(t *testing.T) {
	proc := &mockProcessor{}
	idem := &mockIdempotency{}
	custs := &mockCustomers{}
	methods := &mockMethods{}
	txns := &mockTxns{}
	audit := &mockAudit{}

	idem.On("Lookup", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	idem.On("Record", mock.Anything, mock.Anything).Return(nil)
	custs.On("GetByEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	custs.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	custs.On("SetProcessorProfileID", mock.Anything, mock.Anything, mock.Anything, "prof-1").Return(nil)
	methods.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	proc.On("CreateCustomerProfile", mock.Anything, mock.Anything).Return("prof-1", nil)
	proc.On("CreatePaymentProfile", mock.Anything, "prof-1", mock.Anything).Return("payprof-1", nil)
	txns.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	txns.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything, models.PaymentStatusFailed, "", "", "", "", mock.Anything).Return(nil)
	audit.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	proc.On("Purchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(ports.Outcome{Kind: ports.OutcomeDeclined, DeclineCode: "51", DeclineReason: "insufficient funds"}, nil)

	o := newTestOrchestrator(proc, idem, custs, methods, txns, audit)

	req := ports.PurchaseRequest{
		Amount:         decimal.NewFromInt(50),
		Currency:       "USD",
		Card:           ports.CardDetails{Number: "4000000000000002", CVV: "123", ExpiryMonth: 12, ExpiryYear: time.Now().Year() + 2, CardholderName: "D Cliner"},
		Customer:       ports.CustomerDetails{Email: "declined@example.com"},
		IdempotencyKey: "idem-2",
	}

	txn, err := o.Purchase(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, txn.Status)
}

func TestOrchestrator_Purchase_TransientErrorLeavesPending(t *testing.T) {
	proc := &mockProcessor{}
	idem := &mockIdempotency{}
	custs := &mockCustomers{}
	methods := &mockMethods{}
	txns := &mockTxns{}
	audit := &mockAudit{}

	idem.On("Lookup", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	idem.On("Record", mock.Anything, mock.Anything).Return(nil)
	custs.On("GetByEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	custs.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	custs.On("SetProcessorProfileID", mock.Anything, mock.Anything, mock.Anything, "prof-1").Return(nil)
	methods.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	proc.On("CreateCustomerProfile", mock.Anything, mock.Anything).Return("prof-1", nil)
	proc.On("CreatePaymentProfile", mock.Anything, "prof-1", mock.Anything).Return("payprof-1", nil)
	txns.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	txns.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything, models.PaymentStatusPending, "", "", "", "", mock.Anything).Return(nil)
	audit.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	proc.On("Purchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(ports.Outcome{Kind: ports.OutcomeError, ErrorCode: "TIMEOUT", Transient: true}, nil)

	o := newTestOrchestrator(proc, idem, custs, methods, txns, audit)

	req := ports.PurchaseRequest{
		Amount:         decimal.NewFromInt(50),
		Currency:       "USD",
		Card:           ports.CardDetails{Number: "4242 4242 4242 4242", CVV: "123", ExpiryMonth: 12, ExpiryYear: time.Now().Year() + 2, CardholderName: "A Buyer"},
		Customer:       ports.CustomerDetails{Email: "timeout@example.com"},
		IdempotencyKey: "idem-timeout",
	}

	txn, err := o.Purchase(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPending, txn.Status)
	require.Nil(t, txn.ProcessedAt)
}

func TestOrchestrator_Purchase_IdempotentReplay(t *testing.T) {
	proc := &mockProcessor{}
	idem := &mockIdempotency{}
	custs := &mockCustomers{}
	methods := &mockMethods{}
	txns := &mockTxns{}
	audit := &mockAudit{}

	cached := &models.Transaction{ID: "existing-txn", Status: models.PaymentStatusSettled}
	blob, err := json.Marshal(cached)
	require.NoError(t, err)

	idem.On("Lookup", mock.Anything, ports.IdempotencyFamilyPayment, "replay-key").
		Return(&ports.IdempotentOutcome{Key: "replay-key", ResponseBlob: blob}, nil)

	o := newTestOrchestrator(proc, idem, custs, methods, txns, audit)

	txn, err := o.Purchase(context.Background(), ports.PurchaseRequest{IdempotencyKey: "replay-key"})
	require.NoError(t, err)
	require.Equal(t, "existing-txn", txn.ID)

	proc.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	custs.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_Capture_RejectsNonAuthorizedTransaction(t *testing.T) {
	proc := &mockProcessor{}
	idem := &mockIdempotency{}
	custs := &mockCustomers{}
	methods := &mockMethods{}
	txns := &mockTxns{}
	audit := &mockAudit{}

	idem.On("Lookup", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	txns.On("GetForUpdate", mock.Anything, mock.Anything, "txn-1").
		Return(&models.Transaction{ID: "txn-1", Status: models.PaymentStatusSettled}, nil)

	o := newTestOrchestrator(proc, idem, custs, methods, txns, audit)

	_, err := o.Capture(context.Background(), ports.CaptureRequest{TransactionID: "txn-1"})
	require.ErrorIs(t, err, models.ErrTransactionCannotBeCaptured)
}

func TestOrchestrator_Purchase_RejectsInvalidCard(t *testing.T) {
	proc := &mockProcessor{}
	idem := &mockIdempotency{}
	custs := &mockCustomers{}
	methods := &mockMethods{}
	txns := &mockTxns{}
	audit := &mockAudit{}

	idem.On("Lookup", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	o := newTestOrchestrator(proc, idem, custs, methods, txns, audit)

	base := ports.PurchaseRequest{
		Amount:         decimal.NewFromInt(50),
		Currency:       "USD",
		Customer:       ports.CustomerDetails{Email: "buyer@example.com"},
		IdempotencyKey: "idem-bad-card",
	}
	valid := ports.CardDetails{Number: "4242424242424242", CVV: "123", ExpiryMonth: 12, ExpiryYear: time.Now().Year() + 2, CardholderName: "A Buyer"}

	tests := []struct {
		name    string
		mutate  func(c *ports.CardDetails)
		wantErr error
	}{
		{"short pan", func(c *ports.CardDetails) { c.Number = "4242" }, models.ErrInvalidCardNumber},
		{"non-numeric pan", func(c *ports.CardDetails) { c.Number = "tok_visa_4242" }, models.ErrInvalidCardNumber},
		{"missing cvv", func(c *ports.CardDetails) { c.CVV = "" }, models.ErrInvalidCVV},
		{"five digit cvv", func(c *ports.CardDetails) { c.CVV = "12345" }, models.ErrInvalidCVV},
		{"month out of range", func(c *ports.CardDetails) { c.ExpiryMonth = 13 }, models.ErrInvalidExpiry},
		{"expired year", func(c *ports.CardDetails) { c.ExpiryYear = time.Now().Year() - 1 }, models.ErrInvalidExpiry},
		{"missing cardholder name", func(c *ports.CardDetails) { c.CardholderName = "  " }, models.ErrMissingRequiredField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			req.Card = valid
			tt.mutate(&req.Card)
			_, err := o.Purchase(context.Background(), req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	proc.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	methods.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_Purchase_ProfileCreationFailureDoesNotFailPayment(t *testing.T) {
	proc := &mockProcessor{}
	idem := &mockIdempotency{}
	custs := &mockCustomers{}
	methods := &mockMethods{}
	txns := &mockTxns{}
	audit := &mockAudit{}

	idem.On("Lookup", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	idem.On("Record", mock.Anything, mock.Anything).Return(nil)
	custs.On("GetByEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	custs.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	methods.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	txns.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	txns.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything, models.PaymentStatusSettled, "ext-9", "", "", "", mock.Anything).Return(nil)
	audit.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	proc.On("CreateCustomerProfile", mock.Anything, mock.Anything).Return("", errors.New("processor unavailable"))
	proc.On("Purchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(ports.Outcome{Kind: ports.OutcomeApproved, ExternalID: "ext-9"}, nil)

	o := newTestOrchestrator(proc, idem, custs, methods, txns, audit)

	req := ports.PurchaseRequest{
		Amount:         decimal.NewFromInt(20),
		Currency:       "USD",
		Card:           ports.CardDetails{Number: "4242424242424242", CVV: "123", ExpiryMonth: 12, ExpiryYear: time.Now().Year() + 2, CardholderName: "A Buyer"},
		Customer:       ports.CustomerDetails{Email: "noprofile@example.com"},
		IdempotencyKey: "idem-no-profile",
	}

	txn, err := o.Purchase(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSettled, txn.Status)
	custs.AssertNotCalled(t, "SetProcessorProfileID", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_Purchase_KeyReuseWithDifferentRequestConflicts(t *testing.T) {
	proc := &mockProcessor{}
	idem := &mockIdempotency{}
	custs := &mockCustomers{}
	methods := &mockMethods{}
	txns := &mockTxns{}
	audit := &mockAudit{}

	stored := requestFingerprint(ports.PurchaseRequest{Amount: decimal.NewFromInt(10), Currency: "USD", IdempotencyKey: "K1"})
	idem.On("Lookup", mock.Anything, ports.IdempotencyFamilyPayment, "K1").
		Return(&ports.IdempotentOutcome{Key: "K1", RequestFingerprint: stored, ResponseBlob: []byte("{}")}, nil)

	o := newTestOrchestrator(proc, idem, custs, methods, txns, audit)

	_, err := o.Purchase(context.Background(), ports.PurchaseRequest{Amount: decimal.NewFromInt(99), Currency: "USD", IdempotencyKey: "K1"})
	require.ErrorIs(t, err, models.ErrIdempotencyConflict)
	proc.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
