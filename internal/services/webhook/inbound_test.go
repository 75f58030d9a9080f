package webhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianpay/gatewaycore/internal/adapters/processor"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testInboundSecret = "shh-its-a-secret"

// mockDB is a ports.DBPort whose WithTx runs fn with a nil pgx.Tx: the
// webhook repository mocks in this file ignore the executor argument.
type mockDB struct{}

func (m *mockDB) Pool() *pgxpool.Pool { return nil }
func (m *mockDB) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	return fn(ctx, nil)
}
func (m *mockDB) WithReadOnlyTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	return fn(ctx, nil)
}

type mockWebhooks struct{ mock.Mock }

func (m *mockWebhooks) Create(ctx context.Context, ex ports.Executor, w *models.Webhook) error {
	return m.Called(ctx, ex, w).Error(0)
}
func (m *mockWebhooks) GetByID(ctx context.Context, ex ports.Executor, id string) (*models.Webhook, error) {
	args := m.Called(ctx, ex, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Webhook), args.Error(1)
}
func (m *mockWebhooks) ExistsRecent(ctx context.Context, ex ports.Executor, eventID, eventType string, since time.Time) (bool, error) {
	args := m.Called(ctx, ex, eventID, eventType, since)
	return args.Bool(0), args.Error(1)
}
func (m *mockWebhooks) Update(ctx context.Context, ex ports.Executor, w *models.Webhook) error {
	return m.Called(ctx, ex, w).Error(0)
}
func (m *mockWebhooks) ListDueForDelivery(ctx context.Context, ex ports.Executor, asOf time.Time, limit int32) ([]*models.Webhook, error) {
	args := m.Called(ctx, ex, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Webhook), args.Error(1)
}
func (m *mockWebhooks) DeleteOlderThan(ctx context.Context, ex ports.Executor, status models.WebhookStatus, before time.Time) (int64, error) {
	args := m.Called(ctx, ex, status, before)
	return args.Get(0).(int64), args.Error(1)
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
func (m *mockTxns) UpdateAmount(ctx context.Context, ex ports.Executor, id string, amount decimal.Decimal) error {
	return m.Called(ctx, ex, id, amount).Error(0)
}
func (m *mockTxns) ListPendingOlderThan(ctx context.Context, ex ports.Executor, before time.Time, limit int32) ([]*models.Transaction, error) {
	args := m.Called(ctx, ex, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func signedPayload(t *testing.T, eventID, eventType, transactionID, responseCode string) []byte {
	t.Helper()
	body := map[string]any{
		"event_id":   eventID,
		"event_type": eventType,
		"payload": map[string]any{
			"transaction_id": transactionID,
			"response_code":  responseCode,
		},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func headersFor(raw []byte) map[string]string {
	return map[string]string{"EPI-Signature": processor.CalculateSignature(testInboundSecret, "", raw)}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestInbound_Receive_RejectsBadSignature(t *testing.T) {
	webhooks := &mockWebhooks{}
	txns := &mockTxns{}
	in := NewInbound(&mockDB{}, webhooks, txns, testInboundSecret, zap.NewNop())

	raw := signedPayload(t, "evt-1", "net.payment.authcapture.created", "txn-ext-1", "1")
	_, err := in.Receive(context.Background(), raw, map[string]string{"EPI-Signature": "not-the-right-signature"})

	require.ErrorIs(t, err, models.ErrWebhookSignatureInvalid)
}

func TestInbound_Receive_DuplicateWithinWindowIsSuppressed(t *testing.T) {
	webhooks := &mockWebhooks{}
	txns := &mockTxns{}

	raw := signedPayload(t, "evt-1", "net.payment.authcapture.created", "txn-ext-1", "1")
	webhooks.On("ExistsRecent", mock.Anything, mock.Anything, "evt-1", "net.payment.authcapture.created", mock.Anything).Return(true, nil)

	in := NewInbound(&mockDB{}, webhooks, txns, testInboundSecret, zap.NewNop())
	resp, err := in.Receive(context.Background(), raw, headersFor(raw))

	require.NoError(t, err)
	require.Equal(t, ReceiveResultDuplicate, resp.Result)
	webhooks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestInbound_Receive_AuthCaptureApprovedSettlesTransaction(t *testing.T) {
	webhooks := &mockWebhooks{}
	txns := &mockTxns{}

	raw := signedPayload(t, "evt-2", "net.payment.authcapture.created", "txn-ext-2", "1")
	webhooks.On("ExistsRecent", mock.Anything, mock.Anything, "evt-2", "net.payment.authcapture.created", mock.Anything).Return(false, nil)
	webhooks.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	webhooks.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	txn := &models.Transaction{ID: "txn-1", ExternalProcessorID: "txn-ext-2", Status: models.PaymentStatusPending, Amount: mustDecimal("10.00")}
	txns.On("GetByExternalProcessorID", mock.Anything, mock.Anything, "txn-ext-2").Return(txn, nil)
	txns.On("GetForUpdate", mock.Anything, mock.Anything, "txn-1").Return(txn, nil)
	txns.On("UpdateStatus", mock.Anything, mock.Anything, "txn-1", models.PaymentStatusSettled, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	in := NewInbound(&mockDB{}, webhooks, txns, testInboundSecret, zap.NewNop())
	resp, err := in.Receive(context.Background(), raw, headersFor(raw))

	require.NoError(t, err)
	require.Equal(t, ReceiveResultProcessed, resp.Result)
	txns.AssertNumberOfCalls(t, "UpdateStatus", 1)
}

// TestInbound_Receive_AppliedTwiceIsIdempotent exercises the replay
// invariant directly at the dispatch layer (bypassing the duplicate-window
// check, which is what would ordinarily prevent a true re-delivery): once a
// Transaction is already in the event's target status, re-dispatch must be a
// no-op rather than erroring or re-emitting another status write.
func TestInbound_Receive_AppliedTwiceIsIdempotent(t *testing.T) {
	webhooks := &mockWebhooks{}
	txns := &mockTxns{}

	raw := signedPayload(t, "evt-3", "net.payment.authcapture.created", "txn-ext-3", "1")
	webhooks.On("ExistsRecent", mock.Anything, mock.Anything, "evt-3", "net.payment.authcapture.created", mock.Anything).Return(false, nil)
	webhooks.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	webhooks.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	txn := &models.Transaction{ID: "txn-2", ExternalProcessorID: "txn-ext-3", Status: models.PaymentStatusSettled, Amount: mustDecimal("10.00")}
	txns.On("GetByExternalProcessorID", mock.Anything, mock.Anything, "txn-ext-3").Return(txn, nil)
	txns.On("GetForUpdate", mock.Anything, mock.Anything, "txn-2").Return(txn, nil)

	in := NewInbound(&mockDB{}, webhooks, txns, testInboundSecret, zap.NewNop())
	resp, err := in.Receive(context.Background(), raw, headersFor(raw))

	require.NoError(t, err)
	require.Equal(t, ReceiveResultProcessed, resp.Result)
	require.Equal(t, models.PaymentStatusSettled, txn.Status)
	txns.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInbound_Receive_UnknownEventTypeIsNotProcessed(t *testing.T) {
	webhooks := &mockWebhooks{}
	txns := &mockTxns{}

	raw := signedPayload(t, "evt-4", "net.something.unrelated", "txn-ext-4", "1")
	webhooks.On("ExistsRecent", mock.Anything, mock.Anything, "evt-4", "net.something.unrelated", mock.Anything).Return(false, nil)
	webhooks.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	webhooks.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	in := NewInbound(&mockDB{}, webhooks, txns, testInboundSecret, zap.NewNop())
	resp, err := in.Receive(context.Background(), raw, headersFor(raw))

	require.NoError(t, err)
	require.Equal(t, ReceiveResultNotProcessed, resp.Result)
	txns.AssertNotCalled(t, "GetByExternalProcessorID", mock.Anything, mock.Anything, mock.Anything)
}

func TestInbound_Receive_SettleAmountOverridesTransactionAmount(t *testing.T) {
	webhooks := &mockWebhooks{}
	txns := &mockTxns{}

	body := map[string]any{
		"event_id":   "evt-settle",
		"event_type": "net.payment.authcapture.created",
		"payload": map[string]any{
			"transaction_id": "txn-ext-9",
			"response_code":  "1",
			"settle_amount":  "7.50",
		},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	webhooks.On("ExistsRecent", mock.Anything, mock.Anything, "evt-settle", "net.payment.authcapture.created", mock.Anything).Return(false, nil)
	webhooks.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	webhooks.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	txn := &models.Transaction{ID: "txn-9", ExternalProcessorID: "txn-ext-9", Status: models.PaymentStatusPending, Amount: mustDecimal("10.00")}
	txns.On("GetByExternalProcessorID", mock.Anything, mock.Anything, "txn-ext-9").Return(txn, nil)
	txns.On("GetForUpdate", mock.Anything, mock.Anything, "txn-9").Return(txn, nil)
	txns.On("UpdateStatus", mock.Anything, mock.Anything, "txn-9", models.PaymentStatusSettled, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	txns.On("UpdateAmount", mock.Anything, mock.Anything, "txn-9", mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(mustDecimal("7.50"))
	})).Return(nil)

	in := NewInbound(&mockDB{}, webhooks, txns, testInboundSecret, zap.NewNop())
	resp, err := in.Receive(context.Background(), raw, headersFor(raw))

	require.NoError(t, err)
	require.Equal(t, ReceiveResultProcessed, resp.Result)
	require.True(t, txn.Amount.Equal(mustDecimal("7.50")))
	txns.AssertExpectations(t)
}
