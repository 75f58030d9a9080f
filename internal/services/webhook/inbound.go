// Package webhook implements the two halves of the webhook pipeline:
// Inbound ingests signed processor notifications and applies them to
// Transaction state; Outbound queues and delivers merchant-facing
// notifications with retry, jitter, and a per-endpoint circuit breaker.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/adapters/processor"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/meridianpay/gatewaycore/pkg/timeutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// dedupWindow is the inbound duplicate-suppression window.
const dedupWindow = 60 * time.Minute

// inboundMaxAttempts is the retry budget for a single inbound event before
// giving up.
const inboundMaxAttempts = 3

// ReceiveResult classifies how an inbound webhook was handled.
type ReceiveResult string

const (
	ReceiveResultProcessed    ReceiveResult = "processed"
	ReceiveResultDuplicate    ReceiveResult = "duplicate"
	ReceiveResultNotProcessed ReceiveResult = "not_processed"
)

// ReceiveResponse is returned to the HTTP-facing caller of Receive.
type ReceiveResponse struct {
	Result  ReceiveResult
	Message string
}

// inboundPayload is the JSON shape of a North-style event notification:
// an envelope identifying the event plus a payload describing the
// transaction it concerns.
type inboundPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Payload   struct {
		TransactionID string  `json:"transaction_id"`
		ResponseCode  string  `json:"response_code"`
		SettleAmount  *string `json:"settle_amount,omitempty"`
		Amount        *string `json:"amount,omitempty"`
	} `json:"payload"`
}

// Inbound verifies, dedupes, and dispatches processor webhook events.
type Inbound struct {
	db             ports.DBPort
	webhooks       ports.WebhookRepository
	txns           ports.TransactionRepository
	inboundSecret  string
	events         ports.OutboundEventEmitter
	logger         *zap.Logger
	now            func() time.Time
}

// NewInbound creates an Inbound processor.
func NewInbound(db ports.DBPort, webhooks ports.WebhookRepository, txns ports.TransactionRepository, inboundSecret string, logger *zap.Logger) *Inbound {
	return &Inbound{
		db: db, webhooks: webhooks, txns: txns, inboundSecret: inboundSecret,
		logger: logger, now: timeutil.Now,
	}
}

// Receive runs the five-step ingestion pipeline: verify, dedup, persist,
// dispatch, and (on transient failure) retry with exponential backoff.
func (in *Inbound) Receive(ctx context.Context, rawPayload []byte, headers map[string]string) (*ReceiveResponse, error) {
	signature := headers["EPI-Signature"]
	if !processor.ValidateSignature(in.inboundSecret, "", rawPayload, signature) {
		return nil, models.ErrWebhookSignatureInvalid
	}

	var parsed inboundPayload
	if err := json.Unmarshal(rawPayload, &parsed); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	since := in.now().Add(-dedupWindow)
	duplicate, err := in.webhooks.ExistsRecent(ctx, in.db.Pool(), parsed.EventID, parsed.EventType, since)
	if err != nil {
		return nil, fmt.Errorf("check duplicate webhook: %w", err)
	}
	if duplicate {
		return &ReceiveResponse{Result: ReceiveResultDuplicate, Message: "event already processed"}, nil
	}

	record := &models.Webhook{
		ID:             uuid.New().String(),
		Direction:      models.WebhookDirectionIn,
		EventType:      parsed.EventType,
		EventID:        parsed.EventID,
		Status:         models.WebhookStatusProcessing,
		MaxAttempts:    inboundMaxAttempts,
		RequestBody:    rawPayload,
		RequestHeaders: headers,
		CorrelationID:  headers["X-Correlation-ID"],
		CreatedAt:      in.now(),
		UpdatedAt:      in.now(),
	}
	if err := in.webhooks.Create(ctx, in.db.Pool(), record); err != nil {
		return nil, fmt.Errorf("persist inbound webhook: %w", err)
	}

	result := ReceiveResultProcessed
	var notProcessedReason string
	attempts := 0

	var applied *models.Transaction
	operation := func() error {
		attempts++
		handled, skipReason, updated, err := in.dispatch(ctx, parsed)
		if err != nil {
			return err
		}
		if !handled {
			notProcessedReason = skipReason
		}
		applied = updated
		return nil
	}

	bo := backoff.WithMaxRetries(newInboundBackoff(), inboundMaxAttempts-1)
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		record.Status = models.WebhookStatusFailed
		record.Attempts = attempts
		record.UpdatedAt = in.now()
		if uErr := in.webhooks.Update(ctx, in.db.Pool(), record); uErr != nil && in.logger != nil {
			in.logger.Warn("failed to persist inbound webhook failure", zap.Error(uErr))
		}
		return nil, fmt.Errorf("process webhook event: %w", err)
	}

	if notProcessedReason != "" {
		result = ReceiveResultNotProcessed
	}

	record.Status = models.WebhookStatusDelivered
	record.Attempts = attempts
	record.UpdatedAt = in.now()
	if err := in.webhooks.Update(ctx, in.db.Pool(), record); err != nil && in.logger != nil {
		in.logger.Warn("failed to persist inbound webhook completion", zap.Error(err))
	}

	// A reconciled state change is merchant-visible; notify downstream.
	// Best-effort: an emit failure never fails the inbound processing.
	if applied != nil && in.events != nil {
		if err := in.events.EmitTransactionEvent(ctx, applied, parsed.EventType); err != nil && in.logger != nil {
			in.logger.Warn("failed to enqueue outbound event", zap.Error(err),
				zap.String("transaction_id", applied.ID))
		}
	}

	return &ReceiveResponse{Result: result, Message: notProcessedReason}, nil
}

// SetEventEmitter attaches the outbound pipeline so reconciled transaction
// state changes are re-broadcast to the merchant endpoint.
func (in *Inbound) SetEventEmitter(e ports.OutboundEventEmitter) {
	in.events = e
}

// newInboundBackoff configures cenkalti/backoff to the same 1s*2^n schedule
// as pkg/resilience.InboundWebhookBackoff.
func newInboundBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2.0
	b.MaxInterval = 4 * time.Second
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return b
}

// dispatch applies one inbound event to the Transaction it concerns, inside
// its own database transaction so the row lock and status write are atomic.
// It returns handled=false for unrecognized event types, which are accepted
// but not processed, and the updated Transaction when a state change was
// actually applied (nil on an idempotent replay).
func (in *Inbound) dispatch(ctx context.Context, parsed inboundPayload) (handled bool, skipReason string, updated *models.Transaction, err error) {
	// An unrecognized event type is accepted without looking up or locking
	// any Transaction.
	if _, ok := classifyEventStatus(parsed, &models.Transaction{}); !ok {
		return false, "not processed", nil, nil
	}
	err = in.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t, lookupErr := in.txns.GetByExternalProcessorID(ctx, tx, parsed.Payload.TransactionID)
		if lookupErr != nil {
			return fmt.Errorf("lookup transaction: %w", lookupErr)
		}
		if t == nil {
			return models.ErrTransactionNotFound
		}
		t, lookupErr = in.txns.GetForUpdate(ctx, tx, t.ID)
		if lookupErr != nil {
			return fmt.Errorf("lock transaction: %w", lookupErr)
		}

		target, ok := classifyEventStatus(parsed, t)
		if !ok {
			handled = false
			skipReason = "not processed"
			return nil
		}
		handled = true

		if t.Status == target {
			return nil // already applied; idempotent replay
		}
		if !t.Status.CanTransitionTo(target) {
			if in.logger != nil {
				in.logger.Warn("inbound webhook target status not reachable, skipping",
					zap.String("transaction_id", t.ID),
					zap.String("current_status", string(t.Status)),
					zap.String("target_status", string(target)))
			}
			return nil
		}

		now := in.now()
		if err := in.txns.UpdateStatus(ctx, tx, t.ID, target, t.ExternalProcessorID, t.AuthCode, t.AVSResponse, t.CVVResponse, &now); err != nil {
			return fmt.Errorf("update transaction status: %w", err)
		}
		t.Status = target
		t.ProcessedAt = &now

		// The processor's settle_amount is authoritative when present: a
		// partial settlement lands with a smaller amount than was requested.
		if target == models.PaymentStatusSettled && parsed.Payload.SettleAmount != nil {
			if settled, convErr := decimal.NewFromString(*parsed.Payload.SettleAmount); convErr == nil && !settled.Equal(t.Amount) {
				if err := in.txns.UpdateAmount(ctx, tx, t.ID, settled); err != nil {
					return fmt.Errorf("update settled amount: %w", err)
				}
				t.Amount = settled
			}
		}
		updated = t
		return nil
	})
	if err != nil {
		return handled, skipReason, nil, err
	}
	return handled, skipReason, updated, nil
}

// classifyEventStatus is the event_type dispatch table, mapping an inbound
// North event onto the PaymentStatus it drives the referenced Transaction to.
func classifyEventStatus(parsed inboundPayload, t *models.Transaction) (models.PaymentStatus, bool) {
	approved := parsed.Payload.ResponseCode == "1"

	switch {
	case strings.HasSuffix(parsed.EventType, "payment.authcapture.created"):
		if approved {
			return models.PaymentStatusSettled, true
		}
		return models.PaymentStatusFailed, true

	case strings.HasSuffix(parsed.EventType, "payment.authorization.created"):
		if approved {
			return models.PaymentStatusAuthorized, true
		}
		return models.PaymentStatusFailed, true

	case strings.HasSuffix(parsed.EventType, "payment.capture.created"):
		return models.PaymentStatusSettled, true

	case strings.HasSuffix(parsed.EventType, "payment.refund.created"):
		amount := parseDecimalOrZero(parsed.Payload.Amount)
		if amount.Equal(t.Amount) {
			return models.PaymentStatusRefunded, true
		}
		return models.PaymentStatusPartiallyRefunded, true

	case strings.HasSuffix(parsed.EventType, "payment.void.created"):
		return models.PaymentStatusVoided, true

	case strings.HasSuffix(parsed.EventType, "payment.fraud.approved"):
		return models.PaymentStatusSettled, true
	case strings.HasSuffix(parsed.EventType, "payment.fraud.declined"):
		return models.PaymentStatusFailed, true
	case strings.HasSuffix(parsed.EventType, "payment.fraud.held"):
		return models.PaymentStatusPendingReview, true

	default:
		return "", false
	}
}

func parseDecimalOrZero(s *string) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
