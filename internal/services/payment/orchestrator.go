// Package payment implements the payment orchestrator: a state
// machine over a single processor wrapping each call in one database
// transaction and one processor request, mapping the processor outcome onto
// this module's own internal/domain/models.
package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
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

// Orchestrator implements ports.PaymentOrchestrator.
type Orchestrator struct {
	db          ports.DBPort
	processor   ports.ProcessorAdapter
	idempotency ports.IdempotencyStore
	customers   ports.CustomerRepository
	methods     ports.PaymentMethodRepository
	txns        ports.TransactionRepository
	audit       ports.AuditRepository
	events      ports.OutboundEventEmitter
	logger      *zap.Logger
	now         func() time.Time
}

// SetEventEmitter attaches the outbound webhook pipeline so transaction
// outcomes are broadcast to the merchant endpoint. Optional; nil disables
// emission.
func (o *Orchestrator) SetEventEmitter(e ports.OutboundEventEmitter) {
	o.events = e
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	db ports.DBPort,
	processor ports.ProcessorAdapter,
	idempotency ports.IdempotencyStore,
	customers ports.CustomerRepository,
	methods ports.PaymentMethodRepository,
	txns ports.TransactionRepository,
	audit ports.AuditRepository,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		db: db, processor: processor, idempotency: idempotency,
		customers: customers, methods: methods, txns: txns, audit: audit,
		logger: logger, now: timeutil.Now,
	}
}

// validateCard enforces the card checks before any persistence or processor
// call: PAN 13-19 digits after whitespace strip, CVV 3-4 digits, expiry
// month/year no earlier than the current calendar month, and a non-empty
// cardholder name.
func (o *Orchestrator) validateCard(card ports.CardDetails) (pan string, err error) {
	pan = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, card.Number)
	if !isDigits(pan) || len(pan) < 13 || len(pan) > 19 {
		return "", models.ErrInvalidCardNumber
	}
	if !isDigits(card.CVV) || len(card.CVV) < 3 || len(card.CVV) > 4 {
		return "", models.ErrInvalidCVV
	}
	if card.ExpiryMonth < 1 || card.ExpiryMonth > 12 {
		return "", models.ErrInvalidExpiry
	}
	y, m, _ := o.now().Date()
	if card.ExpiryYear < y || (card.ExpiryYear == y && card.ExpiryMonth < int(m)) {
		return "", models.ErrInvalidExpiry
	}
	if strings.TrimSpace(card.CardholderName) == "" {
		return "", models.ErrMissingRequiredField
	}
	return pan, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// resolveCustomerAndMethod validates the card, finds-or-creates the Customer
// by email, and inserts a new PaymentMethod for the card on the request,
// inside the active transaction. The full card number is held only in memory
// for the processor call; the persisted row keeps the token reference and
// last four digits.
//
// Processor profile creation is opportunistic: a new customer (or an
// existing one without a profile) gets a profile created on first sight, and
// a failure there never fails the payment, only gets logged for a later
// attempt.
func (o *Orchestrator) resolveCustomerAndMethod(ctx context.Context, tx pgx.Tx, customer ports.CustomerDetails, card ports.CardDetails) (*models.Customer, *models.PaymentMethod, error) {
	pan, err := o.validateCard(card)
	if err != nil {
		return nil, nil, err
	}

	existing, err := o.customers.GetByEmail(ctx, tx, customer.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup customer: %w", err)
	}

	cust := existing
	if cust == nil {
		cust = &models.Customer{
			ID:             uuid.New().String(),
			Email:          customer.Email,
			Name:           fmt.Sprintf("%s %s", customer.FirstName, customer.LastName),
			BillingAddress: customer.Address,
			Active:         true,
			CreatedAt:      o.now(),
			UpdatedAt:      o.now(),
		}
		if err := o.customers.Create(ctx, tx, cust); err != nil {
			return nil, nil, fmt.Errorf("create customer: %w", err)
		}
	}

	pm := &models.PaymentMethod{
		ID:          uuid.New().String(),
		CustomerID:  cust.ID,
		Type:        models.PaymentMethodTypeCard,
		Token:       pan,
		LastFour:    pan[len(pan)-4:],
		ExpiryMonth: card.ExpiryMonth,
		ExpiryYear:  card.ExpiryYear,
		Default:     true,
		Active:      true,
		CreatedAt:   o.now(),
		UpdatedAt:   o.now(),
	}
	if err := o.methods.Create(ctx, tx, pm); err != nil {
		return nil, nil, fmt.Errorf("create payment method: %w", err)
	}

	o.backfillProcessorProfile(ctx, tx, cust, pm)

	return cust, pm, nil
}

// backfillProcessorProfile creates the customer's processor-side profile
// (and a payment profile under it) when one doesn't exist yet. Best-effort:
// any failure is logged and the profile is created on a later payment
// instead.
func (o *Orchestrator) backfillProcessorProfile(ctx context.Context, tx pgx.Tx, cust *models.Customer, pm *models.PaymentMethod) {
	if cust.ProcessorProfileID != "" {
		return
	}

	profileID, err := o.processor.CreateCustomerProfile(ctx, cust)
	if err != nil {
		if o.logger != nil {
			o.logger.Warn("failed to create processor customer profile",
				zap.Error(err), zap.String("customer_id", cust.ID))
		}
		return
	}
	if err := o.customers.SetProcessorProfileID(ctx, tx, cust.ID, profileID); err != nil {
		if o.logger != nil {
			o.logger.Warn("failed to persist processor profile id",
				zap.Error(err), zap.String("customer_id", cust.ID))
		}
		return
	}
	cust.ProcessorProfileID = profileID

	if _, err := o.processor.CreatePaymentProfile(ctx, profileID, pm); err != nil && o.logger != nil {
		o.logger.Warn("failed to create processor payment profile",
			zap.Error(err), zap.String("customer_id", cust.ID), zap.String("payment_method_id", pm.ID))
	}
}

// requestFingerprint hashes the normalized request body so two calls under
// the same idempotency key can be told apart: the same logical request
// replays the stored outcome, a different one is a conflict.
func requestFingerprint(req interface{}) string {
	blob, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// replayOrRecord checks the idempotency store before doing any work, and
// records the resulting transaction afterward. fn performs the actual
// operation and is only invoked on a cache miss. A stored outcome whose
// request fingerprint differs from this call's is a key reuse with a
// different logical request and fails with ErrIdempotencyConflict.
func (o *Orchestrator) replayOrRecord(ctx context.Context, family ports.IdempotencyFamily, key, fingerprint string, fn func() (*models.Transaction, error)) (*models.Transaction, error) {
	if key != "" {
		outcome, err := o.idempotency.Lookup(ctx, family, key)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if outcome != nil {
			if outcome.RequestFingerprint != "" && fingerprint != "" && outcome.RequestFingerprint != fingerprint {
				return nil, models.ErrIdempotencyConflict
			}
			var t models.Transaction
			if err := json.Unmarshal(outcome.ResponseBlob, &t); err != nil {
				return nil, fmt.Errorf("decode idempotent outcome: %w", err)
			}
			return &t, nil
		}
	}

	started := o.now()
	t, err := fn()
	if err != nil {
		return nil, err
	}
	observability.RecordPaymentTransaction(string(t.Type), string(t.Status), t.Currency,
		t.Amount.Mul(decimal.NewFromInt(100)).IntPart(), o.now().Sub(started).Seconds())

	// Best-effort merchant notification; delivery failures are the outbound
	// pipeline's problem, an enqueue failure only gets logged.
	if o.events != nil {
		eventType := fmt.Sprintf("gateway.payment.%s.updated", strings.ToLower(string(t.Type)))
		if err := o.events.EmitTransactionEvent(ctx, t, eventType); err != nil && o.logger != nil {
			o.logger.Warn("failed to enqueue outbound event", zap.Error(err), zap.String("transaction_id", t.ID))
		}
	}

	// Cache whatever Transaction fn produced, terminal or still PENDING on a
	// transient processor error: a retry under the same key must return the
	// existing in-flight Transaction rather than submit a second processor
	// call, leaving reconciliation (webhook or get_transaction) to resolve it.
	if key != "" {
		blob, mErr := json.Marshal(t)
		if mErr == nil {
			if err := o.idempotency.Record(ctx, ports.IdempotentOutcome{
				Key: key, Family: family, RequestFingerprint: fingerprint, ResponseBlob: blob,
			}); err != nil && o.logger != nil {
				o.logger.Warn("failed to record idempotent outcome", zap.Error(err), zap.String("key", key))
			}
		}
	}
	return t, nil
}

// runPurchaseOrAuthorize is shared by Purchase and Authorize: both open a
// customer/payment-method/pending-transaction record in one DB transaction,
// call the processor, then persist the resulting status.
func (o *Orchestrator) runPurchaseOrAuthorize(ctx context.Context, req ports.PurchaseRequest, txType models.TransactionType, captureOnApproval bool) (*models.Transaction, error) {
	var result *models.Transaction

	err := o.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, pm, err := o.resolveCustomerAndMethod(ctx, tx, req.Customer, req.Card)
		if err != nil {
			return err
		}

		t := &models.Transaction{
			ID:              uuid.New().String(),
			OrderID:         req.OrderID,
			CustomerID:      pm.CustomerID,
			PaymentMethodID: pm.ID,
			Type:            txType,
			Status:          models.PaymentStatusPending,
			Amount:          req.Amount,
			Currency:        req.Currency,
			IdempotencyKey:  req.IdempotencyKey,
			CreatedAt:       o.now(),
			UpdatedAt:       o.now(),
		}
		if err := o.txns.Create(ctx, tx, t); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}

		billing := ports.BillingInfo{CardholderName: req.Card.CardholderName, Address: req.Customer.Address}
		var outcome ports.Outcome
		var err2 error
		if captureOnApproval {
			outcome, err2 = o.processor.Purchase(ctx, req.Amount, req.Currency, pm, billing)
		} else {
			outcome, err2 = o.processor.Authorize(ctx, req.Amount, req.Currency, pm, billing)
		}
		if err2 != nil {
			return fmt.Errorf("processor call: %w", err2)
		}

		status, processedAt := o.statusFromOutcome(t.Status, outcome, captureOnApproval)
		if err := o.txns.UpdateStatus(ctx, tx, t.ID, status, outcome.ExternalID, outcome.AuthCode, outcome.AVSResponse, outcome.CVVResponse, processedAt); err != nil {
			return fmt.Errorf("update transaction status: %w", err)
		}
		t.Status = status
		t.ExternalProcessorID = outcome.ExternalID
		t.AuthCode = outcome.AuthCode
		t.AVSResponse = outcome.AVSResponse
		t.CVVResponse = outcome.CVVResponse
		t.ProcessedAt = processedAt

		if o.audit != nil {
			_ = o.audit.Append(ctx, tx, &models.AuditLog{
				ID: uuid.New().String(), EntityType: "transaction", EntityID: t.ID,
				FromStatus: string(models.PaymentStatusPending), ToStatus: string(status),
				Reason: string(outcome.Kind), CreatedAt: o.now(),
			})
		}

		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// statusFromOutcome maps a processor Outcome onto the next PaymentStatus:
// a PURCHASE settles directly from PENDING; an AUTHORIZE-only request stops
// at AUTHORIZED. A transient Error outcome leaves the transaction PENDING
// rather than FAILED, to be resolved by webhook reconciliation or a
// GetTransaction backfill; processedAt stays nil so
// callers can tell an unresolved attempt from a terminal one.
func (o *Orchestrator) statusFromOutcome(current models.PaymentStatus, outcome ports.Outcome, captureOnApproval bool) (models.PaymentStatus, *time.Time) {
	now := o.now()
	switch outcome.Kind {
	case ports.OutcomeApproved:
		if captureOnApproval {
			return models.PaymentStatusSettled, &now
		}
		return models.PaymentStatusAuthorized, &now
	case ports.OutcomeDeclined:
		return models.PaymentStatusFailed, &now
	default:
		if outcome.Transient {
			return models.PaymentStatusPending, nil
		}
		return models.PaymentStatusFailed, &now
	}
}

// Purchase implements ports.PaymentOrchestrator.
func (o *Orchestrator) Purchase(ctx context.Context, req ports.PurchaseRequest) (*models.Transaction, error) {
	return o.replayOrRecord(ctx, ports.IdempotencyFamilyPayment, req.IdempotencyKey, requestFingerprint(req), func() (*models.Transaction, error) {
		return o.runPurchaseOrAuthorize(ctx, req, models.TransactionTypePurchase, true)
	})
}

// Authorize implements ports.PaymentOrchestrator.
func (o *Orchestrator) Authorize(ctx context.Context, req ports.PurchaseRequest) (*models.Transaction, error) {
	return o.replayOrRecord(ctx, ports.IdempotencyFamilyPayment, req.IdempotencyKey, requestFingerprint(req), func() (*models.Transaction, error) {
		return o.runPurchaseOrAuthorize(ctx, req, models.TransactionTypeAuthorize, false)
	})
}

// Capture implements ports.PaymentOrchestrator.
func (o *Orchestrator) Capture(ctx context.Context, req ports.CaptureRequest) (*models.Transaction, error) {
	return o.replayOrRecord(ctx, ports.IdempotencyFamilyPayment, req.IdempotencyKey, requestFingerprint(req), func() (*models.Transaction, error) {
		var result *models.Transaction
		err := o.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			parent, err := o.txns.GetForUpdate(ctx, tx, req.TransactionID)
			if err != nil {
				return err
			}
			if parent == nil {
				return models.ErrTransactionNotFound
			}
			if !parent.CanCapture() {
				return models.ErrTransactionCannotBeCaptured
			}

			outcome, err := o.processor.Capture(ctx, parent.ExternalProcessorID, req.Amount)
			if err != nil {
				return fmt.Errorf("processor call: %w", err)
			}

			status, processedAt := o.statusFromOutcome(parent.Status, outcome, true)
			amount := parent.Amount
			if req.Amount != nil {
				amount = *req.Amount
			}

			child := &models.Transaction{
				ID: uuid.New().String(), ParentID: parent.ID, OrderID: parent.OrderID,
				CustomerID: parent.CustomerID, PaymentMethodID: parent.PaymentMethodID,
				Type: models.TransactionTypeCapture, Status: status, Amount: amount,
				Currency: parent.Currency, ExternalProcessorID: outcome.ExternalID,
				AuthCode: outcome.AuthCode, CreatedAt: o.now(), UpdatedAt: o.now(), ProcessedAt: processedAt,
			}
			if err := o.txns.Create(ctx, tx, child); err != nil {
				return fmt.Errorf("create capture transaction: %w", err)
			}
			if err := o.txns.UpdateStatus(ctx, tx, parent.ID, status, parent.ExternalProcessorID, parent.AuthCode, parent.AVSResponse, parent.CVVResponse, processedAt); err != nil {
				return fmt.Errorf("update parent status: %w", err)
			}
			result = child
			return nil
		})
		return result, err
	})
}

// Void implements ports.PaymentOrchestrator.
func (o *Orchestrator) Void(ctx context.Context, req ports.VoidRequest) (*models.Transaction, error) {
	return o.replayOrRecord(ctx, ports.IdempotencyFamilyPayment, req.IdempotencyKey, requestFingerprint(req), func() (*models.Transaction, error) {
		var result *models.Transaction
		err := o.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			parent, err := o.txns.GetForUpdate(ctx, tx, req.TransactionID)
			if err != nil {
				return err
			}
			if parent == nil {
				return models.ErrTransactionNotFound
			}
			if !parent.CanVoid() {
				return models.ErrTransactionCannotBeVoided
			}

			outcome, err := o.processor.Void(ctx, parent.ExternalProcessorID)
			if err != nil {
				return fmt.Errorf("processor call: %w", err)
			}

			now := o.now()
			status := models.PaymentStatusVoided
			if outcome.Kind != ports.OutcomeApproved {
				status = models.PaymentStatusFailed
			}
			if err := o.txns.UpdateStatus(ctx, tx, parent.ID, status, parent.ExternalProcessorID, parent.AuthCode, parent.AVSResponse, parent.CVVResponse, &now); err != nil {
				return fmt.Errorf("update status: %w", err)
			}
			parent.Status = status
			parent.ProcessedAt = &now
			result = parent
			return nil
		})
		return result, err
	})
}

// Refund implements ports.PaymentOrchestrator.
func (o *Orchestrator) Refund(ctx context.Context, req ports.RefundRequest) (*models.Transaction, error) {
	return o.replayOrRecord(ctx, ports.IdempotencyFamilyRefund, req.IdempotencyKey, requestFingerprint(req), func() (*models.Transaction, error) {
		var result *models.Transaction
		err := o.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			parent, err := o.txns.GetForUpdate(ctx, tx, req.TransactionID)
			if err != nil {
				return err
			}
			if parent == nil {
				return models.ErrTransactionNotFound
			}
			if !parent.CanRefund() {
				return models.ErrTransactionCannotBeRefunded
			}

			var pm *models.PaymentMethod
			if parent.PaymentMethodID != "" {
				pm, _ = o.methods.GetByID(ctx, tx, parent.PaymentMethodID)
			}

			outcome, err := o.processor.Refund(ctx, parent.ExternalProcessorID, req.Amount, pm)
			if err != nil {
				return fmt.Errorf("processor call: %w", err)
			}

			refundAmount := parent.Amount
			if req.Amount != nil {
				refundAmount = *req.Amount
			}
			partial := refundAmount.LessThan(parent.Amount)

			status := models.PaymentStatusRefunded
			txType := models.TransactionTypeRefund
			if partial {
				status = models.PaymentStatusPartiallyRefunded
				txType = models.TransactionTypePartialRefund
			}
			if outcome.Kind != ports.OutcomeApproved {
				status = models.PaymentStatusFailed
			}

			now := o.now()
			child := &models.Transaction{
				ID: uuid.New().String(), ParentID: parent.ID, OrderID: parent.OrderID,
				CustomerID: parent.CustomerID, PaymentMethodID: parent.PaymentMethodID,
				Type: txType, Status: status, Amount: refundAmount, Currency: parent.Currency,
				ExternalProcessorID: outcome.ExternalID, CreatedAt: now, UpdatedAt: now, ProcessedAt: &now,
			}
			if err := o.txns.Create(ctx, tx, child); err != nil {
				return fmt.Errorf("create refund transaction: %w", err)
			}
			if outcome.Kind == ports.OutcomeApproved {
				if err := o.txns.UpdateStatus(ctx, tx, parent.ID, status, parent.ExternalProcessorID, parent.AuthCode, parent.AVSResponse, parent.CVVResponse, &now); err != nil {
					return fmt.Errorf("update parent status: %w", err)
				}
			}
			result = child
			return nil
		})
		return result, err
	})
}

// PurchaseStored implements ports.PaymentOrchestrator: a charge against a
// PaymentMethod already on file, for callers (the billing scheduler's
// payment attempts) that never see raw card details.
func (o *Orchestrator) PurchaseStored(ctx context.Context, req ports.PurchaseStoredRequest) (*models.Transaction, error) {
	return o.replayOrRecord(ctx, ports.IdempotencyFamilyBillingAttempt, req.IdempotencyKey, requestFingerprint(req), func() (*models.Transaction, error) {
		var result *models.Transaction
		err := o.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			pm, err := o.methods.GetByID(ctx, tx, req.PaymentMethodID)
			if err != nil {
				return fmt.Errorf("lookup payment method: %w", err)
			}
			if pm == nil {
				return models.ErrPaymentMethodNotFound
			}
			if !pm.Active || pm.IsExpired(o.now()) {
				return models.ErrInvalidExpiry
			}

			cust, err := o.customers.GetByID(ctx, tx, pm.CustomerID)
			if err != nil {
				return fmt.Errorf("lookup customer: %w", err)
			}
			if cust == nil {
				return models.ErrCustomerNotFound
			}

			t := &models.Transaction{
				ID:              uuid.New().String(),
				OrderID:         req.OrderID,
				CustomerID:      cust.ID,
				PaymentMethodID: pm.ID,
				Type:            models.TransactionTypePurchase,
				Status:          models.PaymentStatusPending,
				Amount:          req.Amount,
				Currency:        req.Currency,
				IdempotencyKey:  req.IdempotencyKey,
				CreatedAt:       o.now(),
				UpdatedAt:       o.now(),
			}
			if err := o.txns.Create(ctx, tx, t); err != nil {
				return fmt.Errorf("create transaction: %w", err)
			}

			billing := ports.BillingInfo{CardholderName: cust.Name, Address: cust.BillingAddress}
			outcome, err := o.processor.Purchase(ctx, req.Amount, req.Currency, pm, billing)
			if err != nil {
				return fmt.Errorf("processor call: %w", err)
			}

			status, processedAt := o.statusFromOutcome(t.Status, outcome, true)
			if err := o.txns.UpdateStatus(ctx, tx, t.ID, status, outcome.ExternalID, outcome.AuthCode, outcome.AVSResponse, outcome.CVVResponse, processedAt); err != nil {
				return fmt.Errorf("update transaction status: %w", err)
			}
			t.Status = status
			t.ExternalProcessorID = outcome.ExternalID
			t.AuthCode = outcome.AuthCode
			t.AVSResponse = outcome.AVSResponse
			t.CVVResponse = outcome.CVVResponse
			t.ProcessedAt = processedAt

			if o.audit != nil {
				_ = o.audit.Append(ctx, tx, &models.AuditLog{
					ID: uuid.New().String(), EntityType: "transaction", EntityID: t.ID,
					FromStatus: string(models.PaymentStatusPending), ToStatus: string(status),
					Reason: string(outcome.Kind), CreatedAt: o.now(),
				})
			}

			result = t
			return nil
		})
		return result, err
	})
}

// Status implements ports.PaymentOrchestrator.
func (o *Orchestrator) Status(ctx context.Context, id string) (*models.Transaction, error) {
	t, err := o.txns.GetByID(ctx, o.db.Pool(), id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, models.ErrTransactionNotFound
	}
	return t, nil
}
