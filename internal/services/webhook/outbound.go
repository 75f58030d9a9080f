package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridianpay/gatewaycore/internal/adapters/circuitbreaker"
	"github.com/meridianpay/gatewaycore/internal/adapters/processor"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/meridianpay/gatewaycore/pkg/observability"
	"github.com/meridianpay/gatewaycore/pkg/resilience"
	"github.com/meridianpay/gatewaycore/pkg/resourcemgmt"
	"github.com/meridianpay/gatewaycore/pkg/timeutil"
	"go.uber.org/zap"
)

// outboundSweepBatchSize bounds how many due deliveries one sweep claims.
const outboundSweepBatchSize = 100

// outboundConcurrency bounds simultaneous in-flight deliveries so one slow
// endpoint cannot stall the sweep.
const outboundConcurrency = 10

const (
	cleanupDeliveredAfter = 7 * 24 * time.Hour
	cleanupFailedAfter    = 30 * 24 * time.Hour
)

// Outbound queues and delivers merchant-facing webhook notifications.
type Outbound struct {
	db              ports.DBPort
	webhooks        ports.WebhookRepository
	httpClient      *http.Client
	breakers        *circuitbreaker.Registry
	tracker         *resourcemgmt.GoroutineTracker
	secret          string
	defaultEndpoint string
	logger          *zap.Logger
	now             func() time.Time
}

// NewOutbound creates an Outbound delivery pipeline. defaultEndpoint is the
// merchant endpoint EmitTransactionEvent targets; empty disables emission.
func NewOutbound(db ports.DBPort, webhooks ports.WebhookRepository, httpClient *http.Client, breakers *circuitbreaker.Registry, tracker *resourcemgmt.GoroutineTracker, signingSecret, defaultEndpoint string, logger *zap.Logger) *Outbound {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Outbound{
		db: db, webhooks: webhooks, httpClient: httpClient, breakers: breakers,
		tracker: tracker, secret: signingSecret, defaultEndpoint: defaultEndpoint,
		logger: logger, now: timeutil.Now,
	}
}

// outboundMaxAttempts bounds retries before a delivery is marked terminally
// FAILED. The 11 retries wait 1,2,4,...,1024 min (±10% jitter) on the
// WebhookBackoff curve, so its 1440-min cap is never reached.
const outboundMaxAttempts = 12

// Enqueue records a new outbound event for delivery. EmitTransactionEvent
// calls it for transaction state changes.
func (o *Outbound) Enqueue(ctx context.Context, eventType, endpointURL string, payload []byte, correlationID string) error {
	now := o.now()
	w := &models.Webhook{
		ID:            uuid.New().String(),
		Direction:     models.WebhookDirectionOut,
		EventType:     eventType,
		EventID:       uuid.New().String(),
		EndpointURL:   endpointURL,
		Status:        models.WebhookStatusPending,
		MaxAttempts:   outboundMaxAttempts,
		NextAttemptAt: &now,
		RequestBody:   payload,
		CorrelationID: correlationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return o.webhooks.Create(ctx, o.db.Pool(), w)
}

// EmitTransactionEvent implements ports.OutboundEventEmitter: it wraps a
// transaction state change in the merchant-facing envelope and enqueues it
// against the configured default endpoint. A gateway with no endpoint
// configured emits nothing.
func (o *Outbound) EmitTransactionEvent(ctx context.Context, t *models.Transaction, eventType string) error {
	if o.defaultEndpoint == "" {
		return nil
	}
	env := models.OutboundEnvelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		EventDate: o.now(),
		Payload: models.OutboundEnvelopePayload{
			TransactionID: t.ID,
			ResponseCode:  string(t.Status),
			AuthCode:      t.AuthCode,
			AVSResponse:   t.AVSResponse,
			CVVResponse:   t.CVVResponse,
		},
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal outbound envelope: %w", err)
	}
	correlation := t.CorrelationID
	if correlation == "" {
		correlation = t.ID
	}
	return o.Enqueue(ctx, eventType, o.defaultEndpoint, body, correlation)
}

// RunSweep selects due outbound webhooks and delivers them with bounded
// concurrency. Scheduled every 5 minutes.
func (o *Outbound) RunSweep(ctx context.Context) {
	due, err := o.webhooks.ListDueForDelivery(ctx, o.db.Pool(), o.now(), outboundSweepBatchSize)
	if err != nil {
		if o.logger != nil {
			o.logger.Error("list due webhooks failed", zap.Error(err))
		}
		return
	}
	if len(due) == 0 {
		return
	}

	sem := make(chan struct{}, outboundConcurrency)
	var wg sync.WaitGroup
	for _, w := range due {
		w := w
		wg.Add(1)
		sem <- struct{}{}
		run := func(ctx context.Context) {
			defer wg.Done()
			defer func() { <-sem }()
			o.deliver(ctx, w)
		}
		if o.tracker != nil {
			o.tracker.GoWithContext(ctx, "webhook_delivery", run)
		} else {
			go run(ctx)
		}
	}
	wg.Wait()
}

// deliver performs one HTTP delivery attempt and persists the resulting
// state: 2xx delivers, 4xx (except 429) fails terminally, 429/5xx/transport
// errors schedule a retry on the backoff curve.
func (o *Outbound) deliver(ctx context.Context, w *models.Webhook) {
	breaker := o.breakers.For(w.EndpointURL)
	started := o.now()

	var statusCode int
	var respHeaders map[string]string
	var respBody []byte
	deliveryErr := breaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.EndpointURL, bytes.NewReader(w.RequestBody))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Correlation-ID", w.CorrelationID)
		req.Header.Set("X-Webhook-ID", w.ID)
		req.Header.Set("X-Event-Type", w.EventType)
		req.Header.Set("X-Attempt", strconv.Itoa(w.Attempts+1))
		req.Header.Set("X-Timestamp", o.now().Format(time.RFC3339))
		req.Header.Set("X-Signature", processor.CalculateSignature(o.secret, w.EndpointURL, w.RequestBody))

		resp, err := o.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		statusCode = resp.StatusCode
		respHeaders = flattenHeader(resp.Header)
		respBody, _ = io.ReadAll(io.LimitReader(resp.Body, 64*1024))

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("retryable response: %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return nil // terminal failure, not a breaker-tripping error
		}
		return nil
	})

	w.Attempts++
	w.ResponseCode = statusCode
	w.ResponseHeaders = respHeaders
	w.ResponseBody = respBody

	switch {
	case deliveryErr == nil && statusCode >= 200 && statusCode < 300:
		w.Status = models.WebhookStatusDelivered
		w.NextAttemptAt = nil

	case statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests:
		w.Status = models.WebhookStatusFailed
		w.NextAttemptAt = nil

	default:
		// 429, 5xx, timeout, connection error, or circuit breaker open: retry.
		if w.Attempts >= w.MaxAttempts {
			w.Status = models.WebhookStatusFailed
			w.NextAttemptAt = nil
		} else {
			w.Status = models.WebhookStatusRetrying
			next := o.now().Add(resilience.WebhookBackoff().NextDelay(w.Attempts - 1))
			w.NextAttemptAt = &next
		}
	}

	w.UpdatedAt = o.now()
	observability.RecordWebhookDelivery(w.EventType, strings.ToLower(string(w.Status)), o.now().Sub(started).Seconds())
	if err := o.webhooks.Update(ctx, o.db.Pool(), w); err != nil && o.logger != nil {
		o.logger.Error("failed to persist webhook delivery result", zap.Error(err), zap.String("webhook_id", w.ID))
	}
}

// RunCleanupSweep is the daily retention sweep: DELIVERED rows older than 7
// days and FAILED rows older than 30 days are deleted.
func (o *Outbound) RunCleanupSweep(ctx context.Context) {
	now := o.now()
	if n, err := o.webhooks.DeleteOlderThan(ctx, o.db.Pool(), models.WebhookStatusDelivered, now.Add(-cleanupDeliveredAfter)); err != nil {
		if o.logger != nil {
			o.logger.Error("cleanup delivered webhooks failed", zap.Error(err))
		}
	} else if o.logger != nil && n > 0 {
		o.logger.Info("cleaned up delivered webhooks", zap.Int64("count", n))
	}

	if n, err := o.webhooks.DeleteOlderThan(ctx, o.db.Pool(), models.WebhookStatusFailed, now.Add(-cleanupFailedAfter)); err != nil {
		if o.logger != nil {
			o.logger.Error("cleanup failed webhooks failed", zap.Error(err))
		}
	} else if o.logger != nil && n > 0 {
		o.logger.Info("cleaned up failed webhooks", zap.Int64("count", n))
	}
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

var _ ports.OutboundEventEmitter = (*Outbound)(nil)
