package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
)

// WebhookRepository implements ports.WebhookRepository for both inbound
// (direction=IN) and outbound (direction=OUT) event rows.
type WebhookRepository struct {
	db ports.DBPort
}

// NewWebhookRepository creates a WebhookRepository.
func NewWebhookRepository(db ports.DBPort) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const insertWebhookSQL = `
INSERT INTO webhooks (id, direction, event_type, event_id, endpoint_url, status, attempts,
	max_attempts, next_attempt_at, request_body, request_headers, response_code,
	response_headers, response_body, correlation_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`

func (r *WebhookRepository) Create(ctx context.Context, ex ports.Executor, w *models.Webhook) error {
	reqHeaders, err := json.Marshal(w.RequestHeaders)
	if err != nil {
		return err
	}
	respHeaders, err := json.Marshal(w.ResponseHeaders)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, insertWebhookSQL,
		w.ID, string(w.Direction), w.EventType, w.EventID, nullable(w.EndpointURL),
		string(w.Status), w.Attempts, w.MaxAttempts, w.NextAttemptAt, w.RequestBody, reqHeaders,
		w.ResponseCode, respHeaders, w.ResponseBody, nullable(w.CorrelationID), w.CreatedAt, w.UpdatedAt)
	return err
}

const selectWebhookColumns = `
	id, direction, event_type, event_id, endpoint_url, status, attempts, max_attempts,
	next_attempt_at, request_body, request_headers, response_code, response_headers,
	response_body, correlation_id, created_at, updated_at
`

func scanWebhook(row pgx.Row) (*models.Webhook, error) {
	var w models.Webhook
	var direction, status string
	var endpointURL, correlationID *string
	var reqHeaders, respHeaders []byte
	err := row.Scan(&w.ID, &direction, &w.EventType, &w.EventID, &endpointURL, &status,
		&w.Attempts, &w.MaxAttempts, &w.NextAttemptAt, &w.RequestBody, &reqHeaders,
		&w.ResponseCode, &respHeaders, &w.ResponseBody, &correlationID, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.Direction = models.WebhookDirection(direction)
	w.Status = models.WebhookStatus(status)
	w.EndpointURL = orEmpty(endpointURL)
	w.CorrelationID = orEmpty(correlationID)
	if len(reqHeaders) > 0 {
		if err := json.Unmarshal(reqHeaders, &w.RequestHeaders); err != nil {
			return nil, err
		}
	}
	if len(respHeaders) > 0 {
		if err := json.Unmarshal(respHeaders, &w.ResponseHeaders); err != nil {
			return nil, err
		}
	}
	return &w, nil
}

func (r *WebhookRepository) GetByID(ctx context.Context, ex ports.Executor, id string) (*models.Webhook, error) {
	row := ex.QueryRow(ctx, "SELECT "+selectWebhookColumns+" FROM webhooks WHERE id = $1", id)
	return scanWebhook(row)
}

// ExistsRecent implements the inbound dedup window: an event
// with the same (event_id, event_type) seen within the window is a replay.
func (r *WebhookRepository) ExistsRecent(ctx context.Context, ex ports.Executor, eventID, eventType string, since time.Time) (bool, error) {
	var exists bool
	err := ex.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM webhooks
			WHERE direction = $1 AND event_id = $2 AND event_type = $3 AND created_at >= $4
		)`, string(models.WebhookDirectionIn), eventID, eventType, since).Scan(&exists)
	return exists, err
}

const updateWebhookSQL = `
UPDATE webhooks SET
	status = $2, attempts = $3, next_attempt_at = $4, response_code = $5,
	response_headers = $6, response_body = $7, updated_at = now()
WHERE id = $1
`

func (r *WebhookRepository) Update(ctx context.Context, ex ports.Executor, w *models.Webhook) error {
	respHeaders, err := json.Marshal(w.ResponseHeaders)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, updateWebhookSQL, w.ID, string(w.Status), w.Attempts, w.NextAttemptAt,
		w.ResponseCode, respHeaders, w.ResponseBody)
	return err
}

// ListDueForDelivery selects outbound webhooks ready for another delivery
// attempt, for the outbound delivery sweeper.
func (r *WebhookRepository) ListDueForDelivery(ctx context.Context, ex ports.Executor, asOf time.Time, limit int32) ([]*models.Webhook, error) {
	rows, err := ex.Query(ctx,
		`SELECT `+selectWebhookColumns+` FROM webhooks
		 WHERE direction = $1 AND status = ANY($2)
		 AND next_attempt_at IS NOT NULL AND next_attempt_at <= $3
		 ORDER BY next_attempt_at LIMIT $4`,
		string(models.WebhookDirectionOut),
		[]string{string(models.WebhookStatusPending), string(models.WebhookStatusRetrying)},
		asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteOlderThan implements the daily cleanup sweep (DELIVERED rows older
// than 7 days, FAILED rows older than 30 days).
func (r *WebhookRepository) DeleteOlderThan(ctx context.Context, ex ports.Executor, status models.WebhookStatus, before time.Time) (int64, error) {
	tag, err := ex.Exec(ctx, "DELETE FROM webhooks WHERE status = $1 AND created_at < $2", string(status), before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ ports.WebhookRepository = (*WebhookRepository)(nil)
