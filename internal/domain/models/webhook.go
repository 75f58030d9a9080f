package models

import "time"

// WebhookDirection distinguishes inbound processor events from outbound
// merchant notifications; both are stored as Webhook rows.
type WebhookDirection string

const (
	WebhookDirectionIn  WebhookDirection = "IN"
	WebhookDirectionOut WebhookDirection = "OUT"
)

// WebhookStatus is the delivery/processing state machine: PENDING ->
// PROCESSING -> {DELIVERED, RETRYING, FAILED}.
type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "PENDING"
	WebhookStatusProcessing WebhookStatus = "PROCESSING"
	WebhookStatusDelivered  WebhookStatus = "DELIVERED"
	WebhookStatusRetrying   WebhookStatus = "RETRYING"
	WebhookStatusFailed     WebhookStatus = "FAILED"
)

// Webhook is a single inbound or outbound event record.
type Webhook struct {
	ID             string
	Direction      WebhookDirection
	EventType      string
	EventID        string
	EndpointURL    string
	Status         WebhookStatus
	Attempts       int
	MaxAttempts    int
	NextAttemptAt  *time.Time

	RequestBody    []byte
	RequestHeaders map[string]string

	ResponseCode    int
	ResponseHeaders map[string]string
	ResponseBody    []byte

	CorrelationID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OutboundEnvelope is the JSON body delivered to a merchant endpoint for an
// outbound webhook.
type OutboundEnvelope struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	EventDate time.Time              `json:"event_date"`
	Payload   OutboundEnvelopePayload `json:"payload"`
}

// OutboundEnvelopePayload carries the transaction-facing fields of an
// outbound webhook event.
type OutboundEnvelopePayload struct {
	TransactionID  string           `json:"transaction_id"`
	ResponseCode   string           `json:"response_code"`
	AuthCode       string           `json:"auth_code,omitempty"`
	AVSResponse    string           `json:"avs_response,omitempty"`
	CVVResponse    string           `json:"card_code_response,omitempty"`
	SettleAmount   *string          `json:"settle_amount,omitempty"`
}
