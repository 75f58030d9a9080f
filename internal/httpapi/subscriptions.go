package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"go.uber.org/zap"
)

type createSubscriptionBody struct {
	CustomerID         string            `json:"customer_id"`
	PlanCode           string            `json:"plan_code"`
	PaymentMethodID    string            `json:"payment_method_id"`
	StartDate          *time.Time        `json:"start_date,omitempty"`
	StartTrial         bool              `json:"start_trial"`
	BillingCycleAnchor *time.Time        `json:"billing_cycle_anchor,omitempty"`
	Prorated           bool              `json:"prorated"`
	IdempotencyKey     string            `json:"idempotency_key"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type cancelSubscriptionBody struct {
	When           string     `json:"when"`
	CancelAt       *time.Time `json:"cancel_at,omitempty"`
	RefundProrated bool       `json:"refund_prorated"`
	Notes          string     `json:"notes"`
	IdempotencyKey string     `json:"idempotency_key"`
}

type subscriptionResponse struct {
	ID                 string            `json:"id"`
	CustomerID         string            `json:"customer_id"`
	PlanCode           string            `json:"plan_code"`
	PaymentMethodID    string            `json:"payment_method_id"`
	Status             string            `json:"status"`
	CurrentPeriodStart string            `json:"current_period_start"`
	CurrentPeriodEnd   string            `json:"current_period_end"`
	NextBillingDate    *string           `json:"next_billing_date,omitempty"`
	CancelledAt        *string           `json:"cancelled_at,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

func toSubscriptionResponse(s *models.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		ID:                  s.ID,
		CustomerID:          s.CustomerID,
		PlanCode:            s.PlanCode,
		PaymentMethodID:     s.PaymentMethodID,
		Status:              string(s.Status),
		CurrentPeriodStart: s.CurrentPeriodStart.Format(time.RFC3339),
		CurrentPeriodEnd:   s.CurrentPeriodEnd.Format(time.RFC3339),
		Metadata:           s.Metadata,
	}
	if s.NextBillingDate != nil {
		v := s.NextBillingDate.Format(time.RFC3339)
		resp.NextBillingDate = &v
	}
	if s.CancelledAt != nil {
		v := s.CancelledAt.Format(time.RFC3339)
		resp.CancelledAt = &v
	}
	return resp
}

// SubscriptionHandlers adapts ports.SubscriptionEngine to the
// /subscriptions/* routes.
type SubscriptionHandlers struct {
	engine ports.SubscriptionEngine
	logger *zap.Logger
}

// NewSubscriptionHandlers constructs SubscriptionHandlers.
func NewSubscriptionHandlers(engine ports.SubscriptionEngine, logger *zap.Logger) *SubscriptionHandlers {
	return &SubscriptionHandlers{engine: engine, logger: logger}
}

func (h *SubscriptionHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var body createSubscriptionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, models.ErrMissingRequiredField)
		return
	}
	sub, err := h.engine.Create(r.Context(), ports.CreateSubscriptionRequest{
		CustomerID:         body.CustomerID,
		PlanCode:           body.PlanCode,
		PaymentMethodID:    body.PaymentMethodID,
		StartDate:          body.StartDate,
		StartTrial:         body.StartTrial,
		BillingCycleAnchor: body.BillingCycleAnchor,
		Prorated:           body.Prorated,
		IdempotencyKey:     body.IdempotencyKey,
		Metadata:           body.Metadata,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, err := h.engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body cancelSubscriptionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, models.ErrMissingRequiredField)
		return
	}
	when := ports.ChangeImmediate
	if body.When == string(ports.ChangeEndOfPeriod) {
		when = ports.ChangeEndOfPeriod
	}
	sub, err := h.engine.Cancel(r.Context(), ports.CancelSubscriptionRequest{
		SubscriptionID: id,
		When:           when,
		CancelAt:       body.CancelAt,
		RefundProrated: body.RefundProrated,
		Notes:          body.Notes,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandlers) Pause(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, err := h.engine.Pause(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, err := h.engine.Resume(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toSubscriptionResponse(sub))
}

// ListByCustomer handles GET /customers/{id}/subscriptions?page=N.
func (h *SubscriptionHandlers) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("id")
	page := int32(0)
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			page = int32(n)
		}
	}
	subs, err := h.engine.ListByCustomer(r.Context(), customerID, page)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := make([]subscriptionResponse, 0, len(subs))
	for _, s := range subs {
		resp = append(resp, toSubscriptionResponse(s))
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
