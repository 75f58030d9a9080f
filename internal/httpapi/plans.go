package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type createPlanBody struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	IntervalUnit  string `json:"interval_unit"`
	IntervalCount int    `json:"interval_count"`
	TrialDays     int    `json:"trial_days"`
	SetupFee      string `json:"setup_fee"`
}

type planResponse struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	IntervalUnit  string `json:"interval_unit"`
	IntervalCount int    `json:"interval_count"`
	TrialDays     int    `json:"trial_days"`
	SetupFee      string `json:"setup_fee"`
	Active        bool   `json:"active"`
}

func toPlanResponse(p *models.SubscriptionPlan) planResponse {
	return planResponse{
		Code:          p.Code,
		Name:          p.Name,
		Amount:        p.Amount.String(),
		Currency:      p.Currency,
		IntervalUnit:  string(p.IntervalUnit),
		IntervalCount: p.IntervalCount,
		TrialDays:     p.TrialDays,
		SetupFee:      p.SetupFee.String(),
		Active:        p.Active,
	}
}

// PlanHandlers adapts ports.PlanRepository to the /plans routes.
type PlanHandlers struct {
	plans  ports.PlanRepository
	db     ports.DBPort
	logger *zap.Logger
}

// NewPlanHandlers constructs PlanHandlers.
func NewPlanHandlers(plans ports.PlanRepository, db ports.DBPort, logger *zap.Logger) *PlanHandlers {
	return &PlanHandlers{plans: plans, db: db, logger: logger}
}

func (h *PlanHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var body createPlanBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, models.ErrMissingRequiredField)
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		writeError(w, h.logger, models.ErrInvalidAmount)
		return
	}
	setupFee := decimal.Zero
	if body.SetupFee != "" {
		setupFee, err = decimal.NewFromString(body.SetupFee)
		if err != nil {
			writeError(w, h.logger, models.ErrInvalidAmount)
			return
		}
	}
	code := body.Code
	if code == "" {
		code = uuid.New().String()
	}
	plan := &models.SubscriptionPlan{
		Code:          code,
		Name:          body.Name,
		Amount:        amount,
		Currency:      body.Currency,
		IntervalUnit:  models.IntervalUnit(body.IntervalUnit),
		IntervalCount: body.IntervalCount,
		TrialDays:     body.TrialDays,
		SetupFee:      setupFee,
		Active:        true,
	}
	if plan.IntervalCount <= 0 {
		plan.IntervalCount = 1
	}

	if err := h.plans.Create(r.Context(), h.db.Pool(), plan); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toPlanResponse(plan))
}

func (h *PlanHandlers) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context(), h.db.Pool())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		resp = append(resp, toPlanResponse(p))
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
