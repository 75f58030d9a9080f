// Package processor adapts the North Custom Pay / Recurring Billing gateway
// APIs to the ports.ProcessorAdapter interface: HMAC-signed requests
// (auth.go), numeric response-code interpretation, and the
// sale/capture/void/refund endpoint shapes (north_adapter.go).
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AuthConfig holds HMAC authentication configuration for North-style APIs.
type AuthConfig struct {
	EPIId  string // Four-part key: CUST_NBR-MERCH_NBR-DBA_NBR-TERMINAL_NBR
	EPIKey string // Shared secret for HMAC signing
}

// NorthAdapter implements ports.ProcessorAdapter against the North gateway
// family, producing the tagged Outcome union instead of branching callers
// on HTTP status or response-code presence.
type NorthAdapter struct {
	config     AuthConfig
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewNorthAdapter creates a NorthAdapter.
func NewNorthAdapter(config AuthConfig, baseURL string, httpClient *http.Client, logger *zap.Logger) *NorthAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &NorthAdapter{config: config, baseURL: baseURL, httpClient: httpClient, logger: logger}
}

type saleRequest struct {
	Amount          float64 `json:"amount"`
	Capture         bool    `json:"capture"`
	Transaction     int64   `json:"transaction"`
	BatchID         string  `json:"batchID"`
	IndustryType    string  `json:"industryType"`
	CardEntryMethod string  `json:"cardEntryMethod"`
}

type saleResponse struct {
	Data struct {
		Response string `json:"response"`
		Text     string `json:"text"`
		AuthCode string `json:"authCode"`
		AVS      string `json:"avsResponse"`
		CVV      string `json:"cvvResponse"`
	} `json:"data"`
	Reference struct {
		BRIC string `json:"bric"`
	} `json:"reference"`
}

// toOutcome classifies a raw processor response into the Outcome tagged
// union. "00" and an empty response code count as approval; every other code
// comes back as DECLINED with its raw code preserved so the caller can run it
// through errorclassifier.ClassifyResponseCode once it knows the attempt
// count and retry budget in play.
func (a *NorthAdapter) toOutcome(resp saleResponse, settleAmount *decimal.Decimal) ports.Outcome {
	if resp.Data.Response == "" || resp.Data.Response == "00" {
		return ports.Outcome{
			Kind:         ports.OutcomeApproved,
			ExternalID:   resp.Reference.BRIC,
			AuthCode:     resp.Data.AuthCode,
			AVSResponse:  resp.Data.AVS,
			CVVResponse:  resp.Data.CVV,
			SettleAmount: settleAmount,
		}
	}
	return ports.Outcome{
		Kind:          ports.OutcomeDeclined,
		DeclineCode:   resp.Data.Response,
		DeclineReason: resp.Data.Text,
	}
}

// apiError carries makeRequest's transient/terminal classification alongside
// the underlying error, so every call site can turn it into an Outcome
// without re-deriving whether a retry could help.
type apiError struct {
	err       error
	transient bool
}

func (e *apiError) Error() string { return e.err.Error() }
func (e *apiError) Unwrap() error { return e.err }

// transportOutcome wraps a makeRequest failure into an Outcome of kind ERROR
// rather than a bare Go error, so callers can branch on Kind alone for
// retryability. A plain (non-apiError) err is treated as transient; errors
// from makeRequest carry their own classification, and makeRequest reports
// request construction failures as non-transient.
func transportOutcome(err error) (ports.Outcome, error) {
	transient := true
	if ae, ok := err.(*apiError); ok {
		transient = ae.transient
	}
	return ports.Outcome{
		Kind:         ports.OutcomeError,
		ErrorCode:    "TRANSPORT_ERROR",
		ErrorMessage: err.Error(),
		Transient:    transient,
	}, nil
}

// Authorize implements ports.ProcessorAdapter.
func (a *NorthAdapter) Authorize(ctx context.Context, amount decimal.Decimal, currency string, pm *models.PaymentMethod, billing ports.BillingInfo) (ports.Outcome, error) {
	if pm == nil || pm.Token == "" {
		return ports.Outcome{}, fmt.Errorf("authorize: payment method token is required")
	}
	endpoint := fmt.Sprintf("/sale/%s", pm.Token)
	txnID := time.Now().Unix()

	req := saleRequest{
		Amount:          amount.InexactFloat64(),
		Capture:         false,
		Transaction:     txnID,
		BatchID:         time.Now().Format("20060102"),
		IndustryType:    "E",
		CardEntryMethod: "Z",
	}

	var resp saleResponse
	if err := a.makeRequest(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return transportOutcome(err)
	}
	settle := amount
	return a.toOutcome(resp, &settle), nil
}

// Capture implements ports.ProcessorAdapter.
func (a *NorthAdapter) Capture(ctx context.Context, priorExternalID string, amount *decimal.Decimal) (ports.Outcome, error) {
	endpoint := fmt.Sprintf("/sale/%s/capture", priorExternalID)
	req := map[string]interface{}{
		"batchID":         time.Now().Format("20060102"),
		"transaction":     time.Now().Unix(),
		"cardEntryMethod": "Z",
	}
	if amount != nil {
		req["amount"] = amount.InexactFloat64()
	}

	var resp saleResponse
	if err := a.makeRequest(ctx, http.MethodPut, endpoint, req, &resp); err != nil {
		return transportOutcome(err)
	}
	return a.toOutcome(resp, amount), nil
}

// Void implements ports.ProcessorAdapter.
func (a *NorthAdapter) Void(ctx context.Context, priorExternalID string) (ports.Outcome, error) {
	endpoint := fmt.Sprintf("/void/%s", priorExternalID)
	req := map[string]interface{}{
		"batchID":         time.Now().Format("20060102"),
		"transaction":     time.Now().Unix(),
		"cardEntryMethod": "Z",
	}

	var resp saleResponse
	if err := a.makeRequest(ctx, http.MethodPut, endpoint, req, &resp); err != nil {
		return transportOutcome(err)
	}
	return a.toOutcome(resp, nil), nil
}

// Refund implements ports.ProcessorAdapter.
func (a *NorthAdapter) Refund(ctx context.Context, priorExternalID string, amount *decimal.Decimal, pm *models.PaymentMethod) (ports.Outcome, error) {
	endpoint := fmt.Sprintf("/refund/%s", priorExternalID)
	req := map[string]interface{}{
		"batchID":         time.Now().Format("20060102"),
		"transaction":     time.Now().Unix(),
		"industryType":    "E",
		"cardEntryMethod": "Z",
	}
	if amount != nil {
		req["amount"] = amount.InexactFloat64()
	}

	var resp saleResponse
	if err := a.makeRequest(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return transportOutcome(err)
	}
	return a.toOutcome(resp, amount), nil
}

// Purchase implements ports.ProcessorAdapter as an authorize-and-capture in
// one call (a single-step sale).
func (a *NorthAdapter) Purchase(ctx context.Context, amount decimal.Decimal, currency string, pm *models.PaymentMethod, billing ports.BillingInfo) (ports.Outcome, error) {
	if pm == nil || pm.Token == "" {
		return ports.Outcome{}, fmt.Errorf("purchase: payment method token is required")
	}
	endpoint := fmt.Sprintf("/sale/%s", pm.Token)
	txnID := time.Now().Unix()

	req := saleRequest{
		Amount:          amount.InexactFloat64(),
		Capture:         true,
		Transaction:     txnID,
		BatchID:         time.Now().Format("20060102"),
		IndustryType:    "E",
		CardEntryMethod: "Z",
	}

	var resp saleResponse
	if err := a.makeRequest(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return transportOutcome(err)
	}
	settle := amount
	return a.toOutcome(resp, &settle), nil
}

type customerProfileResponse struct {
	ProfileID string `json:"profileId"`
	Response  string `json:"response"`
	Text      string `json:"text"`
}

// CreateCustomerProfile implements ports.ProcessorAdapter.
func (a *NorthAdapter) CreateCustomerProfile(ctx context.Context, customer *models.Customer) (string, error) {
	endpoint := "/customer"
	req := map[string]interface{}{
		"name":    customer.Name,
		"email":   customer.Email,
		"address": customer.BillingAddress,
	}
	var resp customerProfileResponse
	if err := a.makeRequest(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return "", err
	}
	if resp.Response != "" && resp.Response != "00" {
		return "", fmt.Errorf("create customer profile declined: %s %s", resp.Response, resp.Text)
	}
	return resp.ProfileID, nil
}

// CreatePaymentProfile implements ports.ProcessorAdapter, tokenizing a raw
// card/ACH reference into the processor-side token subsequent operations use.
func (a *NorthAdapter) CreatePaymentProfile(ctx context.Context, profileID string, pm *models.PaymentMethod) (string, error) {
	endpoint := fmt.Sprintf("/customer/%s/paymentmethod", profileID)
	req := map[string]interface{}{"token": pm.Token, "type": pm.Type}
	var resp struct {
		BRIC     string `json:"bric"`
		Response string `json:"response"`
		Text     string `json:"text"`
	}
	if err := a.makeRequest(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return "", err
	}
	if resp.Response != "" && resp.Response != "00" {
		return "", fmt.Errorf("create payment profile declined: %s %s", resp.Response, resp.Text)
	}
	return resp.BRIC, nil
}

type recurringResponse struct {
	ID           int    `json:"id"`
	Response     string `json:"response"`
	ResponseText string `json:"responseText"`
}

// CreateRecurring implements ports.ProcessorAdapter by registering a
// recurring schedule with the processor itself, used only when the
// processor (rather than the subscription engine) owns billing cadence.
func (a *NorthAdapter) CreateRecurring(ctx context.Context, profileID string, pm *models.PaymentMethod, plan *models.SubscriptionPlan) (string, error) {
	endpoint := "/subscription"
	req := map[string]interface{}{
		"paymentMethod": map[string]string{"bric": pm.Token},
		"amount":        plan.Amount.InexactFloat64(),
		"frequency":     string(plan.IntervalUnit),
	}
	var resp recurringResponse
	if err := a.makeRequest(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return "", err
	}
	if resp.Response != "" && resp.Response != "00" {
		return "", fmt.Errorf("create recurring declined: %s %s", resp.Response, resp.ResponseText)
	}
	return fmt.Sprintf("%d", resp.ID), nil
}

// CancelRecurring implements ports.ProcessorAdapter.
func (a *NorthAdapter) CancelRecurring(ctx context.Context, gatewaySubscriptionID string) error {
	endpoint := "/subscription/cancel"
	req := map[string]interface{}{"subscriptionId": gatewaySubscriptionID}
	var resp recurringResponse
	return a.makeRequest(ctx, http.MethodPost, endpoint, req, &resp)
}

// GetTransaction implements ports.ProcessorAdapter, used by the
// reconciliation sweep to confirm the processor's view of a transaction
// whose outcome this system never durably recorded.
func (a *NorthAdapter) GetTransaction(ctx context.Context, externalID string) (ports.Outcome, error) {
	endpoint := fmt.Sprintf("/transaction/%s", externalID)
	var resp saleResponse
	if err := a.makeRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return transportOutcome(err)
	}
	return a.toOutcome(resp, nil), nil
}

// makeRequest signs and sends a request to the North API using the
// HMAC-SHA256(endpoint + payload) scheme.
func (a *NorthAdapter) makeRequest(ctx context.Context, method, endpoint string, request, response interface{}) error {
	var payloadBytes []byte
	var err error
	if request != nil {
		payloadBytes, err = json.Marshal(request)
		if err != nil {
			return &apiError{err: fmt.Errorf("marshal request: %w", err), transient: false}
		}
	}

	signature := CalculateSignature(a.config.EPIKey, endpoint, payloadBytes)

	url := a.baseURL + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payloadBytes))
	if err != nil {
		return &apiError{err: fmt.Errorf("create request: %w", err), transient: false}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("EPI-Id", a.config.EPIId)
	httpReq.Header.Set("EPI-Signature", signature)

	if a.logger != nil {
		a.logger.Debug("processor request", zap.String("method", method), zap.String("endpoint", endpoint))
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return &apiError{err: fmt.Errorf("processor unreachable: %w", err), transient: true}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &apiError{err: fmt.Errorf("read response body: %w", err), transient: true}
	}

	// 5xx and 429 are the processor's own overload/retry signals; every other
	// 4xx is a definitive rejection of this request (bad signature, malformed
	// payload, unknown token) that a retry cannot fix.
	if httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests {
		return &apiError{err: fmt.Errorf("processor returned %d: %s", httpResp.StatusCode, string(body)), transient: true}
	}
	if httpResp.StatusCode >= 400 {
		return &apiError{err: fmt.Errorf("processor rejected request %d: %s", httpResp.StatusCode, string(body)), transient: false}
	}
	if response == nil {
		return nil
	}
	if err := json.Unmarshal(body, response); err != nil {
		return &apiError{err: fmt.Errorf("unmarshal response: %w", err), transient: false}
	}
	return nil
}
