package httpapi

import (
	"net/http"

	"github.com/meridianpay/gatewaycore/pkg/middleware"
	"github.com/meridianpay/gatewaycore/pkg/observability"
	"github.com/meridianpay/gatewaycore/pkg/resilience"
	"go.uber.org/zap"
)

// Deps collects everything NewServer needs to wire the full route table.
type Deps struct {
	Payments      *PaymentHandlers
	Subscriptions *SubscriptionHandlers
	Plans         *PlanHandlers
	Webhooks      *WebhookHandlers
	Auth          *AuthMiddleware
	IPLimiter     *middleware.RateLimiter
	Timeouts      *resilience.TimeoutConfig
	Logger        *zap.Logger
}

// NewServer builds the route table on a Go 1.22+ method+pattern
// ServeMux. No router library is pulled in: the standard mux's
// native pattern routing is the idiomatic choice here rather than an
// unjustified new dependency.
func NewServer(d Deps) http.Handler {
	mux := http.NewServeMux()

	authed := func(route string, h http.HandlerFunc) {
		var handler http.Handler = h
		handler = d.Auth.Wrap(handler)
		handler = observability.MetricsMiddleware(route, handler)
		mux.Handle(route, handler)
	}

	authed("POST /payments/purchase", d.Payments.Purchase)
	authed("POST /payments/authorize", d.Payments.Authorize)
	authed("POST /payments/capture", d.Payments.Capture)
	authed("POST /payments/void", d.Payments.Void)
	authed("POST /payments/refund", d.Payments.Refund)
	authed("GET /payments/{id}", d.Payments.Status)

	authed("POST /subscriptions", d.Subscriptions.Create)
	authed("GET /subscriptions/{id}", d.Subscriptions.Get)
	authed("POST /subscriptions/{id}/cancel", d.Subscriptions.Cancel)
	authed("POST /subscriptions/{id}/pause", d.Subscriptions.Pause)
	authed("POST /subscriptions/{id}/resume", d.Subscriptions.Resume)
	authed("GET /customers/{id}/subscriptions", d.Subscriptions.ListByCustomer)

	authed("POST /plans", d.Plans.Create)
	authed("GET /plans", d.Plans.List)

	// The processor's inbound webhook callback authenticates by HMAC
	// signature (verified inside Receive), not by the account auth scheme,
	// so it bypasses AuthMiddleware. Being unauthenticated it gets a
	// per-IP in-process limiter in front instead of the account-keyed one.
	var webhookHandler http.Handler = http.HandlerFunc(d.Webhooks.Processor)
	if d.IPLimiter != nil {
		webhookHandler = d.IPLimiter.Middleware(webhookHandler)
	}
	mux.Handle("POST /webhooks/processor", observability.MetricsMiddleware("POST /webhooks/processor", webhookHandler))

	var handler http.Handler = mux
	handler = middleware.Timeout(d.Timeouts)(handler)
	handler = middleware.GzipHandler(middleware.GzipDefaultLevel, d.Logger)(handler)
	handler = middleware.Recovery(d.Logger)(handler)
	handler = middleware.Logging(d.Logger)(handler)
	return handler
}
