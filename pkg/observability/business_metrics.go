package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Payment transaction metrics
	paymentTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_transactions_total",
		Help: "Total number of payment transactions",
	}, []string{
		"transaction_type", // PURCHASE, AUTHORIZE, CAPTURE, VOID, REFUND
		"status",           // terminal PaymentStatus the call produced
	})

	paymentAmountCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_amount_cents_total",
		Help: "Total payment amount in cents (for revenue tracking)",
	}, []string{
		"transaction_type",
		"status",
		"currency",
	})

	// Payment processing duration (end-to-end, one DB transaction plus one
	// processor call)
	paymentProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_processing_duration_seconds",
		Help:    "Total time to process a payment transaction (end-to-end)",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"transaction_type",
		"status",
	})

	// Subscription billing metrics
	subscriptionBillingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_billings_total",
		Help: "Total subscription billing attempts",
	}, []string{
		"status", // success, failed
	})

	subscriptionRevenueCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_revenue_cents_total",
		Help: "Total subscription revenue in cents",
	}, []string{
		"currency",
	})

	dunningCancellationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dunning_cancellations_total",
		Help: "Subscriptions cancelled for non-payment after exhausting retries",
	})

	// Webhook delivery metrics
	webhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Total outbound webhook delivery attempts",
	}, []string{
		"event_type",
		"status", // delivered, retrying, failed
	})

	webhookDeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_delivery_duration_seconds",
		Help:    "Time to deliver an outbound webhook",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{
		"event_type",
	})

	// Rate limiter metrics
	rateLimitDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_denied_total",
		Help: "Requests denied by the distributed rate limiter",
	}, []string{
		"prefix", // ip, user, api
	})

	rateLimitFailOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_fail_open_total",
		Help: "Requests allowed because the rate limiter backing store failed",
	})
)

// RecordPaymentTransaction records one orchestrator call's outcome. This is
// the primary business metric for revenue tracking and success rate
// calculation; the success rate itself is derived in PromQL from the
// status label, not stored.
func RecordPaymentTransaction(transactionType, status, currency string, amountCents int64, duration float64) {
	paymentTransactionsTotal.WithLabelValues(transactionType, status).Inc()
	paymentAmountCents.WithLabelValues(transactionType, status, currency).Add(float64(amountCents))
	paymentProcessingDuration.WithLabelValues(transactionType, status).Observe(duration)
}

// RecordSubscriptionBilling records a billing attempt. Only successful
// billings count toward revenue.
func RecordSubscriptionBilling(status string, amountCents int64, currency string) {
	subscriptionBillingsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		subscriptionRevenueCents.WithLabelValues(currency).Add(float64(amountCents))
	}
}

// RecordDunningCancellation counts a subscription terminated for non-payment.
func RecordDunningCancellation() {
	dunningCancellationsTotal.Inc()
}

// RecordWebhookDelivery records one outbound delivery attempt.
func RecordWebhookDelivery(eventType, status string, duration float64) {
	webhookDeliveriesTotal.WithLabelValues(eventType, status).Inc()
	webhookDeliveryDuration.WithLabelValues(eventType).Observe(duration)
}

// RecordRateLimitDenied counts a denial for the given identifier prefix.
func RecordRateLimitDenied(prefix string) {
	rateLimitDeniedTotal.WithLabelValues(prefix).Inc()
}

// RecordRateLimitFailOpen counts a request allowed through a limiter outage.
func RecordRateLimitFailOpen() {
	rateLimitFailOpenTotal.Inc()
}
