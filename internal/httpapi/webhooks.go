package httpapi

import (
	"io"
	"net/http"

	"github.com/meridianpay/gatewaycore/internal/services/webhook"
	"go.uber.org/zap"
)

// WebhookHandlers adapts webhook.Inbound to the /webhooks/processor route.
// The raw request body is preserved byte-for-byte and handed to
// Receive unparsed so HMAC signature verification sees exactly what the
// processor signed.
type WebhookHandlers struct {
	inbound *webhook.Inbound
	logger  *zap.Logger
}

// NewWebhookHandlers constructs WebhookHandlers.
func NewWebhookHandlers(inbound *webhook.Inbound, logger *zap.Logger) *WebhookHandlers {
	return &WebhookHandlers{inbound: inbound, logger: logger}
}

func (h *WebhookHandlers) Processor(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, errorBody{Error: "failed to read request body"})
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	resp, err := h.inbound.Receive(r.Context(), body, headers)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
