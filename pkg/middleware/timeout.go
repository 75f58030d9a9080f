package middleware

import (
	"net/http"

	"github.com/meridianpay/gatewaycore/pkg/resilience"
)

// Timeout bounds every request's context to the configured handler timeout
// unless the incoming context already carries a deadline (of any length,
// which is then left as it is), preserving
// the layered timeout hierarchy (handler -> service -> external API -> db).
func Timeout(config *resilience.TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, hasDeadline := r.Context().Deadline(); hasDeadline {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := config.HandlerContext(r.Context())
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
