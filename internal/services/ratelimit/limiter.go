// Package ratelimit implements the distributed token-bucket admission
// control for the API surface. The bucket itself lives in shared storage (see
// internal/adapters/postgres.RateLimiterStore) so every service instance
// agrees on remaining tokens; this package only adds the identifier-prefix
// convention and the fail-open policy on store errors.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/meridianpay/gatewaycore/pkg/observability"
	"go.uber.org/zap"
)

// Prefix distinguishes the rate-limited identifier namespaces.
type Prefix string

const (
	PrefixIP  Prefix = "ip"
	PrefixUser Prefix = "user"
	PrefixAPI Prefix = "api"
)

// Key builds the "prefix:identifier" key RateLimiterStore is keyed by.
func Key(prefix Prefix, identifier string) string {
	return fmt.Sprintf("%s:%s", prefix, identifier)
}

// Limiter is the distributed token-bucket rate limiter.
type Limiter struct {
	store  ports.RateLimiterStore
	logger *zap.Logger
}

// New creates a Limiter backed by store.
func New(store ports.RateLimiterStore, logger *zap.Logger) *Limiter {
	return &Limiter{store: store, logger: logger}
}

// Result is the outcome of an admission check.
type Result struct {
	Allowed   bool
	Remaining int
}

// IsAllowed performs an atomic check-and-decrement for the
// given identifier. On a backing-store failure the request is allowed
// (fail open) to avoid the limiter becoming a denial-of-service vector; the
// allowance is logged.
func (l *Limiter) IsAllowed(ctx context.Context, prefix Prefix, identifier string, limitPerHour, burst int) Result {
	key := Key(prefix, identifier)
	allowed, remaining, err := l.store.IsAllowed(ctx, key, limitPerHour, burst)
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("rate limiter store failure, failing open",
				zap.String("key", key), zap.Error(err))
		}
		observability.RecordRateLimitFailOpen()
		return Result{Allowed: true, Remaining: burst}
	}
	if !allowed {
		observability.RecordRateLimitDenied(string(prefix))
	}
	return Result{Allowed: allowed, Remaining: remaining}
}
