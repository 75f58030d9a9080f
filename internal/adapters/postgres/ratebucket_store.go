package postgres

import (
	"context"

	"github.com/meridianpay/gatewaycore/internal/domain/ports"
)

// RateLimiterStore implements ports.RateLimiterStore with a single
// round-trip INSERT ... ON CONFLICT statement, so the check-and-decrement
// is atomic at the database without a read-modify-write over the wire.
type RateLimiterStore struct {
	db ports.DBPort
}

// NewRateLimiterStore creates a RateLimiterStore.
func NewRateLimiterStore(db ports.DBPort) *RateLimiterStore {
	return &RateLimiterStore{db: db}
}

// IsAllowed implements the bucket algorithm:
//
//	if key absent: set tokens = limit-1, ttl = 3600, return limit-1
//	if window expired: set tokens = limit-1, ttl = 3600, return limit-1
//	if tokens > 0: tokens -= 1; keep ttl; return tokens
//	else: return -1 (denied)
//
// burst is accepted for interface symmetry with an in-process token bucket
// but the persisted bucket's capacity is limitPerHour itself, since the
// window is a fixed one-hour rolling reset rather than a continuous refill.
const rateLimiterSQL = `
INSERT INTO rate_buckets (key, tokens_remaining, window_expires_at)
VALUES ($1, $2 - 1, now() + interval '3600 seconds')
ON CONFLICT (key) DO UPDATE SET
	tokens_remaining = CASE
		WHEN rate_buckets.window_expires_at < now() THEN $2 - 1
		WHEN rate_buckets.tokens_remaining > 0 THEN rate_buckets.tokens_remaining - 1
		ELSE -1
	END,
	window_expires_at = CASE
		WHEN rate_buckets.window_expires_at < now() THEN now() + interval '3600 seconds'
		ELSE rate_buckets.window_expires_at
	END
RETURNING
	tokens_remaining,
	(tokens_remaining >= 0) AS allowed
`

func (s *RateLimiterStore) IsAllowed(ctx context.Context, key string, limitPerHour, burst int) (bool, int, error) {
	row := s.db.Pool().QueryRow(ctx, rateLimiterSQL, key, limitPerHour)

	var tokensRemaining int
	var allowed bool
	if err := row.Scan(&tokensRemaining, &allowed); err != nil {
		return false, 0, err
	}

	if !allowed {
		return false, -1, nil
	}
	return true, tokensRemaining, nil
}
