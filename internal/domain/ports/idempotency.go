package ports

import "context"

// IdempotencyFamily scopes idempotency keys per operation family, so the
// same key value used for a payment and a subscription-create can never
// collide.
type IdempotencyFamily string

const (
	IdempotencyFamilyPayment            IdempotencyFamily = "payment"
	IdempotencyFamilySubscriptionCreate IdempotencyFamily = "subscription-create"
	IdempotencyFamilyRefund             IdempotencyFamily = "refund"
	IdempotencyFamilyBillingAttempt     IdempotencyFamily = "billing-attempt"
)

// IdempotentOutcome is the persisted result of a prior operation, stored
// byte-for-byte so a retried request with the same key and request fingerprint
// gets back the exact same response.
type IdempotentOutcome struct {
	Key             string
	Family          IdempotencyFamily
	RequestFingerprint string
	ResponseBlob    []byte
}

// IdempotencyStore provides at-most-once semantics for mutating operations.
// record is atomic with the outcome's persistence: a second call with the
// same key and the same logical request returns the stored outcome; a second
// call with a different logical request under the same key fails with
// ErrIdempotencyConflict.
type IdempotencyStore interface {
	Lookup(ctx context.Context, family IdempotencyFamily, key string) (*IdempotentOutcome, error)
	Record(ctx context.Context, outcome IdempotentOutcome) error
}
