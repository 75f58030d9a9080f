package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
)

// IdempotencyStore implements ports.IdempotencyStore over a single table
// keyed on (family, key): the same
// key string in different families (payment vs refund vs billing-attempt)
// never collides.
type IdempotencyStore struct {
	db ports.DBPort
}

// NewIdempotencyStore creates an IdempotencyStore.
func NewIdempotencyStore(db ports.DBPort) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

const lookupIdempotencySQL = `
SELECT key, family, request_fingerprint, response_blob
FROM idempotency_outcomes
WHERE family = $1 AND key = $2
`

func (s *IdempotencyStore) Lookup(ctx context.Context, family ports.IdempotencyFamily, key string) (*ports.IdempotentOutcome, error) {
	row := s.db.Pool().QueryRow(ctx, lookupIdempotencySQL, family, key)

	var out ports.IdempotentOutcome
	err := row.Scan(&out.Key, &out.Family, &out.RequestFingerprint, &out.ResponseBlob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

const recordIdempotencySQL = `
INSERT INTO idempotency_outcomes (family, key, request_fingerprint, response_blob, created_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (family, key) DO NOTHING
`

// Record persists the outcome once via the unique (family, key) index. When
// a row already exists, a race to record the same logical request is
// harmless (whichever outcome won stands, discovered via a subsequent
// Lookup), but an existing row with a different request fingerprint means
// the key was reused for a different logical request and fails with
// ErrIdempotencyConflict.
func (s *IdempotencyStore) Record(ctx context.Context, outcome ports.IdempotentOutcome) error {
	tag, err := s.db.Pool().Exec(ctx, recordIdempotencySQL,
		outcome.Family, outcome.Key, outcome.RequestFingerprint, outcome.ResponseBlob)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	existing, err := s.Lookup(ctx, outcome.Family, outcome.Key)
	if err != nil {
		return err
	}
	if existing != nil && existing.RequestFingerprint != "" && outcome.RequestFingerprint != "" &&
		existing.RequestFingerprint != outcome.RequestFingerprint {
		return models.ErrIdempotencyConflict
	}
	return nil
}
