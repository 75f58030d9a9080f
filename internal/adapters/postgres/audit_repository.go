package postgres

import (
	"context"

	"github.com/meridianpay/gatewaycore/internal/domain/models"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
)

// AuditRepository implements ports.AuditRepository as a pure append log:
// no Update/Delete methods exist because audit rows are immutable once written.
type AuditRepository struct {
	db ports.DBPort
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db ports.DBPort) *AuditRepository {
	return &AuditRepository{db: db}
}

const insertAuditLogSQL = `
INSERT INTO audit_log (id, entity_type, entity_id, from_status, to_status, reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`

func (r *AuditRepository) Append(ctx context.Context, ex ports.Executor, entry *models.AuditLog) error {
	_, err := ex.Exec(ctx, insertAuditLogSQL,
		entry.ID, entry.EntityType, entry.EntityID, entry.FromStatus, entry.ToStatus,
		entry.Reason, entry.CreatedAt)
	return err
}

var _ ports.AuditRepository = (*AuditRepository)(nil)
