package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/archivist/internal/core/domain"
)

// AuditRepository appends archive actions to the audit trail.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Record(ctx context.Context, event domain.AuditEvent) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_trail (action, document_id, actor, detail, at)
VALUES ($1,$2,$3,$4,$5)
`, string(event.Action), event.DocumentID, event.Actor, event.Detail, event.At)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
