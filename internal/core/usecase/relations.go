package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/archivist/internal/core/domain"
	"github.com/kirillkom/archivist/internal/core/ports"
)

// RelationsUseCase maintains the directed document graph. Edges have
// a lifecycle independent of versions; both endpoints must exist.
type RelationsUseCase struct {
	repo      ports.DocumentRepository
	relations ports.RelationshipStore
	perm      ports.PermissionChecker
	audit     ports.AuditSink
}

func NewRelationsUseCase(
	repo ports.DocumentRepository,
	relations ports.RelationshipStore,
	perm ports.PermissionChecker,
	audit ports.AuditSink,
) *RelationsUseCase {
	return &RelationsUseCase{
		repo:      repo,
		relations: relations,
		perm:      perm,
		audit:     audit,
	}
}

func (uc *RelationsUseCase) Link(ctx context.Context, actor string, edge domain.Relationship) error {
	if !edge.Kind.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "link", fmt.Errorf("unknown relation kind %q", edge.Kind))
	}
	if edge.FromDocumentID == edge.ToDocumentID {
		return domain.WrapError(domain.ErrInvalidInput, "link", errors.New("self relation"))
	}

	from, err := uc.repo.GetDocument(ctx, edge.FromDocumentID)
	if err != nil {
		return err
	}
	if _, err := uc.repo.GetDocument(ctx, edge.ToDocumentID); err != nil {
		return err
	}
	if uc.perm != nil && !uc.perm.Can(ctx, actor, actionLink, from) {
		return domain.WrapError(domain.ErrAccessDenied, actionLink,
			fmt.Errorf("actor %q on document %s", actor, from.ID))
	}

	edge.CreatedBy = actor
	edge.CreatedAt = time.Now().UTC()
	if err := uc.relations.Link(ctx, edge); err != nil {
		return fmt.Errorf("store relation: %w", err)
	}
	uc.recordAudit(ctx, domain.AuditRelationLinked, edge, actor)
	return nil
}

func (uc *RelationsUseCase) Unlink(ctx context.Context, actor, fromID, toID string, kind domain.RelationKind) error {
	from, err := uc.repo.GetDocument(ctx, fromID)
	if err != nil {
		return err
	}
	if uc.perm != nil && !uc.perm.Can(ctx, actor, actionLink, from) {
		return domain.WrapError(domain.ErrAccessDenied, actionLink,
			fmt.Errorf("actor %q on document %s", actor, from.ID))
	}
	if err := uc.relations.Unlink(ctx, fromID, toID, kind); err != nil {
		return fmt.Errorf("remove relation: %w", err)
	}
	uc.recordAudit(ctx, domain.AuditRelationUnlinked, domain.Relationship{
		FromDocumentID: fromID, ToDocumentID: toID, Kind: kind,
	}, actor)
	return nil
}

func (uc *RelationsUseCase) ListRelations(ctx context.Context, actor, documentID string) ([]domain.Relationship, error) {
	doc, err := uc.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if uc.perm != nil && !uc.perm.Can(ctx, actor, actionRead, doc) {
		return nil, domain.WrapError(domain.ErrAccessDenied, actionRead,
			fmt.Errorf("actor %q on document %s", actor, doc.ID))
	}
	return uc.relations.ListFrom(ctx, documentID)
}

func (uc *RelationsUseCase) recordAudit(ctx context.Context, action domain.AuditAction, edge domain.Relationship, actor string) {
	if uc.audit == nil {
		return
	}
	if err := uc.audit.Record(ctx, domain.AuditEvent{
		Action:     action,
		DocumentID: edge.FromDocumentID,
		Actor:      actor,
		Detail:     fmt.Sprintf("%s -> %s (%s)", edge.FromDocumentID, edge.ToDocumentID, edge.Kind),
		At:         time.Now().UTC(),
	}); err != nil {
		slog.Warn("audit_record_failed", "action", action, "document_id", edge.FromDocumentID, "error", err)
	}
}
