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

// VersionManager owns the ordered history of revisions for a logical
// document. All chain mutations run under the per-document lock; the
// repository's optimistic head check additionally guards against
// concurrent writers in other processes.
type VersionManager struct {
	repo  ports.DocumentRepository
	store ports.ContentStore
	queue ports.StageQueue
	audit ports.AuditSink
	locks *DocumentLocks
}

func NewVersionManager(
	repo ports.DocumentRepository,
	store ports.ContentStore,
	queue ports.StageQueue,
	audit ports.AuditSink,
	locks *DocumentLocks,
) *VersionManager {
	return &VersionManager{
		repo:  repo,
		store: store,
		queue: queue,
		audit: audit,
		locks: locks,
	}
}

// CommitVersion appends the next version of the document. Callers
// receiving domain.ErrConcurrentModification must re-read and retry.
func (m *VersionManager) CommitVersion(ctx context.Context, req domain.NewVersionRequest) (int, error) {
	if len(req.Content) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "commit version", errors.New("empty payload"))
	}

	release := m.locks.Acquire(req.DocumentID)
	defer release()

	doc, err := m.repo.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return 0, err
	}

	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = sniffMediaType(req.Content)
	}
	ref, err := m.store.Put(ctx, req.Content, mediaType)
	if err != nil {
		return 0, fmt.Errorf("store version payload: %w", err)
	}

	v := &domain.Version{
		DocumentID: doc.ID,
		Number:     doc.HeadVersion + 1,
		BlobHash:   ref.Hash,
		Size:       ref.Size,
		MediaType:  ref.MediaType,
		Status:     domain.StatusPending,
		Note:       req.Note,
		CreatedBy:  req.Actor,
		CreatedAt:  time.Now().UTC(),
	}

	if err := m.repo.AppendVersion(ctx, doc.ID, doc.HeadVersion, v); err != nil {
		if releaseErr := m.store.Release(ctx, ref.Hash); releaseErr != nil {
			slog.Warn("release_orphaned_blob_failed", "hash", ref.Hash, "error", releaseErr)
		}
		return 0, err
	}

	m.publishAndAudit(ctx, v, domain.AuditVersionCommitted, req.Actor,
		fmt.Sprintf("version=%d note=%q", v.Number, req.Note))
	return v.Number, nil
}

// Rollback restores target_version's content as a brand new version.
// History is never deleted.
func (m *VersionManager) Rollback(ctx context.Context, documentID string, targetVersion int, actor string) (int, error) {
	release := m.locks.Acquire(documentID)
	defer release()

	doc, err := m.repo.GetDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	target, err := m.repo.GetVersion(ctx, documentID, targetVersion)
	if err != nil {
		return 0, err
	}

	if err := m.store.Retain(ctx, target.BlobHash); err != nil {
		return 0, fmt.Errorf("retain restored blob: %w", err)
	}

	v := &domain.Version{
		DocumentID: doc.ID,
		Number:     doc.HeadVersion + 1,
		BlobHash:   target.BlobHash,
		Size:       target.Size,
		MediaType:  target.MediaType,
		Status:     domain.StatusPending,
		Note:       fmt.Sprintf("restore of version %d", target.Number),
		CreatedBy:  actor,
		CreatedAt:  time.Now().UTC(),
	}

	if err := m.repo.AppendVersion(ctx, doc.ID, doc.HeadVersion, v); err != nil {
		if releaseErr := m.store.Release(ctx, target.BlobHash); releaseErr != nil {
			slog.Warn("release_orphaned_blob_failed", "hash", target.BlobHash, "error", releaseErr)
		}
		return 0, err
	}

	m.publishAndAudit(ctx, v, domain.AuditVersionRolledBack, actor,
		fmt.Sprintf("restored version %d as %d", target.Number, v.Number))
	return v.Number, nil
}

func (m *VersionManager) publishAndAudit(ctx context.Context, v *domain.Version, action domain.AuditAction, actor, detail string) {
	if err := m.queue.PublishVersionCommitted(ctx, v.DocumentID, v.Number); err != nil {
		slog.Warn("publish_version_event_failed", "document_id", v.DocumentID, "version", v.Number, "error", err)
	}
	if m.audit == nil {
		return
	}
	if err := m.audit.Record(ctx, domain.AuditEvent{
		Action:     action,
		DocumentID: v.DocumentID,
		Actor:      actor,
		Detail:     detail,
		At:         v.CreatedAt,
	}); err != nil {
		slog.Warn("audit_record_failed", "action", action, "document_id", v.DocumentID, "error", err)
	}
}
