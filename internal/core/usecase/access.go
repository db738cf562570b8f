package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/archivist/internal/core/domain"
	"github.com/kirillkom/archivist/internal/core/ports"
)

const (
	actionRead     = "read"
	actionDownload = "download"
	actionLink     = "link"
)

// AccessUseCase serves reads: metadata, history, decrypted content and
// search. Downloads work even for failed versions; the blob is always
// servable once committed.
type AccessUseCase struct {
	repo  ports.DocumentRepository
	store ports.ContentStore
	index ports.SearchIndex
	perm  ports.PermissionChecker
	audit ports.AuditSink
}

func NewAccessUseCase(
	repo ports.DocumentRepository,
	store ports.ContentStore,
	index ports.SearchIndex,
	perm ports.PermissionChecker,
	audit ports.AuditSink,
) *AccessUseCase {
	return &AccessUseCase{
		repo:  repo,
		store: store,
		index: index,
		perm:  perm,
		audit: audit,
	}
}

func (uc *AccessUseCase) GetDocument(ctx context.Context, actor, id string) (*domain.Document, error) {
	doc, err := uc.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := uc.authorize(ctx, actor, actionRead, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetHistory returns the full version chain oldest first, failed
// versions included.
func (uc *AccessUseCase) GetHistory(ctx context.Context, actor, id string) ([]domain.Version, error) {
	if _, err := uc.GetDocument(ctx, actor, id); err != nil {
		return nil, err
	}
	return uc.repo.ListVersions(ctx, id)
}

// Download decrypts and returns a version's payload with its media
// type. version 0 means the document's current version.
func (uc *AccessUseCase) Download(ctx context.Context, actor, documentID string, version int) ([]byte, string, error) {
	doc, err := uc.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, "", err
	}
	if err := uc.authorize(ctx, actor, actionDownload, doc); err != nil {
		return nil, "", err
	}

	if version == 0 {
		version = doc.CurrentVersion
	}
	v, err := uc.repo.GetVersion(ctx, documentID, version)
	if err != nil {
		return nil, "", err
	}

	plaintext, err := uc.store.Get(ctx, v.BlobRef())
	if err != nil {
		return nil, "", err
	}

	if uc.audit != nil {
		if err := uc.audit.Record(ctx, domain.AuditEvent{
			Action:     domain.AuditDocumentViewed,
			DocumentID: documentID,
			Actor:      actor,
			Detail:     fmt.Sprintf("version=%d", version),
			At:         time.Now().UTC(),
		}); err != nil {
			slog.Warn("audit_record_failed", "action", domain.AuditDocumentViewed, "document_id", documentID, "error", err)
		}
	}
	return plaintext, v.MediaType, nil
}

// Search is eventually consistent with committed versions: a version
// becomes visible when its indexing stage completes. Results are
// constrained to access levels the actor may read; documents above the
// actor's reach never surface, not even as titles.
func (uc *AccessUseCase) Search(ctx context.Context, actor string, q domain.SearchQuery) (domain.SearchResult, error) {
	if q.PageSize <= 0 {
		q.PageSize = 20
	}
	if q.Page < 0 {
		q.Page = 0
	}

	q.AccessLevels = uc.searchableLevels(ctx, actor, q.AccessLevels)
	if len(q.AccessLevels) == 0 {
		return domain.SearchResult{}, nil
	}
	return uc.index.Search(ctx, q)
}

// searchableLevels intersects the requested access levels with those
// the actor is allowed to read. An unconstrained query asks for every
// level.
func (uc *AccessUseCase) searchableLevels(ctx context.Context, actor string, requested []domain.AccessLevel) []domain.AccessLevel {
	levels := requested
	if len(levels) == 0 {
		levels = []domain.AccessLevel{domain.AccessInternal, domain.AccessConfidential, domain.AccessRestricted}
	}
	if uc.perm == nil {
		return levels
	}
	var allowed []domain.AccessLevel
	for _, level := range levels {
		if uc.perm.Can(ctx, actor, actionRead, &domain.Document{AccessLevel: level}) {
			allowed = append(allowed, level)
		}
	}
	return allowed
}

func (uc *AccessUseCase) authorize(ctx context.Context, actor, action string, doc *domain.Document) error {
	if uc.perm != nil && !uc.perm.Can(ctx, actor, action, doc) {
		return domain.WrapError(domain.ErrAccessDenied, action,
			fmt.Errorf("actor %q on document %s", actor, doc.ID))
	}
	return nil
}
