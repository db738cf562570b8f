package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/archivist/internal/core/domain"
	"github.com/kirillkom/archivist/internal/core/ports"
)

type IngestUseCase struct {
	repo  ports.DocumentRepository
	store ports.ContentStore
	queue ports.StageQueue
	audit ports.AuditSink
}

func NewIngestUseCase(
	repo ports.DocumentRepository,
	store ports.ContentStore,
	queue ports.StageQueue,
	audit ports.AuditSink,
) *IngestUseCase {
	return &IngestUseCase{
		repo:  repo,
		store: store,
		queue: queue,
		audit: audit,
	}
}

// Upload stores the payload, creates the document with version 1 in
// status pending and hands the version to the pipeline. The upload is
// durable as soon as blob and version record are committed; a publish
// failure leaves the version pending for a later retry and does not
// fail the caller.
func (uc *IngestUseCase) Upload(ctx context.Context, req domain.UploadRequest) (*domain.UploadReceipt, error) {
	if err := validateUpload(req); err != nil {
		return nil, err
	}

	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = sniffMediaType(req.Content)
	}

	ref, err := uc.store.Put(ctx, req.Content, mediaType)
	if err != nil {
		return nil, fmt.Errorf("store upload payload: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:             uuid.NewString(),
		Title:          strings.TrimSpace(req.Title),
		DocumentType:   req.DocumentType,
		Category:       req.Category,
		Description:    req.Description,
		AccessLevel:    req.AccessLevel,
		CurrentVersion: 1,
		HeadVersion:    1,
		CreatedBy:      req.Actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	first := &domain.Version{
		DocumentID: doc.ID,
		Number:     1,
		BlobHash:   ref.Hash,
		Size:       ref.Size,
		MediaType:  ref.MediaType,
		SkipOcr:    !req.ProcessOCR,
		Status:     domain.StatusPending,
		CreatedBy:  req.Actor,
		CreatedAt:  now,
	}

	if err := uc.repo.CreateDocument(ctx, doc, first); err != nil {
		if releaseErr := uc.store.Release(ctx, ref.Hash); releaseErr != nil {
			slog.Warn("release_orphaned_blob_failed", "hash", ref.Hash, "error", releaseErr)
		}
		return nil, fmt.Errorf("create document record: %w", err)
	}

	if err := uc.queue.PublishVersionCommitted(ctx, doc.ID, first.Number); err != nil {
		slog.Warn("publish_version_event_failed", "document_id", doc.ID, "version", first.Number, "error", err)
	}

	uc.recordAudit(ctx, domain.AuditEvent{
		Action:     domain.AuditDocumentCreated,
		DocumentID: doc.ID,
		Actor:      req.Actor,
		Detail:     fmt.Sprintf("title=%q media_type=%s size=%d", doc.Title, ref.MediaType, ref.Size),
		At:         now,
	})

	return &domain.UploadReceipt{
		DocumentID: doc.ID,
		Version:    first.Number,
		Status:     first.Status,
	}, nil
}

func (uc *IngestUseCase) recordAudit(ctx context.Context, ev domain.AuditEvent) {
	if uc.audit == nil {
		return
	}
	if err := uc.audit.Record(ctx, ev); err != nil {
		slog.Warn("audit_record_failed", "action", ev.Action, "document_id", ev.DocumentID, "error", err)
	}
}

func validateUpload(req domain.UploadRequest) error {
	if len(req.Content) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("empty payload"))
	}
	if strings.TrimSpace(req.Title) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("title is required"))
	}
	if !req.AccessLevel.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "upload",
			fmt.Errorf("unknown access level %q", req.AccessLevel))
	}
	return nil
}

func sniffMediaType(content []byte) string {
	mediaType := http.DetectContentType(content)
	if i := strings.Index(mediaType, ";"); i > 0 {
		mediaType = mediaType[:i]
	}
	return mediaType
}
