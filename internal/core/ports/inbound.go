package ports

import (
	"context"

	"github.com/kirillkom/archivist/internal/core/domain"
)

// DocumentIngestor is the inbound contract for upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, req domain.UploadRequest) (*domain.UploadReceipt, error)
}

// VersionCommitter appends and restores versions on the linear chain.
type VersionCommitter interface {
	CommitVersion(ctx context.Context, req domain.NewVersionRequest) (int, error)
	Rollback(ctx context.Context, documentID string, targetVersion int, actor string) (int, error)
}

// DocumentReader is the inbound read model for metadata and history.
type DocumentReader interface {
	GetDocument(ctx context.Context, actor, id string) (*domain.Document, error)
	GetHistory(ctx context.Context, actor, id string) ([]domain.Version, error)
}

// ContentDownloader serves decrypted bytes for a version.
type ContentDownloader interface {
	Download(ctx context.Context, actor, documentID string, version int) ([]byte, string, error)
}

// ArchiveSearcher runs free-text and faceted queries.
type ArchiveSearcher interface {
	Search(ctx context.Context, actor string, q domain.SearchQuery) (domain.SearchResult, error)
}

// RelationshipEditor maintains the document graph.
type RelationshipEditor interface {
	Link(ctx context.Context, actor string, edge domain.Relationship) error
	Unlink(ctx context.Context, actor, fromID, toID string, kind domain.RelationKind) error
	ListRelations(ctx context.Context, actor, documentID string) ([]domain.Relationship, error)
}

// VersionProcessor is the inbound contract for the asynchronous
// pipeline stages.
type VersionProcessor interface {
	ProcessVersion(ctx context.Context, documentID string, version int) error
}
