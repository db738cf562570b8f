package ports

import (
	"context"
	"time"

	"github.com/kirillkom/archivist/internal/core/domain"
)

// ContentStore is content-addressed encrypted blob storage. Put is
// idempotent under concurrent identical uploads; each Put or Retain
// increments the blob's reference count.
type ContentStore interface {
	Put(ctx context.Context, plaintext []byte, mediaType string) (domain.BlobRef, error)
	Get(ctx context.Context, ref domain.BlobRef) ([]byte, error)
	Retain(ctx context.Context, hash string) error
	Release(ctx context.Context, hash string) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// DocumentRepository persists documents and their version chains.
// AppendVersion performs the optimistic head check and returns
// domain.ErrConcurrentModification when the chain moved underneath
// the caller.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, doc *domain.Document, first *domain.Version) error
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	AppendVersion(ctx context.Context, documentID string, expectedHead int, v *domain.Version) error
	GetVersion(ctx context.Context, documentID string, number int) (*domain.Version, error)
	ListVersions(ctx context.Context, documentID string) ([]domain.Version, error)
	UpdateVersionStatus(ctx context.Context, documentID string, number int, status domain.VersionStatus, detail string) error
	SaveOcrResult(ctx context.Context, documentID string, number int, res domain.OcrResult) error
	SaveClassification(ctx context.Context, documentID string, number int, cls domain.ClassificationResult) error
}

// OcrExtractor turns a stored blob into plain text, best effort.
type OcrExtractor interface {
	Extract(ctx context.Context, ref domain.BlobRef) (domain.OcrResult, error)
}

// Classifier maps extracted text plus metadata to a category.
type Classifier interface {
	Classify(ctx context.Context, text string, meta domain.ClassifyInput) (domain.ClassificationResult, error)
}

// SearchIndex projects committed versions into an abstract index.
// Indexing the same (document, version) twice replaces the entry.
type SearchIndex interface {
	Index(ctx context.Context, entry domain.IndexEntry) error
	Search(ctx context.Context, q domain.SearchQuery) (domain.SearchResult, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// StageQueue hands committed versions to the asynchronous pipeline.
type StageQueue interface {
	PublishVersionCommitted(ctx context.Context, documentID string, version int) error
	SubscribeVersionCommitted(ctx context.Context, handler func(context.Context, string, int) error) error
}

// RelationshipStore keeps the directed document graph.
type RelationshipStore interface {
	Link(ctx context.Context, edge domain.Relationship) error
	Unlink(ctx context.Context, fromID, toID string, kind domain.RelationKind) error
	ListFrom(ctx context.Context, documentID string) ([]domain.Relationship, error)
}

// KeyProvider resolves data-at-rest encryption keys. Blobs record the
// key version they were sealed with; rotation adds a new current key
// and never forces re-encryption.
type KeyProvider interface {
	CurrentKey() (version uint32, key []byte, err error)
	Key(version uint32) ([]byte, error)
}

// PermissionChecker is the external authorization collaborator.
type PermissionChecker interface {
	Can(ctx context.Context, actor, action string, doc *domain.Document) bool
}

// AuditSink records user-visible archive actions.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}
