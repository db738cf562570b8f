package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kirillkom/archivist/internal/core/domain"
)

type statusCall struct {
	number int
	status domain.VersionStatus
	detail string
}

type repoFake struct {
	docs     map[string]*domain.Document
	versions map[string]map[int]*domain.Version

	createErr error
	appendErr error
	statusErr error

	statusCalls     []statusCall
	savedOcr        map[int]domain.OcrResult
	savedCls        map[int]domain.ClassificationResult
	appendedNumbers []int
}

func newRepoFake() *repoFake {
	return &repoFake{
		docs:     make(map[string]*domain.Document),
		versions: make(map[string]map[int]*domain.Version),
		savedOcr: make(map[int]domain.OcrResult),
		savedCls: make(map[int]domain.ClassificationResult),
	}
}

func (f *repoFake) addDocument(doc *domain.Document, versions ...*domain.Version) {
	f.docs[doc.ID] = doc
	f.versions[doc.ID] = make(map[int]*domain.Version)
	for _, v := range versions {
		f.versions[doc.ID][v.Number] = v
	}
}

func (f *repoFake) CreateDocument(_ context.Context, doc *domain.Document, first *domain.Version) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.addDocument(doc, first)
	return nil
}

func (f *repoFake) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("document %s", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *repoFake) AppendVersion(_ context.Context, documentID string, expectedHead int, v *domain.Version) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	doc, ok := f.docs[documentID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "append version", fmt.Errorf("document %s", documentID))
	}
	if doc.HeadVersion != expectedHead {
		return domain.WrapError(domain.ErrConcurrentModification, "append version",
			fmt.Errorf("expected head %d, have %d", expectedHead, doc.HeadVersion))
	}
	doc.HeadVersion = v.Number
	doc.CurrentVersion = v.Number
	f.versions[documentID][v.Number] = v
	f.appendedNumbers = append(f.appendedNumbers, v.Number)
	return nil
}

func (f *repoFake) GetVersion(_ context.Context, documentID string, number int) (*domain.Version, error) {
	v, ok := f.versions[documentID][number]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get version",
			fmt.Errorf("document %s version %d", documentID, number))
	}
	copyV := *v
	return &copyV, nil
}

func (f *repoFake) ListVersions(_ context.Context, documentID string) ([]domain.Version, error) {
	out := make([]domain.Version, 0, len(f.versions[documentID]))
	for n := 1; ; n++ {
		v, ok := f.versions[documentID][n]
		if !ok {
			break
		}
		out = append(out, *v)
	}
	return out, nil
}

func (f *repoFake) UpdateVersionStatus(_ context.Context, documentID string, number int, status domain.VersionStatus, detail string) error {
	f.statusCalls = append(f.statusCalls, statusCall{number: number, status: status, detail: detail})
	if f.statusErr != nil {
		return f.statusErr
	}
	if v, ok := f.versions[documentID][number]; ok {
		v.Status = status
		v.StatusDetail = detail
	}
	// mirror the repository contract: current = highest non-failed
	if doc, ok := f.docs[documentID]; ok {
		current := 0
		for n, ver := range f.versions[documentID] {
			if ver.Status != domain.StatusFailed && n > current {
				current = n
			}
		}
		doc.CurrentVersion = current
	}
	return nil
}

func (f *repoFake) SaveOcrResult(_ context.Context, documentID string, number int, res domain.OcrResult) error {
	f.savedOcr[number] = res
	if v, ok := f.versions[documentID][number]; ok {
		v.OcrText = res.Text
		v.OcrConfidence = res.Confidence
		v.OcrWarnings = res.Warnings
		v.OcrDone = true
	}
	return nil
}

func (f *repoFake) SaveClassification(_ context.Context, documentID string, number int, cls domain.ClassificationResult) error {
	f.savedCls[number] = cls
	if v, ok := f.versions[documentID][number]; ok {
		copyCls := cls
		v.Classification = &copyCls
	}
	if doc, ok := f.docs[documentID]; ok && doc.Category == "" {
		doc.Category = cls.Category
		doc.Subcategory = cls.Subcategory
	}
	return nil
}

type storeFake struct {
	blobs    map[string][]byte
	putErr   error
	getErr   error
	released []string
	retained []string
}

func newStoreFake() *storeFake {
	return &storeFake{blobs: make(map[string][]byte)}
}

func (f *storeFake) Put(_ context.Context, plaintext []byte, mediaType string) (domain.BlobRef, error) {
	if f.putErr != nil {
		return domain.BlobRef{}, f.putErr
	}
	sum := sha256.Sum256(plaintext)
	hash := hex.EncodeToString(sum[:])
	f.blobs[hash] = plaintext
	return domain.BlobRef{Hash: hash, Size: int64(len(plaintext)), MediaType: mediaType}, nil
}

func (f *storeFake) Get(_ context.Context, ref domain.BlobRef) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	content, ok := f.blobs[ref.Hash]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get blob", fmt.Errorf("hash %s", ref.Hash))
	}
	return content, nil
}

func (f *storeFake) Retain(_ context.Context, hash string) error {
	f.retained = append(f.retained, hash)
	return nil
}

func (f *storeFake) Release(_ context.Context, hash string) error {
	f.released = append(f.released, hash)
	return nil
}

func (f *storeFake) SweepExpired(context.Context, time.Time) (int, error) { return 0, nil }

type publishedEvent struct {
	documentID string
	version    int
}

type queueFake struct {
	published  []publishedEvent
	publishErr error
}

func (f *queueFake) PublishVersionCommitted(_ context.Context, documentID string, version int) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedEvent{documentID: documentID, version: version})
	return nil
}

func (f *queueFake) SubscribeVersionCommitted(context.Context, func(context.Context, string, int) error) error {
	return nil
}

type auditFake struct {
	events    []domain.AuditEvent
	recordErr error
}

func (f *auditFake) Record(_ context.Context, event domain.AuditEvent) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.events = append(f.events, event)
	return nil
}

type extractorFake struct {
	res    domain.OcrResult
	err    error
	called int
}

func (f *extractorFake) Extract(context.Context, domain.BlobRef) (domain.OcrResult, error) {
	f.called++
	if f.err != nil {
		return domain.OcrResult{}, f.err
	}
	return f.res, nil
}

type classifierFake struct {
	cls    domain.ClassificationResult
	err    error
	called int
	text   string
	meta   domain.ClassifyInput
}

func (f *classifierFake) Classify(_ context.Context, text string, meta domain.ClassifyInput) (domain.ClassificationResult, error) {
	f.called++
	f.text = text
	f.meta = meta
	if f.err != nil {
		return domain.ClassificationResult{}, f.err
	}
	return f.cls, nil
}

type indexFake struct {
	entries   []domain.IndexEntry
	indexErr  error
	searchFn  func(domain.SearchQuery) (domain.SearchResult, error)
	lastQuery domain.SearchQuery
}

func (f *indexFake) Index(_ context.Context, entry domain.IndexEntry) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *indexFake) Search(_ context.Context, q domain.SearchQuery) (domain.SearchResult, error) {
	f.lastQuery = q
	if f.searchFn != nil {
		return f.searchFn(q)
	}
	return domain.SearchResult{}, nil
}

func (f *indexFake) DeleteDocument(context.Context, string) error { return nil }

type relationsFake struct {
	linked   []domain.Relationship
	unlinked []domain.Relationship
	listed   []domain.Relationship
	linkErr  error
}

func (f *relationsFake) Link(_ context.Context, edge domain.Relationship) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.linked = append(f.linked, edge)
	return nil
}

func (f *relationsFake) Unlink(_ context.Context, fromID, toID string, kind domain.RelationKind) error {
	f.unlinked = append(f.unlinked, domain.Relationship{FromDocumentID: fromID, ToDocumentID: toID, Kind: kind})
	return nil
}

func (f *relationsFake) ListFrom(context.Context, string) ([]domain.Relationship, error) {
	return f.listed, nil
}

type permFake struct {
	denyActions map[string]bool
}

func (f *permFake) Can(_ context.Context, _ string, action string, _ *domain.Document) bool {
	return !f.denyActions[action]
}

// passRetrier runs the stage once with no retry, matching the real
// retrier's contract for tests that do not exercise backoff.
type passRetrier struct{}

func (passRetrier) Do(ctx context.Context, _ string, fn func(context.Context) error, _ func(error) bool) error {
	return fn(ctx)
}
