package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/archivist/internal/core/domain"
)

type ingestFake struct {
	req domain.UploadRequest
	err error
}

func (f *ingestFake) Upload(_ context.Context, req domain.UploadRequest) (*domain.UploadReceipt, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.UploadReceipt{DocumentID: "doc-1", Version: 1, Status: domain.StatusPending}, nil
}

type versionsFake struct {
	commitReq      domain.NewVersionRequest
	rollbackTarget int
	number         int
	err            error
}

func (f *versionsFake) CommitVersion(_ context.Context, req domain.NewVersionRequest) (int, error) {
	f.commitReq = req
	if f.err != nil {
		return 0, f.err
	}
	return f.number, nil
}

func (f *versionsFake) Rollback(_ context.Context, _ string, target int, _ string) (int, error) {
	f.rollbackTarget = target
	if f.err != nil {
		return 0, f.err
	}
	return f.number, nil
}

type readerFake struct {
	doc     *domain.Document
	history []domain.Version
	err     error
}

func (f *readerFake) GetDocument(context.Context, string, string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func (f *readerFake) GetHistory(context.Context, string, string) ([]domain.Version, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

type downloadFake struct {
	content    []byte
	mediaType  string
	gotVersion int
	err        error
}

func (f *downloadFake) Download(_ context.Context, _, _ string, version int) ([]byte, string, error) {
	f.gotVersion = version
	if f.err != nil {
		return nil, "", f.err
	}
	return f.content, f.mediaType, nil
}

type searchFake struct {
	query  domain.SearchQuery
	result domain.SearchResult
	err    error
}

func (f *searchFake) Search(_ context.Context, _ string, q domain.SearchQuery) (domain.SearchResult, error) {
	f.query = q
	if f.err != nil {
		return domain.SearchResult{}, f.err
	}
	return f.result, nil
}

type relationsHTTPFake struct {
	linked   []domain.Relationship
	unlinked []domain.Relationship
	listed   []domain.Relationship
	err      error
}

func (f *relationsHTTPFake) Link(_ context.Context, _ string, edge domain.Relationship) error {
	if f.err != nil {
		return f.err
	}
	f.linked = append(f.linked, edge)
	return nil
}

func (f *relationsHTTPFake) Unlink(_ context.Context, _, fromID, toID string, kind domain.RelationKind) error {
	if f.err != nil {
		return f.err
	}
	f.unlinked = append(f.unlinked, domain.Relationship{FromDocumentID: fromID, ToDocumentID: toID, Kind: kind})
	return nil
}

func (f *relationsHTTPFake) ListRelations(context.Context, string, string) ([]domain.Relationship, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.listed, nil
}

type routerFakes struct {
	ingest    *ingestFake
	versions  *versionsFake
	reader    *readerFake
	downloads *downloadFake
	searcher  *searchFake
	relations *relationsHTTPFake
}

func newTestRouter(options Options) (http.Handler, *routerFakes) {
	fakes := &routerFakes{
		ingest:    &ingestFake{},
		versions:  &versionsFake{number: 2},
		reader:    &readerFake{doc: &domain.Document{ID: "doc-1", Title: "report"}},
		downloads: &downloadFake{content: []byte("payload"), mediaType: "text/plain"},
		searcher:  &searchFake{},
		relations: &relationsHTTPFake{},
	}
	handler := NewRouter(
		fakes.ingest,
		fakes.versions,
		fakes.reader,
		fakes.downloads,
		fakes.searcher,
		fakes.relations,
		options,
	).Handler()
	return handler, fakes
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField(%s) error = %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler, _ := newTestRouter(Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestUploadDocumentSuccess(t *testing.T) {
	handler, fakes := newTestRouter(Options{})
	body, contentType := multipartBody(t, "invoice.pdf", []byte("pdf bytes"), map[string]string{
		"title":        "October invoice",
		"access_level": "confidential",
		"process_ocr":  "false",
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Actor", "alice")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}

	var receipt map[string]any
	if err := json.NewDecoder(res.Body).Decode(&receipt); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if receipt["document_id"] != "doc-1" {
		t.Fatalf("unexpected response: %+v", receipt)
	}

	got := fakes.ingest.req
	if got.Title != "October invoice" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if got.AccessLevel != domain.AccessConfidential {
		t.Fatalf("unexpected access level %q", got.AccessLevel)
	}
	if got.ProcessOCR {
		t.Fatalf("process_ocr=false must be passed through")
	}
	if got.Actor != "alice" {
		t.Fatalf("unexpected actor %q", got.Actor)
	}
	if string(got.Content) != "pdf bytes" {
		t.Fatalf("unexpected content %q", got.Content)
	}
}

func TestUploadDefaultsTitleAndActor(t *testing.T) {
	handler, fakes := newTestRouter(Options{})
	body, contentType := multipartBody(t, "report.pdf", []byte("x"), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	got := fakes.ingest.req
	if got.Title != "report.pdf" {
		t.Fatalf("expected filename fallback title, got %q", got.Title)
	}
	if got.AccessLevel != domain.AccessInternal {
		t.Fatalf("expected internal default, got %q", got.AccessLevel)
	}
	if !got.ProcessOCR {
		t.Fatalf("OCR must default to enabled")
	}
	if got.Actor != "anonymous" {
		t.Fatalf("expected anonymous actor, got %q", got.Actor)
	}
}

func TestUploadMissingMultipartField(t *testing.T) {
	handler, _ := newTestRouter(Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadRejectsInvalidProcessOcr(t *testing.T) {
	handler, _ := newTestRouter(Options{})
	body, contentType := multipartBody(t, "a.txt", []byte("x"), map[string]string{"process_ocr": "maybe"})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestCommitVersionEndpoint(t *testing.T) {
	handler, fakes := newTestRouter(Options{})
	fakes.versions.number = 4
	body, contentType := multipartBody(t, "v2.pdf", []byte("revised"), map[string]string{"note": "second draft"})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc-1/versions", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["version"] != float64(4) || resp["status"] != string(domain.StatusPending) {
		t.Fatalf("unexpected response %+v", resp)
	}
	if fakes.versions.commitReq.DocumentID != "doc-1" || fakes.versions.commitReq.Note != "second draft" {
		t.Fatalf("unexpected commit request %+v", fakes.versions.commitReq)
	}
}

func TestRollbackEndpoint(t *testing.T) {
	handler, fakes := newTestRouter(Options{})
	fakes.versions.number = 5

	payload, _ := json.Marshal(map[string]int{"target_version": 2})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc-1/rollback", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if fakes.versions.rollbackTarget != 2 {
		t.Fatalf("expected rollback target 2, got %d", fakes.versions.rollbackTarget)
	}
}

func TestRollbackRejectsNonPositiveTarget(t *testing.T) {
	handler, _ := newTestRouter(Options{})

	payload, _ := json.Marshal(map[string]int{"target_version": 0})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc-1/rollback", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestDownloadContentEndpoint(t *testing.T) {
	handler, fakes := newTestRouter(Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/content?version=2", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get("Content-Type") != "text/plain" {
		t.Fatalf("unexpected content type %q", res.Header().Get("Content-Type"))
	}
	if res.Body.String() != "payload" {
		t.Fatalf("unexpected body %q", res.Body.String())
	}
	if fakes.downloads.gotVersion != 2 {
		t.Fatalf("expected version 2 requested, got %d", fakes.downloads.gotVersion)
	}
}

func TestDownloadContentRejectsBadVersionParam(t *testing.T) {
	handler, _ := newTestRouter(Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/content?version=latest", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	handler, fakes := newTestRouter(Options{})
	fakes.reader.history = []domain.Version{
		{DocumentID: "doc-1", Number: 1, Status: domain.StatusIndexed},
		{DocumentID: "doc-1", Number: 2, Status: domain.StatusPending},
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/history", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp struct {
		Versions []domain.Version `json:"versions"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(resp.Versions))
	}
}

func TestRelationsEndpoints(t *testing.T) {
	handler, fakes := newTestRouter(Options{})
	fakes.relations.listed = []domain.Relationship{
		{FromDocumentID: "doc-1", ToDocumentID: "doc-2", Kind: domain.RelationRelatedTo, CreatedAt: time.Now().UTC()},
	}

	payload, _ := json.Marshal(map[string]string{"to_document_id": "doc-2", "kind": "supersedes"})
	put := httptest.NewRequest(http.MethodPut, "/v1/documents/doc-1/relations", bytes.NewReader(payload))
	putRes := httptest.NewRecorder()
	handler.ServeHTTP(putRes, put)
	if putRes.Code != http.StatusCreated {
		t.Fatalf("link expected 201, got %d", putRes.Code)
	}
	if len(fakes.relations.linked) != 1 || fakes.relations.linked[0].Kind != domain.RelationSupersedes {
		t.Fatalf("unexpected linked edges %+v", fakes.relations.linked)
	}

	get := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/relations", nil)
	getRes := httptest.NewRecorder()
	handler.ServeHTTP(getRes, get)
	if getRes.Code != http.StatusOK {
		t.Fatalf("list expected 200, got %d", getRes.Code)
	}

	del := httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-1/relations", bytes.NewReader(payload))
	delRes := httptest.NewRecorder()
	handler.ServeHTTP(delRes, del)
	if delRes.Code != http.StatusOK {
		t.Fatalf("unlink expected 200, got %d", delRes.Code)
	}
	if len(fakes.relations.unlinked) != 1 || fakes.relations.unlinked[0].ToDocumentID != "doc-2" {
		t.Fatalf("unexpected unlinked edges %+v", fakes.relations.unlinked)
	}
}

func TestSearchEndpointPassesQueryThrough(t *testing.T) {
	handler, fakes := newTestRouter(Options{})
	fakes.searcher.result = domain.SearchResult{
		Total: 1,
		Hits:  []domain.SearchHit{{DocumentID: "doc-1", Version: 1, Title: "report", Score: 2}},
	}

	req := httptest.NewRequest(http.MethodGet,
		"/v1/search?q=invoice+payment&category=Financial&access_level=internal,confidential&page=1&page_size=5", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	q := fakes.searcher.query
	if q.Text != "invoice payment" || q.Category != "Financial" {
		t.Fatalf("unexpected query %+v", q)
	}
	if len(q.AccessLevels) != 2 || q.Page != 1 || q.PageSize != 5 {
		t.Fatalf("unexpected query %+v", q)
	}
}
