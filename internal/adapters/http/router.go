package httpadapter

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/archivist/internal/core/domain"
	"github.com/kirillkom/archivist/internal/core/ports"
	"github.com/kirillkom/archivist/internal/observability/metrics"
)

const actorHeader = "X-Actor"

type Router struct {
	ingest    ports.DocumentIngestor
	versions  ports.VersionCommitter
	reader    ports.DocumentReader
	downloads ports.ContentDownloader
	searcher  ports.ArchiveSearcher
	relations ports.RelationshipEditor

	options Options
}

type Options struct {
	UploadRateLimitRPS   float64
	UploadRateLimitBurst int
	MaxUploadBytes       int64

	MaxInFlightRequests int
	MaxInFlightWait     time.Duration

	Metrics *metrics.HTTPServerMetrics
	Service string
}

func NewRouter(
	ingest ports.DocumentIngestor,
	versions ports.VersionCommitter,
	reader ports.DocumentReader,
	downloads ports.ContentDownloader,
	searcher ports.ArchiveSearcher,
	relations ports.RelationshipEditor,
	options Options,
) *Router {
	if options.MaxUploadBytes <= 0 {
		options.MaxUploadBytes = 64 << 20
	}
	if options.Service == "" {
		options.Service = "api"
	}
	return &Router{
		ingest:    ingest,
		versions:  versions,
		reader:    reader,
		downloads: downloads,
		searcher:  searcher,
		relations: relations,
		options:   options,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/search", rt.search)
	mux.Handle("/v1/documents", rateLimitMiddleware(
		http.HandlerFunc(rt.uploadDocument),
		rt.options.UploadRateLimitRPS,
		rt.options.UploadRateLimitBurst,
	))
	mux.HandleFunc("/v1/documents/", rt.documentSubtree)
	if rt.options.Metrics != nil {
		mux.Handle("/metrics", rt.options.Metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.options.MaxInFlightRequests > 0 {
		wait := rt.options.MaxInFlightWait
		if wait <= 0 {
			wait = 2 * time.Second
		}
		handler = backpressureMiddleware(handler, rt.options.MaxInFlightRequests, wait)
	}
	if rt.options.Metrics != nil {
		handler = rt.options.Metrics.Middleware(rt.options.Service, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.options.MaxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload payload: "+err.Error())
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = sanitizeFilename(fileHeader.Filename)
	}
	accessLevel := domain.AccessLevel(r.FormValue("access_level"))
	if accessLevel == "" {
		accessLevel = domain.AccessInternal
	}
	processOCR := true
	if raw := r.FormValue("process_ocr"); raw != "" {
		parsed, parseErr := strconv.ParseBool(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "process_ocr must be a boolean")
			return
		}
		processOCR = parsed
	}

	receipt, err := rt.ingest.Upload(r.Context(), domain.UploadRequest{
		Content:      content,
		Title:        title,
		DocumentType: r.FormValue("document_type"),
		Category:     r.FormValue("category"),
		Description:  r.FormValue("description"),
		AccessLevel:  accessLevel,
		MediaType:    fileHeader.Header.Get("Content-Type"),
		ProcessOCR:   processOCR,
		Actor:        actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rt.options.Metrics != nil {
		rt.options.Metrics.RecordUploadBytes(rt.options.Service, int64(len(content)))
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

// documentSubtree dispatches /v1/documents/{id}[/...] by path segment.
func (rt *Router) documentSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	id := segments[0]

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		rt.getDocument(w, r, id)
		return
	}

	switch segments[1] {
	case "versions":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		rt.commitVersion(w, r, id)
	case "rollback":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		rt.rollback(w, r, id)
	case "history":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		rt.history(w, r, id)
	case "content":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		rt.downloadContent(w, r, id)
	case "relations":
		rt.relationsEndpoint(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "unknown resource")
	}
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := rt.reader.GetDocument(r.Context(), actorFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) commitVersion(w http.ResponseWriter, r *http.Request, id string) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.options.MaxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read version payload: "+err.Error())
		return
	}

	number, err := rt.versions.CommitVersion(r.Context(), domain.NewVersionRequest{
		DocumentID: id,
		Content:    content,
		MediaType:  fileHeader.Header.Get("Content-Type"),
		Note:       r.FormValue("note"),
		Actor:      actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"version": number,
		"status":  domain.StatusPending,
	})
}

func (rt *Router) rollback(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		TargetVersion int `json:"target_version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.TargetVersion <= 0 {
		writeError(w, http.StatusBadRequest, "target_version must be positive")
		return
	}

	number, err := rt.versions.Rollback(r.Context(), id, req.TargetVersion, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"version": number,
		"status":  domain.StatusPending,
	})
}

func (rt *Router) history(w http.ResponseWriter, r *http.Request, id string) {
	versions, err := rt.reader.GetHistory(r.Context(), actorFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (rt *Router) downloadContent(w http.ResponseWriter, r *http.Request, id string) {
	version := 0
	if raw := r.URL.Query().Get("version"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "version must be a non-negative integer")
			return
		}
		version = parsed
	}

	content, mediaType, err := rt.downloads.Download(r.Context(), actorFrom(r), id, version)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (rt *Router) relationsEndpoint(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		edges, err := rt.relations.ListRelations(r.Context(), actorFrom(r), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"relations": edges})
	case http.MethodPut:
		var req struct {
			ToDocumentID string `json:"to_document_id"`
			Kind         string `json:"kind"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		err := rt.relations.Link(r.Context(), actorFrom(r), domain.Relationship{
			FromDocumentID: id,
			ToDocumentID:   req.ToDocumentID,
			Kind:           domain.RelationKind(req.Kind),
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "linked"})
	case http.MethodDelete:
		var req struct {
			ToDocumentID string `json:"to_document_id"`
			Kind         string `json:"kind"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		err := rt.relations.Unlink(r.Context(), actorFrom(r), id, req.ToDocumentID, domain.RelationKind(req.Kind))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := r.URL.Query()
	q := domain.SearchQuery{
		Text:         query.Get("q"),
		Category:     query.Get("category"),
		DocumentType: query.Get("document_type"),
	}
	for _, raw := range strings.Split(query.Get("access_level"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		level := domain.AccessLevel(raw)
		if !level.Valid() {
			writeError(w, http.StatusBadRequest, "unknown access level "+strconv.Quote(raw))
			return
		}
		q.AccessLevels = append(q.AccessLevels, level)
	}
	if raw := query.Get("created_after"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "created_after must be RFC3339")
			return
		}
		q.CreatedAfter = parsed
	}
	if raw := query.Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
			return
		}
		q.Page = parsed
	}
	if raw := query.Get("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "page_size must be a positive integer")
			return
		}
		q.PageSize = parsed
	}

	result, err := rt.searcher.Search(r.Context(), actorFrom(r), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rt.options.Metrics != nil {
		rt.options.Metrics.RecordSearchResults(rt.options.Service, len(result.Hits))
	}
	writeJSON(w, http.StatusOK, result)
}

func actorFrom(r *http.Request) string {
	actor := strings.TrimSpace(r.Header.Get(actorHeader))
	if actor == "" {
		return "anonymous"
	}
	return actor
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.TrimSpace(base)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, mapErrorToHTTPStatus(err), err.Error())
}
