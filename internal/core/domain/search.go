package domain

import "time"

// IndexEntry is the projection of one committed version into the
// search index. Re-indexing the same (document, version) replaces the
// previous entry.
type IndexEntry struct {
	DocumentID   string      `json:"document_id"`
	Version      int         `json:"version"`
	Title        string      `json:"title"`
	Text         string      `json:"text"`
	Category     string      `json:"category"`
	Subcategory  string      `json:"subcategory"`
	DocumentType string      `json:"document_type"`
	AccessLevel  AccessLevel `json:"access_level"`
	CreatedAt    time.Time   `json:"created_at"`
}

// SearchQuery does free-text matching over title+text; the remaining
// fields are exact-match or range filters.
type SearchQuery struct {
	Text         string
	Category     string
	DocumentType string
	AccessLevels []AccessLevel
	CreatedAfter time.Time
	Page         int
	PageSize     int
}

type SearchHit struct {
	DocumentID string  `json:"document_id"`
	Version    int     `json:"version"`
	Title      string  `json:"title"`
	Category   string  `json:"category,omitempty"`
	Score      float64 `json:"score"`
}

type SearchResult struct {
	Total int         `json:"total"`
	Hits  []SearchHit `json:"hits"`
}
