// Package pgindex projects committed versions into a postgres
// full-text index.
package pgindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/archivist/internal/core/domain"
)

type Index struct {
	db *sql.DB
}

func New(db *sql.DB) *Index {
	return &Index{db: db}
}

func (i *Index) EnsureSchema(ctx context.Context) error {
	const query = `
CREATE TABLE IF NOT EXISTS search_entries (
	document_id TEXT NOT NULL,
	version INT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	subcategory TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL DEFAULT '',
	access_level TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	tsv tsvector GENERATED ALWAYS AS (
		to_tsvector('simple', coalesce(title, '') || ' ' || coalesce(body, ''))
	) STORED,
	PRIMARY KEY (document_id, version)
);

CREATE INDEX IF NOT EXISTS idx_search_entries_tsv ON search_entries USING GIN (tsv);
CREATE INDEX IF NOT EXISTS idx_search_entries_category ON search_entries(category);
`
	if _, err := i.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure search schema: %w", err)
	}
	return nil
}

// Index replaces any previous entry for the same (document, version).
func (i *Index) Index(ctx context.Context, entry domain.IndexEntry) error {
	_, err := i.db.ExecContext(ctx, `
INSERT INTO search_entries (
	document_id, version, title, body, category, subcategory, document_type, access_level, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (document_id, version) DO UPDATE SET
	title = EXCLUDED.title,
	body = EXCLUDED.body,
	category = EXCLUDED.category,
	subcategory = EXCLUDED.subcategory,
	document_type = EXCLUDED.document_type,
	access_level = EXCLUDED.access_level,
	created_at = EXCLUDED.created_at
`,
		entry.DocumentID, entry.Version, entry.Title, entry.Text, entry.Category,
		entry.Subcategory, entry.DocumentType, string(entry.AccessLevel), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert search entry: %w", err)
	}
	return nil
}

func (i *Index) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := i.db.ExecContext(ctx, `DELETE FROM search_entries WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete search entries: %w", err)
	}
	return nil
}

// Search ranks each document's latest indexed version against the
// free-text query; structured filters narrow the candidate set.
func (i *Index) Search(ctx context.Context, q domain.SearchQuery) (domain.SearchResult, error) {
	var conditions []string
	var args []any

	text := strings.TrimSpace(q.Text)
	args = append(args, text)
	conditions = append(conditions, fmt.Sprintf("($%d = '' OR tsv @@ plainto_tsquery('simple', $%d))", 1, 1))

	if q.Category != "" {
		args = append(args, q.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if q.DocumentType != "" {
		args = append(args, q.DocumentType)
		conditions = append(conditions, fmt.Sprintf("document_type = $%d", len(args)))
	}
	if len(q.AccessLevels) > 0 {
		var placeholders []string
		for _, level := range q.AccessLevels {
			args = append(args, string(level))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, fmt.Sprintf("access_level IN (%s)", strings.Join(placeholders, ",")))
	}
	if !q.CreatedAfter.IsZero() {
		args = append(args, q.CreatedAfter)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	args = append(args, q.PageSize)
	limitArg := len(args)
	args = append(args, q.Page*q.PageSize)
	offsetArg := len(args)

	query := fmt.Sprintf(`
SELECT document_id, version, title, category, rank, COUNT(*) OVER () AS total
FROM (
	SELECT DISTINCT ON (document_id)
		document_id, version, title, category, created_at,
		CASE WHEN $1 = '' THEN 0
			ELSE ts_rank(tsv, plainto_tsquery('simple', $1))
		END AS rank
	FROM search_entries
	WHERE %s
	ORDER BY document_id, version DESC
) latest
ORDER BY rank DESC, created_at DESC
LIMIT $%d OFFSET $%d
`, strings.Join(conditions, " AND "), limitArg, offsetArg)

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("query search entries: %w", err)
	}
	defer rows.Close()

	result := domain.SearchResult{Hits: []domain.SearchHit{}}
	for rows.Next() {
		var hit domain.SearchHit
		if err := rows.Scan(&hit.DocumentID, &hit.Version, &hit.Title, &hit.Category, &hit.Score, &result.Total); err != nil {
			return domain.SearchResult{}, fmt.Errorf("scan search hit: %w", err)
		}
		result.Hits = append(result.Hits, hit)
	}
	if err := rows.Err(); err != nil {
		return domain.SearchResult{}, fmt.Errorf("iterate search hits: %w", err)
	}
	return result, nil
}
