// Package memindex is an in-memory search index for tests and
// single-process development deployments.
package memindex

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/archivist/internal/core/domain"
)

type Index struct {
	mu      sync.RWMutex
	entries map[string]map[int]domain.IndexEntry
}

func New() *Index {
	return &Index{entries: make(map[string]map[int]domain.IndexEntry)}
}

func (i *Index) Index(_ context.Context, entry domain.IndexEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	versions, ok := i.entries[entry.DocumentID]
	if !ok {
		versions = make(map[int]domain.IndexEntry)
		i.entries[entry.DocumentID] = versions
	}
	versions[entry.Version] = entry
	return nil
}

func (i *Index) DeleteDocument(_ context.Context, documentID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.entries, documentID)
	return nil
}

func (i *Index) Search(_ context.Context, q domain.SearchQuery) (domain.SearchResult, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(strings.TrimSpace(q.Text)))

	type scoredEntry struct {
		hit     domain.SearchHit
		created int64
	}
	var rows []scoredEntry
	for _, versions := range i.entries {
		entry, ok := latest(versions)
		if !ok || !matchesFilters(entry, q) {
			continue
		}
		score, ok := scoreEntry(entry, terms)
		if !ok {
			continue
		}
		rows = append(rows, scoredEntry{
			hit: domain.SearchHit{
				DocumentID: entry.DocumentID,
				Version:    entry.Version,
				Title:      entry.Title,
				Category:   entry.Category,
				Score:      score,
			},
			created: entry.CreatedAt.UnixNano(),
		})
	}

	sort.SliceStable(rows, func(a, b int) bool {
		if rows[a].hit.Score != rows[b].hit.Score {
			return rows[a].hit.Score > rows[b].hit.Score
		}
		if rows[a].created != rows[b].created {
			return rows[a].created > rows[b].created
		}
		return rows[a].hit.DocumentID < rows[b].hit.DocumentID
	})

	hits := make([]domain.SearchHit, len(rows))
	for n, row := range rows {
		hits[n] = row.hit
	}

	total := len(hits)
	start := q.Page * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if q.PageSize <= 0 || end > total {
		end = total
	}
	return domain.SearchResult{Total: total, Hits: hits[start:end]}, nil
}

func latest(versions map[int]domain.IndexEntry) (domain.IndexEntry, bool) {
	best := -1
	for number := range versions {
		if number > best {
			best = number
		}
	}
	if best < 0 {
		return domain.IndexEntry{}, false
	}
	return versions[best], true
}

func matchesFilters(entry domain.IndexEntry, q domain.SearchQuery) bool {
	if q.Category != "" && entry.Category != q.Category {
		return false
	}
	if q.DocumentType != "" && entry.DocumentType != q.DocumentType {
		return false
	}
	if len(q.AccessLevels) > 0 {
		found := false
		for _, level := range q.AccessLevels {
			if entry.AccessLevel == level {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !q.CreatedAfter.IsZero() && entry.CreatedAt.Before(q.CreatedAfter) {
		return false
	}
	return true
}

// scoreEntry counts term occurrences over title+text; an empty query
// matches everything with score zero.
func scoreEntry(entry domain.IndexEntry, terms []string) (float64, bool) {
	if len(terms) == 0 {
		return 0, true
	}
	haystack := strings.ToLower(entry.Title + " " + entry.Text)
	score := 0.0
	for _, term := range terms {
		count := strings.Count(haystack, term)
		if count == 0 {
			return 0, false
		}
		score += float64(count)
	}
	return score, true
}
