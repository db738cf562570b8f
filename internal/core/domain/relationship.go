package domain

import "time"

type RelationKind string

const (
	RelationSupersedes   RelationKind = "supersedes"
	RelationAttachmentOf RelationKind = "attachment-of"
	RelationRelatedTo    RelationKind = "related-to"
)

func (k RelationKind) Valid() bool {
	switch k {
	case RelationSupersedes, RelationAttachmentOf, RelationRelatedTo:
		return true
	}
	return false
}

// Relationship is a directed edge between two documents. Edges form a
// general graph: cycles are permitted and no document owns the edge.
type Relationship struct {
	FromDocumentID string       `json:"from_document_id"`
	ToDocumentID   string       `json:"to_document_id"`
	Kind           RelationKind `json:"kind"`
	CreatedBy      string       `json:"created_by,omitempty"`
	CreatedAt      time.Time    `json:"created_at,omitempty"`
}
