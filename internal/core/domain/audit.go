package domain

import "time"

type AuditAction string

const (
	AuditDocumentCreated   AuditAction = "document_created"
	AuditVersionCommitted  AuditAction = "version_committed"
	AuditVersionRolledBack AuditAction = "version_rolled_back"
	AuditDocumentViewed    AuditAction = "document_viewed"
	AuditRelationLinked    AuditAction = "relation_linked"
	AuditRelationUnlinked  AuditAction = "relation_unlinked"
)

type AuditEvent struct {
	Action     AuditAction `json:"action"`
	DocumentID string      `json:"document_id"`
	Actor      string      `json:"actor"`
	Detail     string      `json:"detail,omitempty"`
	At         time.Time   `json:"at"`
}
