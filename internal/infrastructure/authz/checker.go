// Package authz enforces document access levels. Internal documents
// are open to every caller, confidential ones require an identified
// actor, restricted ones admit only the document's creator.
package authz

import (
	"context"

	"github.com/kirillkom/archivist/internal/core/domain"
)

const anonymousActor = "anonymous"

type LevelChecker struct{}

func NewLevelChecker() *LevelChecker {
	return &LevelChecker{}
}

func (c *LevelChecker) Can(_ context.Context, actor, action string, doc *domain.Document) bool {
	if doc == nil {
		return false
	}
	switch doc.AccessLevel {
	case domain.AccessInternal:
		return true
	case domain.AccessConfidential:
		return actor != "" && actor != anonymousActor
	case domain.AccessRestricted:
		if action == "read" {
			return actor != "" && actor != anonymousActor
		}
		return actor == doc.CreatedBy
	default:
		return false
	}
}
