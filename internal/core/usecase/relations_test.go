package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/archivist/internal/core/domain"
)

func relationsFixture() (*repoFake, *relationsFake, *RelationsUseCase, *auditFake) {
	repo := newRepoFake()
	repo.addDocument(&domain.Document{ID: "doc-a", AccessLevel: domain.AccessInternal, CreatedBy: "alice"})
	repo.addDocument(&domain.Document{ID: "doc-b", AccessLevel: domain.AccessInternal, CreatedBy: "alice"})
	store := &relationsFake{}
	audit := &auditFake{}
	uc := NewRelationsUseCase(repo, store, nil, audit)
	return repo, store, uc, audit
}

func TestLinkRecordsEdge(t *testing.T) {
	_, store, uc, audit := relationsFixture()

	err := uc.Link(context.Background(), "alice", domain.Relationship{
		FromDocumentID: "doc-a",
		ToDocumentID:   "doc-b",
		Kind:           domain.RelationSupersedes,
	})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if len(store.linked) != 1 {
		t.Fatalf("expected one stored edge, got %d", len(store.linked))
	}
	edge := store.linked[0]
	if edge.CreatedBy != "alice" || edge.CreatedAt.IsZero() {
		t.Fatalf("expected stamped edge, got %+v", edge)
	}
	if len(audit.events) != 1 || audit.events[0].Action != domain.AuditRelationLinked {
		t.Fatalf("expected relation_linked audit event, got %+v", audit.events)
	}
}

func TestLinkRejectsUnknownKind(t *testing.T) {
	_, _, uc, _ := relationsFixture()
	err := uc.Link(context.Background(), "alice", domain.Relationship{
		FromDocumentID: "doc-a",
		ToDocumentID:   "doc-b",
		Kind:           "duplicate-of",
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLinkRejectsSelfRelation(t *testing.T) {
	_, _, uc, _ := relationsFixture()
	err := uc.Link(context.Background(), "alice", domain.Relationship{
		FromDocumentID: "doc-a",
		ToDocumentID:   "doc-a",
		Kind:           domain.RelationRelatedTo,
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLinkRequiresBothEndpoints(t *testing.T) {
	_, _, uc, _ := relationsFixture()
	err := uc.Link(context.Background(), "alice", domain.Relationship{
		FromDocumentID: "doc-a",
		ToDocumentID:   "missing",
		Kind:           domain.RelationAttachmentOf,
	})
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing endpoint, got %v", err)
	}
}

func TestLinkDenied(t *testing.T) {
	repo := newRepoFake()
	repo.addDocument(&domain.Document{ID: "doc-a", AccessLevel: domain.AccessRestricted, CreatedBy: "alice"})
	repo.addDocument(&domain.Document{ID: "doc-b", AccessLevel: domain.AccessInternal, CreatedBy: "alice"})
	uc := NewRelationsUseCase(repo, &relationsFake{}, &permFake{denyActions: map[string]bool{"link": true}}, nil)

	err := uc.Link(context.Background(), "mallory", domain.Relationship{
		FromDocumentID: "doc-a",
		ToDocumentID:   "doc-b",
		Kind:           domain.RelationRelatedTo,
	})
	if !domain.IsKind(err, domain.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestUnlinkRemovesEdge(t *testing.T) {
	_, store, uc, audit := relationsFixture()

	if err := uc.Unlink(context.Background(), "alice", "doc-a", "doc-b", domain.RelationSupersedes); err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if len(store.unlinked) != 1 || store.unlinked[0].Kind != domain.RelationSupersedes {
		t.Fatalf("expected one unlinked edge, got %+v", store.unlinked)
	}
	if len(audit.events) != 1 || audit.events[0].Action != domain.AuditRelationUnlinked {
		t.Fatalf("expected relation_unlinked audit event, got %+v", audit.events)
	}
}

func TestListRelations(t *testing.T) {
	_, store, uc, _ := relationsFixture()
	store.listed = []domain.Relationship{
		{FromDocumentID: "doc-a", ToDocumentID: "doc-b", Kind: domain.RelationRelatedTo},
	}

	edges, err := uc.ListRelations(context.Background(), "alice", "doc-a")
	if err != nil {
		t.Fatalf("ListRelations() error = %v", err)
	}
	if len(edges) != 1 || edges[0].ToDocumentID != "doc-b" {
		t.Fatalf("unexpected edges %+v", edges)
	}
}
