// Package neo4jgraph stores document relationship edges in neo4j.
// Edges form a general directed graph; cycles are permitted.
package neo4jgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/archivist/internal/core/domain"
)

type Store struct {
	driver neo4j.DriverWithContext
}

func New(ctx context.Context, uri, user, password string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Store{driver: driver}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) Link(ctx context.Context, edge domain.Relationship) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
MERGE (from:Document {id: $from})
MERGE (to:Document {id: $to})
MERGE (from)-[r:RELATES {kind: $kind}]->(to)
ON CREATE SET r.created_by = $createdBy, r.created_at = $createdAt
`, map[string]any{
			"from":      edge.FromDocumentID,
			"to":        edge.ToDocumentID,
			"kind":      string(edge.Kind),
			"createdBy": edge.CreatedBy,
			"createdAt": edge.CreatedAt.Format(time.RFC3339Nano),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("merge relation: %w", err)
	}
	return nil
}

func (s *Store) Unlink(ctx context.Context, fromID, toID string, kind domain.RelationKind) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
MATCH (from:Document {id: $from})-[r:RELATES {kind: $kind}]->(to:Document {id: $to})
DELETE r
`, map[string]any{
			"from": fromID,
			"to":   toID,
			"kind": string(kind),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	return nil
}

func (s *Store) ListFrom(ctx context.Context, documentID string) ([]domain.Relationship, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
MATCH (from:Document {id: $from})-[r:RELATES]->(to:Document)
RETURN to.id AS to_id, r.kind AS kind, r.created_by AS created_by, r.created_at AS created_at
ORDER BY to_id, kind
`, map[string]any{"from": documentID})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}

	rows, _ := records.([]*neo4j.Record)
	out := make([]domain.Relationship, 0, len(rows))
	for _, record := range rows {
		edge := domain.Relationship{FromDocumentID: documentID}
		if toID, ok := record.Get("to_id"); ok {
			edge.ToDocumentID, _ = toID.(string)
		}
		if kind, ok := record.Get("kind"); ok {
			raw, _ := kind.(string)
			edge.Kind = domain.RelationKind(raw)
		}
		if createdBy, ok := record.Get("created_by"); ok {
			edge.CreatedBy, _ = createdBy.(string)
		}
		if createdAt, ok := record.Get("created_at"); ok {
			if raw, ok := createdAt.(string); ok {
				if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
					edge.CreatedAt = at
				}
			}
		}
		out = append(out, edge)
	}
	return out, nil
}
