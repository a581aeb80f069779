package interpret

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/nexo/guidelines"
)

// GraphStore widens a vector search with passages that share a topic with
// the ones already retrieved.
type GraphStore interface {
	RelatedPassages(ctx context.Context, source guidelines.Source, passageIDs []string, limit int) ([]Passage, error)
}

type Neo4jGraphStore struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jGraphStore(driver neo4j.DriverWithContext) *Neo4jGraphStore {
	return &Neo4jGraphStore{driver: driver}
}

func (s *Neo4jGraphStore) RelatedPassages(ctx context.Context, source guidelines.Source, passageIDs []string, limit int) ([]Passage, error) {
	if s.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(passageIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (p:Passage)-[:ABOUT]->(t:Topic)<-[:ABOUT]-(other:Passage)<-[:HAS_PASSAGE]-(d:Document)<-[:PUBLISHES]-(:GuidelineSource {name: $source})
		WHERE p.id IN $ids
		  AND NOT other.id IN $ids
		  AND t.name <> $general
		WITH other, d, t, count(DISTINCT p) AS shared
		ORDER BY shared DESC, other.index
		LIMIT $limit
		RETURN other.id AS id,
		       d.id AS documentId,
		       d.title AS title,
		       t.name AS topic,
		       other.text AS content
	`, map[string]any{
		"source":  source.String(),
		"ids":     passageIDs,
		"general": string(guidelines.TopicGeneral),
		"limit":   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("run related passages query: %w", err)
	}

	related := make([]Passage, 0, limit)
	for result.Next(ctx) {
		record := result.Record()
		related = append(related, Passage{
			ID:         recordString(record, "id"),
			DocumentID: recordString(record, "documentId"),
			Title:      recordString(record, "title"),
			Topic:      recordString(record, "topic"),
			Content:    recordString(record, "content"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("related passages result error: %w", err)
	}

	return related, nil
}

func recordString(record *neo4j.Record, key string) string {
	value, _ := record.Get(key)
	s, _ := value.(string)
	return s
}

var _ GraphStore = (*Neo4jGraphStore)(nil)
