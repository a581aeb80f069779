// Package knowledge mirrors guideline documents and care interventions into
// Neo4j so they can be browsed as a graph.
package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Document is an ingested guideline file for one source (AHA or GES).
type Document struct {
	ID       string
	Source   string
	Path     string
	Title    string
	SHA      string
	Passages []Passage
}

type Passage struct {
	ID    string
	Index int
	Text  string
	Topic string
}

// Intervention is an action recorded for a patient, usually an alert
// notification.
type Intervention struct {
	ID          string
	PatientID   string
	PatientName string
	Timestamp   time.Time
	Action      string
	Alerts      string
}

func SyncDocument(ctx context.Context, driver neo4j.DriverWithContext, doc Document) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := map[string]any{
		"id":     doc.ID,
		"source": doc.Source,
		"path":   doc.Path,
		"title":  doc.Title,
		"sha":    doc.SHA,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (g:GuidelineSource {name: $source})
			MERGE (d:Document {id: $id})
			SET d.path = $path,
			    d.title = $title,
			    d.sha256 = $sha,
			    d.updated_at = datetime()
			MERGE (g)-[:PUBLISHES]->(d)
		`, params); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {id: $id})-[:HAS_PASSAGE]->(p:Passage)
			DETACH DELETE p
		`, map[string]any{"id": doc.ID}); err != nil {
			return nil, fmt.Errorf("clear existing passages: %w", err)
		}

		for _, passage := range doc.Passages {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $doc_id})
				MERGE (p:Passage {id: $passage_id})
				SET p.index = $passage_index,
				    p.text = $passage_text
				MERGE (d)-[:HAS_PASSAGE {order: $passage_index}]->(p)
			`, map[string]any{
				"doc_id":        doc.ID,
				"passage_id":    passage.ID,
				"passage_index": passage.Index,
				"passage_text":  passage.Text,
			}); err != nil {
				return nil, fmt.Errorf("upsert passage node: %w", err)
			}

			if passage.Topic == "" {
				continue
			}
			if _, err := tx.Run(ctx, `
				MATCH (p:Passage {id: $passage_id})
				MERGE (t:Topic {name: $topic})
				MERGE (p)-[:ABOUT]->(t)
			`, map[string]any{
				"passage_id": passage.ID,
				"topic":      passage.Topic,
			}); err != nil {
				return nil, fmt.Errorf("link passage topic: %w", err)
			}
		}

		return nil, nil
	})

	if err == nil {
		if _, cleanupErr := session.Run(ctx, `
			MATCH (t:Topic)
			WHERE NOT (t)<-[:ABOUT]-(:Passage)
			DELETE t
		`, nil); cleanupErr != nil {
			err = fmt.Errorf("cleanup orphan topics: %w", cleanupErr)
		}
	}

	return err
}

func RecordIntervention(ctx context.Context, driver neo4j.DriverWithContext, in Intervention) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}
	if in.PatientID == "" || in.ID == "" {
		return fmt.Errorf("intervention requires patient id and id")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (p:Patient {id: $patient_id})
			SET p.name = $patient_name
			MERGE (i:Intervention {id: $id})
			SET i.timestamp = datetime($timestamp),
			    i.action = $action,
			    i.alerts = $alerts
			MERGE (p)-[:RECEIVED]->(i)
		`, map[string]any{
			"patient_id":   in.PatientID,
			"patient_name": in.PatientName,
			"id":           in.ID,
			"timestamp":    in.Timestamp.UTC().Format(time.RFC3339),
			"action":       in.Action,
			"alerts":       in.Alerts,
		}); err != nil {
			return nil, fmt.Errorf("upsert intervention: %w", err)
		}
		return nil, nil
	})
	return err
}

// Clear removes the guideline graph written by SyncDocument. Patients and
// their interventions are kept.
func Clear(ctx context.Context, driver neo4j.DriverWithContext) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MATCH (n)
			WHERE n:GuidelineSource OR n:Document OR n:Passage OR n:Topic
			DETACH DELETE n
		`, nil); err != nil {
			return nil, fmt.Errorf("delete guideline nodes: %w", err)
		}
		return nil, nil
	})
	return err
}

// Graph binds the package functions to one driver.
type Graph struct {
	driver neo4j.DriverWithContext
}

func NewGraph(driver neo4j.DriverWithContext) *Graph {
	return &Graph{driver: driver}
}

func (g *Graph) SyncDocument(ctx context.Context, doc Document) error {
	return SyncDocument(ctx, g.driver, doc)
}

func (g *Graph) RecordIntervention(ctx context.Context, in Intervention) error {
	return RecordIntervention(ctx, g.driver, in)
}
