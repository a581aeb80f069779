package knowledge_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/nexo/config"
	"github.com/fabfab/nexo/database"
	"github.com/fabfab/nexo/knowledge"
)

func TestNilDriver(t *testing.T) {
	ctx := context.Background()
	if err := knowledge.SyncDocument(ctx, nil, knowledge.Document{}); err == nil {
		t.Fatal("expected error when driver is nil")
	}
	if err := knowledge.RecordIntervention(ctx, nil, knowledge.Intervention{ID: "i", PatientID: "p"}); err == nil {
		t.Fatal("expected error when driver is nil")
	}
	if err := knowledge.Clear(ctx, nil); err == nil {
		t.Fatal("expected error when driver is nil")
	}
	if err := knowledge.NewGraph(nil).SyncDocument(ctx, knowledge.Document{}); err == nil {
		t.Fatal("expected error from graph without driver")
	}
}

func TestGraphSyncAndRecord(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database integration tests")
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		t.Fatalf("neo4j connection: %v", err)
	}
	defer driver.Close(ctx)

	docID := uuid.NewString()
	patientID := "it-" + uuid.NewString()
	t.Cleanup(func() {
		session := driver.NewSession(context.Background(), neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(context.Background())
		_, _ = session.Run(context.Background(), "MATCH (d:Document {id: $id}) OPTIONAL MATCH (d)-[:HAS_PASSAGE]->(p) DETACH DELETE d, p", map[string]any{"id": docID})
		_, _ = session.Run(context.Background(), "MATCH (p:Patient {id: $id}) OPTIONAL MATCH (p)-[:RECEIVED]->(i) DETACH DELETE p, i", map[string]any{"id": patientID})
	})

	graph := knowledge.NewGraph(driver)
	if err := graph.SyncDocument(ctx, knowledge.Document{
		ID:     docID,
		Source: "AHA",
		Path:   "integration/aha.md",
		Title:  "AHA",
		SHA:    "sha",
		Passages: []knowledge.Passage{
			{ID: uuid.NewString(), Index: 0, Text: "Presión arterial <130/80", Topic: "blood_pressure"},
			{ID: uuid.NewString(), Index: 1, Text: "Dieta mediterránea", Topic: "diet"},
		},
	}); err != nil {
		t.Fatalf("sync document: %v", err)
	}

	if err := graph.RecordIntervention(ctx, knowledge.Intervention{
		ID:        uuid.NewString(),
		PatientID: patientID,
		Timestamp: time.Now(),
		Action:    "AI-generated WhatsApp notification sent",
		Alerts:    "Presión sistólica fuera de rango",
	}); err != nil {
		t.Fatalf("record intervention: %v", err)
	}

	result, err := neo4j.ExecuteQuery(ctx, driver, `
		MATCH (:Document {id: $id})-[:HAS_PASSAGE]->(p:Passage)-[:ABOUT]->(t:Topic)
		RETURN count(p) AS passages
	`, map[string]any{"id": docID}, neo4j.EagerResultTransformer)
	if err != nil {
		t.Fatalf("query passages: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected one record, got %d", len(result.Records))
	}
	count, _ := result.Records[0].Get("passages")
	if count.(int64) != 2 {
		t.Fatalf("expected 2 passages, got %v", count)
	}
}

func TestClearKeepsInterventions(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database integration tests")
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		t.Fatalf("neo4j connection: %v", err)
	}
	defer driver.Close(ctx)

	docID := uuid.NewString()
	patientID := "it-" + uuid.NewString()
	interventionID := uuid.NewString()
	t.Cleanup(func() {
		session := driver.NewSession(context.Background(), neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(context.Background())
		_, _ = session.Run(context.Background(), "MATCH (p:Patient {id: $id}) OPTIONAL MATCH (p)-[:RECEIVED]->(i) DETACH DELETE p, i", map[string]any{"id": patientID})
	})

	if err := knowledge.SyncDocument(ctx, driver, knowledge.Document{
		ID:       docID,
		Source:   "GES",
		Path:     "integration/ges.md",
		Title:    "GES",
		SHA:      "sha",
		Passages: []knowledge.Passage{{ID: uuid.NewString(), Index: 0, Text: "Dieta baja en sodio", Topic: "diet"}},
	}); err != nil {
		t.Fatalf("sync document: %v", err)
	}
	if err := knowledge.RecordIntervention(ctx, driver, knowledge.Intervention{
		ID:        interventionID,
		PatientID: patientID,
		Timestamp: time.Now(),
		Action:    "AI-generated WhatsApp notification sent",
		Alerts:    "Frecuencia cardíaca alta",
	}); err != nil {
		t.Fatalf("record intervention: %v", err)
	}

	if err := knowledge.Clear(ctx, driver); err != nil {
		t.Fatalf("clear: %v", err)
	}

	result, err := neo4j.ExecuteQuery(ctx, driver, `
		OPTIONAL MATCH (d:Document {id: $doc})
		OPTIONAL MATCH (:Patient {id: $patient})-[:RECEIVED]->(i:Intervention {id: $intervention})
		RETURN count(d) AS documents, count(i) AS interventions
	`, map[string]any{"doc": docID, "patient": patientID, "intervention": interventionID}, neo4j.EagerResultTransformer)
	if err != nil {
		t.Fatalf("query after clear: %v", err)
	}
	documents, _ := result.Records[0].Get("documents")
	interventions, _ := result.Records[0].Get("interventions")
	if documents.(int64) != 0 {
		t.Fatalf("expected guideline document removed, got %v", documents)
	}
	if interventions.(int64) != 1 {
		t.Fatalf("expected intervention to survive clear, got %v", interventions)
	}
}
