package graph

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"papergraph/backend/internal/records"
)

// TestNeo4jStore requires a running Neo4j instance
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables
func TestNeo4jStore_IngestRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not available: %v", err)
	}
	defer driver.Close(ctx)

	store := NewNeo4jStoreFromDriver(driver, 30*time.Second)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	suffix := time.Now().Format("20060102150405")
	paperID := "test-paper-" + suffix
	theory := "Test Theory " + suffix
	phenomenon := "Test Phenomenon " + suffix

	// Clean up
	defer func() {
		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, _ = session.Run(ctx, "MATCH (p:Paper {paper_id: $id}) DETACH DELETE p", map[string]interface{}{"id": paperID})
		_, _ = session.Run(ctx, "MATCH (n) WHERE n.name IN [$t, $p] DETACH DELETE n", map[string]interface{}{"t": theory, "p": phenomenon})
	}()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	mustNot := func(err error, what string) {
		if err != nil {
			_ = tx.Rollback(ctx)
			t.Fatalf("%s failed: %v", what, err)
		}
	}
	mustNot(tx.MergePaper(ctx, PaperNode{PaperID: paperID, Title: "Integration", ExtractionStatus: StatusComplete, ProcessedAt: time.Now()}), "MergePaper")
	mustNot(tx.MergeEntity(ctx, EntityNode{Label: records.TypeTheory, Name: theory}), "MergeEntity theory")
	mustNot(tx.MergeEntity(ctx, EntityNode{Label: records.TypePhenomenon, Name: phenomenon}), "MergeEntity phenomenon")
	mustNot(tx.MergeUsage(ctx, UsageEdge{PaperID: paperID, Label: records.TypeTheory, Name: theory, Role: "primary", Confidence: 0.9, ProcessedAt: time.Now()}), "MergeUsage")
	mustNot(tx.MergeExplains(ctx, ExplainsEdge{Theory: theory, Phenomenon: phenomenon, PaperID: paperID, Strength: records.Breakdown{Total: 0.7}}), "MergeExplains")

	_, err = tx.ApplyAggregate(ctx, theory, phenomenon, paperID, 0.7)
	mustNot(err, "ApplyAggregate")

	edges, err := tx.UsageEdges(ctx, paperID, records.TypeTheory, theory)
	mustNot(err, "UsageEdges")
	if len(edges) != 1 || edges[0].Role != "primary" {
		_ = tx.Rollback(ctx)
		t.Fatalf("Expected one primary usage edge, got %+v", edges)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	tx, err = store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Rollback(ctx)
	got, err := tx.GetAggregate(ctx, theory, phenomenon)
	if err != nil {
		t.Fatalf("GetAggregate failed: %v", err)
	}
	if got == nil || got.Count != 1 || got.Max != 0.7 {
		t.Errorf("Unexpected aggregate: %+v", got)
	}
}

// Two transactions folding different papers into the same pair must both
// land, even when the second starts before the first commits.
func TestNeo4jStore_ConcurrentAggregateFolds(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not available: %v", err)
	}
	defer driver.Close(ctx)

	store := NewNeo4jStoreFromDriver(driver, 30*time.Second)
	suffix := time.Now().Format("20060102150405.000")
	theory := "Concurrent Theory " + suffix
	phenomenon := "Concurrent Phenomenon " + suffix

	defer func() {
		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, _ = session.Run(ctx, "MATCH (n) WHERE n.name IN [$t, $p] DETACH DELETE n", map[string]interface{}{"t": theory, "p": phenomenon})
	}()

	setup, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := setup.MergeEntity(ctx, EntityNode{Label: records.TypeTheory, Name: theory}); err != nil {
		t.Fatalf("MergeEntity theory failed: %v", err)
	}
	if err := setup.MergeEntity(ctx, EntityNode{Label: records.TypePhenomenon, Name: phenomenon}); err != nil {
		t.Fatalf("MergeEntity phenomenon failed: %v", err)
	}
	if err := setup.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	first, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := first.ApplyAggregate(ctx, theory, phenomenon, "paper-a", 0.6); err != nil {
		_ = first.Rollback(ctx)
		t.Fatalf("ApplyAggregate paper-a failed: %v", err)
	}

	var wg sync.WaitGroup
	var secondErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		second, err := store.Begin(ctx)
		if err != nil {
			secondErr = err
			return
		}
		if _, err := second.ApplyAggregate(ctx, theory, phenomenon, "paper-b", 0.8); err != nil {
			_ = second.Rollback(ctx)
			secondErr = err
			return
		}
		secondErr = second.Commit(ctx)
	}()

	// let the second transaction reach the aggregate before the first commits
	time.Sleep(200 * time.Millisecond)
	if err := first.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	wg.Wait()
	if secondErr != nil {
		t.Fatalf("second transaction failed: %v", secondErr)
	}

	check, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer check.Rollback(ctx)
	got, err := check.GetAggregate(ctx, theory, phenomenon)
	if err != nil {
		t.Fatalf("GetAggregate failed: %v", err)
	}
	if got == nil || got.Count != 2 || len(got.PaperIDs) != 2 {
		t.Fatalf("Expected both papers in the aggregate, got %+v", got)
	}
	if got.Min != 0.6 || got.Max != 0.8 {
		t.Errorf("Unexpected min/max: %+v", got)
	}
}

func TestNeo4jStore_MissingEndpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not available: %v", err)
	}
	defer driver.Close(ctx)

	store := NewNeo4jStoreFromDriver(driver, 30*time.Second)
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Rollback(ctx)

	err = tx.MergeExplains(ctx, ExplainsEdge{Theory: "no-such-theory", Phenomenon: "no-such-phenomenon", PaperID: "x"})
	if err == nil {
		t.Error("Expected error for missing endpoints")
	}
}

func createTestDriver() (neo4j.DriverWithContext, error) {
	uri := envOr("NEO4J_URI", "bolt://localhost:7687")
	user := envOr("NEO4J_USER", "neo4j")
	password := envOr("NEO4J_PASSWORD", "password")

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}

	// Verify connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}

	return driver, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
