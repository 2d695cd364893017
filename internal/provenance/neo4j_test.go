package provenance

import (
	"context"
	"testing"

	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	"go.uber.org/zap"
)

// startNeo4j starts a Neo4j testcontainer and returns a connected Store.
func startNeo4j(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("start neo4j: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	uri, err := container.BoltUrl(ctx)
	if err != nil {
		t.Fatalf("neo4j bolt url: %v", err)
	}

	store, err := NewStore(uri, "", "", zap.NewNop())
	if err != nil {
		t.Fatalf("connect neo4j: %v", err)
	}
	t.Cleanup(func() { store.Close(ctx) })
	return store
}

func TestNeo4jLedgerRoundTrip(t *testing.T) {
	store := startNeo4j(t)
	ledger := store.Ledger("alice")
	ctx := context.Background()

	req, err := ledger.InsertNode(ctx, KindRequest, "Summarize photosynthesis", map[string]interface{}{"model": "test"})
	if err != nil {
		t.Fatalf("insert request: %v", err)
	}
	resp, err := ledger.InsertNode(ctx, KindResponse, "It converts light into energy.", nil)
	if err != nil {
		t.Fatalf("insert response: %v", err)
	}
	if _, err := ledger.InsertEdge(ctx, req.ID, resp.ID, LabelGeneratedBy); err != nil {
		t.Fatalf("insert edge: %v", err)
	}

	snap, err := ledger.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(snap.Nodes))
	}
	if snap.Nodes[0].ID != req.ID || snap.Nodes[1].ID != resp.ID {
		t.Error("snapshot must preserve insertion order")
	}
	if snap.Nodes[0].Attrs["model"] != "test" {
		t.Errorf("attrs not preserved: %v", snap.Nodes[0].Attrs)
	}
	if len(snap.Edges) != 1 || snap.Edges[0].Label != LabelGeneratedBy {
		t.Errorf("unexpected edges: %+v", snap.Edges)
	}
}

func TestNeo4jLedgerScopeIsolation(t *testing.T) {
	store := startNeo4j(t)
	ctx := context.Background()

	alice := store.Ledger("alice")
	bob := store.Ledger("bob")

	if _, err := alice.InsertNode(ctx, "note", "alice's note", nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	snap, err := bob.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Nodes) != 0 {
		t.Errorf("bob must not see alice's nodes, got %d", len(snap.Nodes))
	}
}

func TestNeo4jLedgerEdgeWithoutEndpoints(t *testing.T) {
	store := startNeo4j(t)
	ledger := store.Ledger("alice")
	ctx := context.Background()

	if _, err := ledger.InsertEdge(ctx, "ghost-a", "ghost-b", "CustomLabel"); err != nil {
		t.Fatalf("edge insert must not require endpoints: %v", err)
	}

	snap, err := ledger.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(snap.Edges))
	}
	// The stub endpoints have no content and must not surface as nodes.
	if len(snap.Nodes) != 0 {
		t.Errorf("stub endpoints must not appear in snapshots, got %d nodes", len(snap.Nodes))
	}
}

func TestNeo4jLedgerEditAndClear(t *testing.T) {
	store := startNeo4j(t)
	ledger := store.Ledger("alice")
	ctx := context.Background()

	n, err := ledger.InsertNode(ctx, KindResponse, "original", nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	updated, err := ledger.EditNodeContent(ctx, n.ID, "corrected")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if updated.Content != "corrected" {
		t.Errorf("expected corrected content, got %q", updated.Content)
	}
	if _, err := ledger.EditNodeContent(ctx, "missing-id", "x"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := ledger.InsertEdge(ctx, n.ID, "other", "rel"); err != nil {
		t.Fatalf("insert edge: %v", err)
	}

	stats, err := ledger.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if stats.Nodes != 1 || stats.Edges != 1 {
		t.Errorf("expected 1 node / 1 edge cleared, got %+v", stats)
	}

	snap, _ := ledger.Snapshot(ctx)
	if len(snap.Nodes) != 0 || len(snap.Edges) != 0 {
		t.Error("expected empty graph after clear")
	}
}
