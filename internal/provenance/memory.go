package provenance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is the in-process Ledger implementation. It backs scopes when
// no durable store is configured, and is the workhorse for tests.
type MemoryLedger struct {
	scope string

	mu    sync.Mutex
	nodes []Node
	edges []Edge
	byID  map[string]int // node ID -> index into nodes
}

// NewMemoryLedger creates an empty in-memory ledger for the given scope.
func NewMemoryLedger(scope string) *MemoryLedger {
	return &MemoryLedger{
		scope: scope,
		byID:  make(map[string]int),
	}
}

func (l *MemoryLedger) Scope() string { return l.scope }

// InsertNode appends a node. Never fails.
func (l *MemoryLedger) InsertNode(ctx context.Context, kind, content string, attrs map[string]interface{}) (*Node, error) {
	n := Node{
		ID:        uuid.New().String(),
		Kind:      kind,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Attrs:     copyAttrs(attrs),
	}

	l.mu.Lock()
	l.byID[n.ID] = len(l.nodes)
	l.nodes = append(l.nodes, n)
	l.mu.Unlock()

	out := n
	out.Attrs = copyAttrs(n.Attrs)
	return &out, nil
}

// InsertEdge appends an edge without checking that either endpoint exists.
func (l *MemoryLedger) InsertEdge(ctx context.Context, sourceID, targetID, label string) (*Edge, error) {
	e := Edge{
		ID:     uuid.New().String(),
		Source: sourceID,
		Target: targetID,
		Label:  label,
	}

	l.mu.Lock()
	l.edges = append(l.edges, e)
	l.mu.Unlock()

	out := e
	return &out, nil
}

// Snapshot returns a copy of all nodes and edges in insertion order.
func (l *MemoryLedger) Snapshot(ctx context.Context) (*Graph, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	g := &Graph{
		Nodes: make([]Node, len(l.nodes)),
		Edges: make([]Edge, len(l.edges)),
	}
	copy(g.Nodes, l.nodes)
	copy(g.Edges, l.edges)
	for i := range g.Nodes {
		g.Nodes[i].Attrs = copyAttrs(g.Nodes[i].Attrs)
	}
	return g, nil
}

// EditNodeContent replaces a node's content in place.
func (l *MemoryLedger) EditNodeContent(ctx context.Context, id, content string) (*Node, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	l.nodes[idx].Content = content

	out := l.nodes[idx]
	out.Attrs = copyAttrs(out.Attrs)
	return &out, nil
}

// Clear drops everything in the scope and reports counts.
func (l *MemoryLedger) Clear(ctx context.Context) (ClearStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := ClearStats{Nodes: len(l.nodes), Edges: len(l.edges)}
	l.nodes = nil
	l.edges = nil
	l.byID = make(map[string]int)
	return stats, nil
}

func copyAttrs(attrs map[string]interface{}) map[string]interface{} {
	if attrs == nil {
		return nil
	}
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
