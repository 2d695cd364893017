package provenance

import (
	"context"
	"errors"
	"time"
)

// Well-known node kinds written by the produce/review loop. The ledger itself
// treats Kind as an open string set; callers may record their own kinds
// (e.g. inbound/outbound message markers).
const (
	KindRequest  = "request"
	KindResponse = "response"
	KindJudgment = "judgment"

	KindUserMessage      = "user_message"
	KindAssistantMessage = "assistant_message"
)

// Well-known edge labels. Labels are free-form strings; these are the ones
// the loop emits.
const (
	LabelGeneratedBy    = "GeneratedBy"
	LabelImprovedBy     = "ImprovedBy"
	LabelCheckedBy      = "CheckedBy"
	LabelRespondedTo    = "RespondedTo"
	LabelContainsResult = "ContainsResult"
)

// Node is an immutable-once-written record in the provenance graph.
// Content is the only field that may change after insertion, via
// EditNodeContent.
type Node struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	Content   string                 `json:"content"`
	CreatedAt time.Time              `json:"created_at"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

// Edge is a directed, labeled relationship between two node IDs. The ledger
// performs no referential check: an edge may reference nodes that no longer
// exist, or never existed. Callers own integrity.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Graph is a full materialized snapshot of one scope's ledger. Nodes and
// edges are in insertion order; that order is the only ordering signal
// consumers get.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// ClearStats reports what a Clear removed.
type ClearStats struct {
	Nodes int `json:"deleted_nodes"`
	Edges int `json:"deleted_edges"`
}

// ErrNotFound is returned by EditNodeContent when the node ID does not exist
// in the ledger's scope.
var ErrNotFound = errors.New("node not found")

// Ledger is an append-only provenance store for a single scope. Inserts are
// atomic per record; there is no cross-record transaction. Implementations
// must be safe for concurrent use.
type Ledger interface {
	// Scope returns the ownership boundary this ledger reads and writes.
	Scope() string

	// InsertNode assigns an ID and timestamp, persists the node, and
	// returns it as stored.
	InsertNode(ctx context.Context, kind, content string, attrs map[string]interface{}) (*Node, error)

	// InsertEdge persists a directed labeled edge. No referential check.
	InsertEdge(ctx context.Context, sourceID, targetID, label string) (*Edge, error)

	// Snapshot returns all nodes and edges in insertion order.
	Snapshot(ctx context.Context) (*Graph, error)

	// EditNodeContent replaces a node's content in place and returns the
	// updated node, or ErrNotFound.
	EditNodeContent(ctx context.Context, id, content string) (*Node, error)

	// Clear removes every node and edge in the scope. Irreversible.
	Clear(ctx context.Context) (ClearStats, error)
}
