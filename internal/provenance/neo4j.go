package provenance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Store wraps a Neo4j driver shared by all scope ledgers.
type Store struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewStore creates a Neo4j-backed provenance store.
func NewStore(uri, user, password string, logger *zap.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Store{driver: driver, logger: logger}, nil
}

// Ping verifies the Neo4j connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close shuts down the Neo4j driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ledger returns the durable ledger for one scope.
func (s *Store) Ledger(scope string) Ledger {
	return &neoLedger{store: s, scope: scope}
}

// neoLedger implements Ledger on top of a shared Neo4j driver. Insertion
// order is kept as a per-record seq property (insertion wall-clock in
// nanoseconds); every read orders by it.
//
// InsertEdge MERGEs stub endpoint nodes so the write never depends on the
// endpoints existing. Stubs carry no seq, so snapshots and edits skip them;
// a later InsertNode for the same ID upgrades the stub in place.
type neoLedger struct {
	store *Store
	scope string
}

func (l *neoLedger) Scope() string { return l.scope }

func (l *neoLedger) InsertNode(ctx context.Context, kind, content string, attrs map[string]interface{}) (*Node, error) {
	n := Node{
		ID:        uuid.New().String(),
		Kind:      kind,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Attrs:     attrs,
	}

	var attrsJSON string
	if len(attrs) > 0 {
		b, err := json.Marshal(attrs)
		if err != nil {
			return nil, fmt.Errorf("marshal node attrs: %w", err)
		}
		attrsJSON = string(b)
	}

	session := l.store.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (n:Prov {id: $id, scope: $scope})
		 SET n.kind = $kind, n.content = $content,
		     n.created_at = $created, n.seq = $seq, n.attrs = $attrs`,
		map[string]interface{}{
			"id":      n.ID,
			"scope":   l.scope,
			"kind":    n.Kind,
			"content": n.Content,
			"created": n.CreatedAt,
			"seq":     n.CreatedAt.UnixNano(),
			"attrs":   attrsJSON,
		})
	if err != nil {
		return nil, fmt.Errorf("insert node: %w", err)
	}
	return &n, nil
}

func (l *neoLedger) InsertEdge(ctx context.Context, sourceID, targetID, label string) (*Edge, error) {
	e := Edge{
		ID:     uuid.New().String(),
		Source: sourceID,
		Target: targetID,
		Label:  label,
	}

	session := l.store.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (a:Prov {id: $source, scope: $scope})
		 MERGE (b:Prov {id: $target, scope: $scope})
		 CREATE (a)-[:PROV {id: $id, scope: $scope, label: $label, seq: $seq}]->(b)`,
		map[string]interface{}{
			"id":     e.ID,
			"scope":  l.scope,
			"source": e.Source,
			"target": e.Target,
			"label":  e.Label,
			"seq":    time.Now().UnixNano(),
		})
	if err != nil {
		return nil, fmt.Errorf("insert edge: %w", err)
	}
	return &e, nil
}

func (l *neoLedger) Snapshot(ctx context.Context) (*Graph, error) {
	session := l.store.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	g := &Graph{}

	nodes, err := session.Run(ctx,
		`MATCH (n:Prov {scope: $scope}) WHERE n.seq IS NOT NULL
		 RETURN n.id AS id, n.kind AS kind, n.content AS content,
		        n.created_at AS created, n.attrs AS attrs
		 ORDER BY n.seq ASC`,
		map[string]interface{}{"scope": l.scope})
	if err != nil {
		return nil, fmt.Errorf("snapshot nodes: %w", err)
	}
	for nodes.Next(ctx) {
		n, convErr := nodeFromRecord(nodes.Record())
		if convErr != nil {
			return nil, convErr
		}
		g.Nodes = append(g.Nodes, n)
	}
	if err := nodes.Err(); err != nil {
		return nil, fmt.Errorf("snapshot nodes: %w", err)
	}

	edges, err := session.Run(ctx,
		`MATCH (a:Prov)-[r:PROV {scope: $scope}]->(b:Prov)
		 RETURN r.id AS id, a.id AS source, b.id AS target, r.label AS label
		 ORDER BY r.seq ASC`,
		map[string]interface{}{"scope": l.scope})
	if err != nil {
		return nil, fmt.Errorf("snapshot edges: %w", err)
	}
	for edges.Next(ctx) {
		rec := edges.Record()
		e := Edge{}
		if v, ok := rec.Get("id"); ok && v != nil {
			e.ID = v.(string)
		}
		if v, ok := rec.Get("source"); ok && v != nil {
			e.Source = v.(string)
		}
		if v, ok := rec.Get("target"); ok && v != nil {
			e.Target = v.(string)
		}
		if v, ok := rec.Get("label"); ok && v != nil {
			e.Label = v.(string)
		}
		g.Edges = append(g.Edges, e)
	}
	if err := edges.Err(); err != nil {
		return nil, fmt.Errorf("snapshot edges: %w", err)
	}
	return g, nil
}

func (l *neoLedger) EditNodeContent(ctx context.Context, id, content string) (*Node, error) {
	session := l.store.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (n:Prov {id: $id, scope: $scope}) WHERE n.seq IS NOT NULL
		 SET n.content = $content
		 RETURN n.id AS id, n.kind AS kind, n.content AS content,
		        n.created_at AS created, n.attrs AS attrs`,
		map[string]interface{}{"id": id, "scope": l.scope, "content": content})
	if err != nil {
		return nil, fmt.Errorf("edit node: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("edit node: %w", err)
		}
		return nil, ErrNotFound
	}
	n, err := nodeFromRecord(result.Record())
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (l *neoLedger) Clear(ctx context.Context) (ClearStats, error) {
	session := l.store.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	var stats ClearStats

	counts, err := session.Run(ctx,
		`MATCH (n:Prov {scope: $scope})
		 OPTIONAL MATCH (:Prov {scope: $scope})-[r:PROV {scope: $scope}]->()
		 RETURN size([x IN collect(DISTINCT n) WHERE x.seq IS NOT NULL]) AS nodes,
		        count(DISTINCT r) AS edges`,
		map[string]interface{}{"scope": l.scope})
	if err != nil {
		return stats, fmt.Errorf("clear counts: %w", err)
	}
	if counts.Next(ctx) {
		rec := counts.Record()
		if v, ok := rec.Get("nodes"); ok && v != nil {
			stats.Nodes = int(v.(int64))
		}
		if v, ok := rec.Get("edges"); ok && v != nil {
			stats.Edges = int(v.(int64))
		}
	}

	_, err = session.Run(ctx,
		`MATCH (n:Prov {scope: $scope}) DETACH DELETE n`,
		map[string]interface{}{"scope": l.scope})
	if err != nil {
		return ClearStats{}, fmt.Errorf("clear scope: %w", err)
	}

	l.store.logger.Info("cleared provenance scope",
		zap.String("scope", l.scope),
		zap.Int("nodes", stats.Nodes),
		zap.Int("edges", stats.Edges))
	return stats, nil
}

func nodeFromRecord(rec *neo4j.Record) (Node, error) {
	n := Node{}
	if v, ok := rec.Get("id"); ok && v != nil {
		n.ID = v.(string)
	}
	if v, ok := rec.Get("kind"); ok && v != nil {
		n.Kind = v.(string)
	}
	if v, ok := rec.Get("content"); ok && v != nil {
		n.Content = v.(string)
	}
	if v, ok := rec.Get("created"); ok && v != nil {
		if t, isTime := v.(time.Time); isTime {
			n.CreatedAt = t
		}
	}
	if v, ok := rec.Get("attrs"); ok && v != nil {
		if s, isStr := v.(string); isStr && s != "" {
			if err := json.Unmarshal([]byte(s), &n.Attrs); err != nil {
				return n, fmt.Errorf("unmarshal node attrs: %w", err)
			}
		}
	}
	return n, nil
}
