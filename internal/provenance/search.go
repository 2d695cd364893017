package provenance

import (
	"context"
	"sort"
	"strings"
)

// phraseBonus is added to a node's score when the whole query appears as a
// literal substring of its content.
const phraseBonus = 2

// Index ranks a scope's nodes against a query by lexical overlap. It is a
// read path over the ledger: every Search takes a fresh snapshot and scans
// it, which is fine for one scope's bounded history.
type Index struct {
	ledger Ledger
}

// NewIndex creates a relevance index over the given ledger.
func NewIndex(ledger Ledger) *Index {
	return &Index{ledger: ledger}
}

type scoredNode struct {
	node  Node
	score int
}

// Search returns up to limit nodes ordered most relevant first. Score is the
// number of distinct query words present in the content, plus phraseBonus
// for a whole-query substring match. Zero-score nodes are excluded. Ties
// keep insertion order. An empty or whitespace-only query returns nil
// without touching the ledger.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Node, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	queryWords := wordSet(q)

	snap, err := ix.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var scored []scoredNode
	for _, n := range snap.Nodes {
		if n.Content == "" {
			continue
		}
		content := strings.ToLower(n.Content)
		contentWords := wordSet(content)

		score := 0
		for w := range queryWords {
			if _, ok := contentWords[w]; ok {
				score++
			}
		}
		if strings.Contains(content, q) {
			score += phraseBonus
		}
		if score == 0 {
			continue
		}
		scored = append(scored, scoredNode{node: n, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]Node, len(scored))
	for i, s := range scored {
		out[i] = s.node
	}
	return out, nil
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
