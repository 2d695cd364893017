package loop

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nidhogg/vouch/internal/provenance"
	"go.uber.org/zap"
)

func TestReviewRecordsJudgment(t *testing.T) {
	ledger := provenance.NewMemoryLedger("alice")
	stub := script(judgmentReply("pass", 0.92, "clear and complete"))
	reviewer := NewReviewer(ledger, routerWith(stub), "review-model", zap.NewNop())

	response, _ := ledger.InsertNode(context.Background(), provenance.KindResponse, "the answer", nil)

	judgment, err := reviewer.Review(context.Background(), response)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if judgment.Verdict != VerdictPass || judgment.Confidence != 0.92 {
		t.Errorf("unexpected judgment: %+v", judgment)
	}

	if !strings.Contains(stub.prompt(0), "the answer") {
		t.Error("review prompt must include the response content")
	}

	snap, _ := ledger.Snapshot(context.Background())
	if len(snap.Nodes) != 2 {
		t.Fatalf("expected response + judgment nodes, got %d", len(snap.Nodes))
	}
	jnode := snap.Nodes[1]
	if jnode.Kind != provenance.KindJudgment {
		t.Errorf("expected judgment kind, got %q", jnode.Kind)
	}
	var stored Judgment
	if err := json.Unmarshal([]byte(jnode.Content), &stored); err != nil {
		t.Fatalf("judgment content must be JSON: %v", err)
	}
	if stored != judgment {
		t.Errorf("stored judgment %+v differs from returned %+v", stored, judgment)
	}

	if len(snap.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(snap.Edges))
	}
	e := snap.Edges[0]
	if e.Source != response.ID || e.Target != jnode.ID || e.Label != provenance.LabelCheckedBy {
		t.Errorf("expected response -CheckedBy-> judgment, got %+v", e)
	}
}

func TestReviewGenerationFailureDegrades(t *testing.T) {
	ledger := provenance.NewMemoryLedger("alice")
	stub := script(nil)
	reviewer := NewReviewer(ledger, routerWith(stub), "review-model", zap.NewNop())

	response, _ := ledger.InsertNode(context.Background(), provenance.KindResponse, "the answer", nil)

	judgment, err := reviewer.Review(context.Background(), response)
	if err != nil {
		t.Fatalf("review failure must not be an error: %v", err)
	}
	if judgment.Verdict != VerdictError || judgment.Confidence != 0 {
		t.Errorf("expected error verdict with zero confidence, got %+v", judgment)
	}
	if !strings.HasPrefix(judgment.Explanation, "review failed:") {
		t.Errorf("unexpected explanation %q", judgment.Explanation)
	}

	// The degraded judgment is still recorded and linked.
	snap, _ := ledger.Snapshot(context.Background())
	if len(snap.Nodes) != 2 || len(snap.Edges) != 1 {
		t.Errorf("degraded judgment must still be recorded: %d nodes, %d edges", len(snap.Nodes), len(snap.Edges))
	}
}

func TestReviewMalformedReplyNormalizes(t *testing.T) {
	ledger := provenance.NewMemoryLedger("alice")
	stub := script(reply("Looks good to me, no JSON here."))
	reviewer := NewReviewer(ledger, routerWith(stub), "review-model", zap.NewNop())

	response, _ := ledger.InsertNode(context.Background(), provenance.KindResponse, "the answer", nil)

	judgment, err := reviewer.Review(context.Background(), response)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if judgment.Verdict != VerdictUnknown || judgment.Confidence != 0 {
		t.Errorf("malformed reply must normalize to unknown/0, got %+v", judgment)
	}
}

func TestReviewUnrecordedResponseSkipsEdge(t *testing.T) {
	ledger := provenance.NewMemoryLedger("alice")
	stub := script(judgmentReply("pass", 0.9, "fine"))
	reviewer := NewReviewer(ledger, routerWith(stub), "review-model", zap.NewNop())

	// A response that never made it into the ledger has no ID.
	if _, err := reviewer.Review(context.Background(), &provenance.Node{Content: "floating"}); err != nil {
		t.Fatalf("review: %v", err)
	}

	snap, _ := ledger.Snapshot(context.Background())
	if len(snap.Nodes) != 1 {
		t.Fatalf("expected judgment node only, got %d", len(snap.Nodes))
	}
	if len(snap.Edges) != 0 {
		t.Errorf("expected no edge for unrecorded response, got %d", len(snap.Edges))
	}
}
