package loop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nidhogg/vouch/internal/provenance"
	"github.com/nidhogg/vouch/internal/provider"
	"go.uber.org/zap"
)

// Reviewer judges a response node and records the judgment in the ledger.
// Generation and parse failures degrade to low-confidence judgments; only
// ledger failures propagate as errors.
type Reviewer struct {
	ledger provenance.Ledger
	router *provider.Router
	model  string
	logger *zap.Logger
}

// NewReviewer creates a reviewer writing to the given ledger.
func NewReviewer(ledger provenance.Ledger, router *provider.Router, model string, logger *zap.Logger) *Reviewer {
	return &Reviewer{
		ledger: ledger,
		router: router,
		model:  model,
		logger: logger,
	}
}

// Review evaluates the response node and returns the judgment. A judgment
// node is always inserted; when the response has an ID a CheckedBy edge is
// added from it.
func (r *Reviewer) Review(ctx context.Context, response *provenance.Node) (Judgment, error) {
	prompt := fmt.Sprintf(
		"You are an AI reviewer judging another AI's response.\n"+
			"Response:\n%s\n\n"+
			"Return ONLY a valid JSON object in this format:\n"+
			`{"verdict": "pass|revise|fail", "confidence": 0.0-1.0, "explanation": "text"}`,
		response.Content)

	var judgment Judgment
	resp, err := r.router.Generate(ctx, &provider.GenerateRequest{
		Model:  r.model,
		Prompt: prompt,
	})
	if err != nil {
		r.logger.Warn("review generation failed", zap.Error(err))
		judgment = Judgment{
			Verdict:     VerdictError,
			Confidence:  0,
			Explanation: "review failed: " + err.Error(),
		}
	} else {
		judgment = ParseJudgment(resp.Text)
	}

	serialized, err := json.Marshal(judgment)
	if err != nil {
		return judgment, fmt.Errorf("marshal judgment: %w", err)
	}
	node, err := r.ledger.InsertNode(ctx, provenance.KindJudgment, string(serialized), nil)
	if err != nil {
		return judgment, fmt.Errorf("record judgment: %w", err)
	}

	if response.ID != "" {
		if _, err := r.ledger.InsertEdge(ctx, response.ID, node.ID, provenance.LabelCheckedBy); err != nil {
			return judgment, fmt.Errorf("record checked edge: %w", err)
		}
	}

	r.logger.Info("review complete",
		zap.String("verdict", string(judgment.Verdict)),
		zap.Float64("confidence", judgment.Confidence))
	return judgment, nil
}
