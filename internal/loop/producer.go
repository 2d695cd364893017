package loop

import (
	"context"
	"fmt"
	"strings"

	"github.com/nidhogg/vouch/internal/provenance"
	"github.com/nidhogg/vouch/internal/provider"
	"go.uber.org/zap"
)

const (
	// contextLimit is how many prior nodes a fresh request pulls in.
	contextLimit = 5
	// contextPreviewLen bounds each context entry's content.
	contextPreviewLen = 200
	// generationConfidence is the attribute recorded on a successful
	// generation step. Distinct from the reviewer's confidence.
	generationConfidence = 0.95
)

// Producer generates a candidate response to a request and records it in
// the provenance ledger. A generation failure degrades to an error-marked
// response node; only ledger failures propagate as errors.
type Producer struct {
	ledger provenance.Ledger
	index  *provenance.Index
	router *provider.Router
	model  string
	logger *zap.Logger
}

// NewProducer creates a producer writing to the given ledger.
func NewProducer(ledger provenance.Ledger, index *provenance.Index, router *provider.Router, model string, logger *zap.Logger) *Producer {
	return &Producer{
		ledger: ledger,
		index:  index,
		router: router,
		model:  model,
		logger: logger,
	}
}

// ProduceInput describes one production step. Feedback nil means a fresh
// request; otherwise OriginalRequestID links the improved response back to
// the request that started the loop (empty ID leaves it unlinked).
type ProduceInput struct {
	Request           string
	Feedback          *Judgment
	OriginalRequestID string
}

// ProduceResult is the response node plus the request node ID it descends
// from, so the controller can thread that ID through retries.
type ProduceResult struct {
	Response  *provenance.Node
	RequestID string
}

// Produce runs one generation step and records it.
func (p *Producer) Produce(ctx context.Context, in ProduceInput) (*ProduceResult, error) {
	var (
		prompt    string
		requestID string
	)

	if in.Feedback == nil {
		contextBlock, err := p.contextBlock(ctx, in.Request)
		if err != nil {
			return nil, err
		}

		reqNode, err := p.ledger.InsertNode(ctx, provenance.KindRequest, in.Request, nil)
		if err != nil {
			return nil, fmt.Errorf("record request: %w", err)
		}
		requestID = reqNode.ID
		prompt = in.Request + contextBlock

		p.logger.Info("producing fresh response", zap.String("request_id", requestID))
	} else {
		requestID = in.OriginalRequestID
		prompt = fmt.Sprintf(
			"Original request: %s\n\n"+
				"Reviewer feedback (confidence: %.2f):\n%s\n\n"+
				"Please acknowledge this feedback and provide an improved response that addresses the concerns.",
			in.Request, in.Feedback.Confidence, in.Feedback.Explanation)

		p.logger.Info("producing improved response",
			zap.String("original_request_id", requestID),
			zap.Float64("feedback_confidence", in.Feedback.Confidence))
	}

	text, model, confidence := p.generate(ctx, prompt)

	attrs := map[string]interface{}{
		"confidence": confidence,
		"model":      model,
	}
	if in.Feedback != nil {
		attrs["feedback_acknowledged"] = true
		attrs["prior_confidence"] = in.Feedback.Confidence
	}

	respNode, err := p.ledger.InsertNode(ctx, provenance.KindResponse, text, attrs)
	if err != nil {
		return nil, fmt.Errorf("record response: %w", err)
	}

	if requestID != "" {
		label := provenance.LabelGeneratedBy
		if in.Feedback != nil {
			label = provenance.LabelImprovedBy
		}
		if _, err := p.ledger.InsertEdge(ctx, requestID, respNode.ID, label); err != nil {
			return nil, fmt.Errorf("record origin edge: %w", err)
		}
	}

	return &ProduceResult{Response: respNode, RequestID: requestID}, nil
}

// generate calls the provider router, degrading a failure to an
// error-marked text with zero confidence.
func (p *Producer) generate(ctx context.Context, prompt string) (text, model string, confidence float64) {
	resp, err := p.router.Generate(ctx, &provider.GenerateRequest{
		Model:  p.model,
		Prompt: prompt,
	})
	if err != nil {
		p.logger.Warn("generation failed", zap.Error(err))
		return "[ERROR] generation failed: " + err.Error(), p.model, 0
	}
	model = resp.Model
	if model == "" {
		model = p.model
	}
	return resp.Text, model, generationConfidence
}

// contextBlock formats the most relevant prior nodes into a prompt suffix.
// Empty when nothing matches.
func (p *Producer) contextBlock(ctx context.Context, request string) (string, error) {
	matches, err := p.index.Search(ctx, request, contextLimit)
	if err != nil {
		return "", fmt.Errorf("search context: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("\n\nRelevant context from previous conversations:\n")
	for i, n := range matches {
		kind := n.Kind
		if kind == "" {
			kind = "information"
		}
		sb.WriteString(fmt.Sprintf("%d. [%s]: %s\n", i+1, kind, truncate(n.Content, contextPreviewLen)))
	}
	sb.WriteString("\nUse this context to provide a more informed and consistent response.\n")
	return sb.String(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
