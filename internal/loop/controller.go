package loop

import (
	"context"

	"github.com/nidhogg/vouch/internal/provenance"
	"go.uber.org/zap"
)

const (
	// ConfidenceThreshold is the reviewer confidence that ends the loop.
	ConfidenceThreshold = 0.85
	// MaxRetries bounds feedback retries after the initial attempt.
	MaxRetries = 2
)

// State names a position in the iteration state machine.
type State string

const (
	StateInitial        State = "INITIAL"
	StateAwaitingReview State = "AWAITING_REVIEW"
	StateFeedbackRetry  State = "FEEDBACK_RETRY"
	StateDone           State = "DONE"
)

// Outcome is what the loop hands back to the caller: the last response,
// the last judgment, and how hard it had to work for them.
type Outcome struct {
	Response *provenance.Node `json:"response"`
	Judgment Judgment         `json:"judgment"`
	Attempts int              `json:"attempts"`
	Improved bool             `json:"improved"`
}

// Controller drives producer and reviewer alternately until the judgment
// clears ConfidenceThreshold or the retry budget is spent. All state is
// local to one Run call, so independent requests can run concurrently over
// the same ledger.
type Controller struct {
	producer *Producer
	reviewer *Reviewer
	logger   *zap.Logger
}

// NewController wires a controller from its two roles.
func NewController(producer *Producer, reviewer *Reviewer, logger *zap.Logger) *Controller {
	return &Controller{producer: producer, reviewer: reviewer, logger: logger}
}

// Run executes the bounded feedback loop for one request. It returns an
// error only when the ledger fails; a request that exhausts retries still
// returns its final attempt with the real (sub-threshold) judgment.
func (c *Controller) Run(ctx context.Context, request string) (*Outcome, error) {
	state := StateInitial
	retries := 0

	var (
		response *provenance.Node
		judgment Judgment
		originID string
	)

	for state != StateDone {
		switch state {
		case StateInitial:
			result, err := c.producer.Produce(ctx, ProduceInput{Request: request})
			if err != nil {
				return nil, err
			}
			response = result.Response
			// Captured once and threaded through every retry; never
			// re-derived from the graph.
			originID = result.RequestID

			judgment, err = c.reviewer.Review(ctx, response)
			if err != nil {
				return nil, err
			}
			state = StateAwaitingReview

		case StateAwaitingReview:
			if judgment.Confidence >= ConfidenceThreshold || retries >= MaxRetries {
				state = StateDone
				continue
			}
			state = StateFeedbackRetry

		case StateFeedbackRetry:
			retries++
			feedback := judgment
			result, err := c.producer.Produce(ctx, ProduceInput{
				Request:           request,
				Feedback:          &feedback,
				OriginalRequestID: originID,
			})
			if err != nil {
				return nil, err
			}
			response = result.Response

			judgment, err = c.reviewer.Review(ctx, response)
			if err != nil {
				return nil, err
			}
			state = StateAwaitingReview
		}
	}

	outcome := &Outcome{
		Response: response,
		Judgment: judgment,
		Attempts: retries + 1,
		Improved: retries > 0,
	}
	c.logger.Info("loop finished",
		zap.Int("attempts", outcome.Attempts),
		zap.Bool("improved", outcome.Improved),
		zap.Float64("confidence", outcome.Judgment.Confidence))
	return outcome, nil
}
