package loop

import (
	"context"
	"fmt"
	"sync"

	"github.com/nidhogg/vouch/internal/provider"
	"go.uber.org/zap"
)

// scriptedProvider replays a fixed sequence of replies, one per Generate
// call, and records every prompt it saw. A nil *string reply simulates a
// provider failure.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []*string
	prompts []string
}

func script(replies ...*string) *scriptedProvider {
	return &scriptedProvider{replies: replies}
}

func reply(s string) *string { return &s }

func (s *scriptedProvider) ID() string   { return "scripted" }
func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Generate(ctx context.Context, req *provider.GenerateRequest) (*provider.GenerateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, req.Prompt)
	if len(s.replies) == 0 {
		return nil, fmt.Errorf("scripted provider exhausted after %d calls", len(s.prompts))
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	if next == nil {
		return nil, fmt.Errorf("scripted failure")
	}
	return &provider.GenerateResponse{Model: "scripted-model", Text: *next}, nil
}

func (s *scriptedProvider) HealthCheck(ctx context.Context) error { return nil }

func (s *scriptedProvider) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *scriptedProvider) prompt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.prompts) {
		return ""
	}
	return s.prompts[i]
}

func routerWith(p provider.Provider) *provider.Router {
	r := provider.NewRouter(zap.NewNop())
	r.Register(p)
	return r
}

func judgmentReply(verdict string, confidence float64, explanation string) *string {
	return reply(fmt.Sprintf(`{"verdict": %q, "confidence": %v, "explanation": %q}`,
		verdict, confidence, explanation))
}
