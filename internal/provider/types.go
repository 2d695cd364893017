package provider

import (
	"context"
	"time"
)

// Provider is the external generation capability. A call may fail with a
// transient or permanent error; no retries happen at this layer — the
// iteration loop decides whether a failed generation is worth another
// attempt.
type Provider interface {
	ID() string
	Name() string
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	HealthCheck(ctx context.Context) error
}

// GenerateRequest is a single prompt sent to a provider.
type GenerateRequest struct {
	Model       string  `json:"model"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// GenerateResponse is the generated text plus accounting.
type GenerateResponse struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Config holds configuration for a provider instance.
type Config struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Model    string            `json:"model,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
	Timeout  time.Duration     `json:"timeout,omitempty"`
}
