// Package llm provides chat completion clients for hosted language models.
package llm

import (
	"context"
	"net/http"
	"time"

	"go.aimuz.me/polyvox/internal/types"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System and User build messages with the matching role.
func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }

// Options configures LLM completion behavior.
type Options struct {
	MaxTokens       int
	Temperature     float64
	DisableThinking bool          // For Gemini: set thinkingBudget to 0
	Timeout         time.Duration // Per request; zero means no client-side limit
}

// Completer performs chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, types.Usage, error)
}

// StreamDelta is one increment of a streamed completion.
// The final delta has Done set and carries the usage.
type StreamDelta struct {
	Text  string
	Done  bool
	Usage types.Usage
	Err   error
}

// StreamCompleter is a Completer that can also stream tokens.
// The returned channel is closed after the Done or Err delta.
type StreamCompleter interface {
	Completer
	StreamComplete(ctx context.Context, messages []Message) (<-chan StreamDelta, error)
}

// completerConfig holds all parameters needed by completers.
type completerConfig struct {
	http            *http.Client
	apiKey          string
	baseURL         string
	model           string
	maxTokens       int
	temperature     float64
	disableThinking bool
}

// NewCompleter creates a Completer for the given provider type. Every
// returned value also implements StreamCompleter.
func NewCompleter(apiType, apiKey, baseURL, model string, opts Options) StreamCompleter {
	cfg := completerConfig{
		http:            &http.Client{Timeout: opts.Timeout},
		apiKey:          apiKey,
		baseURL:         baseURL,
		model:           model,
		maxTokens:       opts.MaxTokens,
		temperature:     opts.Temperature,
		disableThinking: opts.DisableThinking,
	}

	switch apiType {
	case "gemini":
		return &geminiCompleter{cfg: cfg}
	case "claude":
		return &claudeCompleter{cfg: cfg}
	case "openai-compatible":
		return newOpenAICompleter(cfg, true)
	default:
		return newOpenAICompleter(cfg, false)
	}
}

// send delivers d on ch unless ctx is done.
func send(ctx context.Context, ch chan<- StreamDelta, d StreamDelta) bool {
	select {
	case ch <- d:
		return true
	case <-ctx.Done():
		return false
	}
}
