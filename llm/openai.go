package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"go.aimuz.me/polyvox/internal/types"
)

// openaiCompleter implements StreamCompleter for OpenAI and compatible APIs.
type openaiCompleter struct {
	cfg    completerConfig
	client openai.Client
}

func newOpenAICompleter(cfg completerConfig, isCompatible bool) *openaiCompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.apiKey),
		option.WithHTTPClient(cfg.http),
		option.WithMaxRetries(0),
	}
	if isCompatible && cfg.baseURL != "" {
		opts = append(opts, option.WithBaseURL(compatibleBaseURL(cfg.baseURL)))
	}
	return &openaiCompleter{cfg: cfg, client: openai.NewClient(opts...)}
}

// compatibleBaseURL accepts either an API root or a full chat completions URL.
func compatibleBaseURL(u string) string {
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, "/chat/completions")
	return u + "/"
}

func (c *openaiCompleter) params(messages []Message) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.cfg.model),
		Messages: msgs,
	}
	if c.cfg.maxTokens > 0 {
		p.MaxTokens = openai.Int(int64(c.cfg.maxTokens))
	}
	if c.cfg.temperature > 0 {
		p.Temperature = openai.Float(c.cfg.temperature)
	}
	return p
}

func (c *openaiCompleter) Complete(ctx context.Context, messages []Message) (string, types.Usage, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(messages))
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", types.Usage{}, fmt.Errorf("no choices")
	}
	return resp.Choices[0].Message.Content, openaiUsage(resp.Usage), nil
}

// StreamComplete implements StreamCompleter for streaming responses.
func (c *openaiCompleter) StreamComplete(ctx context.Context, messages []Message) (<-chan StreamDelta, error) {
	p := c.params(messages)
	p.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := c.client.Chat.Completions.NewStreaming(ctx, p)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	ch := make(chan StreamDelta, 16)
	go func() {
		defer close(ch)
		defer stream.Close()

		var usage types.Usage
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				usage = openaiUsage(chunk.Usage)
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !send(ctx, ch, StreamDelta{Text: chunk.Choices[0].Delta.Content}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			send(ctx, ch, StreamDelta{Err: fmt.Errorf("read stream: %w", err)})
			return
		}
		send(ctx, ch, StreamDelta{Done: true, Usage: usage})
	}()

	return ch, nil
}

func openaiUsage(u openai.CompletionUsage) types.Usage {
	return types.Usage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}
