package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"go.aimuz.me/polyvox/internal/sse"
	"go.aimuz.me/polyvox/internal/types"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

var errNoCandidates = errors.New("no candidates returned")

// geminiCompleter implements StreamCompleter for the Gemini API.
type geminiCompleter struct {
	cfg completerConfig
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiConfig    `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiConfig struct {
	MaxOutputTokens int             `json:"maxOutputTokens,omitempty"`
	Temperature     float64         `json:"temperature,omitempty"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

// body converts chat messages into a generateContent request. System
// messages are merged into one instruction; assistant turns become "model".
func (c *geminiCompleter) body(messages []Message) ([]byte, error) {
	var req geminiRequest
	var system []string
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
		case "assistant":
			req.Contents = append(req.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: msg.Content}}})
		default:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Content}}})
		}
	}
	if len(system) > 0 {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n")}}}
	}
	req.GenerationConfig = geminiConfig{
		MaxOutputTokens: c.cfg.maxTokens,
		Temperature:     c.cfg.temperature,
	}
	if c.cfg.disableThinking {
		req.GenerationConfig.ThinkingConfig = &thinkingConfig{ThinkingBudget: 0}
	}
	return json.Marshal(req)
}

// post sends messages to the model method ("generateContent" or
// "streamGenerateContent?alt=sse") and returns the open response.
func (c *geminiCompleter) post(ctx context.Context, method string, messages []Message) (*http.Response, error) {
	body, err := c.body(messages)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	base := c.cfg.baseURL
	if base == "" {
		base = defaultGeminiBaseURL
	}
	url := fmt.Sprintf("%s/%s:%s", strings.TrimSuffix(base, "/"), c.cfg.model, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.apiKey)

	resp, err := c.cfg.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		if err := geminiError(gjson.ParseBytes(data)); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("api error: %d - %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp, nil
}

func (c *geminiCompleter) Complete(ctx context.Context, messages []Message) (string, types.Usage, error) {
	resp, err := c.post(ctx, "generateContent", messages)
	if err != nil {
		return "", types.Usage{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return "", types.Usage{}, fmt.Errorf("unmarshal response: invalid JSON")
	}
	res := gjson.ParseBytes(data)
	if err := geminiError(res); err != nil {
		return "", types.Usage{}, err
	}
	text, ok := geminiText(res)
	if !ok {
		return "", types.Usage{}, errNoCandidates
	}
	return text, geminiUsage(res), nil
}

// StreamComplete implements StreamCompleter for streaming responses.
func (c *geminiCompleter) StreamComplete(ctx context.Context, messages []Message) (<-chan StreamDelta, error) {
	resp, err := c.post(ctx, "streamGenerateContent?alt=sse", messages)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamDelta, 16)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		var usage types.Usage
		err := sse.Scan(ctx, resp.Body, func(data string) error {
			if !gjson.Valid(data) {
				return nil
			}
			chunk := gjson.Parse(data)
			if err := geminiError(chunk); err != nil {
				return err
			}
			if chunk.Get("usageMetadata").Exists() {
				usage = geminiUsage(chunk)
			}
			if text, _ := geminiText(chunk); text != "" && !send(ctx, ch, StreamDelta{Text: text}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			send(ctx, ch, StreamDelta{Err: err})
			return
		}
		send(ctx, ch, StreamDelta{Done: true, Usage: usage})
	}()
	return ch, nil
}

// geminiText joins the text parts of the first candidate, skipping
// thought summaries. It reports false when there is no candidate content.
func geminiText(res gjson.Result) (string, bool) {
	parts := res.Get("candidates.0.content.parts")
	if !parts.IsArray() || len(parts.Array()) == 0 {
		return "", false
	}
	var sb strings.Builder
	for _, p := range parts.Array() {
		if p.Get("thought").Bool() {
			continue
		}
		sb.WriteString(p.Get("text").String())
	}
	return sb.String(), true
}

func geminiError(res gjson.Result) error {
	e := res.Get("error")
	if !e.Exists() {
		return nil
	}
	return fmt.Errorf("api error: %d - %s", e.Get("code").Int(), e.Get("message").String())
}

func geminiUsage(res gjson.Result) types.Usage {
	u := res.Get("usageMetadata")
	return types.Usage{
		PromptTokens:     int(u.Get("promptTokenCount").Int()),
		CompletionTokens: int(u.Get("candidatesTokenCount").Int()),
		TotalTokens:      int(u.Get("totalTokenCount").Int()),
	}
}
