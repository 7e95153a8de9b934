// Package api is the HTTP client for the translation proxy endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.aimuz.me/polyvox/internal/sse"
	"go.aimuz.me/polyvox/internal/types"
)

// DefaultTimeout bounds every non-streaming request.
const DefaultTimeout = 30 * time.Second

// ErrServer wraps every non-2xx answer.
var ErrServer = errors.New("server error")

// Endpoint paths.
const (
	PathTranslate     = "/translate"
	PathGrammar       = "/correct-grammar"
	PathDictionary    = "/dictionary"
	PathImageAnalysis = "/image-analysis"
	PathTextToSpeech  = "/text-to-speech"
)

// Client talks to the proxy server. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
}

// New creates a client for baseURL. A zero timeout uses DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		// Streams are bounded by the caller's context only.
		stream: &http.Client{},
	}
}

// Translate performs a single-shot translation.
func (c *Client) Translate(ctx context.Context, req types.TranslateRequest) (*types.TranslateResponse, error) {
	req.Stream = false

	var resp types.TranslateResponse
	if err := c.postJSON(ctx, PathTranslate, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TranslateStream starts a streaming translation. The channel is closed
// when the stream ends; transport failures arrive as a chunk with Error.
func (c *Client) TranslateStream(ctx context.Context, req types.TranslateRequest) (<-chan types.StreamChunk, error) {
	req.Stream = true

	httpReq, err := c.newRequest(ctx, PathTranslate, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	ch := make(chan types.StreamChunk, 16)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		err := sse.Scan(ctx, resp.Body, func(data string) error {
			if data == sse.Done {
				return sse.ErrStop
			}
			var chunk types.StreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				slog.Debug("skip malformed stream chunk", "data", data, "error", err)
				return nil
			}
			select {
			case ch <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			select {
			case ch <- types.StreamChunk{Error: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// CorrectGrammar returns the corrected text.
func (c *Client) CorrectGrammar(ctx context.Context, text string) (string, error) {
	var resp types.GrammarResponse
	if err := c.postJSON(ctx, PathGrammar, types.GrammarRequest{Text: text}, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("correct grammar: %s", orDefault(resp.Error, "unsuccessful response"))
	}
	if resp.CorrectedText == "" {
		return "", fmt.Errorf("correct grammar: empty corrected text")
	}
	return resp.CorrectedText, nil
}

// LookupDictionary returns word/translation pairs for text.
func (c *Client) LookupDictionary(ctx context.Context, text, target string) ([]types.DictionaryEntry, error) {
	var resp types.DictionaryResponse
	req := types.DictionaryRequest{Text: text, TargetLanguage: target}
	if err := c.postJSON(ctx, PathDictionary, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("dictionary: %s", resp.Error)
	}
	return resp.Translations, nil
}

// AnalyzeImage returns a per-language summary of the image.
func (c *Client) AnalyzeImage(ctx context.Context, req types.ImageAnalysisRequest) (map[string]string, error) {
	var resp types.ImageAnalysisResponse
	if err := c.postJSON(ctx, PathImageAnalysis, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("image analysis: %s", resp.Error)
	}
	if resp.Summary == nil {
		return nil, fmt.Errorf("image analysis: missing summary")
	}
	return resp.Summary, nil
}

// TextToSpeech downloads synthesized audio and its content type.
func (c *Client) TextToSpeech(ctx context.Context, req types.SpeechRequest) ([]byte, string, error) {
	httpReq, err := c.newRequest(ctx, PathTextToSpeech, req)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, "", statusError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("text to speech: empty audio")
	}
	return audio, resp.Header.Get("Content-Type"), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Transport
// ─────────────────────────────────────────────────────────────────────────────

func (c *Client) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	req, err := c.newRequest(ctx, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// statusError builds an error from a non-2xx response, preferring the
// JSON "error" field when the body has one.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return fmt.Errorf("%w: %d - %s", ErrServer, resp.StatusCode, msg)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
