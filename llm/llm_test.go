package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func collect(t *testing.T, ch <-chan StreamDelta) (string, StreamDelta) {
	t.Helper()
	var sb strings.Builder
	var last StreamDelta
	for d := range ch {
		if d.Err != nil {
			t.Fatalf("stream error: %v", d.Err)
		}
		sb.WriteString(d.Text)
		last = d
	}
	return sb.String(), last
}

func TestOpenAICompatibleComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q, want suffix /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "test-model" {
			t.Errorf("model = %v, want test-model", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hola"}}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	}))
	defer srv.Close()

	c := NewCompleter("openai-compatible", "sk-test", srv.URL+"/v1/chat/completions", "test-model", Options{})
	text, usage, err := c.Complete(context.Background(), []Message{System("translate"), User("hello")})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "hola" {
		t.Errorf("text = %q, want %q", text, "hola")
	}
	if usage.TotalTokens != 4 {
		t.Errorf("TotalTokens = %d, want 4", usage.TotalTokens)
	}
}

func TestOpenAICompatibleStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"ho", "la"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewCompleter("openai-compatible", "sk-test", srv.URL+"/v1", "m", Options{})
	ch, err := c.StreamComplete(context.Background(), []Message{User("hello")})
	if err != nil {
		t.Fatalf("StreamComplete() error = %v", err)
	}
	text, last := collect(t, ch)
	if text != "hola" {
		t.Errorf("text = %q, want %q", text, "hola")
	}
	if !last.Done {
		t.Error("last delta not marked done")
	}
}

func TestClaudeStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"stream":true`) {
			t.Errorf("request body missing stream flag: %s", body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":5}}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"bon\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"jour\"}}\n\n")
		fmt.Fprint(w, "event: message_delta\ndata: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":2}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	c := NewCompleter("claude", "key", srv.URL, "claude-test", Options{})
	ch, err := c.StreamComplete(context.Background(), []Message{System("s"), User("hello")})
	if err != nil {
		t.Fatalf("StreamComplete() error = %v", err)
	}
	text, last := collect(t, ch)
	if text != "bonjour" {
		t.Errorf("text = %q, want %q", text, "bonjour")
	}
	if last.Usage.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", last.Usage.TotalTokens)
	}
}

func TestGeminiComplete(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{
			name: "candidate text",
			body: `{"candidates":[{"content":{"role":"model","parts":[{"text":"hallo"}]}}],"usageMetadata":{"totalTokenCount":9}}`,
			want: "hallo",
		},
		{
			name:    "api error",
			body:    `{"error":{"code":400,"message":"bad key"}}`,
			wantErr: true,
		},
		{
			name:    "no candidates",
			body:    `{"candidates":[]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.Contains(r.URL.Path, ":generateContent") {
					t.Errorf("path = %q", r.URL.Path)
				}
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := NewCompleter("gemini", "key", srv.URL, "gemini-test", Options{DisableThinking: true})
			got, _, err := c.Complete(context.Background(), []Message{User("hello")})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Complete() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Complete() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompatibleBaseURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://host/v1", "https://host/v1/"},
		{"https://host/v1/", "https://host/v1/"},
		{"https://host/v1/chat/completions", "https://host/v1/"},
	}
	for _, tt := range tests {
		if got := compatibleBaseURL(tt.in); got != tt.want {
			t.Errorf("compatibleBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGeminiStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "key" {
			t.Errorf("api key header = %q", r.Header.Get("x-goog-api-key"))
		}
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("alt = %q, want sse", r.URL.Query().Get("alt"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"plan\",\"thought\":true},{\"text\":\"Hal\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]}}],\"usageMetadata\":{\"totalTokenCount\":5}}\n\n")
	}))
	defer srv.Close()

	c := NewCompleter("gemini", "key", srv.URL, "gemini-test", Options{})
	ch, err := c.StreamComplete(context.Background(), []Message{System("translate"), User("hello")})
	if err != nil {
		t.Fatalf("StreamComplete() error = %v", err)
	}
	text, last := collect(t, ch)
	if text != "Hallo" {
		t.Errorf("text = %q, want %q", text, "Hallo")
	}
	if !last.Done || last.Usage.TotalTokens != 5 {
		t.Errorf("last delta = %+v", last)
	}
}

func TestGeminiHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"denied"}}`)
	}))
	defer srv.Close()

	c := NewCompleter("gemini", "key", srv.URL, "gemini-test", Options{})
	_, _, err := c.Complete(context.Background(), []Message{User("hello")})
	if err == nil || !strings.Contains(err.Error(), "denied") {
		t.Fatalf("Complete() error = %v, want api error", err)
	}
}
