package realtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/realtime"
)

// CallsEndpoint receives the WebRTC SDP offer.
const CallsEndpoint = "https://api.openai.com/v1/realtime/calls"

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = string(realtime.AudioTranscriptionModelGPT4oTranscribe)

// Token is an ephemeral client secret.
type Token struct {
	Value     string
	ExpiresAt int64
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// SessionConfig describes a transcription session.
type SessionConfig struct {
	Model    string // transcription model
	Language string // ISO-639-1 code, e.g. "hi"
	Prompt   string // optional vocabulary hint
	BaseURL  string // API base for client secrets; empty uses the default
}

// CreateSession mints an ephemeral key for a transcription session with
// semantic turn detection.
func CreateSession(ctx context.Context, apiKey string, cfg SessionConfig) (*Token, error) {
	language := cfg.Language
	if language == "" {
		language = "en"
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	transcription := realtime.AudioTranscriptionParam{
		Model:    realtime.AudioTranscriptionModel(model),
		Language: openai.String(language),
	}
	if cfg.Prompt != "" {
		transcription.Prompt = openai.String(cfg.Prompt)
	}

	params := realtime.ClientSecretNewParams{
		Session: realtime.ClientSecretNewParamsSessionUnion{
			OfTranscription: &realtime.RealtimeTranscriptionSessionCreateRequestParam{
				Audio: realtime.RealtimeTranscriptionSessionAudioParam{
					Input: realtime.RealtimeTranscriptionSessionAudioInputParam{
						TurnDetection: realtime.RealtimeTranscriptionSessionAudioInputTurnDetectionUnionParam{
							OfSemanticVad: &realtime.RealtimeTranscriptionSessionAudioInputTurnDetectionSemanticVadParam{
								Type:      "semantic_vad",
								Eagerness: "high",
							},
						},
						Transcription: transcription,
					},
				},
			},
		},
	}
	resp, err := client.Realtime.ClientSecrets.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create client secret: %w", err)
	}

	return &Token{Value: resp.Value, ExpiresAt: resp.ExpiresAt}, nil
}

// ExchangeSDP posts the local offer and returns the answer SDP.
func ExchangeSDP(ctx context.Context, endpoint, offer, ephemeralKey string) (string, error) {
	if endpoint == "" {
		endpoint = CallsEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(offer))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ephemeralKey)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		slog.Error("sdp exchange failed", "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("sdp exchange (status %d): %s", resp.StatusCode, body)
	}

	return string(body), nil
}
