package playback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/lang"
)

// Downloader renders speech server-side.
type Downloader interface {
	TextToSpeech(ctx context.Context, req types.SpeechRequest) ([]byte, string, error)
}

// Renderer is implemented by synthesizers that can render audio to bytes.
type Renderer interface {
	Render(ctx context.Context, u Utterance) ([]byte, error)
}

// Audio is a downloadable rendition of an output.
type Audio struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Download renders text for saving. It tries the remote service first and
// falls back to the synthesizer when it can render; otherwise it returns
// ErrUnavailable.
func (c *Coordinator) Download(ctx context.Context, text, code string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("download audio: %w", lang.ErrEmptyText)
	}

	if c.remote != nil {
		data, contentType, err := c.remote.TextToSpeech(ctx, types.SpeechRequest{
			Text:     text,
			Language: code,
			Format:   "mp3",
		})
		if err == nil && len(data) > 0 {
			return c.audio(data, contentType, code), nil
		}
		slog.Warn("remote text-to-speech unavailable, trying local render", "error", err)
	}

	if r, ok := c.synth.(Renderer); ok {
		voice, locale := c.voiceFor(code)
		c.mu.Lock()
		u := Utterance{Text: text, Lang: locale, Voice: voice.Name, Rate: c.rate, Pitch: c.pitch, Volume: c.volume}
		c.mu.Unlock()

		data, err := r.Render(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("render audio: %w", err)
		}
		return c.audio(data, "audio/wav", code), nil
	}

	return nil, ErrUnavailable
}

func (c *Coordinator) audio(data []byte, contentType, code string) *Audio {
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &Audio{
		Data:        data,
		ContentType: contentType,
		Filename:    fmt.Sprintf("voice-translation-%s-%d%s", code, c.now().UnixMilli(), extension(contentType)),
	}
}

func extension(contentType string) string {
	switch {
	case strings.Contains(contentType, "wav"):
		return ".wav"
	case strings.Contains(contentType, "webm"):
		return ".webm"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	default:
		return ".mp3"
	}
}
