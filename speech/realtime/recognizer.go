// Package realtime recognizes speech through the OpenAI realtime
// transcription API over WebRTC.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"go.aimuz.me/polyvox/speech"
)

// FrameSamples is one 20 ms Opus frame of interleaved stereo samples.
const FrameSamples = SampleRate / 50 * Channels

// AudioSource delivers interleaved stereo float32 frames at 48 kHz.
type AudioSource interface {
	Start(handler func(samples []float32)) error
	Stop() error
}

// Config configures a Recognizer.
type Config struct {
	APIKey   string
	Model    string
	Prompt   string
	BaseURL  string
	Endpoint string
}

// Recognizer implements speech.Recognizer. One recognition runs at a time.
type Recognizer struct {
	cfg   Config
	audio AudioSource

	mu     sync.Mutex
	client *Client
	cancel context.CancelFunc
}

var _ speech.Recognizer = (*Recognizer)(nil)

// NewRecognizer creates a Recognizer reading microphone audio from audio.
func NewRecognizer(cfg Config, audio AudioSource) *Recognizer {
	return &Recognizer{cfg: cfg, audio: audio}
}

// Start connects and begins streaming audio. Connection failures map to
// speech.ErrNetwork and audio failures to speech.ErrAudioCapture.
func (r *Recognizer) Start(ctx context.Context, locale string) (<-chan speech.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil, errors.New("recognition already running")
	}
	if r.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing API key", speech.ErrUnsupported)
	}

	client := NewClient(ClientConfig{
		APIKey:   r.cfg.APIKey,
		Endpoint: r.cfg.Endpoint,
		Session: SessionConfig{
			Model:    r.cfg.Model,
			Language: baseLanguage(locale),
			Prompt:   r.cfg.Prompt,
			BaseURL:  r.cfg.BaseURL,
		},
	})
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", speech.ErrNetwork, err)
	}

	err := r.audio.Start(func(samples []float32) {
		if err := client.SendAudio(samples); err != nil && !errors.Is(err, ErrClosed) {
			slog.Debug("send audio", "error", err)
		}
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", speech.ErrAudioCapture, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.client = client
	r.cancel = cancel

	out := make(chan speech.Event, 16)
	go pump(ctx, client, out)
	slog.Info("realtime recognition started", "locale", locale)
	return out, nil
}

// Stop ends the running recognition, if any.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	client, cancel := r.client, r.cancel
	r.client, r.cancel = nil, nil
	r.mu.Unlock()

	if client == nil {
		return nil
	}
	cancel()
	audioErr := r.audio.Stop()
	closeErr := client.Close()
	return errors.Join(audioErr, closeErr)
}

func pump(ctx context.Context, client *Client, out chan<- speech.Event) {
	defer close(out)

	send := func(ev speech.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	t := newTranscriber()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-client.Errors():
			send(speech.Event{Kind: speech.EventError, Code: "network", Message: err.Error()})
			return
		case msg, ok := <-client.Messages():
			if !ok {
				send(speech.Event{Kind: speech.EventEnd})
				return
			}
			ev, ok := t.translate(msg)
			if !ok {
				continue
			}
			if !send(ev) || ev.Kind == speech.EventError {
				return
			}
		}
	}
}

// transcriber folds per-item deltas into recognition results.
type transcriber struct {
	items map[string]string
}

func newTranscriber() *transcriber {
	return &transcriber{items: make(map[string]string)}
}

func (t *transcriber) translate(msg Event) (speech.Event, bool) {
	switch e := msg.(type) {
	case TranscriptDeltaEvent:
		t.items[e.ItemID] += e.Delta
		return result(t.items[e.ItemID], false), true

	case TranscriptEvent:
		delete(t.items, e.ItemID)
		text := strings.TrimSpace(e.Transcript)
		if text == "" {
			return speech.Event{}, false
		}
		// Finals are concatenated by the capture, keep words apart.
		return result(text+" ", true), true

	case TranscriptFailedEvent:
		delete(t.items, e.ItemID)
		slog.Warn("realtime transcription failed", "item", e.ItemID, "error", e.Error.Message)
		return speech.Event{}, false

	case ErrorEvent:
		return speech.Event{Kind: speech.EventError, Code: errorCode(e.Error), Message: e.Error.Message}, true

	default:
		return speech.Event{}, false
	}
}

func result(text string, final bool) speech.Event {
	return speech.Event{
		Kind:    speech.EventResult,
		Results: []speech.Result{{Transcript: text, IsFinal: final}},
	}
}

func errorCode(e APIError) string {
	switch {
	case e.Code == "invalid_api_key", e.Type == "authentication_error":
		return "not-allowed"
	case e.Code != "":
		return e.Code
	default:
		return e.Type
	}
}

// baseLanguage reduces a recognition locale like "hi-IN" to "hi".
func baseLanguage(locale string) string {
	if locale == "" {
		return "en"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	return base.String()
}
