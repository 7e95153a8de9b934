package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.aimuz.me/polyvox/api"
	"go.aimuz.me/polyvox/config"
	"go.aimuz.me/polyvox/direct"
	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/llm"
	"go.aimuz.me/polyvox/playback"
)

var errNoBackend = errors.New("no translation backend configured")

// backend is what the session and side panels need from a translation
// service.
type backend interface {
	Translate(ctx context.Context, req types.TranslateRequest) (*types.TranslateResponse, error)
	TranslateStream(ctx context.Context, req types.TranslateRequest) (<-chan types.StreamChunk, error)
	CorrectGrammar(ctx context.Context, text string) (string, error)
	LookupDictionary(ctx context.Context, text, target string) ([]types.DictionaryEntry, error)
	AnalyzeImage(ctx context.Context, req types.ImageAnalysisRequest) (map[string]string, error)
}

// newBackend builds the backend cfg selects. The HTTP backend also
// renders downloadable speech; the direct one does not.
func newBackend(cfg *config.Config) (backend, playback.Downloader, error) {
	switch cfg.Backend.Mode {
	case config.BackendDirect:
		p, err := cfg.ActiveProvider()
		if err != nil {
			return nil, nil, fmt.Errorf("direct backend: %w", err)
		}
		c := llm.NewCompleter(p.Credential.Type, p.Credential.APIKey, p.Credential.BaseURL, p.Profile.Model, llm.Options{
			MaxTokens:       p.Profile.MaxTokens,
			Temperature:     p.Profile.Temperature,
			DisableThinking: p.Profile.DisableThinking,
			Timeout:         cfg.Backend.TimeoutDuration(),
		})
		return direct.New(c, p.Profile.SystemPrompt), nil, nil
	case config.BackendHTTP, "":
		c := api.New(cfg.Backend.BaseURL, cfg.Backend.TimeoutDuration())
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend mode %q", cfg.Backend.Mode)
	}
}

type backendSet struct {
	b   backend
	tts playback.Downloader
}

// switchable forwards to the current backend, so configuration changes
// take effect without rebuilding the session.
type switchable struct {
	cur atomic.Pointer[backendSet]
}

func (s *switchable) set(b backend, tts playback.Downloader) {
	s.cur.Store(&backendSet{b: b, tts: tts})
}

func (s *switchable) get() (backend, error) {
	if set := s.cur.Load(); set != nil && set.b != nil {
		return set.b, nil
	}
	return nil, errNoBackend
}

func (s *switchable) Translate(ctx context.Context, req types.TranslateRequest) (*types.TranslateResponse, error) {
	b, err := s.get()
	if err != nil {
		return nil, err
	}
	return b.Translate(ctx, req)
}

func (s *switchable) TranslateStream(ctx context.Context, req types.TranslateRequest) (<-chan types.StreamChunk, error) {
	b, err := s.get()
	if err != nil {
		return nil, err
	}
	return b.TranslateStream(ctx, req)
}

func (s *switchable) CorrectGrammar(ctx context.Context, text string) (string, error) {
	b, err := s.get()
	if err != nil {
		return "", err
	}
	return b.CorrectGrammar(ctx, text)
}

func (s *switchable) LookupDictionary(ctx context.Context, text, target string) ([]types.DictionaryEntry, error) {
	b, err := s.get()
	if err != nil {
		return nil, err
	}
	return b.LookupDictionary(ctx, text, target)
}

func (s *switchable) AnalyzeImage(ctx context.Context, req types.ImageAnalysisRequest) (map[string]string, error) {
	b, err := s.get()
	if err != nil {
		return nil, err
	}
	return b.AnalyzeImage(ctx, req)
}

// TextToSpeech implements playback.Downloader.
func (s *switchable) TextToSpeech(ctx context.Context, req types.SpeechRequest) ([]byte, string, error) {
	set := s.cur.Load()
	if set == nil || set.tts == nil {
		return nil, "", playback.ErrUnavailable
	}
	return set.tts.TextToSpeech(ctx, req)
}
