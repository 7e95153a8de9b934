// Package dispatch obtains translations of one text into several target
// languages, either in a single request or as a stream.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"go.aimuz.me/polyvox/cache"
	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/lang"
)

// DefaultTimeout bounds a single-shot translation.
const DefaultTimeout = 30 * time.Second

// DefaultStreamIdle bounds the wait for the next chunk of a stream.
const DefaultStreamIdle = 20 * time.Second

var (
	ErrEmptyText     = lang.ErrEmptyText
	ErrNoStreaming   = errors.New("streaming translation not available")
	ErrNoTranslator  = errors.New("translation not available")
	ErrStreamStalled = errors.New("translation stream stalled")
)

// Translator performs single-shot translations.
type Translator interface {
	Translate(ctx context.Context, req types.TranslateRequest) (*types.TranslateResponse, error)
}

// Streamer performs streaming translations.
type Streamer interface {
	TranslateStream(ctx context.Context, req types.TranslateRequest) (<-chan types.StreamChunk, error)
}

// Detector guesses the language of a text; it returns "auto" when unsure.
type Detector interface {
	Detect(text string) string
}

// Options configures a Dispatcher.
type Options struct {
	Cache    *cache.Cache
	Detector Detector      // Fallback when the translator omits the detected language
	Timeout  time.Duration // Single-shot timeout; zero uses DefaultTimeout
	// StreamIdle is how long a stream may go without a chunk before it is
	// abandoned; zero uses DefaultStreamIdle.
	StreamIdle time.Duration
}

// Result is a post-processed single-shot translation. Translations follow
// the order of the requested targets.
type Result struct {
	Translations     []types.TranslationResult `json:"translations"`
	DetectedLanguage string                    `json:"detectedLanguage,omitempty"`
	CacheHit         bool                      `json:"cacheHit"`
}

// Text returns the translation for code.
func (r *Result) Text(code string) (string, bool) {
	for _, t := range r.Translations {
		if t.Language == code {
			return t.Text, true
		}
	}
	return "", false
}

// Dispatcher is safe for concurrent use. At most one stream is active.
type Dispatcher struct {
	translator Translator
	streamer   Streamer
	cache      *cache.Cache
	detector   Detector
	timeout    time.Duration
	idle       time.Duration

	mu     sync.Mutex
	gen    uint64
	active *stream
}

// New creates a Dispatcher. streamer may be nil when streaming is not
// supported by the backend.
func New(translator Translator, streamer Streamer, opts Options) *Dispatcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	idle := opts.StreamIdle
	if idle <= 0 {
		idle = DefaultStreamIdle
	}
	return &Dispatcher{
		translator: translator,
		streamer:   streamer,
		cache:      opts.Cache,
		detector:   opts.Detector,
		timeout:    timeout,
		idle:       idle,
	}
}

// Translate translates text from source into every target. An empty
// target set is a no-op. Missing languages in the answer are filled with
// types.NotAvailable.
func (d *Dispatcher) Translate(ctx context.Context, text, source string, targets []string) (*Result, error) {
	targets = lo.Uniq(targets)
	if len(targets) == 0 {
		return &Result{}, nil
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if err := lang.ValidateRequest(text, source, targets); err != nil {
		return nil, err
	}

	if d.translator == nil {
		return nil, ErrNoTranslator
	}

	key := cache.TranslationKey(source, targets, text)
	var cached types.TranslateResponse
	if d.cache.GetJSON(key, &cached) {
		res := d.postProcess(&cached, text, source, targets)
		res.CacheHit = true
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.translator.Translate(ctx, types.TranslateRequest{
		Text:        text,
		InputLang:   source,
		OutputLangs: targets,
	})
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	if resp == nil || !resp.Success {
		msg := "translation failed"
		if resp != nil && resp.Error != "" {
			msg = resp.Error
		}
		return nil, errors.New(msg)
	}

	if err := d.cache.SetJSON(key, resp, cache.TranslationTTL); err != nil {
		slog.Warn("cache translation", "error", err)
	}

	return d.postProcess(resp, text, source, targets), nil
}

// postProcess applies sentinel substitution and detected-language
// extraction. Cached and live answers both pass through here.
func (d *Dispatcher) postProcess(resp *types.TranslateResponse, text, source string, targets []string) *Result {
	byLang := make(map[string]string, len(resp.Translations))
	for _, t := range resp.Translations {
		if _, seen := byLang[t.Language]; !seen && strings.TrimSpace(t.Text) != "" {
			byLang[t.Language] = t.Text
		}
	}

	res := &Result{Translations: make([]types.TranslationResult, len(targets))}
	for i, code := range targets {
		out, ok := byLang[code]
		if !ok {
			out = types.NotAvailable
		}
		res.Translations[i] = types.TranslationResult{
			Language:     code,
			LanguageName: lang.Name(code),
			Text:         out,
		}
	}

	if source == types.AutoDetect {
		res.DetectedLanguage = d.detect(resp.DetectedLanguage, text)
	}
	return res
}

func (d *Dispatcher) detect(reported, text string) string {
	if reported != "" && reported != types.AutoDetect {
		return reported
	}
	if d.detector == nil {
		return ""
	}
	if code := d.detector.Detect(text); code != types.AutoDetect {
		return code
	}
	return ""
}
