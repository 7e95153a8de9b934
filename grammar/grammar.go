// Package grammar implements the best-effort correction step that runs
// before translation.
package grammar

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"go.aimuz.me/polyvox/cache"
)

// Service is the remote correction capability.
type Service interface {
	CorrectGrammar(ctx context.Context, text string) (string, error)
}

// Options configures a Step.
type Options struct {
	Cache *cache.Cache
	// OnChange is called when the step starts or stops having corrections
	// in flight.
	OnChange func(correcting bool)
}

// Step corrects text, failing open to the original on any error.
type Step struct {
	svc      Service
	cache    *cache.Cache
	onChange func(bool)

	enabled  atomic.Bool
	inflight atomic.Int32
}

// New creates an enabled Step.
func New(svc Service, opts Options) *Step {
	s := &Step{svc: svc, cache: opts.Cache, onChange: opts.OnChange}
	s.enabled.Store(true)
	return s
}

// SetEnabled turns correction on or off.
func (s *Step) SetEnabled(v bool) { s.enabled.Store(v) }

// Enabled reports whether correction is on.
func (s *Step) Enabled() bool { return s.enabled.Load() }

// Correcting reports whether a correction is outstanding.
func (s *Step) Correcting() bool { return s.inflight.Load() > 0 }

// Correct returns the corrected text. Disabled, blank input or a missing
// service pass text through without a network call.
func (s *Step) Correct(ctx context.Context, text string) string {
	if !s.Enabled() || s.svc == nil || strings.TrimSpace(text) == "" {
		return text
	}

	key := cache.GrammarKey(text)
	var cached string
	if s.cache.GetJSON(key, &cached) {
		return cached
	}

	s.begin()
	defer s.end()

	corrected, err := s.svc.CorrectGrammar(ctx, text)
	if err != nil {
		slog.Warn("grammar correction failed, using original text", "error", err)
		return text
	}
	if strings.TrimSpace(corrected) == "" {
		slog.Warn("grammar correction returned empty text, using original text")
		return text
	}

	if err := s.cache.SetJSON(key, corrected, cache.GrammarTTL); err != nil {
		slog.Warn("cache grammar correction", "error", err)
	}
	return corrected
}

func (s *Step) begin() {
	if s.inflight.Add(1) == 1 && s.onChange != nil {
		s.onChange(true)
	}
}

func (s *Step) end() {
	if s.inflight.Add(-1) == 0 && s.onChange != nil {
		s.onChange(false)
	}
}
