// Package dictionary looks up word-by-word translations.
package dictionary

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.aimuz.me/polyvox/cache"
	"go.aimuz.me/polyvox/extract"
	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/lang"
)

// Service is the remote lookup capability.
type Service interface {
	LookupDictionary(ctx context.Context, text, target string) ([]types.DictionaryEntry, error)
}

// Lookup caches dictionary answers for an hour.
type Lookup struct {
	svc   Service
	cache *cache.Cache
}

// New creates a Lookup. c may be nil.
func New(svc Service, c *cache.Cache) *Lookup {
	return &Lookup{svc: svc, cache: c}
}

// Lookup returns the entries for text in the target language.
func (l *Lookup) Lookup(ctx context.Context, text, target string) ([]types.DictionaryEntry, error) {
	text = strings.TrimSpace(text)
	if err := lang.ValidateText(text); err != nil {
		return nil, err
	}
	if err := lang.ValidateCode(target, false); err != nil {
		return nil, fmt.Errorf("target language: %w", err)
	}

	key := cache.DictionaryKey(text, target)
	var cached []types.DictionaryEntry
	if l.cache.GetJSON(key, &cached) {
		return cached, nil
	}

	entries, err := l.svc.LookupDictionary(ctx, text, target)
	if err != nil {
		return nil, fmt.Errorf("lookup dictionary: %w", err)
	}

	// A parse failure is worth retrying, so it is not cached.
	if len(entries) > 0 && !slices.Contains(entries, extract.ParseFailure) {
		if err := l.cache.SetJSON(key, entries, cache.DictionaryTTL); err != nil {
			slog.Warn("cache dictionary lookup", "error", err)
		}
	}
	return entries, nil
}
