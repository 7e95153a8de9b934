// Package vision summarizes images in several languages.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"go.aimuz.me/polyvox/cache"
	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/lang"
)

// ErrInvalidImage is returned for image references that are not http(s)
// or data URLs.
var ErrInvalidImage = errors.New("image URL must be http, https or data")

// Service is the remote analysis capability.
type Service interface {
	AnalyzeImage(ctx context.Context, req types.ImageAnalysisRequest) (map[string]string, error)
}

// Analyzer caches analyses for an hour.
type Analyzer struct {
	svc   Service
	cache *cache.Cache
}

// New creates an Analyzer. c may be nil.
func New(svc Service, c *cache.Cache) *Analyzer {
	return &Analyzer{svc: svc, cache: c}
}

// Analyze returns one summary per language, defaulting to English. Languages
// missing from the answer map to types.NotAvailable.
func (a *Analyzer) Analyze(ctx context.Context, imageURL, prompt string, languages []string) (map[string]string, error) {
	if err := validateImage(imageURL); err != nil {
		return nil, err
	}
	languages = lo.Uniq(lo.Compact(languages))
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	for _, code := range languages {
		if err := lang.ValidateCode(code, false); err != nil {
			return nil, fmt.Errorf("language: %w", err)
		}
	}

	key := cache.ImageKey(imageURL, prompt, languages)
	var summary map[string]string
	if !a.cache.GetJSON(key, &summary) {
		var err error
		summary, err = a.svc.AnalyzeImage(ctx, types.ImageAnalysisRequest{
			ImageURL:  imageURL,
			Prompt:    prompt,
			Languages: languages,
		})
		if err != nil {
			return nil, fmt.Errorf("analyze image: %w", err)
		}
		if len(summary) > 0 {
			if err := a.cache.SetJSON(key, summary, cache.ImageTTL); err != nil {
				slog.Warn("cache image analysis", "error", err)
			}
		}
	}

	out := make(map[string]string, len(languages))
	for _, code := range languages {
		if text := strings.TrimSpace(summary[code]); text != "" {
			out[code] = text
		} else {
			out[code] = types.NotAvailable
		}
	}
	return out, nil
}

func validateImage(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || raw == "" {
		return ErrInvalidImage
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return ErrInvalidImage
		}
		return nil
	case "data":
		return nil
	default:
		return ErrInvalidImage
	}
}
