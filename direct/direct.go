// Package direct answers translation, grammar and dictionary requests by
// prompting a language model, without a proxy server in between.
package direct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"go.aimuz.me/polyvox/extract"
	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/langdetect"
	"go.aimuz.me/polyvox/lang"
	"go.aimuz.me/polyvox/llm"
)

// ErrNoVision is returned by AnalyzeImage; image input needs the HTTP backend.
var ErrNoVision = errors.New("image analysis requires the HTTP backend")

// DefaultSystemPrompt frames every request.
const DefaultSystemPrompt = "You are a professional translator and language assistant. Follow the requested output format exactly."

// Backend implements the translation, grammar and dictionary operations.
type Backend struct {
	llm          llm.StreamCompleter
	systemPrompt string
}

// New creates a Backend. An empty systemPrompt uses DefaultSystemPrompt.
func New(c llm.StreamCompleter, systemPrompt string) *Backend {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Backend{llm: c, systemPrompt: systemPrompt}
}

// Translate implements dispatch.Translator.
func (b *Backend) Translate(ctx context.Context, req types.TranslateRequest) (*types.TranslateResponse, error) {
	raw, _, err := b.llm.Complete(ctx, b.messages(translatePrompt(req)))
	if err != nil {
		return nil, fmt.Errorf("complete translation: %w", err)
	}

	obj, err := extract.Object(raw)
	if err != nil {
		return &types.TranslateResponse{Error: "could not parse translation results"}, nil
	}

	resp := &types.TranslateResponse{
		Success:          true,
		Translations:     parseTranslations(obj.Get("translations")),
		DetectedLanguage: obj.Get("detectedLanguage").String(),
	}
	if req.InputLang != types.AutoDetect {
		resp.DetectedLanguage = ""
	}
	return resp, nil
}

// parseTranslations accepts either [{"language","text"}] or {"code": "text"}.
func parseTranslations(v gjson.Result) []types.TranslationResult {
	var out []types.TranslationResult
	switch {
	case v.IsArray():
		v.ForEach(func(_, item gjson.Result) bool {
			out = append(out, types.TranslationResult{
				Language: item.Get("language").String(),
				Text:     item.Get("text").String(),
			})
			return true
		})
	case v.IsObject():
		v.ForEach(func(key, item gjson.Result) bool {
			out = append(out, types.TranslationResult{Language: key.String(), Text: item.String()})
			return true
		})
	}
	return out
}

// TranslateStream implements dispatch.Streamer. Each target language is
// streamed by its own completion; the channel closes when all finish.
func (b *Backend) TranslateStream(ctx context.Context, req types.TranslateRequest) (<-chan types.StreamChunk, error) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan types.StreamChunk, 16)

	send := func(c types.StreamChunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		defer cancel()

		if req.InputLang == types.AutoDetect {
			if code, _ := langdetect.Detect(req.Text); code != types.AutoDetect {
				send(types.StreamChunk{DetectedLanguage: code})
			}
		}

		var once sync.Once
		fail := func(err error) {
			once.Do(func() {
				send(types.StreamChunk{Error: err.Error()})
				cancel()
			})
		}

		var wg sync.WaitGroup
		for _, code := range req.OutputLangs {
			wg.Go(func() {
				if err := b.streamOne(ctx, req, code, send); err != nil && ctx.Err() == nil {
					fail(err)
				}
			})
		}
		wg.Wait()
	}()

	return out, nil
}

func (b *Backend) streamOne(ctx context.Context, req types.TranslateRequest, code string, send func(types.StreamChunk) bool) error {
	msgs := b.messages(singlePrompt(req, code))

	deltas, err := b.llm.StreamComplete(ctx, msgs)
	if err != nil {
		slog.Debug("stream unavailable, completing in one shot", "language", code, "error", err)
		text, _, err := b.llm.Complete(ctx, msgs)
		if err != nil {
			return fmt.Errorf("translate to %s: %w", code, err)
		}
		if send(types.StreamChunk{Language: code, Text: strings.TrimSpace(text)}) {
			send(types.StreamChunk{Language: code, Done: true})
		}
		return nil
	}

	for d := range deltas {
		switch {
		case d.Err != nil:
			return fmt.Errorf("translate to %s: %w", code, d.Err)
		case d.Done:
			send(types.StreamChunk{Language: code, Done: true})
			return nil
		case d.Text != "":
			if !send(types.StreamChunk{Language: code, Delta: d.Text}) {
				return nil
			}
		}
	}
	send(types.StreamChunk{Language: code, Done: true})
	return nil
}

// CorrectGrammar implements grammar.Service.
func (b *Backend) CorrectGrammar(ctx context.Context, text string) (string, error) {
	raw, _, err := b.llm.Complete(ctx, b.messages(grammarPrompt(text)))
	if err != nil {
		return "", fmt.Errorf("complete grammar correction: %w", err)
	}
	corrected := strings.TrimSpace(extract.StripFence(raw))
	if corrected == "" {
		return "", errors.New("empty grammar correction")
	}
	return corrected, nil
}

// LookupDictionary implements dictionary.Service. Unparseable answers
// yield the single extract.ParseFailure entry.
func (b *Backend) LookupDictionary(ctx context.Context, text, target string) ([]types.DictionaryEntry, error) {
	raw, _, err := b.llm.Complete(ctx, b.messages(dictionaryPrompt(text, target)))
	if err != nil {
		return nil, fmt.Errorf("complete dictionary lookup: %w", err)
	}

	res := extract.Entries(raw)
	if res.Failed {
		slog.Warn("dictionary answer not parseable", "stage", res.Stage)
	}
	return res.Entries, nil
}

// AnalyzeImage implements vision.Service.
func (b *Backend) AnalyzeImage(context.Context, types.ImageAnalysisRequest) (map[string]string, error) {
	return nil, ErrNoVision
}

func (b *Backend) messages(prompt string) []llm.Message {
	return []llm.Message{llm.System(b.systemPrompt), llm.User(prompt)}
}

func sourceName(code string) string {
	if code == types.AutoDetect || code == "" {
		return "the detected source language"
	}
	return lang.Name(code)
}

func translatePrompt(req types.TranslateRequest) string {
	var targets []string
	for _, code := range req.OutputLangs {
		targets = append(targets, fmt.Sprintf("%s (%s)", lang.Name(code), code))
	}
	return fmt.Sprintf(
		"Translate the following text from %s into each of these languages: %s.\n"+
			"Reply with a JSON object only, in this shape:\n"+
			`{"detectedLanguage": "<ISO code of the source>", "translations": [{"language": "<code>", "text": "<translation>"}]}`+
			"\n\nText:\n%s",
		sourceName(req.InputLang), strings.Join(targets, ", "), req.Text,
	)
}

func singlePrompt(req types.TranslateRequest, code string) string {
	return fmt.Sprintf(
		"Translate the following text from %s into %s. Reply with the translation only.\n\n%s",
		sourceName(req.InputLang), lang.Name(code), req.Text,
	)
}

func grammarPrompt(text string) string {
	return "Correct the grammar, spelling and punctuation of the following text. " +
		"Keep its language and meaning. Reply with the corrected text only.\n\n" + text
}

func dictionaryPrompt(text, target string) string {
	return fmt.Sprintf(
		"Give a word-by-word dictionary of the following text in %s. "+
			`Reply with a JSON array only: [{"word": "<word>", "translation": "<translation>"}]`+
			"\n\n%s",
		lang.Name(target), text,
	)
}
