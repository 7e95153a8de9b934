package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/polyvox/cache"
	"go.aimuz.me/polyvox/internal/types"
)

type fakeTranslator struct {
	mu    sync.Mutex
	calls int
	last  types.TranslateRequest
	resp  *types.TranslateResponse
	err   error
}

func (f *fakeTranslator) Translate(ctx context.Context, req types.TranslateRequest) (*types.TranslateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	return f.resp, f.err
}

func (f *fakeTranslator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixedDetector string

func (d fixedDetector) Detect(string) string { return string(d) }

func TestTranslate(t *testing.T) {
	tr := &fakeTranslator{resp: &types.TranslateResponse{
		Success: true,
		Translations: []types.TranslationResult{
			{Language: "hi", Text: "नमस्ते"},
			{Language: "kn", Text: "  "},
			{Language: "xx", Text: "ignored"},
		},
		DetectedLanguage: "en",
	}}
	d := New(tr, nil, Options{})

	res, err := d.Translate(context.Background(), "hello", "auto", []string{"hi", "kn", "mr", "hi"})
	require.NoError(t, err)

	assert.Equal(t, []string{"hi", "kn", "mr"}, tr.last.OutputLangs)
	assert.Equal(t, "en", res.DetectedLanguage)
	require.Len(t, res.Translations, 3)
	assert.Equal(t, types.TranslationResult{Language: "hi", LanguageName: "Hindi", Text: "नमस्ते"}, res.Translations[0])
	assert.Equal(t, types.NotAvailable, res.Translations[1].Text)
	assert.Equal(t, types.NotAvailable, res.Translations[2].Text)
}

func TestTranslateNoTargets(t *testing.T) {
	tr := &fakeTranslator{}
	d := New(tr, nil, Options{})

	res, err := d.Translate(context.Background(), "hello", "en", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Translations)
	assert.Zero(t, tr.count())
}

func TestTranslateWithoutTranslator(t *testing.T) {
	d := New(nil, nil, Options{})

	_, err := d.Translate(context.Background(), "hello", "en", []string{"es"})
	assert.ErrorIs(t, err, ErrNoTranslator)
}

func TestTranslateValidation(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		source  string
		targets []string
	}{
		{"blank text", "   ", "en", []string{"hi"}},
		{"bad source", "hello", "EN", []string{"hi"}},
		{"auto target", "hello", "en", []string{"auto"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTranslator{}
			_, err := New(tr, nil, Options{}).Translate(context.Background(), tt.text, tt.source, tt.targets)
			assert.Error(t, err)
			assert.Zero(t, tr.count())
		})
	}
}

func TestTranslateFailures(t *testing.T) {
	tests := []struct {
		name string
		tr   *fakeTranslator
		want string
	}{
		{"transport", &fakeTranslator{err: errors.New("dial tcp")}, "dial tcp"},
		{"unsuccessful", &fakeTranslator{resp: &types.TranslateResponse{Error: "quota exceeded"}}, "quota exceeded"},
		{"unsuccessful without message", &fakeTranslator{resp: &types.TranslateResponse{}}, "translation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.tr, nil, Options{}).Translate(context.Background(), "hello", "en", []string{"hi"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTranslateDetectorFallback(t *testing.T) {
	tr := &fakeTranslator{resp: &types.TranslateResponse{
		Success:      true,
		Translations: []types.TranslationResult{{Language: "hi", Text: "x"}},
	}}

	res, err := New(tr, nil, Options{Detector: fixedDetector("fr")}).Translate(context.Background(), "bonjour", "auto", []string{"hi"})
	require.NoError(t, err)
	assert.Equal(t, "fr", res.DetectedLanguage)

	res, err = New(tr, nil, Options{Detector: fixedDetector("auto")}).Translate(context.Background(), "bonjour", "auto", []string{"hi"})
	require.NoError(t, err)
	assert.Empty(t, res.DetectedLanguage)

	res, err = New(tr, nil, Options{Detector: fixedDetector("fr")}).Translate(context.Background(), "bonjour", "en", []string{"hi"})
	require.NoError(t, err)
	assert.Empty(t, res.DetectedLanguage, "fixed source reports no detection")
}

func TestTranslateCached(t *testing.T) {
	c, err := cache.New("")
	require.NoError(t, err)
	defer c.Close()

	tr := &fakeTranslator{resp: &types.TranslateResponse{
		Success:      true,
		Translations: []types.TranslationResult{{Language: "es", Text: "hola"}},
	}}
	d := New(tr, nil, Options{Cache: c})

	first, err := d.Translate(context.Background(), "hello", "en", []string{"es", "hi"})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := d.Translate(context.Background(), "hello", "en", []string{"hi", "es"})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, tr.count())

	got, _ := second.Text("hi")
	assert.Equal(t, types.NotAvailable, got, "cache hits get the same post-processing")
	got, _ = second.Text("es")
	assert.Equal(t, "hola", got)
}

func TestTranslateFailureNotCached(t *testing.T) {
	c, err := cache.New("")
	require.NoError(t, err)
	defer c.Close()

	tr := &fakeTranslator{err: errors.New("down")}
	d := New(tr, nil, Options{Cache: c})

	_, err = d.Translate(context.Background(), "hello", "en", []string{"es"})
	require.Error(t, err)
	_, err = d.Translate(context.Background(), "hello", "en", []string{"es"})
	require.Error(t, err)
	assert.Equal(t, 2, tr.count())
}

func TestTranslateTimeout(t *testing.T) {
	tr := blockingTranslator{}
	d := New(tr, nil, Options{Timeout: 20 * time.Millisecond})

	_, err := d.Translate(context.Background(), "hello", "en", []string{"es"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type blockingTranslator struct{}

func (blockingTranslator) Translate(ctx context.Context, _ types.TranslateRequest) (*types.TranslateResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
