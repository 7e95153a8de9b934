package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/playback"
	"go.aimuz.me/polyvox/speech"
)

// fakeTranslator answers with fixed texts per language. A call whose text
// has a gate waits for its answers there, ignoring cancellation, so tests
// can resolve calls out of order.
type fakeTranslator struct {
	answers map[string]string
	detect  string
	err     error
	gates   map[string]chan map[string]string

	mu    sync.Mutex
	calls []types.TranslateRequest
}

func (f *fakeTranslator) Translate(ctx context.Context, req types.TranslateRequest) (*types.TranslateResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	answers, err := f.answers, f.err
	gate := f.gates[req.Text]
	f.mu.Unlock()

	if gate != nil {
		answers = <-gate
	}
	if err != nil {
		return nil, err
	}

	resp := &types.TranslateResponse{Success: true, DetectedLanguage: f.detect}
	for _, code := range req.OutputLangs {
		if text, ok := answers[code]; ok {
			resp.Translations = append(resp.Translations, types.TranslationResult{Language: code, Text: text})
		}
	}
	return resp, nil
}

func (f *fakeTranslator) requests() []types.TranslateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeTranslator) texts() []string {
	var out []string
	for _, r := range f.requests() {
		out = append(out, r.Text)
	}
	return out
}

// fakeStreamer hands each stream's channel to the test.
type fakeStreamer struct {
	mu    sync.Mutex
	chans []chan types.StreamChunk
}

func (f *fakeStreamer) TranslateStream(ctx context.Context, req types.TranslateRequest) (<-chan types.StreamChunk, error) {
	ch := make(chan types.StreamChunk, 16)
	f.mu.Lock()
	f.chans = append(f.chans, ch)
	f.mu.Unlock()
	return ch, nil
}

func (f *fakeStreamer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chans)
}

func (f *fakeStreamer) channel(t *testing.T, i int) chan types.StreamChunk {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.chans) {
		t.Fatalf("stream %d not started", i)
	}
	return f.chans[i]
}

type fakeGrammar struct {
	fix map[string]string
	err error
}

func (f *fakeGrammar) CorrectGrammar(ctx context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if fixed, ok := f.fix[text]; ok {
		return fixed, nil
	}
	return text, nil
}

type fakeRecognizer struct {
	mu     sync.Mutex
	ch     chan speech.Event
	locale string
}

func (f *fakeRecognizer) Start(ctx context.Context, locale string) (<-chan speech.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locale = locale
	f.ch = make(chan speech.Event, 16)
	return f.ch, nil
}

func (f *fakeRecognizer) Stop() error { return nil }

func (f *fakeRecognizer) interim(text string) {
	f.send(speech.Event{Kind: speech.EventResult, Results: []speech.Result{{Transcript: text}}})
}

func (f *fakeRecognizer) final(text string) {
	f.send(speech.Event{Kind: speech.EventResult, Results: []speech.Result{{Transcript: text, IsFinal: true}}})
}

func (f *fakeRecognizer) send(ev speech.Event) {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	ch <- ev
}

// fakeSynth speaks until cancelled.
type fakeSynth struct {
	mu     sync.Mutex
	spoken []playback.Utterance
}

func (f *fakeSynth) Voices() []playback.Voice { return nil }

func (f *fakeSynth) Speak(ctx context.Context, u playback.Utterance) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	f.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSynth) utterances() []playback.Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.spoken)
}

type fakeClipboard struct {
	text string
	fail bool
}

func (f *fakeClipboard) SetText(text string) error {
	if f.fail {
		return errors.New("denied")
	}
	f.text = text
	return nil
}

func settings(input string, outputs ...string) *types.Settings {
	off := false
	return &types.Settings{
		InputLanguage:            input,
		OutputLanguages:          outputs,
		GrammarCorrectionEnabled: &off,
	}
}

func outputTexts(st State) []string {
	out := make([]string, len(st.OutputLanguages))
	for i, o := range st.OutputLanguages {
		out[i] = o.Text
	}
	return out
}
