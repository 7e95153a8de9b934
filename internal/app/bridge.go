package app

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"go.aimuz.me/polyvox/playback"
	"go.aimuz.me/polyvox/speech"
	"go.aimuz.me/polyvox/speech/realtime"
)

// ─────────────────────────────────────────────────────────────────────────────
// Webview speech recognition
// ─────────────────────────────────────────────────────────────────────────────

// webRecognizer runs recognition in the webview. The frontend reports
// results back through the Service Recognition* methods.
type webRecognizer struct {
	emit      func(name string, data any)
	supported atomic.Bool

	mu sync.Mutex
	ch chan speech.Event
}

func newWebRecognizer(emit func(string, any)) *webRecognizer {
	return &webRecognizer{emit: emit}
}

// Start implements speech.Recognizer.
func (r *webRecognizer) Start(ctx context.Context, locale string) (<-chan speech.Event, error) {
	if !r.supported.Load() {
		return nil, speech.ErrUnsupported
	}

	r.mu.Lock()
	if r.ch != nil {
		r.mu.Unlock()
		return nil, errors.New("recognition already running")
	}
	ch := make(chan speech.Event, 32)
	r.ch = ch
	r.mu.Unlock()

	r.emit(EventRecognitionStart, RecognitionStart{Locale: locale, Continuous: true, InterimResults: true})
	go func() {
		<-ctx.Done()
		r.end(ch)
	}()
	return ch, nil
}

// Stop implements speech.Recognizer.
func (r *webRecognizer) Stop() error {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()
	if ch == nil {
		return nil
	}
	r.emit(EventRecognitionStop, nil)
	r.end(ch)
	return nil
}

// deliver forwards a frontend event. It reports false when no recognition
// is running or the consumer is not keeping up.
func (r *webRecognizer) deliver(ev speech.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch == nil {
		return false
	}
	select {
	case r.ch <- ev:
		return true
	default:
		slog.Warn("recognition event dropped", "kind", ev.Kind)
		return false
	}
}

func (r *webRecognizer) end(ch chan speech.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch == ch {
		close(ch)
		r.ch = nil
	}
}

// webAudio feeds microphone audio captured by the webview to the realtime
// recognizer, asking the frontend to start and stop streaming.
type webAudio struct {
	realtime.Feed
	emit func(name string, data any)
}

// Start implements realtime.AudioSource.
func (a *webAudio) Start(handler func(samples []float32)) error {
	if err := a.Feed.Start(handler); err != nil {
		return err
	}
	a.emit(EventAudioStart, nil)
	return nil
}

// Stop implements realtime.AudioSource.
func (a *webAudio) Stop() error {
	a.emit(EventAudioStop, nil)
	return a.Feed.Stop()
}

// recognizerSwitch picks the recognizer each time listening starts, so a
// changed speech configuration applies to the next capture.
type recognizerSwitch struct {
	pick func() speech.Recognizer

	mu  sync.Mutex
	cur speech.Recognizer
}

func (r *recognizerSwitch) Start(ctx context.Context, locale string) (<-chan speech.Event, error) {
	rec := r.pick()
	r.mu.Lock()
	r.cur = rec
	r.mu.Unlock()
	return rec.Start(ctx, locale)
}

func (r *recognizerSwitch) Stop() error {
	r.mu.Lock()
	rec := r.cur
	r.mu.Unlock()
	if rec == nil {
		return nil
	}
	return rec.Stop()
}

// ─────────────────────────────────────────────────────────────────────────────
// Webview speech synthesis
// ─────────────────────────────────────────────────────────────────────────────

// webSynth speaks through the webview's synthesizer. Speak blocks until
// the frontend calls SpeechFinished for the utterance.
type webSynth struct {
	emit      func(name string, data any)
	supported atomic.Bool

	mu      sync.Mutex
	voices  []playback.Voice
	pending map[string]chan error
}

func newWebSynth(emit func(string, any)) *webSynth {
	return &webSynth{emit: emit, pending: make(map[string]chan error)}
}

// Voices implements playback.Synthesizer.
func (s *webSynth) Voices() []playback.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.voices)
}

func (s *webSynth) setVoices(v []playback.Voice) {
	s.mu.Lock()
	s.voices = slices.Clone(v)
	s.mu.Unlock()
}

// Speak implements playback.Synthesizer.
func (s *webSynth) Speak(ctx context.Context, u playback.Utterance) error {
	if !s.supported.Load() {
		return playback.ErrUnsupported
	}

	done := make(chan error, 1)
	s.mu.Lock()
	s.pending[u.ID] = done
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, u.ID)
		s.mu.Unlock()
	}()

	s.emit(EventSpeak, u)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.emit(EventSpeakCancel, u.ID)
		return ctx.Err()
	}
}

// finish resolves a pending utterance. It reports false for unknown ids.
func (s *webSynth) finish(id string, err error) bool {
	s.mu.Lock()
	done, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case done <- err:
	default:
	}
	return true
}
