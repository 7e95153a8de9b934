// Package session owns the translation session state and coordinates
// speech capture, grammar correction, translation and playback.
//
// All mutations go through Session methods. Components are called without
// the session lock held because their callbacks lock it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/samber/lo"

	"go.aimuz.me/polyvox/cache"
	"go.aimuz.me/polyvox/dispatch"
	"go.aimuz.me/polyvox/grammar"
	"go.aimuz.me/polyvox/history"
	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/lang"
	"go.aimuz.me/polyvox/playback"
	"go.aimuz.me/polyvox/speech"
)

// Default timings.
const (
	DefaultDebounce      = time.Second
	DefaultSettle        = 500 * time.Millisecond
	DefaultAutoPlayDelay = 500 * time.Millisecond
)

var (
	ErrBusy              = errors.New("a translation or grammar correction is in progress")
	ErrDuplicateLanguage = errors.New("language is already an output")
	ErrIndexOutOfRange   = errors.New("output index out of range")
	ErrLastOutput        = errors.New("the last output language cannot be removed")
	ErrNoFreeLanguage    = errors.New("every language is already an output")
	ErrNoClipboard       = errors.New("clipboard is not available")
)

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	SetText(text string) error
}

// Deps are the collaborators of a Session. Any of them may be nil; the
// matching features then report unsupported or do nothing.
type Deps struct {
	Translator  dispatch.Translator
	Streamer    dispatch.Streamer
	Detector    dispatch.Detector
	Grammar     grammar.Service
	Recognizer  speech.Recognizer
	Synthesizer playback.Synthesizer
	Speech      playback.Downloader
	Cache       *cache.Cache
	History     *history.Store
	Clipboard   Clipboard
}

// Options configures timings and the initial settings. Zero durations use
// the defaults.
type Options struct {
	Debounce      time.Duration
	Settle        time.Duration
	AutoPlayDelay time.Duration
	AutoStop      time.Duration
	Timeout       time.Duration
	Settings      *types.Settings
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.Settle <= 0 {
		o.Settle = DefaultSettle
	}
	if o.AutoPlayDelay <= 0 {
		o.AutoPlayDelay = DefaultAutoPlayDelay
	}
	if o.AutoStop <= 0 {
		o.AutoStop = speech.DefaultAutoStop
	}
	if o.Timeout <= 0 {
		o.Timeout = dispatch.DefaultTimeout
	}
	return o
}

// Session is the single owner of the translation state.
type Session struct {
	opts       Options
	dispatcher *dispatch.Dispatcher
	grammar    *grammar.Step
	capture    *speech.Capture
	player     *playback.Coordinator
	history    *history.Store
	clipboard  Clipboard
	debounced  func(func())

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	// committed is the final transcript of the current capture.
	committed     string
	lastUtterance string
	// gen identifies the most recently started pipeline run.
	gen       uint64
	runCancel context.CancelFunc
	// translating and streaming hold the run that owns the flag; full is
	// the full pipeline run in flight.
	translating uint64
	streaming   uint64
	full        uint64
	typedSeq    uint64
	settleSeq   uint64
	settle      *time.Timer
	autoPlay    *time.Timer
	closed      bool

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
	changed chan struct{}
	done    chan struct{}
}

// New creates a Session and starts its notification loop.
func New(deps Deps, opts Options) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		opts:      opts,
		history:   deps.History,
		clipboard: deps.Clipboard,
		debounced: debounce.New(opts.Debounce),
		ctx:       ctx,
		cancel:    cancel,
		state:     DefaultState(),
		subs:      make(map[int]func(State)),
		changed:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	if opts.Settings != nil {
		s.state.applySettings(*opts.Settings)
	}

	s.dispatcher = dispatch.New(deps.Translator, deps.Streamer, dispatch.Options{
		Cache:    deps.Cache,
		Detector: deps.Detector,
		Timeout:  opts.Timeout,
	})
	s.grammar = grammar.New(deps.Grammar, grammar.Options{
		Cache:    deps.Cache,
		OnChange: s.onCorrecting,
	})
	s.grammar.SetEnabled(s.state.GrammarCorrectionEnabled)
	s.capture = speech.New(deps.Recognizer, speech.Handlers{
		OnStart:    s.onListenStart,
		OnEnd:      s.onListenEnd,
		OnAutoStop: s.onAutoStop,
		OnFinal:    s.onFinal,
		OnInterim:  s.onInterim,
		OnError:    s.onSpeechError,
	}, speech.Options{AutoStop: opts.AutoStop})
	s.player = playback.New(deps.Synthesizer, playback.Options{
		Rate:     s.state.SpeechSpeed,
		OnChange: s.onSpeaking,
		Remote:   deps.Speech,
	})

	s.state.SpeechSupported = s.capture.Supported()
	s.state.SynthesisSupported = s.player.Supported()
	if deps.Translator == nil {
		slog.Warn("session has no translator")
	}

	go s.publish()
	return s
}

// Close cancels all activity and stops the notification loop.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Reset()
	s.cancel()
	close(s.done)
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Settings returns the persistable preferences.
func (s *Session) Settings() types.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.settings()
}

// Subscribe registers fn to receive snapshots after changes. Bursts of
// changes are coalesced; fn always sees the latest state. The returned
// func unregisters fn.
func (s *Session) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	s.notify()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Session) publish() {
	for {
		select {
		case <-s.done:
			return
		case <-s.changed:
		}

		snap := s.Snapshot()
		s.subMu.Lock()
		subs := lo.Values(s.subs)
		s.subMu.Unlock()
		for _, fn := range subs {
			fn(snap)
		}
	}
}

// update applies fn under the lock and notifies subscribers.
func (s *Session) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
	s.notify()
}

// ─────────────────────────────────────────────────────────────────────────────
// Input & Settings
// ─────────────────────────────────────────────────────────────────────────────

// SetInputText replaces the input text and, when auto-translate is on and
// nothing is being captured, schedules a debounced pipeline run.
func (s *Session) SetInputText(text string) {
	s.mu.Lock()
	s.state.InputText = text
	s.typedSeq++
	seq := s.typedSeq
	schedule := s.state.AutoTranslate && !s.state.IsListening && strings.TrimSpace(text) != ""
	s.mu.Unlock()
	s.notify()

	if schedule {
		s.debounced(func() { s.runTyped(seq) })
	} else {
		s.debounced(func() {})
	}
}

// SetInputLanguage sets the source language; "auto" detects it.
func (s *Session) SetInputLanguage(code string) error {
	if err := lang.ValidateCode(code, true); err != nil {
		return err
	}
	s.update(func(st *State) {
		st.InputLanguage = code
		if code != types.AutoDetect {
			st.DetectedLanguage = ""
		}
	})
	return nil
}

// SetAutoTranslate toggles translating as input changes.
func (s *Session) SetAutoTranslate(v bool) {
	s.update(func(st *State) { st.AutoTranslate = v })
}

// SetAutoPlay toggles speaking the first output after a run.
func (s *Session) SetAutoPlay(v bool) {
	s.update(func(st *State) { st.AutoPlay = v })
}

// SetGrammarCorrection toggles the correction step.
func (s *Session) SetGrammarCorrection(v bool) {
	s.grammar.SetEnabled(v)
	s.update(func(st *State) { st.GrammarCorrectionEnabled = v })
}

// SetStreamingMode selects streaming instead of single-shot translation.
// Turning it off stops an active stream.
func (s *Session) SetStreamingMode(v bool) {
	if !v {
		s.StopStreaming()
	}
	s.update(func(st *State) { st.StreamingMode = v })
}

// SetVoiceInteraction toggles answering each utterance aloud.
func (s *Session) SetVoiceInteraction(v bool) {
	s.update(func(st *State) { st.VoiceInteraction = v })
	s.mu.Lock()
	s.lastUtterance = ""
	s.mu.Unlock()
}

// SetSpeechSpeed sets the playback rate, clamped to the supported range.
func (s *Session) SetSpeechSpeed(v float64) {
	v = lang.ClampSpeed(v)
	s.player.SetRate(v)
	s.update(func(st *State) { st.SpeechSpeed = v })
}

// SetCapabilities records whether the runtime can recognize and synthesize
// speech. A flag stays false when the session has no collaborator for it.
func (s *Session) SetCapabilities(recognition, synthesis bool) {
	recognition = recognition && s.capture.Supported()
	synthesis = synthesis && s.player.Supported()
	s.update(func(st *State) {
		st.SpeechSupported = recognition
		st.SynthesisSupported = synthesis
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Output Languages
// ─────────────────────────────────────────────────────────────────────────────

// AddOutputLanguage appends the first language not yet used and returns
// its code.
func (s *Session) AddOutputLanguage() (string, error) {
	s.mu.Lock()
	code, ok := lang.NextUnused(s.state.OutputLanguages)
	if ok {
		s.state.OutputLanguages = append(s.state.OutputLanguages, lang.Output(code))
	}
	s.mu.Unlock()

	if !ok {
		return "", ErrNoFreeLanguage
	}
	s.notify()
	return code, nil
}

// RemoveOutputLanguage removes slot i. The last slot cannot be removed.
func (s *Session) RemoveOutputLanguage(i int) error {
	s.mu.Lock()
	defer s.notify()
	defer s.mu.Unlock()

	switch {
	case i < 0 || i >= len(s.state.OutputLanguages):
		return ErrIndexOutOfRange
	case len(s.state.OutputLanguages) == 1:
		return ErrLastOutput
	}
	s.state.OutputLanguages = lo.DropByIndex(s.state.OutputLanguages, i)
	return nil
}

// UpdateOutputLanguage changes the language of slot i and clears its text.
func (s *Session) UpdateOutputLanguage(i int, code string) error {
	if err := lang.ValidateCode(code, false); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.notify()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.state.OutputLanguages) {
		return ErrIndexOutOfRange
	}
	if s.state.OutputLanguages[i].Code == code {
		return nil
	}
	if lo.ContainsBy(s.state.OutputLanguages, func(o types.OutputLanguage) bool { return o.Code == code }) {
		return fmt.Errorf("%w: %s", ErrDuplicateLanguage, code)
	}
	s.state.OutputLanguages[i] = lang.Output(code)
	return nil
}

// SwapLanguages exchanges the input with the first output. It reports
// false and changes nothing when the input language is auto-detected.
func (s *Session) SwapLanguages() bool {
	s.mu.Lock()
	res := lang.Swap(s.state.InputLanguage, s.state.OutputLanguages, s.state.InputText)
	if res != nil {
		s.state.InputLanguage = res.InputLanguage
		s.state.InputText = res.InputText
		s.state.OutputLanguages = res.OutputLanguages
		s.state.DetectedLanguage = ""
	}
	s.mu.Unlock()

	if res == nil {
		return false
	}
	s.notify()
	return true
}

// CopyToClipboard writes the text of output slot i to the clipboard.
func (s *Session) CopyToClipboard(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.state.OutputLanguages) {
		s.mu.Unlock()
		return ErrIndexOutOfRange
	}
	text := s.state.OutputLanguages[i].Text
	s.mu.Unlock()

	if s.clipboard == nil {
		return ErrNoClipboard
	}
	if err := s.clipboard.SetText(text); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reset
// ─────────────────────────────────────────────────────────────────────────────

// Reset stops listening, speaking and streaming, cancels pending timers
// and in-flight runs, and clears input, outputs and errors.
func (s *Session) Reset() {
	s.mu.Lock()
	s.gen++
	s.typedSeq++
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	s.stopTimersLocked()
	s.translating = 0
	s.streaming = 0
	s.committed = ""
	s.lastUtterance = ""

	st := &s.state
	st.InputText = ""
	st.Transcript = ""
	st.InterimTranscript = ""
	st.clearOutputs()
	st.DetectedLanguage = ""
	st.TranslationError = ""
	st.SpeechError = ""
	st.IsTranslating = false
	st.IsStreaming = false
	s.mu.Unlock()

	s.debounced(func() {})
	if err := s.capture.Stop(); err != nil {
		slog.Warn("stop capture on reset", "error", err)
	}
	s.capture.Reset()
	s.player.Stop()
	s.dispatcher.StopStreaming()

	s.update(func(st *State) {
		st.IsListening = false
		st.IsSpeaking = false
		st.PlayingIndex = playback.NoSlot
	})
	slog.Debug("session reset")
}

func (s *Session) stopTimersLocked() {
	s.settleSeq++
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
	if s.autoPlay != nil {
		s.autoPlay.Stop()
		s.autoPlay = nil
	}
}
