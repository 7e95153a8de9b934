package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.aimuz.me/polyvox/dispatch"
	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/lang"
)

// runOpts selects the side effects of a completed translation.
type runOpts struct {
	history  bool
	autoPlay bool
}

var fullRun = runOpts{history: true, autoPlay: true}

// HandleTranslate is the manual translate action. In streaming mode it
// toggles the stream; otherwise it runs the one-shot pipeline in the
// background. It returns ErrBusy while a correction, or in one-shot mode a
// translation, is in flight.
func (s *Session) HandleTranslate() error {
	if s.grammar.Correcting() {
		return ErrBusy
	}

	s.mu.Lock()
	text := s.state.InputText
	streamingMode := s.state.StreamingMode
	streaming := s.state.IsStreaming
	translating := s.state.IsTranslating
	s.mu.Unlock()

	switch {
	case streamingMode && streaming:
		s.StopStreaming()
		return nil
	case !streamingMode && translating:
		return ErrBusy
	case strings.TrimSpace(text) == "":
		return dispatch.ErrEmptyText
	}

	// A pending typed run would repeat this one.
	s.mu.Lock()
	s.typedSeq++
	s.mu.Unlock()

	g, ctx := s.beginFull()
	go s.runFull(ctx, g, text, streamingMode)
	return nil
}

// TranslateText runs grammar correction and a one-shot translation of the
// current input, blocking until the run ends. Errors are recorded in the
// state.
func (s *Session) TranslateText() {
	s.mu.Lock()
	text := s.state.InputText
	s.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return
	}

	g, ctx := s.beginFull()
	s.runFull(ctx, g, text, false)
}

// StartStreaming runs grammar correction and starts a streaming
// translation of the current input. It returns once the stream is
// registered.
func (s *Session) StartStreaming() {
	s.mu.Lock()
	text := s.state.InputText
	s.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return
	}

	g, ctx := s.beginFull()
	s.runFull(ctx, g, text, true)
}

// StopStreaming cancels the active stream, keeping the partial outputs.
func (s *Session) StopStreaming() {
	s.mu.Lock()
	active := s.streaming != 0
	s.streaming = 0
	s.state.IsStreaming = false
	s.mu.Unlock()

	s.dispatcher.StopStreaming()
	if active {
		s.notify()
	}
}

// TranslateRealtime translates text without grammar correction, history
// or auto-play. It blocks until the answer is written or discarded. It is
// skipped while a full run is in flight so that run keeps its correction
// and history entry; later updates translate the newer text.
func (s *Session) TranslateRealtime(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	s.mu.Lock()
	if s.full != 0 && s.full == s.gen {
		s.mu.Unlock()
		slog.Debug("skipping realtime pass during full run", "run", s.full)
		return
	}
	g, ctx := s.beginLocked()
	source := s.state.InputLanguage
	targets := s.state.codes()
	s.mu.Unlock()

	s.translateOnce(ctx, g, text, source, targets, runOpts{})
}

// begin starts a new run, superseding and cancelling the previous one.
func (s *Session) begin() (uint64, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked()
}

// beginFull is begin for a full pipeline run, which realtime passes leave
// alone until it ends.
func (s *Session) beginFull() (uint64, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ctx := s.beginLocked()
	s.full = g
	return g, ctx
}

func (s *Session) beginLocked() (uint64, context.Context) {
	if s.runCancel != nil {
		s.runCancel()
	}
	s.gen++
	ctx, cancel := context.WithCancel(s.ctx)
	s.runCancel = cancel
	s.state.TranslationError = ""
	return s.gen, ctx
}

// invalidateLocked discards every started run.
func (s *Session) invalidateLocked() {
	s.gen++
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
}

// endLocked releases the context of run g if it is still the latest.
func (s *Session) endLocked(g uint64) {
	if s.gen == g && s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
}

func (s *Session) runTyped(seq uint64) {
	s.mu.Lock()
	if s.closed || seq != s.typedSeq || s.state.IsListening {
		s.mu.Unlock()
		return
	}
	text := s.state.InputText
	streamingMode := s.state.StreamingMode
	s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return
	}
	slog.Debug("auto-translating typed text", "length", len(text))
	g, ctx := s.beginFull()
	s.runFull(ctx, g, text, streamingMode)
}

// runFull corrects text and translates it, streaming or one-shot.
func (s *Session) runFull(ctx context.Context, g uint64, text string, stream bool) {
	defer func() {
		s.mu.Lock()
		if s.full == g {
			s.full = 0
		}
		s.mu.Unlock()
	}()

	corrected := s.grammar.Correct(ctx, text)

	s.mu.Lock()
	if s.gen != g {
		s.mu.Unlock()
		return
	}
	if corrected != text {
		if s.state.InputText == text {
			s.state.InputText = corrected
		}
		if s.committed == text {
			s.committed = corrected
			s.state.Transcript = corrected
		}
	}
	source := s.state.InputLanguage
	targets := s.state.codes()
	s.mu.Unlock()
	s.notify()

	if stream {
		s.startStream(ctx, g, corrected, source, targets)
		return
	}
	s.translateOnce(ctx, g, corrected, source, targets, fullRun)
}

// translateOnce performs a single-shot translation for run g and writes
// the result unless a newer run has started. It returns nil when the
// result was discarded or failed.
func (s *Session) translateOnce(ctx context.Context, g uint64, text, source string, targets []string, opts runOpts) *dispatch.Result {
	s.mu.Lock()
	if s.gen != g {
		s.mu.Unlock()
		return nil
	}
	s.translating = g
	s.state.IsTranslating = true
	s.mu.Unlock()
	s.notify()

	res, err := s.dispatcher.Translate(ctx, text, source, targets)

	s.mu.Lock()
	defer s.notify()
	defer s.mu.Unlock()

	if s.translating == g {
		s.translating = 0
		s.state.IsTranslating = false
	}
	if s.gen != g {
		slog.Debug("discarding stale translation", "run", g, "latest", s.gen)
		return nil
	}
	s.endLocked(g)

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("translation failed", "error", err)
			s.state.TranslationError = err.Error()
		}
		return nil
	}

	for _, t := range res.Translations {
		s.state.setOutput(t.Language, t.Text)
	}
	if source == types.AutoDetect && res.DetectedLanguage != "" {
		s.state.DetectedLanguage = res.DetectedLanguage
	}

	if opts.history {
		s.saveHistoryLocked(text, source, res.Translations)
	}
	if opts.autoPlay {
		s.scheduleAutoPlayLocked(g)
	}
	return res
}

func (s *Session) startStream(ctx context.Context, g uint64, text, source string, targets []string) {
	s.mu.Lock()
	if s.gen != g {
		s.mu.Unlock()
		return
	}
	s.streaming = g
	s.state.IsStreaming = true
	s.state.clearOutputs()
	s.mu.Unlock()
	s.notify()

	err := s.dispatcher.StartStreaming(ctx, text, source, targets, dispatch.StreamHandler{
		OnProgress: func(code, partial string, _ bool) {
			s.streamUpdate(g, func(st *State) { st.setOutput(code, partial) })
		},
		OnDetected: func(code string) {
			if source == types.AutoDetect {
				s.streamUpdate(g, func(st *State) { st.DetectedLanguage = code })
			}
		},
		OnComplete: func(final map[string]string) {
			s.streamComplete(g, text, source, targets, final)
		},
		OnError: func(err error) {
			slog.Warn("streaming translation failed", "error", err)
			s.streamUpdate(g, func(st *State) { st.TranslationError = err.Error() })
		},
		OnDone: func() { s.streamDone(g) },
	})
	if err == nil {
		return
	}

	s.mu.Lock()
	if s.streaming == g {
		s.streaming = 0
		s.state.IsStreaming = false
	}
	if s.gen == g {
		s.state.TranslationError = err.Error()
		s.endLocked(g)
	}
	s.mu.Unlock()
	s.notify()
}

// streamUpdate applies fn while stream g is still the session's stream.
func (s *Session) streamUpdate(g uint64, fn func(st *State)) {
	s.mu.Lock()
	if s.streaming != g || s.gen != g {
		s.mu.Unlock()
		return
	}
	fn(&s.state)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) streamComplete(g uint64, text, source string, targets []string, final map[string]string) {
	s.mu.Lock()
	defer s.notify()
	defer s.mu.Unlock()

	if s.streaming != g || s.gen != g {
		return
	}
	results := make([]types.TranslationResult, 0, len(targets))
	for _, code := range targets {
		t := final[code]
		s.state.setOutput(code, t)
		results = append(results, types.TranslationResult{Language: code, LanguageName: lang.Name(code), Text: t})
	}
	s.saveHistoryLocked(text, source, results)
	s.scheduleAutoPlayLocked(g)
}

func (s *Session) streamDone(g uint64) {
	s.mu.Lock()
	if s.streaming == g {
		s.streaming = 0
		s.state.IsStreaming = false
	}
	s.endLocked(g)
	s.mu.Unlock()
	s.notify()
}

// saveHistoryLocked records a completed pass. The store write happens in
// the background.
func (s *Session) saveHistoryLocked(text, source string, results []types.TranslationResult) {
	if s.history == nil {
		return
	}
	entry := types.HistoryEntry{
		InputText:        text,
		InputLanguage:    source,
		DetectedLanguage: s.state.DetectedLanguage,
		Translations:     results,
	}
	go func() {
		if _, ok, err := s.history.Add(entry); err != nil {
			slog.Error("save history", "error", err)
		} else if !ok {
			slog.Debug("history entry skipped, no translations")
		}
	}()
}

// scheduleAutoPlayLocked speaks the first output after the auto-play
// delay, unless another run starts first.
func (s *Session) scheduleAutoPlayLocked(g uint64) {
	if !s.state.AutoPlay || len(s.state.OutputLanguages) == 0 {
		return
	}
	first := s.state.OutputLanguages[0]
	if strings.TrimSpace(first.Text) == "" || first.Text == types.NotAvailable {
		return
	}

	if s.autoPlay != nil {
		s.autoPlay.Stop()
	}
	s.autoPlay = time.AfterFunc(s.opts.AutoPlayDelay, func() { s.fireAutoPlay(g) })
}

func (s *Session) fireAutoPlay(g uint64) {
	s.mu.Lock()
	if s.closed || s.gen != g || len(s.state.OutputLanguages) == 0 {
		s.mu.Unlock()
		return
	}
	s.autoPlay = nil
	first := s.state.OutputLanguages[0]
	s.state.SpeechError = ""
	s.mu.Unlock()

	s.player.Stop()
	if err := s.player.Play(first.Text, first.Code, 0); err != nil {
		s.update(func(st *State) { st.SpeechError = err.Error() })
	}
}
