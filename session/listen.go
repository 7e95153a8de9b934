package session

import (
	"log/slog"
	"strings"
	"time"

	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/lang"
	"go.aimuz.me/polyvox/playback"
)

// ToggleRecording starts listening, or stops it when already listening.
func (s *Session) ToggleRecording() error {
	if s.capture.Listening() {
		return s.StopListening()
	}
	return s.StartListening()
}

// StartListening clears the input and outputs and starts speech capture
// in the input language. Failures are also recorded as the speech error.
func (s *Session) StartListening() error {
	s.mu.Lock()
	s.invalidateLocked()
	s.typedSeq++
	s.stopTimersLocked()
	s.committed = ""
	s.lastUtterance = ""
	st := &s.state
	st.SpeechError = ""
	st.TranslationError = ""
	st.InputText = ""
	st.Transcript = ""
	st.InterimTranscript = ""
	st.DetectedLanguage = ""
	st.clearOutputs()
	locale := lang.SpeechLocale(st.InputLanguage)
	s.mu.Unlock()
	s.notify()

	s.debounced(func() {})
	s.capture.Reset()
	return s.capture.Start(s.ctx, locale)
}

// StopListening stops speech capture. It is a no-op when not listening.
func (s *Session) StopListening() error {
	return s.capture.Stop()
}

func (s *Session) onListenStart() {
	s.update(func(st *State) {
		st.IsListening = true
		st.SpeechError = ""
	})
}

func (s *Session) onListenEnd() {
	s.update(func(st *State) { st.IsListening = false })
}

func (s *Session) onSpeechError(err error) {
	slog.Warn("speech capture error", "error", err)
	s.update(func(st *State) {
		st.IsListening = false
		st.SpeechError = err.Error()
	})
}

func (s *Session) onInterim(interim string) {
	s.mu.Lock()
	s.state.InterimTranscript = interim
	s.state.InputText = s.committed + interim
	text := s.state.InputText
	realtime := s.state.AutoTranslate && !s.state.VoiceInteraction && strings.TrimSpace(interim) != ""
	s.mu.Unlock()
	s.notify()

	if realtime {
		go s.TranslateRealtime(text)
	}
}

func (s *Session) onFinal(segment, _ string) {
	s.mu.Lock()
	s.committed += segment
	st := &s.state
	st.Transcript = s.committed
	st.InterimTranscript = ""
	st.InputText = s.committed
	voice := st.VoiceInteraction
	if !voice && st.AutoTranslate {
		s.scheduleSettleLocked()
	}
	s.mu.Unlock()
	s.notify()

	if voice {
		go s.voiceReply(segment)
	}
}

// onAutoStop promotes a trailing interim result to the transcript and
// runs one final pass over it.
func (s *Session) onAutoStop() {
	s.mu.Lock()
	st := &s.state
	st.IsListening = false
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
	trailing := st.InterimTranscript
	s.committed += trailing
	st.Transcript = s.committed
	st.InterimTranscript = ""
	st.InputText = s.committed
	text := s.committed
	voice := st.VoiceInteraction
	run := st.AutoTranslate && !voice && strings.TrimSpace(text) != ""
	streamingMode := st.StreamingMode
	s.mu.Unlock()
	s.notify()

	slog.Debug("speech capture stopped on silence", "trailing", trailing != "")
	switch {
	case voice && strings.TrimSpace(trailing) != "":
		go s.voiceReply(trailing)
	case run:
		g, ctx := s.beginFull()
		go s.runFull(ctx, g, text, streamingMode)
	}
}

// scheduleSettleLocked runs the full pipeline once speech has settled.
// A newer final result restarts the delay.
func (s *Session) scheduleSettleLocked() {
	if s.settle != nil {
		s.settle.Stop()
	}
	s.settleSeq++
	seq := s.settleSeq
	s.settle = time.AfterFunc(s.opts.Settle, func() { s.fireSettle(seq) })
}

func (s *Session) fireSettle(seq uint64) {
	s.mu.Lock()
	if s.closed || s.settle == nil || seq != s.settleSeq {
		s.mu.Unlock()
		return
	}
	s.settle = nil
	text := s.committed
	streamingMode := s.state.StreamingMode
	s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return
	}
	g, ctx := s.beginFull()
	s.runFull(ctx, g, text, streamingMode)
}

// voiceReply translates one utterance into the first output language and
// speaks it. Repeats of the previous utterance are ignored, and a reply
// never cuts off one that is already playing.
func (s *Session) voiceReply(utterance string) {
	utterance = strings.TrimSpace(utterance)

	s.mu.Lock()
	if utterance == "" || utterance == s.lastUtterance || len(s.state.OutputLanguages) == 0 {
		s.mu.Unlock()
		return
	}
	s.lastUtterance = utterance
	first := s.state.OutputLanguages[0]
	source := s.state.InputLanguage
	s.mu.Unlock()

	g, ctx := s.begin()
	res := s.translateOnce(ctx, g, utterance, source, []string{first.Code}, runOpts{history: true})
	if res == nil {
		return
	}
	text, ok := res.Text(first.Code)
	if !ok || text == types.NotAvailable {
		return
	}
	if err := s.player.PlayWith(playback.Suppress, text, first.Code, 0); err != nil {
		s.update(func(st *State) { st.SpeechError = err.Error() })
	}
}
