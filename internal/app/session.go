package app

import (
	"context"
	"errors"
	"fmt"

	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/lang"
	"go.aimuz.me/polyvox/playback"
	"go.aimuz.me/polyvox/session"
	"go.aimuz.me/polyvox/speech"
)

// ─────────────────────────────────────────────────────────────────────────────
// Session State
// ─────────────────────────────────────────────────────────────────────────────

// GetState returns the current session state. Later changes arrive as
// session-state events.
func (s *Service) GetState() session.State {
	return s.session.Snapshot()
}

// GetLanguages returns the selectable languages.
func (s *Service) GetLanguages() []types.Language {
	return lang.All()
}

// SetInputText updates the input and schedules auto-translation.
func (s *Service) SetInputText(text string) {
	s.session.SetInputText(text)
}

// SetInputLanguage sets the source language; "auto" detects it.
func (s *Service) SetInputLanguage(code string) error {
	return s.session.SetInputLanguage(code)
}

// SetAutoTranslate toggles translating while typing or speaking.
func (s *Service) SetAutoTranslate(v bool) {
	s.session.SetAutoTranslate(v)
}

// SetAutoPlay toggles speaking the first output after each translation.
func (s *Service) SetAutoPlay(v bool) {
	s.session.SetAutoPlay(v)
}

// SetGrammarCorrection toggles correcting input before translating.
func (s *Service) SetGrammarCorrection(v bool) {
	s.session.SetGrammarCorrection(v)
}

// SetStreamingMode toggles incremental translation.
func (s *Service) SetStreamingMode(v bool) {
	s.session.SetStreamingMode(v)
}

// SetVoiceInteraction toggles answering each spoken sentence aloud.
func (s *Service) SetVoiceInteraction(v bool) {
	s.session.SetVoiceInteraction(v)
}

// SetSpeechSpeed sets the playback rate.
func (s *Service) SetSpeechSpeed(v float64) {
	s.session.SetSpeechSpeed(v)
}

// AddOutputLanguage appends the first unused language and returns it.
func (s *Service) AddOutputLanguage() (string, error) {
	return s.session.AddOutputLanguage()
}

// RemoveOutputLanguage removes output slot i.
func (s *Service) RemoveOutputLanguage(i int) error {
	return s.session.RemoveOutputLanguage(i)
}

// UpdateOutputLanguage changes the language of output slot i.
func (s *Service) UpdateOutputLanguage(i int, code string) error {
	return s.session.UpdateOutputLanguage(i, code)
}

// SwapLanguages exchanges the input with the first output. It reports
// false when the input language is "auto".
func (s *Service) SwapLanguages() bool {
	return s.session.SwapLanguages()
}

// Translate is the translate button: a one-shot run, or in streaming mode
// a stream toggle.
func (s *Service) Translate() error {
	return s.session.HandleTranslate()
}

// Reset clears the session and stops all activity.
func (s *Service) Reset() {
	s.session.Reset()
}

// CopyOutput copies output slot i to the clipboard.
func (s *Service) CopyOutput(i int) error {
	return s.session.CopyToClipboard(i)
}

// ─────────────────────────────────────────────────────────────────────────────
// Speech Recognition
// ─────────────────────────────────────────────────────────────────────────────

// SetCapabilities records which speech features the webview offers.
// Recognition stays available without the webview when a speech API key
// is configured.
func (s *Service) SetCapabilities(c Capabilities) {
	s.webRec.supported.Store(c.Recognition)
	s.synth.supported.Store(c.Synthesis)
	_, _, server := s.cfg.SpeechKey()
	s.session.SetCapabilities(c.Recognition || server, c.Synthesis)
}

// ToggleRecording starts or stops listening.
func (s *Service) ToggleRecording() error {
	return s.session.ToggleRecording()
}

// RecognitionResult delivers a batch of webview recognition results.
func (s *Service) RecognitionResult(resultIndex int, results []speech.Result) {
	s.webRec.deliver(speech.Event{Kind: speech.EventResult, ResultIndex: resultIndex, Results: results})
}

// RecognitionError delivers a webview recognition error code.
func (s *Service) RecognitionError(code, message string) {
	s.webRec.deliver(speech.Event{Kind: speech.EventError, Code: code, Message: message})
}

// RecognitionEnded reports that the webview recognizer stopped.
func (s *Service) RecognitionEnded() {
	s.webRec.deliver(speech.Event{Kind: speech.EventEnd})
}

// PushAudio feeds interleaved stereo microphone samples at 48 kHz to the
// server-side recognizer. It reports false when nothing is listening.
func (s *Service) PushAudio(samples []float32) bool {
	return s.audio.Push(samples)
}

// PushMonoAudio is PushAudio for mono samples.
func (s *Service) PushMonoAudio(samples []float32) bool {
	return s.audio.PushMono(samples)
}

// ─────────────────────────────────────────────────────────────────────────────
// Playback
// ─────────────────────────────────────────────────────────────────────────────

// SetVoices records the webview's synthesizer voices.
func (s *Service) SetVoices(voices []playback.Voice) {
	s.synth.setVoices(voices)
}

// PlayAudio speaks output slot i, or stops it when it is already playing.
func (s *Service) PlayAudio(i int) error {
	return s.session.PlayAudio(i)
}

// StopSpeaking stops playback.
func (s *Service) StopSpeaking() {
	s.session.StopSpeaking()
}

// SpeechFinished resolves a speak event. An empty errMsg means the
// utterance ended normally.
func (s *Service) SpeechFinished(id, errMsg string) {
	var err error
	if errMsg != "" {
		err = errors.New(errMsg)
	}
	s.synth.finish(id, err)
}

// DownloadAudio renders output slot i for saving.
func (s *Service) DownloadAudio(i int) (*playback.Audio, error) {
	return s.session.DownloadAudio(i)
}

// ─────────────────────────────────────────────────────────────────────────────
// Dictionary, Images & History
// ─────────────────────────────────────────────────────────────────────────────

// LookupDictionary explains text in the target language.
func (s *Service) LookupDictionary(text, target string) ([]types.DictionaryEntry, error) {
	ctx, cancel := s.requestContext()
	defer cancel()
	return s.dictionary.Lookup(ctx, text, target)
}

// AnalyzeImage describes an image in each language.
func (s *Service) AnalyzeImage(imageURL, prompt string, languages []string) (map[string]string, error) {
	ctx, cancel := s.requestContext()
	defer cancel()
	return s.vision.Analyze(ctx, imageURL, prompt, languages)
}

// GetHistory returns saved translations, newest first.
func (s *Service) GetHistory() ([]types.HistoryEntry, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List()
}

// RemoveHistory deletes one saved translation.
func (s *Service) RemoveHistory(id string) error {
	if s.history == nil {
		return fmt.Errorf("remove history %s: history unavailable", id)
	}
	return s.history.Remove(id)
}

// ClearHistory deletes all saved translations.
func (s *Service) ClearHistory() error {
	if s.history == nil {
		return nil
	}
	return s.history.Clear()
}

func (s *Service) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.Backend.TimeoutDuration())
}
