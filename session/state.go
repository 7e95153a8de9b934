package session

import (
	"slices"

	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/lang"
	"go.aimuz.me/polyvox/playback"
)

// State is a read-only snapshot of the session.
type State struct {
	InputText         string                 `json:"inputText"`
	InputLanguage     string                 `json:"inputLanguage"`
	OutputLanguages   []types.OutputLanguage `json:"outputLanguages"`
	DetectedLanguage  string                 `json:"detectedLanguage,omitempty"`
	Transcript        string                 `json:"transcript"`
	InterimTranscript string                 `json:"interimTranscript"`

	AutoTranslate            bool    `json:"autoTranslate"`
	AutoPlay                 bool    `json:"autoPlay"`
	GrammarCorrectionEnabled bool    `json:"grammarCorrectionEnabled"`
	StreamingMode            bool    `json:"streamingMode"`
	VoiceInteraction         bool    `json:"voiceInteraction"`
	SpeechSpeed              float64 `json:"speechSpeed"`

	IsTranslating       bool `json:"isTranslating"`
	IsCorrectingGrammar bool `json:"isCorrectingGrammar"`
	IsListening         bool `json:"isListening"`
	IsStreaming         bool `json:"isStreaming"`
	IsSpeaking          bool `json:"isSpeaking"`
	PlayingIndex        int  `json:"playingIndex"` // playback.NoSlot when idle

	SpeechSupported    bool `json:"speechSupported"`
	SynthesisSupported bool `json:"synthesisSupported"`

	TranslationError string `json:"translationError,omitempty"`
	SpeechError      string `json:"speechError,omitempty"`
}

// DefaultState is the state of a fresh session.
func DefaultState() State {
	return State{
		InputLanguage:            types.AutoDetect,
		OutputLanguages:          lang.Defaults(),
		GrammarCorrectionEnabled: true,
		SpeechSpeed:              playback.DefaultRate,
		PlayingIndex:             playback.NoSlot,
	}
}

func (s State) clone() State {
	s.OutputLanguages = slices.Clone(s.OutputLanguages)
	return s
}

// codes returns the output language codes in slot order.
func (s *State) codes() []string {
	out := make([]string, len(s.OutputLanguages))
	for i, o := range s.OutputLanguages {
		out[i] = o.Code
	}
	return out
}

func (s *State) clearOutputs() {
	for i := range s.OutputLanguages {
		s.OutputLanguages[i].Text = ""
	}
}

// setOutput writes text into the slot for code. Codes are unique, so at
// most one slot matches.
func (s *State) setOutput(code, text string) {
	for i := range s.OutputLanguages {
		if s.OutputLanguages[i].Code == code {
			s.OutputLanguages[i].Text = text
			return
		}
	}
}

func (s *State) applySettings(st types.Settings) {
	if lang.ValidateCode(st.InputLanguage, true) == nil {
		s.InputLanguage = st.InputLanguage
	}
	var outputs []types.OutputLanguage
	for _, code := range st.OutputLanguages {
		if lang.ValidateCode(code, false) != nil {
			continue
		}
		if slices.ContainsFunc(outputs, func(o types.OutputLanguage) bool { return o.Code == code }) {
			continue
		}
		outputs = append(outputs, lang.Output(code))
	}
	if len(outputs) > 0 {
		s.OutputLanguages = outputs
	}
	s.AutoTranslate = st.AutoTranslate
	s.AutoPlay = st.AutoPlay
	s.StreamingMode = st.StreamingMode
	if st.GrammarCorrectionEnabled != nil {
		s.GrammarCorrectionEnabled = *st.GrammarCorrectionEnabled
	}
	if st.SpeechSpeed > 0 {
		s.SpeechSpeed = lang.ClampSpeed(st.SpeechSpeed)
	}
}

func (s *State) settings() types.Settings {
	grammar := s.GrammarCorrectionEnabled
	return types.Settings{
		InputLanguage:            s.InputLanguage,
		OutputLanguages:          s.codes(),
		AutoTranslate:            s.AutoTranslate,
		AutoPlay:                 s.AutoPlay,
		GrammarCorrectionEnabled: &grammar,
		StreamingMode:            s.StreamingMode,
		SpeechSpeed:              s.SpeechSpeed,
	}
}
