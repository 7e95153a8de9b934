package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/polyvox/dispatch"
	"go.aimuz.me/polyvox/history"
	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/lang"
	"go.aimuz.me/polyvox/playback"
)

const (
	wait = time.Second
	tick = 5 * time.Millisecond
)

func TestTranslateText(t *testing.T) {
	tr := &fakeTranslator{answers: map[string]string{"hi": "नमस्ते दुनिया", "es": "hola mundo"}}
	s := New(Deps{Translator: tr}, Options{Settings: settings("en", "hi", "es")})
	defer s.Close()

	s.SetInputText("hello world")
	s.TranslateText()

	st := s.Snapshot()
	assert.Equal(t, []string{"नमस्ते दुनिया", "hola mundo"}, outputTexts(st))
	assert.False(t, st.IsTranslating)
	assert.Empty(t, st.TranslationError)
	assert.Empty(t, st.DetectedLanguage)
	assert.Equal(t, []types.TranslateRequest{{Text: "hello world", InputLang: "en", OutputLangs: []string{"hi", "es"}}}, tr.requests())
}

func TestTranslateTextMissingLanguage(t *testing.T) {
	tr := &fakeTranslator{answers: map[string]string{"hi": "नमस्ते"}, detect: "en"}
	s := New(Deps{Translator: tr}, Options{Settings: settings("auto", "hi", "es")})
	defer s.Close()

	s.SetInputText("hello")
	s.TranslateText()

	st := s.Snapshot()
	assert.Equal(t, []string{"नमस्ते", types.NotAvailable}, outputTexts(st))
	assert.Equal(t, "en", st.DetectedLanguage)
}

func TestTranslateTextError(t *testing.T) {
	tr := &fakeTranslator{err: errors.New("upstream down")}
	s := New(Deps{Translator: tr}, Options{Settings: settings("en", "es")})
	defer s.Close()

	s.SetInputText("hello")
	s.TranslateText()

	st := s.Snapshot()
	assert.Contains(t, st.TranslationError, "upstream down")
	assert.False(t, st.IsTranslating)

	tr.mu.Lock()
	tr.err = nil
	tr.answers = map[string]string{"es": "hola"}
	tr.mu.Unlock()

	s.TranslateText()
	assert.Empty(t, s.Snapshot().TranslationError, "a new attempt clears the error")
}

func TestGrammarCorrection(t *testing.T) {
	tests := []struct {
		name      string
		grammar   *fakeGrammar
		wantInput string
	}{
		{"corrected", &fakeGrammar{fix: map[string]string{"i is here": "I am here."}}, "I am here."},
		{"fail open", &fakeGrammar{err: errors.New("boom")}, "i is here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTranslator{answers: map[string]string{"es": "estoy aquí"}}
			st := settings("en", "es")
			st.GrammarCorrectionEnabled = nil
			s := New(Deps{Translator: tr, Grammar: tt.grammar}, Options{Settings: st})
			defer s.Close()

			s.SetInputText("i is here")
			s.TranslateText()

			assert.Equal(t, tt.wantInput, s.Snapshot().InputText)
			assert.Equal(t, []string{tt.wantInput}, tr.texts())
			assert.False(t, s.Snapshot().IsCorrectingGrammar)
		})
	}
}

func TestDebounceCoalescesTyping(t *testing.T) {
	tr := &fakeTranslator{answers: map[string]string{"es": "hola"}}
	st := settings("en", "es")
	st.AutoTranslate = true
	s := New(Deps{Translator: tr}, Options{Debounce: 50 * time.Millisecond, Settings: st})
	defer s.Close()

	for _, text := range []string{"h", "he", "hel", "hell", "hello"} {
		s.SetInputText(text)
	}

	require.Eventually(t, func() bool { return len(tr.requests()) == 1 }, wait, tick)
	require.Never(t, func() bool { return len(tr.requests()) > 1 }, 200*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, []string{"hello"}, tr.texts())
	require.Eventually(t, func() bool { return s.Snapshot().OutputLanguages[0].Text == "hola" }, wait, tick)
}

func TestStaleRunDiscarded(t *testing.T) {
	tr := &fakeTranslator{gates: map[string]chan map[string]string{
		"one": make(chan map[string]string),
		"two": make(chan map[string]string),
	}}
	s := New(Deps{Translator: tr}, Options{Settings: settings("en", "es")})
	defer s.Close()

	go s.TranslateRealtime("one")
	require.Eventually(t, func() bool { return len(tr.requests()) == 1 }, wait, tick)

	done := make(chan struct{})
	go func() {
		s.TranslateRealtime("two")
		close(done)
	}()
	require.Eventually(t, func() bool { return len(tr.requests()) == 2 }, wait, tick)

	tr.gates["two"] <- map[string]string{"es": "dos"}
	<-done
	assert.Equal(t, "dos", s.Snapshot().OutputLanguages[0].Text)

	tr.gates["one"] <- map[string]string{"es": "uno"}
	require.Never(t, func() bool {
		st := s.Snapshot()
		return st.OutputLanguages[0].Text != "dos" || st.TranslationError != ""
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.False(t, s.Snapshot().IsTranslating)
}

func TestHandleTranslate(t *testing.T) {
	gate := make(chan map[string]string)
	tr := &fakeTranslator{gates: map[string]chan map[string]string{"hello": gate}}
	s := New(Deps{Translator: tr}, Options{Settings: settings("en", "es")})
	defer s.Close()

	assert.ErrorIs(t, s.HandleTranslate(), dispatch.ErrEmptyText)

	s.SetInputText("hello")
	require.NoError(t, s.HandleTranslate())
	require.Eventually(t, func() bool { return len(tr.requests()) == 1 }, wait, tick)
	assert.True(t, s.Snapshot().IsTranslating)
	assert.ErrorIs(t, s.HandleTranslate(), ErrBusy)

	gate <- map[string]string{"es": "hola"}
	require.Eventually(t, func() bool {
		st := s.Snapshot()
		return !st.IsTranslating && st.OutputLanguages[0].Text == "hola"
	}, wait, tick)
}

func TestStreamingToggle(t *testing.T) {
	str := &fakeStreamer{}
	st := settings("en", "hi", "es")
	st.StreamingMode = true
	s := New(Deps{Streamer: str}, Options{Settings: st})
	defer s.Close()

	s.SetInputText("hello")
	require.NoError(t, s.HandleTranslate())
	require.Eventually(t, func() bool { return str.count() == 1 && s.Snapshot().IsStreaming }, wait, tick)

	ch := str.channel(t, 0)
	ch <- types.StreamChunk{Language: "hi", Delta: "नम"}
	require.Eventually(t, func() bool { return s.Snapshot().OutputLanguages[0].Text == "नम" }, wait, tick)

	require.NoError(t, s.HandleTranslate(), "second press stops the stream")
	assert.False(t, s.Snapshot().IsStreaming)

	ch <- types.StreamChunk{Language: "hi", Delta: "स्ते"}
	require.Never(t, func() bool { return s.Snapshot().OutputLanguages[0].Text != "नम" }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestStreamingCompletes(t *testing.T) {
	hist, err := history.Open("", 0)
	require.NoError(t, err)
	defer hist.Close()

	str := &fakeStreamer{}
	synth := &fakeSynth{}
	st := settings("en", "es", "hi")
	st.StreamingMode = true
	st.AutoPlay = true
	s := New(Deps{Streamer: str, Synthesizer: synth, History: hist}, Options{AutoPlayDelay: 20 * time.Millisecond, Settings: st})
	defer s.Close()

	s.SetInputText("hello")
	s.StartStreaming()
	require.Eventually(t, func() bool { return str.count() == 1 }, wait, tick)

	ch := str.channel(t, 0)
	ch <- types.StreamChunk{Language: "es", Delta: "ho"}
	ch <- types.StreamChunk{Language: "es", Delta: "la"}
	ch <- types.StreamChunk{Language: "es", Done: true}
	close(ch)

	require.Eventually(t, func() bool {
		entries, err := hist.List()
		return err == nil && len(entries) == 1
	}, wait, tick)
	entries, _ := hist.List()
	assert.Equal(t, "hello", entries[0].InputText)

	require.Eventually(t, func() bool { return len(synth.utterances()) == 1 }, wait, tick)
	assert.Equal(t, "hola", synth.utterances()[0].Text)

	got := s.Snapshot()
	assert.False(t, got.IsStreaming)
	assert.Equal(t, []string{"hola", types.NotAvailable}, outputTexts(got))
	require.Eventually(t, func() bool { return s.Snapshot().PlayingIndex == 0 }, wait, tick)
}

func TestResetStopsEverything(t *testing.T) {
	rec := &fakeRecognizer{}
	synth := &fakeSynth{}
	str := &fakeStreamer{}
	st := settings("en", "es")
	s := New(Deps{Streamer: str, Recognizer: rec, Synthesizer: synth}, Options{Settings: st})
	defer s.Close()

	require.NoError(t, s.StartListening())
	rec.interim("hello")
	require.Eventually(t, func() bool { return s.Snapshot().InputText == "hello" }, wait, tick)

	s.StartStreaming()
	require.Eventually(t, func() bool { return str.count() == 1 }, wait, tick)
	ch := str.channel(t, 0)
	ch <- types.StreamChunk{Language: "es", Delta: "ho"}
	require.Eventually(t, func() bool { return s.Snapshot().OutputLanguages[0].Text == "ho" }, wait, tick)

	require.NoError(t, s.PlayAudio(0))
	require.Eventually(t, func() bool { return s.Snapshot().IsSpeaking }, wait, tick)

	before := s.Snapshot()
	require.True(t, before.IsListening && before.IsStreaming && before.IsSpeaking)

	s.Reset()

	after := s.Snapshot()
	assert.False(t, after.IsListening)
	assert.False(t, after.IsStreaming)
	assert.False(t, after.IsSpeaking)
	assert.Equal(t, playback.NoSlot, after.PlayingIndex)
	assert.Empty(t, after.InputText)
	assert.Empty(t, after.InterimTranscript)
	assert.Equal(t, []string{""}, outputTexts(after))

	ch <- types.StreamChunk{Language: "es", Delta: "la"}
	require.Never(t, func() bool { return s.Snapshot().OutputLanguages[0].Text != "" }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestResetCancelsTimers(t *testing.T) {
	tr := &fakeTranslator{answers: map[string]string{"es": "hola"}}
	synth := &fakeSynth{}
	st := settings("en", "es")
	st.AutoPlay = true
	st.AutoTranslate = true
	s := New(Deps{Translator: tr, Synthesizer: synth}, Options{
		Debounce:      30 * time.Millisecond,
		AutoPlayDelay: 30 * time.Millisecond,
		Settings:      st,
	})
	defer s.Close()

	s.SetAutoTranslate(false)
	s.SetInputText("hello")
	s.TranslateText()
	s.SetAutoTranslate(true)
	s.SetInputText("hello again")
	s.Reset()

	require.Never(t, func() bool {
		return len(synth.utterances()) > 0 || len(tr.requests()) > 1
	}, 150*time.Millisecond, 10*time.Millisecond)
}

func TestOutputLanguages(t *testing.T) {
	s := New(Deps{}, Options{Settings: settings("en", "hi", "es")})
	defer s.Close()

	code, err := s.AddOutputLanguage()
	require.NoError(t, err)
	assert.Equal(t, "en", code)

	err = s.UpdateOutputLanguage(0, "es")
	assert.ErrorIs(t, err, ErrDuplicateLanguage)
	require.NoError(t, s.UpdateOutputLanguage(0, "fr"))
	assert.ErrorIs(t, s.UpdateOutputLanguage(9, "de"), ErrIndexOutOfRange)
	assert.Error(t, s.UpdateOutputLanguage(0, "auto"))

	require.NoError(t, s.RemoveOutputLanguage(1))
	assert.Equal(t, []string{"fr", "en"}, s.Settings().OutputLanguages)

	require.NoError(t, s.RemoveOutputLanguage(1))
	assert.ErrorIs(t, s.RemoveOutputLanguage(0), ErrLastOutput)
	assert.ErrorIs(t, s.RemoveOutputLanguage(-1), ErrIndexOutOfRange)
}

func TestSwapLanguages(t *testing.T) {
	tr := &fakeTranslator{answers: map[string]string{"es": "Hola"}}
	s := New(Deps{Translator: tr}, Options{Settings: settings("en", "es")})
	defer s.Close()

	s.SetInputText("Hello")
	s.TranslateText()
	require.True(t, s.SwapLanguages())

	st := s.Snapshot()
	assert.Equal(t, "es", st.InputLanguage)
	assert.Equal(t, "Hola", st.InputText)
	assert.Equal(t, "en", st.OutputLanguages[0].Code)
	assert.Equal(t, "Hello", st.OutputLanguages[0].Text)

	require.NoError(t, s.SetInputLanguage("auto"))
	assert.False(t, s.SwapLanguages())
	assert.Equal(t, "Hola", s.Snapshot().InputText)
}

func TestTranslateWithoutTranslator(t *testing.T) {
	s := New(Deps{}, Options{Settings: settings("en", "es")})
	defer s.Close()

	s.SetInputText("hello")
	s.TranslateText()
	got := s.Snapshot()
	assert.False(t, got.IsTranslating)
	assert.Contains(t, got.TranslationError, dispatch.ErrNoTranslator.Error())
}

func TestSwapLanguagesKeepsCodesUnique(t *testing.T) {
	tr := &fakeTranslator{answers: map[string]string{"es": "Hola", "en": "Hello", "fr": "Salut"}}
	s := New(Deps{Translator: tr}, Options{Settings: settings("fr", "es", "fr")})
	defer s.Close()

	s.SetInputText("Salut")
	s.TranslateText()
	require.True(t, s.SwapLanguages())

	st := s.Snapshot()
	assert.Equal(t, "es", st.InputLanguage)
	assert.Equal(t, []string{"fr", "es"}, st.codes())

	s.TranslateText()
	assert.Equal(t, []string{"Salut", "Hola"}, outputTexts(s.Snapshot()))
}

func TestPlayAudio(t *testing.T) {
	tr := &fakeTranslator{answers: map[string]string{"es": "hola"}}
	synth := &fakeSynth{}
	s := New(Deps{Translator: tr, Synthesizer: synth}, Options{Settings: settings("en", "es")})
	defer s.Close()

	s.SetInputText("hello")
	s.TranslateText()

	require.NoError(t, s.PlayAudio(0))
	require.Eventually(t, func() bool {
		st := s.Snapshot()
		return st.IsSpeaking && st.PlayingIndex == 0
	}, wait, tick)

	require.NoError(t, s.PlayAudio(0), "same slot toggles off")
	require.Eventually(t, func() bool {
		st := s.Snapshot()
		return !st.IsSpeaking && st.PlayingIndex == playback.NoSlot
	}, wait, tick)
	assert.Len(t, synth.utterances(), 1)
	assert.ErrorIs(t, s.PlayAudio(3), ErrIndexOutOfRange)
}

func TestPlayAudioUnsupported(t *testing.T) {
	tr := &fakeTranslator{answers: map[string]string{"es": "hola"}}
	s := New(Deps{Translator: tr}, Options{Settings: settings("en", "es")})
	defer s.Close()

	s.SetInputText("hello")
	s.TranslateText()

	assert.ErrorIs(t, s.PlayAudio(0), playback.ErrUnsupported)
	st := s.Snapshot()
	assert.False(t, st.SynthesisSupported)
	assert.Equal(t, playback.ErrUnsupported.Error(), st.SpeechError)
}

func TestCopyToClipboard(t *testing.T) {
	tr := &fakeTranslator{answers: map[string]string{"es": "hola"}}
	cb := &fakeClipboard{}
	s := New(Deps{Translator: tr, Clipboard: cb}, Options{Settings: settings("en", "es")})
	defer s.Close()

	s.SetInputText("hello")
	s.TranslateText()
	require.NoError(t, s.CopyToClipboard(0))
	assert.Equal(t, "hola", cb.text)

	cb.fail = true
	assert.Error(t, s.CopyToClipboard(0))
	assert.ErrorIs(t, s.CopyToClipboard(1), ErrIndexOutOfRange)

	assert.ErrorIs(t, New(Deps{}, Options{}).CopyToClipboard(0), ErrNoClipboard)
}

func TestSettings(t *testing.T) {
	on := true
	s := New(Deps{}, Options{Settings: &types.Settings{
		InputLanguage:            "hi",
		OutputLanguages:          []string{"en", "en", "bogus!", "ta"},
		AutoPlay:                 true,
		GrammarCorrectionEnabled: &on,
		SpeechSpeed:              50,
	}})
	defer s.Close()

	got := s.Settings()
	assert.Equal(t, "hi", got.InputLanguage)
	assert.Equal(t, []string{"en", "ta"}, got.OutputLanguages)
	assert.True(t, got.AutoPlay)
	assert.Equal(t, lang.MaxSpeed, got.SpeechSpeed)

	d := New(Deps{}, Options{}).Snapshot()
	assert.Equal(t, types.AutoDetect, d.InputLanguage)
	assert.Equal(t, lang.DefaultOutputs, []string{d.OutputLanguages[0].Code, d.OutputLanguages[1].Code, d.OutputLanguages[2].Code})
	assert.True(t, d.GrammarCorrectionEnabled)
	assert.Equal(t, playback.DefaultRate, d.SpeechSpeed)
}

func TestSubscribe(t *testing.T) {
	s := New(Deps{}, Options{})
	defer s.Close()

	got := make(chan State, 16)
	cancel := s.Subscribe(func(st State) {
		select {
		case got <- st:
		default:
		}
	})
	defer cancel()

	s.SetInputText("hello")
	require.Eventually(t, func() bool {
		for {
			select {
			case st := <-got:
				if st.InputText == "hello" {
					return true
				}
			default:
				return false
			}
		}
	}, wait, tick)
}
