package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/polyvox/internal/types"
)

// fakeSynth speaks until cancelled or finished by the test.
type fakeSynth struct {
	voices []Voice

	mu       sync.Mutex
	active   int
	maxSeen  int
	spoken   []Utterance
	finish   chan error
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{finish: make(chan error)}
}

func (f *fakeSynth) Voices() []Voice { return f.voices }

func (f *fakeSynth) Speak(ctx context.Context, u Utterance) error {
	f.mu.Lock()
	f.active++
	f.maxSeen = max(f.maxSeen, f.active)
	f.spoken = append(f.spoken, u)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-f.finish:
		return err
	}
}

func (f *fakeSynth) utterances() []Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Utterance(nil), f.spoken...)
}

type renderSynth struct {
	*fakeSynth
}

func (r renderSynth) Render(ctx context.Context, u Utterance) ([]byte, error) {
	return []byte("RIFF"), nil
}

type indicator struct {
	mu     sync.Mutex
	events []bool
}

func (i *indicator) onChange(speaking bool, _ int) {
	i.mu.Lock()
	i.events = append(i.events, speaking)
	i.mu.Unlock()
}

func (i *indicator) get() []bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]bool(nil), i.events...)
}

func TestPlayToggleSameSlot(t *testing.T) {
	synth := newFakeSynth()
	var ind indicator
	c := New(synth, Options{OnChange: ind.onChange})

	require.NoError(t, c.Play("hola", "es", 1))
	assert.True(t, c.Speaking())
	assert.Equal(t, 1, c.PlayingSlot())

	require.NoError(t, c.Play("hola", "es", 1))
	assert.False(t, c.Speaking())
	assert.Equal(t, NoSlot, c.PlayingSlot())
	assert.Len(t, synth.utterances(), 1, "toggle must not start a new utterance")
	assert.Equal(t, []bool{true, false}, ind.get())
}

func TestPlayDifferentSlotReplaces(t *testing.T) {
	synth := newFakeSynth()
	c := New(synth, Options{})

	require.NoError(t, c.Play("नमस्ते", "hi", 0))
	require.NoError(t, c.Play("hola", "es", 1))
	require.NoError(t, c.Play("bonjour", "fr", 2))

	assert.Equal(t, 2, c.PlayingSlot())
	require.Eventually(t, func() bool { return len(synth.utterances()) == 3 }, time.Second, 5*time.Millisecond)

	synth.mu.Lock()
	assert.Equal(t, 1, synth.maxSeen, "two utterances ran at once")
	synth.mu.Unlock()
}

func TestPlaySuppress(t *testing.T) {
	synth := newFakeSynth()
	c := New(synth, Options{})

	require.NoError(t, c.PlayWith(Suppress, "hola", "es", 0))
	require.NoError(t, c.PlayWith(Suppress, "hola", "es", 0))
	require.NoError(t, c.PlayWith(Suppress, "otra", "es", 1))

	assert.True(t, c.Speaking())
	assert.Equal(t, 0, c.PlayingSlot())
	require.Eventually(t, func() bool { return len(synth.utterances()) == 1 }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return len(synth.utterances()) > 1 }, 30*time.Millisecond, 5*time.Millisecond)
	c.Stop()
}

func TestPlayNaturalEnd(t *testing.T) {
	synth := newFakeSynth()
	var ind indicator
	c := New(synth, Options{OnChange: ind.onChange})

	require.NoError(t, c.Play("hola", "es", 0))
	synth.finish <- nil

	require.Eventually(t, func() bool { return !c.Speaking() }, time.Second, 5*time.Millisecond)
	assert.NoError(t, c.Err())

	c.Stop() // idempotent after end
	c.Stop()
	assert.Equal(t, []bool{true, false}, ind.get(), "indicator cleared exactly once")
}

func TestPlayError(t *testing.T) {
	synth := newFakeSynth()
	var ind indicator
	c := New(synth, Options{OnChange: ind.onChange})

	require.NoError(t, c.Play("hola", "es", 0))
	synth.finish <- errors.New("synthesis-failed")

	require.Eventually(t, func() bool { return !c.Speaking() }, time.Second, 5*time.Millisecond)
	assert.ErrorContains(t, c.Err(), "synthesis-failed")
	assert.Equal(t, []bool{true, false}, ind.get())

	// The next play clears the error.
	require.NoError(t, c.Play("hola", "es", 0))
	assert.NoError(t, c.Err())
	c.Stop()
}

func TestPlayStopClearsOnce(t *testing.T) {
	synth := newFakeSynth()
	var ind indicator
	c := New(synth, Options{OnChange: ind.onChange})

	require.NoError(t, c.Play("hola", "es", 0))
	c.Stop()
	c.Stop()

	assert.False(t, c.Speaking())
	assert.Equal(t, []bool{true, false}, ind.get())
	assert.NoError(t, c.Err(), "cancellation is not an error")
}

func TestPlayBlankAndUnsupported(t *testing.T) {
	synth := newFakeSynth()
	c := New(synth, Options{})
	require.NoError(t, c.Play("   ", "es", 0))
	assert.False(t, c.Speaking())

	none := New(nil, Options{})
	assert.False(t, none.Supported())
	assert.ErrorIs(t, none.Play("hola", "es", 0), ErrUnsupported)
	assert.ErrorIs(t, none.Err(), ErrUnsupported)
}

func TestPlayParameters(t *testing.T) {
	synth := newFakeSynth()
	c := New(synth, Options{Rate: 20, Pitch: 5, Volume: -1})

	require.NoError(t, c.Play("hello", "en", NoSlot))
	require.Eventually(t, func() bool { return len(synth.utterances()) == 1 }, time.Second, 5*time.Millisecond)
	u := synth.utterances()[0]
	assert.Equal(t, 10.0, u.Rate)
	assert.Equal(t, 2.0, u.Pitch)
	assert.Equal(t, 0.0, u.Volume)
	assert.Equal(t, "en-IN", u.Lang)
	c.Stop()

	c.SetRate(0.01)
	assert.Equal(t, 0.1, c.Rate())
}

func TestSelectVoice(t *testing.T) {
	voices := []Voice{
		{Name: "Samantha", Lang: "en-US", Default: true},
		{Name: "Lekha", Lang: "hi-IN"},
		{Name: "Rishi", Lang: "en-IN"},
		{Name: "Monica", Lang: "es-ES"},
		{Name: "Broken", Lang: "??"},
	}

	tests := []struct {
		code       string
		wantVoice  string
		wantLocale string
	}{
		{"en", "Rishi", "en-IN"},
		{"hi", "Lekha", "hi-IN"},
		{"es", "Monica", "es-ES"},
		{"ja", "Samantha", "ja-JP"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			v, locale := SelectVoice(voices, tt.code)
			if v.Name != tt.wantVoice || locale != tt.wantLocale {
				t.Errorf("SelectVoice(%q) = (%q, %q), want (%q, %q)", tt.code, v.Name, locale, tt.wantVoice, tt.wantLocale)
			}
		})
	}

	if v, _ := SelectVoice(nil, "en"); v != (Voice{}) {
		t.Errorf("SelectVoice(nil) = %+v, want zero voice", v)
	}
}

type fakeRemote struct {
	data []byte
	err  error
}

func (f fakeRemote) TextToSpeech(ctx context.Context, req types.SpeechRequest) ([]byte, string, error) {
	return f.data, "audio/mpeg", f.err
}

func TestDownload(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)

	remote := New(newFakeSynth(), Options{Remote: fakeRemote{data: []byte{1, 2, 3}}})
	remote.now = func() time.Time { return fixed }
	a, err := remote.Download(context.Background(), "hola", "es")
	require.NoError(t, err)
	assert.Equal(t, "voice-translation-es-1700000000000.mp3", a.Filename)
	assert.Equal(t, "audio/mpeg", a.ContentType)

	fallback := New(renderSynth{newFakeSynth()}, Options{Remote: fakeRemote{err: errors.New("404")}})
	fallback.now = func() time.Time { return fixed }
	a, err = fallback.Download(context.Background(), "hola", "es")
	require.NoError(t, err)
	assert.Equal(t, "voice-translation-es-1700000000000.wav", a.Filename)
	assert.Equal(t, []byte("RIFF"), a.Data)

	_, err = New(newFakeSynth(), Options{}).Download(context.Background(), "hola", "es")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = remote.Download(context.Background(), " ", "es")
	assert.Error(t, err)
}
