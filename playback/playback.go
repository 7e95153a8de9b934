// Package playback speaks one output at a time through a Synthesizer.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.aimuz.me/polyvox/lang"
)

// NoSlot marks playback that is not tied to an output slot.
const NoSlot = -1

// Default speech parameters.
const (
	DefaultRate   = 0.8
	DefaultPitch  = 1.0
	DefaultVolume = 1.0
)

// stopWait bounds how long Stop waits for a synthesizer to honour
// cancellation.
const stopWait = 2 * time.Second

var (
	ErrUnsupported = errors.New("text-to-speech is not supported")
	ErrUnavailable = errors.New("audio download is not available")
)

// Voice is a synthesizer voice.
type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default,omitempty"`
}

// Utterance is one synthesis request.
type Utterance struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Lang   string  `json:"lang"`
	Voice  string  `json:"voice,omitempty"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// Synthesizer is a speech synthesis capability. Speak blocks until the
// utterance finishes, fails, or ctx is cancelled.
type Synthesizer interface {
	Voices() []Voice
	Speak(ctx context.Context, u Utterance) error
}

// Policy decides what Play does while something is speaking.
type Policy int

const (
	// Toggle stops the current utterance; replaying the same slot leaves
	// playback off.
	Toggle Policy = iota
	// Suppress ignores the request so an automated response is not cut off.
	Suppress
)

// Options configures a Coordinator.
type Options struct {
	Rate, Pitch, Volume float64
	// OnChange observes the playing indicator. It is called without
	// internal locks held.
	OnChange func(speaking bool, slot int)
	// Remote renders downloadable audio server-side.
	Remote Downloader
}

type utterance struct {
	id     uint64
	slot   int
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator enforces a single active utterance.
type Coordinator struct {
	synth    Synthesizer
	remote   Downloader
	onChange func(bool, int)
	now      func() time.Time

	// playMu serializes Play and Stop so a new utterance never starts
	// before the previous one has ended.
	playMu sync.Mutex

	mu     sync.Mutex
	rate   float64
	pitch  float64
	volume float64
	active *utterance
	seq    uint64
	err    error
}

// New creates a Coordinator. synth may be nil when synthesis is
// unavailable.
func New(synth Synthesizer, opts Options) *Coordinator {
	c := &Coordinator{
		synth:    synth,
		remote:   opts.Remote,
		onChange: opts.OnChange,
		now:      time.Now,
		rate:     DefaultRate,
		pitch:    DefaultPitch,
		volume:   DefaultVolume,
	}
	if opts.Rate != 0 {
		c.SetRate(opts.Rate)
	}
	if opts.Pitch != 0 {
		c.SetPitch(opts.Pitch)
	}
	if opts.Volume != 0 {
		c.SetVolume(opts.Volume)
	}
	return c
}

// Supported reports whether a synthesizer is available.
func (c *Coordinator) Supported() bool { return c.synth != nil }

// SetRate sets the speaking rate, clamped to [0.1, 10].
func (c *Coordinator) SetRate(v float64) {
	c.mu.Lock()
	c.rate = lang.ClampSpeed(v)
	c.mu.Unlock()
}

// SetPitch sets the pitch, clamped to [0, 2].
func (c *Coordinator) SetPitch(v float64) {
	c.mu.Lock()
	c.pitch = min(max(v, 0), 2)
	c.mu.Unlock()
}

// SetVolume sets the volume, clamped to [0, 1].
func (c *Coordinator) SetVolume(v float64) {
	c.mu.Lock()
	c.volume = min(max(v, 0), 1)
	c.mu.Unlock()
}

// Rate returns the speaking rate.
func (c *Coordinator) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Speaking reports whether an utterance is active.
func (c *Coordinator) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// PlayingSlot returns the slot being spoken, or NoSlot.
func (c *Coordinator) PlayingSlot() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return NoSlot
	}
	return c.active.slot
}

// Err returns the last synthesis error. It is cleared by the next Play.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Play speaks text in the language code for slot using the Toggle policy.
func (c *Coordinator) Play(text, code string, slot int) error {
	return c.PlayWith(Toggle, text, code, slot)
}

// PlayWith speaks text applying policy when something is already
// speaking. Blank text is ignored.
func (c *Coordinator) PlayWith(policy Policy, text, code string, slot int) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.synth == nil {
		c.mu.Lock()
		c.err = ErrUnsupported
		c.mu.Unlock()
		return ErrUnsupported
	}

	c.playMu.Lock()
	defer c.playMu.Unlock()

	c.mu.Lock()
	cur := c.active
	c.mu.Unlock()

	if cur != nil {
		if policy == Suppress {
			slog.Debug("playback suppressed while speaking", "slot", slot)
			return nil
		}
		c.stopActive(cur)
		if slot != NoSlot && cur.slot == slot {
			return nil
		}
	}

	voice, locale := c.voiceFor(code)

	c.mu.Lock()
	c.seq++
	ctx, cancel := context.WithCancel(context.Background())
	u := &utterance{id: c.seq, slot: slot, cancel: cancel, done: make(chan struct{})}
	req := Utterance{
		ID:     fmt.Sprintf("utt-%d", u.id),
		Text:   text,
		Lang:   locale,
		Voice:  voice.Name,
		Rate:   c.rate,
		Pitch:  c.pitch,
		Volume: c.volume,
	}
	c.active = u
	c.err = nil
	c.mu.Unlock()

	c.notify(true, slot)
	go func() {
		err := c.synth.Speak(ctx, req)
		c.finish(u, err)
	}()
	return nil
}

// Stop ends the active utterance. It is a no-op when nothing is speaking.
func (c *Coordinator) Stop() {
	c.playMu.Lock()
	defer c.playMu.Unlock()

	c.mu.Lock()
	cur := c.active
	c.mu.Unlock()
	if cur != nil {
		c.stopActive(cur)
	}
}

// stopActive clears the indicator for cur, cancels it and waits for the
// synthesizer to return.
func (c *Coordinator) stopActive(cur *utterance) {
	c.mu.Lock()
	cleared := c.active == cur
	if cleared {
		c.active = nil
	}
	c.mu.Unlock()

	if cleared {
		c.notify(false, NoSlot)
	}
	cur.cancel()

	select {
	case <-cur.done:
	case <-time.After(stopWait):
		slog.Warn("synthesizer ignored cancellation", "utterance", cur.id)
	}
}

func (c *Coordinator) finish(u *utterance, err error) {
	defer close(u.done)
	defer u.cancel()

	c.mu.Lock()
	cleared := c.active == u
	if cleared {
		c.active = nil
		if err != nil && !errors.Is(err, context.Canceled) {
			c.err = fmt.Errorf("speech synthesis: %w", err)
		}
	}
	c.mu.Unlock()

	if cleared {
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("speech synthesis failed", "error", err)
		}
		c.notify(false, NoSlot)
	}
}

func (c *Coordinator) notify(speaking bool, slot int) {
	if c.onChange != nil {
		c.onChange(speaking, slot)
	}
}
