package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultAutoStop is the silence duration after which capture stops.
const DefaultAutoStop = 3 * time.Second

// Handlers receive capture notifications. All are optional. They are
// called without internal locks held, so they may call back into Capture.
type Handlers struct {
	OnStart func()
	// OnEnd fires when capture ends by Stop or because the recognizer
	// ended on its own.
	OnEnd func()
	// OnAutoStop fires instead of OnEnd when capture stops on silence.
	OnAutoStop func()
	// OnFinal receives the new final segment and the whole transcript.
	OnFinal   func(segment, transcript string)
	OnInterim func(interim string)
	OnError   func(err error)
}

// Options configures a Capture.
type Options struct {
	AutoStop time.Duration // zero uses DefaultAutoStop
}

// Capture adapts a Recognizer for the session. Every Start opens a new
// capture session; events from older sessions are ignored.
type Capture struct {
	rec      Recognizer
	handlers Handlers
	autoStop time.Duration

	mu         sync.Mutex
	listening  bool
	session    uint64
	cancel     context.CancelFunc
	transcript string
	interim    string
	timer      *time.Timer
	timerGen   uint64
	err        error
}

// New creates a Capture. rec may be nil, in which case Start always fails
// with ErrUnsupported.
func New(rec Recognizer, h Handlers, opts Options) *Capture {
	d := opts.AutoStop
	if d <= 0 {
		d = DefaultAutoStop
	}
	return &Capture{rec: rec, handlers: h, autoStop: d}
}

// Supported reports whether a recognizer is available.
func (c *Capture) Supported() bool { return c.rec != nil }

// Start begins listening in locale. Starting while listening is a no-op.
// Failures are reported through OnError as well as returned.
func (c *Capture) Start(ctx context.Context, locale string) error {
	if c.rec == nil {
		c.setErr(ErrUnsupported)
		c.emitError(ErrUnsupported)
		return ErrUnsupported
	}

	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return nil
	}
	c.session++
	id := c.session
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.listening = true
	c.err = nil
	c.mu.Unlock()

	events, err := c.rec.Start(ctx, locale)
	if err != nil {
		cancel()
		c.mu.Lock()
		if c.session == id {
			c.listening = false
			c.cancel = nil
			c.err = err
		}
		c.mu.Unlock()
		c.emitError(err)
		return fmt.Errorf("start recognition: %w", err)
	}

	slog.Debug("speech capture started", "session", id, "locale", locale)
	if c.handlers.OnStart != nil {
		c.handlers.OnStart()
	}
	go c.loop(ctx, id, events)
	return nil
}

// Stop ends listening and fires OnEnd. Stopping when not listening is a
// no-op.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return nil
	}
	cancel := c.endLocked()
	c.mu.Unlock()

	cancel()
	err := c.rec.Stop()
	if c.handlers.OnEnd != nil {
		c.handlers.OnEnd()
	}
	if err != nil {
		return fmt.Errorf("stop recognition: %w", err)
	}
	return nil
}

// Reset clears both transcript buffers and cancels the silence timer. It
// does not stop an active capture.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = ""
	c.interim = ""
	c.stopTimerLocked()
}

// Listening reports whether a capture session is active.
func (c *Capture) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Transcript returns the accumulated final transcript.
func (c *Capture) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// Interim returns the current interim segment.
func (c *Capture) Interim() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interim
}

// Err returns the last recognition error. It is cleared by Start.
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Capture) loop(ctx context.Context, id uint64, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.handleEnd(id)
				return
			}
			switch ev.Kind {
			case EventResult:
				c.handleResult(id, ev)
			case EventError:
				c.handleError(id, ev)
				return
			case EventEnd:
				c.handleEnd(id)
				return
			}
		}
	}
}

func (c *Capture) handleResult(id uint64, ev Event) {
	final, interim := ev.Partition()
	hasFinal := strings.TrimSpace(final) != ""
	hasInterim := strings.TrimSpace(interim) != ""

	c.mu.Lock()
	if c.session != id || !c.listening {
		c.mu.Unlock()
		return
	}
	if hasFinal || hasInterim {
		c.armTimerLocked(id)
	}
	if hasFinal {
		c.transcript += final
		c.interim = ""
	}
	if hasInterim {
		c.interim = interim
	}
	transcript := c.transcript
	c.mu.Unlock()

	if hasFinal && c.handlers.OnFinal != nil {
		c.handlers.OnFinal(final, transcript)
	}
	if hasInterim && c.handlers.OnInterim != nil {
		c.handlers.OnInterim(interim)
	}
}

func (c *Capture) handleError(id uint64, ev Event) {
	err := ErrorFromCode(ev.Code)
	if ev.Message != "" {
		err = fmt.Errorf("%w: %s", err, ev.Message)
	}

	c.mu.Lock()
	if c.session != id || !c.listening {
		c.mu.Unlock()
		return
	}
	cancel := c.endLocked()
	c.err = err
	c.mu.Unlock()

	cancel()
	if stopErr := c.rec.Stop(); stopErr != nil {
		slog.Debug("stop recognizer after error", "error", stopErr)
	}
	slog.Warn("speech recognition failed", "code", ev.Code, "error", err)
	c.emitError(err)
}

func (c *Capture) handleEnd(id uint64) {
	c.mu.Lock()
	if c.session != id || !c.listening {
		c.mu.Unlock()
		return
	}
	cancel := c.endLocked()
	c.mu.Unlock()

	cancel()
	if c.handlers.OnEnd != nil {
		c.handlers.OnEnd()
	}
}

func (c *Capture) fireAutoStop(id, gen uint64) {
	c.mu.Lock()
	if c.session != id || c.timerGen != gen || !c.listening {
		c.mu.Unlock()
		return
	}
	cancel := c.endLocked()
	c.mu.Unlock()

	slog.Debug("speech capture auto-stopped on silence", "session", id)
	cancel()
	if err := c.rec.Stop(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("stop recognizer on silence", "error", err)
	}
	if c.handlers.OnAutoStop != nil {
		c.handlers.OnAutoStop()
	}
}

// endLocked leaves the listening state and invalidates the session so
// late events are dropped. The returned cancel must be called unlocked.
func (c *Capture) endLocked() context.CancelFunc {
	c.listening = false
	c.session++
	c.stopTimerLocked()
	cancel := c.cancel
	c.cancel = nil
	if cancel == nil {
		cancel = func() {}
	}
	return cancel
}

func (c *Capture) armTimerLocked(id uint64) {
	c.stopTimerLocked()
	gen := c.timerGen
	c.timer = time.AfterFunc(c.autoStop, func() { c.fireAutoStop(id, gen) })
}

func (c *Capture) stopTimerLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Capture) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Capture) emitError(err error) {
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}
