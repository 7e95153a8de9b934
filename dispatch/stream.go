package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/lang"
)

// StreamHandler receives the events of one streaming session. Callbacks
// run on the stream goroutine, never after the session is stopped or
// superseded, except OnDone which always runs exactly once.
type StreamHandler struct {
	// OnProgress delivers the accumulated text of a language. Per
	// language the text never gets shorter.
	OnProgress func(language, text string, complete bool)
	OnDetected func(language string)
	// OnComplete fires once every target language is complete.
	OnComplete func(final map[string]string)
	OnError    func(err error)
	OnDone     func()
}

type stream struct {
	gen    uint64
	cancel context.CancelFunc
}

// StartStreaming begins a streaming translation, superseding any active
// one. It returns once the session is registered; events are delivered
// through h.
func (d *Dispatcher) StartStreaming(ctx context.Context, text, source string, targets []string, h StreamHandler) error {
	if d.streamer == nil {
		return ErrNoStreaming
	}
	targets = lo.Uniq(targets)
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if err := lang.ValidateRequest(text, source, targets); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	if d.active != nil {
		d.active.cancel()
	}
	d.gen++
	s := &stream{gen: d.gen, cancel: cancel}
	d.active = s
	d.mu.Unlock()

	req := types.TranslateRequest{Text: text, InputLang: source, OutputLangs: targets, Stream: true}
	go d.run(ctx, s, req, h)
	return nil
}

// StopStreaming cancels the active stream. Partial text already delivered
// stays as it is. Calling it with no active stream is a no-op.
func (d *Dispatcher) StopStreaming() {
	d.mu.Lock()
	s := d.active
	d.active = nil
	d.mu.Unlock()

	if s != nil {
		s.cancel()
	}
}

// Streaming reports whether a stream is active.
func (d *Dispatcher) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

func (d *Dispatcher) current(s *stream) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active == s
}

func (d *Dispatcher) finish(s *stream, h StreamHandler) {
	d.mu.Lock()
	if d.active == s {
		d.active = nil
	}
	d.mu.Unlock()

	s.cancel()
	slog.Debug("translation stream finished", "gen", s.gen)
	if h.OnDone != nil {
		h.OnDone()
	}
}

func (d *Dispatcher) run(ctx context.Context, s *stream, req types.TranslateRequest, h StreamHandler) {
	defer d.finish(s, h)

	// The watchdog cancels the stream when no chunk arrives in time.
	var stalled atomic.Bool
	watchdog := time.AfterFunc(d.idle, func() {
		stalled.Store(true)
		s.cancel()
	})
	defer watchdog.Stop()
	reportStall := func() {
		if stalled.Load() && d.current(s) && h.OnError != nil {
			slog.Warn("translation stream stalled", "gen", s.gen, "idle", d.idle)
			h.OnError(ErrStreamStalled)
		}
	}

	ch, err := d.streamer.TranslateStream(ctx, req)
	if err != nil {
		if stalled.Load() {
			reportStall()
		} else if ctx.Err() == nil && d.current(s) && h.OnError != nil {
			h.OnError(fmt.Errorf("start stream: %w", err))
		}
		return
	}

	acc := newAccumulator(req.OutputLangs)
	for {
		var chunk types.StreamChunk
		var ok bool
		select {
		case <-ctx.Done():
			reportStall()
			return
		case chunk, ok = <-ch:
		}
		if !d.current(s) {
			return
		}
		if !watchdog.Stop() {
			stalled.Store(true)
			reportStall()
			return
		}
		watchdog.Reset(d.idle)

		if !ok {
			// End of stream without an error: whatever is there is final.
			if ctx.Err() != nil {
				return
			}
			for _, code := range acc.pending() {
				text := acc.complete(code)
				emitProgress(h, code, text, true)
			}
			if h.OnComplete != nil {
				h.OnComplete(acc.final())
			}
			return
		}

		if chunk.Error != "" {
			if h.OnError != nil {
				h.OnError(errors.New(chunk.Error))
			}
			return
		}
		if chunk.DetectedLanguage != "" && h.OnDetected != nil {
			h.OnDetected(chunk.DetectedLanguage)
		}

		code, text, done, changed := acc.apply(chunk)
		if changed {
			emitProgress(h, code, text, done)
		}
		if acc.allComplete() {
			if h.OnComplete != nil {
				h.OnComplete(acc.final())
			}
			return
		}
	}
}

func emitProgress(h StreamHandler, code, text string, complete bool) {
	if h.OnProgress != nil {
		h.OnProgress(code, text, complete)
	}
}

// accumulator holds the per-language state of one stream.
type accumulator struct {
	targets []string
	text    map[string]string
	done    map[string]bool
}

func newAccumulator(targets []string) *accumulator {
	return &accumulator{
		targets: targets,
		text:    make(map[string]string, len(targets)),
		done:    make(map[string]bool, len(targets)),
	}
}

// apply folds chunk into the state. Chunks for languages outside the
// target set, or for completed languages, are ignored. A cumulative
// snapshot shorter than the current text is dropped.
func (a *accumulator) apply(chunk types.StreamChunk) (code, text string, done, changed bool) {
	code = chunk.Language
	if code == "" || !slices.Contains(a.targets, code) || a.done[code] {
		return code, "", false, false
	}

	prev := a.text[code]
	next := prev
	switch {
	case chunk.Text != "":
		if len(chunk.Text) >= len(prev) {
			next = chunk.Text
		} else {
			slog.Debug("drop regressing stream snapshot", "language", code)
		}
	case chunk.Delta != "":
		next = prev + chunk.Delta
	}

	if chunk.Done {
		a.text[code] = next
		next = a.complete(code)
		return code, next, true, true
	}

	a.text[code] = next
	return code, next, false, next != prev
}

// complete marks code done and substitutes the sentinel for empty text.
func (a *accumulator) complete(code string) string {
	a.done[code] = true
	if strings.TrimSpace(a.text[code]) == "" {
		a.text[code] = types.NotAvailable
	}
	return a.text[code]
}

func (a *accumulator) pending() []string {
	return lo.Filter(a.targets, func(code string, _ int) bool { return !a.done[code] })
}

func (a *accumulator) allComplete() bool {
	return len(a.pending()) == 0
}

func (a *accumulator) final() map[string]string {
	return maps.Clone(a.text)
}
