package realtime

import (
	"errors"
	"sync"
)

// Feed is an AudioSource for audio captured elsewhere, such as the
// webview. Pushed samples are cut into 20 ms frames.
type Feed struct {
	mu      sync.Mutex
	handler func([]float32)
	pending []float32
}

// Start implements AudioSource.
func (f *Feed) Start(handler func(samples []float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handler != nil {
		return errors.New("audio feed already started")
	}
	f.handler = handler
	f.pending = f.pending[:0]
	return nil
}

// Stop implements AudioSource.
func (f *Feed) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = nil
	f.pending = nil
	return nil
}

// Active reports whether a consumer is attached.
func (f *Feed) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

// Push appends interleaved stereo samples. It returns false when no
// consumer is attached.
func (f *Feed) Push(samples []float32) bool {
	f.mu.Lock()
	h := f.handler
	if h == nil {
		f.mu.Unlock()
		return false
	}
	f.pending = append(f.pending, samples...)
	var frames [][]float32
	for len(f.pending) >= FrameSamples {
		frame := make([]float32, FrameSamples)
		copy(frame, f.pending[:FrameSamples])
		frames = append(frames, frame)
		f.pending = f.pending[FrameSamples:]
	}
	f.mu.Unlock()

	for _, frame := range frames {
		h(frame)
	}
	return true
}

// PushMono duplicates mono samples into both channels.
func (f *Feed) PushMono(samples []float32) bool {
	stereo := make([]float32, 0, len(samples)*Channels)
	for _, s := range samples {
		stereo = append(stereo, s, s)
	}
	return f.Push(stereo)
}
