// Package clipboard wraps the desktop clipboard.
package clipboard

import "errors"

var (
	ErrWrite = errors.New("write clipboard")
	ErrRead  = errors.New("read clipboard")
)

// Backend is the platform clipboard. The Wails application's Clipboard
// manager satisfies it.
type Backend interface {
	SetText(text string) bool
	Text() (string, bool)
}

// Clipboard reports platform failures as errors.
type Clipboard struct {
	b Backend
}

// New wraps b.
func New(b Backend) *Clipboard {
	return &Clipboard{b: b}
}

// SetText replaces the clipboard contents.
func (c *Clipboard) SetText(text string) error {
	if c.b == nil || !c.b.SetText(text) {
		return ErrWrite
	}
	return nil
}

// GetText returns the current clipboard text.
func (c *Clipboard) GetText() (string, error) {
	if c.b == nil {
		return "", ErrRead
	}
	text, ok := c.b.Text()
	if !ok {
		return "", ErrRead
	}
	return text, nil
}
