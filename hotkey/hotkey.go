// Package hotkey registers a global keyboard shortcut.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// DefaultRepeat is the window in which further presses of the combination
// are treated as key repeat and ignored.
const DefaultRepeat = 300 * time.Millisecond

var aliases = map[string]string{
	"control": "ctrl",
	"option":  "alt",
	"command": "cmd",
	"meta":    "cmd",
	"super":   "cmd",
	"return":  "enter",
	"esc":     "escape",
}

// ParseKeys turns "Ctrl+Shift+Space" into gohook key names. Every key must
// be known to the hook tables.
func ParseKeys(combo string) ([]string, error) {
	var keys []string
	for part := range strings.SplitSeq(combo, "+") {
		k := strings.ToLower(strings.TrimSpace(part))
		if k == "" {
			continue
		}
		if a, ok := aliases[k]; ok {
			k = a
		}
		if _, ok := hook.Keycode[k]; !ok {
			return nil, fmt.Errorf("unknown key %q", part)
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, errors.New("empty key combination")
	}
	return keys, nil
}

// Manager owns the global hook. Only one Manager may run at a time since
// gohook keeps process-wide state.
type Manager struct {
	keys     []string
	onPress  func()
	repeat   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	last     time.Time
	running  bool
	finished chan struct{}
}

// NewManager returns a Manager that calls onPress when keys go down
// together.
func NewManager(keys []string, onPress func()) *Manager {
	return &Manager{
		keys:    keys,
		onPress: onPress,
		repeat:  DefaultRepeat,
		now:     time.Now,
	}
}

// Start installs the hook and processes events in the background.
func (m *Manager) Start() error {
	for _, k := range m.keys {
		if _, ok := hook.Keycode[k]; !ok {
			return fmt.Errorf("unknown key %q", k)
		}
	}
	if len(m.keys) == 0 {
		return errors.New("empty key combination")
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.finished = make(chan struct{})
	done := m.finished
	m.mu.Unlock()

	hook.Register(hook.KeyDown, m.keys, func(hook.Event) { m.press() })

	go func() {
		defer close(done)
		s := hook.Start()
		<-hook.Process(s)
		slog.Debug("hotkey loop exited")
	}()
	slog.Info("hotkey registered", "keys", strings.Join(m.keys, "+"))
	return nil
}

// Stop removes the hook and waits for the event loop to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	done := m.finished
	m.mu.Unlock()

	hook.End()
	<-done
}

// press filters key repeat before calling onPress.
func (m *Manager) press() {
	m.mu.Lock()
	now := m.now()
	if !m.last.IsZero() && now.Sub(m.last) < m.repeat {
		m.mu.Unlock()
		return
	}
	m.last = now
	m.mu.Unlock()

	if m.onPress != nil {
		m.onPress()
	}
}
