// Package speech turns recognizer events into final and interim transcript
// notifications, with auto-stop on silence.
package speech

import (
	"context"
	"errors"
	"fmt"
)

// Recognition errors. Codes follow the Web Speech API error names.
var (
	ErrUnsupported      = errors.New("speech recognition is not supported")
	ErrPermissionDenied = errors.New("microphone access denied")
	ErrNetwork          = errors.New("speech recognition network error")
	ErrNoSpeech         = errors.New("no speech detected")
	ErrAudioCapture     = errors.New("audio capture failed")
)

// ErrorFromCode maps a recognizer error code to an error.
func ErrorFromCode(code string) error {
	switch code {
	case "not-allowed", "service-not-allowed":
		return ErrPermissionDenied
	case "network":
		return ErrNetwork
	case "no-speech":
		return ErrNoSpeech
	case "audio-capture":
		return ErrAudioCapture
	case "":
		return errors.New("speech recognition error")
	default:
		return fmt.Errorf("speech recognition error: %s", code)
	}
}

// EventKind discriminates Event.
type EventKind int

const (
	EventResult EventKind = iota
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Result is one recognition hypothesis.
type Result struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"isFinal"`
}

// Event is emitted by a Recognizer. For EventResult, Results[ResultIndex:]
// are the entries that changed in this batch.
type Event struct {
	Kind        EventKind
	ResultIndex int
	Results     []Result
	Code        string // EventError only
	Message     string
}

// Partition splits the changed results of a batch into one final segment
// (all final entries joined) and one interim segment (the last non-final
// entry).
func (e Event) Partition() (final, interim string) {
	start := max(e.ResultIndex, 0)
	for i := start; i < len(e.Results); i++ {
		r := e.Results[i]
		if r.IsFinal {
			final += r.Transcript
		} else {
			interim = r.Transcript
		}
	}
	return final, interim
}

// Recognizer is a continuous speech recognition capability. Start returns
// a channel of events that is closed when recognition ends. Stop ends the
// current recognition; it is safe to call when not started.
type Recognizer interface {
	Start(ctx context.Context, locale string) (<-chan Event, error)
	Stop() error
}
