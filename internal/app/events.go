// Package app provides the core application service for Wails bindings.
package app

// Event names for frontend communication.
const (
	EventSessionState     = "session-state"
	EventRecognitionStart = "recognition-start"
	EventRecognitionStop  = "recognition-stop"
	EventAudioStart       = "audio-start"
	EventAudioStop        = "audio-stop"
	EventSpeak            = "speak"
	EventSpeakCancel      = "speak-cancel"
	EventSetClipboard     = "set-clipboard-text"
	EventBackendError     = "backend-error"
)

// RecognitionStart asks the webview to start its speech recognizer.
type RecognitionStart struct {
	Locale         string `json:"locale"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interimResults"`
}

// Capabilities are the speech features the webview reports at startup.
type Capabilities struct {
	Recognition bool `json:"recognition"`
	Synthesis   bool `json:"synthesis"`
}
