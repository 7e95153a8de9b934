// Package app provides the core application service for Wails bindings.
package app

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v3/pkg/application"

	"go.aimuz.me/polyvox/cache"
	"go.aimuz.me/polyvox/clipboard"
	"go.aimuz.me/polyvox/config"
	"go.aimuz.me/polyvox/dictionary"
	"go.aimuz.me/polyvox/history"
	"go.aimuz.me/polyvox/hotkey"
	"go.aimuz.me/polyvox/langdetect"
	"go.aimuz.me/polyvox/session"
	"go.aimuz.me/polyvox/speech"
	"go.aimuz.me/polyvox/speech/realtime"
	"go.aimuz.me/polyvox/vision"
)

// Service provides application functionality bound to Wails.
// This struct focuses on orchestration; business logic lives in sub-components.
type Service struct {
	cfg     *config.Config
	cache   *cache.Cache
	history *history.Store
	hotkey  *hotkey.Manager

	// UI references - set via Init
	app    *application.App
	window application.Window

	session    *session.Session
	backend    *switchable
	dictionary *dictionary.Lookup
	vision     *vision.Analyzer
	clipboard  *clipboard.Clipboard

	webRec  *webRecognizer
	audio   *webAudio
	synth   *webSynth
	unwatch func()
	closing sync.Once

	// Version info (set by caller)
	version string
}

// New creates a new Service. Call Init() after Wails app is created.
func New(version string) *Service {
	return &Service{version: version}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

// Init initializes the service with app and window references.
// Must be called after Wails application is created.
func (s *Service) Init(app *application.App, window application.Window) {
	s.app = app
	s.window = window

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		path, _ := config.Path()
		cfg = config.New(path)
	}
	if err := cfg.ApplyEnv(); err != nil {
		slog.Warn("apply environment", "error", err)
	}

	var clip *clipboard.Clipboard
	if app != nil {
		clip = clipboard.New(app.Clipboard)
	}
	s.setup(cfg, clip)
	s.setupHotkey()
}

// setup wires every component from cfg. It does not touch the UI, so
// tests can call it directly.
func (s *Service) setup(cfg *config.Config, clip *clipboard.Clipboard) {
	s.cfg = cfg
	s.clipboard = clip
	s.setupCache()
	s.setupHistory()

	s.backend = &switchable{}
	s.reloadBackend()
	s.dictionary = dictionary.New(s.backend, s.cache)
	s.vision = vision.New(s.backend, s.cache)

	s.webRec = newWebRecognizer(s.emit)
	s.audio = &webAudio{emit: s.emit}
	s.synth = newWebSynth(s.emit)

	deps := session.Deps{
		Translator:  s.backend,
		Streamer:    s.backend,
		Detector:    langdetect.Detector{},
		Grammar:     s.backend,
		Recognizer:  &recognizerSwitch{pick: s.pickRecognizer},
		Synthesizer: s.synth,
		Speech:      s.backend,
		Cache:       s.cache,
		History:     s.history,
	}
	if clip != nil {
		deps.Clipboard = clip
	}
	s.session = session.New(deps, session.Options{
		Timeout:  cfg.Backend.TimeoutDuration(),
		Settings: cfg.Settings,
	})
	// Webview features count once the frontend reports them.
	_, _, server := cfg.SpeechKey()
	s.session.SetCapabilities(server, false)
	s.unwatch = s.session.Subscribe(func(st session.State) {
		s.emit(EventSessionState, st)
	})
}

// Shutdown saves the session preferences and releases resources. Only the
// first call has an effect.
func (s *Service) Shutdown() {
	s.closing.Do(s.shutdown)
}

func (s *Service) shutdown() {
	if s.hotkey != nil {
		s.hotkey.Stop()
	}
	if s.session != nil {
		if s.unwatch != nil {
			s.unwatch()
		}
		settings := s.session.Settings()
		s.session.Close()
		if err := s.cfg.SetSettings(settings); err != nil {
			slog.Error("save settings", "error", err)
		}
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			slog.Error("close history", "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			slog.Error("close cache", "error", err)
		}
	}
}

func (s *Service) setupCache() {
	cachePath := filepath.Join(s.cfg.Dir(), "cache")
	c, err := cache.New(cachePath)
	if err != nil {
		slog.Error("init cache", "error", err)
		return
	}
	c.Start(cache.CleanupInterval)
	s.cache = c
	slog.Info("cache initialized", "path", cachePath)
}

func (s *Service) setupHistory() {
	path := filepath.Join(s.cfg.Dir(), "history")
	h, err := history.Open(path, s.cfg.HistorySize)
	if err != nil {
		slog.Error("open history, keeping it in memory", "error", err)
		if h, err = history.Open("", s.cfg.HistorySize); err != nil {
			slog.Error("open in-memory history", "error", err)
			return
		}
	}
	s.history = h
}

// reloadBackend rebuilds the translation backend from the configuration.
// On failure the previous backend keeps serving.
func (s *Service) reloadBackend() {
	b, tts, err := newBackend(s.cfg)
	if err != nil {
		slog.Warn("translation backend unavailable", "mode", s.cfg.Backend.Mode, "error", err)
		s.emit(EventBackendError, err.Error())
		return
	}
	s.backend.set(b, tts)
	slog.Info("translation backend ready", "mode", s.cfg.Backend.Mode)
}

// pickRecognizer prefers server-side recognition when an API key for it
// is configured, and the webview recognizer otherwise.
func (s *Service) pickRecognizer() speech.Recognizer {
	key, model, ok := s.cfg.SpeechKey()
	if !ok {
		return s.webRec
	}
	var prompt string
	if sc := s.cfg.GetSpeechConfig(); sc != nil {
		prompt = sc.Prompt
	}
	return realtime.NewRecognizer(realtime.Config{APIKey: key, Model: model, Prompt: prompt}, s.audio)
}

func (s *Service) setupHotkey() {
	if !s.cfg.Hotkey.Enabled {
		return
	}
	keys, err := hotkey.ParseKeys(strings.Join(s.cfg.Hotkey.Keys, "+"))
	if err != nil {
		slog.Error("parse hotkey", "error", err)
		return
	}
	s.hotkey = hotkey.NewManager(keys, func() {
		if err := s.session.ToggleRecording(); err != nil {
			slog.Warn("toggle recording from hotkey", "error", err)
		}
	})
	if err := s.hotkey.Start(); err != nil {
		slog.Error("start hotkey", "error", err)
	}
}

// emit is a safe wrapper around app.Event.Emit
func (s *Service) emit(name string, data any) {
	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Window & Clipboard
// ─────────────────────────────────────────────────────────────────────────────

// ShowWindow brings the main window to the front.
func (s *Service) ShowWindow() {
	if s.window != nil {
		s.window.Show()
		s.window.Focus()
	}
}

// TranslateClipboard shows the window and translates the clipboard text.
func (s *Service) TranslateClipboard() error {
	if s.clipboard == nil {
		return session.ErrNoClipboard
	}
	text, err := s.clipboard.GetText()
	if err != nil {
		return err
	}
	s.ShowWindow()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s.emit(EventSetClipboard, text)
	s.session.SetInputText(text)
	return s.session.HandleTranslate()
}
