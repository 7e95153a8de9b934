// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"go.aimuz.me/polyvox/internal/types"
)

const (
	appName        = "polyvox"
	configFileName = "config.json"
)

// Backend modes.
const (
	BackendHTTP   = "http"   // translation endpoints behind an HTTP API
	BackendDirect = "direct" // in-process LLM calls
)

const (
	DefaultAPIBase     = "http://localhost:3000/api"
	DefaultTimeout     = 30 * time.Second
	DefaultSpeechModel = "gpt-4o-transcribe"
	DefaultHistorySize = 200
)

// Environment variables read by ApplyEnv.
const (
	EnvBackend = "POLYVOX_BACKEND"
	EnvAPIBase = "POLYVOX_API_BASE"
	EnvAPIKey  = "OPENAI_API_KEY"
)

// Backend selects where translation requests go.
type Backend struct {
	Mode    string `json:"mode"`
	BaseURL string `json:"base_url,omitempty"`
	// Timeout in seconds.
	Timeout int `json:"timeout,omitempty"`
}

// TimeoutDuration returns the request timeout.
func (b Backend) TimeoutDuration() time.Duration {
	if b.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(b.Timeout) * time.Second
}

// Hotkey configures the global push-to-talk shortcut.
type Hotkey struct {
	Enabled bool     `json:"enabled"`
	Keys    []string `json:"keys,omitempty"`
}

// Config represents the application configuration.
type Config struct {
	path      string
	envAPIKey string

	Backend Backend `json:"backend"`

	Credentials         []types.APICredential      `json:"credentials,omitempty"`
	TranslationProfiles []types.TranslationProfile `json:"translation_profiles,omitempty"`
	SpeechConfig        *types.SpeechConfig        `json:"speech_config,omitempty"`

	// Settings are the last session preferences. Nil means defaults.
	Settings    *types.Settings `json:"settings,omitempty"`
	Hotkey      Hotkey          `json:"hotkey"`
	HistorySize int             `json:"history_size,omitempty"`
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Dir returns the directory holding the config file. Other on-disk state
// such as the cache and history lives next to it.
func (c *Config) Dir() string {
	return filepath.Dir(c.path)
}

// Load loads configuration from the default config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path. Saves go back to the same file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(path), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.path = path
	cfg.applyDefaults()
	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config has no file path")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment variables onto the loaded config. Values
// from the given dotenv files (".env" when none are named) fill in what
// the process environment leaves unset. Missing files are ignored.
// Environment values are never written back by Save.
func (c *Config) ApplyEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	vals := make(map[string]string)
	for _, f := range files {
		m, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range m {
			if _, ok := vals[k]; !ok {
				vals[k] = v
			}
		}
	}
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return vals[key]
	}

	switch mode := lookup(EnvBackend); mode {
	case "":
	case BackendHTTP, BackendDirect:
		c.Backend.Mode = mode
	default:
		return fmt.Errorf("%s: unknown backend %q", EnvBackend, mode)
	}
	if base := lookup(EnvAPIBase); base != "" {
		c.Backend.BaseURL = base
	}
	c.envAPIKey = lookup(EnvAPIKey)
	return nil
}

// SetSettings stores the session preferences.
func (c *Config) SetSettings(s types.Settings) error {
	s.OutputLanguages = slices.Clone(s.OutputLanguages)
	c.Settings = &s
	return c.Save()
}

func (c *Config) applyDefaults() {
	if c.Backend.Mode == "" {
		c.Backend.Mode = BackendHTTP
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultAPIBase
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = int(DefaultTimeout / time.Second)
	}
	if len(c.Hotkey.Keys) == 0 {
		c.Hotkey.Keys = defaultHotkey()
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
}

// New returns a default configuration that saves to path.
func New(path string) *Config {
	cfg := &Config{path: path}
	cfg.applyDefaults()
	return cfg
}

func defaultHotkey() []string {
	return []string{"ctrl", "shift", "space"}
}

// ─────────────────────────────────────────────────────────────────────────────
// API Credential Management
// ─────────────────────────────────────────────────────────────────────────────

// GetCredentials returns all API credentials.
func (c *Config) GetCredentials() []types.APICredential {
	return c.Credentials
}

// GetCredential returns a credential by ID.
func (c *Config) GetCredential(id string) *types.APICredential {
	for i := range c.Credentials {
		if c.Credentials[i].ID == id {
			return &c.Credentials[i]
		}
	}
	return nil
}

// AddCredential adds a new API credential.
func (c *Config) AddCredential(cred types.APICredential) error {
	if cred.Name == "" {
		return fmt.Errorf("credential name required")
	}
	if cred.APIKey == "" {
		return fmt.Errorf("api key required")
	}
	if cred.Type == "openai-compatible" && cred.BaseURL == "" {
		return fmt.Errorf("base url required for openai-compatible")
	}

	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}

	c.Credentials = append(c.Credentials, cred)
	return c.Save()
}

// UpdateCredential updates an existing credential.
func (c *Config) UpdateCredential(id string, cred types.APICredential) error {
	idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}

	cred.ID = id
	c.Credentials[idx] = cred
	return c.Save()
}

// RemoveCredential removes a credential by ID.
// Returns error if credential is in use by any profile or speech config.
func (c *Config) RemoveCredential(id string) error {
	for _, p := range c.TranslationProfiles {
		if p.CredentialID == id {
			return fmt.Errorf("credential in use by translation profile: %s", p.Name)
		}
	}
	if c.SpeechConfig != nil && c.SpeechConfig.CredentialID == id {
		return fmt.Errorf("credential in use by speech config")
	}

	idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}

	c.Credentials = slices.Delete(c.Credentials, idx, idx+1)
	return c.Save()
}

// ─────────────────────────────────────────────────────────────────────────────
// Translation Profile Management
// ─────────────────────────────────────────────────────────────────────────────

// GetTranslationProfiles returns all translation profiles.
func (c *Config) GetTranslationProfiles() []types.TranslationProfile {
	return c.TranslationProfiles
}

// GetActiveTranslationProfile returns the currently active translation profile.
func (c *Config) GetActiveTranslationProfile() *types.TranslationProfile {
	for i := range c.TranslationProfiles {
		if c.TranslationProfiles[i].Active {
			return &c.TranslationProfiles[i]
		}
	}
	if len(c.TranslationProfiles) > 0 {
		c.TranslationProfiles[0].Active = true
		_ = c.Save()
		return &c.TranslationProfiles[0]
	}
	return nil
}

// AddTranslationProfile adds a new translation profile.
func (c *Config) AddTranslationProfile(profile types.TranslationProfile) error {
	if profile.Name == "" {
		return fmt.Errorf("profile name required")
	}
	if profile.CredentialID == "" {
		return fmt.Errorf("credential id required")
	}
	if profile.Model == "" {
		return fmt.Errorf("model required")
	}
	if c.GetCredential(profile.CredentialID) == nil {
		return fmt.Errorf("credential not found: %s", profile.CredentialID)
	}

	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	if profile.MaxTokens == 0 {
		profile.MaxTokens = types.DefaultMaxTokens
	}
	if profile.Temperature == 0 {
		profile.Temperature = types.DefaultTemperature
	}

	// First profile or explicitly active: deactivate others
	if len(c.TranslationProfiles) == 0 || profile.Active {
		for i := range c.TranslationProfiles {
			c.TranslationProfiles[i].Active = false
		}
		profile.Active = true
	}

	c.TranslationProfiles = append(c.TranslationProfiles, profile)
	return c.Save()
}

// UpdateTranslationProfile updates an existing translation profile.
func (c *Config) UpdateTranslationProfile(id string, profile types.TranslationProfile) error {
	idx := slices.IndexFunc(c.TranslationProfiles, func(x types.TranslationProfile) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("profile not found: %s", id)
	}
	if c.GetCredential(profile.CredentialID) == nil {
		return fmt.Errorf("credential not found: %s", profile.CredentialID)
	}

	wasActive := c.TranslationProfiles[idx].Active
	if profile.Active && !wasActive {
		for i := range c.TranslationProfiles {
			c.TranslationProfiles[i].Active = false
		}
	} else {
		profile.Active = wasActive
	}

	profile.ID = id
	c.TranslationProfiles[idx] = profile
	return c.Save()
}

// RemoveTranslationProfile removes a translation profile by ID.
func (c *Config) RemoveTranslationProfile(id string) error {
	idx := slices.IndexFunc(c.TranslationProfiles, func(x types.TranslationProfile) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("profile not found: %s", id)
	}

	wasActive := c.TranslationProfiles[idx].Active
	c.TranslationProfiles = slices.Delete(c.TranslationProfiles, idx, idx+1)

	if wasActive && len(c.TranslationProfiles) > 0 {
		c.TranslationProfiles[0].Active = true
	}

	return c.Save()
}

// SetTranslationProfileActive sets a translation profile as active.
func (c *Config) SetTranslationProfileActive(id string) error {
	found := false
	for i := range c.TranslationProfiles {
		if c.TranslationProfiles[i].ID == id {
			c.TranslationProfiles[i].Active = true
			found = true
		} else {
			c.TranslationProfiles[i].Active = false
		}
	}
	if !found {
		return fmt.Errorf("profile not found: %s", id)
	}
	return c.Save()
}

// Provider is a resolved profile with its credential, ready to build an
// LLM client from.
type Provider struct {
	Profile    types.TranslationProfile
	Credential types.APICredential
}

// ActiveProvider resolves the active translation profile. Without any
// profile, an OPENAI_API_KEY from the environment yields an OpenAI
// provider on the default model.
func (c *Config) ActiveProvider() (*Provider, error) {
	profile := c.GetActiveTranslationProfile()
	if profile == nil {
		if c.envAPIKey == "" {
			return nil, errors.New("no translation profile configured")
		}
		return &Provider{
			Profile:    types.TranslationProfile{Name: "env", Model: types.DefaultModel, Active: true},
			Credential: types.APICredential{Name: "env", Type: "openai", APIKey: c.envAPIKey},
		}, nil
	}

	cred := c.GetCredential(profile.CredentialID)
	if cred == nil {
		return nil, fmt.Errorf("credential not found: %s", profile.CredentialID)
	}
	return &Provider{Profile: *profile, Credential: *cred}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Speech Configuration
// ─────────────────────────────────────────────────────────────────────────────

// GetSpeechConfig returns the speech configuration.
func (c *Config) GetSpeechConfig() *types.SpeechConfig {
	return c.SpeechConfig
}

// SetSpeechConfig sets the speech configuration.
func (c *Config) SetSpeechConfig(cfg types.SpeechConfig) error {
	if cfg.Enabled && cfg.CredentialID != "" {
		cred := c.GetCredential(cfg.CredentialID)
		if cred == nil {
			return fmt.Errorf("credential not found: %s", cfg.CredentialID)
		}
		if cred.Type != "openai" && cred.Type != "openai-compatible" {
			return fmt.Errorf("speech config requires OpenAI-compatible credential")
		}
	}

	if cfg.Model == "" {
		cfg.Model = DefaultSpeechModel
	}

	c.SpeechConfig = &cfg
	return c.Save()
}

// SpeechKey returns the API key and model for server-side speech
// recognition. ok is false when recognition is not configured.
func (c *Config) SpeechKey() (apiKey, model string, ok bool) {
	sc := c.SpeechConfig
	if sc != nil && sc.Enabled {
		model = sc.Model
		if cred := c.GetCredential(sc.CredentialID); cred != nil {
			return cred.APIKey, model, true
		}
	}
	if model == "" {
		model = DefaultSpeechModel
	}
	if c.envAPIKey != "" && (sc == nil || sc.Enabled) {
		return c.envAPIKey, model, true
	}
	return "", "", false
}
