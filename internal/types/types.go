// Package types provides shared type definitions for the application.
package types

// DefaultMaxTokens is the default max tokens if not specified.
const DefaultMaxTokens = 2000

// DefaultTemperature is the default temperature if not specified.
const DefaultTemperature = 0.3

// DefaultModel is the chat model used when only an API key is configured.
const DefaultModel = "gpt-4o-mini"

// NotAvailable is substituted for any requested language the translator
// did not return. It is a renderable state distinct from empty text.
const NotAvailable = "Translation not available"

// AutoDetect is the pseudo language code meaning "detect source language".
const AutoDetect = "auto"

// Language is an entry of the static language table.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// OutputLanguage is one target language slot in the session.
// Identity is positional; the first slot receives auto-play.
type OutputLanguage struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// TranslationResult is a translated text for one language.
type TranslationResult struct {
	Language     string `json:"language"`
	LanguageName string `json:"languageName,omitempty"`
	Text         string `json:"text"`
}

// HistoryEntry is one completed translation pass.
type HistoryEntry struct {
	ID               string              `json:"id"`
	Timestamp        int64               `json:"timestamp"` // Unix milliseconds
	InputText        string              `json:"inputText"`
	InputLanguage    string              `json:"inputLanguage"`
	DetectedLanguage string              `json:"detectedLanguage,omitempty"`
	Translations     []TranslationResult `json:"translations"`
}

// Usage represents token usage statistics from LLM API calls.
type Usage struct {
	PromptTokens     int  `json:"promptTokens"`
	CompletionTokens int  `json:"completionTokens"`
	TotalTokens      int  `json:"totalTokens"`
	CacheHit         bool `json:"cacheHit"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Wire Types
// ─────────────────────────────────────────────────────────────────────────────

// TranslateRequest is the body of POST /translate.
type TranslateRequest struct {
	Text        string   `json:"text"`
	InputLang   string   `json:"inputLang"`
	OutputLangs []string `json:"outputLangs"`
	Stream      bool     `json:"stream"`
}

// TranslateResponse is the single-shot answer of POST /translate.
type TranslateResponse struct {
	Success          bool                `json:"success"`
	Translations     []TranslationResult `json:"translations,omitempty"`
	DetectedLanguage string              `json:"detectedLanguage,omitempty"`
	Error            string              `json:"error,omitempty"`
}

// StreamChunk is one server-sent event of a streaming translation.
// Delta appends to a language; Text replaces it with a cumulative snapshot.
type StreamChunk struct {
	Language         string `json:"language,omitempty"`
	Delta            string `json:"delta,omitempty"`
	Text             string `json:"text,omitempty"`
	Done             bool   `json:"done,omitempty"`
	DetectedLanguage string `json:"detectedLanguage,omitempty"`
	Error            string `json:"error,omitempty"`
}

// GrammarRequest is the body of POST /correct-grammar.
type GrammarRequest struct {
	Text string `json:"text"`
}

// GrammarResponse is the answer of POST /correct-grammar.
type GrammarResponse struct {
	Success       bool   `json:"success"`
	CorrectedText string `json:"correctedText,omitempty"`
	Error         string `json:"error,omitempty"`
}

// DictionaryRequest is the body of POST /dictionary.
type DictionaryRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage"`
}

// DictionaryEntry is one word and its translation.
type DictionaryEntry struct {
	Word        string `json:"word"`
	Translation string `json:"translation"`
}

// DictionaryResponse is the answer of POST /dictionary.
type DictionaryResponse struct {
	Translations []DictionaryEntry `json:"translations,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ImageAnalysisRequest is the body of POST /image-analysis.
type ImageAnalysisRequest struct {
	ImageURL  string   `json:"imageUrl"`
	Prompt    string   `json:"prompt,omitempty"`
	Languages []string `json:"languages,omitempty"`
}

// ImageAnalysisResponse maps language codes to summaries.
type ImageAnalysisResponse struct {
	Summary map[string]string `json:"summary"`
	Error   string            `json:"error,omitempty"`
}

// SpeechRequest is the body of POST /text-to-speech.
type SpeechRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    string `json:"voice,omitempty"`
	Format   string `json:"format,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration Types
// ─────────────────────────────────────────────────────────────────────────────

// APICredential holds the key material for one LLM provider account.
type APICredential struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // "openai", "openai-compatible", "gemini", "claude"
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key"`
}

// TranslationProfile binds a credential to a model and prompt settings.
type TranslationProfile struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	CredentialID    string  `json:"credential_id"`
	Model           string  `json:"model"`
	SystemPrompt    string  `json:"system_prompt,omitempty"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	Active          bool    `json:"active"`
	DisableThinking bool    `json:"disable_thinking,omitempty"`
}

// SpeechConfig configures the realtime speech recognizer.
type SpeechConfig struct {
	Enabled      bool   `json:"enabled"`
	CredentialID string `json:"credential_id,omitempty"`
	Model        string `json:"model,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
}

// Settings are the persisted session preferences.
type Settings struct {
	InputLanguage            string   `json:"input_language"`
	OutputLanguages          []string `json:"output_languages"`
	AutoTranslate            bool     `json:"auto_translate"`
	AutoPlay                 bool     `json:"auto_play"`
	GrammarCorrectionEnabled *bool    `json:"grammar_correction_enabled,omitempty"`
	StreamingMode            bool     `json:"streaming_mode"`
	SpeechSpeed              float64  `json:"speech_speed"`
}
