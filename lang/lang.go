// Package lang holds the static language table and locale mappings.
package lang

import (
	"slices"

	"go.aimuz.me/polyvox/internal/types"
)

var languages = []types.Language{
	{Code: "auto", Name: "Auto Detect"},
	{Code: "en", Name: "English"},
	{Code: "hi", Name: "Hindi"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "it", Name: "Italian"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "ru", Name: "Russian"},
	{Code: "ja", Name: "Japanese"},
	{Code: "ko", Name: "Korean"},
	{Code: "zh", Name: "Chinese"},
	{Code: "ar", Name: "Arabic"},
	{Code: "bn", Name: "Bengali"},
	{Code: "ta", Name: "Tamil"},
	{Code: "te", Name: "Telugu"},
	{Code: "mr", Name: "Marathi"},
	{Code: "gu", Name: "Gujarati"},
	{Code: "kn", Name: "Kannada"},
	{Code: "ml", Name: "Malayalam"},
	{Code: "pa", Name: "Punjabi"},
	{Code: "ur", Name: "Urdu"},
	{Code: "or", Name: "Odia"},
	{Code: "as", Name: "Assamese"},
	{Code: "ne", Name: "Nepali"},
	{Code: "si", Name: "Sinhala"},
}

// Recognition locales. Codes without an entry fall back to en-US.
var speechLocales = map[string]string{
	"auto": "en-US",
	"en":   "en-US",
	"hi":   "hi-IN",
	"es":   "es-ES",
	"fr":   "fr-FR",
	"de":   "de-DE",
	"it":   "it-IT",
	"pt":   "pt-BR",
	"ru":   "ru-RU",
	"ja":   "ja-JP",
	"ko":   "ko-KR",
	"zh":   "zh-CN",
	"ar":   "ar-SA",
	"bn":   "bn-IN",
	"ta":   "ta-IN",
	"te":   "te-IN",
	"mr":   "mr-IN",
	"gu":   "gu-IN",
	"kn":   "kn-IN",
	"ml":   "ml-IN",
	"pa":   "pa-IN",
	"ur":   "ur-PK",
	"or":   "or-IN",
	"as":   "as-IN",
	"ne":   "ne-NP",
	"si":   "si-LK",
}

// Synthesis locales. English prefers an Indian voice.
var ttsLocales = map[string]string{
	"en": "en-IN",
	"hi": "hi-IN",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"it": "it-IT",
	"pt": "pt-PT",
	"ru": "ru-RU",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"zh": "zh-CN",
	"ar": "ar-SA",
	"bn": "bn-IN",
	"ta": "ta-IN",
	"te": "te-IN",
	"mr": "mr-IN",
	"gu": "gu-IN",
	"kn": "kn-IN",
	"ml": "ml-IN",
	"pa": "pa-IN",
	"ur": "ur-PK",
	"or": "or-IN",
	"as": "as-IN",
	"ne": "ne-NP",
	"si": "si-LK",
}

// DefaultOutputs are the output slots of a fresh session.
var DefaultOutputs = []string{"hi", "kn", "mr"}

// All returns a copy of the language table, "auto" first.
func All() []types.Language {
	return slices.Clone(languages)
}

// Known reports whether code is in the table.
func Known(code string) bool {
	return slices.ContainsFunc(languages, func(l types.Language) bool { return l.Code == code })
}

// Name returns the display name for code, or code itself when unknown.
func Name(code string) string {
	for _, l := range languages {
		if l.Code == code {
			return l.Name
		}
	}
	return code
}

// SpeechLocale returns the recognition locale for a language code.
func SpeechLocale(code string) string {
	if l, ok := speechLocales[code]; ok {
		return l
	}
	return "en-US"
}

// TTSLocale returns the preferred synthesis locale for a language code.
// Unknown codes are returned unchanged.
func TTSLocale(code string) string {
	if l, ok := ttsLocales[code]; ok {
		return l
	}
	return code
}

// Output builds an empty output slot for code.
func Output(code string) types.OutputLanguage {
	return types.OutputLanguage{Code: code, Name: Name(code)}
}

// Defaults returns fresh default output slots.
func Defaults() []types.OutputLanguage {
	out := make([]types.OutputLanguage, len(DefaultOutputs))
	for i, code := range DefaultOutputs {
		out[i] = Output(code)
	}
	return out
}

// NextUnused returns the first table language, excluding "auto", that
// no slot uses yet.
func NextUnused(outputs []types.OutputLanguage) (string, bool) {
	for _, l := range languages {
		if l.Code == types.AutoDetect {
			continue
		}
		if !slices.ContainsFunc(outputs, func(o types.OutputLanguage) bool { return o.Code == l.Code }) {
			return l.Code, true
		}
	}
	return "", false
}
