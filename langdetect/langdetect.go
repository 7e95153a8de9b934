// Package langdetect detects the language of a text locally.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"

	"go.aimuz.me/polyvox/internal/types"
	"go.aimuz.me/polyvox/lang"
)

// Only languages that are both in the table and have a lingua model.
var supported = []lingua.Language{
	lingua.English,
	lingua.Hindi,
	lingua.Spanish,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Russian,
	lingua.Japanese,
	lingua.Korean,
	lingua.Chinese,
	lingua.Arabic,
	lingua.Bengali,
	lingua.Tamil,
	lingua.Telugu,
	lingua.Marathi,
	lingua.Gujarati,
	lingua.Punjabi,
	lingua.Urdu,
}

var (
	once     sync.Once
	detector lingua.LanguageDetector
)

func get() lingua.LanguageDetector {
	once.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(supported...).
			WithMinimumRelativeDistance(0.1).
			Build()
	})
	return detector
}

// Detect returns the language code and display name of text.
// It returns "auto" when the language cannot be determined.
func Detect(text string) (code, name string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.AutoDetect, lang.Name(types.AutoDetect)
	}

	l, ok := get().DetectLanguageOf(text)
	if !ok {
		return types.AutoDetect, lang.Name(types.AutoDetect)
	}

	code = strings.ToLower(l.IsoCode639_1().String())
	return code, lang.Name(code)
}

// Detector adapts Detect to a value that can be injected.
type Detector struct{}

// Detect implements the dispatcher's detector interface.
func (Detector) Detect(text string) string {
	code, _ := Detect(text)
	return code
}
