// Package extract recovers structured data from free-form model output.
//
// Entries runs a fixed chain of stages, each usable on its own:
// strict JSON, fenced code block, bracket extraction and finally a
// key/value regex reconstruction. When every stage fails the result is
// marked as a parse failure instead of returning an error.
package extract

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"go.aimuz.me/polyvox/internal/types"
)

// ErrNoStructure is returned by a stage that finds nothing usable.
var ErrNoStructure = errors.New("no structured data found")

// Stage names recorded in Result.
const (
	StageStrict   = "strict"
	StageFenced   = "fenced"
	StageBracket  = "bracket"
	StageKeyValue = "key-value"
	StageFailed   = "failed"
)

// ParseFailure is the marker entry returned when nothing could be parsed.
var ParseFailure = types.DictionaryEntry{Word: "Error", Translation: "Could not parse translation results"}

// Result is the outcome of Entries.
type Result struct {
	Entries []types.DictionaryEntry
	Stage   string
	Failed  bool
}

var (
	fencePattern   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	bracketPattern = regexp.MustCompile(`\[[\s\S]*\]`)
	objectPattern  = regexp.MustCompile(`\{[\s\S]*\}`)
	wordPattern    = regexp.MustCompile(`"word"\s*:\s*"([^"]+)"`)
	transPattern   = regexp.MustCompile(`"translation"\s*:\s*"([^"]+)"`)
)

// Entries parses a list of word/translation pairs from raw model output.
func Entries(raw string) Result {
	stages := []struct {
		name string
		fn   func(string) ([]types.DictionaryEntry, error)
	}{
		{StageStrict, Strict},
		{StageFenced, Fenced},
		{StageBracket, Bracket},
		{StageKeyValue, KeyValue},
	}

	for _, s := range stages {
		if entries, err := s.fn(raw); err == nil {
			return Result{Entries: entries, Stage: s.name}
		}
	}
	return Result{Entries: []types.DictionaryEntry{ParseFailure}, Stage: StageFailed, Failed: true}
}

// Strict parses raw as a JSON array of entries, or an object holding one
// under "translations".
func Strict(raw string) ([]types.DictionaryEntry, error) {
	raw = strings.TrimSpace(raw)
	if !gjson.Valid(raw) {
		return nil, ErrNoStructure
	}

	doc := gjson.Parse(raw)
	if doc.IsObject() {
		doc = doc.Get("translations")
	}
	if !doc.IsArray() {
		return nil, ErrNoStructure
	}

	var entries []types.DictionaryEntry
	if err := json.Unmarshal([]byte(doc.Raw), &entries); err != nil {
		return nil, ErrNoStructure
	}
	return nonEmpty(entries)
}

// Fenced strips a markdown code fence and parses its body strictly.
func Fenced(raw string) ([]types.DictionaryEntry, error) {
	m := fencePattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, ErrNoStructure
	}
	return Strict(m[1])
}

// Bracket parses the outermost [...] span found in raw.
func Bracket(raw string) ([]types.DictionaryEntry, error) {
	span := bracketPattern.FindString(raw)
	if span == "" {
		return nil, ErrNoStructure
	}
	return Strict(span)
}

// KeyValue pairs every "word" value with the "translation" value at the
// same position.
func KeyValue(raw string) ([]types.DictionaryEntry, error) {
	words := wordPattern.FindAllStringSubmatch(raw, -1)
	trans := transPattern.FindAllStringSubmatch(raw, -1)

	n := min(len(words), len(trans))
	if n == 0 {
		return nil, ErrNoStructure
	}

	entries := make([]types.DictionaryEntry, n)
	for i := range n {
		entries[i] = types.DictionaryEntry{Word: words[i][1], Translation: trans[i][1]}
	}
	return entries, nil
}

// Object returns the first JSON object in raw, trying the whole text, a
// fenced block, then the outermost {...} span.
func Object(raw string) (gjson.Result, error) {
	candidates := []string{strings.TrimSpace(raw)}
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	if span := objectPattern.FindString(raw); span != "" {
		candidates = append(candidates, span)
	}

	for _, c := range candidates {
		if gjson.Valid(c) {
			if doc := gjson.Parse(c); doc.IsObject() {
				return doc, nil
			}
		}
	}
	return gjson.Result{}, ErrNoStructure
}

// StripFence removes a surrounding code fence, if any.
func StripFence(raw string) string {
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return strings.TrimSpace(raw)
}

func nonEmpty(entries []types.DictionaryEntry) ([]types.DictionaryEntry, error) {
	out := entries[:0]
	for _, e := range entries {
		if e.Word != "" || e.Translation != "" {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoStructure
	}
	return out, nil
}
