package lang

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"

	"go.aimuz.me/polyvox/internal/types"
)

// MaxTextLength is the longest accepted input, in characters.
const MaxTextLength = 10000

// Speech rate bounds.
const (
	MinSpeed = 0.1
	MaxSpeed = 10.0
)

var codePattern = regexp.MustCompile(`^[a-z]{2,3}(-[A-Z]{2})?$`)

var (
	ErrEmptyText   = errors.New("text is required")
	ErrTextTooLong = fmt.Errorf("text exceeds %d characters", MaxTextLength)
)

// ValidateCode checks a language code. "auto" is accepted only when
// allowAuto is set.
func ValidateCode(code string, allowAuto bool) error {
	if code == types.AutoDetect {
		if allowAuto {
			return nil
		}
		return fmt.Errorf("auto detection not allowed here")
	}
	if !codePattern.MatchString(code) {
		return fmt.Errorf("invalid language code: %q", code)
	}
	if _, err := language.Parse(code); err != nil {
		return fmt.Errorf("invalid language code %q: %w", code, err)
	}
	return nil
}

// ValidateText checks that text is non-blank and within MaxTextLength.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return ErrTextTooLong
	}
	return nil
}

// ValidateRequest checks a translation request before it leaves the process.
func ValidateRequest(text, source string, targets []string) error {
	if err := ValidateText(text); err != nil {
		return err
	}
	if err := ValidateCode(source, true); err != nil {
		return fmt.Errorf("input language: %w", err)
	}
	if len(targets) == 0 {
		return fmt.Errorf("at least one output language is required")
	}
	for _, t := range targets {
		if err := ValidateCode(t, false); err != nil {
			return fmt.Errorf("output language: %w", err)
		}
	}
	return nil
}

// ClampSpeed bounds a speech rate to [MinSpeed, MaxSpeed].
func ClampSpeed(v float64) float64 {
	return min(max(v, MinSpeed), MaxSpeed)
}
