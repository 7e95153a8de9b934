package playback

import (
	"golang.org/x/text/language"

	"go.aimuz.me/polyvox/lang"
)

// SelectVoice picks the voice best matching the TTS locale of code. When
// no voice is close enough the default voice is returned, which may be
// the zero Voice (let the synthesizer decide).
func SelectVoice(voices []Voice, code string) (Voice, string) {
	locale := lang.TTSLocale(code)

	var tags []language.Tag
	var candidates []Voice
	var fallback Voice
	for _, v := range voices {
		if v.Default && fallback.Name == "" {
			fallback = v
		}
		tag, err := language.Parse(v.Lang)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		candidates = append(candidates, v)
	}
	if len(tags) == 0 {
		return fallback, locale
	}

	want, err := language.Parse(locale)
	if err != nil {
		return fallback, locale
	}

	_, idx, conf := language.NewMatcher(tags).Match(want)
	if conf == language.No {
		return fallback, locale
	}
	return candidates[idx], locale
}

func (c *Coordinator) voiceFor(code string) (Voice, string) {
	return SelectVoice(c.synth.Voices(), code)
}
