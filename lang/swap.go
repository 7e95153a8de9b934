package lang

import (
	"slices"

	"go.aimuz.me/polyvox/internal/types"
)

// SwapResult is the state after exchanging input and first output.
type SwapResult struct {
	InputLanguage   string
	InputText       string
	OutputLanguages []types.OutputLanguage
}

// Swap exchanges the input language with the first output slot. When the
// input language is also a later output, that slot takes the first
// output's language so codes stay unique. It returns nil when the input
// is auto-detected or there is no output.
func Swap(inputLang string, outputs []types.OutputLanguage, inputText string) *SwapResult {
	if inputLang == types.AutoDetect || len(outputs) == 0 {
		return nil
	}

	first := outputs[0]
	next := slices.Clone(outputs)
	next[0] = types.OutputLanguage{
		Code: inputLang,
		Name: Name(inputLang),
		Text: inputText,
	}
	if k := slices.IndexFunc(next[1:], func(o types.OutputLanguage) bool { return o.Code == inputLang }); k >= 0 {
		next[k+1] = types.OutputLanguage{Code: first.Code, Name: first.Name, Text: first.Text}
	}

	return &SwapResult{
		InputLanguage:   first.Code,
		InputText:       first.Text,
		OutputLanguages: next,
	}
}
