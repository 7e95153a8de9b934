package lang

import (
	"slices"
	"strings"
	"testing"

	"go.aimuz.me/polyvox/internal/types"
)

func TestSwap(t *testing.T) {
	tests := []struct {
		name      string
		inputLang string
		outputs   []types.OutputLanguage
		inputText string
		want      *SwapResult
	}{
		{
			name:      "fixed input swaps with first output",
			inputLang: "en",
			outputs:   []types.OutputLanguage{{Code: "es", Name: "Spanish", Text: "Hola"}},
			inputText: "Hello",
			want: &SwapResult{
				InputLanguage:   "es",
				InputText:       "Hola",
				OutputLanguages: []types.OutputLanguage{{Code: "en", Name: "English", Text: "Hello"}},
			},
		},
		{
			name:      "input already a later output takes the first slot's place",
			inputLang: "en",
			outputs: []types.OutputLanguage{
				{Code: "es", Name: "Spanish", Text: "Hola"},
				{Code: "en", Name: "English", Text: "Hello"},
				{Code: "fr", Name: "French", Text: "Bonjour"},
			},
			inputText: "Hello",
			want: &SwapResult{
				InputLanguage: "es",
				InputText:     "Hola",
				OutputLanguages: []types.OutputLanguage{
					{Code: "en", Name: "English", Text: "Hello"},
					{Code: "es", Name: "Spanish", Text: "Hola"},
					{Code: "fr", Name: "French", Text: "Bonjour"},
				},
			},
		},
		{
			name:      "auto input is a no-op",
			inputLang: "auto",
			outputs:   []types.OutputLanguage{{Code: "es", Text: "Hola"}},
			inputText: "Hello",
		},
		{
			name:      "no outputs is a no-op",
			inputLang: "en",
			inputText: "Hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Swap(tt.inputLang, tt.outputs, tt.inputText)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("got %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("got nil, want result")
			}
			if got.InputLanguage != tt.want.InputLanguage {
				t.Errorf("InputLanguage = %q, want %q", got.InputLanguage, tt.want.InputLanguage)
			}
			if got.InputText != tt.want.InputText {
				t.Errorf("InputText = %q, want %q", got.InputText, tt.want.InputText)
			}
			if !slices.Equal(got.OutputLanguages, tt.want.OutputLanguages) {
				t.Errorf("OutputLanguages = %+v, want %+v", got.OutputLanguages, tt.want.OutputLanguages)
			}
		})
	}
}

func TestSwapDoesNotMutateInput(t *testing.T) {
	outputs := []types.OutputLanguage{{Code: "es", Text: "Hola"}, {Code: "fr", Text: "Bonjour"}}
	_ = Swap("en", outputs, "Hello")
	if outputs[0].Code != "es" {
		t.Errorf("outputs[0].Code = %q, want %q", outputs[0].Code, "es")
	}
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		source  string
		targets []string
		wantErr bool
	}{
		{"valid", "hello", "en", []string{"hi", "es"}, false},
		{"auto source", "hello", "auto", []string{"hi"}, false},
		{"region subtag", "hello", "en", []string{"zh-CN"}, false},
		{"blank text", "   ", "en", []string{"hi"}, true},
		{"too long", strings.Repeat("a", MaxTextLength+1), "en", []string{"hi"}, true},
		{"no targets", "hello", "en", nil, true},
		{"auto target", "hello", "en", []string{"auto"}, true},
		{"bad code", "hello", "EN", []string{"hi"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.text, tt.source, tt.targets)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNextUnused(t *testing.T) {
	code, ok := NextUnused(Defaults())
	if !ok || code != "en" {
		t.Errorf("NextUnused(defaults) = %q, %v, want %q, true", code, ok, "en")
	}

	all := make([]types.OutputLanguage, 0, len(languages))
	for _, l := range All() {
		all = append(all, Output(l.Code))
	}
	if _, ok := NextUnused(all); ok {
		t.Error("NextUnused(all) reported a free language")
	}
}

func TestLocales(t *testing.T) {
	if got := SpeechLocale("auto"); got != "en-US" {
		t.Errorf("SpeechLocale(auto) = %q, want en-US", got)
	}
	if got := SpeechLocale("xx"); got != "en-US" {
		t.Errorf("SpeechLocale(xx) = %q, want en-US", got)
	}
	if got := TTSLocale("en"); got != "en-IN" {
		t.Errorf("TTSLocale(en) = %q, want en-IN", got)
	}
	if got := TTSLocale("pt"); got != "pt-PT" {
		t.Errorf("TTSLocale(pt) = %q, want pt-PT", got)
	}
}

func TestClampSpeed(t *testing.T) {
	for _, tt := range []struct{ in, want float64 }{{0, 0.1}, {0.8, 0.8}, {12, 10}} {
		if got := ClampSpeed(tt.in); got != tt.want {
			t.Errorf("ClampSpeed(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
