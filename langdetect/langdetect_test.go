package langdetect

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantCode string
	}{
		{"empty", "", "auto"},
		{"whitespace", "   ", "auto"},
		{"english", "The quick brown fox jumps over the lazy dog near the river bank", "en"},
		{"spanish", "El rápido zorro marrón salta sobre el perro perezoso junto al río", "es"},
		{"hindi", "मैं आज बाज़ार जा रहा हूँ और शाम को वापस आऊँगा", "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, name := Detect(tt.text)
			if code != tt.wantCode {
				t.Errorf("Detect(%q) code = %q, want %q", tt.text, code, tt.wantCode)
			}
			if name == "" {
				t.Errorf("Detect(%q) returned empty name", tt.text)
			}
		})
	}
}
