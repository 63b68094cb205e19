package htmlsanitize_test

import (
	"testing"

	"github.com/dalemusser/classhub/internal/app/system/htmlsanitize"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Hola, mundo", "Hola, mundo"},
		{"trimmed", "  Hola  ", "Hola"},
		{"tags stripped", "<p><strong>Go</strong> básico</p>", "Go básico"},
		{"script removed with content", "<p>Hola</p><script>alert('xss')</script>", "Hola"},
		{"style removed with content", "<style>body{}</style>Texto", "Texto"},
		{"ampersand kept", "A & B", "A & B"},
		{"lone less-than kept", "5 < 10", "5 < 10"},
		{"event handler dropped", `<img src="x" onerror="alert(1)">Foto`, "Foto"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := htmlsanitize.PlainText(tt.input)
			if got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsPlainText(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"", true},
		{"Hello, World!", true},
		{"<p>Hello</p>", false},
		{"5 < 10", true},
		{"5 > 3", true},
	}
	for _, tt := range tests {
		if got := htmlsanitize.IsPlainText(tt.input); got != tt.want {
			t.Errorf("IsPlainText(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
