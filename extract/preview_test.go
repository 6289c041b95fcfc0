package extract

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short input passes through", "hello world", 20, "hello world"},
		{"exact length passes through", "hello", 5, "hello"},
		{"surrounding space trimmed", "  hello  ", 20, "hello"},
		{"cut at word boundary", "the court held that the duty", 15, "the court held..."},
		{"no boundary in second half", "abcdefghijklmnop", 8, "abcdefgh..."},
		{"boundary too early ignored", "ab cdefghijklmnop", 10, "ab cdefghi..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.in, tt.n); got != tt.want {
				t.Errorf("Preview(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestPreviewNeverSplitsRune(t *testing.T) {
	s := strings.Repeat("判", 100)
	for n := 1; n < 12; n++ {
		got := Preview(s, n)
		trimmed := strings.TrimSuffix(got, "...")
		if !utf8.ValidString(trimmed) {
			t.Fatalf("Preview(n=%d) split a rune: %q", n, got)
		}
		if len(trimmed) > n {
			t.Fatalf("Preview(n=%d) kept %d bytes", n, len(trimmed))
		}
	}
}
