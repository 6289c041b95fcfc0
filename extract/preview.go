package extract

import (
	"strings"
	"unicode/utf8"
)

// rawPreviewLen bounds the raw-text preview attached to structural failures
// so an operator can judge whether to retry extraction.
const rawPreviewLen = 300

// Preview returns at most n bytes of s, preferring a cut at a word boundary
// in the second half, with an ellipsis marker when anything was dropped.
func Preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}

	cut := s[:n]
	for len(cut) > 0 {
		r, size := utf8.DecodeLastRuneInString(cut)
		if r == utf8.RuneError && size <= 1 {
			cut = cut[:len(cut)-1]
			continue
		}
		break
	}
	if i := strings.LastIndexAny(cut, " \t\n"); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \t\n") + "..."
}
