package merge

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minContainmentRunes guards the containment arm of the similarity predicate
// against short-word false positives ("act" would otherwise match half the
// corpus).
const minContainmentRunes = 6

var leadingArticles = []string{"the ", "an ", "a "}

// NormalizeName reduces an entity name to its comparison form: lowercased,
// leading articles dropped, every run of non-letter non-digit characters
// collapsed to a single space. CJK ideographs count as letters.
func NormalizeName(name string) string {
	var b strings.Builder
	pendingSpace := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}

	s := b.String()
	for {
		stripped := false
		for _, art := range leadingArticles {
			if strings.HasPrefix(s, art) {
				s = strings.TrimPrefix(s, art)
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}

// Similar reports whether two entity names refer to the same thing: their
// normalized forms are equal, or one contains the other and the shorter form
// is at least minContainmentRunes long.
func Similar(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}

	shorter, longer := na, nb
	if utf8.RuneCountInString(shorter) > utf8.RuneCountInString(longer) {
		shorter, longer = nb, na
	}
	if utf8.RuneCountInString(shorter) < minContainmentRunes {
		return false
	}
	return strings.Contains(longer, shorter)
}
