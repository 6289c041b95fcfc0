package extract

import (
	"regexp"
	"strings"
)

// codeFenceRe matches the first fenced code block regardless of its declared
// language tag.
var codeFenceRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*[ \\t]*\\n?(.*?)\\n?```")

// Candidate isolates the JSON-shaped substring of a raw model response.
// Attempts, in order: the interior of the first fenced code block; the
// substring between the first '{' and the last '}'; from the first '{' to
// the end of the text (a stream cut off before any closing brace); the
// trimmed raw text when no '{' exists at all, which downstream validation
// rejects with a clear not-JSON error instead of a repair attempt.
func Candidate(raw string) string {
	if m := codeFenceRe.FindStringSubmatch(raw); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}

	start := strings.Index(raw, "{")
	if start < 0 {
		return strings.TrimSpace(raw)
	}

	end := strings.LastIndex(raw, "}")
	if end > start {
		return raw[start : end+1]
	}
	return strings.TrimSpace(raw[start:])
}
