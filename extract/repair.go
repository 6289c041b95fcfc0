package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrRepairFailed is returned when every repair stage is exhausted without
// producing parseable JSON.
var ErrRepairFailed = errors.New("extract: json repair failed")

// Repair parses candidate, applying repair stages of increasing
// aggressiveness until one produces valid JSON. It returns the parsed value
// and the stage that succeeded: 0 for a direct parse, 1 after quote
// sanitization, 2 after truncation repair, 3 after aggressive truncation.
// The stages only ever remove or escape characters already present; nothing
// plausible-looking is fabricated to mask a genuine failure.
func Repair(candidate string) (any, int, error) {
	s := strings.TrimSpace(candidate)

	if v, err := parseJSON(s); err == nil {
		return v, 0, nil
	}

	sanitized := sanitizeQuotes(s)
	if v, err := parseJSON(sanitized); err == nil {
		return v, 1, nil
	}

	if v, err := parseJSON(repairTruncation(sanitized)); err == nil {
		return v, 2, nil
	}

	// The aggressive stage rescans the sanitized text rather than stage 2's
	// output: the closers stage 2 appends would otherwise register as
	// complete-value ends and defeat the truncation.
	v, err := parseJSON(repairAggressive(sanitized))
	if err != nil {
		return nil, 3, fmt.Errorf("%w: %v", ErrRepairFailed, err)
	}
	return v, 3, nil
}

func parseJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// sanitizeQuotes rewrites unescaped quotes and control bytes inside string
// literals. A '"' inside a string closes it only when the next character
// after optional spaces and tabs is a structural delimiter; any other '"' is
// an internal quote and is emitted escaped. Literal newline, carriage return,
// and tab bytes inside strings become their escape sequences.
func sanitizeQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\\':
			escaped = true
			b.WriteByte(c)
		case '"':
			if closesString(s, i+1) {
				inString = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// closesString reports whether a '"' at position i-1 ends its string
// literal: the next character after optional spaces and tabs must be a
// structural delimiter or end of input.
func closesString(s string, i int) bool {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	if i >= len(s) {
		return true
	}
	switch s[i] {
	case ',', ']', '}', ':', '\n', '\r':
		return true
	}
	return false
}

// repairTruncation mends a response cut off mid-generation: trailing commas
// before closers are dropped, an unterminated trailing string is closed, a
// dangling `"key":` with no value is stripped, and every still-open bracket
// is closed in LIFO order.
func repairTruncation(s string) string {
	s = stripTrailingCommas(s)

	stack, inString, escaped := scanBrackets(s)
	if inString {
		if escaped {
			// The cut landed on a lone backslash; drop it so the appended
			// quote actually terminates the string.
			s = s[:len(s)-1]
		}
		s += `"`
	}

	s = stripDanglingKey(s)
	s = strings.TrimRight(s, " \t\n\r")
	s = strings.TrimSuffix(s, ",")

	return closeBrackets(s, stack)
}

// repairAggressive truncates at the last position where a complete value
// ended, discarding an incomplete trailing element entirely rather than
// trying to salvage it, then rebalances the remaining open brackets. When no
// complete value end exists the input is only closed and rebalanced.
func repairAggressive(s string) string {
	if end := lastCompleteValueEnd(s); end >= 0 {
		s = s[:end+1]
		s = strings.TrimRight(s, " \t\n\r")
		s = strings.TrimSuffix(s, ",")
	}

	stack, inString, escaped := scanBrackets(s)
	if inString {
		if escaped {
			s = s[:len(s)-1]
		}
		s += `"`
	}
	return closeBrackets(s, stack)
}

// stripTrailingCommas removes commas that directly precede a closing bracket
// or brace, ignoring commas inside string literals.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpaceByte(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// scanBrackets walks the string tracking quote and escape state and returns
// the stack of still-open brackets plus the string state at end of input.
func scanBrackets(s string) (stack []byte, inString, escaped bool) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return stack, inString, escaped
}

func closeBrackets(s string, stack []byte) string {
	var b strings.Builder
	b.Grow(len(s) + len(stack))
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// danglingKeyRe matches a trailing object key with no value, with its
// preceding comma.
var danglingKeyRe = regexp.MustCompile(`,?\s*"(?:[^"\\]|\\.)*"\s*:\s*$`)

func stripDanglingKey(s string) string {
	loc := danglingKeyRe.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]]
}

// lastCompleteValueEnd returns the byte index of the last position at which
// a complete value ended: the closing quote of a string in value position,
// or a bracket that closed a nested container. A quote followed by a colon
// is an object key, not a value, and does not count. Returns -1 when no
// complete value exists.
func lastCompleteValueEnd(s string) int {
	end := -1
	inString := false
	escaped := false
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
				if valuePosition(s, i+1) {
					end = i
				}
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth >= 1 {
				end = i
			}
		}
	}
	return end
}

// valuePosition reports whether the characters following a closing quote
// mark the string as a value (separator or end of input next) rather than an
// object key (colon next).
func valuePosition(s string, i int) bool {
	for i < len(s) && isSpaceByte(s[i]) {
		i++
	}
	if i >= len(s) {
		return true
	}
	return s[i] == ',' || s[i] == '}' || s[i] == ']'
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
