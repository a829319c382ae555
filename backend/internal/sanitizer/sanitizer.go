// Package sanitizer recovers syntactically valid JSON from model output.
//
// Recovery is staged. Each stage runs only when the output of the previous one
// still fails a strict parse, so well-formed responses pass through untouched.
package sanitizer

import (
	"encoding/json"
	"strings"
)

// Stage names the recovery step that produced a candidate
type Stage string

const (
	// StageDirect means the fence-stripped text parsed as is
	StageDirect Stage = "direct"
	// StageExtracted means the first balanced object parsed once surrounding text was dropped
	StageExtracted Stage = "extracted"
	// StageRepaired means character-level repair produced parseable JSON
	StageRepaired Stage = "repaired"
	// StageUnrecovered means every stage ran and the candidate still does not parse
	StageUnrecovered Stage = "unrecovered"
)

// Sanitize returns the best-effort JSON candidate for raw. It never fails; the
// result may still be unparseable.
func Sanitize(raw string) string {
	out, _ := SanitizeWithStage(raw)
	return out
}

// SanitizeWithStage is Sanitize that also reports which stage produced the candidate
func SanitizeWithStage(raw string) (string, Stage) {
	s := StripFences(raw)
	if valid(s) {
		return s, StageDirect
	}

	obj := ExtractObject(s)
	if obj != "" && valid(obj) {
		return obj, StageExtracted
	}
	if obj == "" {
		obj = s
	}

	repaired := Repair(obj)
	if valid(repaired) {
		return repaired, StageRepaired
	}
	return repaired, StageUnrecovered
}

func valid(s string) bool {
	return s != "" && json.Valid([]byte(s))
}

// StripFences removes a leading ```json or ``` marker, a trailing ``` marker,
// and surrounding whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractObject returns the substring from the first '{' to the brace that
// closes it, skipping braces inside string literals and comments. When the
// object never closes, the text is cut after the last '}' if everything past
// it reads as prose; otherwise the remainder of s is returned so truncated
// output can still be repaired. It returns "" when s contains no '{'.
func ExtractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '"' || c == '\'':
			quote = c
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return s[start:]
			}
			i += 2 + end + 1
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	last := strings.LastIndexByte(s, '}')
	if last > start && !strings.ContainsAny(s[last+1:], "{[:") {
		return s[start : last+1]
	}
	return s[start:]
}

// Repair applies every character-level fix in order
func Repair(s string) string {
	s = StripComments(s)
	s = ConvertQuotes(s)
	s = StripTrailingCommas(s)
	s = QuoteBareKeys(s)
	return BalanceBrackets(s)
}

// StripComments removes // line comments and /* */ block comments that
// appear outside string literals.
func StripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += 2 + end + 1
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

type quoteState int

const (
	outside quoteState = iota
	inDouble
	inSingle
)

// ConvertQuotes rewrites single-quoted string literals as double-quoted ones.
// Quote characters inside an open double-quoted string are left alone, so
// apostrophes in ordinary strings survive. Inside a converted literal, bare
// double quotes are escaped and \' becomes a plain apostrophe.
func ConvertQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	state := outside
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case outside:
			switch c {
			case '"':
				state = inDouble
				b.WriteByte(c)
			case '\'':
				state = inSingle
				b.WriteByte('"')
			default:
				b.WriteByte(c)
			}

		case inDouble:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				state = outside
			}

		case inSingle:
			switch {
			case c == '\\' && i+1 < len(s) && s[i+1] == '\'':
				b.WriteByte('\'')
				i++
			case c == '\\' && i+1 < len(s):
				b.WriteByte(c)
				i++
				b.WriteByte(s[i])
			case c == '"':
				b.WriteString(`\"`)
			case c == '\'':
				state = outside
				b.WriteByte('"')
			default:
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// StripTrailingCommas drops commas that are followed, after optional
// whitespace, by '}' or ']'.
func StripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
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

// QuoteBareKeys wraps identifier keys in double quotes. An identifier is a
// key when it directly follows '{' or ',' and is followed by ':'.
func QuoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	var prev byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				inString = false
				prev = c
			}
			continue
		}

		if isIdentStart(c) && (prev == '{' || prev == ',') {
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			k := j
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			ident := s[i:j]
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(ident)
				b.WriteByte('"')
				prev = '"'
			} else {
				b.WriteString(ident)
				prev = s[j-1]
			}
			i = j - 1
			continue
		}

		if c == '"' {
			inString = true
		}
		if !isSpace(c) {
			prev = c
		}
		b.WriteByte(c)
	}
	return b.String()
}

// BalanceBrackets closes whatever truncation left open. An unterminated string
// is closed first, a dangling comma is dropped, a dangling colon gets a null
// value, and then the missing closers are appended innermost first.
func BalanceBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		if escaped {
			s = s[:len(s)-1]
		}
		s += `"`
	}
	if len(stack) == 0 {
		return s
	}

	s = strings.TrimRight(s, " \t\r\n")
	if strings.HasSuffix(s, ",") {
		s = strings.TrimRight(s[:len(s)-1], " \t\r\n")
	}
	if strings.HasSuffix(s, ":") {
		s += "null"
	}

	var b strings.Builder
	b.Grow(len(s) + len(stack))
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
