package action

import (
	"strings"
	"unicode"
)

// Repair applies deterministic fixes to a malformed JSON object: trailing
// commas are dropped, bare keys quoted, single-quoted strings converted to
// double quotes, and unbalanced braces or brackets closed. Text after the
// balanced object is discarded. Well-formed input is returned unchanged
// apart from that trimming.
func Repair(s string) string {
	s = strings.TrimSpace(s)
	var out strings.Builder
	var stack []rune

	const (
		none = iota
		double
		single
	)
	state := none
	escaped := false
	runes := []rune(s)

	lastSignificant := func() rune {
		b := []rune(out.String())
		for i := len(b) - 1; i >= 0; i-- {
			if !unicode.IsSpace(b[i]) {
				return b[i]
			}
		}
		return 0
	}
	nextSignificant := func(i int) rune {
		for ; i < len(runes); i++ {
			if !unicode.IsSpace(runes[i]) {
				return runes[i]
			}
		}
		return 0
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch state {
		case double:
			out.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				state = none
			}
			continue
		case single:
			switch {
			case escaped:
				escaped = false
				if r == '\'' {
					out.WriteRune('\'')
				} else {
					out.WriteRune('\\')
					out.WriteRune(r)
				}
			case r == '\\':
				escaped = true
			case r == '"':
				out.WriteString(`\"`)
			case r == '\'':
				out.WriteRune('"')
				state = none
			default:
				out.WriteRune(r)
			}
			continue
		}

		switch {
		case r == '"':
			state = double
			out.WriteRune(r)
		case r == '\'':
			state = single
			out.WriteRune('"')
		case r == '{' || r == '[':
			stack = append(stack, r)
			out.WriteRune(r)
		case r == '}' || r == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			out.WriteRune(r)
			if len(stack) == 0 {
				return out.String()
			}
		case r == ',':
			if n := nextSignificant(i + 1); n == '}' || n == ']' || n == 0 {
				continue
			}
			out.WriteRune(r)
		case (unicode.IsLetter(r) || r == '_') && (lastSignificant() == '{' || lastSignificant() == ','):
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			ident := string(runes[i:j])
			if nextSignificant(j) == ':' {
				out.WriteString(`"` + ident + `"`)
			} else {
				out.WriteString(ident)
			}
			i = j - 1
		default:
			out.WriteRune(r)
		}
	}

	if state != none {
		if escaped && state == double {
			out.WriteRune('\\')
		}
		out.WriteRune('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out.WriteRune('}')
		} else {
			out.WriteRune(']')
		}
	}
	return out.String()
}
