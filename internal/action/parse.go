package action

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
)

var (
	fenceRe   = regexp.MustCompile("```[A-Za-z]*")
	markerRe  = regexp.MustCompile(`(?i)\baction\s*:`)
	toolRe    = regexp.MustCompile(`([\p{L}_][\p{L}\p{N}_]*)\s*:\s*(\{.*)$`)
	widthRepl = strings.NewReplacer(
		"：", ":",
		"｛", "{",
		"｝", "}",
		"＂", `"`,
		"“", `"`,
		"”", `"`,
		"‘", "'",
		"’", "'",
	)
)

// Normalize strips code fences and backticks and converts full-width
// punctuation and curly quotes to their ASCII forms.
func Normalize(s string) string {
	s = fenceRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "`", "")
	return widthRepl.Replace(s)
}

// Parse converts raw model output into an Action. It never panics; on
// failure the returned *ParseError names the cause and quotes the offending
// text.
func Parse(text string) (Action, *ParseError) {
	norm := Normalize(text)
	if strings.TrimSpace(norm) == "" {
		return Action{}, newParseError(ReasonEmpty, "", text)
	}

	line, ok := locate(norm)
	if !ok {
		if !strings.Contains(line, ":") {
			return Action{}, newParseError(ReasonMissingSeparator, "", line)
		}
		return Action{}, newParseError(ReasonNoToolPattern, "", line)
	}

	m := toolRe.FindStringSubmatchIndex(line)
	name, body := line[m[2]:m[3]], line[m[4]:m[5]]
	if kind, _ := Canonicalize(name); kind == KindUnknown {
		// "I think Search is good: {...}" names the tool in the prose
		if alias, ok := aliasBefore(line[:m[2]]); ok {
			name = alias
		}
	}

	args, err := decodeArgs(body)
	if err != nil {
		return Action{}, newParseError(ReasonInvalidJSON, err.Error(), line)
	}
	return build(name, args, line)
}

// locate picks the line holding the tool call. Preference order: the text
// after an "Action:" marker, the first line naming a known tool, the first
// line shaped like a tool call. When nothing matches it returns the marker
// text or the last non-empty line for diagnostics.
func locate(text string) (string, bool) {
	lines := strings.Split(text, "\n")

	var marked string
	if locs := markerRe.FindAllStringIndex(text, -1); len(locs) > 0 {
		rest := text[locs[len(locs)-1][1]:]
		restLines := strings.Split(rest, "\n")
		for i, l := range restLines {
			if strings.TrimSpace(l) == "" {
				continue
			}
			marked = joinContinuation(restLines, i)
			break
		}
		if toolRe.MatchString(marked) {
			return marked, true
		}
	}

	firstShaped := -1
	for i, l := range lines {
		m := toolRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		if kind, _ := Canonicalize(m[1]); kind != KindUnknown {
			return joinContinuation(lines, i), true
		}
		if firstShaped < 0 {
			firstShaped = i
		}
	}
	if firstShaped >= 0 {
		return joinContinuation(lines, firstShaped), true
	}

	if marked != "" {
		return marked, false
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l, false
		}
	}
	return "", false
}

// aliasBefore returns the last word of prose that names a known tool.
func aliasBefore(prose string) (string, bool) {
	words := strings.FieldsFunc(prose, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
	})
	for i := len(words) - 1; i >= 0; i-- {
		if kind, _ := Canonicalize(words[i]); kind != KindUnknown {
			return words[i], true
		}
	}
	return "", false
}

// joinContinuation returns lines[i], extended with following lines while its
// braces are unbalanced, so multi-line JSON arguments stay together.
func joinContinuation(lines []string, i int) string {
	out := strings.TrimSpace(lines[i])
	for j := i + 1; j < len(lines) && braceDepth(out) > 0; j++ {
		out += " " + strings.TrimSpace(lines[j])
	}
	return out
}

// braceDepth counts unclosed '{' outside of string literals.
func braceDepth(s string) int {
	depth := 0
	inStr := false
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inStr:
			escaped = true
		case r == '"':
			inStr = !inStr
		case inStr:
		case r == '{':
			depth++
		case r == '}':
			depth--
		}
	}
	return depth
}

// decodeArgs decodes the first JSON object in body, ignoring trailing text.
// On failure it applies the deterministic repairs and retries once, then
// falls back to a general-purpose JSON repairer.
func decodeArgs(body string) (map[string]interface{}, error) {
	args, firstErr := decodeObject(body)
	if firstErr == nil {
		return args, nil
	}
	if args, err := decodeObject(Repair(body)); err == nil {
		return args, nil
	}
	if repaired, err := jsonrepair.RepairJSON(body); err == nil {
		if args, err := decodeObject(repaired); err == nil {
			return args, nil
		}
	}
	return nil, firstErr
}

func decodeObject(s string) (map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return obj, nil
}

func build(name string, args map[string]interface{}, line string) (Action, *ParseError) {
	kind, canonical := Canonicalize(name)
	switch kind {
	case KindSearch:
		q := stringParam(args, "query", "q")
		if strings.TrimSpace(q) == "" {
			return Action{}, newParseError(ReasonMissingParam, `Search needs "query"`, line)
		}
		return Action{Kind: KindSearch, Tool: canonical, Query: q}, nil
	case KindCalculator:
		e := stringParam(args, "expression", "expr")
		if strings.TrimSpace(e) == "" {
			return Action{}, newParseError(ReasonMissingParam, `Calculator needs "expression"`, line)
		}
		return Action{Kind: KindCalculator, Tool: canonical, Expression: e}, nil
	default:
		return Action{Kind: KindUnknown, Tool: canonical, Raw: args}, nil
	}
}

func stringParam(args map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		v, ok := args[k]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			return val
		case json.Number:
			return val.String()
		case bool:
			return fmt.Sprintf("%v", val)
		}
	}
	return ""
}
