package action

import (
	"fmt"
)

// Reason classifies a parse failure.
type Reason string

const (
	ReasonEmpty            Reason = "empty_output"
	ReasonMissingSeparator Reason = "missing_separator"
	ReasonNoToolPattern    Reason = "no_tool_pattern"
	ReasonInvalidJSON      Reason = "invalid_json"
	ReasonMissingParam     Reason = "missing_param"
)

// maxExcerpt bounds the offending text quoted in diagnostics.
const maxExcerpt = 120

// ParseError describes why model output could not be turned into an Action.
type ParseError struct {
	Reason  Reason
	Detail  string
	Excerpt string
}

func (e *ParseError) Error() string {
	var what string
	switch e.Reason {
	case ReasonEmpty:
		what = "model output is empty"
	case ReasonMissingSeparator:
		what = "missing ':' between tool name and arguments"
	case ReasonNoToolPattern:
		what = "no line matches ToolName: {JSON}"
	case ReasonInvalidJSON:
		what = "tool arguments are not valid JSON"
	case ReasonMissingParam:
		what = "required parameter is missing"
	default:
		what = string(e.Reason)
	}
	if e.Detail != "" {
		what += " (" + e.Detail + ")"
	}
	if e.Excerpt == "" {
		return what
	}
	return fmt.Sprintf("%s; got: %q", what, e.Excerpt)
}

func newParseError(reason Reason, detail, text string) *ParseError {
	return &ParseError{Reason: reason, Detail: detail, Excerpt: truncate(text, maxExcerpt)}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
