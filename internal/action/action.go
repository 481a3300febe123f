// Package action turns free-form model output into a structured tool call.
package action

import (
	"strings"
)

// Kind tags the capability an action dispatches to.
type Kind int

const (
	KindUnknown Kind = iota
	KindSearch
	KindCalculator
)

// Canonical tool names as they appear in prompts, traces and used-tool lists.
const (
	ToolSearch     = "Search"
	ToolCalculator = "Calculator"
	ToolUnknown    = "UnknownTool"
	ToolSafety     = "SafetyGuard"
)

func (k Kind) String() string {
	switch k {
	case KindSearch:
		return ToolSearch
	case KindCalculator:
		return ToolCalculator
	default:
		return ToolUnknown
	}
}

// Action is a parsed tool call. Exactly one of Query or Expression is set for
// Search and Calculator; Raw holds the decoded arguments of any other tool.
type Action struct {
	Kind       Kind
	Tool       string
	Query      string
	Expression string
	Raw        map[string]interface{}
}

// Unknown is the action recorded when parsing fails after all retries.
func Unknown() Action {
	return Action{Kind: KindUnknown, Tool: ToolUnknown, Raw: map[string]interface{}{}}
}

// Params returns the parameter value persisted in traces: the query for
// Search, the expression for Calculator, otherwise the raw argument object.
func (a Action) Params() interface{} {
	switch a.Kind {
	case KindSearch:
		return a.Query
	case KindCalculator:
		return a.Expression
	default:
		if a.Raw == nil {
			return map[string]interface{}{}
		}
		return a.Raw
	}
}

// Input is the exact tool input, used as the memoization key.
func (a Action) Input() string {
	switch a.Kind {
	case KindSearch:
		return a.Query
	case KindCalculator:
		return a.Expression
	default:
		return ""
	}
}

var aliases = map[string]Kind{
	"search":       KindSearch,
	"websearch":    KindSearch,
	"smartsearch":  KindSearch,
	"googlesearch": KindSearch,
	"搜索":           KindSearch,
	"查询":           KindSearch,
	"检索":           KindSearch,
	"calculator":   KindCalculator,
	"calc":         KindCalculator,
	"calculate":    KindCalculator,
	"math":         KindCalculator,
	"计算器":          KindCalculator,
	"计算":           KindCalculator,
}

// Canonicalize maps a tool name as written by the model to its Kind and
// canonical name. Matching ignores case, spaces, underscores and hyphens.
// Unrecognized names keep their original spelling.
func Canonicalize(name string) (Kind, string) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	switch kind := aliases[key]; kind {
	case KindSearch, KindCalculator:
		return kind, kind.String()
	}
	return KindUnknown, strings.TrimSpace(name)
}
