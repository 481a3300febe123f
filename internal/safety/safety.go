// Package safety screens requests before the agent runs.
package safety

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Filter decides whether a request is refused before any model or tool call.
type Filter interface {
	Classify(query string) (block bool, message string)
}

// Category names.
const (
	PromptLeak = "prompt_leak"
	SQL        = "sql"
	Secret     = "secret"
	Illegal    = "illegal"
	Injection  = "injection"
)

// Category is one risk class with case-insensitive substring keywords.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Reason   string   `yaml:"reason"`
}

const genericReason = "This request may carry a security risk and cannot be carried out."

// DefaultCategories returns the built-in rules in priority order.
func DefaultCategories() []Category {
	return []Category{
		{
			Name: PromptLeak,
			Keywords: []string{
				"system prompt", "hidden system message", "隐藏的系统提示",
				"你是一位旅行助手", "强制执行的搜索顺序",
			},
			Reason: "System prompts and internal instructions are confidential and cannot be shown.",
		},
		{
			Name: SQL,
			Keywords: []string{
				"drop table", "delete from", "truncate table",
				"sql injection", "sql 注入",
			},
			Reason: "I can't provide SQL that deletes databases or damages systems.",
		},
		{
			Name: Secret,
			Keywords: []string{
				"api key", "token", "secret", "password",
				"密钥", "口令", "密码",
			},
			Reason: "I can't access or disclose API keys, passwords or private data.",
		},
		{
			Name: Illegal,
			Keywords: []string{
				"illegal", "违法", "犯罪", "exploit vulnerabilities",
				"hack", "黑客攻击", "欺诈", "fraud",
			},
			Reason: "I can't help with illegal or fraudulent activity.",
		},
		{
			Name: Injection,
			Keywords: []string{
				"ignore all previous instructions",
				"ignore previous instructions",
				"override all previous rules",
				"越狱", "解除所有限制", "忽略以上所有规则",
			},
			Reason: genericReason,
		},
	}
}

// KeywordFilter blocks requests that contain any category keyword. The
// first matching category in priority order picks the message.
type KeywordFilter struct {
	categories []Category
}

// NewKeywordFilter creates a filter. With no categories the built-in rules
// are used.
func NewKeywordFilter(categories ...Category) *KeywordFilter {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	cs := make([]Category, len(categories))
	for i, c := range categories {
		kw := make([]string, 0, len(c.Keywords))
		for _, k := range c.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		c.Keywords = kw
		cs[i] = c
	}
	return &KeywordFilter{categories: cs}
}

// Categories returns the active rules in priority order.
func (f *KeywordFilter) Categories() []Category {
	return f.categories
}

// Analyze reports, per category, whether query matches. The has_risk key
// is true when any category matched.
func (f *KeywordFilter) Analyze(query string) map[string]bool {
	text := strings.ToLower(query)
	out := make(map[string]bool, len(f.categories)+1)
	risky := false
	for _, c := range f.categories {
		hit := containsAny(text, c.Keywords)
		out[c.Name] = hit
		risky = risky || hit
	}
	out["has_risk"] = risky
	return out
}

// Match returns the highest priority category matching query.
func (f *KeywordFilter) Match(query string) (Category, bool) {
	text := strings.ToLower(query)
	for _, c := range f.categories {
		if containsAny(text, c.Keywords) {
			return c, true
		}
	}
	return Category{}, false
}

// Classify implements Filter.
func (f *KeywordFilter) Classify(query string) (bool, string) {
	c, ok := f.Match(query)
	if !ok {
		return false, ""
	}
	return true, Message(c)
}

// Message renders the refusal for a category.
func Message(c Category) string {
	reason := c.Reason
	if reason == "" {
		reason = genericReason
	}
	return fmt.Sprintf(
		"For safety reasons I can't carry out this request (%s). %s\n\n"+
			"If you have a normal question about travel planning, budgets or itineraries, I'm happy to help.",
		c.Name, reason)
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// RulesFile is the YAML rules document.
//
//	replace: false      # true drops the built-in rules
//	categories:
//	  - name: secret
//	    keywords: ["ssh key"]
//	    reason: "..."
type RulesFile struct {
	Replace    bool       `yaml:"replace"`
	Categories []Category `yaml:"categories"`
}

// LoadRules reads a rules file and merges it with the built-in rules.
// Keywords for an existing category are appended and a non-empty reason
// replaces the built-in one. New categories go after the built-ins.
func LoadRules(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read safety rules: %w", err)
	}
	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse safety rules: %w", err)
	}
	for i, c := range rf.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("safety rules: category %d has no name", i)
		}
	}
	if rf.Replace {
		if len(rf.Categories) == 0 {
			return nil, fmt.Errorf("safety rules: replace requires at least one category")
		}
		return rf.Categories, nil
	}

	merged := DefaultCategories()
	pos := make(map[string]int, len(merged))
	for i, c := range merged {
		pos[c.Name] = i
	}
	for _, c := range rf.Categories {
		if i, ok := pos[c.Name]; ok {
			merged[i].Keywords = append(merged[i].Keywords, c.Keywords...)
			if c.Reason != "" {
				merged[i].Reason = c.Reason
			}
			continue
		}
		pos[c.Name] = len(merged)
		merged = append(merged, c)
	}
	return merged, nil
}
