// Package tools implements the agent's local tools and their memoization.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
)

// Calculator result statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// maxExpressionLen bounds the sanitized expression.
const maxExpressionLen = 100

// maxExact is the largest magnitude float64 holds without losing integer
// precision (2^53).
const maxExact = 1 << 53

var (
	errDivisionByZero = errors.New("Division by zero")
	errTooLarge       = errors.New("Number too large to compute exactly")
)

// Anything but digits, decimal point, arithmetic operators, parentheses and
// whitespace is stripped before evaluation.
var unsafeChars = regexp.MustCompile(`[^0-9.+\-*/%()\s]`)

// CalcResult is the structured outcome of one calculation.
type CalcResult struct {
	Status        string `json:"status"`
	OriginalInput string `json:"original_input,omitempty"`
	CleanedInput  string `json:"cleaned_input,omitempty"`
	Result        string `json:"result,omitempty"`
	Message       string `json:"message,omitempty"`
}

// JSON renders the result as the tool's wire form.
func (r CalcResult) JSON() string {
	b, _ := json.Marshal(r)
	return string(b)
}

// Calculator sanitizes and evaluates arithmetic expressions.
type Calculator struct {
	cache *Cache[CalcResult]
}

// NewCalculator creates a calculator. A nil cache disables memoization.
func NewCalculator(cache *Cache[CalcResult]) *Calculator {
	return &Calculator{cache: cache}
}

// Run evaluates expression. Repeated identical inputs are served from the
// cache when one is configured. The boolean reports a cache hit.
func (c *Calculator) Run(expression string) (CalcResult, bool) {
	if c == nil || c.cache == nil {
		return Evaluate(expression), false
	}
	res, hit, _ := c.cache.Do(expression, func() (CalcResult, error) {
		return Evaluate(expression), nil
	})
	return res, hit
}

// Evaluate sanitizes and evaluates a single expression. It never panics.
func Evaluate(expression string) CalcResult {
	cleaned := unsafeChars.ReplaceAllString(expression, "")
	if strings.TrimSpace(cleaned) == "" {
		return CalcResult{Status: StatusError, Message: "No valid math expression found"}
	}
	if len(cleaned) > maxExpressionLen {
		return CalcResult{Status: StatusError, Message: "Expression too long"}
	}

	lift := &floatLifter{}
	// Constant folding is off so division errors surface at run time.
	program, err := expr.Compile(cleaned,
		expr.Optimize(false),
		expr.Patch(lift),
		expr.Function("mod", floatMod, new(func(float64, float64) float64)),
	)
	if err != nil {
		return CalcResult{Status: StatusError, Message: "Invalid syntax in: " + cleaned}
	}
	if lift.tooLarge {
		return CalcResult{Status: StatusError, Message: errTooLarge.Error()}
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		if errors.Is(err, errDivisionByZero) || strings.Contains(err.Error(), errDivisionByZero.Error()) {
			return CalcResult{Status: StatusError, Message: errDivisionByZero.Error()}
		}
		return CalcResult{Status: StatusError, Message: err.Error()}
	}

	formatted, err := formatNumber(out)
	if err != nil {
		return CalcResult{Status: StatusError, Message: err.Error()}
	}
	return CalcResult{
		Status:        StatusSuccess,
		OriginalInput: expression,
		CleanedInput:  cleaned,
		Result:        formatted,
	}
}

// floatLifter evaluates everything on float64: integer literals become
// floats and % becomes a call to mod. Go integers would wrap silently.
type floatLifter struct {
	tooLarge bool
}

func (l *floatLifter) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IntegerNode:
		if n.Value > maxExact || n.Value < -maxExact {
			l.tooLarge = true
		}
		ast.Patch(node, &ast.FloatNode{Value: float64(n.Value)})
	case *ast.FloatNode:
		if math.Abs(n.Value) > maxExact {
			l.tooLarge = true
		}
	case *ast.BinaryNode:
		if n.Operator == "%" {
			ast.Patch(node, &ast.CallNode{
				Callee:    &ast.IdentifierNode{Value: "mod"},
				Arguments: []ast.Node{n.Left, n.Right},
			})
		}
	}
}

// floatMod is a modulo whose result takes the sign of the divisor, so
// -7 % 3 is 2.
func floatMod(params ...any) (any, error) {
	a, b := params[0].(float64), params[1].(float64)
	if b == 0 {
		return nil, errDivisionByZero
	}
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r, nil
}

// formatNumber renders integral values without a fractional part and other
// floats in their shortest exact form.
func formatNumber(v interface{}) (string, error) {
	n, ok := v.(float64)
	if !ok {
		return "", fmt.Errorf("expression did not evaluate to a number: %v", v)
	}
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return "", errDivisionByZero
	}
	if math.Abs(n) > maxExact {
		return "", errTooLarge
	}
	if n == math.Trunc(n) {
		return strconv.FormatFloat(n, 'f', 0, 64), nil
	}
	return strconv.FormatFloat(n, 'f', -1, 64), nil
}
