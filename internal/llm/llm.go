// Package llm provides the language model collaborators used by the agent loop.
package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNoChoices is returned when a provider answers without any completion.
var ErrNoChoices = errors.New("model returned no choices")

// Model generates text for a prompt at a given sampling temperature.
type Model interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Streamer is implemented by models that can yield partial output. The
// complete text is returned once the stream ends.
type Streamer interface {
	Stream(ctx context.Context, prompt string, temperature float64, fn func(chunk string)) (string, error)
}

// isRateLimitError checks if the error is a rate limit error.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "overloaded")
}

// isServerError checks if the error is a transient server error (5xx).
func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout")
}

// isRetryableError checks if the error is retryable (rate limit or server error).
func isRetryableError(err error) bool {
	return isRateLimitError(err) || isServerError(err)
}

// Call is one recorded Mock invocation.
type Call struct {
	Prompt      string
	Temperature float64
}

// Mock is a scripted Model for tests. Responses are returned in order; once
// the script runs out the last response repeats. Func, when set, overrides
// the script.
type Mock struct {
	Responses []string
	Err       error
	Func      func(prompt string, temperature float64) (string, error)

	mu    sync.Mutex
	calls []Call
	next  int
}

// NewMock creates a Mock that replays responses.
func NewMock(responses ...string) *Mock {
	return &Mock{Responses: responses}
}

// Generate implements Model.
func (m *Mock) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Prompt: prompt, Temperature: temperature})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Func != nil {
		return m.Func(prompt, temperature)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", ErrNoChoices
	}
	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.next++
	return m.Responses[idx], nil
}

// Stream implements Streamer by emitting the scripted response word by word.
func (m *Mock) Stream(ctx context.Context, prompt string, temperature float64, fn func(chunk string)) (string, error) {
	out, err := m.Generate(ctx, prompt, temperature)
	if err != nil {
		return "", err
	}
	words := strings.SplitAfter(out, " ")
	for _, w := range words {
		if w != "" {
			fn(w)
		}
	}
	return out, nil
}

// Calls returns a copy of the recorded invocations.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many times Generate was invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
