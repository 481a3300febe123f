package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vinayprograms/gatedagent/internal/action"
	"github.com/vinayprograms/gatedagent/internal/retrieval"
)

// DeclineMessage is the answer of a run whose evidence fails the gate.
const DeclineMessage = "Sorry, I can't provide a high-confidence answer because the collected evidence is insufficient."

// SearchDisabledObservation replaces search results when search is off.
const SearchDisabledObservation = "Search is disabled in this configuration; answer conservatively from the evidence already collected."

const systemPrompt = `You are a travel assistant. Gather complete information through several tool calls before answering.

Search order (one call per step, precise keywords):
1. Search: flights, e.g. "Paris flight price" or "Paris airfare cost"
2. Search: hotels, e.g. "paris hotel"
3. Search: attractions, e.g. "what attractions in Paris"
4. Search: food, e.g. "paris restaurants"
5. Calculator: total budget, e.g. "2000 + 250 + 1000 + 430"

Call the Calculator as soon as flight, hotel, attraction and food information is available. The total budget must come from the Calculator.
Do not search for information you already have.

Rules:
- Never search generic terms such as "itinerary", "travel guide" or "trip".
- Each search targets one category (lodging, transport, food, attractions).
- The final answer cites at least one source URL.
- Every price comes from search results. Never invent numbers.`

const developerPrompt = `Available tools and call format:
1. Search: {"query": "search text"}
2. Calculator: {"expression": "math expression"}

Output format:
- First line: ToolName: JSON arguments
- No extra explanation and no step numbers.

Correct:
Search: {"query": "hotels in Paris budget"}
Calculator: {"expression": "5000 - 2000"}

Wrong:
Step 1: Search: {"query": "..."}
I need to search for...

Calculator provides no evidence. Search provides content, source and score.`

const formatInstruction = "Now output the next tool call on one line, strictly in the format:\nToolName: JSON arguments"

// DefaultSystemPrompt is the built-in system prompt followed by the tool
// format instructions.
func DefaultSystemPrompt() string {
	return systemPrompt + "\n\n" + developerPrompt
}

// StepPrompt renders the prompt for the next thought.
func StepPrompt(system, query string, observations, usedTools []string) string {
	obs := "No observations yet."
	if len(observations) > 0 {
		lines := make([]string, len(observations))
		for i, o := range observations {
			lines[i] = fmt.Sprintf("Step %d: %s", i+1, o)
		}
		obs = strings.Join(lines, "\n")
	}
	used := "none"
	if len(usedTools) > 0 {
		used = strings.Join(usedTools, ", ")
	}

	var sb strings.Builder
	sb.WriteString(system)
	sb.WriteString("\n\nUser question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nKnown so far:\n")
	sb.WriteString(obs)
	sb.WriteString("\n\nTools already called: ")
	sb.WriteString(used)
	sb.WriteString("\n\nDo not repeat searches for information you already have.\n")
	sb.WriteString("If prices (lodging, food) are missing, call Search for them. Never make up numbers.\n\n")
	sb.WriteString(formatInstruction)
	return sb.String()
}

// RetryFeedback is appended to the step prompt after a failed parse.
func RetryFeedback(attempt int, diagnostic string) string {
	return fmt.Sprintf("\n\nYour previous reply (attempt %d) could not be used: %s\n"+
		"Reply with exactly one line such as:\nSearch: {\"query\": \"paris hotel\"}\n"+
		"or\nCalculator: {\"expression\": \"100 + 200\"}", attempt, diagnostic)
}

// FormatEvidence renders evidence as numbered prompt lines.
func FormatEvidence(evidence []retrieval.Evidence) string {
	if len(evidence) == 0 {
		return "(no evidence)"
	}
	lines := make([]string, len(evidence))
	for i, e := range evidence {
		lines[i] = fmt.Sprintf("[Evidence %d] %s (source: %s)", i+1, e.Content, e.Source)
	}
	return strings.Join(lines, "\n")
}

// SynthesisPrompt asks for the final answer grounded in the evidence.
func SynthesisPrompt(query string, evidence []retrieval.Evidence) string {
	return "You are a travel assistant. All information has been collected. Write the final travel advice from the evidence below.\n\n" +
		"User question: " + query + "\n\n" +
		"Collected evidence:\n" + FormatEvidence(evidence) + "\n\n" +
		"Cite at least one real source URL.\n\n" +
		"Notes:\n" +
		"- Do not output any tool call.\n" +
		"- Do not invent numbers. Every price must come from the evidence, cited by its URL rather than \"evidence 2\".\n" +
		"- Answer the question directly and concisely.\n" +
		"- Name hotels when you mention them.\n" +
		"- Give a detailed itinerary and budget."
}

var toolLine = regexp.MustCompile(`^\s*(?i:action\s*[:：]\s*)?([\p{L}_][\p{L}\p{N}_]*)\s*[:：]\s*[{｛]`)

var blankRun = regexp.MustCompile(`\n{3,}`)

// FormatOutput strips leaked tool-call lines and code fences from a
// synthesized answer.
func FormatOutput(answer string) string {
	lines := strings.Split(strings.ReplaceAll(answer, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		if m := toolLine.FindStringSubmatch(l); m != nil {
			if kind, _ := action.Canonicalize(m[1]); kind != action.KindUnknown {
				continue
			}
		}
		kept = append(kept, l)
	}
	out := strings.Join(kept, "\n")
	return strings.TrimSpace(blankRun.ReplaceAllString(out, "\n\n"))
}
