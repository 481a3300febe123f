package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/gatedagent/internal/action"
	"github.com/vinayprograms/gatedagent/internal/logging"
	"github.com/vinayprograms/gatedagent/internal/retrieval"
	"github.com/vinayprograms/gatedagent/internal/tools"
)

// Tool call statuses used in metrics.
const (
	toolSuccess  = "SUCCESS"
	toolError    = "ERROR"
	toolEmpty    = "EMPTY"
	toolDisabled = "DISABLED"
	toolNotFound = "NOT_FOUND"
)

// dispatch executes act and returns its observation and any evidence.
// Panics inside a tool are recovered into an observation.
func (c *Controller) dispatch(ctx context.Context, logger *logging.Logger, act action.Action) (obs string, evidence []retrieval.Evidence) {
	start := time.Now()
	status := toolSuccess
	var errMsg string

	logger.ToolCall(act.Tool, act.Input())
	defer func() {
		if r := recover(); r != nil {
			obs = fmt.Sprintf("tool execution error: %v", r)
			evidence = nil
			status = toolError
			errMsg = fmt.Sprint(r)
		}
		d := time.Since(start)
		c.recorder.Observe(act.Tool, status, start, d, errMsg)

		var err error
		if errMsg != "" {
			err = fmt.Errorf("%s", errMsg)
		}
		logger.ToolResult(act.Tool, d, err)
	}()

	switch act.Kind {
	case action.KindCalculator:
		res, _ := c.calc.Run(act.Expression)
		if res.Status == tools.StatusSuccess {
			return res.Result, nil
		}
		status, errMsg = toolError, res.Message
		return "calculation error: " + res.Message, nil

	case action.KindSearch:
		if !c.cfg.EnableSearch {
			status = toolDisabled
			return SearchDisabledObservation, nil
		}
		if c.search == nil {
			status = toolEmpty
			return "search failed: no results", nil
		}
		res, err := c.search.Search(ctx, act.Query)
		if err != nil {
			status, errMsg = toolError, err.Error()
			return "search failed: " + err.Error(), nil
		}
		if res.Status != retrieval.StatusSuccess || len(res.Items) == 0 {
			status = toolEmpty
			return "search failed: no results", nil
		}
		lines := make([]string, len(res.Items))
		for i, it := range res.Items {
			lines[i] = "- " + it.Content
		}
		evidence = append([]retrieval.Evidence(nil), res.Items...)
		return strings.Join(lines, "\n"), evidence

	default:
		status = toolNotFound
		return fmt.Sprintf("Tool %s not found.", act.Tool), nil
	}
}
