// Package metrics exposes Prometheus collectors for agent runs and tool
// executions, plus an optional CSV log of tool calls.
package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vinayprograms/gatedagent/internal/logging"
)

var (
	// RunsTotal counts finished runs by terminal status.
	// Labels: status (success, failed, blocked)
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatedagent",
		Subsystem: "agent",
		Name:      "runs_total",
		Help:      "Total agent runs by terminal status",
	}, []string{"status"})

	// StepsTotal counts executed steps.
	StepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatedagent",
		Subsystem: "agent",
		Name:      "steps_total",
		Help:      "Total executed agent steps",
	})

	// ParseFailuresTotal counts action parse failures by reason.
	// Labels: reason (empty_output, missing_separator, no_tool_pattern, invalid_json, missing_param, model_error)
	ParseFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatedagent",
		Subsystem: "parser",
		Name:      "failures_total",
		Help:      "Action parse failures by reason",
	}, []string{"reason"})

	// ParseExhaustedTotal counts steps recorded as UnknownTool after all retries failed.
	ParseExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatedagent",
		Subsystem: "parser",
		Name:      "exhausted_total",
		Help:      "Steps whose parse retries were exhausted",
	})

	// ToolCallsTotal counts tool executions by tool and status.
	// Labels: tool (Search, Calculator, ...), status (SUCCESS, ERROR, EMPTY, DISABLED)
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatedagent",
		Subsystem: "tool",
		Name:      "calls_total",
		Help:      "Tool executions by tool and status",
	}, []string{"tool", "status"})

	// ToolLatencySeconds measures tool execution latency.
	// Labels: tool
	ToolLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gatedagent",
		Subsystem: "tool",
		Name:      "latency_seconds",
		Help:      "Tool execution latency",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"tool"})

	// CacheRequestsTotal counts memoization lookups.
	// Labels: cache (calculator, search), result (hit, miss)
	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatedagent",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Memoization cache lookups by cache and result",
	}, []string{"cache", "result"})

	// RetrievalsTotal counts hybrid retrieval outcomes.
	// Labels: path (local, web, empty)
	RetrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatedagent",
		Subsystem: "retrieval",
		Name:      "queries_total",
		Help:      "Hybrid retrieval outcomes by path",
	}, []string{"path"})

	// WebSearchErrorsTotal counts failed web search backend calls.
	// Labels: provider
	WebSearchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatedagent",
		Subsystem: "retrieval",
		Name:      "web_errors_total",
		Help:      "Failed web search backend calls by provider",
	}, []string{"provider"})

	// GateVerdictsTotal counts evidence gate decisions.
	// Labels: verdict (pass, fail), reason
	GateVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatedagent",
		Subsystem: "gate",
		Name:      "verdicts_total",
		Help:      "Evidence gate verdicts",
	}, []string{"verdict", "reason"})

	// SafetyBlocksTotal counts requests rejected by the pre-filter.
	// Labels: category
	SafetyBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatedagent",
		Subsystem: "safety",
		Name:      "blocks_total",
		Help:      "Requests blocked by the safety pre-filter",
	}, []string{"category"})
)

// ToolRecorder records tool executions. The zero value only updates the
// Prometheus collectors; Open adds a CSV log.
type ToolRecorder struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	logger *logging.Logger
	failed bool // a write failure has been logged
}

// OpenToolRecorder appends tool execution rows to the CSV file at path,
// writing a header when the file is new. Write failures are reported once
// through logger, which may be nil.
func OpenToolRecorder(path string, logger *logging.Logger) (*ToolRecorder, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create metrics dir: %w", err)
	}
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open metrics file: %w", err)
	}
	w := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		if err := w.Write([]string{"Timestamp", "Tool_Name", "Status", "Latency", "Error_Log"}); err != nil {
			f.Close()
			return nil, fmt.Errorf("write metrics header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write metrics header: %w", err)
		}
	}
	return &ToolRecorder{file: f, writer: w, logger: logger.WithComponent("metrics")}, nil
}

// Observe records one tool execution.
func (r *ToolRecorder) Observe(tool, status string, start time.Time, d time.Duration, errMsg string) {
	ToolCallsTotal.WithLabelValues(tool, status).Inc()
	ToolLatencySeconds.WithLabelValues(tool).Observe(d.Seconds())

	if r == nil || r.writer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	latency := fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
	err := r.writer.Write([]string{start.Format("2006-01-02 15:04:05"), tool, status, latency, errMsg})
	if err == nil {
		r.writer.Flush()
		err = r.writer.Error()
	}
	if err != nil && !r.failed {
		r.failed = true
		r.logger.Error("tool metrics write failed", logging.Fields{
			"file":  r.file.Name(),
			"error": err.Error(),
		})
	}
}

// Close flushes and closes the CSV file.
func (r *ToolRecorder) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writer.Flush()
	flushErr := r.writer.Error()
	if err := r.file.Close(); err != nil {
		return err
	}
	return flushErr
}
