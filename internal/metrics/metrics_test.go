package metrics

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/gatedagent/internal/logging"
)

func TestToolRecorderCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "tool_metrics.csv")

	r, err := OpenToolRecorder(path, nil)
	require.NoError(t, err)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.Observe("Calculator", "SUCCESS", start, 1500*time.Microsecond, "")
	r.Observe("Search", "ERROR", start, 2*time.Millisecond, "timeout")
	require.NoError(t, r.Close())

	// reopening appends without a second header
	r, err = OpenToolRecorder(path, nil)
	require.NoError(t, err)
	r.Observe("Search", "SUCCESS", start, time.Millisecond, "")
	require.NoError(t, r.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Timestamp", "Tool_Name", "Status", "Latency", "Error_Log"}, rows[0])
	assert.Equal(t, []string{"2026-01-02 03:04:05", "Calculator", "SUCCESS", "1.50ms", ""}, rows[1])
	assert.Equal(t, "timeout", rows[2][4])
	assert.Equal(t, "Search", rows[3][1])
}

func TestNilRecorderUpdatesCounters(t *testing.T) {
	var r *ToolRecorder
	before := testutil.ToFloat64(ToolCallsTotal.WithLabelValues("MetricsTestTool", "SUCCESS"))
	r.Observe("MetricsTestTool", "SUCCESS", time.Now(), time.Millisecond, "")
	after := testutil.ToFloat64(ToolCallsTotal.WithLabelValues("MetricsTestTool", "SUCCESS"))
	assert.Equal(t, before+1, after)
	assert.NoError(t, r.Close())
}

func TestToolRecorderLogsWriteFailureOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New()
	logger.SetOutput(&buf)
	logger.SetFormat("json")

	r, err := OpenToolRecorder(filepath.Join(t.TempDir(), "tool_metrics.csv"), logger)
	require.NoError(t, err)
	require.NoError(t, r.file.Close())

	r.Observe("Search", "SUCCESS", time.Now(), time.Millisecond, "")
	r.Observe("Search", "SUCCESS", time.Now(), time.Millisecond, "")

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("tool metrics write failed")))
	assert.Contains(t, buf.String(), `"component":"metrics"`)
	assert.Error(t, r.Close())
}
