package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const timeLayout = "20060102_150405"

// FileStore writes one JSON document per run into a directory, named
// trace_<runid>_<yyyymmdd_hhmmss>.json after the run's start time.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-based store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the trace directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file a trace is written to.
func (s *FileStore) Path(t *Trace) string {
	return filepath.Join(s.dir, fmt.Sprintf("trace_%s_%s.json", t.RunID, t.StartedAt.Format(timeLayout)))
}

// Save rewrites the trace document. The file is replaced atomically so a
// reader never sees a partial document.
func (s *FileStore) Save(_ context.Context, t *Trace) error {
	if strings.ContainsAny(t.RunID, `/\`) {
		return fmt.Errorf("invalid run id %q", t.RunID)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	path := s.Path(t)
	tmp, err := os.CreateTemp(s.dir, ".trace-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write trace: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write trace: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace trace: %w", err)
	}
	return nil
}

// Load reads the most recent trace for runID.
func (s *FileStore) Load(_ context.Context, runID string) (*Trace, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "trace_"+escapeGlob(runID)+"_*.json"))
	if err != nil {
		return nil, err
	}
	// the timestamp suffix sorts chronologically
	var latest string
	for _, m := range matches {
		if idOf(filepath.Base(m)) == runID && m > latest {
			latest = m
		}
	}
	if latest == "" {
		return nil, fmt.Errorf("%s: %w", runID, ErrNotFound)
	}
	return LoadFile(latest)
}

// LoadFile reads a trace document from path.
func LoadFile(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if t.RunID == "" {
		t.RunID = idOf(filepath.Base(path))
	}
	return &t, nil
}

// List returns every stored run, newest first.
func (s *FileStore) List(_ context.Context) ([]Summary, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "trace_*.json"))
	if err != nil {
		return nil, err
	}
	var out []Summary
	for _, m := range matches {
		t, err := LoadFile(m)
		if err != nil {
			continue
		}
		out = append(out, Summary{
			RunID:     t.RunID,
			Query:     t.Query,
			Status:    t.Status,
			Steps:     len(t.Steps),
			StartedAt: t.StartedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// idOf extracts the run ID from trace_<runid>_<date>_<time>.json.
func idOf(name string) string {
	name = strings.TrimSuffix(strings.TrimPrefix(name, "trace_"), ".json")
	// strip the two timestamp fields
	for i := 0; i < 2; i++ {
		if j := strings.LastIndex(name, "_"); j >= 0 {
			name = name[:j]
		}
	}
	return name
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}
