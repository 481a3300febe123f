package trace

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/gatedagent/internal/retrieval"
)

func sampleSteps() []Step {
	return []Step{
		{
			StepID:      1,
			Thought:     `Search: {"query": "paris hotel"}`,
			Action:      Action{ToolName: "Search", Params: "paris hotel"},
			Observation: "- cheap hotels",
			Evidence:    []retrieval.Evidence{{Content: "cheap hotels", Source: "https://a.com", Score: 0.85}},
		},
		{
			StepID:      2,
			Thought:     `Calculator: {"expression": "1+1"}`,
			Action:      Action{ToolName: "Calculator", Params: "1+1"},
			Observation: "2",
		},
		{
			StepID:      3,
			Thought:     `Weather: {"city": "Paris"}`,
			Action:      Action{ToolName: "Weather", Params: map[string]interface{}{"city": "Paris"}},
			Observation: "Tool Weather not found.",
		},
	}
}

// exerciseStore runs the shared Store contract.
func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()

	rec := NewRecorder(store, "run1", "plan paris", nil)
	for _, s := range sampleSteps() {
		rec.Step(ctx, s)

		loaded, err := store.Load(ctx, "run1")
		if err != nil {
			t.Fatalf("load after step %d: %v", s.StepID, err)
		}
		if len(loaded.Steps) != s.StepID {
			t.Errorf("expected %d persisted steps, got %d", s.StepID, len(loaded.Steps))
		}
		if loaded.Final != nil {
			t.Error("final should be null before the run ends")
		}
	}
	rec.Finish(ctx, "success", "Go to Paris.")

	loaded, err := store.Load(ctx, "run1")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if loaded.Status != "success" {
		t.Errorf("expected status success, got %s", loaded.Status)
	}
	if loaded.Final == nil || *loaded.Final != "Go to Paris." {
		t.Errorf("unexpected final: %v", loaded.Final)
	}
	if loaded.Query != "plan paris" {
		t.Errorf("expected query 'plan paris', got %s", loaded.Query)
	}
	for i, s := range loaded.Steps {
		if s.StepID != i+1 {
			t.Errorf("step %d has id %d", i, s.StepID)
		}
	}
	if p, ok := loaded.Steps[0].Action.Params.(string); !ok || p != "paris hotel" {
		t.Errorf("expected string params, got %#v", loaded.Steps[0].Action.Params)
	}
	if p, ok := loaded.Steps[2].Action.Params.(map[string]interface{}); !ok || p["city"] != "Paris" {
		t.Errorf("expected object params, got %#v", loaded.Steps[2].Action.Params)
	}
	if len(loaded.Steps[0].Evidence) != 1 || loaded.Steps[0].Evidence[0].Score != 0.85 {
		t.Errorf("unexpected evidence: %+v", loaded.Steps[0].Evidence)
	}
	if loaded.Steps[1].Evidence == nil || len(loaded.Steps[1].Evidence) != 0 {
		t.Errorf("calculator step should have empty evidence, got %#v", loaded.Steps[1].Evidence)
	}

	if _, err := store.Load(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	other := NewRecorder(store, "run2", "second", nil)
	other.Finish(ctx, "blocked", "no")
	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(list))
	}
	byID := map[string]Summary{}
	for _, s := range list {
		byID[s.RunID] = s
	}
	if byID["run1"].Steps != 3 || byID["run2"].Status != "blocked" {
		t.Errorf("unexpected summaries: %+v", list)
	}
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store error: %v", err)
	}
	exerciseStore(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "db", "traces.db"))
	if err != nil {
		t.Fatalf("open store error: %v", err)
	}
	defer store.Close()
	exerciseStore(t, store)
}

func TestFileStore_DocumentShape(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)
	rec := NewRecorder(store, "abc-123", "q", nil)
	rec.Step(context.Background(), sampleSteps()[1])

	tr := rec.Trace()
	path := store.Path(&tr)
	want := "trace_abc-123_" + tr.StartedAt.Format("20060102_150405") + ".json"
	if filepath.Base(path) != want {
		t.Errorf("expected file %s, got %s", want, filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if string(doc["final"]) != "null" {
		t.Errorf("expected final null, got %s", doc["final"])
	}
	var steps []map[string]json.RawMessage
	if err := json.Unmarshal(doc["steps"], &steps); err != nil {
		t.Fatalf("steps: %v", err)
	}
	for _, key := range []string{"step_id", "thought", "action", "observation", "evidence"} {
		if _, ok := steps[0][key]; !ok {
			t.Errorf("step missing %q", key)
		}
	}
	if !strings.Contains(string(steps[0]["action"]), `"tool_name":"Calculator"`) &&
		!strings.Contains(string(steps[0]["action"]), `"tool_name": "Calculator"`) {
		t.Errorf("unexpected action: %s", steps[0]["action"])
	}

	// no temp files left behind
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected one file, got %d", len(entries))
	}
}

func TestFileStore_LoadLatest(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)
	ctx := context.Background()

	older := &Trace{RunID: "r_1", StartedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), Status: "failed"}
	newer := &Trace{RunID: "r_1", StartedAt: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), Status: "success"}
	prefix := &Trace{RunID: "r", StartedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Status: "blocked"}
	for _, tr := range []*Trace{older, newer, prefix} {
		if err := store.Save(ctx, tr); err != nil {
			t.Fatalf("save error: %v", err)
		}
	}

	loaded, err := store.Load(ctx, "r_1")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if loaded.Status != "success" {
		t.Errorf("expected newest trace, got %s", loaded.Status)
	}
	loaded, err = store.Load(ctx, "r")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if loaded.Status != "blocked" {
		t.Errorf("expected run r, got %s", loaded.Status)
	}
}

func TestFileStore_RejectsPathInRunID(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	if err := store.Save(context.Background(), &Trace{RunID: "../x"}); err == nil {
		t.Error("expected error for run id with a path separator")
	}
}

type failingStore struct{ calls int }

func (f *failingStore) Save(context.Context, *Trace) error { f.calls++; return errors.New("disk full") }
func (f *failingStore) Load(context.Context, string) (*Trace, error) {
	return nil, ErrNotFound
}
func (f *failingStore) List(context.Context) ([]Summary, error) { return nil, nil }

func TestRecorder_PersistFailureIsNotFatal(t *testing.T) {
	fs := &failingStore{}
	rec := NewRecorder(fs, "x", "q", nil)
	rec.Step(context.Background(), Step{StepID: 1})
	rec.Finish(context.Background(), "failed", "sorry")

	if fs.calls != 2 {
		t.Errorf("expected 2 save attempts, got %d", fs.calls)
	}
	tr := rec.Trace()
	if len(tr.Steps) != 1 || tr.Final == nil || *tr.Final != "sorry" {
		t.Errorf("in-memory trace not kept: %+v", tr)
	}
}

func TestRecorder_TraceIsCopy(t *testing.T) {
	rec := NewRecorder(nil, "x", "q", nil)
	rec.Step(context.Background(), Step{StepID: 1})
	tr := rec.Trace()
	tr.Steps[0].Thought = "mutated"
	if rec.Trace().Steps[0].Thought == "mutated" {
		t.Error("Trace should return a copy")
	}
}
