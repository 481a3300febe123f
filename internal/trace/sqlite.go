package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vinayprograms/gatedagent/internal/retrieval"
)

// SQLiteStore persists traces in a runs table and an append-only steps
// table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the trace database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create trace directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		user_query TEXT NOT NULL,
		status TEXT NOT NULL,
		final TEXT,
		started_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS steps (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		step_id INTEGER NOT NULL,
		thought TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		params TEXT NOT NULL,
		observation TEXT NOT NULL,
		evidence TEXT NOT NULL,
		PRIMARY KEY (run_id, step_id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save implements Store. Steps already stored are left untouched.
func (s *SQLiteStore) Save(ctx context.Context, t *Trace) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var final sql.NullString
	if t.Final != nil {
		final = sql.NullString{String: *t.Final, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, user_query, status, final, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			final = excluded.final,
			updated_at = excluded.updated_at
	`, t.RunID, t.Query, t.Status, final, t.StartedAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, st := range t.Steps {
		params, err := json.Marshal(st.Action.Params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		evidence, err := json.Marshal(st.Evidence)
		if err != nil {
			return fmt.Errorf("failed to marshal evidence: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO steps (run_id, step_id, thought, tool_name, params, observation, evidence)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.RunID, st.StepID, st.Thought, st.Action.ToolName, string(params), st.Observation, string(evidence))
		if err != nil {
			return fmt.Errorf("failed to save step %d: %w", st.StepID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, runID string) (*Trace, error) {
	t := &Trace{RunID: runID, Steps: []Step{}}
	var final sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_query, status, final, started_at FROM runs WHERE run_id = ?`, runID,
	).Scan(&t.Query, &t.Status, &final, &t.StartedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if final.Valid {
		t.Final = &final.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, thought, tool_name, params, observation, evidence
		FROM steps WHERE run_id = ? ORDER BY step_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st Step
		var params, evidence string
		if err := rows.Scan(&st.StepID, &st.Thought, &st.Action.ToolName, &params, &st.Observation, &evidence); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &st.Action.Params); err != nil {
			return nil, fmt.Errorf("step %d params: %w", st.StepID, err)
		}
		st.Evidence = []retrieval.Evidence{}
		if err := json.Unmarshal([]byte(evidence), &st.Evidence); err != nil {
			return nil, fmt.Errorf("step %d evidence: %w", st.StepID, err)
		}
		t.Steps = append(t.Steps, st)
	}
	return t, rows.Err()
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.user_query, r.status, r.started_at,
			(SELECT COUNT(*) FROM steps st WHERE st.run_id = r.run_id)
		FROM runs r
		ORDER BY r.started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.RunID, &sm.Query, &sm.Status, &sm.StartedAt, &sm.Steps); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
