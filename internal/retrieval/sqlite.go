package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteIndex is a persistent LocalIndex backed by a sqlite-vec vec0 table.
// Distances are reported squared so both index backends share one scale.
type SQLiteIndex struct {
	mu    sync.Mutex
	db    *sql.DB
	dim   int
	count int
}

// OpenSQLiteIndex opens or creates the index database at path. The vector
// dimension is recorded on the first Add and restored on reopen.
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	idx := &SQLiteIndex{db: db}
	if err := idx.init(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// init creates the database schema.
func (s *SQLiteIndex) init() error {
	var vecVersion string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		return fmt.Errorf("sqlite-vec not loaded: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		source TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS index_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	var dim string
	err := s.db.QueryRow("SELECT value FROM index_meta WHERE key = 'dimension'").Scan(&dim)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("failed to read index metadata: %w", err)
	default:
		if s.dim, err = strconv.Atoi(dim); err != nil {
			return fmt.Errorf("corrupt index dimension %q: %w", dim, err)
		}
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&s.count); err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}
	return nil
}

// ensureVectors creates the vec0 table for dimension dim.
func (s *SQLiteIndex) ensureVectors(ctx context.Context, tx *sql.Tx, dim int) error {
	if s.dim != 0 {
		if dim != s.dim {
			return fmt.Errorf("%w (got %d, want %d)", ErrDimensionMismatch, dim, s.dim)
		}
		return nil
	}
	stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS document_vectors USING vec0(embedding FLOAT[%d])`, dim)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO index_meta (key, value) VALUES ('dimension', ?)`, strconv.Itoa(dim)); err != nil {
		return fmt.Errorf("failed to record dimension: %w", err)
	}
	return nil
}

// Add implements LocalIndex.
func (s *SQLiteIndex) Add(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("add: %d documents but %d vectors", len(docs), len(vectors))
	}
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureVectors(ctx, tx, len(vectors[0])); err != nil {
		return err
	}
	dim := len(vectors[0])

	for i, doc := range docs {
		if len(vectors[i]) != dim {
			return fmt.Errorf("add %s: %w", doc.Source, ErrDimensionMismatch)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO documents (content, source) VALUES (?, ?)`, doc.Content, doc.Source)
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read document id: %w", err)
		}
		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return fmt.Errorf("failed to serialize embedding: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_vectors (rowid, embedding) VALUES (?, ?)`, id, blob); err != nil {
			return fmt.Errorf("failed to insert embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.dim = dim
	s.count += len(docs)
	return nil
}

// Search implements LocalIndex.
func (s *SQLiteIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 || k <= 0 {
		return nil, nil
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("search: %w (got %d, want %d)", ErrDimensionMismatch, len(vector), s.dim)
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH knn AS (
			SELECT rowid, distance
			FROM document_vectors
			WHERE embedding MATCH ?
			  AND k = ?
		)
		SELECT d.content, d.source, knn.distance
		FROM knn
		JOIN documents d ON d.id = knn.rowid
		ORDER BY knn.distance
	`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var distance float64
		if err := rows.Scan(&h.Content, &h.Source, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		h.Distance = distance * distance
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Len implements LocalIndex.
func (s *SQLiteIndex) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Reset implements LocalIndex.
func (s *SQLiteIndex) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS document_vectors`,
		`DELETE FROM documents`,
		`DELETE FROM index_meta WHERE key = 'dimension'`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to reset index: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.dim = 0
	s.count = 0
	return nil
}

// Close closes the database.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
