// Package sqlite keeps a history of clustering runs in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/pulsarsearch/candypicker/internal/types"
)

// DefaultListLimit is how many runs ListRuns returns when asked for none.
const DefaultListLimit = 20

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Store records runs in SQLite
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the history database at path.
func New(path string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL so a reader (history) does not block a run being recorded
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := schemaMigrations.Apply(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores a run. An empty ID is filled with a new UUID and a zero
// StartedAt with the current time.
func (s *Store) RecordRun(ctx context.Context, run *types.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Tolerance == "" {
		run.Tolerance = "{}"
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("failed to encode inputs: %w", err)
	}
	outputs, err := json.Marshal(nonNil(run.Outputs))
	if err != nil {
		return fmt.Errorf("failed to encode outputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, mode, started_at, elapsed_ms, host, inputs, outputs, tolerance,
			row_count, dropped, pivots, suppressed, comparisons
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, string(run.Mode), run.StartedAt.UnixMilli(), run.ElapsedMs, run.Host,
		string(inputs), string(outputs), run.Tolerance,
		run.Rows, run.Dropped, run.Pivots, run.Suppressed, run.Comparisons,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

const runColumns = `
	id, mode, started_at, elapsed_ms, host, inputs, outputs, tolerance,
	row_count, dropped, pivots, suppressed, comparisons
`

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*types.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

// GetRun returns a single run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*types.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*types.Run, error) {
	run := &types.Run{}
	var (
		mode      string
		startedAt int64
		inputs    string
		outputs   string
	)
	err := sc.Scan(
		&run.ID,
		&mode,
		&startedAt,
		&run.ElapsedMs,
		&run.Host,
		&inputs,
		&outputs,
		&run.Tolerance,
		&run.Rows,
		&run.Dropped,
		&run.Pivots,
		&run.Suppressed,
		&run.Comparisons,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Mode = types.RunMode(mode)
	run.StartedAt = time.UnixMilli(startedAt)
	if err := json.Unmarshal([]byte(inputs), &run.Inputs); err != nil {
		return nil, fmt.Errorf("failed to decode inputs of run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(outputs), &run.Outputs); err != nil {
		return nil, fmt.Errorf("failed to decode outputs of run %s: %w", run.ID, err)
	}
	return run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
