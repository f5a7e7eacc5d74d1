package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run ID is not in the ledger.
var ErrNotFound = errors.New("run not found")

// Store persists run outcomes in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the run ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Record upserts run and replaces its stage records in one transaction.
func (s *Store) Record(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("history: run id required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
            id, location, output_dir, started_at, finished_at, state,
            video, silent, background, failed_stage, error_kind, error_message, page_path
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            finished_at = excluded.finished_at,
            state = excluded.state,
            failed_stage = excluded.failed_stage,
            error_kind = excluded.error_kind,
            error_message = excluded.error_message,
            page_path = excluded.page_path`,
		run.ID,
		run.Location,
		run.OutputDir,
		formatTime(run.StartedAt),
		nullableTime(run.FinishedAt),
		run.State,
		boolToInt(run.Video),
		boolToInt(run.Silent),
		boolToInt(run.Background),
		nullableString(run.FailedStage),
		nullableString(run.ErrorKind),
		nullableString(run.ErrorMessage),
		nullableString(run.PagePath),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM stage_results WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("clear stage results: %w", err)
	}
	for i, st := range run.Stages {
		_, err := tx.ExecContext(ctx, `INSERT INTO stage_results (
                run_id, stage, position, outcome, error_kind, message, reason, attempts, elapsed_ms
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, st.Stage, i, st.Outcome,
			nullableString(st.Kind), nullableString(st.Message), nullableString(st.Reason),
			st.Attempts, st.Elapsed.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert stage %s: %w", st.Stage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

const runColumns = `id, location, output_dir, started_at, finished_at, state,
    video, silent, background, failed_stage, error_kind, error_message, page_path`

// Recent returns up to limit runs, newest first, without stage records.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns the run with id and its stage records.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT stage, outcome, error_kind, message, reason, attempts, elapsed_ms
        FROM stage_results WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return Run{}, fmt.Errorf("query stage results: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st StageRecord
		var kind, message, reason sql.NullString
		var elapsedMS int64
		if err := rows.Scan(&st.Stage, &st.Outcome, &kind, &message, &reason, &st.Attempts, &elapsedMS); err != nil {
			return Run{}, fmt.Errorf("scan stage result: %w", err)
		}
		st.Kind, st.Message, st.Reason = kind.String, message.String, reason.String
		st.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		run.Stages = append(run.Stages, st)
	}
	return run, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var started string
	var finished, failedStage, kind, message, page sql.NullString
	var video, silent, background int
	err := row.Scan(&run.ID, &run.Location, &run.OutputDir, &started, &finished, &run.State,
		&video, &silent, &background, &failedStage, &kind, &message, &page)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = parseTime(started)
	if finished.Valid {
		run.FinishedAt = parseTime(finished.String)
	}
	run.Video, run.Silent, run.Background = video != 0, silent != 0, background != 0
	run.FailedStage, run.ErrorKind, run.ErrorMessage, run.PagePath = failedStage.String, kind.String, message.String, page.String
	return run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
