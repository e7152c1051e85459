// Package sqlite implements store.RunStore using SQLite.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/guidepost-ai/guidepost/model"
)

// Store manages run and event persistence in SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id                    TEXT PRIMARY KEY,
			repo                  TEXT NOT NULL,
			pr_number             INTEGER NOT NULL,
			status                TEXT NOT NULL DEFAULT 'pending',
			skip_reflection       INTEGER NOT NULL DEFAULT 0,
			roadmap               TEXT NOT NULL DEFAULT '',
			reflection_passed     INTEGER NOT NULL DEFAULT 0,
			reflection_iterations INTEGER NOT NULL DEFAULT 0,
			comment_url           TEXT NOT NULL DEFAULT '',
			error                 TEXT NOT NULL DEFAULT '',
			created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS run_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL,
			type       TEXT NOT NULL,
			data       TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);

		CREATE INDEX IF NOT EXISTS idx_run_events_run_id
			ON run_events(run_id);

		CREATE INDEX IF NOT EXISTS idx_runs_repo_pr
			ON runs(repo, pr_number);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run.
func (s *Store) CreateRun(run *model.Run) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, repo, pr_number, status, skip_reflection, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Repo, run.PRNumber, run.Status, run.SkipReflection,
		run.CreatedAt, run.UpdatedAt,
	)
	return err
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*model.Run, error) {
	row := s.db.QueryRow(
		`SELECT id, repo, pr_number, status, skip_reflection, roadmap,
		        reflection_passed, reflection_iterations, comment_url, error,
		        created_at, updated_at
		 FROM runs WHERE id = ?`, id,
	)
	return scanRun(row)
}

// ListRuns returns all runs ordered by creation time (newest first).
func (s *Store) ListRuns() ([]*model.Run, error) {
	rows, err := s.db.Query(
		`SELECT id, repo, pr_number, status, skip_reflection, roadmap,
		        reflection_passed, reflection_iterations, comment_url, error,
		        created_at, updated_at
		 FROM runs ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateRun updates mutable fields of a run.
func (s *Store) UpdateRun(run *model.Run) error {
	run.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE runs SET
			status = ?, skip_reflection = ?, roadmap = ?, reflection_passed = ?,
			reflection_iterations = ?, comment_url = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		run.Status, run.SkipReflection, run.Roadmap, run.ReflectionPassed,
		run.ReflectionIterations, run.CommentURL, run.Error, run.UpdatedAt,
		run.ID,
	)
	return err
}

// GetRunByPR retrieves the most recent run for a repository and PR number.
func (s *Store) GetRunByPR(repo string, prNumber int) (*model.Run, error) {
	row := s.db.QueryRow(
		`SELECT id, repo, pr_number, status, skip_reflection, roadmap,
		        reflection_passed, reflection_iterations, comment_url, error,
		        created_at, updated_at
		 FROM runs
		 WHERE repo = ? AND pr_number = ?
		 ORDER BY created_at DESC
		 LIMIT 1`, repo, prNumber,
	)
	return scanRun(row)
}

// AddEvent inserts a new event and returns its ID.
func (s *Store) AddEvent(event *model.Event) error {
	result, err := s.db.Exec(
		`INSERT INTO run_events (run_id, type, data, created_at)
		 VALUES (?, ?, ?, ?)`,
		event.RunID, event.Type, event.Data, event.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = id
	return nil
}

// GetEvents returns events for a run, optionally after a given event ID.
func (s *Store) GetEvents(runID string, afterID int64) ([]*model.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, type, data, created_at
		 FROM run_events
		 WHERE run_id = ? AND id > ?
		 ORDER BY id ASC`,
		runID, afterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e := &model.Event{}
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Data, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	run := &model.Run{}
	err := row.Scan(
		&run.ID, &run.Repo, &run.PRNumber, &run.Status, &run.SkipReflection,
		&run.Roadmap, &run.ReflectionPassed, &run.ReflectionIterations,
		&run.CommentURL, &run.Error, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}
