package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tazhate/icsync/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// Storage is the sync journal. It records finished cycles so the status
// API and the operator can see what happened while the tool ran
// unattended. Sync itself never reads it.
type Storage struct {
	db   *sql.DB
	keep int
}

// New opens the journal database, creating the file and schema when
// missing. keep bounds how many runs are retained, 0 keeps all.
func New(dbPath string, keep int) (*Storage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db, keep: keep}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			status TEXT NOT NULL,
			events INTEGER NOT NULL DEFAULT 0,
			uploaded INTEGER NOT NULL DEFAULT 0,
			deleted INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// RecordRun appends a finished cycle and trims the journal to the
// configured size.
func (s *Storage) RecordRun(run *domain.SyncRun) error {
	res, err := s.db.Exec(
		`INSERT INTO sync_runs (cycle_id, started_at, finished_at, status, events, uploaded, deleted, skipped, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.CycleID, run.StartedAt, run.FinishedAt, run.Status, run.Events, run.Uploaded, run.Deleted, run.Skipped, run.Error,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	run.ID = id

	if s.keep > 0 {
		_, err = s.db.Exec(
			`DELETE FROM sync_runs WHERE id NOT IN (SELECT id FROM sync_runs ORDER BY id DESC LIMIT ?)`,
			s.keep,
		)
	}
	return err
}

// LastRun returns the most recent run, nil when the journal is empty.
func (s *Storage) LastRun() (*domain.SyncRun, error) {
	run := &domain.SyncRun{}
	err := s.db.QueryRow(
		`SELECT id, cycle_id, started_at, finished_at, status, events, uploaded, deleted, skipped, error
		 FROM sync_runs ORDER BY id DESC LIMIT 1`,
	).Scan(&run.ID, &run.CycleID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.Events, &run.Uploaded, &run.Deleted, &run.Skipped, &run.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// RecentRuns returns up to limit runs, newest first.
func (s *Storage) RecentRuns(limit int) ([]*domain.SyncRun, error) {
	rows, err := s.db.Query(
		`SELECT id, cycle_id, started_at, finished_at, status, events, uploaded, deleted, skipped, error
		 FROM sync_runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.SyncRun
	for rows.Next() {
		run := &domain.SyncRun{}
		if err := rows.Scan(&run.ID, &run.CycleID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.Events, &run.Uploaded, &run.Deleted, &run.Skipped, &run.Error); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
