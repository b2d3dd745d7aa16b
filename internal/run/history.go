package run

import (
	"database/sql"
	"fmt"
	"time"
)

// Run statuses persisted in run_history.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Store persists run lifecycle records to run_history.
type Store struct {
	db *sql.DB
}

// NewStore wraps the shared database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertRun creates the run_history row for a starting run and returns its id.
func (s *Store) InsertRun(startedAt time.Time, triggeredBy string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO run_history (started_at, triggered_by, status) VALUES (?, ?, ?)`,
		startedAt.Unix(), triggeredBy, StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}
	return id, nil
}

// FlushProgress writes the live counters into the run's row so the history
// stays meaningful even if the process dies mid-run.
func (s *Store) FlushProgress(id int64, p *Progress) error {
	_, err := s.db.Exec(
		`UPDATE run_history
		    SET items_processed = ?, bytes_processed = ?,
		        items_total = ?, bytes_total = ?,
		        errors_ignored = ?, last_status = ?
		  WHERE id = ?`,
		p.ItemsProcessed.Load(), p.BytesProcessed.Load(),
		p.ItemsTotal.Load(), p.BytesTotal.Load(),
		p.ErrorsIgnored.Load(), p.Status(), id,
	)
	if err != nil {
		return fmt.Errorf("flush progress for run %d: %w", id, err)
	}
	return nil
}

// FinaliseRun closes out the run's row with its terminal status.
func (s *Store) FinaliseRun(id int64, status string, startedAt, finishedAt time.Time, p *Progress, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE run_history
		    SET finished_at = ?, status = ?, duration_seconds = ?,
		        items_processed = ?, bytes_processed = ?,
		        items_total = ?, bytes_total = ?,
		        errors_ignored = ?, last_status = ?, error = ?
		  WHERE id = ?`,
		finishedAt.Unix(), status, int64(finishedAt.Sub(startedAt).Seconds()),
		p.ItemsProcessed.Load(), p.BytesProcessed.Load(),
		p.ItemsTotal.Load(), p.BytesTotal.Load(),
		p.ErrorsIgnored.Load(), p.Status(), errText, id,
	)
	if err != nil {
		return fmt.Errorf("finalise run %d: %w", id, err)
	}
	return nil
}

// MarkStaleRunsFailed flips any rows still marked running to failed. Called
// once at startup: a run cannot survive a process restart.
func (s *Store) MarkStaleRunsFailed() (int64, error) {
	res, err := s.db.Exec(
		`UPDATE run_history SET status = ?, error = 'interrupted by restart' WHERE status = ?`,
		StatusFailed, StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("mark stale runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
