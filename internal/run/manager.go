package run

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eargollo/parsync/internal/config"
)

var (
	// ErrAlreadyRunning is returned by Start when a run is in progress.
	ErrAlreadyRunning = errors.New("a sync run is already in progress")
	// ErrNoActiveRun is returned by Cancel when nothing is running.
	ErrNoActiveRun = errors.New("no sync run is currently running")
)

// ActiveRun describes the run currently in flight.
type ActiveRun struct {
	ID          int64
	StartedAt   time.Time
	TriggeredBy string
	Progress    *Progress
	Gate        *ErrorGate
}

// Manager owns the single-run-at-a-time policy: starting, observing and
// cancelling the active sync run. Both the HTTP API and the scheduler go
// through it.
type Manager struct {
	store *Store
	cfg   *config.Config
	log   *slog.Logger

	mu     sync.Mutex
	active *ActiveRun
	cancel context.CancelFunc
}

// NewManager wires the manager to the database and configuration.
func NewManager(db *sql.DB, cfg *config.Config) *Manager {
	return &Manager{
		store: NewStore(db),
		cfg:   cfg,
		log:   slog.Default(),
	}
}

// Start launches a sync run in the background. triggeredBy is recorded in
// the history ("api", "scheduler", ...). Returns ErrAlreadyRunning if a
// run is already active.
func (m *Manager) Start(parent context.Context, triggeredBy string) (*ActiveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrAlreadyRunning
	}

	startedAt := time.Now()
	id, err := m.store.InsertRun(startedAt, triggeredBy)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(parent)
	active := &ActiveRun{
		ID:          id,
		StartedAt:   startedAt,
		TriggeredBy: triggeredBy,
		Progress:    &Progress{},
		Gate:        &ErrorGate{},
	}
	m.active = active
	m.cancel = cancel

	r := &runner{
		store:            m.store,
		pairs:            m.cfg.FolderPairs,
		workersPerDevice: m.cfg.WorkersPerDevice,
		progress:         active.Progress,
		gate:             active.Gate,
		errorMode:        m.cfg.ErrorMode,
		promptTimeout:    time.Duration(m.cfg.PromptTimeoutSec) * time.Second,
		log:              m.log.With("run", id),
	}

	go func() {
		defer cancel()
		r.run(runCtx, id, startedAt)

		m.mu.Lock()
		if m.active == active {
			m.active = nil
			m.cancel = nil
		}
		m.mu.Unlock()
	}()

	return active, nil
}

// Cancel aborts the active run. The run winds down asynchronously; its
// record is finalised as cancelled by the runner.
func (m *Manager) Cancel() (*ActiveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoActiveRun
	}
	m.cancel()
	return m.active, nil
}

// Active returns the in-flight run, or nil.
func (m *Manager) Active() *ActiveRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// MarkStaleRunsFailed cleans up rows left running by a previous process.
func (m *Manager) MarkStaleRunsFailed() error {
	n, err := m.store.MarkStaleRunsFailed()
	if err != nil {
		return err
	}
	if n > 0 {
		m.log.Warn("marked stale runs as failed", "count", n)
	}
	return nil
}
