package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/eargollo/parsync/internal/run"
	"github.com/eargollo/parsync/internal/scheduler"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	DB      *sql.DB
	Manager *run.Manager
	Sched   *scheduler.Scheduler
	Version string
}

type statusResponse struct {
	Version          string            `json:"version"`
	ActiveRun        *activeRunInfo    `json:"active_run"`
	Schedule         scheduleInfo      `json:"schedule"`
	LastCompletedRun *completedRunInfo `json:"last_completed_run"`
}

type activeRunInfo struct {
	ID           int64             `json:"id"`
	StartedAt    time.Time         `json:"started_at"`
	TriggeredBy  string            `json:"triggered_by"`
	Progress     runProgressInfo   `json:"progress"`
	PendingError *run.PendingError `json:"pending_error"`
}

type runProgressInfo struct {
	ItemsProcessed int64  `json:"items_processed"`
	BytesProcessed int64  `json:"bytes_processed"`
	ItemsTotal     int64  `json:"items_total"`
	BytesTotal     int64  `json:"bytes_total"`
	ErrorsIgnored  int64  `json:"errors_ignored"`
	Status         string `json:"status"`
}

type scheduleInfo struct {
	Cron      string     `json:"cron"`
	Paused    bool       `json:"paused"`
	NextRunAt *time.Time `json:"next_run_at"`
}

type completedRunInfo struct {
	ID             int64     `json:"id"`
	FinishedAt     time.Time `json:"finished_at"`
	ItemsProcessed int64     `json:"items_processed"`
	BytesProcessed int64     `json:"bytes_processed"`
	ErrorsIgnored  int64     `json:"errors_ignored"`
}

// ServeHTTP returns the system status as JSON.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:          h.Version,
		ActiveRun:        h.activeRun(),
		LastCompletedRun: h.lastCompletedRun(),
	}
	if h.Sched != nil {
		resp.Schedule = scheduleInfo{
			Cron:      h.Sched.CronExpr(),
			NextRunAt: h.Sched.NextRunAt(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StatusHandler) activeRun() *activeRunInfo {
	active := h.Manager.Active()
	if active == nil {
		return nil
	}
	return &activeRunInfo{
		ID:          active.ID,
		StartedAt:   active.StartedAt.UTC(),
		TriggeredBy: active.TriggeredBy,
		Progress: runProgressInfo{
			ItemsProcessed: active.Progress.ItemsProcessed.Load(),
			BytesProcessed: active.Progress.BytesProcessed.Load(),
			ItemsTotal:     active.Progress.ItemsTotal.Load(),
			BytesTotal:     active.Progress.BytesTotal.Load(),
			ErrorsIgnored:  active.Progress.ErrorsIgnored.Load(),
			Status:         active.Progress.Status(),
		},
		PendingError: active.Gate.Pending(),
	}
}

func (h *StatusHandler) lastCompletedRun() *completedRunInfo {
	row := h.DB.QueryRow(`
		SELECT id, finished_at, items_processed, bytes_processed, errors_ignored
		FROM run_history
		WHERE status = 'completed'
		ORDER BY finished_at DESC
		LIMIT 1`)

	var (
		info       completedRunInfo
		finishedAt int64
	)
	err := row.Scan(&info.ID, &finishedAt, &info.ItemsProcessed,
		&info.BytesProcessed, &info.ErrorsIgnored)
	if err != nil {
		if err != sql.ErrNoRows {
			slog.Error("status: query last run", "error", err)
		}
		return nil
	}
	info.FinishedAt = time.Unix(finishedAt, 0).UTC()
	return &info
}
