package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eargollo/parsync/internal/run"
)

// RunsHandler handles sync-run API endpoints.
type RunsHandler struct {
	DB      *sql.DB
	Manager *run.Manager
}

// Create handles POST /api/runs — triggers a manual sync run.
func (h *RunsHandler) Create(w http.ResponseWriter, r *http.Request) {
	active, err := h.Manager.Start(context.Background(), "api")
	if err != nil {
		if errors.Is(err, run.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "RUN_ALREADY_RUNNING", "A sync run is already in progress")
			return
		}
		slog.Error("runs: start", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start sync run")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":           active.ID,
		"status":       "running",
		"started_at":   active.StartedAt.UTC().Format(time.RFC3339),
		"triggered_by": active.TriggeredBy,
	})
}

// Cancel handles DELETE /api/runs/current.
func (h *RunsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	active, err := h.Manager.Cancel()
	if err != nil {
		if errors.Is(err, run.ErrNoActiveRun) {
			writeError(w, http.StatusNotFound, "NO_ACTIVE_RUN", "No sync run is currently running")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         active.ID,
		"status":     "cancelling",
		"started_at": active.StartedAt.UTC().Format(time.RFC3339),
	})
}

type runItem struct {
	ID              int64   `json:"id"`
	StartedAt       string  `json:"started_at"`
	FinishedAt      *string `json:"finished_at"`
	Status          string  `json:"status"`
	TriggeredBy     string  `json:"triggered_by"`
	ItemsProcessed  int64   `json:"items_processed"`
	BytesProcessed  int64   `json:"bytes_processed"`
	ItemsTotal      int64   `json:"items_total"`
	BytesTotal      int64   `json:"bytes_total"`
	ErrorsIgnored   int64   `json:"errors_ignored"`
	LastStatus      string  `json:"last_status"`
	DurationSeconds *int64  `json:"duration_seconds"`
	Error           *string `json:"error"`
}

func scanRunRow(scan func(dest ...interface{}) error) (runItem, error) {
	var (
		it         runItem
		startedAt  int64
		finishedAt sql.NullInt64
		durSecs    sql.NullInt64
		errText    sql.NullString
	)
	err := scan(
		&it.ID, &startedAt, &finishedAt, &it.Status, &it.TriggeredBy,
		&it.ItemsProcessed, &it.BytesProcessed, &it.ItemsTotal, &it.BytesTotal,
		&it.ErrorsIgnored, &it.LastStatus, &durSecs, &errText,
	)
	if err != nil {
		return it, err
	}
	it.StartedAt = time.Unix(startedAt, 0).UTC().Format(time.RFC3339)
	if finishedAt.Valid {
		s := time.Unix(finishedAt.Int64, 0).UTC().Format(time.RFC3339)
		it.FinishedAt = &s
	}
	if durSecs.Valid {
		it.DurationSeconds = &durSecs.Int64
	}
	if errText.Valid {
		it.Error = &errText.String
	}
	return it, nil
}

const runColumns = `id, started_at, finished_at, status, triggered_by,
	       items_processed, bytes_processed, items_total, bytes_total,
	       errors_ignored, last_status, duration_seconds, error`

// List handles GET /api/runs — returns run history newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT `+runColumns+`
		FROM run_history
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		slog.Error("runs list: query", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	defer rows.Close()

	var items []runItem
	for rows.Next() {
		it, err := scanRunRow(rows.Scan)
		if err != nil {
			slog.Error("runs list: scan row", "error", err)
			continue
		}
		items = append(items, it)
	}
	if items == nil {
		items = []runItem{}
	}

	var total int
	h.DB.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM run_history`).Scan(&total)

	writeJSON(w, http.StatusOK, ListResponse[runItem]{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /api/runs/:id.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid run ID")
		return
	}

	row := h.DB.QueryRowContext(r.Context(), `
		SELECT `+runColumns+`
		FROM run_history WHERE id = ?`, id)

	it, err := scanRunRow(row.Scan)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, it)
}
