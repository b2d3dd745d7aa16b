package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eargollo/parsync/internal/parallel"
	"github.com/eargollo/parsync/internal/run"
)

// ErrorsHandler exposes the active run's interactive error prompt.
type ErrorsHandler struct {
	Manager *run.Manager
}

// Pending handles GET /api/runs/current/error.
func (h *ErrorsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	active := h.Manager.Active()
	if active == nil {
		writeError(w, http.StatusNotFound, "NO_ACTIVE_RUN", "No sync run is currently running")
		return
	}
	pending := active.Gate.Pending()
	if pending == nil {
		writeError(w, http.StatusNotFound, "NO_PENDING_ERROR", "No error is awaiting an answer")
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// Answer handles POST /api/runs/current/error — body {"response": "retry"|"ignore"}.
func (h *ErrorsHandler) Answer(w http.ResponseWriter, r *http.Request) {
	active := h.Manager.Active()
	if active == nil {
		writeError(w, http.StatusNotFound, "NO_ACTIVE_RUN", "No sync run is currently running")
		return
	}

	var body struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Expected JSON body with a response field")
		return
	}

	var resp parallel.Response
	switch body.Response {
	case "retry":
		resp = parallel.Retry
	case "ignore":
		resp = parallel.Ignore
	default:
		writeError(w, http.StatusBadRequest, "INVALID_RESPONSE", `response must be "retry" or "ignore"`)
		return
	}

	if err := active.Gate.Answer(resp); err != nil {
		if errors.Is(err, run.ErrNoPendingError) {
			writeError(w, http.StatusNotFound, "NO_PENDING_ERROR", "No error is awaiting an answer")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"answered": body.Response})
}
