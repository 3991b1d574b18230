package task

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/codex-k8s/toolflow/internal/protocol"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
)

// StateHandler serves the task state on GET.
type StateHandler struct {
	Task *Task
}

// ServeHTTP writes protocol.StateResponse as JSON.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.Task.State())
}

// ModeHandler switches the task mode on POST.
type ModeHandler struct {
	Task   *Task
	Logger *slog.Logger
}

// ServeHTTP accepts protocol.ModeRequest and answers with the new state.
func (h *ModeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload protocol.ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	mode := taskconfig.Mode(strings.ToLower(strings.TrimSpace(payload.Mode)))
	if mode != taskconfig.ModePlan && mode != taskconfig.ModeAct {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.Task.SwitchMode(r.Context(), mode); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("mode switch failed", "mode", mode, "error", err)
		}
		w.WriteHeader(http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.Task.State())
}
