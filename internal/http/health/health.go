// Package health serves the liveness and readiness endpoints of the control server.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
)

// Status is the health response body.
type Status struct {
	// Status is "ok", "ready" or "not_ready".
	Status string `json:"status"`
	// Reason explains a not_ready status.
	Reason string `json:"reason,omitempty"`
}

// Handler serves liveness and readiness checks. It starts not ready.
type Handler struct {
	mu     sync.RWMutex
	ready  bool
	reason string
}

// New returns a handler that reports "starting" until SetReady.
func New() *Handler {
	return &Handler{reason: "starting"}
}

// SetReady marks the handler as ready.
func (h *Handler) SetReady() {
	h.mu.Lock()
	h.ready, h.reason = true, ""
	h.mu.Unlock()
}

// SetNotReady marks the handler as not ready for reason.
func (h *Handler) SetNotReady(reason string) {
	h.mu.Lock()
	h.ready, h.reason = false, reason
	h.mu.Unlock()
}

// Healthz handles liveness checks.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	write(w, http.StatusOK, Status{Status: "ok"})
}

// Readyz handles readiness checks.
func (h *Handler) Readyz(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	ready, reason := h.ready, h.reason
	h.mu.RUnlock()
	if ready {
		write(w, http.StatusOK, Status{Status: "ready"})
		return
	}
	write(w, http.StatusServiceUnavailable, Status{Status: "not_ready", Reason: reason})
}

func write(w http.ResponseWriter, code int, status Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
