package conversation

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/codex-k8s/toolflow/internal/protocol"
)

// WebhookHandler resolves pending asks from HTTP callbacks and lists them.
type WebhookHandler struct {
	Log    *Log
	Logger *slog.Logger
}

// ServeHTTP answers POST with an AskAnswer payload and GET with pending asks.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Log == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.list(w)
	case http.MethodPost:
		h.answer(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *WebhookHandler) list(w http.ResponseWriter) {
	pending := h.Log.Pending()
	out := make([]protocol.MessageEvent, 0, len(pending))
	for _, msg := range pending {
		out = append(out, ToEvent(Event{Action: protocol.ActionAdd, Message: msg}))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *WebhookHandler) answer(w http.ResponseWriter, r *http.Request) {
	var payload protocol.AskAnswer
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	response := Response(strings.TrimSpace(payload.Response))
	if payload.TS == 0 || !response.Valid() {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	resolved := h.Log.Answer(payload.TS, AskResult{
		Response: response,
		Text:     payload.Text,
		Images:   payload.Images,
		Files:    payload.Files,
	})
	if !resolved {
		if h.Logger != nil {
			h.Logger.Warn("ask webhook not found", "ts", payload.TS)
		}
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ToEvent converts a log event to its wire form.
func ToEvent(ev Event) protocol.MessageEvent {
	return protocol.MessageEvent{
		Event:   protocol.EventMessage,
		Action:  ev.Action,
		TS:      ev.Message.TS,
		Type:    string(ev.Message.Type),
		Kind:    ev.Message.Kind(),
		Text:    ev.Message.Text,
		Images:  ev.Message.Images,
		Files:   ev.Message.Files,
		Partial: ev.Message.Partial,
	}
}
