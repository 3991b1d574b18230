package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/codex-k8s/toolflow/internal/maputil"
	"github.com/codex-k8s/toolflow/internal/protocol"
	"github.com/codex-k8s/toolflow/internal/runtime/approver"
)

// PendingStore keeps approvals waiting for an async approver callback.
type PendingStore struct {
	mu      sync.Mutex
	pending map[string]*pendingApproval
	now     func() time.Time
}

type pendingApproval struct {
	ch   chan approver.Decision
	info protocol.PendingApproval
}

// NewPendingStore creates a new async approval store.
func NewPendingStore() *PendingStore {
	return &PendingStore{pending: make(map[string]*pendingApproval), now: time.Now}
}

// Register allocates a pending slot for req.CorrelationID.
func (s *PendingStore) Register(req approver.Request, source string) (<-chan approver.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[req.CorrelationID]; exists {
		return nil, errAlreadyPending
	}
	ch := make(chan approver.Decision, 1)
	s.pending[req.CorrelationID] = &pendingApproval{ch: ch, info: protocol.PendingApproval{
		CorrelationID: req.CorrelationID,
		Source:        source,
		Tool:          req.ToolName,
		Path:          req.Path,
		TaskID:        req.TaskID,
		Since:         s.now(),
	}}
	return ch, nil
}

// Resolve delivers a decision for correlationID.
func (s *PendingStore) Resolve(correlationID string, decision approver.Decision) bool {
	entry, ok := maputil.Pop(&s.mu, s.pending, correlationID)
	if !ok {
		return false
	}
	if decision.Source == "" {
		decision.Source = entry.info.Source
	}
	entry.ch <- decision
	close(entry.ch)
	return true
}

// Cancel removes a pending approval without a decision.
func (s *PendingStore) Cancel(correlationID string) {
	if entry, ok := maputil.Pop(&s.mu, s.pending, correlationID); ok {
		close(entry.ch)
	}
}

// List returns pending approvals ordered by correlation id.
func (s *PendingStore) List() []protocol.PendingApproval {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.PendingApproval, 0, len(s.pending))
	for _, id := range maputil.SortedKeys(s.pending) {
		out = append(out, s.pending[id].info)
	}
	return out
}

var webhookDecisions = map[string]struct {
	allowed bool
	reason  string
}{
	protocol.DecisionApprove: {true, "approved"},
	protocol.DecisionDeny:    {false, "denied"},
	protocol.DecisionError:   {false, "approver error"},
}

// WebhookHandler serves async approver callbacks: POST resolves a pending
// approval, GET lists the ones still waiting.
type WebhookHandler struct {
	Store  *PendingStore
	Logger *slog.Logger
}

// ServeHTTP processes webhook callbacks from async approvers.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.Store.List())
	case http.MethodPost:
		h.resolve(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *WebhookHandler) resolve(w http.ResponseWriter, r *http.Request) {
	var payload protocol.ApproverDecision
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	correlationID := strings.TrimSpace(payload.CorrelationID)
	outcome, known := webhookDecisions[strings.ToLower(strings.TrimSpace(payload.Decision))]
	if correlationID == "" || !known {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	d := approver.Decision{Allowed: outcome.allowed, Reason: fallbackReason(payload.Reason, outcome.reason)}
	if !h.Store.Resolve(correlationID, d) {
		if h.Logger != nil {
			h.Logger.Warn("approval webhook not found", "correlation_id", correlationID)
		}
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("async approval resolved", "correlation_id", correlationID, "allowed", d.Allowed)
	}
	w.WriteHeader(http.StatusOK)
}
