package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/toolflow/internal/protocol"
	"github.com/codex-k8s/toolflow/internal/runtime/approver"
)

func TestClientSyncDecisions(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		allowed bool
		reason  string
		wantErr bool
	}{
		{"approve", http.StatusOK, `{"decision":"approve"}`, true, "approved", false},
		{"deny with reason", http.StatusOK, `{"decision":"DENY","reason":"not on friday"}`, false, "not on friday", false},
		{"error", http.StatusOK, `{"decision":"error"}`, false, "approver error", false},
		{"pending without async", http.StatusOK, `{"decision":"pending"}`, false, "approver returned pending", false},
		{"bad status", http.StatusBadGateway, "upstream down", false, "approver status 502: upstream down", false},
		{"unknown decision", http.StatusOK, `{"decision":"maybe"}`, false, "unknown approver decision", true},
		{"invalid json", http.StatusOK, `nope`, false, "invalid approver response", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got protocol.ApproverRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "secret", r.Header.Get("X-Token"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := Client{URL: srv.URL, Headers: map[string]string{"X-Token": "secret"}, Timeout: time.Second}
			d, err := c.Approve(context.Background(), approver.Request{
				ToolName:      "write_to_file",
				Path:          "a.go",
				Params:        map[string]string{"path": "a.go", "api_key": "k"},
				CorrelationID: "c-1",
			})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, "http", d.Source)
			assert.Equal(t, "write_to_file", got.Tool)
			assert.Equal(t, "***", got.Params["api_key"])
			assert.Empty(t, got.CallbackURL)
		})
	}
}

func TestClientAsyncWebhook(t *testing.T) {
	store := NewPendingStore()
	webhook := httptest.NewServer(&WebhookHandler{Store: store})
	defer webhook.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.ApproverRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, webhook.URL, req.CallbackURL)
		w.WriteHeader(http.StatusAccepted)
		go func() {
			body := `{"correlation_id":"` + req.CorrelationID + `","decision":"deny","reason":"reviewer said no"}`
			resp, err := http.Post(req.CallbackURL, "application/json", strings.NewReader(body))
			if err == nil {
				resp.Body.Close()
			}
		}()
	}))
	defer srv.Close()

	c := Client{Label: "reviewer", URL: srv.URL, Async: true, WebhookURL: webhook.URL, Pending: store, Timeout: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d, err := c.Approve(ctx, approver.Request{ToolName: "execute_command", CorrelationID: "c-2"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "reviewer said no", d.Reason)
	assert.Equal(t, "reviewer", d.Source)
}

func TestClientAsyncTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"decision":"pending"}`))
	}))
	defer srv.Close()

	store := NewPendingStore()
	c := Client{URL: srv.URL, Async: true, Pending: store, Timeout: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d, err := c.Approve(ctx, approver.Request{CorrelationID: "c-3"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, d.Allowed)
	assert.False(t, store.Resolve("c-3", approver.Decision{Allowed: true}))
}

func TestWebhookRejectsBadRequests(t *testing.T) {
	store := NewPendingStore()
	h := &WebhookHandler{Store: store}

	tests := []struct {
		method string
		body   string
		status int
	}{
		{http.MethodDelete, "", http.StatusMethodNotAllowed},
		{http.MethodPost, "{", http.StatusBadRequest},
		{http.MethodPost, `{"decision":"approve"}`, http.StatusBadRequest},
		{http.MethodPost, `{"correlation_id":"x","decision":"perhaps"}`, http.StatusBadRequest},
		{http.MethodPost, `{"correlation_id":"x","decision":"approve"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/approvals", strings.NewReader(tt.body)))
		assert.Equal(t, tt.status, rec.Code, tt.body)
	}

	ch, err := store.Register(approver.Request{CorrelationID: "x", ToolName: "execute_command", TaskID: "t-1"}, "src")
	require.NoError(t, err)
	_, err = store.Register(approver.Request{CorrelationID: "x"}, "src")
	require.Error(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/approvals", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []protocol.PendingApproval
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "execute_command", listed[0].Tool)
	assert.Equal(t, "t-1", listed[0].TaskID)
	assert.Equal(t, "src", listed[0].Source)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/approvals", strings.NewReader(`{"correlation_id":"x","decision":"approve"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	d := <-ch
	assert.True(t, d.Allowed)
	assert.Equal(t, "src", d.Source)
	assert.Empty(t, store.List())
}
