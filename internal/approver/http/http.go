package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codex-k8s/toolflow/internal/protocol"
	"github.com/codex-k8s/toolflow/internal/runtime/approver"
	"github.com/codex-k8s/toolflow/internal/security"
)

// Client calls external HTTP approvers.
type Client struct {
	// Label is a human-friendly name.
	Label string
	// URL is the approver endpoint.
	URL string
	// Method overrides HTTP method.
	Method string
	// Headers adds HTTP headers.
	Headers map[string]string
	// Timeout is the HTTP timeout.
	Timeout time.Duration
	// Async lets the approver answer pending and decide later through the webhook.
	Async bool
	// WebhookURL is sent as callback_url for async approvals.
	WebhookURL string
	// Pending stores async approvals.
	Pending *PendingStore
}

// Name returns approver name for audit and logging.
func (c Client) Name() string {
	if c.Label != "" {
		return c.Label
	}
	return "http"
}

// Approve sends a request to the HTTP approver and parses the decision.
func (c Client) Approve(ctx context.Context, req approver.Request) (approver.Decision, error) {
	if c.URL == "" {
		return approver.Decision{Allowed: false, Reason: "approver url is empty", Source: c.Name()}, nil
	}
	if c.Async && c.Pending == nil {
		return approver.Decision{Allowed: false, Reason: "approver async store is not configured", Source: c.Name()}, nil
	}

	payload := protocol.ApproverRequest{
		CorrelationID: req.CorrelationID,
		TaskID:        req.TaskID,
		Tool:          req.ToolName,
		Path:          req.Path,
		Params:        security.RedactParams(req.Params),
	}
	if c.Async {
		payload.CallbackURL = c.WebhookURL
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return approver.Decision{Allowed: false, Reason: "failed to encode request", Source: c.Name()}, err
	}

	method := c.Method
	if method == "" {
		method = http.MethodPost
	}

	request, err := http.NewRequestWithContext(ctx, method, c.URL, bytes.NewReader(body))
	if err != nil {
		return approver.Decision{Allowed: false, Reason: "failed to build request", Source: c.Name()}, err
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range c.Headers {
		request.Header.Set(key, value)
	}

	var pendingCh <-chan approver.Decision
	if c.Async {
		ch, err := c.Pending.Register(req, c.Name())
		if err != nil {
			return approver.Decision{Allowed: false, Reason: err.Error(), Source: c.Name()}, err
		}
		pendingCh = ch
		defer c.Pending.Cancel(req.CorrelationID)
	}

	client := &http.Client{Timeout: c.Timeout}
	resp, err := client.Do(request)
	if err != nil {
		return approver.Decision{Allowed: false, Reason: "approver request failed", Source: c.Name()}, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if c.Async && resp.StatusCode == http.StatusAccepted && len(bytes.TrimSpace(data)) == 0 {
		return c.await(ctx, pendingCh)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return approver.Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("approver status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
			Source:  c.Name(),
		}, nil
	}

	var parsed protocol.ApproverResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return approver.Decision{Allowed: false, Reason: "invalid approver response", Source: c.Name()}, err
	}

	decision := strings.ToLower(strings.TrimSpace(parsed.Decision))
	switch decision {
	case protocol.DecisionApprove:
		return approver.Decision{Allowed: true, Reason: fallbackReason(parsed.Reason, "approved"), Source: c.Name()}, nil
	case protocol.DecisionDeny:
		return approver.Decision{Allowed: false, Reason: fallbackReason(parsed.Reason, "denied"), Source: c.Name()}, nil
	case protocol.DecisionError:
		return approver.Decision{Allowed: false, Reason: fallbackReason(parsed.Reason, "approver error"), Source: c.Name()}, nil
	case protocol.DecisionPending:
		if c.Async {
			return c.await(ctx, pendingCh)
		}
		return approver.Decision{Allowed: false, Reason: "approver returned pending", Source: c.Name()}, nil
	default:
		return approver.Decision{Allowed: false, Reason: "unknown approver decision", Source: c.Name()}, fmt.Errorf("unknown approver decision: %s", decision)
	}
}

func (c Client) await(ctx context.Context, pendingCh <-chan approver.Decision) (approver.Decision, error) {
	select {
	case decision, ok := <-pendingCh:
		if !ok {
			return approver.Decision{Allowed: false, Reason: "approval cancelled", Source: c.Name()}, nil
		}
		return decision, nil
	case <-ctx.Done():
		return approver.Decision{Allowed: false, Reason: "approval timeout", Source: c.Name()}, ctx.Err()
	}
}

func fallbackReason(reason, fallback string) string {
	if strings.TrimSpace(reason) == "" {
		return fallback
	}
	return reason
}

var errAlreadyPending = errors.New("approval already pending")
