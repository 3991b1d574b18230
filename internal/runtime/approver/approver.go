package approver

import (
	"context"
	"errors"
	"strings"
)

// ErrNoApprover is returned by wrappers without an inner approver.
var ErrNoApprover = errors.New("no approver configured")

// Request defines the input sent to approvers.
type Request struct {
	// ToolName is the tool being approved.
	ToolName string
	// Path is the path the tool touches, empty for path-less tools.
	Path string
	// Params are the instruction parameters.
	Params map[string]string
	// TaskID identifies the task.
	TaskID string
	// CorrelationID links related approvals.
	CorrelationID string
}

// Decision represents the approver decision.
type Decision struct {
	// Allowed indicates approval result.
	Allowed bool
	// Reason explains the decision.
	Reason string
	// Source identifies the approver.
	Source string
}

// Approver checks whether an action is allowed.
type Approver interface {
	// Name returns the approver identifier.
	Name() string
	// Approve returns a decision for the given request.
	Approve(ctx context.Context, req Request) (Decision, error)
}

// Chain runs approvers sequentially until one denies.
// An empty chain allows everything.
type Chain struct {
	// Approvers is the ordered list to execute.
	Approvers []Approver
}

// Name identifies the chain.
func (c Chain) Name() string {
	return "chain"
}

// Approve executes all approvers in order. An allowed decision names every
// approver that took part, joined with "+".
func (c Chain) Approve(ctx context.Context, req Request) (Decision, error) {
	if len(c.Approvers) == 0 {
		return Decision{Allowed: true, Reason: "no approvers configured", Source: c.Name()}, nil
	}
	names := make([]string, 0, len(c.Approvers))
	for _, item := range c.Approvers {
		decision, err := item.Approve(ctx, req)
		if err != nil {
			return Decision{Allowed: false, Reason: err.Error(), Source: item.Name()}, err
		}
		if !decision.Allowed {
			if decision.Source == "" {
				decision.Source = item.Name()
			}
			return decision, nil
		}
		names = append(names, item.Name())
	}
	return Decision{Allowed: true, Reason: "approved", Source: strings.Join(names, "+")}, nil
}

// Len returns the number of approvers.
func (c Chain) Len() int {
	return len(c.Approvers)
}
