package approver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeout bounds an approver. A missed deadline is reported as a denial so
// the task can fall back to the user; cancellation of the caller is an error.
type Timeout struct {
	// Inner is the wrapped approver.
	Inner Approver
	// Timeout is the maximum duration for approval. Zero disables the bound.
	Timeout time.Duration
}

// Name returns the inner approver name.
func (t Timeout) Name() string {
	if t.Inner != nil {
		return t.Inner.Name()
	}
	return "timeout"
}

// Approve runs the inner approver under the deadline.
func (t Timeout) Approve(ctx context.Context, req Request) (Decision, error) {
	if t.Inner == nil {
		return Decision{Source: t.Name(), Reason: ErrNoApprover.Error()}, ErrNoApprover
	}
	if t.Timeout <= 0 {
		return t.Inner.Approve(ctx, req)
	}

	bounded, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	decision, err := t.Inner.Approve(bounded, req)
	if ctx.Err() != nil {
		return Decision{Source: t.Name(), Reason: "approval canceled"}, ctx.Err()
	}
	if errors.Is(bounded.Err(), context.DeadlineExceeded) {
		return Decision{Source: t.Name(), Reason: fmt.Sprintf("no decision within %s", t.Timeout)}, nil
	}
	return decision, err
}
