// Package stream drives instructions observed in a streamed model response
// through the coordinator: partial emissions refresh previews and the first
// final emission of each instruction executes exactly once.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codex-k8s/toolflow/internal/coordinator"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/security"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/uihelpers"
)

var (
	// ErrLifecycle is returned for a partial emission after the instruction became final.
	ErrLifecycle = errors.New("instruction already final")
	// ErrOutOfOrder is returned when an emission refers to an earlier instruction.
	ErrOutOfOrder = errors.New("instruction index out of order")
	// ErrAborted is returned once the task was cancelled.
	ErrAborted = errors.New("task aborted")
)

// Emission is one observation of an instruction at position Index of the response.
type Emission struct {
	Index       int
	Instruction instruction.Instruction
}

// ResultFunc receives the outcome of every executed instruction.
type ResultFunc func(ctx context.Context, em Emission, res coordinator.Result, err error)

// Env returns the config and helpers in effect for the next emission.
type Env func() (*taskconfig.Config, *uihelpers.Helpers)

// Dispatcher serialises emissions of one response stream.
type Dispatcher struct {
	coord    *coordinator.Coordinator
	env      Env
	onResult ResultFunc
	logger   *slog.Logger

	mu      sync.Mutex
	current int
	final   bool
}

// New creates a dispatcher. onResult may be nil.
func New(coord *coordinator.Coordinator, env Env, onResult ResultFunc, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{coord: coord, env: env, onResult: onResult, logger: logger, current: -1}
}

// Reset forgets the instruction in flight, for a new response stream.
// A file staged by an instruction that never became final is reverted.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg, _ := d.env()
	d.discardStaged(cfg)
	d.current = -1
	d.final = false
}

// Dispatch handles one emission. Handler and routing errors are delivered to
// the result callback, not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, em Emission) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg, ui := d.env()
	if cfg.TaskState.Aborted() {
		return ErrAborted
	}

	switch {
	case em.Index < d.current:
		return fmt.Errorf("%w: got %d after %d", ErrOutOfOrder, em.Index, d.current)
	case em.Index == d.current && d.final:
		if em.Instruction.Partial {
			return fmt.Errorf("%w: index %d", ErrLifecycle, em.Index)
		}
		// repeated final emission
		return nil
	case em.Index > d.current:
		d.discardStaged(cfg)
		d.current = em.Index
		d.final = false
	}

	in := em.Instruction
	if in.Partial {
		if err := d.coord.HandlePartial(ctx, in, ui); err != nil {
			d.debug("partial preview failed", em, err)
			return fmt.Errorf("preview %s: %w", in.Name, err)
		}
		return nil
	}

	d.final = true
	if d.logger != nil {
		d.logger.Info("execute instruction",
			"task_id", cfg.TaskID,
			"index", em.Index,
			"tool", in.Name,
			"params", security.RedactParams(in.Params.Map()),
		)
	}
	res, err := d.coord.Execute(ctx, cfg, in)
	if err != nil {
		d.debug("instruction failed", em, err)
	}
	if d.onResult != nil {
		d.onResult(ctx, em, res, err)
	}
	return nil
}

// discardStaged reverts a file left in the staging view by a partial
// instruction that was abandoned.
func (d *Dispatcher) discardStaged(cfg *taskconfig.Config) {
	diff := cfg.Services.DiffViewProvider
	if !diff.IsEditing() {
		return
	}
	path := diff.Path()
	if err := diff.Revert(); err != nil {
		if d.logger != nil {
			d.logger.Warn("revert abandoned staged file failed", "task_id", cfg.TaskID, "path", path, "error", err)
		}
		return
	}
	if d.logger != nil {
		d.logger.Debug("reverted abandoned staged file", "task_id", cfg.TaskID, "path", path)
	}
}

func (d *Dispatcher) debug(msg string, em Emission, err error) {
	if d.logger == nil {
		return
	}
	d.logger.Debug(msg, "index", em.Index, "tool", em.Instruction.Name, "error", err)
}
