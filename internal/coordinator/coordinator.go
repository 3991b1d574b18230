// Package coordinator routes completed instructions to registered handlers.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/uihelpers"
)

// ErrUnknownCapability is wrapped by RoutingError.
var ErrUnknownCapability = errors.New("no handler registered for tool")

// ErrPartialInstruction is returned when Execute receives a partial instruction.
var ErrPartialInstruction = errors.New("instruction is still partial")

// RoutingError reports an instruction naming an unregistered capability.
type RoutingError struct {
	Name instruction.ToolName
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownCapability, e.Name)
}

func (e *RoutingError) Unwrap() error {
	return ErrUnknownCapability
}

// Result is the tool result fed back into the conversation.
type Result struct {
	// Text is the model-facing result.
	Text string
	// Images are optional image attachments.
	Images []string
}

// Handler executes one capability.
type Handler interface {
	// Name returns the capability name.
	Name() instruction.ToolName
	// Execute runs a final instruction. It must obtain approval through
	// uihelpers before producing side effects.
	Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (Result, error)
}

// PartialHandler refreshes the preview of a streaming instruction.
// HandlePartialBlock must never perform the capability's side effect.
type PartialHandler interface {
	HandlePartialBlock(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error
}

// Coordinator maps capability names to handlers. Register during setup and
// call Freeze before dispatching.
type Coordinator struct {
	mu       sync.RWMutex
	handlers map[instruction.ToolName]Handler
	frozen   bool
}

// New returns a coordinator with handlers registered in order.
func New(handlers ...Handler) *Coordinator {
	c := &Coordinator{handlers: make(map[instruction.ToolName]Handler, len(handlers))}
	for _, h := range handlers {
		c.Register(h)
	}
	return c
}

// Register stores h under its name; the last registration for a name wins.
// It panics after Freeze.
func (c *Coordinator) Register(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		panic(fmt.Sprintf("coordinator: register %s after freeze", h.Name()))
	}
	c.handlers[h.Name()] = h
}

// Freeze ends the registration phase.
func (c *Coordinator) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Has reports whether a handler is registered for name.
func (c *Coordinator) Has(name instruction.ToolName) bool {
	_, ok := c.Handler(name)
	return ok
}

// Handler returns the handler registered for name.
func (c *Coordinator) Handler(name instruction.ToolName) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[name]
	return h, ok
}

// Names returns the registered capability names, sorted.
func (c *Coordinator) Names() []instruction.ToolName {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]instruction.ToolName, 0, len(c.handlers))
	for name := range c.handlers {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute runs a final instruction through its handler and returns the
// handler's result and error unchanged.
func (c *Coordinator) Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (Result, error) {
	if in.Partial {
		return Result{}, fmt.Errorf("%s: %w", in.Name, ErrPartialInstruction)
	}
	h, ok := c.Handler(in.Name)
	if !ok {
		return Result{}, &RoutingError{Name: in.Name}
	}
	return h.Execute(ctx, cfg, in)
}

// HandlePartial refreshes the preview of a partial instruction. Unknown
// capabilities and handlers without preview support are ignored.
func (c *Coordinator) HandlePartial(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error {
	h, ok := c.Handler(in.Name)
	if !ok {
		return nil
	}
	ph, ok := h.(PartialHandler)
	if !ok {
		return nil
	}
	return ph.HandlePartialBlock(ctx, in, ui)
}
