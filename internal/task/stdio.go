package task

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/codex-k8s/toolflow/internal/protocol"
	"github.com/codex-k8s/toolflow/internal/stream"
)

// MaxLineSize bounds one instruction line.
const MaxLineSize = 16 << 20

// Serve reads protocol.InstructionEvent JSON lines from r and dispatches
// them in order. A blank line ends the current model response. Serve
// returns nil at EOF.
func (t *Task) Serve(ctx context.Context, r io.Reader) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read instructions: %w", err)
					}
				default:
				}
				return nil
			}
			if err := t.serveLine(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (t *Task) serveLine(ctx context.Context, line []byte) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		t.NewResponse()
		return nil
	}
	var ev protocol.InstructionEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		if t.opts.Logger != nil {
			t.opts.Logger.Warn("invalid instruction line", "error", err)
		}
		return nil
	}
	return t.step(ctx, stream.Emission{Index: ev.Index, Instruction: ev.Instruction})
}
