package uihelpers_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/codex-k8s/toolflow/internal/audit"
	"github.com/codex-k8s/toolflow/internal/autoapprove"
	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/taskconfig/taskconfigtest"
	"github.com/codex-k8s/toolflow/internal/uihelpers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Record(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type panicky struct{}

func (panicky) Record(context.Context, audit.Event) { panic("boom") }

type notifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *notifier) Notify(_ context.Context, _ string, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return n.err
}

func TestAskApproval(t *testing.T) {
	env := taskconfigtest.New(t)
	h := uihelpers.New(env.Config)
	ctx := context.Background()

	ok, err := h.AskApproval(ctx, conversation.AskTool, "msg")
	require.NoError(t, err)
	assert.False(t, ok)

	env.Approve()
	ok, err = h.AskApproval(ctx, conversation.AskTool, "msg")
	require.NoError(t, err)
	assert.True(t, ok)

	env.AnswerWith(conversation.AskResult{Response: conversation.ResponseMessage, Text: "yes please"}, nil)
	ok, err = h.AskApproval(ctx, conversation.AskTool, "msg")
	require.NoError(t, err)
	assert.False(t, ok)

	env.AnswerWith(conversation.AskResult{}, conversation.ErrChannelClosed)
	ok, err = h.AskApproval(ctx, conversation.AskTool, "msg")
	require.ErrorIs(t, err, conversation.ErrChannelClosed)
	assert.False(t, ok)

	assert.Len(t, env.Asks(), 4)
}

func TestCaptureTelemetry(t *testing.T) {
	env := taskconfigtest.New(t)
	rec := &recorder{}
	h := uihelpers.New(env.Config, uihelpers.WithTelemetry(rec))

	h.CaptureTelemetry(context.Background(), instruction.ReadFile, true, true)
	h.Wait()

	require.Len(t, rec.events, 1)
	got := rec.events[0]
	assert.Equal(t, audit.TypeToolUsage, got.Type)
	assert.Equal(t, "read_file", got.Tool)
	assert.Equal(t, "test-model", got.ModelID)
	assert.True(t, got.AutoApproved)
	assert.True(t, got.Approved)
}

func TestSideChannelsNeverFail(t *testing.T) {
	env := taskconfigtest.New(t)
	env.AutoApprove(t, autoapprove.Settings{EnableNotifications: true})
	n := &notifier{err: errors.New("no display")}
	h := uihelpers.New(env.Config, uihelpers.WithTelemetry(panicky{}), uihelpers.WithNotifier(n))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.CaptureTelemetry(ctx, instruction.WriteToFile, false, false)
	h.ShowNotificationIfEnabled(ctx, "Agent wants to edit a.txt")
	h.Wait()

	assert.Equal(t, []string{"Agent wants to edit a.txt"}, n.messages)
}

func TestNotificationsGated(t *testing.T) {
	env := taskconfigtest.New(t)
	n := &notifier{}
	h := uihelpers.New(env.Config, uihelpers.WithNotifier(n))

	h.ShowNotificationIfEnabled(context.Background(), "hidden")
	h.Wait()
	assert.Empty(t, n.messages)
}

func TestPolicyQueries(t *testing.T) {
	env := taskconfigtest.New(t)
	env.AutoApprove(t, autoapprove.Settings{Enabled: true, Actions: autoapprove.Actions{ReadFiles: true}})
	h := uihelpers.New(env.Config)

	assert.Equal(t, autoapprove.Decision{Local: true}, h.ShouldAutoApproveTool(instruction.ReadFile))

	ok, err := h.ShouldAutoApproveToolWithPath(context.Background(), instruction.ReadFile, "a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.ShouldAutoApproveToolWithPath(context.Background(), instruction.ReadFile, "/etc/hosts")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Same(t, env.Config, h.Config())
}

func TestRemoveClosingTag(t *testing.T) {
	h := uihelpers.New(taskconfigtest.New(t).Config)
	in := instruction.Instruction{Name: instruction.ReadFile, Partial: true}
	assert.Equal(t, "src/app", h.RemoveClosingTag(in, instruction.ParamPath, "src/app </pa"))
}
