// Package runtime translates the validated policy file into the runtime
// objects a task is assembled from.
package runtime

import (
	"context"
	"fmt"
	"slices"
	"time"

	approverhttp "github.com/codex-k8s/toolflow/internal/approver/http"
	"github.com/codex-k8s/toolflow/internal/approver/limits"
	"github.com/codex-k8s/toolflow/internal/approver/shell"
	"github.com/codex-k8s/toolflow/internal/autoapprove"
	"github.com/codex-k8s/toolflow/internal/constants"
	"github.com/codex-k8s/toolflow/internal/dsl"
	"github.com/codex-k8s/toolflow/internal/mcphub"
	"github.com/codex-k8s/toolflow/internal/runtime/approver"
	"github.com/codex-k8s/toolflow/internal/runtime/executor"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/templates"
	"github.com/codex-k8s/toolflow/internal/timeutil"
)

// DefaultHTTPApproverTimeout bounds a synchronous HTTP approver call.
const DefaultHTTPApproverTimeout = 10 * time.Second

// Approvers builds the approver chain. pending receives async HTTP approvals
// and may be nil when no approver is async. Shell approvers run in dir.
func Approvers(cfg *dsl.Config, dir string, pending *approverhttp.PendingStore, renderer templates.Renderer) (approver.Chain, error) {
	if len(cfg.Approvers) == 0 {
		return approver.Chain{}, nil
	}

	var items []approver.Approver
	for _, ac := range cfg.Approvers {
		timeout := timeutil.ParseDurationOrDefault(ac.Timeout, 0)
		switch ac.Type {
		case constants.ApproverHTTP:
			webhook := ac.WebhookURL
			if webhook == "" {
				webhook = cfg.ApprovalWebhookURL
			}
			client := approverhttp.Client{
				Label:      ac.Name,
				URL:        ac.URL,
				Method:     ac.Method,
				Headers:    ac.Headers,
				Timeout:    timeutil.ParseDurationOrDefault(ac.Timeout, DefaultHTTPApproverTimeout),
				Async:      ac.Async,
				WebhookURL: webhook,
				Pending:    pending,
			}
			items = append(items, scope(wrapTimeout(client, timeout), ac.Tools))
		case constants.ApproverShell:
			item := shell.Approver{
				Label:          ac.Name,
				Command:        ac.Command,
				Args:           ac.Args,
				Env:            ac.Env,
				Dir:            dir,
				AllowExitCodes: ac.AllowExitCodes,
			}
			items = append(items, scope(wrapTimeout(item, timeout), ac.Tools))
		case constants.ApproverLimits:
			item, err := limits.NewApprover(limits.Policy{
				Name:          ac.Name,
				Tools:         ac.Tools,
				MaxTotal:      ac.MaxTotal,
				RatePerMinute: ac.RatePerMinute,
				FieldPolicies: toFieldPolicies(ac.FieldPolicies),
			}, renderer)
			if err != nil {
				return approver.Chain{}, fmt.Errorf("approver %s: %w", ac.Name, err)
			}
			items = append(items, wrapTimeout(item, timeout))
		default:
			return approver.Chain{}, fmt.Errorf("unknown approver type: %s", ac.Type)
		}
	}
	return approver.Chain{Approvers: items}, nil
}

func wrapTimeout(item approver.Approver, timeout time.Duration) approver.Approver {
	if timeout <= 0 {
		return item
	}
	return approver.Timeout{Inner: item, Timeout: timeout}
}

// scoped skips the inner approver for tools it is not configured for.
type scoped struct {
	approver.Approver
	tools []string
}

func scope(item approver.Approver, tools []string) approver.Approver {
	if len(tools) == 0 {
		return item
	}
	return scoped{Approver: item, tools: tools}
}

func (s scoped) Approve(ctx context.Context, req approver.Request) (approver.Decision, error) {
	if !slices.Contains(s.tools, req.ToolName) {
		return approver.Decision{Allowed: true, Reason: "not scoped", Source: s.Name()}, nil
	}
	return s.Approver.Approve(ctx, req)
}

func toFieldPolicies(policies map[string]dsl.FieldPolicy) map[string]limits.FieldPolicy {
	if policies == nil {
		return nil
	}
	out := make(map[string]limits.FieldPolicy, len(policies))
	for key, value := range policies {
		out[key] = limits.FieldPolicy{
			Regex:     value.Regex,
			Min:       value.Min,
			Max:       value.Max,
			MinLength: value.MinLength,
			MaxLength: value.MaxLength,
		}
	}
	return out
}

// AutoApproval converts the auto_approval section.
func AutoApproval(cfg dsl.AutoApprovalConfig) autoapprove.Settings {
	rules := make([]autoapprove.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, autoapprove.Rule{Name: r.Name, Expr: r.Expr, Effect: autoapprove.Effect(r.Effect)})
	}
	a := cfg.Actions
	return autoapprove.Settings{
		Enabled:             cfg.Enabled,
		Yolo:                cfg.Yolo,
		EnableNotifications: cfg.EnableNotifications,
		MaxRequests:         cfg.MaxRequests,
		Actions: autoapprove.Actions{
			ReadFiles:           a.ReadFiles,
			ReadFilesExternally: a.ReadFilesExternally,
			EditFiles:           a.EditFiles,
			EditFilesExternally: a.EditFilesExternally,
			ExecuteSafeCommands: a.ExecuteSafeCommands,
			ExecuteAllCommands:  a.ExecuteAllCommands,
			UseBrowser:          a.UseBrowser,
			UseMcp:              a.UseMcp,
		},
		Rules: rules,
	}
}

// McpServers converts the mcp_servers section.
func McpServers(servers []dsl.McpServerConfig) []mcphub.ServerConfig {
	out := make([]mcphub.ServerConfig, 0, len(servers))
	for _, s := range servers {
		out = append(out, mcphub.ServerConfig{
			Name:     s.Name,
			Command:  s.Command,
			Args:     s.Args,
			Env:      s.Env,
			URL:      s.URL,
			Headers:  s.Headers,
			Timeout:  timeutil.ParseDurationOrDefault(s.Timeout, mcphub.DefaultTimeout),
			Disabled: s.Disabled,
		})
	}
	return out
}

// Browser converts the browser section. Validate fills the defaults.
func Browser(cfg dsl.BrowserConfig) taskconfig.BrowserSettings {
	headless := true
	if cfg.Headless != nil {
		headless = *cfg.Headless
	}
	return taskconfig.BrowserSettings{
		Headless:       headless,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		RemoteURL:      cfg.RemoteURL,
	}
}

// FocusChain converts the focus_chain section.
func FocusChain(cfg dsl.FocusChainConfig) taskconfig.FocusChainSettings {
	return taskconfig.FocusChainSettings{Enabled: cfg.Enabled, RemindEvery: cfg.RemindEvery}
}

// Executor builds the command executor running in dir.
func Executor(cfg dsl.CommandConfig, dir string) executor.Shell {
	return executor.Shell{
		Dir:       dir,
		Timeout:   timeutil.ParseDurationOrDefault(cfg.Timeout, executor.DefaultTimeout),
		MaxOutput: cfg.MaxOutput,
	}
}

// FileContextTTL returns the read deduplication TTL.
func FileContextTTL(cfg dsl.FileContextConfig) time.Duration {
	return timeutil.ParseDurationOrDefault(cfg.TTL, time.Hour)
}
