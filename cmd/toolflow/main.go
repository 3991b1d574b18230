package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/codex-k8s/toolflow/configs"
	"github.com/codex-k8s/toolflow/internal/app"
	approverhttp "github.com/codex-k8s/toolflow/internal/approver/http"
	"github.com/codex-k8s/toolflow/internal/audit"
	"github.com/codex-k8s/toolflow/internal/browser"
	"github.com/codex-k8s/toolflow/internal/buttonstate"
	"github.com/codex-k8s/toolflow/internal/cache"
	"github.com/codex-k8s/toolflow/internal/config"
	"github.com/codex-k8s/toolflow/internal/constants"
	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/dsl"
	"github.com/codex-k8s/toolflow/internal/executil"
	"github.com/codex-k8s/toolflow/internal/filecontext"
	"github.com/codex-k8s/toolflow/internal/ignore"
	"github.com/codex-k8s/toolflow/internal/log"
	"github.com/codex-k8s/toolflow/internal/mcphub"
	"github.com/codex-k8s/toolflow/internal/notify"
	"github.com/codex-k8s/toolflow/internal/protocol"
	"github.com/codex-k8s/toolflow/internal/render"
	"github.com/codex-k8s/toolflow/internal/runtime"
	"github.com/codex-k8s/toolflow/internal/staging"
	"github.com/codex-k8s/toolflow/internal/startup"
	"github.com/codex-k8s/toolflow/internal/task"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/templates"
	"github.com/codex-k8s/toolflow/internal/timeutil"
)

var version = "dev"

// taskCacheEntries bounds the task-scoped cache service.
const taskCacheEntries = 1024

func main() {
	embeddedConfig := flag.String("embedded-config", "", "Use embedded policy from configs/ (filename)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.LogLevel)

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	go func() {
		sig := <-sigCh
		logger.Warn("shutdown requested", "signal", sig.String())
		cancel()
	}()

	if err := run(baseCtx, cfg, *embeddedConfig, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, embeddedConfig string, logger *slog.Logger) error {
	workspace, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	taskID := cfg.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	policy, err := loadPolicy(cfg.PolicyPath, embeddedConfig, render.Vars{Workspace: workspace, TaskID: taskID})
	if err != nil {
		return err
	}
	applyOverrides(policy, cfg)

	lang := policy.Agent.Lang
	if lang == "" {
		lang = cfg.Lang
	}
	bundle, err := templates.Load(lang)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	if err := startup.Run(ctx, policy.StartupHooks, workspace, taskID, logger); err != nil {
		return fmt.Errorf("startup hooks: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ignoreCtrl := ignore.New(workspace, logger)
	if err := ignoreCtrl.Load(); err != nil {
		return fmt.Errorf("load ignore rules: %w", err)
	}
	if err := ignoreCtrl.Watch(ctx); err != nil {
		logger.Warn("ignore rules will not be reloaded", "error", err)
	}

	hub := mcphub.New("toolflow", version, logger)
	if err := hub.Connect(ctx, runtime.McpServers(policy.McpServers)); err != nil {
		logger.Warn("some mcp servers are unavailable", "error", err)
	}
	defer func() {
		if err := hub.Close(); err != nil {
			logger.Warn("close mcp sessions failed", "error", err)
		}
	}()

	browserSettings := runtime.Browser(policy.Browser)
	session := browser.NewSession(browserSettings, logger)
	fetcher := browser.NewFetcher(browserSettings)
	defer func() {
		if err := session.Close(context.Background()); err != nil {
			logger.Warn("close browser failed", "error", err)
		}
		if err := fetcher.Close(); err != nil {
			logger.Warn("close fetcher failed", "error", err)
		}
	}()

	pending := approverhttp.NewPendingStore()
	chain, err := runtime.Approvers(policy, workspace, pending, bundle)
	if err != nil {
		return fmt.Errorf("build approvers: %w", err)
	}

	out := &lineWriter{w: os.Stdout}
	opts := task.Options{
		TaskID:         taskID,
		ModelID:        cfg.ModelID,
		Cwd:            workspace,
		Mode:           taskconfig.Mode(policy.Agent.Mode),
		StrictPlanMode: policy.Agent.StrictPlanMode,
		AgentName:      policy.Agent.Name,
		AutoApproval:   runtime.AutoApproval(policy.AutoApproval),
		Browser:        browserSettings,
		FocusChain:     runtime.FocusChain(policy.FocusChain),
		Services: &taskconfig.Services{
			McpHub:             hub,
			BrowserSession:     session,
			URLContentFetcher:  fetcher,
			DiffViewProvider:   staging.New(),
			FileContextTracker: filecontext.NewTracker(),
			IgnoreController:   ignoreCtrl,
			ContextManager:     filecontext.NewContextManager(runtime.FileContextTTL(policy.FileContext), policy.FileContext.MaxEntries),
			CacheService:       cache.New[string](0, taskCacheEntries),
		},
		Approvers: chain,
		Executor:  runtime.Executor(policy.Commands, workspace),
		Renderer:  bundle,
		Telemetry: audit.New(logger),
		Buttons:   buttonstate.NewStore(),
		Observers: []conversation.Observer{func(ev conversation.Event) {
			out.write(conversation.ToEvent(ev), logger)
		}},
		OnResult: func(ev protocol.ToolResultEvent) { out.write(ev, logger) },
		OnState: func(s protocol.StateResponse) {
			out.write(protocol.StateEvent{Event: protocol.EventState, StateResponse: s}, logger)
		},
		Logger: logger,
	}
	if n := policy.Notifications; n.Command != "" {
		opts.Notifier = notify.NewShell(
			executil.Command{Command: n.Command, Args: n.Args, Env: n.Env, Dir: workspace},
			n.Title,
			timeutil.ParseDurationOrDefault(n.Timeout, notify.DefaultTimeout),
		)
	}

	tk, err := task.New(opts)
	if err != nil {
		return fmt.Errorf("build task: %w", err)
	}
	defer func() {
		if err := tk.Close(context.Background()); err != nil {
			logger.Warn("close task failed", "error", err)
		}
	}()

	application, err := app.New(ctx, policy.HTTP, map[string]http.Handler{
		constants.PathAsks:      &conversation.WebhookHandler{Log: tk.Log(), Logger: logger},
		constants.PathApprovals: &approverhttp.WebhookHandler{Store: pending, Logger: logger},
		constants.PathState:     &task.StateHandler{Task: tk},
		constants.PathMode:      &task.ModeHandler{Task: tk, Logger: logger},
	}, logger, cfg.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("build control server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- application.Run(ctx) }()

	logger.Info("task started", "task_id", taskID, "workspace", workspace, "mode", policy.Agent.Mode)
	serveErr := tk.Serve(ctx, os.Stdin)
	cancel()
	if err := <-serverErr; err != nil {
		return fmt.Errorf("control server: %w", err)
	}
	return serveErr
}

func loadPolicy(path, embedded string, vars render.Vars) (*dsl.Config, error) {
	var (
		rendered []byte
		err      error
	)
	if path != "" && embedded == "" {
		rendered, err = render.RenderFile(path, vars)
	} else {
		var raw []byte
		raw, err = configs.Load(embedded)
		if err != nil {
			return nil, fmt.Errorf("load embedded policy: %w", err)
		}
		name := embedded
		if name == "" {
			name = configs.DefaultName
		}
		rendered, err = render.RenderBytes(name, raw, vars)
	}
	if err != nil {
		return nil, fmt.Errorf("render policy: %w", err)
	}
	policy, err := dsl.Load(rendered)
	if err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return policy, nil
}

// applyOverrides lets the environment win over the policy file.
func applyOverrides(policy *dsl.Config, cfg config.Config) {
	if cfg.Mode != "" {
		policy.Agent.Mode = cfg.Mode
	}
	if cfg.StrictPlanMode {
		policy.Agent.StrictPlanMode = true
	}
	if cfg.AgentName != "" {
		policy.Agent.Name = cfg.AgentName
	}
	if cfg.Listen != "" {
		policy.HTTP.Listen = cfg.Listen
	}
}

// lineWriter serialises JSON lines from concurrent writers.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) write(v any, logger *slog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := json.NewEncoder(l.w).Encode(v); err != nil {
		logger.Warn("write event failed", "error", err)
	}
}
