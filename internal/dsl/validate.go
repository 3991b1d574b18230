package dsl

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/codex-k8s/toolflow/internal/constants"
	"github.com/codex-k8s/toolflow/internal/timeutil"
)

// Validate applies defaults and verifies the policy.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	normalize(cfg)

	if cfg.Agent.Name == "" {
		cfg.Agent.Name = constants.DefaultAgentName
	}
	switch cfg.Agent.Mode {
	case "":
		cfg.Agent.Mode = constants.ModeAct
	case constants.ModeAct, constants.ModePlan:
	default:
		return fmt.Errorf("agent.mode must be plan or act")
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = constants.DefaultListen
	}
	for field, value := range map[string]string{
		"http.read_timeout":     cfg.HTTP.ReadTimeout,
		"http.write_timeout":    cfg.HTTP.WriteTimeout,
		"http.idle_timeout":     cfg.HTTP.IdleTimeout,
		"commands.timeout":      cfg.Commands.Timeout,
		"notifications.timeout": cfg.Notifications.Timeout,
		"file_context.ttl":      cfg.FileContext.TTL,
	} {
		if err := checkDuration(field, value); err != nil {
			return err
		}
	}
	if cfg.AutoApproval.MaxRequests < 0 {
		return fmt.Errorf("auto_approval.max_requests must be >= 0")
	}
	if cfg.Commands.MaxOutput < 0 {
		return fmt.Errorf("commands.max_output must be >= 0")
	}

	for i, rule := range cfg.AutoApproval.Rules {
		if strings.TrimSpace(rule.Expr) == "" {
			return fmt.Errorf("auto_approval.rules[%d].expr is required", i)
		}
		switch rule.Effect {
		case constants.EffectAllow, constants.EffectDeny:
		default:
			return fmt.Errorf("auto_approval.rules[%d].effect must be allow or deny", i)
		}
	}

	if err := validateApprovers(cfg); err != nil {
		return err
	}

	names := map[string]struct{}{}
	for i, srv := range cfg.McpServers {
		if srv.Name == "" {
			return fmt.Errorf("mcp_servers[%d].name is required", i)
		}
		if _, exists := names[srv.Name]; exists {
			return fmt.Errorf("duplicate mcp server name: %s", srv.Name)
		}
		names[srv.Name] = struct{}{}
		if (srv.Command == "") == (srv.URL == "") {
			return fmt.Errorf("mcp_servers[%d]: exactly one of command and url is required", i)
		}
		if srv.URL != "" {
			if _, err := parseAbsoluteURL(srv.URL); err != nil {
				return fmt.Errorf("mcp_servers[%d].url is invalid: %w", i, err)
			}
		}
		if err := checkDuration(fmt.Sprintf("mcp_servers[%d].timeout", i), srv.Timeout); err != nil {
			return err
		}
	}

	if cfg.Browser.ViewportWidth == 0 {
		cfg.Browser.ViewportWidth = 900
	}
	if cfg.Browser.ViewportHeight == 0 {
		cfg.Browser.ViewportHeight = 600
	}
	if cfg.Browser.ViewportWidth < 0 || cfg.Browser.ViewportHeight < 0 {
		return fmt.Errorf("browser viewport must be positive")
	}
	if cfg.Browser.Headless == nil {
		headless := true
		cfg.Browser.Headless = &headless
	}
	if cfg.FocusChain.RemindEvery < 0 {
		return fmt.Errorf("focus_chain.remind_every must be >= 0")
	}

	for i, hook := range cfg.StartupHooks {
		if strings.TrimSpace(hook.Command) == "" {
			return fmt.Errorf("startup_hooks[%d].command is required", i)
		}
		if err := checkDuration(fmt.Sprintf("startup_hooks[%d].timeout", i), hook.Timeout); err != nil {
			return err
		}
	}
	return nil
}

func validateApprovers(cfg *Config) error {
	for i, a := range cfg.Approvers {
		if err := checkDuration(fmt.Sprintf("approvers[%d].timeout", i), a.Timeout); err != nil {
			return err
		}
		switch a.Type {
		case constants.ApproverHTTP:
			if strings.TrimSpace(a.URL) == "" {
				return fmt.Errorf("approvers[%d].url is required", i)
			}
			if strings.TrimSpace(a.WebhookURL) != "" {
				if _, err := parseWebhookURL(a.WebhookURL); err != nil {
					return fmt.Errorf("approvers[%d].webhook_url is invalid: %w", i, err)
				}
			}
			if a.Async && strings.TrimSpace(cfg.ApprovalWebhookURL) == "" && strings.TrimSpace(a.WebhookURL) == "" {
				return fmt.Errorf("async http approver requires approval_webhook_url or approver webhook_url")
			}
		case constants.ApproverShell:
			if strings.TrimSpace(a.Command) == "" {
				return fmt.Errorf("approvers[%d].command is required", i)
			}
		case constants.ApproverLimits:
			if a.MaxTotal < 0 || a.RatePerMinute < 0 {
				return fmt.Errorf("approvers[%d]: limits must be >= 0", i)
			}
		case "":
			return fmt.Errorf("approvers[%d].type is required", i)
		default:
			return fmt.Errorf("approvers[%d].type %q is not supported", i, a.Type)
		}
	}
	if strings.TrimSpace(cfg.ApprovalWebhookURL) != "" {
		if _, err := parseWebhookURL(cfg.ApprovalWebhookURL); err != nil {
			return fmt.Errorf("approval_webhook_url is invalid: %w", err)
		}
	}
	return nil
}

// normalize lowercases enum-like values.
func normalize(cfg *Config) {
	cfg.Agent.Mode = strings.ToLower(strings.TrimSpace(cfg.Agent.Mode))
	for i := range cfg.AutoApproval.Rules {
		cfg.AutoApproval.Rules[i].Effect = strings.ToLower(strings.TrimSpace(cfg.AutoApproval.Rules[i].Effect))
	}
	for i := range cfg.Approvers {
		cfg.Approvers[i].Type = strings.ToLower(strings.TrimSpace(cfg.Approvers[i].Type))
	}
}

func checkDuration(field, value string) error {
	if _, err := timeutil.Parse(value); err != nil {
		return fmt.Errorf("%s is invalid: %w", field, err)
	}
	return nil
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("url must be absolute")
	}
	return parsed, nil
}

func parseWebhookURL(raw string) (*url.URL, error) {
	parsed, err := parseAbsoluteURL(raw)
	if err != nil {
		return nil, fmt.Errorf("webhook url is invalid: %w", err)
	}
	if strings.TrimSpace(parsed.Path) == "" || !strings.HasPrefix(parsed.Path, "/") {
		return nil, fmt.Errorf("webhook url must include a path")
	}
	return parsed, nil
}
