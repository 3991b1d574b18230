package autoapprove

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/pathutil"
)

// AccessValidator reports whether a path may be accessed at all.
type AccessValidator interface {
	ValidateAccess(path string) bool
}

// Decision is the result of a path-independent policy query.
// Local allows the action inside the workspace; External additionally
// allows it outside. For capabilities without a path both are equal.
type Decision struct {
	Local    bool
	External bool
}

// AutoApprove evaluates the auto-approval policy.
type AutoApprove struct {
	settings Settings
	roots    []string
	mode     string
	access   AccessValidator
	rules    []compiledRule
}

type compiledRule struct {
	rule    Rule
	program cel.Program
}

// Option configures AutoApprove.
type Option func(*AutoApprove)

// WithAccessValidator rejects paths the validator denies.
func WithAccessValidator(v AccessValidator) Option {
	return func(a *AutoApprove) { a.access = v }
}

// WithMode sets the mode visible to rules.
func WithMode(mode string) Option {
	return func(a *AutoApprove) { a.mode = mode }
}

// New compiles the rules of settings. roots are workspace roots, the first
// one is used to resolve relative paths.
func New(settings Settings, roots []string, opts ...Option) (*AutoApprove, error) {
	a := &AutoApprove{settings: settings, roots: roots}
	for _, opt := range opts {
		opt(a)
	}
	if len(settings.Rules) == 0 {
		return a, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("tool", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("in_workspace", cel.BoolType),
		cel.Variable("mode", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule environment: %w", err)
	}
	for i, rule := range settings.Rules {
		switch rule.Effect {
		case EffectAllow, EffectDeny:
		default:
			return nil, fmt.Errorf("rule %d (%s): unknown effect %q", i, rule.Name, rule.Effect)
		}
		ast, issues := env.Compile(rule.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %d (%s): compile: %w", i, rule.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %d (%s): expression must be bool, got %s", i, rule.Name, ast.OutputType())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): program: %w", i, rule.Name, err)
		}
		a.rules = append(a.rules, compiledRule{rule: rule, program: prg})
	}
	return a, nil
}

// ForMode returns a copy evaluating rules for mode.
func (a *AutoApprove) ForMode(mode string) *AutoApprove {
	clone := *a
	clone.mode = mode
	return &clone
}

// Settings returns the policy settings.
func (a *AutoApprove) Settings() Settings {
	return a.settings
}

// ShouldAutoApproveTool answers the path-independent policy question for name.
func (a *AutoApprove) ShouldAutoApproveTool(name instruction.ToolName) Decision {
	if a.settings.Yolo {
		return Decision{Local: true, External: true}
	}
	if !a.settings.Enabled {
		return Decision{}
	}
	actions := a.settings.Actions
	switch name {
	case instruction.ReadFile, instruction.ListFiles, instruction.ListCodeDefinitionNames, instruction.SearchFiles:
		return Decision{Local: actions.ReadFiles, External: actions.ReadFilesExternally}
	case instruction.WriteToFile, instruction.ReplaceInFile, instruction.NewRule:
		return Decision{Local: actions.EditFiles, External: actions.EditFilesExternally}
	case instruction.ExecuteCommand:
		return Decision{Local: actions.ExecuteSafeCommands, External: actions.ExecuteAllCommands}
	case instruction.BrowserAction, instruction.WebFetch:
		return Decision{Local: actions.UseBrowser, External: actions.UseBrowser}
	case instruction.UseMcpTool, instruction.AccessMcpResource:
		return Decision{Local: actions.UseMcp, External: actions.UseMcp}
	}
	return Decision{}
}

// ShouldAutoApproveToolWithPath answers the policy question for name acting
// on path. An empty path counts as outside the workspace.
func (a *AutoApprove) ShouldAutoApproveToolWithPath(ctx context.Context, name instruction.ToolName, path string) (bool, error) {
	if path != "" && a.access != nil && !a.access.ValidateAccess(path) {
		return false, nil
	}
	inWorkspace := path != "" && pathutil.InWorkspace(path, a.roots...)

	for _, r := range a.rules {
		matched, err := a.eval(ctx, r, name, path, inWorkspace)
		if err != nil {
			return false, err
		}
		if matched {
			return r.rule.Effect == EffectAllow, nil
		}
	}

	decision := a.ShouldAutoApproveTool(name)
	if inWorkspace {
		return decision.Local, nil
	}
	return decision.Local && decision.External, nil
}

func (a *AutoApprove) eval(ctx context.Context, r compiledRule, name instruction.ToolName, path string, inWorkspace bool) (bool, error) {
	out, _, err := r.program.ContextEval(ctx, map[string]any{
		"tool":         string(name),
		"path":         path,
		"in_workspace": inWorkspace,
		"mode":         a.mode,
	})
	if err != nil {
		return false, fmt.Errorf("rule %s: eval: %w", r.rule.Name, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %s: result is not bool", r.rule.Name)
	}
	return matched, nil
}
