package limits

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/codex-k8s/toolflow/internal/runtime/approver"
	"github.com/codex-k8s/toolflow/internal/templates"
)

// Policy limits tool usage by count, rate, and parameter policies.
type Policy struct {
	// Name is a human-friendly name.
	Name string
	// Tools restricts the policy to these tools; empty means every tool.
	Tools []string
	// MaxTotal limits total calls per tool.
	MaxTotal int
	// RatePerMinute limits calls per minute per tool.
	RatePerMinute int
	// FieldPolicies validates instruction parameters.
	FieldPolicies map[string]FieldPolicy
}

// FieldPolicy describes validation rules for a single parameter.
type FieldPolicy struct {
	// Regex validates string value format.
	Regex string
	// Min sets numeric minimum.
	Min *float64
	// Max sets numeric maximum.
	Max *float64
	// MinLength sets string minimum length in runes.
	MinLength *int
	// MaxLength sets string maximum length in runes.
	MaxLength *int
}

type limiterState struct {
	count   int
	limiter *rate.Limiter
}

// Store keeps per-tool counters and compiled policies.
type Store struct {
	mu       sync.Mutex
	byTool   map[string]*limiterState
	policy   Policy
	tools    map[string]struct{}
	compiled map[string]*regexp.Regexp
	renderer templates.Renderer
}

// NewApprover creates a limits approver and validates regex rules.
func NewApprover(policy Policy, renderer templates.Renderer) (*Store, error) {
	compiled := make(map[string]*regexp.Regexp, len(policy.FieldPolicies))
	for field, fp := range policy.FieldPolicies {
		if fp.Regex == "" {
			continue
		}
		re, err := regexp.Compile(fp.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid regex for field %s: %w", field, err)
		}
		compiled[field] = re
	}
	tools := make(map[string]struct{}, len(policy.Tools))
	for _, t := range policy.Tools {
		tools[t] = struct{}{}
	}
	return &Store{
		byTool:   make(map[string]*limiterState),
		policy:   policy,
		tools:    tools,
		compiled: compiled,
		renderer: renderer,
	}, nil
}

// Name returns approver name for audit and logging.
func (s *Store) Name() string {
	if s.policy.Name != "" {
		return s.policy.Name
	}
	return "limits"
}

// Approve validates parameters and rate limits the tool usage.
func (s *Store) Approve(_ context.Context, req approver.Request) (approver.Decision, error) {
	if len(s.tools) > 0 {
		if _, ok := s.tools[req.ToolName]; !ok {
			return approver.Decision{Allowed: true, Reason: "not limited", Source: s.Name()}, nil
		}
	}
	if err := s.checkFields(req.Params); err != nil {
		return approver.Decision{Allowed: false, Reason: err.Error(), Source: s.Name()}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.byTool[req.ToolName]
	if state == nil {
		state = &limiterState{}
		if s.policy.RatePerMinute > 0 {
			state.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.policy.RatePerMinute)), s.policy.RatePerMinute)
		}
		s.byTool[req.ToolName] = state
	}

	if s.policy.MaxTotal > 0 && state.count >= s.policy.MaxTotal {
		return approver.Decision{Allowed: false, Reason: s.render("limits.max_total", map[string]any{"Tool": req.ToolName}, "Maximum number of calls exceeded"), Source: s.Name()}, nil
	}
	if state.limiter != nil && !state.limiter.Allow() {
		return approver.Decision{Allowed: false, Reason: s.render("limits.rate_limit", map[string]any{"Tool": req.ToolName}, "Rate limit exceeded"), Source: s.Name()}, nil
	}

	state.count++
	return approver.Decision{Allowed: true, Reason: "approved", Source: s.Name()}, nil
}

func (s *Store) checkFields(params map[string]string) error {
	for field, policy := range s.policy.FieldPolicies {
		v, ok := params[field]
		if !ok {
			continue
		}
		length := utf8.RuneCountInString(v)
		if policy.MinLength != nil && length < *policy.MinLength {
			return errors.New(s.render("limits.field_min_length", map[string]any{"Field": field, "MinLength": *policy.MinLength}, "Field "+field+" is too short"))
		}
		if policy.MaxLength != nil && length > *policy.MaxLength {
			return errors.New(s.render("limits.field_max_length", map[string]any{"Field": field, "MaxLength": *policy.MaxLength}, "Field "+field+" is too long"))
		}
		if re := s.compiled[field]; re != nil && !re.MatchString(v) {
			return errors.New(s.render("limits.field_regex", map[string]any{"Field": field}, "Field "+field+" does not match required format"))
		}
		if policy.Min == nil && policy.Max == nil {
			continue
		}
		num, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.New(s.render("limits.field_number", map[string]any{"Field": field}, "Field "+field+" is not a number"))
		}
		if policy.Min != nil && num < *policy.Min {
			return errors.New(s.render("limits.field_min", map[string]any{"Field": field, "Min": *policy.Min}, "Field "+field+" is below minimum value"))
		}
		if policy.Max != nil && num > *policy.Max {
			return errors.New(s.render("limits.field_max", map[string]any{"Field": field, "Max": *policy.Max}, "Field "+field+" is above maximum value"))
		}
	}
	return nil
}

func (s *Store) render(key string, data map[string]any, fallback string) string {
	if s.renderer == nil {
		return fallback
	}
	rendered, err := s.renderer.Render(key, data)
	if err != nil {
		return fallback
	}
	return rendered
}
