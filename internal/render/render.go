// Package render expands the policy file template before it is parsed.
package render

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"
)

// Vars are the values visible to the policy template.
type Vars struct {
	// Workspace is the task working directory.
	Workspace string
	// TaskID identifies the task.
	TaskID string
}

// EnvTracker tracks referenced environment variables during template rendering.
type EnvTracker struct {
	missing map[string]struct{}
	used    map[string]struct{}
}

func (t *EnvTracker) markUsed(key string) {
	if t.used == nil {
		t.used = map[string]struct{}{}
	}
	t.used[key] = struct{}{}
}

func (t *EnvTracker) markMissing(key string) {
	if t.missing == nil {
		t.missing = map[string]struct{}{}
	}
	t.missing[key] = struct{}{}
}

// Missing returns the sorted names of env vars read with env but unset.
func (t *EnvTracker) Missing() []string {
	return sortedKeys(t.missing)
}

// Used returns the sorted names of every env var the template read.
func (t *EnvTracker) Used() []string {
	return sortedKeys(t.used)
}

// RenderFile loads and renders a policy template file.
func RenderFile(path string, vars Vars) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return RenderBytes(path, raw, vars)
}

// RenderBytes renders a policy template. Variables read with env must be
// set; envOr supplies a default instead.
func RenderBytes(name string, raw []byte, vars Vars) ([]byte, error) {
	tracker := &EnvTracker{}
	if strings.TrimSpace(name) == "" {
		name = "policy"
	}
	tmpl, err := template.New(name).Funcs(FuncMap(tracker)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	execErr := tmpl.Execute(&buf, vars)
	if len(tracker.missing) > 0 {
		return nil, fmt.Errorf("missing env vars: %s", strings.Join(tracker.Missing(), ", "))
	}
	if execErr != nil {
		return nil, fmt.Errorf("render template: %w", execErr)
	}
	return buf.Bytes(), nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for key := range m {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
