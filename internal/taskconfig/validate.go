package taskconfig

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid task config")

// ValidationError names the first required field that is missing or invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s in task config: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("missing %s in task config", e.Field)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

type field struct {
	name  string
	value any
}

// Validate checks every required field in a fixed order and reports the
// first missing one: identifiers, state handles, services, settings, callbacks.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &ValidationError{Field: "config"}
	}
	if err := check(
		field{"taskId", cfg.TaskID},
		field{"runId", cfg.RunID},
		field{"cwd", cfg.Cwd},
		field{"mode", cfg.Mode},
	); err != nil {
		return err
	}
	if cfg.Mode != ModePlan && cfg.Mode != ModeAct {
		return &ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", cfg.Mode)}
	}

	if err := check(
		field{"taskState", cfg.TaskState},
		field{"messageState", cfg.MessageState},
		field{"api", cfg.API},
		field{"services", cfg.Services},
	); err != nil {
		return err
	}

	s := cfg.Services
	if err := check(
		field{"services.mcpHub", s.McpHub},
		field{"services.browserSession", s.BrowserSession},
		field{"services.urlContentFetcher", s.URLContentFetcher},
		field{"services.diffViewProvider", s.DiffViewProvider},
		field{"services.fileContextTracker", s.FileContextTracker},
		field{"services.ignoreController", s.IgnoreController},
		field{"services.contextManager", s.ContextManager},
		field{"services.cacheService", s.CacheService},
	); err != nil {
		return err
	}

	if err := check(
		field{"autoApprovalSettings", cfg.AutoApprovalSettings},
		field{"autoApprover", cfg.AutoApprover},
		field{"browserSettings", cfg.BrowserSettings},
		field{"focusChainSettings", cfg.FocusChainSettings},
		field{"callbacks", cfg.Callbacks},
	); err != nil {
		return err
	}

	cb := cfg.Callbacks
	return check(
		field{"callbacks.say", cb.Say},
		field{"callbacks.ask", cb.Ask},
		field{"callbacks.saveCheckpoint", cb.SaveCheckpoint},
		field{"callbacks.sayAndCreateMissingParamError", cb.SayAndCreateMissingParamError},
		field{"callbacks.removeLastPartialMessageIfExistsWithType", cb.RemoveLastPartialMessageIfExistsWithType},
		field{"callbacks.executeCommandTool", cb.ExecuteCommandTool},
		field{"callbacks.doesLatestTaskCompletionHaveNewChanges", cb.DoesLatestTaskCompletionHaveNewChanges},
		field{"callbacks.updateFocusListFromToolResponse", cb.UpdateFocusListFromToolResponse},
		field{"callbacks.shouldAutoApproveToolWithPath", cb.ShouldAutoApproveToolWithPath},
		field{"callbacks.postState", cb.PostState},
		field{"callbacks.reinitTaskFromId", cb.ReinitTaskFromID},
		field{"callbacks.cancelTask", cb.CancelTask},
		field{"callbacks.updateTaskHistory", cb.UpdateTaskHistory},
	)
}

func check(fields ...field) error {
	for _, f := range fields {
		if missing(f.value) {
			return &ValidationError{Field: f.name}
		}
	}
	return nil
}

func missing(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
