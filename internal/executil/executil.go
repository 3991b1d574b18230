package executil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"text/template"
	"time"
)

// TemplateData defines the available fields in command templates.
type TemplateData struct {
	// Params are instruction parameters.
	Params map[string]string
	// Path is the path the tool touches.
	Path string
	// ToolName is the tool name.
	ToolName string
	// TaskID identifies the task.
	TaskID string
	// CorrelationID links related operations.
	CorrelationID string
	// Message is free text such as a notification body.
	Message string
}

// Command describes an external command.
type Command struct {
	// Command is an executable, or a bash script when Args is empty.
	Command string
	// Args are command arguments.
	Args []string
	// Env adds environment variables.
	Env map[string]string
	// Dir is the working directory.
	Dir string
}

// RenderTemplate renders a string template with TemplateData.
func RenderTemplate(value string, data TemplateData) (string, error) {
	tmpl, err := template.New("value").Funcs(template.FuncMap{
		"param": func(name string) string {
			return data.Params[name]
		},
	}).Parse(value)
	if err != nil {
		return "", fmt.Errorf("template parse: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template render: %w", err)
	}
	return buf.String(), nil
}

// BuildCommand builds an exec.Cmd with rendered command, args and env.
func BuildCommand(ctx context.Context, c Command, data TemplateData) (*exec.Cmd, error) {
	renderedCommand, err := RenderTemplate(c.Command, data)
	if err != nil {
		return nil, err
	}

	renderedArgs := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		rendered, err := RenderTemplate(arg, data)
		if err != nil {
			return nil, err
		}
		renderedArgs = append(renderedArgs, rendered)
	}

	var cmd *exec.Cmd
	if len(renderedArgs) == 0 {
		cmd = exec.CommandContext(ctx, "bash", "-c", renderedCommand)
	} else {
		cmd = exec.CommandContext(ctx, renderedCommand, renderedArgs...)
	}
	cmd.Dir = c.Dir

	cmd.Env = os.Environ()
	for key, value := range c.Env {
		rendered, err := RenderTemplate(value, data)
		if err != nil {
			return nil, err
		}
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, rendered))
	}

	return cmd, nil
}

// RunCommand executes a templated command and returns output, exit code, and error.
func RunCommand(ctx context.Context, c Command, data TemplateData) (string, int, error) {
	cmd, err := BuildCommand(ctx, c, data)
	if err != nil {
		return "", -1, err
	}
	return run(cmd)
}

// RunShell runs script with bash in dir without templating, so model
// supplied text is never interpreted as a template.
func RunShell(ctx context.Context, dir, script string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "bash", "-c", script)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	return run(cmd)
}

func run(cmd *exec.Cmd) (string, int, error) {
	// children holding the output pipe must not outlive a cancelled command
	cmd.WaitDelay = time.Second
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	return output.String(), exitCode, err
}
