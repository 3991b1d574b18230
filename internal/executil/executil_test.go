package executil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate(`{{ .ToolName }} {{ param "path" }} {{ param "missing" }}`, TemplateData{
		ToolName: "read_file",
		Params:   map[string]string{"path": "a.go"},
	})
	require.NoError(t, err)
	assert.Equal(t, "read_file a.go ", out)

	_, err = RenderTemplate("{{ .Nope", TemplateData{})
	require.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	out, code, err := RunCommand(context.Background(), Command{
		Command: `echo "$GREETING {{ .Message }}" && pwd`,
		Env:     map[string]string{"GREETING": "hi"},
		Dir:     dir,
	}, TemplateData{Message: "there"})
	require.NoError(t, err)
	assert.Zero(t, code)
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, out, "hi there")
	assert.Contains(t, out, resolved)

	out, code, err = RunCommand(context.Background(), Command{Command: "printf", Args: []string{"%s-%s", "a", "{{ .ToolName }}"}}, TemplateData{ToolName: "b"})
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Equal(t, "a-b", out)
}

func TestRunShellDoesNotTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))

	out, code, err := RunShell(context.Background(), dir, `ls; echo '{{ .ToolName }}'; exit 2`)
	require.Error(t, err)
	assert.Equal(t, 2, code)
	assert.Contains(t, out, "f.txt")
	assert.Contains(t, out, "{{ .ToolName }}")
}
