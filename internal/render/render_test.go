package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBytes(t *testing.T) {
	t.Setenv("TOOLFLOW_TEST_NAME", "Robo")
	t.Setenv("TOOLFLOW_TEST_FLAG", "true")

	out, err := RenderBytes("p", []byte(`name: {{ env "TOOLFLOW_TEST_NAME" | quote }}
listen: {{ envOr "TOOLFLOW_TEST_UNSET" "127.0.0.1:1" }}
flag: {{ envBool "TOOLFLOW_TEST_FLAG" false }}
ws: {{ .Workspace }}`), Vars{Workspace: "/ws"})
	require.NoError(t, err)
	assert.Equal(t, "name: \"Robo\"\nlisten: 127.0.0.1:1\nflag: true\nws: /ws", string(out))
}

func TestRenderMissingEnv(t *testing.T) {
	_, err := RenderBytes("p", []byte(`{{ env "TOOLFLOW_TEST_B" }}{{ env "TOOLFLOW_TEST_A" }}`), Vars{})
	require.Error(t, err)
	assert.Equal(t, "missing env vars: TOOLFLOW_TEST_A, TOOLFLOW_TEST_B", err.Error())
}

func TestRenderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("task: {{ .TaskID }}"), 0o644))
	out, err := RenderFile(path, Vars{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "task: t1", string(out))

	_, err = RenderFile(filepath.Join(t.TempDir(), "nope.yaml"), Vars{})
	require.Error(t, err)
	_, err = RenderBytes("p", []byte("{{ .Nope }}"), Vars{})
	require.Error(t, err)
}
