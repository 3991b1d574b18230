package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadablePath(t *testing.T) {
	tests := []struct {
		name string
		cwd  string
		path string
		want string
	}{
		{name: "relative", cwd: "/ws", path: "src/app.go", want: "src/app.go"},
		{name: "absolute inside", cwd: "/ws", path: "/ws/a/b.txt", want: "a/b.txt"},
		{name: "cwd itself", cwd: "/ws/project", path: "", want: "project"},
		{name: "outside", cwd: "/ws", path: "/etc/hosts", want: "/etc/hosts"},
		{name: "escape", cwd: "/ws", path: "../other/x", want: "/other/x"},
		{name: "sibling prefix", cwd: "/ws", path: "/wsx/file", want: "/wsx/file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadablePath(tt.cwd, tt.path))
		})
	}
}

func TestInWorkspace(t *testing.T) {
	assert.True(t, InWorkspace("a.txt", "/ws"))
	assert.True(t, InWorkspace("/ws/a.txt", "/ws"))
	assert.True(t, InWorkspace("/extra/lib", "/ws", "/extra"))
	assert.False(t, InWorkspace("../a.txt", "/ws"))
	assert.False(t, InWorkspace("/wsx/a.txt", "/ws"))
	assert.False(t, InWorkspace("a.txt"))
}
