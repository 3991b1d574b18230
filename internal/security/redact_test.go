package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactParams(t *testing.T) {
	long := strings.Repeat("x", MaxLoggedValue+10)
	got := RedactParams(map[string]string{
		"path":        "src/a.go",
		"content":     long,
		"diff":        "short",
		"api_key":     "abc",
		"secret_name": "db",
	})

	assert.Equal(t, "src/a.go", got["path"])
	assert.Equal(t, strings.Repeat("x", MaxLoggedValue)+"... (130 chars)", got["content"])
	assert.Equal(t, "short", got["diff"])
	assert.Equal(t, "***", got["api_key"])
	assert.Equal(t, "db", got["secret_name"])
	assert.Nil(t, RedactParams(nil))
}

func TestRedactArguments(t *testing.T) {
	got := RedactArguments(map[string]any{"query": "go", "Authorization": "Bearer x"})
	assert.Equal(t, map[string]any{"query": "go", "Authorization": "***"}, got)
}
