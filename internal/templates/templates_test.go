package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToEnglish(t *testing.T) {
	b, err := Load("de")
	require.NoError(t, err)
	assert.Equal(t, "en", b.Lang())

	b, err = Load(" RU")
	require.NoError(t, err)
	assert.Equal(t, "ru", b.Lang())
}

func TestBundlesHaveSameKeys(t *testing.T) {
	en, err := Load("en")
	require.NoError(t, err)
	ru, err := Load("ru")
	require.NoError(t, err)
	assert.Equal(t, en.Keys(), ru.Keys())
}

func TestRender(t *testing.T) {
	b, err := Load("en")
	require.NoError(t, err)

	out, err := b.Render("tool.missing_param_say", map[string]any{"Agent": "Agent", "Tool": "read_file", "Param": "path"})
	require.NoError(t, err)
	assert.Equal(t, "Agent tried to use read_file without value for required parameter 'path'. Retrying...", out)

	_, err = b.Render("nope", nil)
	require.Error(t, err)

	assert.Equal(t, "fallback", Text(nil, "tool.denied", nil, "fallback"))
	assert.Equal(t, "fallback", Text(b, "nope", nil, "fallback"))
	assert.Equal(t, "The user denied this operation.", Text(b, "tool.denied", nil, "x"))
}
