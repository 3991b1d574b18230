package configs

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	assert.Contains(t, Names(), DefaultName)

	byDefault, err := Load("")
	require.NoError(t, err)
	bare, err := Load("default")
	require.NoError(t, err)
	assert.Equal(t, byDefault, bare)

	_, err = Load("missing")
	require.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), DefaultName)
}
