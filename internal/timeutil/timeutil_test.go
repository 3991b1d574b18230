package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	d, err := Parse("  ")
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = Parse("1m30s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = Parse("-1s")
	require.ErrorIs(t, err, ErrNegative)

	_, err = Parse("soon")
	require.Error(t, err)
}

func TestParseDurationOrDefault(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDurationOrDefault("", 5*time.Second))
	assert.Equal(t, 5*time.Second, ParseDurationOrDefault("bogus", 5*time.Second))
	assert.Equal(t, 5*time.Second, ParseDurationOrDefault("-2s", 5*time.Second))
	assert.Equal(t, 250*time.Millisecond, ParseDurationOrDefault("250ms", 5*time.Second))
	assert.Zero(t, ParseDurationOrDefault("0s", 5*time.Second))
}
