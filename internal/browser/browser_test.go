package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/toolflow/internal/taskconfig"
)

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		in      string
		x, y    float64
		wantErr bool
	}{
		{in: "10,20", x: 10, y: 20},
		{in: " 450 , 300.5 ", x: 450, y: 300.5},
		{in: "10", wantErr: true},
		{in: "a,b", wantErr: true},
		{in: "10,b", wantErr: true},
		{in: "-1,5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			x, y, err := ParseCoordinate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.x, x)
			assert.Equal(t, tt.y, y)
		})
	}
}

func TestActionsBeforeLaunch(t *testing.T) {
	s := NewSession(taskconfig.BrowserSettings{Headless: true}, nil)
	ctx := context.Background()

	_, err := s.Click(ctx, "1,1")
	require.ErrorIs(t, err, ErrNotLaunched)
	_, err = s.Type(ctx, "x")
	require.ErrorIs(t, err, ErrNotLaunched)
	_, err = s.Scroll(ctx, true)
	require.ErrorIs(t, err, ErrNotLaunched)
	require.NoError(t, s.Close(ctx))

	_, err = s.Click(ctx, "bad")
	require.Error(t, err)

	require.NoError(t, NewFetcher(taskconfig.BrowserSettings{}).Close())
}
