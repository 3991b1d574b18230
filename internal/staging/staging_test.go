package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewSaveCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "a.txt")
	v := New()

	exists, err := v.Open(path)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.True(t, v.IsEditing())

	_, err = v.Open(path)
	require.ErrorIs(t, err, ErrAlreadyEditing)

	require.NoError(t, v.Update("hel", false))
	require.NoError(t, v.Update("hello", true))
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist, "nothing is written before Save")

	require.NoError(t, v.Save())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.False(t, v.IsEditing())
}

func TestViewRevertLeavesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))
	v := New()

	exists, err := v.Open(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "old", v.Original())
	require.NoError(t, v.Update("new", true))
	assert.Equal(t, "new", v.Staged())
	require.NoError(t, v.Revert())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	require.ErrorIs(t, v.Save(), ErrNotEditing)
	require.ErrorIs(t, v.Update("x", true), ErrNotEditing)
}

func TestViewSaveKeepsMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	v := New()
	_, err := v.Open(path)
	require.NoError(t, err)
	require.NoError(t, v.Update("#!/bin/sh\necho hi\n", true))
	require.NoError(t, v.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestApplyDiff(t *testing.T) {
	original := "package main\n\nfunc a() {}\n\nfunc b() {}\n"
	tests := []struct {
		name    string
		orig    string
		diff    string
		want    string
		wantErr error
	}{
		{
			name: "single block",
			orig: original,
			diff: "------- SEARCH\nfunc a() {}\n=======\nfunc a() { return }\n+++++++ REPLACE\n",
			want: "package main\n\nfunc a() { return }\n\nfunc b() {}\n",
		},
		{
			name: "two blocks in order",
			orig: original,
			diff: "<<<<<<< SEARCH\nfunc a() {}\n=======\n>>>>>>> REPLACE\n------- SEARCH\nfunc b() {}\n=======\nfunc c() {}\n+++++++ REPLACE",
			want: "package main\n\n\nfunc c() {}\n",
		},
		{
			name: "last line without newline",
			orig: "a\nb",
			diff: "------- SEARCH\nb\n=======\nc\n+++++++ REPLACE",
			want: "a\nc",
		},
		{
			name: "empty search on new file",
			orig: "",
			diff: "------- SEARCH\n=======\nhello\n+++++++ REPLACE",
			want: "hello\n",
		},
		{
			name:    "missing search",
			orig:    original,
			diff:    "------- SEARCH\nfunc z() {}\n=======\n+++++++ REPLACE",
			wantErr: ErrSearchNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyDiff(tt.orig, tt.diff)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ApplyDiff(original, "no blocks here")
	require.Error(t, err)
	_, err = ApplyDiff(original, "------- SEARCH\nfunc a() {}\n")
	require.Error(t, err)
}
