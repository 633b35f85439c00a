package repofiles

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadAndHas(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "repo_files"))
	require.NoError(t, err)
	defer store.Close()

	assert.False(t, store.Has("acme/widget", "abc123"))

	files := []string{"config.json", "model.bin"}
	require.NoError(t, store.Save("acme/widget", "abc123", files))

	assert.True(t, store.Has("acme/widget", "abc123"))
	got, ok := store.Load("acme/widget", "abc123")
	require.True(t, ok)
	assert.Equal(t, files, got)
}

func TestLoadMissingCommit(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "repo_files"))
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.Load("acme/widget", "doesnotexist")
	assert.False(t, ok)
}

func TestDeleteRemovesFileAndIndexEntry(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "repo_files"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save("acme/widget", "abc123", []string{"config.json"}))
	require.NoError(t, store.Delete("acme/widget", "abc123"))

	assert.False(t, store.Has("acme/widget", "abc123"))
	_, ok := store.Load("acme/widget", "abc123")
	assert.False(t, ok)
}
