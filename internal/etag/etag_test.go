package etag

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	modelsRoot := t.TempDir()
	etagsRoot := t.TempDir()
	store := New(modelsRoot, etagsRoot)

	filePath := filepath.Join(modelsRoot, "test_repo", "test_rev", "test_file")
	require.NoError(t, store.Save(filePath, "1234"))

	got, ok := store.Load(filePath)
	require.True(t, ok)
	assert.Equal(t, "1234", got)
}

func TestLoadTrimsWhitespace(t *testing.T) {
	modelsRoot := t.TempDir()
	etagsRoot := t.TempDir()
	store := New(modelsRoot, etagsRoot)

	filePath := filepath.Join(modelsRoot, "repo", "rev", "file")
	require.NoError(t, store.Save(filePath, "  abcd\n"))

	// Bypass the hot cache by constructing a fresh store over the same
	// directories, so Load exercises the on-disk trim path.
	store2 := New(modelsRoot, etagsRoot)
	got, ok := store2.Load(filePath)
	require.True(t, ok)
	assert.Equal(t, "abcd", got)
}

func TestLoadMissingReturnsFalse(t *testing.T) {
	store := New(t.TempDir(), t.TempDir())
	_, ok := store.Load(filepath.Join("repo", "rev", "file"))
	assert.False(t, ok)
}
