package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shots.json")

	require.NoError(t, WriteJSON(path, map[string]int{"scenes": 3}))

	var got map[string]int
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, 3, got["scenes"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	assert.True(t, Exists(file))
	assert.False(t, Exists(dir))
	assert.False(t, Exists(filepath.Join(dir, "missing")))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(file))
}
