package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicReplacesContents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	require.NoError(t, WriteFileAtomic(path, []byte(`["a"]`), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte(`["a","b"]`), 0o600))

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestReadJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var out []string

	found, err := ReadJSON(filepath.Join(dir, "missing.json"), &out)
	require.NoError(t, err)
	assert.False(t, found)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	found, err = ReadJSON(empty, &out)
	require.NoError(t, err)
	assert.False(t, found)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{"), 0o600))
	_, err = ReadJSON(corrupt, &out)
	assert.Error(t, err)

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`["x","y"]`), 0o600))
	found, err = ReadJSON(good, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"x", "y"}, out)
}
