package file_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/checkpoint/file"
	"github.com/JakeFAU/attraction-crawler/internal/crawler"
)

func TestNew(t *testing.T) {
	t.Run("MissingPath", func(t *testing.T) {
		_, err := file.New(file.Config{}, zap.NewNop())
		assert.Error(t, err)
	})
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := file.New(file.Config{Path: filepath.Join(t.TempDir(), "state.json")}, nil)
		require.NoError(t, err)
		assert.NotNil(t, store)
	})
}

func TestLoadMissingFileIsFreshRun(t *testing.T) {
	t.Parallel()

	store, err := file.New(file.Config{Path: filepath.Join(t.TempDir(), "processed.json")}, zap.NewNop())
	require.NoError(t, err)

	set, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestLoadCorruptFileFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed.json")
	require.NoError(t, os.WriteFile(path, []byte("[\"Berlin|Museums"), 0o600))
	store, err := file.New(file.Config{Path: path}, zap.NewNop())
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	assert.Error(t, err)
}

func TestCommitPersistsSortedKeysAcrossRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "processed.json")
	store, err := file.New(file.Config{Path: path}, zap.NewNop())
	require.NoError(t, err)
	_, err = store.Load(ctx)
	require.NoError(t, err)

	b := crawler.ItemKey{Source: "Munich", Category: "Museums", Name: "Deutsches Museum"}
	a := crawler.ItemKey{Source: "Berlin", Category: "Museums", Name: "Pergamon"}
	require.NoError(t, store.Commit(ctx, b))
	require.NoError(t, store.Commit(ctx, a))
	require.NoError(t, store.Commit(ctx, a))
	assert.True(t, store.Contains(a))

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk []string
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, []string{a.String(), b.String()}, onDisk)

	restarted, err := file.New(file.Config{Path: path}, zap.NewNop())
	require.NoError(t, err)
	set, err := restarted.Load(ctx)
	require.NoError(t, err)
	assert.True(t, set.Contains(a))
	assert.True(t, restarted.Contains(b))
	assert.Equal(t, 2, restarted.Len())
	assert.Equal(t, []string{a.String(), b.String()}, restarted.Keys())
}

func TestCommitFailureDoesNotMarkProcessed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	// A directory in place of the checkpoint file makes the rename fail.
	path := filepath.Join(dir, "processed.json")
	require.NoError(t, os.Mkdir(path, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0o600))

	store, err := file.New(file.Config{Path: path}, zap.NewNop())
	require.NoError(t, err)

	key := crawler.ItemKey{Source: "Berlin", Category: "Museums", Name: "Pergamon"}
	require.Error(t, store.Commit(ctx, key))
	assert.False(t, store.Contains(key))
}
