package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestCommitSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "checkpoint.db")
	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}

	store, err := Open(ctx, Config{Path: path, EnableWAL: true}, clock, zap.NewNop())
	require.NoError(t, err)

	set, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, set.Len())

	key := crawler.ItemKey{Source: "Cologne", Category: "Museums", Name: "Museum Ludwig"}
	require.NoError(t, store.Commit(ctx, key))
	require.NoError(t, store.Commit(ctx, key))
	assert.True(t, store.Contains(key))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, Config{Path: path}, clock, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	set, err = reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{key.String()}, set.Keys())
	assert.True(t, reopened.Contains(key))
	assert.Equal(t, []string{key.String()}, reopened.Keys())
}

func TestCommitAfterCloseFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "checkpoint.db")}, nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	key := crawler.ItemKey{Source: "Essen", Category: "Museums", Name: "Folkwang"}
	require.Error(t, store.Commit(ctx, key))
	assert.False(t, store.Contains(key))
}
