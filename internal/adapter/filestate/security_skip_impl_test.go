package filestate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSecuritySkipMissingFile(t *testing.T) {
	repo := NewSecuritySkipRepo(filepath.Join(t.TempDir(), "security_skip.json"), zap.NewNop())

	hits, err := repo.Hits(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 0, hits)
}

func TestSecuritySkipPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "security_skip.json")
	ctx := context.Background()

	repo := NewSecuritySkipRepo(path, zap.NewNop())
	n, err := repo.RecordHit(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = repo.RecordHit(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reloaded := NewSecuritySkipRepo(path, zap.NewNop())
	hits, err := reloaded.Hits(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, hits)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSecuritySkipCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "security_skip.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))

	core, logs := observer.New(zap.WarnLevel)
	repo := NewSecuritySkipRepo(path, zap.New(core))

	hits, err := repo.Hits(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 0, hits)
	assert.Equal(t, 1, logs.FilterMessage("security skip state is corrupt, starting empty").Len())
}

func TestSecuritySkipClearPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "security_skip.json")
	ctx := context.Background()

	repo := NewSecuritySkipRepo(path, zap.NewNop())
	_, err := repo.RecordHit(ctx, "abc")
	require.NoError(t, err)
	_, err = repo.RecordHit(ctx, "def")
	require.NoError(t, err)

	require.NoError(t, repo.Clear(ctx, "abc"))
	require.NoError(t, repo.Clear(ctx, "missing"))

	reloaded := NewSecuritySkipRepo(path, zap.NewNop())
	hits, err := reloaded.Hits(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 0, hits)
	hits, err = reloaded.Hits(ctx, "def")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}
