package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/comptamaroc/webclient/storage"
	"github.com/comptamaroc/webclient/storage/filestore"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTripAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	s, err := filestore.New(path)
	require.NoError(t, err)

	_, err = s.Get(ctx, storage.KeyToken)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Set(ctx, storage.KeyToken, "T1"))
	require.NoError(t, s.Set(ctx, storage.KeyRefreshToken, "R1"))

	reopened, err := filestore.New(path)
	require.NoError(t, err)
	v, err := reopened.Get(ctx, storage.KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "R1", v)

	require.NoError(t, reopened.Remove(ctx, storage.KeyToken))
	require.NoError(t, reopened.Remove(ctx, "missing"))
	_, err = s.Get(ctx, storage.KeyToken)
	require.ErrorIs(t, err, storage.ErrNotFound)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := filestore.New(path)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), storage.KeyToken)
	require.Error(t, err)
	require.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestFileStore_RequiresPath(t *testing.T) {
	_, err := filestore.New("")
	require.Error(t, err)
}
