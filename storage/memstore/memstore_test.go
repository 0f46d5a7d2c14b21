package memstore_test

import (
	"context"
	"testing"

	"github.com/comptamaroc/webclient/storage"
	"github.com/comptamaroc/webclient/storage/memstore"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	_, err := s.Get(ctx, storage.KeyToken)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Set(ctx, storage.KeyToken, "T1"))
	v, err := s.Get(ctx, storage.KeyToken)
	require.NoError(t, err)
	require.Equal(t, "T1", v)

	require.NoError(t, s.Remove(ctx, storage.KeyToken))
	require.NoError(t, s.Remove(ctx, storage.KeyToken))
	require.Zero(t, s.Len())
}

func TestLookupAndRemoveAll(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	v, err := storage.Lookup(ctx, s, storage.KeyUser)
	require.NoError(t, err)
	require.Empty(t, v)

	for _, k := range storage.RecordKeys {
		require.NoError(t, s.Set(ctx, k, "x"))
	}
	require.NoError(t, s.Set(ctx, "theme", "dark"))

	require.NoError(t, storage.RemoveAll(ctx, s, storage.RecordKeys...))
	require.Equal(t, map[string]string{"theme": "dark"}, s.Snapshot())
}
