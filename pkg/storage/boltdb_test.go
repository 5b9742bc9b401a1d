package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radgate/radgate/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNasCRUD(t *testing.T) {
	store := newTestStore(t)

	rec := &types.NasRecord{
		Name:       "edge-1",
		ListenAddr: "0.0.0.0:1812",
		NasIP:      "10.0.0.1",
		Secret:     "s3cret",
		Handler:    "auth",
		Trace:      true,
	}
	require.NoError(t, store.CreateNas(rec))

	got, err := store.GetNas("0.0.0.0:1812", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "edge-1", got.Name)
	assert.Equal(t, "s3cret", got.Secret)
	assert.True(t, got.Trace)

	rec.Secret = "rotated"
	require.NoError(t, store.UpdateNas(rec))
	got, err = store.GetNas("0.0.0.0:1812", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.Secret)

	require.NoError(t, store.DeleteNas("0.0.0.0:1812", "10.0.0.1"))
	_, err = store.GetNas("0.0.0.0:1812", "10.0.0.1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetNasNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetNas("0.0.0.0:1812", "192.0.2.1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNasByServer(t *testing.T) {
	store := newTestStore(t)

	recs := []*types.NasRecord{
		{Name: "a", ListenAddr: "0.0.0.0:1812", NasIP: "10.0.0.1", Handler: "auth"},
		{Name: "b", ListenAddr: "0.0.0.0:1812", NasIP: "10.0.0.2", Handler: "auth"},
		{Name: "c", ListenAddr: "0.0.0.0:1813", NasIP: "10.0.0.1", Handler: "acct"},
	}
	for _, rec := range recs {
		require.NoError(t, store.CreateNas(rec))
	}

	all, err := store.ListNas()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	auth, err := store.ListNasByServer("0.0.0.0:1812")
	require.NoError(t, err)
	assert.Len(t, auth, 2)
	for _, rec := range auth {
		assert.Equal(t, "0.0.0.0:1812", rec.ListenAddr)
	}
}
