package datastore

import (
	"context"
	"sort"
	"testing"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	ds "github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB(t *testing.T) {
	ctx := context.Background()
	db, err := driver.Open(StorageName, "mutable-cache-v2", nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Get(ctx, "http://docs-ipfs-tech.ipns.localhost/")
	assert.ErrorIs(t, err, driver.ErrNotFound)

	require.NoError(t, db.Put(ctx, "http://docs-ipfs-tech.ipns.localhost/", []byte("a")))
	require.NoError(t, db.Put(ctx, "http://docs-ipfs-tech.ipns.localhost/install/", []byte("b")))
	require.NoError(t, db.Put(ctx, "https://other/", []byte("c")))

	v, err := db.Get(ctx, "http://docs-ipfs-tech.ipns.localhost/")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), v)

	keys, err := db.Keys(ctx, "http://docs-ipfs-tech")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"http://docs-ipfs-tech.ipns.localhost/", "http://docs-ipfs-tech.ipns.localhost/install/"}, keys)

	require.NoError(t, db.Delete(ctx, "https://other/"))
	keys, err = db.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestDB_NamespacesShareADatastore(t *testing.T) {
	ctx := context.Background()
	shared := ds.NewMapDatastore()
	a, b := New(shared, "a"), New(shared, "ab")

	require.NoError(t, a.Put(ctx, "k", []byte("1")))
	require.NoError(t, b.Put(ctx, "k", []byte("2")))

	keys, err := a.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	v, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}
