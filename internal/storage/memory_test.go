package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemoryStore("raw")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "incoming/a.json", []byte(`{"a":1}`), PutOptions{}))

	data, err := store.Get(ctx, "incoming/a.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), data)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore("raw")

	_, err := store.Get(context.Background(), "nope")

	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore("raw")
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", []byte("v"), PutOptions{}))

	require.NoError(t, store.Delete(ctx, "k"))

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// Deleting an absent key is a no-op.
	assert.NoError(t, store.Delete(ctx, "k"))
}

func TestMemoryStoreListFiltersByPrefix(t *testing.T) {
	store := NewMemoryStore("raw")
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "incoming/a.json", []byte("a"), PutOptions{}))
	require.NoError(t, store.Put(ctx, "incoming/b.json", []byte("bb"), PutOptions{}))
	require.NoError(t, store.Put(ctx, "completed/c.json", []byte("c"), PutOptions{}))

	var keys []string
	var sizes []int64
	err := store.List(ctx, "incoming/", func(info ObjectInfo) error {
		keys = append(keys, info.Key)
		sizes = append(sizes, info.Size)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"incoming/a.json", "incoming/b.json"}, keys)
	assert.Equal(t, []int64{1, 2}, sizes)
}

func TestMemoryStoreCopyAppliesClassAndMetadata(t *testing.T) {
	src := NewMemoryStore("processed")
	dst := NewMemoryStore("archive")
	ctx := context.Background()
	require.NoError(t, src.Put(ctx, "processed/x.json", []byte("x"), PutOptions{}))

	err := src.Copy(ctx, "processed/x.json", dst, "archive/x.json", CopyOptions{
		StorageClass: ClassReduced,
		Metadata:     map[string]string{"original_key": "processed/x.json"},
	})
	require.NoError(t, err)

	data, err := dst.Get(ctx, "archive/x.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	var infos []ObjectInfo
	require.NoError(t, dst.List(ctx, "archive/", func(info ObjectInfo) error {
		infos = append(infos, info)
		return nil
	}))
	require.Len(t, infos, 1)
	assert.Equal(t, ClassReduced, infos[0].StorageClass)

	md, ok := dst.Metadata("archive/x.json")
	require.True(t, ok)
	assert.Equal(t, "processed/x.json", md["original_key"])
}

func TestMemoryStoreCopyMissingSource(t *testing.T) {
	src := NewMemoryStore("a")
	dst := NewMemoryStore("b")

	err := src.Copy(context.Background(), "ghost", dst, "dst", CopyOptions{})

	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMemoryStoreSetLastModified(t *testing.T) {
	store := NewMemoryStore("raw")
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", []byte("v"), PutOptions{}))

	back := time.Now().Add(-48 * time.Hour)
	require.True(t, store.SetLastModified("k", back))

	var got time.Time
	require.NoError(t, store.List(ctx, "", func(info ObjectInfo) error {
		got = info.LastModified
		return nil
	}))
	assert.True(t, got.Equal(back))

	assert.False(t, store.SetLastModified("missing", back))
}
