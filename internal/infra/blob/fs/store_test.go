package fs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"alienrisk/internal/blob/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "exports"))
	require.NoError(t, err)
	return store
}

func TestStorePutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	assert.Equal(t, core.DriverFilesystem, store.Driver())

	body := []byte(`{"count":0}`)
	info, err := store.Put(ctx, "exports/a.json", bytes.NewReader(body), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"count": "0"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), info.Size)
	assert.Len(t, info.ETag, 64)

	_, err = store.Put(ctx, "exports/a.json", bytes.NewReader(body), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrExists)

	head, err := store.Head(ctx, "exports/a.json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", head.ContentType)
	assert.Equal(t, "0", head.Metadata["count"])

	got, rc, err := store.Get(ctx, "exports/a.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, body, data)
	assert.Equal(t, head.ETag, got.ETag)

	_, err = store.Put(ctx, "other/b.json", strings.NewReader("{}"), core.PutOptions{})
	require.NoError(t, err)
	list, err := store.List(ctx, "exports/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "exports/a.json", list[0].Key)
	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	u, err := store.PresignURL(ctx, "exports/a.json", core.SignedURLOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
	_, err = store.PresignURL(ctx, "exports/a.json", core.SignedURLOptions{Method: "PUT"})
	require.ErrorIs(t, err, core.ErrUnsupported)

	ok, err := store.Delete(ctx, "exports/a.json")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Delete(ctx, "exports/a.json")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = os.Stat(filepath.Join(store.Root(), "exports", "a.json.meta"))
	assert.True(t, os.IsNotExist(err))
}

func TestStoreMissingKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	_, _, err := store.Get(ctx, "nope.json")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.Head(ctx, "nope.json")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.PresignURL(ctx, "nope.json", core.SignedURLOptions{})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestSanitizeKey(t *testing.T) {
	for _, key := range []string{"", "  ", "/abs", "../escape", "a/../../b", "x.meta"} {
		_, err := sanitizeKey(key)
		assert.Error(t, err, key)
	}
	clean, err := sanitizeKey("exports//a.json")
	require.NoError(t, err)
	assert.Equal(t, "exports/a.json", clean)
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	store := newTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Put(ctx, "k", strings.NewReader("x"), core.PutOptions{})
	require.ErrorIs(t, err, context.Canceled)
	_, err = store.List(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
}
