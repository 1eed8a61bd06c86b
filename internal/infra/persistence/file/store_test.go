package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	store, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())

	const key = "alien-risk:v1:calculations"
	assert.Equal(t, filepath.Join(dir, "alien-risk_v1_calculations.json"), store.PathFor(key))

	got, err := store.Read(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Write(ctx, key, []byte(`[{"id":"a"}]`)))
	require.NoError(t, store.Write(ctx, key, []byte(`[{"id":"b"}]`)))
	got, err = store.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"b"}]`, string(got))

	info, err := os.Stat(store.PathFor(key))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerm), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temp files must be cleaned up")
	}

	require.NoError(t, store.Remove(ctx, key))
	require.NoError(t, store.Remove(ctx, key))
	got, err = store.Read(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, store.Close())
}

func TestFileStoreSharesDataAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, err := New(dir)
	require.NoError(t, err)
	b, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, a.Write(ctx, "k", []byte(`[]`)))
	got, err := b.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
}

func TestFileStoreCancelledContext(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// An uncontended lock is still granted on the first attempt; the write must
	// either succeed or report the cancellation, never corrupt the file.
	if err := store.Write(ctx, "k", []byte(`[1]`)); err == nil {
		got, rerr := store.Read(context.Background(), "k")
		require.NoError(t, rerr)
		assert.Equal(t, `[1]`, string(got))
	}
}
