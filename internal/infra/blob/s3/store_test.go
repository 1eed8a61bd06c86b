package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"alienrisk/internal/blob/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "bucket")
}

func TestMockStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	assert.Equal(t, core.DriverS3, store.Driver())
	assert.Equal(t, "mock-bucket", store.Bucket())

	body := []byte(`{"schemaVersion":1,"count":0,"data":[]}`)
	info, err := store.Put(ctx, "exports/a.json", bytes.NewReader(body), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"count": "0"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), info.Size)
	assert.Equal(t, "application/json", info.ContentType)
	assert.Equal(t, "0", info.Metadata["count"])
	assert.NotEmpty(t, info.ETag)

	_, err = store.Put(ctx, "exports/a.json", bytes.NewReader(body), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrExists)

	_, rc, err := store.Get(ctx, "exports/a.json")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, body, got)

	_, err = store.Put(ctx, "other.json", strings.NewReader("{}"), core.PutOptions{})
	require.NoError(t, err)
	list, err := store.List(ctx, "exports/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "exports/a.json", list[0].Key)

	u, err := store.PresignURL(ctx, "exports/a.json", core.SignedURLOptions{Expiry: time.Minute})
	require.NoError(t, err)
	assert.Contains(t, u, "X-Amz-Signature")
	_, err = store.PresignURL(ctx, "exports/a.json", core.SignedURLOptions{Method: "PUT"})
	require.ErrorIs(t, err, core.ErrUnsupported)

	ok, err := store.Delete(ctx, "exports/a.json")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Delete(ctx, "exports/a.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMockStoreMissingKey(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	_, err := store.Head(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, _, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestDecodeChunked(t *testing.T) {
	out, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:abc=\r\n\r\n"))
	require.True(t, ok)
	assert.Equal(t, "hello", string(out))
	out, ok = decodeChunked([]byte("3;chunk-signature=x\r\nabc\r\n2\r\nde\r\n0\r\n\r\n"))
	require.True(t, ok)
	assert.Equal(t, "abcde", string(out))
	_, ok = decodeChunked([]byte("plain body"))
	assert.False(t, ok)
}
