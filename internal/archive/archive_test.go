package archive

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"alienrisk/internal/blob"
	"alienrisk/internal/core"
	blobfs "alienrisk/internal/infra/blob/fs"
	blobmemory "alienrisk/internal/infra/blob/memory"
	"alienrisk/internal/infra/persistence/memory"
	"alienrisk/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func stepping(start time.Time, step time.Duration) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(step)
		return now
	}
}

func seededStore(t *testing.T, titles ...string) *core.Store {
	t.Helper()
	store := core.NewStore(memory.NewStore(), core.WithClock(stepping(epoch, time.Second)))
	for _, title := range titles {
		_, err := store.Create(context.Background(), domain.FormData{
			Title:      title,
			Category:   domain.CategoryAbduction,
			Likelihood: 3,
			Impact:     4,
		}, domain.SourceLocal, nil)
		require.NoError(t, err)
	}
	return store
}

func TestKey(t *testing.T) {
	assert.Equal(t, "exports/alien-risk-history-2026-03-04-1772600767.json", Key(epoch))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, blobmemory.New())
	require.Error(t, err)
	_, err = New(seededStore(t), nil)
	require.Error(t, err)
}

func TestPushStoresEnvelope(t *testing.T) {
	ctx := context.Background()
	blobs := blobmemory.New()
	svc, err := New(seededStore(t, "Grey men", "Crop circle"), blobs, WithClock(func() time.Time { return epoch }))
	require.NoError(t, err)

	info, err := svc.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, Key(epoch), info.Key)
	assert.Equal(t, "application/json", info.ContentType)
	assert.Equal(t, "2", info.Metadata["count"])
	assert.Equal(t, "1", info.Metadata["schema-version"])

	_, rc, err := blobs.Get(ctx, info.Key)
	require.NoError(t, err)
	defer rc.Close()
	var env core.ExportEnvelope
	require.NoError(t, json.NewDecoder(rc).Decode(&env))
	assert.Equal(t, 2, env.Count)
	require.Len(t, env.Data, 2)
	assert.Equal(t, "Crop circle", env.Data[0].Risk.Title)

	_, err = svc.Push(ctx)
	require.ErrorIs(t, err, blob.ErrExists)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, err := New(seededStore(t, "One"), blobmemory.New(), WithClock(stepping(epoch, time.Hour)))
	require.NoError(t, err)
	first, err := svc.Push(ctx)
	require.NoError(t, err)
	second, err := svc.Push(ctx)
	require.NoError(t, err)

	infos, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, second.Key, infos[0].Key)
	assert.Equal(t, first.Key, infos[1].Key)
}

func TestPullImportsIntoAnotherStore(t *testing.T) {
	ctx := context.Background()
	blobs, err := blobfs.New(t.TempDir())
	require.NoError(t, err)
	source, err := New(seededStore(t, "Grey men", "Crop circle"), blobs, WithClock(func() time.Time { return epoch }))
	require.NoError(t, err)
	info, err := source.Push(ctx)
	require.NoError(t, err)

	target := core.NewStore(memory.NewStore())
	sink, err := New(target, blobs)
	require.NoError(t, err)
	result, err := sink.Pull(ctx, info.Key)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, 2, result.ImportedCount)
	assert.Len(t, target.List(ctx), 2)

	again, err := sink.Pull(ctx, info.Key)
	require.NoError(t, err)
	assert.False(t, again.Accepted)
	assert.Len(t, again.Rejections, 2)
}

func TestPullMissingAndMalformed(t *testing.T) {
	ctx := context.Background()
	blobs := blobmemory.New()
	svc, err := New(seededStore(t), blobs)
	require.NoError(t, err)

	_, err = svc.Pull(ctx, "exports/missing.json")
	require.ErrorIs(t, err, blob.ErrNotFound)

	_, err = blobs.Put(ctx, "exports/bad.json", strings.NewReader(`{"data": {}}`), blob.PutOptions{})
	require.NoError(t, err)
	result, err := svc.Pull(ctx, "exports/bad.json")
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, []string{"invalid document: data must be an array"}, result.Rejections)
}

func TestURL(t *testing.T) {
	ctx := context.Background()
	svc, err := New(seededStore(t, "One"), blobmemory.New(), WithClock(func() time.Time { return epoch }))
	require.NoError(t, err)
	info, err := svc.Push(ctx)
	require.NoError(t, err)
	_, err = svc.URL(ctx, info.Key)
	require.ErrorIs(t, err, blob.ErrUnsupported)

	fsBlobs, err := blobfs.New(t.TempDir())
	require.NoError(t, err)
	fsSvc, err := New(seededStore(t, "One"), fsBlobs, WithClock(func() time.Time { return epoch }))
	require.NoError(t, err)
	info, err = fsSvc.Push(ctx)
	require.NoError(t, err)
	u, err := fsSvc.URL(ctx, info.Key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
}
