package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"alienrisk/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDerivesScoreAndLevel(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	critical := mustCreate(t, store, form("Mothership", domain.CategoryInvasion, 5, 5), domain.SourceLocal)
	assert.Equal(t, 25, critical.Risk.RiskScore)
	assert.Equal(t, domain.LevelCritical, critical.Risk.RiskLevel)
	assert.Equal(t, "snap-1", critical.ID)
	assert.Equal(t, domain.SchemaVersion, critical.SchemaVersion)
	assert.Equal(t, testEpoch, critical.CreatedAt)
	assert.Equal(t, critical.CreatedAt, critical.UpdatedAt)
	assert.NotNil(t, critical.Tags)
	assert.Empty(t, critical.Tags)

	low := mustCreate(t, store, form("Crop circle", domain.CategoryUFOCrash, 1, 2), domain.SourceLocal)
	assert.Equal(t, 2, low.Risk.RiskScore)
	assert.Equal(t, domain.LevelLow, low.Risk.RiskLevel)

	got, ok := store.Get(ctx, critical.ID)
	require.True(t, ok)
	assert.Equal(t, critical, got)

	_, ok = store.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestCreateWithRemoteRecordAndSource(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	f := form("Signal", domain.CategoryMindControl, 3, 3)
	f.Tags = []string{"radio"}
	f.Note = "from the observatory"
	snap, err := store.Create(ctx, f, domain.SourceRemote, &domain.RemoteRecord{ID: "srv-7"})
	require.NoError(t, err)
	assert.Equal(t, "srv-7", snap.Risk.RemoteID)
	assert.Equal(t, domain.SourceRemote, snap.Source)
	assert.Equal(t, []string{"radio"}, snap.Tags)
	assert.Equal(t, "from the observatory", snap.Note)

	f.Tags[0] = "mutated"
	got, _ := store.Get(ctx, snap.ID)
	assert.Equal(t, []string{"radio"}, got.Tags, "store must not alias caller slices")

	defaulted, err := store.Create(ctx, f, "", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLocal, defaulted.Source)

	_, err = store.Create(ctx, f, domain.Source("satellite"), nil)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)
	a := mustCreate(t, store, form("A", domain.CategoryInvasion, 1, 1), domain.SourceLocal)
	b := mustCreate(t, store, form("B", domain.CategoryInvasion, 1, 1), domain.SourceLocal)

	list := store.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, []string{b.ID, a.ID}, []string{list[0].ID, list[1].ID})

	// Physical order is not the contract.
	payload, err := json.Marshal([]domain.Snapshot{a, b})
	require.NoError(t, err)
	backend.set(domain.StorageKey, string(payload))
	list = store.List(ctx)
	assert.Equal(t, []string{b.ID, a.ID}, []string{list[0].ID, list[1].ID})
}

func TestListFailSoft(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	store, backend, _ := newTestStore(t, WithLogger(logger))

	list := store.List(ctx)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	backend.set(domain.StorageKey, "{not json")
	assert.Empty(t, store.List(ctx))

	backend.set(domain.StorageKey, `[{"id":"a","tags":null,"risk":{"title":"x"}}]`)
	list = store.List(ctx)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].Tags, "null tags decode to an empty list")

	backend.readErr = errInjected
	assert.Empty(t, store.List(ctx))
	_, ok := store.Get(ctx, "a")
	assert.False(t, ok)
	assert.GreaterOrEqual(t, logger.count("warn"), 2)
}

func TestCreateWriteFailure(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)
	existing := mustCreate(t, store, form("Existing", domain.CategoryAbduction, 2, 3), domain.SourceLocal)

	backend.writeErr = errInjected
	_, err := store.Create(ctx, form("New", domain.CategoryAbduction, 2, 3), domain.SourceLocal, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.ErrorIs(t, err, errInjected)
	var perr *domain.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "write", perr.Op)
	assert.Equal(t, domain.StorageKey, perr.Key)

	backend.writeErr = nil
	list := store.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, existing.ID, list[0].ID)
}

func TestMutationsKeepCorruptPayload(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)
	const corrupt = `[{"id": "a", "risk": `
	backend.set(domain.StorageKey, corrupt)

	_, err := store.Create(ctx, form("New", domain.CategoryVirusXeno, 1, 1), domain.SourceLocal, nil)
	require.ErrorIs(t, err, domain.ErrPersistence)
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "decode", perr.Op)

	_, found, err := store.Update(ctx, "a", domain.Patch{Note: strPtr("x")})
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.False(t, found)
	assert.False(t, store.Delete(ctx, "a"))
	assert.Zero(t, store.DeleteMany(ctx, []string{"a", "b"}))
	res := store.Import(ctx, []byte(`{"data":[{"id":"z","schemaVersion":1,"risk":{"title":"z"}}]}`))
	assert.False(t, res.Accepted)

	assert.Equal(t, corrupt, backend.raw(domain.StorageKey))
	assert.Zero(t, backend.writes)

	store.Clear(ctx)
	assert.Empty(t, backend.raw(domain.StorageKey))
	assert.Empty(t, store.List(ctx))
}

func TestUpdateEmptyPatchOnlyTouchesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)
	orig := mustCreate(t, store, form("Probe", domain.CategoryQuantumAnomaly, 3, 4), domain.SourceLocal)

	first, found, err := store.Update(ctx, orig.ID, domain.Patch{})
	require.NoError(t, err)
	require.True(t, found)
	second, found, err := store.Update(ctx, orig.ID, domain.Patch{})
	require.NoError(t, err)
	require.True(t, found)

	assert.True(t, first.UpdatedAt.After(orig.UpdatedAt))
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.Equal(t, orig.CreatedAt, second.CreatedAt)

	for _, snap := range []domain.Snapshot{first, second} {
		snap.UpdatedAt = orig.UpdatedAt
		assert.Equal(t, orig, snap)
	}
	got, _ := store.Get(ctx, orig.ID)
	assert.Equal(t, second, got)
}

func TestUpdateUnknownID(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)
	mustCreate(t, store, form("Known", domain.CategoryInvasion, 1, 1), domain.SourceLocal)
	writes := backend.writes

	snap, found, err := store.Update(ctx, "nope", domain.Patch{Note: strPtr("x")})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, domain.Snapshot{}, snap)
	assert.Equal(t, writes, backend.writes)
}

func TestUpdateMergesPatch(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)
	f := form("Beacon", domain.CategoryUFOCrash, 1, 2)
	f.Tags = []string{"desert", "night"}
	f.Note = "first"
	orig := mustCreate(t, store, f, domain.SourceRemote)

	renamed, _, err := store.Update(ctx, orig.ID, domain.Patch{Risk: domain.RiskPatch{Title: strPtr("Beacon II")}})
	require.NoError(t, err)
	assert.Equal(t, "Beacon II", renamed.Risk.Title)
	assert.Equal(t, 2, renamed.Risk.RiskScore)
	assert.Equal(t, []string{"desert", "night"}, renamed.Tags)
	assert.Equal(t, "first", renamed.Note)

	rescored, _, err := store.Update(ctx, orig.ID, domain.Patch{Risk: domain.RiskPatch{Likelihood: intPtr(5)}})
	require.NoError(t, err)
	assert.Equal(t, 10, rescored.Risk.RiskScore)
	assert.Equal(t, domain.LevelHigh, rescored.Risk.RiskLevel)

	cleared, _, err := store.Update(ctx, orig.ID, domain.Patch{Tags: []string{}, Note: strPtr("")})
	require.NoError(t, err)
	assert.Empty(t, cleared.Tags)
	assert.NotNil(t, cleared.Tags)
	assert.Empty(t, cleared.Note)
	assert.Equal(t, domain.SourceRemote, cleared.Source, "updates never change provenance")
	assert.Equal(t, orig.ID, cleared.ID)
}

func TestUpdateNeverMovesUpdatedAtBeforeCreatedAt(t *testing.T) {
	ctx := context.Background()
	times := []time.Time{testEpoch, testEpoch.Add(-time.Hour)}
	i := 0
	clock := func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
	store := NewStore(newFakeBackend(), WithClock(clock))
	orig := mustCreate(t, store, form("Skew", domain.CategoryInvasion, 2, 2), domain.SourceLocal)
	updated, _, err := store.Update(ctx, orig.ID, domain.Patch{})
	require.NoError(t, err)
	assert.Equal(t, orig.CreatedAt, updated.UpdatedAt)
}

func TestUpdateWriteFailure(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)
	orig := mustCreate(t, store, form("Keep", domain.CategoryInvasion, 2, 2), domain.SourceLocal)

	backend.writeErr = errInjected
	_, found, err := store.Update(ctx, orig.ID, domain.Patch{Note: strPtr("lost")})
	assert.True(t, found)
	require.ErrorIs(t, err, domain.ErrPersistence)

	backend.writeErr = nil
	got, _ := store.Get(ctx, orig.ID)
	assert.Equal(t, orig, got)
}

func TestDeleteAndDeleteMany(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)
	a := mustCreate(t, store, form("A", domain.CategoryInvasion, 1, 1), domain.SourceLocal)
	b := mustCreate(t, store, form("B", domain.CategoryInvasion, 1, 1), domain.SourceLocal)
	c := mustCreate(t, store, form("C", domain.CategoryInvasion, 1, 1), domain.SourceLocal)

	writes := backend.writes
	assert.False(t, store.Delete(ctx, "missing"))
	assert.Zero(t, store.DeleteMany(ctx, []string{"x", "y"}))
	assert.Equal(t, writes, backend.writes, "no-op deletes do not write")

	assert.True(t, store.Delete(ctx, a.ID))
	assert.False(t, store.Delete(ctx, a.ID))

	ids := []string{b.ID, b.ID, a.ID, "ghost"}
	removed := store.DeleteMany(ctx, ids)
	assert.Equal(t, 1, removed)
	assert.LessOrEqual(t, removed, len(ids))

	list := store.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)
}

func TestDeleteFailuresDegradeToNoop(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	store, backend, _ := newTestStore(t, WithLogger(logger))
	a := mustCreate(t, store, form("A", domain.CategoryInvasion, 1, 1), domain.SourceLocal)

	backend.writeErr = errInjected
	assert.False(t, store.Delete(ctx, a.ID))
	assert.Zero(t, store.DeleteMany(ctx, []string{a.ID}))

	backend.removeErr = errInjected
	store.Clear(ctx)
	assert.Equal(t, 3, logger.count("warn"))

	backend.writeErr, backend.removeErr = nil, nil
	assert.Len(t, store.List(ctx), 1)

	store.Clear(ctx)
	assert.Empty(t, store.List(ctx))
	assert.Equal(t, 1, backend.removes)
}

func TestLookupSurfacesStorageFailures(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)
	a := mustCreate(t, store, form("A", domain.CategoryInvasion, 1, 1), domain.SourceLocal)

	got, found, err := store.Lookup(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, a, got)

	_, found, err = store.Lookup(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	backend.set(domain.StorageKey, "{not json")
	_, found, err = store.Lookup(ctx, a.ID)
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.False(t, found)
	_, ok := store.Get(ctx, a.ID)
	assert.False(t, ok, "Get stays fail-soft")
}

func TestStoreQueryViews(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)
	q := form("Quantum tunnel", domain.CategoryQuantumAnomaly, 4, 4)
	mustCreate(t, store, q, domain.SourceLocal)
	mustCreate(t, store, form("Cow lift", domain.CategoryAbduction, 1, 3), domain.SourceRemote)

	assert.Len(t, store.Search(ctx, "QUANTUM"), 1)
	assert.Len(t, store.Search(ctx, "  "), 2)

	src := domain.SourceRemote
	remote := store.Filter(ctx, Criteria{Source: &src})
	require.Len(t, remote, 1)
	assert.Equal(t, "Cow lift", remote[0].Risk.Title)

	st := store.Stats(ctx)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.ByLevel[domain.LevelHigh])
	assert.Equal(t, 1, st.ByLevel[domain.LevelLow])
}

func TestStoreOptions(t *testing.T) {
	backend := newFakeBackend()
	store := NewStore(backend, WithKey("custom"), WithKey(""), WithClock(nil), WithIDGenerator(nil), WithLogger(nil), WithMetricsRecorder(nil), WithTracer(nil))
	assert.Equal(t, "custom", store.Key())

	snap := mustCreate(t, store, form("Default id", domain.CategoryInvasion, 1, 1), domain.SourceLocal)
	assert.Len(t, snap.ID, 36, "uuid v4 string")
	assert.NotEmpty(t, backend.raw("custom"))
	assert.Empty(t, backend.raw(domain.StorageKey))
	require.NoError(t, store.Close())
}
