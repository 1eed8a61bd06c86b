// Package core implements the snapshot store: CRUD over the persisted risk
// snapshot collection plus the query, codec and statistics views built on it.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"alienrisk/pkg/domain"

	"github.com/google/uuid"
)

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the backend key holding the collection.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides snapshot id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the recorder notified after every operation.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Store) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer wrapping every operation in a span.
func WithTracer(tracer Tracer) Option {
	return func(s *Store) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// Store owns the persisted snapshot collection. Every call reads the whole
// collection from the backend and writes the whole collection back; there is
// no locking, so concurrent mutations may lose updates.
type Store struct {
	backend domain.Backend
	key     string
	now     func() time.Time
	newID   func() string
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
}

// NewStore constructs a store writing through backend.
func NewStore(backend domain.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     domain.StorageKey,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the backend key holding the collection.
func (s *Store) Key() string { return s.key }

// Close closes the backend.
func (s *Store) Close() error { return s.backend.Close() }

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// load reads and decodes the collection. An absent key is an empty
// collection; a payload that cannot be read or decoded is a PersistenceError.
func (s *Store) load(ctx context.Context) ([]domain.Snapshot, error) {
	payload, err := s.backend.Read(ctx, s.key)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Key: s.key, Err: err}
	}
	if len(payload) == 0 {
		return nil, nil
	}
	var snapshots []domain.Snapshot
	if err := json.Unmarshal(payload, &snapshots); err != nil {
		return nil, &domain.PersistenceError{Op: "decode", Key: s.key, Err: err}
	}
	for i := range snapshots {
		snapshots[i] = snapshots[i].Clone()
	}
	return snapshots, nil
}

func (s *Store) save(ctx context.Context, snapshots []domain.Snapshot) error {
	if snapshots == nil {
		snapshots = []domain.Snapshot{}
	}
	payload, err := json.Marshal(snapshots)
	if err != nil {
		return &domain.PersistenceError{Op: "encode", Key: s.key, Err: err}
	}
	if err := s.backend.Write(ctx, s.key, payload); err != nil {
		return &domain.PersistenceError{Op: "write", Key: s.key, Err: err}
	}
	return nil
}

func sortNewestFirst(snapshots []domain.Snapshot) {
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
}

// List returns every snapshot, newest first. Storage failures yield an empty
// collection and a warning.
func (s *Store) List(ctx context.Context) []domain.Snapshot {
	ctx, done := s.observe(ctx, OpList)
	snapshots, err := s.load(ctx)
	done(err)
	if err != nil {
		s.logger.Warn("list snapshots: falling back to empty collection", "key", s.key, "error", err)
		return []domain.Snapshot{}
	}
	if snapshots == nil {
		return []domain.Snapshot{}
	}
	sortNewestFirst(snapshots)
	return snapshots
}

// Get returns the snapshot with id.
func (s *Store) Get(ctx context.Context, id string) (domain.Snapshot, bool) {
	ctx, done := s.observe(ctx, OpGet)
	snapshots, err := s.load(ctx)
	done(err)
	if err != nil {
		s.logger.Warn("get snapshot", "id", id, "error", err)
		return domain.Snapshot{}, false
	}
	for _, snap := range snapshots {
		if snap.ID == id {
			return snap, true
		}
	}
	return domain.Snapshot{}, false
}

// Lookup is Get without the fail-soft fallback: a collection that cannot be
// read or decoded is returned as a PersistenceError.
func (s *Store) Lookup(ctx context.Context, id string) (domain.Snapshot, bool, error) {
	ctx, done := s.observe(ctx, OpGet)
	snapshots, err := s.load(ctx)
	done(err)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	if i := indexOf(snapshots, id); i >= 0 {
		return snapshots[i], true, nil
	}
	return domain.Snapshot{}, false, nil
}

// Create derives the score and level from form, stamps a fresh id and both
// timestamps, and persists the new snapshot at the head of the collection.
// An empty source means SourceLocal.
func (s *Store) Create(ctx context.Context, form domain.FormData, source domain.Source, remote *domain.RemoteRecord) (created domain.Snapshot, err error) {
	ctx, done := s.observe(ctx, OpCreate)
	defer func() { done(err) }()

	if source == "" {
		source = domain.SourceLocal
	}
	if !source.Valid() {
		return domain.Snapshot{}, &domain.ValidationError{Field: "source", Reason: fmt.Sprintf("must be %s or %s", domain.SourceLocal, domain.SourceRemote)}
	}
	snapshots, err := s.load(ctx)
	if err != nil {
		s.logger.Error("create snapshot: refusing to overwrite unreadable collection", "key", s.key, "error", err)
		return domain.Snapshot{}, err
	}

	now := s.timestamp()
	score := domain.Score(form.Likelihood, form.Impact)
	created = domain.Snapshot{
		ID:            s.newID(),
		SchemaVersion: domain.SchemaVersion,
		Risk: domain.Risk{
			Title:       form.Title,
			Description: form.Description,
			Category:    form.Category,
			Likelihood:  form.Likelihood,
			Impact:      form.Impact,
			RiskScore:   score,
			RiskLevel:   domain.Classify(score),
		},
		Tags:      append(make([]string, 0, len(form.Tags)), form.Tags...),
		Note:      form.Note,
		CreatedAt: now,
		UpdatedAt: now,
		Source:    source,
	}
	if remote != nil {
		created.Risk.RemoteID = remote.ID
	}

	next := make([]domain.Snapshot, 0, len(snapshots)+1)
	next = append(next, created)
	next = append(next, snapshots...)
	if err := s.save(ctx, next); err != nil {
		s.logger.Error("create snapshot", "id", created.ID, "error", err)
		return domain.Snapshot{}, err
	}
	s.logger.Debug("snapshot created", "id", created.ID, "level", created.Risk.RiskLevel)
	return created.Clone(), nil
}

// Update merges patch over the snapshot with id and refreshes updatedAt. It
// reports false without writing when id is unknown.
func (s *Store) Update(ctx context.Context, id string, patch domain.Patch) (updated domain.Snapshot, found bool, err error) {
	ctx, done := s.observe(ctx, OpUpdate)
	defer func() { done(err) }()

	snapshots, err := s.load(ctx)
	if err != nil {
		s.logger.Error("update snapshot: refusing to overwrite unreadable collection", "id", id, "error", err)
		return domain.Snapshot{}, false, err
	}
	idx := indexOf(snapshots, id)
	if idx < 0 {
		return domain.Snapshot{}, false, nil
	}

	updated = patch.Apply(snapshots[idx])
	updated.UpdatedAt = s.timestamp()
	if updated.UpdatedAt.Before(updated.CreatedAt) {
		updated.UpdatedAt = updated.CreatedAt
	}
	snapshots[idx] = updated
	if err := s.save(ctx, snapshots); err != nil {
		s.logger.Error("update snapshot", "id", id, "error", err)
		return domain.Snapshot{}, true, err
	}
	return updated.Clone(), true, nil
}

// Delete removes the snapshot with id and reports whether one was removed.
// Storage failures are logged and reported as false.
func (s *Store) Delete(ctx context.Context, id string) bool {
	return s.DeleteMany(ctx, []string{id}) == 1
}

// DeleteMany removes every snapshot whose id is in ids and returns how many
// were removed. Storage failures are logged and reported as 0.
func (s *Store) DeleteMany(ctx context.Context, ids []string) int {
	op := OpDeleteMany
	if len(ids) == 1 {
		op = OpDelete
	}
	ctx, done := s.observe(ctx, op)

	snapshots, err := s.load(ctx)
	if err != nil {
		done(err)
		s.logger.Warn("delete snapshots: collection unreadable", "ids", len(ids), "error", err)
		return 0
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := make([]domain.Snapshot, 0, len(snapshots))
	for _, snap := range snapshots {
		if _, ok := drop[snap.ID]; ok {
			continue
		}
		kept = append(kept, snap)
	}
	removed := len(snapshots) - len(kept)
	if removed == 0 {
		done(nil)
		return 0
	}
	if err := s.save(ctx, kept); err != nil {
		done(err)
		s.logger.Warn("delete snapshots", "ids", len(ids), "error", err)
		return 0
	}
	done(nil)
	return removed
}

// Clear drops the whole collection, including a payload that no longer decodes.
func (s *Store) Clear(ctx context.Context) {
	ctx, done := s.observe(ctx, OpClear)
	err := s.backend.Remove(ctx, s.key)
	if err != nil {
		err = &domain.PersistenceError{Op: "remove", Key: s.key, Err: err}
		s.logger.Warn("clear snapshots", "error", err)
	}
	done(err)
}

// Search applies the text search to List.
func (s *Store) Search(ctx context.Context, query string) []domain.Snapshot {
	return Search(s.List(ctx), query)
}

// Filter applies the structured filter to List.
func (s *Store) Filter(ctx context.Context, criteria Criteria) []domain.Snapshot {
	return Filter(s.List(ctx), criteria)
}

// Stats aggregates List.
func (s *Store) Stats(ctx context.Context) Stats {
	return ComputeStats(s.List(ctx))
}

func indexOf(snapshots []domain.Snapshot, id string) int {
	for i, snap := range snapshots {
		if snap.ID == id {
			return i
		}
	}
	return -1
}
