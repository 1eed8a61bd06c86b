// Package archive stores export envelopes in blob storage and restores them.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"alienrisk/internal/blob"
	"alienrisk/internal/core"
)

// Prefix is the key prefix every archived export is stored under.
const Prefix = "exports/"

const (
	contentType     = "application/json"
	metaCount       = "count"
	metaSchema      = "schema-version"
	maxArchiveBytes = 64 << 20
	defaultURLTTL   = 15 * time.Minute
)

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used to name archives.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger; *slog.Logger satisfies core.Logger.
func WithLogger(logger core.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service pushes exports of a snapshot store to a blob store and pulls them back.
type Service struct {
	store  *core.Store
	blobs  blob.Store
	now    func() time.Time
	logger core.Logger
}

// New wires a Service.
func New(store *core.Store, blobs blob.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("archive: snapshot store required")
	}
	if blobs == nil {
		return nil, errors.New("archive: blob store required")
	}
	s := &Service{store: store, blobs: blobs, now: time.Now, logger: discard{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Key returns the archive key for an export taken at t.
func Key(t time.Time) string {
	name := strings.TrimSuffix(core.ExportFileName(t), ".json")
	return fmt.Sprintf("%s%s-%d.json", Prefix, name, t.Unix())
}

// Push exports the collection and stores the envelope as a new archive.
func (s *Service) Push(ctx context.Context) (blob.Info, error) {
	doc, err := s.store.Export(ctx)
	if err != nil {
		return blob.Info{}, fmt.Errorf("export snapshots: %w", err)
	}
	var head struct {
		SchemaVersion int `json:"schemaVersion"`
		Count         int `json:"count"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return blob.Info{}, fmt.Errorf("decode export header: %w", err)
	}
	key := Key(s.now())
	info, err := s.blobs.Put(ctx, key, bytes.NewReader(doc), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			metaCount:  strconv.Itoa(head.Count),
			metaSchema: strconv.Itoa(head.SchemaVersion),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("store archive %s: %w", key, err)
	}
	s.logger.Info("export archived", "key", key, "count", head.Count, "driver", string(s.blobs.Driver()))
	return info, nil
}

// List returns the stored archives, newest first.
func (s *Service) List(ctx context.Context) ([]blob.Info, error) {
	infos, err := s.blobs.List(ctx, Prefix)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].LastModified.Equal(infos[j].LastModified) {
			return infos[i].LastModified.After(infos[j].LastModified)
		}
		return infos[i].Key > infos[j].Key
	})
	return infos, nil
}

// Pull reads the archive stored under key and imports it. Blob failures are
// returned as errors; document problems surface as import rejections.
func (s *Service) Pull(ctx context.Context, key string) (core.ImportResult, error) {
	_, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return core.ImportResult{}, fmt.Errorf("read archive %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	doc, err := io.ReadAll(io.LimitReader(rc, maxArchiveBytes+1))
	if err != nil {
		return core.ImportResult{}, fmt.Errorf("read archive %s: %w", key, err)
	}
	if len(doc) > maxArchiveBytes {
		return core.ImportResult{}, fmt.Errorf("archive %s exceeds %d bytes", key, maxArchiveBytes)
	}
	result := s.store.Import(ctx, doc)
	s.logger.Info("archive imported", "key", key, "accepted", result.Accepted, "imported", result.ImportedCount, "rejections", len(result.Rejections))
	return result, nil
}

// URL returns a time-limited download URL for key, or blob.ErrUnsupported
// when the driver cannot sign one.
func (s *Service) URL(ctx context.Context, key string) (string, error) {
	u, err := s.blobs.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: defaultURLTTL})
	if err != nil {
		return "", fmt.Errorf("sign archive %s: %w", key, err)
	}
	return u, nil
}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}
