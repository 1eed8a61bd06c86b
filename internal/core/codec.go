package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"alienrisk/pkg/domain"
)

// ExportEnvelope is the versioned wrapper written by Export and read by Import.
type ExportEnvelope struct {
	SchemaVersion int               `json:"schemaVersion"`
	ExportedAt    time.Time         `json:"exportedAt"`
	Count         int               `json:"count"`
	Data          []domain.Snapshot `json:"data"`
}

// ImportResult reports what Import did. Accepted is true iff at least one
// record was added.
type ImportResult struct {
	Accepted      bool     `json:"accepted"`
	ImportedCount int      `json:"importedCount"`
	Rejections    []string `json:"rejections"`
}

const unknownID = "unknown id"

// ExportFileName returns the conventional export file name for t.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("alien-risk-history-%s.json", t.UTC().Format(dateLayout))
}

// Export renders the collection, newest first, as an indented envelope.
// Unlike List it fails when the stored collection cannot be read.
func (s *Store) Export(ctx context.Context) (doc []byte, err error) {
	ctx, done := s.observe(ctx, OpExport)
	defer func() { done(err) }()

	snapshots, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if snapshots == nil {
		snapshots = []domain.Snapshot{}
	}
	sortNewestFirst(snapshots)
	env := ExportEnvelope{
		SchemaVersion: domain.SchemaVersion,
		ExportedAt:    s.timestamp(),
		Count:         len(snapshots),
		Data:          snapshots,
	}
	doc, err = json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return doc, nil
}

// importRecord is the lenient shape accepted for each candidate. The legacy
// "version" key stands in for a missing schemaVersion.
type importRecord struct {
	ID            string        `json:"id" validate:"required"`
	SchemaVersion *int          `json:"schemaVersion" validate:"required,gt=0"`
	Version       *int          `json:"version,omitempty" validate:"-"`
	Risk          *domain.Risk  `json:"risk" validate:"required"`
	Tags          []string      `json:"tags"`
	Note          string        `json:"note"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Source        domain.Source `json:"source"`
}

func (r importRecord) snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		ID:            r.ID,
		SchemaVersion: *r.SchemaVersion,
		Risk:          *r.Risk,
		Tags:          append(make([]string, 0, len(r.Tags)), r.Tags...),
		Note:          r.Note,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
		Source:        r.Source,
	}
	if snap.Source == "" {
		snap.Source = domain.SourceLocal
	}
	if snap.UpdatedAt.Before(snap.CreatedAt) {
		snap.UpdatedAt = snap.CreatedAt
	}
	return snap
}

// decodeCandidate decodes and validates one entry of the data array.
func decodeCandidate(raw json.RawMessage) (domain.Snapshot, error) {
	var rec importRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Snapshot{}, &domain.ValidationError{ID: probeID(raw), Reason: fmt.Sprintf("malformed record: %v", err)}
	}
	if rec.SchemaVersion == nil && rec.Version != nil {
		rec.SchemaVersion = rec.Version
	}
	if err := domain.ValidateStruct(rec); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			verr.ID = rec.ID
			if verr.ID == "" {
				verr.ID = unknownID
			}
		}
		return domain.Snapshot{}, err
	}
	if !rec.Source.Valid() && rec.Source != "" {
		return domain.Snapshot{}, &domain.ValidationError{ID: rec.ID, Field: "source", Reason: fmt.Sprintf("unknown value %q", rec.Source)}
	}
	return rec.snapshot(), nil
}

func probeID(raw json.RawMessage) string {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil {
		var id string
		if json.Unmarshal(probe.ID, &id) == nil && id != "" {
			return id
		}
	}
	return unknownID
}

// Import merges the records of an export envelope into the collection. Bad
// documents are rejected whole; bad, duplicate or repeated records are skipped
// and reported. Accepted records are appended in one write. Import never
// returns an error: every problem is a rejection.
func (s *Store) Import(ctx context.Context, doc []byte) (result ImportResult) {
	ctx, done := s.observe(ctx, OpImport)
	result = ImportResult{Rejections: []string{}}
	defer func() {
		var err error
		if !result.Accepted {
			err = errors.New("no records imported")
		}
		done(err)
	}()

	reject := func(msg string) ImportResult {
		return ImportResult{Rejections: []string{msg}}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return reject(fmt.Sprintf("invalid JSON document: %v", err))
	}
	data := bytes.TrimSpace(fields["data"])
	if len(data) == 0 || data[0] != '[' {
		return reject("invalid document: data must be an array")
	}
	var candidates []json.RawMessage
	if err := json.Unmarshal(data, &candidates); err != nil {
		return reject(fmt.Sprintf("invalid document: %v", err))
	}

	existing, err := s.load(ctx)
	if err != nil {
		s.logger.Error("import: refusing to overwrite unreadable collection", "key", s.key, "error", err)
		return reject(err.Error())
	}
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, snap := range existing {
		seen[snap.ID] = struct{}{}
	}

	var added []domain.Snapshot
	for _, raw := range candidates {
		snap, err := decodeCandidate(raw)
		if err != nil {
			result.Rejections = append(result.Rejections, err.Error())
			continue
		}
		if _, dup := seen[snap.ID]; dup {
			name := snap.Risk.Title
			if name == "" {
				name = snap.ID
			}
			result.Rejections = append(result.Rejections, fmt.Sprintf("duplicate snapshot skipped: %s", name))
			continue
		}
		seen[snap.ID] = struct{}{}
		added = append(added, snap)
	}
	if len(added) == 0 {
		return result
	}

	merged := append(existing, added...)
	if err := s.save(ctx, merged); err != nil {
		s.logger.Error("import snapshots", "count", len(added), "error", err)
		result.Rejections = append(result.Rejections, err.Error())
		return result
	}
	result.Accepted = true
	result.ImportedCount = len(added)
	s.logger.Info("snapshots imported", "imported", len(added), "rejected", len(result.Rejections))
	return result
}
