// Package domain defines the persisted risk snapshot model, the risk-level
// classifier, and the persistence contract used by alienrisk.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion tags the shape of every persisted snapshot and export envelope.
const SchemaVersion = 1

// StorageKey names the single at-rest entry holding the snapshot collection.
const StorageKey = "alien-risk:v1:calculations"

// Category classifies what kind of threat a risk describes.
type Category string

// Supported risk categories.
const (
	CategoryInvasion       Category = "INVASION"
	CategoryAbduction      Category = "ABDUCTION"
	CategoryVirusXeno      Category = "VIRUS_XENO"
	CategoryUFOCrash       Category = "UFO_CRASH"
	CategoryMindControl    Category = "MIND_CONTROL"
	CategoryQuantumAnomaly Category = "QUANTUM_ANOMALY"
)

var categories = []Category{
	CategoryInvasion,
	CategoryAbduction,
	CategoryVirusXeno,
	CategoryUFOCrash,
	CategoryMindControl,
	CategoryQuantumAnomaly,
}

var categoryLabels = map[Category]string{
	CategoryInvasion:       "Invasión",
	CategoryAbduction:      "Abducción",
	CategoryVirusXeno:      "Virus Xenomorfo",
	CategoryUFOCrash:       "Accidente OVNI",
	CategoryMindControl:    "Control Mental",
	CategoryQuantumAnomaly: "Anomalía Cuántica",
}

// Categories returns every category in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// CategoryLabel returns the human readable label for c, or c itself when unknown.
func CategoryLabel(c Category) string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// Level is one of four ordered severity bands derived from a risk score.
type Level string

// Severity bands, lowest first.
const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

var levels = []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical}

// Levels returns every level ordered by severity.
func Levels() []Level {
	return append([]Level(nil), levels...)
}

// Rank returns the severity position of l (0 for LOW .. 3 for CRITICAL), or -1 when unknown.
func (l Level) Rank() int {
	for i, candidate := range levels {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool { return l.Rank() >= 0 }

// Source marks where a snapshot originated.
type Source string

// Provenance values.
const (
	// SourceLocal marks snapshots that only ever existed in the local store.
	SourceLocal Source = "local"
	// SourceRemote marks snapshots tied to a record confirmed by the remote service.
	SourceRemote Source = "remote"
)

var legacySources = map[string]Source{
	"frontend": SourceLocal,
	"backend":  SourceRemote,
}

// Sources returns both provenance values.
func Sources() []Source { return []Source{SourceLocal, SourceRemote} }

// Valid reports whether s is a known provenance value.
func (s Source) Valid() bool { return s == SourceLocal || s == SourceRemote }

// ParseSource maps a raw value, including the legacy frontend/backend names, to a Source.
func ParseSource(raw string) (Source, error) {
	if legacy, ok := legacySources[raw]; ok {
		return legacy, nil
	}
	s := Source(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown source %q", raw)
	}
	return s, nil
}

// UnmarshalJSON accepts the legacy frontend/backend spellings.
func (s *Source) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if legacy, ok := legacySources[raw]; ok {
		*s = legacy
		return nil
	}
	*s = Source(raw)
	return nil
}

// Risk is the assessment embedded in every snapshot.
type Risk struct {
	RemoteID    string   `json:"remoteId,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    Category `json:"category"`
	Likelihood  int      `json:"likelihood"`
	Impact      int      `json:"impact"`
	RiskScore   int      `json:"riskScore"`
	RiskLevel   Level    `json:"riskLevel"`
}

// Snapshot is the persisted unit: one risk assessment plus local metadata.
type Snapshot struct {
	ID            string    `json:"id"`
	SchemaVersion int       `json:"schemaVersion"`
	Risk          Risk      `json:"risk"`
	Tags          []string  `json:"tags"`
	Note          string    `json:"note"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Source        Source    `json:"source"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	cp := s
	cp.Tags = append(make([]string, 0, len(s.Tags)), s.Tags...)
	return cp
}

// RemoteRecord identifies a record confirmed by the remote risk service.
type RemoteRecord struct {
	ID string `json:"id"`
}

// RiskPatch lists the embedded risk fields an update may change. Nil leaves a field untouched.
type RiskPatch struct {
	RemoteID    *string   `json:"remoteId,omitempty"`
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Category    *Category `json:"category,omitempty"`
	Likelihood  *int      `json:"likelihood,omitempty"`
	Impact      *int      `json:"impact,omitempty"`
}

// Patch is a partial snapshot update. A nil Tags slice keeps the tags; an
// empty non-nil slice clears them.
type Patch struct {
	Risk RiskPatch `json:"risk"`
	Tags []string  `json:"tags,omitempty"`
	Note *string   `json:"note,omitempty"`
}

// TouchesScore reports whether the patch changes an input of the risk score.
func (p Patch) TouchesScore() bool {
	return p.Risk.Likelihood != nil || p.Risk.Impact != nil
}

// Apply merges p over s and returns the result. Score and level are
// re-derived whenever likelihood or impact is patched.
func (p Patch) Apply(s Snapshot) Snapshot {
	out := s.Clone()
	if p.Risk.RemoteID != nil {
		out.Risk.RemoteID = *p.Risk.RemoteID
	}
	if p.Risk.Title != nil {
		out.Risk.Title = *p.Risk.Title
	}
	if p.Risk.Description != nil {
		out.Risk.Description = *p.Risk.Description
	}
	if p.Risk.Category != nil {
		out.Risk.Category = *p.Risk.Category
	}
	if p.Risk.Likelihood != nil {
		out.Risk.Likelihood = *p.Risk.Likelihood
	}
	if p.Risk.Impact != nil {
		out.Risk.Impact = *p.Risk.Impact
	}
	if p.TouchesScore() {
		out.Risk.RiskScore = Score(out.Risk.Likelihood, out.Risk.Impact)
		out.Risk.RiskLevel = Classify(out.Risk.RiskScore)
	}
	if p.Tags != nil {
		out.Tags = append(make([]string, 0, len(p.Tags)), p.Tags...)
	}
	if p.Note != nil {
		out.Note = *p.Note
	}
	return out
}
