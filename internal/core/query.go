package core

import (
	"fmt"
	"strings"
	"time"

	"alienrisk/pkg/domain"
)

// Search returns the snapshots whose title, description, note or any tag
// contains query, ignoring case. A blank query returns snapshots unchanged.
func Search(snapshots []domain.Snapshot, query string) []domain.Snapshot {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return snapshots
	}
	out := make([]domain.Snapshot, 0, len(snapshots))
	for _, snap := range snapshots {
		if matches(snap, needle) {
			out = append(out, snap)
		}
	}
	return out
}

func matches(snap domain.Snapshot, needle string) bool {
	if containsFold(snap.Risk.Title, needle) || containsFold(snap.Risk.Description, needle) || containsFold(snap.Note, needle) {
		return true
	}
	for _, tag := range snap.Tags {
		if containsFold(tag, needle) {
			return true
		}
	}
	return false
}

func containsFold(haystack, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), lowerNeedle)
}

// Criteria is a sparse structured filter. Nil fields impose no constraint;
// From and To bound createdAt inclusively.
type Criteria struct {
	Category *domain.Category
	Level    *domain.Level
	Source   *domain.Source
	From     *time.Time
	To       *time.Time
}

// Empty reports whether no criterion is set.
func (c Criteria) Empty() bool {
	return c.Category == nil && c.Level == nil && c.Source == nil && c.From == nil && c.To == nil
}

// Match reports whether snap satisfies every present criterion.
func (c Criteria) Match(snap domain.Snapshot) bool {
	if c.Category != nil && snap.Risk.Category != *c.Category {
		return false
	}
	if c.Level != nil && snap.Risk.RiskLevel != *c.Level {
		return false
	}
	if c.Source != nil && snap.Source != *c.Source {
		return false
	}
	if c.From != nil && snap.CreatedAt.Before(*c.From) {
		return false
	}
	if c.To != nil && snap.CreatedAt.After(*c.To) {
		return false
	}
	return true
}

// Filter returns the snapshots matching every present criterion, in input order.
func Filter(snapshots []domain.Snapshot, criteria Criteria) []domain.Snapshot {
	if criteria.Empty() {
		return snapshots
	}
	out := make([]domain.Snapshot, 0, len(snapshots))
	for _, snap := range snapshots {
		if criteria.Match(snap) {
			out = append(out, snap)
		}
	}
	return out
}

const dateLayout = "2006-01-02"

// ParseCriteria builds Criteria from string inputs keyed category, level,
// source, from and to. Empty values and "all" are treated as absent. Dates
// are RFC 3339 or YYYY-MM-DD in UTC; a bare "to" date covers that whole day.
func ParseCriteria(values map[string]string) (Criteria, error) {
	var c Criteria
	if raw, ok := present(values, "category"); ok {
		cat := domain.Category(strings.ToUpper(raw))
		if !cat.Valid() {
			return Criteria{}, &domain.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown value %q", raw)}
		}
		c.Category = &cat
	}
	if raw, ok := present(values, "level"); ok {
		lvl := domain.Level(strings.ToUpper(raw))
		if !lvl.Valid() {
			return Criteria{}, &domain.ValidationError{Field: "level", Reason: fmt.Sprintf("unknown value %q", raw)}
		}
		c.Level = &lvl
	}
	if raw, ok := present(values, "source"); ok {
		src, err := domain.ParseSource(strings.ToLower(raw))
		if err != nil {
			return Criteria{}, &domain.ValidationError{Field: "source", Reason: fmt.Sprintf("unknown value %q", raw)}
		}
		c.Source = &src
	}
	if raw, ok := present(values, "from"); ok {
		t, _, err := parseDate(raw)
		if err != nil {
			return Criteria{}, &domain.ValidationError{Field: "from", Reason: err.Error()}
		}
		c.From = &t
	}
	if raw, ok := present(values, "to"); ok {
		t, dateOnly, err := parseDate(raw)
		if err != nil {
			return Criteria{}, &domain.ValidationError{Field: "to", Reason: err.Error()}
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		c.To = &t
	}
	return c, nil
}

func present(values map[string]string, key string) (string, bool) {
	raw := strings.TrimSpace(values[key])
	if raw == "" || strings.EqualFold(raw, "all") {
		return "", false
	}
	return raw, true
}

func parseDate(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("must be RFC 3339 or YYYY-MM-DD, got %q", raw)
	}
	return t, true, nil
}
