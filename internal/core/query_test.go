package core

import (
	"testing"
	"time"

	"alienrisk/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotAt(id string, created time.Time, mutate func(*domain.Snapshot)) domain.Snapshot {
	s := domain.Snapshot{
		ID:            id,
		SchemaVersion: domain.SchemaVersion,
		Risk: domain.Risk{
			Title:      id,
			Category:   domain.CategoryInvasion,
			Likelihood: 1,
			Impact:     1,
			RiskScore:  1,
			RiskLevel:  domain.LevelLow,
		},
		Tags:      []string{},
		CreatedAt: created,
		UpdatedAt: created,
		Source:    domain.SourceLocal,
	}
	if mutate != nil {
		mutate(&s)
	}
	return s
}

func ids(snaps []domain.Snapshot) []string {
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.ID)
	}
	return out
}

func TestSearch(t *testing.T) {
	snaps := []domain.Snapshot{
		snapshotAt("tagged", testEpoch, func(s *domain.Snapshot) { s.Tags = []string{"Quantum", "lab"} }),
		snapshotAt("plain", testEpoch, func(s *domain.Snapshot) { s.Risk.Title = "Cow abduction" }),
		snapshotAt("described", testEpoch, func(s *domain.Snapshot) { s.Risk.Description = "A QUANTUM rift" }),
		snapshotAt("noted", testEpoch, func(s *domain.Snapshot) { s.Note = "quantumness observed" }),
	}

	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "tag match ignores case", query: "quantum", want: []string{"tagged", "described", "noted"}},
		{name: "title", query: "COW", want: []string{"plain"}},
		{name: "trimmed", query: "  lab ", want: []string{"tagged"}},
		{name: "no match", query: "zeta reticuli", want: []string{}},
		{name: "empty returns all", query: "", want: []string{"tagged", "plain", "described", "noted"}},
		{name: "whitespace returns all", query: " \t ", want: []string{"tagged", "plain", "described", "noted"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(Search(snaps, tc.query)))
		})
	}
}

func TestFilter(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC) }
	snaps := []domain.Snapshot{
		snapshotAt("a", day(1), nil),
		snapshotAt("b", day(2), func(s *domain.Snapshot) {
			s.Risk.Category = domain.CategoryAbduction
			s.Risk.RiskLevel = domain.LevelHigh
			s.Source = domain.SourceRemote
		}),
		snapshotAt("c", day(3), func(s *domain.Snapshot) {
			s.Risk.Category = domain.CategoryAbduction
			s.Risk.RiskLevel = domain.LevelLow
		}),
	}
	cat := domain.CategoryAbduction
	lvl := domain.LevelHigh
	src := domain.SourceLocal
	from, to := day(2), day(3)

	cases := []struct {
		name     string
		criteria Criteria
		want     []string
	}{
		{name: "empty", criteria: Criteria{}, want: []string{"a", "b", "c"}},
		{name: "category", criteria: Criteria{Category: &cat}, want: []string{"b", "c"}},
		{name: "category and level", criteria: Criteria{Category: &cat, Level: &lvl}, want: []string{"b"}},
		{name: "source", criteria: Criteria{Source: &src}, want: []string{"a", "c"}},
		{name: "inclusive bounds", criteria: Criteria{From: &from, To: &to}, want: []string{"b", "c"}},
		{name: "exact instant", criteria: Criteria{From: &from, To: &from}, want: []string{"b"}},
		{name: "disjoint", criteria: Criteria{Category: &cat, Source: &src, Level: &lvl}, want: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(Filter(snaps, tc.criteria)))
		})
	}
}

func TestSearchAndFilterChain(t *testing.T) {
	snaps := []domain.Snapshot{
		snapshotAt("local-ship", testEpoch, func(s *domain.Snapshot) { s.Risk.Title = "ship" }),
		snapshotAt("remote-ship", testEpoch, func(s *domain.Snapshot) {
			s.Risk.Title = "ship"
			s.Source = domain.SourceRemote
		}),
	}
	src := domain.SourceRemote
	assert.Equal(t, []string{"remote-ship"}, ids(Filter(Search(snaps, "SHIP"), Criteria{Source: &src})))
}

func TestParseCriteria(t *testing.T) {
	c, err := ParseCriteria(map[string]string{
		"category": "abduction",
		"level":    "all",
		"source":   "backend",
		"from":     "2026-03-02",
		"to":       "2026-03-03",
	})
	require.NoError(t, err)
	require.NotNil(t, c.Category)
	assert.Equal(t, domain.CategoryAbduction, *c.Category)
	assert.Nil(t, c.Level)
	require.NotNil(t, c.Source)
	assert.Equal(t, domain.SourceRemote, *c.Source)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), *c.From)
	assert.Equal(t, time.Date(2026, 3, 3, 23, 59, 59, 999999999, time.UTC), *c.To)

	c, err = ParseCriteria(map[string]string{"to": "2026-03-03T10:00:00+02:00"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), *c.To)

	empty, err := ParseCriteria(map[string]string{"category": "", "source": "ALL"})
	require.NoError(t, err)
	assert.True(t, empty.Empty())

	for field, raw := range map[string]string{
		"category": "PLAGUE",
		"level":    "apocalyptic",
		"source":   "satellite",
		"from":     "yesterday",
		"to":       "03/03/2026",
	} {
		_, err := ParseCriteria(map[string]string{field: raw})
		require.ErrorIs(t, err, domain.ErrValidation, field)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, field, verr.Field)
	}
}
