package core

import (
	"math"

	"alienrisk/pkg/domain"
)

// Stats aggregates a snapshot collection. Every level, category and source
// key is always present and no other key is: a snapshot with an unknown or
// empty value counts toward Total and the average only.
type Stats struct {
	Total            int                     `json:"total"`
	ByLevel          map[domain.Level]int    `json:"byLevel"`
	ByCategory       map[domain.Category]int `json:"byCategory"`
	BySource         map[domain.Source]int   `json:"bySource"`
	AverageRiskScore float64                 `json:"averageRiskScore"`
	// Matrix[l-1][i-1] counts snapshots with likelihood l and impact i.
	Matrix [domain.MaxRating][domain.MaxRating]int `json:"matrix"`
}

// ComputeStats aggregates snapshots in one pass. The average score is
// rounded to two decimals and is 0 for an empty collection.
func ComputeStats(snapshots []domain.Snapshot) Stats {
	st := Stats{
		ByLevel:    make(map[domain.Level]int, len(domain.Levels())),
		ByCategory: make(map[domain.Category]int, len(domain.Categories())),
		BySource:   make(map[domain.Source]int, len(domain.Sources())),
	}
	for _, lvl := range domain.Levels() {
		st.ByLevel[lvl] = 0
	}
	for _, cat := range domain.Categories() {
		st.ByCategory[cat] = 0
	}
	for _, src := range domain.Sources() {
		st.BySource[src] = 0
	}

	sum := 0
	for _, snap := range snapshots {
		st.Total++
		countKnown(st.ByLevel, snap.Risk.RiskLevel)
		countKnown(st.ByCategory, snap.Risk.Category)
		countKnown(st.BySource, snap.Source)
		sum += snap.Risk.RiskScore
		l, i := snap.Risk.Likelihood, snap.Risk.Impact
		if l >= domain.MinRating && l <= domain.MaxRating && i >= domain.MinRating && i <= domain.MaxRating {
			st.Matrix[l-1][i-1]++
		}
	}
	if st.Total > 0 {
		st.AverageRiskScore = math.Round(float64(sum)/float64(st.Total)*100) / 100
	}
	return st
}

func countKnown[K comparable](counts map[K]int, key K) {
	if _, ok := counts[key]; ok {
		counts[key]++
	}
}
