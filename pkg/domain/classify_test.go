package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBands(t *testing.T) {
	cases := []struct {
		score int
		want  Level
	}{
		{-3, LevelLow},
		{0, LevelLow},
		{1, LevelLow},
		{4, LevelLow},
		{5, LevelMedium},
		{9, LevelMedium},
		{10, LevelHigh},
		{16, LevelHigh},
		{17, LevelCritical},
		{25, LevelCritical},
		{26, LevelLow},
		{1000, LevelLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.score), "score %d", tc.score)
	}
}

func TestClassifyMonotonicOverRatingGrid(t *testing.T) {
	var products []int
	for l := MinRating; l <= MaxRating; l++ {
		for i := MinRating; i <= MaxRating; i++ {
			products = append(products, Score(l, i))
		}
	}
	for _, a := range products {
		la := Classify(a)
		assert.True(t, la.Valid(), "score %d produced unknown level %q", a, la)
		for _, b := range products {
			if a <= b {
				assert.LessOrEqual(t, la.Rank(), Classify(b).Rank(), "score %d vs %d", a, b)
			}
		}
	}
}

func TestScoreScenarios(t *testing.T) {
	assert.Equal(t, 25, Score(5, 5))
	assert.Equal(t, LevelCritical, Classify(Score(5, 5)))
	assert.Equal(t, 2, Score(1, 2))
	assert.Equal(t, LevelLow, Classify(Score(1, 2)))
}
