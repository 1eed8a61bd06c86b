package domain

// Score bounds for a likelihood x impact product on the 1..5 scales.
const (
	MinScore = 1
	MaxScore = 25
)

// Score returns the risk score for a likelihood and impact pair.
func Score(likelihood, impact int) int {
	return likelihood * impact
}

// Classify maps a risk score to its severity band. Scores outside
// [MinScore, MaxScore] fall back to LevelLow.
func Classify(score int) Level {
	switch {
	case score >= 1 && score <= 4:
		return LevelLow
	case score >= 5 && score <= 9:
		return LevelMedium
	case score >= 10 && score <= 16:
		return LevelHigh
	case score >= 17 && score <= MaxScore:
		return LevelCritical
	default:
		return LevelLow
	}
}
