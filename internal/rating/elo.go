package rating

import "math"

// Elo-style N-way rating parameters.
const (
	BaselineRating = 1500 // assigned lazily on first settlement
	DeltaClamp     = 50
)

// ActualScore maps a finishing rank in a field of n to [0,1]:
// 1.0 for 1st, 0.0 for last, evenly spaced between.
func ActualScore(rank, n int) float64 {
	if n < 2 {
		return 1
	}
	return 1 - float64(rank-1)/float64(n-1)
}

// WinProbability is the pairwise Elo expectation of self beating opponent.
func WinProbability(self, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-self)/400))
}

// ExpectedScore extends the pairwise expectation to an n-way field: the mean
// win probability against every other participant.
func ExpectedScore(self int, opponents []int) float64 {
	if len(opponents) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, opp := range opponents {
		sum += WinProbability(self, opp)
	}
	return sum / float64(len(opponents))
}

// KFactor scales rating volatility by experience in the distance class.
func KFactor(games int) int {
	switch {
	case games < 10:
		return 40
	case games < 30:
		return 32
	default:
		return 24
	}
}

// Delta is the rounded, clamped rating change for one participant.
func Delta(k int, actual, expected float64) int {
	d := int(math.Round(float64(k) * (actual - expected)))
	if d > DeltaClamp {
		return DeltaClamp
	}
	if d < -DeltaClamp {
		return -DeltaClamp
	}
	return d
}
