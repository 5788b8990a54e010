package leaderboard

import (
	"math"
	"sort"
	"strings"
)

// Rubric weights.
const (
	successWeight  = 0.6
	accuracyWeight = 0.3
	timeWeight     = 0.1
)

var difficultyMultipliers = map[string]float64{
	"EASY":   1.0,
	"MEDIUM": 1.2,
	"HARD":   1.5,
	"EXPERT": 2.0,
}

// DifficultyMultiplier scales scores by task difficulty. Unknown
// difficulties count as 1.0.
func DifficultyMultiplier(difficulty string) float64 {
	if m, ok := difficultyMultipliers[strings.ToUpper(difficulty)]; ok {
		return m
	}
	return 1.0
}

// EfficiencyFactor is 60/time clamped to [0.5, 1.5].
func EfficiencyFactor(timeTaken float64) float64 {
	return math.Max(0.5, math.Min(1.5, 60/math.Max(timeTaken, 1)))
}

// CompositeScore combines success (0-100), accuracy (0-1) and time taken
// into one score rounded to a tenth.
func CompositeScore(base, accuracy, timeTaken float64, difficulty string) float64 {
	raw := (base*successWeight +
		accuracy*100*accuracyWeight +
		math.Min(10, timeTaken/10)*timeWeight) * DifficultyMultiplier(difficulty)
	return math.Round(raw*10) / 10
}

var agentQuality = map[string]float64{
	"gpt-4":         0.95,
	"gpt-3.5-turbo": 0.85,
	"claude-3":      0.92,
	"claude-2":      0.88,
	"gemini":        0.90,
	"mock":          0.75,
}

// AgentQuality is the prior used when synthesizing metrics for an agent
// type.
func AgentQuality(agentType string) float64 {
	if q, ok := agentQuality[strings.ToLower(agentType)]; ok {
		return q
	}
	return 0.85
}

// MedianScore returns the median of scores, 0 for none.
func MedianScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
