package leaderboard_test

import (
	"testing"

	"github.com/signalnine/agentarena/internal/leaderboard"
)

func TestDifficultyMultiplier(t *testing.T) {
	tests := map[string]float64{"EASY": 1, "MEDIUM": 1.2, "hard": 1.5, "EXPERT": 2, "LEGENDARY": 1, "": 1}
	for d, want := range tests {
		if got := leaderboard.DifficultyMultiplier(d); got != want {
			t.Errorf("DifficultyMultiplier(%q) = %v, want %v", d, got, want)
		}
	}
}

func TestEfficiencyFactor(t *testing.T) {
	tests := []struct {
		time, want float64
	}{
		{0, 1.5},
		{1, 1.5},
		{40, 1.5},
		{60, 1},
		{100, 0.6},
		{120, 0.5},
		{1000, 0.5},
	}
	for _, tt := range tests {
		if got := leaderboard.EfficiencyFactor(tt.time); got != tt.want {
			t.Errorf("EfficiencyFactor(%v) = %v, want %v", tt.time, got, tt.want)
		}
	}
}

func TestCompositeScore(t *testing.T) {
	tests := []struct {
		name            string
		base, acc, time float64
		difficulty      string
		want            float64
	}{
		{"zero", 0, 0, 0, "EASY", 0},
		{"time term caps at ten", 0, 0, 500, "EASY", 1},
		{"perfect easy", 100, 1, 100, "EASY", 91},
		{"expert doubles", 50, 0.5, 0, "EXPERT", 90},
		{"rounds to a tenth", 33.3, 0.333, 7, "MEDIUM", 36},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := leaderboard.CompositeScore(tt.base, tt.acc, tt.time, tt.difficulty); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAgentQuality(t *testing.T) {
	tests := map[string]float64{"gpt-4": 0.95, "GPT-3.5-Turbo": 0.85, "claude-3": 0.92, "claude-2": 0.88, "gemini": 0.90, "mock": 0.75, "llama": 0.85}
	for typ, want := range tests {
		if got := leaderboard.AgentQuality(typ); got != want {
			t.Errorf("AgentQuality(%q) = %v, want %v", typ, got, want)
		}
	}
}

func TestMedianScore(t *testing.T) {
	if got := leaderboard.MedianScore(nil); got != 0 {
		t.Errorf("empty: %v", got)
	}
	if got := leaderboard.MedianScore([]float64{3, 1, 2}); got != 2 {
		t.Errorf("odd: %v", got)
	}
	if got := leaderboard.MedianScore([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Errorf("even: %v", got)
	}
}
