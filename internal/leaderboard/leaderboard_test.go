package leaderboard_test

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/signalnine/agentarena/internal/catalog"
	"github.com/signalnine/agentarena/internal/execution"
	"github.com/signalnine/agentarena/internal/leaderboard"
	"github.com/signalnine/agentarena/internal/submission"
)

type seeded struct {
	id, agent        string
	successRate, acc float64
	timeTaken        float64
	steps            int
	status           submission.Status
}

func setup(t *testing.T, difficulty string, subs []seeded) (*leaderboard.Engine, *submission.MemoryStore) {
	t.Helper()
	cat := catalog.NewStatic(
		[]*catalog.Agent{
			{ID: "A", Name: "Alpha", Type: "gpt-4", OwnerID: "u"},
			{ID: "B", Name: "Bravo", Type: "claude-3", OwnerID: "u"},
			{ID: "C", Name: "Charlie", Type: "mock", OwnerID: "u"},
		},
		[]*catalog.Task{{ID: "task", Title: "Task", Difficulty: difficulty, EnvironmentKind: "omnizon"}},
	)
	store := submission.NewMemoryStore()
	ctx := context.Background()
	for _, s := range subs {
		status := s.status
		if status == "" {
			status = submission.StatusCompleted
		}
		rec := &submission.Record{
			ID:                   s.id,
			AgentID:              s.agent,
			TaskID:               "task",
			Status:               status,
			SuccessRate:          s.successRate,
			ExecutionTimeSeconds: s.timeTaken,
			StepsTaken:           s.steps,
			ResultData:           map[string]any{"accuracy": s.acc},
		}
		if err := store.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	return leaderboard.New(cat, store, rand.New(rand.NewSource(1))), store
}

func TestScenarioE(t *testing.T) {
	eng, _ := setup(t, "MEDIUM", []seeded{
		{id: "sA", agent: "A", successRate: 0.8, acc: 0.6, timeTaken: 100, steps: 12},
		{id: "sB", agent: "B", successRate: 0.95, acc: 0.7, timeTaken: 50, steps: 8},
		{id: "sC", agent: "C", successRate: 0.7, acc: 0.5, timeTaken: 100, steps: 20},
	})
	entries, err := eng.Build(context.Background(), "task")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := map[string]struct {
		score float64
		rank  int
	}{
		"sA": {80.4, 2},
		"sB": {94.2, 1},
		"sC": {69.6, 3},
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for _, e := range entries {
		w := want[e.SubmissionID]
		if e.Score != w.score || e.Rank != w.rank {
			t.Errorf("%s: got score %.1f rank %d, want %.1f rank %d", e.SubmissionID, e.Score, e.Rank, w.score, w.rank)
		}
		if e.Metrics.DifficultyFactor != 1.2 {
			t.Errorf("%s: difficulty factor %v", e.SubmissionID, e.Metrics.DifficultyFactor)
		}
	}
	if entries[0].SubmissionID != "sB" || entries[0].AgentName != "Bravo" || entries[0].ModelID != "claude-3" {
		t.Errorf("unexpected leader %+v", entries[0])
	}
	if entries[0].Metrics.Efficiency != 1.2 {
		t.Errorf("expected efficiency 60/50=1.2, got %v", entries[0].Metrics.Efficiency)
	}
	if entries[0].Metrics.StepsTaken != 8 {
		t.Errorf("expected steps 8, got %d", entries[0].Metrics.StepsTaken)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	eng, _ := setup(t, "HARD", []seeded{
		{id: "s1", agent: "A", successRate: 0.5, acc: 0.5, timeTaken: 30},
		{id: "s2", agent: "B"},
		{id: "s3", agent: "C", status: submission.StatusFailed},
	})
	ctx := context.Background()
	first, err := eng.Build(ctx, "task")
	if err != nil {
		t.Fatal(err)
	}
	second, err := eng.Build(ctx, "task")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("leaderboard changed between builds:\n%+v\n%+v", first, second)
	}
}

func TestRanksArePermutation(t *testing.T) {
	var subs []seeded
	agents := []string{"A", "B", "C"}
	r := rand.New(rand.NewSource(9))
	for i := 0; i < 30; i++ {
		subs = append(subs, seeded{
			id:          string(rune('a'+i%26)) + string(rune('0'+i/26)),
			agent:       agents[i%3],
			successRate: 0.05 + r.Float64()*0.9,
			acc:         r.Float64(),
			timeTaken:   1 + r.Float64()*200,
		})
	}
	eng, _ := setup(t, "EXPERT", subs)
	entries, err := eng.Build(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(subs) {
		t.Fatalf("expected %d entries, got %d", len(subs), len(entries))
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			t.Fatalf("rank %d at position %d", e.Rank, i)
		}
		if i > 0 && entries[i-1].Score < e.Score {
			t.Fatalf("scores not descending at %d", i)
		}
	}
}

func TestTiesKeepSubmissionOrder(t *testing.T) {
	eng, _ := setup(t, "EASY", []seeded{
		{id: "first", agent: "A", successRate: 0.5, acc: 0.5, timeTaken: 60},
		{id: "second", agent: "B", successRate: 0.5, acc: 0.5, timeTaken: 60},
	})
	entries, _ := eng.Build(context.Background(), "task")
	if entries[0].SubmissionID != "first" || entries[1].SubmissionID != "second" {
		t.Errorf("tie reordered: %s, %s", entries[0].SubmissionID, entries[1].SubmissionID)
	}
}

func TestSynthesisPersistsMetricsOnly(t *testing.T) {
	eng, store := setup(t, "MEDIUM", []seeded{
		{id: "empty", agent: "C", status: submission.StatusFailed, steps: 3},
	})
	ctx := context.Background()
	entries, err := eng.Build(ctx, "task")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	e := entries[0]
	q := leaderboard.AgentQuality("mock")
	if e.SuccessRate < 0.60*q || e.SuccessRate > 0.95*q {
		t.Errorf("synthesized success rate %v outside quality band", e.SuccessRate)
	}
	if e.TimeTaken < 15*(1.5-q) || e.TimeTaken > 120*(1.5-q) {
		t.Errorf("synthesized time %v outside band", e.TimeTaken)
	}

	rec, _ := store.Get(ctx, "empty")
	if rec.Status != submission.StatusFailed {
		t.Errorf("synthesis changed status to %s", rec.Status)
	}
	if rec.SuccessRate != e.SuccessRate || rec.ExecutionTimeSeconds != e.TimeTaken {
		t.Error("synthesized metrics not persisted")
	}
	if _, ok := rec.ResultData["completion_metrics"]; !ok {
		t.Error("expected completion metrics in result data")
	}
}

func TestBuildSkipsUnknownAgents(t *testing.T) {
	eng, _ := setup(t, "MEDIUM", []seeded{
		{id: "s1", agent: "A", successRate: 0.5, timeTaken: 10},
		{id: "ghost", agent: "deleted", successRate: 0.9, timeTaken: 10},
	})
	entries, _ := eng.Build(context.Background(), "task")
	if len(entries) != 1 || entries[0].SubmissionID != "s1" {
		t.Errorf("expected only s1, got %+v", entries)
	}
}

func TestBuildUnknownTask(t *testing.T) {
	eng, _ := setup(t, "MEDIUM", nil)
	if _, err := eng.Build(context.Background(), "nope"); !errors.Is(err, execution.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	entries, err := eng.Build(context.Background(), "task")
	if err != nil || len(entries) != 0 {
		t.Errorf("expected empty leaderboard, got %v, %v", entries, err)
	}
}
