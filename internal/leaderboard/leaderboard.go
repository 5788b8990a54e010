// Package leaderboard ranks a task's submissions with a difficulty-scaled
// rubric.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/signalnine/agentarena/internal/catalog"
	"github.com/signalnine/agentarena/internal/submission"
)

// Entry is one ranked submission.
type Entry struct {
	Rank         int       `json:"rank"`
	SubmissionID string    `json:"submissionId"`
	AgentID      string    `json:"agentId"`
	AgentName    string    `json:"agentName"`
	ModelID      string    `json:"modelId"`
	TaskID       string    `json:"taskId"`
	Score        float64   `json:"score"`
	TimeTaken    float64   `json:"timeTaken"`
	Accuracy     float64   `json:"accuracy"`
	SuccessRate  float64   `json:"successRate"`
	SubmittedAt  time.Time `json:"submittedAt"`
	Metrics      Metrics   `json:"metrics"`
}

type Metrics struct {
	Efficiency       float64 `json:"efficiency"`
	DifficultyFactor float64 `json:"difficulty_factor"`
	StepsTaken       int     `json:"steps_taken"`
}

// Engine builds leaderboards on demand from stored submissions.
type Engine struct {
	catalog catalog.Catalog
	store   submission.Store

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an engine. A nil rng is seeded from the clock.
func New(cat catalog.Catalog, store submission.Store, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{catalog: cat, store: store, rng: rng}
}

var errHasData = errors.New("submission already has metrics")

// Build ranks every submission for taskID. Submissions whose agent is no
// longer registered are left out. Submissions without any metrics get
// synthesized ones, which are persisted so later builds agree.
func (e *Engine) Build(ctx context.Context, taskID string) ([]Entry, error) {
	task, err := e.catalog.Task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	records, err := e.store.ListByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing submissions for task %s: %w", taskID, err)
	}

	mult := DifficultyMultiplier(task.Difficulty)
	agents := map[string]*catalog.Agent{}
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		agent, ok := agents[rec.AgentID]
		if !ok {
			a, err := e.catalog.Agent(ctx, rec.AgentID)
			if err != nil {
				agents[rec.AgentID] = nil
				continue
			}
			agents[rec.AgentID], agent = a, a
		}
		if agent == nil {
			continue
		}

		if rec.SuccessRate == 0 && rec.ExecutionTimeSeconds == 0 {
			rec = e.synthesize(ctx, rec, agent)
		}

		base := rec.SuccessRate * 100
		timeTaken := rec.ExecutionTimeSeconds
		accuracy, _ := number(rec.ResultData["accuracy"])

		entries = append(entries, Entry{
			SubmissionID: rec.ID,
			AgentID:      rec.AgentID,
			AgentName:    agent.Name,
			ModelID:      agent.Type,
			TaskID:       taskID,
			Score:        CompositeScore(base, accuracy, timeTaken, task.Difficulty),
			TimeTaken:    timeTaken,
			Accuracy:     accuracy,
			SuccessRate:  rec.SuccessRate,
			SubmittedAt:  rec.CreatedAt,
			Metrics: Metrics{
				Efficiency:       round2(EfficiencyFactor(timeTaken)),
				DifficultyFactor: mult,
				StepsTaken:       rec.StepsTaken,
			},
		})
	}

	Rank(entries)
	return entries, nil
}

// Rank orders entries by descending score and numbers them from 1. Equal
// scores keep their incoming order.
func Rank(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// synthesize fills in plausible metrics for a submission that has none,
// weighted by the agent's quality prior. Only metric fields are written;
// the status is left alone. If real metrics landed in the meantime they
// are used instead.
func (e *Engine) synthesize(ctx context.Context, rec *submission.Record, agent *catalog.Agent) *submission.Record {
	q := AgentQuality(agent.Type)
	e.mu.Lock()
	base := uniform(e.rng, 60, 95) * q
	timeTaken := uniform(e.rng, 15, 120) * (1.5 - q)
	accuracy := uniform(e.rng, 0.7, 0.95) * q
	efficiency := uniform(e.rng, 0.7, 0.9) * q
	completion := map[string]any{
		"steps_efficiency": uniform(e.rng, 0.6, 0.9) * q,
		"time_efficiency":  uniform(e.rng, 0.7, 0.95) * q,
		"error_recovery":   uniform(e.rng, 0.5, 1.0) * q,
	}
	e.mu.Unlock()

	updated, err := e.store.Mutate(ctx, rec.ID, func(r *submission.Record) error {
		if r.SuccessRate != 0 || r.ExecutionTimeSeconds != 0 {
			return errHasData
		}
		r.SuccessRate = base / 100
		r.ExecutionTimeSeconds = timeTaken
		if r.ResultData == nil {
			r.ResultData = map[string]any{}
		}
		r.ResultData["accuracy"] = accuracy
		r.ResultData["efficiency"] = efficiency
		r.ResultData["completion_metrics"] = completion
		return nil
	})
	switch {
	case err == nil:
		return updated
	case errors.Is(err, errHasData):
		if fresh, err := e.store.Get(ctx, rec.ID); err == nil {
			return fresh
		}
	default:
		log.Printf("warning: persisting synthesized metrics for submission %s: %v", rec.ID, err)
	}
	// Fall back to the unsaved values so this build still ranks the entry.
	c := rec.Clone()
	c.SuccessRate = base / 100
	c.ExecutionTimeSeconds = timeTaken
	if c.ResultData == nil {
		c.ResultData = map[string]any{}
	}
	c.ResultData["accuracy"] = accuracy
	return c
}

func uniform(r *rand.Rand, lo, hi float64) float64 { return lo + r.Float64()*(hi-lo) }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// number reads a numeric value decoded from JSON or set in Go.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
