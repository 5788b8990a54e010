// Package simulated implements a backend that fabricates plausible run
// results without touching any environment or model.
package simulated

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/agentarena/internal/execution"
)

var (
	topTier   = map[string]bool{"gpt-4": true, "gpt-4o": true, "gpt-4-turbo": true, "claude-3-opus": true, "claude-3-5-sonnet": true}
	lowerTier = map[string]bool{"gpt-3.5-turbo": true, "claude-instant": true, "mock": true}
)

var failureReasons = []string{
	"Agent failed to complete the task",
	"Configuration error in agent setup",
	"Task execution error",
	"Agent decision logic error",
}

var stepPhrases = []string{
	"Agent analyzing current state",
	"Agent performing action",
	"Agent evaluating result",
	"Agent planning next action",
}

// Options configure an Engine. Zero delays disable pacing.
type Options struct {
	Rand     *rand.Rand
	Statuses *execution.StatusTable
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultOptions paces each run by 100-500ms.
func DefaultOptions() Options {
	return Options{MinDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
}

// Engine is the simulated backend. It is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rng      *rand.Rand
	statuses *execution.StatusTable
	minDelay time.Duration
	maxDelay time.Duration
}

func New(opts Options) *Engine {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	statuses := opts.Statuses
	if statuses == nil {
		statuses = execution.NewStatusTable()
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	return &Engine{rng: rng, statuses: statuses, minDelay: opts.MinDelay, maxDelay: opts.MaxDelay}
}

func (e *Engine) Name() string { return "simulated" }

// draws holds every random value one run needs, taken under a single lock.
type draws struct {
	execTime    float64
	steps       int
	successRate float64
	verdict     float64
	delay       time.Duration
	stepPhrase  []int
	score       float64
	efficiency  float64
	accuracy    float64
	metrics     [3]float64
	errorCount  int
	progress    float64
	reason      string
}

func (e *Engine) draw() draws {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.rng
	d := draws{
		execTime:    uniform(r, 5, 300),
		steps:       1 + r.Intn(50),
		successRate: uniform(r, 0.3, 0.95),
		verdict:     r.Float64(),
	}
	if e.maxDelay > 0 {
		d.delay = e.minDelay + time.Duration(r.Int63n(int64(e.maxDelay-e.minDelay)+1))
	}
	for i := 0; i < 9; i++ {
		d.stepPhrase = append(d.stepPhrase, r.Intn(len(stepPhrases)))
	}
	d.metrics = [3]float64{r.Float64(), r.Float64(), r.Float64()}
	d.score = r.Float64()
	d.efficiency = r.Float64()
	d.accuracy = r.Float64()
	d.errorCount = 1 + r.Intn(5)
	d.progress = uniform(r, 10, 80)
	d.reason = failureReasons[r.Intn(len(failureReasons))]
	return d
}

func uniform(r *rand.Rand, lo, hi float64) float64 { return lo + r.Float64()*(hi-lo) }

func scale(u, lo, hi float64) float64 { return lo + u*(hi-lo) }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// AdjustedRate applies the model tier and environment complexity
// multipliers to a base success rate and clamps the result to [0,1].
func AdjustedRate(base float64, spec *execution.RunSpec) float64 {
	rate := base
	model := spec.Model()
	switch {
	case topTier[model]:
		rate *= 1.1
	case lowerTier[model]:
		rate *= 0.9
	}
	switch spec.EnvironmentConfig["complexity"] {
	case "high":
		rate *= 0.8
	case "low":
		rate *= 1.2
	}
	return math.Max(0, math.Min(1, rate))
}

func (e *Engine) Run(ctx context.Context, spec *execution.RunSpec) (*execution.RunResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	executionID := uuid.NewString()
	e.statuses.Begin(spec.SubmissionID, executionID)

	d := e.draw()
	if d.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(d.delay):
		}
	}
	if stopped := e.stopped(ctx, spec.SubmissionID, executionID); stopped != nil {
		return stopped, nil
	}

	rate := AdjustedRate(d.successRate, spec)
	status := execution.StatusFailed
	if d.verdict < rate {
		status = execution.StatusCompleted
	}

	res := &execution.RunResult{
		Status:           status,
		ExecutionID:      executionID,
		StepsTaken:       d.steps,
		TotalTimeSeconds: d.execTime,
		SuccessRate:      rate,
		ExecutionLog:     e.executionLog(spec, d, status),
		ResultData:       resultData(spec, d, status, rate),
	}
	if status == execution.StatusFailed {
		res.ErrorMessage = d.reason
	}

	step := d.steps
	e.statuses.Update(spec.SubmissionID, execution.StatusUpdate{CurrentStep: &step})
	e.statuses.Finish(spec.SubmissionID, status, res.ErrorMessage)
	log.Printf("simulated run %s for submission %s: %s", executionID, spec.SubmissionID, status)
	return res, nil
}

// stopped returns the result for a run that was cancelled or ran out of
// time while pacing, or nil to continue.
func (e *Engine) stopped(ctx context.Context, submissionID, executionID string) *execution.RunResult {
	var status execution.Status
	switch {
	case e.statuses.Cancelled(submissionID):
		status = execution.StatusCancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = execution.StatusTimeout
	case ctx.Err() != nil:
		status = execution.StatusCancelled
	default:
		return nil
	}
	msg := "execution cancelled"
	if status == execution.StatusTimeout {
		msg = "Execution timed out before completion"
	}
	e.statuses.Finish(submissionID, status, msg)
	return &execution.RunResult{
		Status:           status,
		ExecutionID:      executionID,
		TotalTimeSeconds: 0.001,
		ErrorMessage:     msg,
		ExecutionLog:     []string{"Starting playground execution", msg},
		ResultData:       map[string]any{"execution_status": string(status)},
	}
}

func (e *Engine) executionLog(spec *execution.RunSpec, d draws, status execution.Status) []string {
	agentCfg, _ := json.Marshal(spec.AgentConfig)
	envCfg, _ := json.Marshal(spec.EnvironmentConfig)
	lines := []string{
		"Starting playground execution",
		fmt.Sprintf("Agent configuration loaded: %s", agentCfg),
		fmt.Sprintf("Environment configuration loaded: %s", envCfg),
		"Initializing environment",
		"Agent beginning task execution",
	}
	for i := 1; i <= d.steps && i <= 9; i++ {
		lines = append(lines, fmt.Sprintf("Step %d: %s", i, stepPhrases[d.stepPhrase[i-1]]))
	}
	if status == execution.StatusCompleted {
		lines = append(lines, "Task completed successfully")
	} else {
		lines = append(lines, "Task execution failed")
	}
	return append(lines, "Playground execution finished")
}

func resultData(spec *execution.RunSpec, d draws, status execution.Status, rate float64) map[string]any {
	data := map[string]any{
		"agent_id":         spec.AgentID,
		"task_id":          spec.TaskID,
		"execution_status": string(status),
		"success_rate":     round(rate, 3),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"environment":      spec.EnvironmentKind,
	}
	if status == execution.StatusCompleted {
		data["score"] = round(scale(d.score, 70, 100), 1)
		data["efficiency"] = round(scale(d.efficiency, 0.7, 1.0), 3)
		data["accuracy"] = round(scale(d.accuracy, 0.8, 1.0), 3)
		data["completion_metrics"] = map[string]any{
			"steps_efficiency": round(scale(d.metrics[0], 0.6, 0.9), 2),
			"time_efficiency":  round(scale(d.metrics[1], 0.7, 0.95), 2),
			"error_recovery":   round(scale(d.metrics[2], 0.5, 1.0), 2),
		}
		return data
	}
	data["score"] = round(scale(d.score, 0, 50), 1)
	data["efficiency"] = round(scale(d.efficiency, 0.1, 0.6), 3)
	data["accuracy"] = round(scale(d.accuracy, 0, 0.7), 3)
	data["failure_metrics"] = map[string]any{
		"error_count":         d.errorCount,
		"progress_percentage": round(d.progress, 1),
		"failure_reason":      d.reason,
	}
	return data
}

func (e *Engine) Status(submissionID string) (*execution.RunStatus, bool) {
	return e.statuses.Get(submissionID)
}

func (e *Engine) Cancel(submissionID string) bool {
	return e.statuses.Cancel(submissionID)
}

// Health always succeeds.
func (e *Engine) Health(context.Context) bool { return true }
