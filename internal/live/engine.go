// Package live runs a decision agent step by step against a provisioned
// environment.
package live

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/agentarena/internal/environment"
	"github.com/signalnine/agentarena/internal/execution"
	"github.com/signalnine/agentarena/internal/llm"
	"github.com/signalnine/agentarena/internal/pricing"
)

const (
	defaultStepDelay = 500 * time.Millisecond
	defaultMaxWait   = 10 * time.Second
	releaseTimeout   = 30 * time.Second
)

// Options configure an Engine. NewGenerator overrides the provider factory
// when set.
type Options struct {
	Provisioner  *environment.Provisioner
	Generators   *llm.Factory
	Pricing      *pricing.Table
	Statuses     *execution.StatusTable
	StepDelay    time.Duration
	MaxWait      time.Duration
	NewGenerator func(spec *execution.RunSpec, usage *llm.Recorder) llm.Generator
}

// DefaultOptions paces steps by half a second.
func DefaultOptions() Options {
	return Options{StepDelay: defaultStepDelay, MaxWait: defaultMaxWait}
}

// Engine is the live backend. Each Run is independent; the engine itself
// is safe for concurrent use.
type Engine struct {
	opts Options
}

func New(opts Options) *Engine {
	if opts.Provisioner == nil {
		opts.Provisioner = environment.NewProvisioner(nil)
	}
	if opts.Generators == nil {
		opts.Generators = &llm.Factory{}
	}
	if opts.Pricing == nil {
		opts.Pricing = pricing.Default()
	}
	if opts.Statuses == nil {
		opts.Statuses = execution.NewStatusTable()
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = defaultMaxWait
	}
	return &Engine{opts: opts}
}

func (e *Engine) Name() string { return "live" }

// Run executes spec to completion. Every failure inside the run is
// reported in the result.
func (e *Engine) Run(ctx context.Context, spec *execution.RunSpec) (*execution.RunResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	executionID := uuid.NewString()
	e.opts.Statuses.Begin(spec.SubmissionID, executionID)

	r := &run{
		engine:      e,
		spec:        spec,
		executionID: executionID,
		start:       time.Now(),
		usage:       &llm.Recorder{},
	}
	res := r.execute(ctx)
	step := res.StepsTaken
	e.opts.Statuses.Update(spec.SubmissionID, execution.StatusUpdate{CurrentStep: &step})
	e.opts.Statuses.Finish(spec.SubmissionID, res.Status, res.ErrorMessage)
	return res, nil
}

func (e *Engine) Status(submissionID string) (*execution.RunStatus, bool) {
	return e.opts.Statuses.Get(submissionID)
}

// Cancel flags the run; the loop stops before its next step.
func (e *Engine) Cancel(submissionID string) bool {
	return e.opts.Statuses.Cancel(submissionID)
}

// Health requires working environment provisioning and at least one
// healthy text-generation provider.
func (e *Engine) Health(ctx context.Context) bool {
	return e.opts.Provisioner.Health(ctx) && e.opts.Generators.Healthy(ctx)
}
