package live

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/signalnine/agentarena/internal/agent"
	"github.com/signalnine/agentarena/internal/environment"
	"github.com/signalnine/agentarena/internal/execution"
	"github.com/signalnine/agentarena/internal/llm"
)

type phase int

const (
	phaseFinished phase = iota
	phaseFailed
	phaseExhausted
	phaseCancelled
	phaseTimeout
)

// run is the state of one Engine.Run call.
type run struct {
	engine      *Engine
	spec        *execution.RunSpec
	executionID string
	start       time.Time
	usage       *llm.Recorder

	env       *environment.Environment
	driver    environment.Driver
	agent     *agent.Agent
	generator string
	steps     int
	lines     []string
	cleaned   bool
}

func (r *run) execute(ctx context.Context) (res *execution.RunResult) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("warning: live run %s panicked: %v", r.executionID, p)
			res = r.result(phaseFailed, fmt.Sprintf("execution panicked: %v", p), nil)
		}
	}()
	defer r.cleanup()

	if err := r.init(ctx); err != nil {
		r.log(fmt.Sprintf("Error: %v", err))
		return r.finish(phaseFailed, err.Error())
	}

	for r.steps < r.spec.MaxSteps {
		if p, msg, stop := r.interrupted(ctx); stop {
			return r.finish(p, msg)
		}
		r.steps++
		progress := float64(r.steps) / float64(r.spec.MaxSteps)
		step := r.steps
		last := fmt.Sprintf("Executing step %d", r.steps)
		r.engine.opts.Statuses.Update(r.spec.SubmissionID, execution.StatusUpdate{
			Progress: &progress, CurrentStep: &step, LastAction: &last,
		})

		obs := r.driver.Observe(ctx)
		act := r.agent.Decide(ctx, obs)
		if p, msg, stop := r.interrupted(ctx); stop {
			return r.finish(p, msg)
		}
		r.log(fmt.Sprintf("Step %d: %s", r.steps, act))

		switch act.Kind {
		case agent.KindError:
			r.log("Agent error: " + act.Message)
			return r.finish(phaseFailed, act.Message)
		case agent.KindFinish:
			r.log("Task completed successfully!")
			return r.finish(phaseFinished, "")
		}

		r.dispatch(ctx, act)
		if MeetsCriteria(r.spec.SuccessCriteria, r.driver.Observe(ctx).Text) {
			r.log("Success criteria met")
			return r.finish(phaseFinished, "")
		}
		r.pace(ctx)
	}
	r.log(fmt.Sprintf("Step budget of %d exhausted", r.spec.MaxSteps))
	return r.finish(phaseExhausted, "step budget exhausted")
}

func (r *run) init(ctx context.Context) error {
	opts := r.engine.opts
	env, err := opts.Provisioner.Provision(ctx, r.spec.EnvironmentKind, r.spec.EnvironmentConfig)
	if err != nil {
		return fmt.Errorf("provisioning environment: %w", err)
	}
	r.env = env
	r.driver = env.NewDriver()
	r.log("Task initialized: " + r.spec.TaskTitle)

	startURL := env.StartURL()
	if o := r.driver.Navigate(ctx, startURL); !o.Success {
		return execution.Errorf(execution.ErrExecution, "initial navigation to %s failed: %s", startURL, o.Error)
	}
	r.log("Navigated to initial URL: " + startURL)

	var gen llm.Generator
	if opts.NewGenerator != nil {
		gen = opts.NewGenerator(r.spec, r.usage)
	} else {
		gen = opts.Generators.New(llm.Options{
			Model:       r.spec.Model(),
			Credential:  r.spec.Credential,
			AgentConfig: r.spec.AgentConfig,
			Usage:       r.usage,
		})
	}
	if gen == nil {
		return execution.Errorf(execution.ErrConfiguration, "no text generator for agent type %s", r.spec.AgentType)
	}
	r.generator = gen.Name()

	instruction, _ := execution.ConfigString(r.spec.EnvironmentConfig, "instruction")
	r.agent = agent.New(gen, agent.ConfigFrom(r.spec.AgentConfig), agent.Task{
		Title:           r.spec.TaskTitle,
		Description:     r.spec.TaskDescription,
		Difficulty:      r.spec.TaskDifficulty,
		Environment:     env.Kind,
		Instruction:     instruction,
		SuccessCriteria: r.spec.SuccessCriteria,
	})
	return nil
}

// interrupted reports whether the run must stop before doing more work.
func (r *run) interrupted(ctx context.Context) (phase, string, bool) {
	switch {
	case r.engine.opts.Statuses.Cancelled(r.spec.SubmissionID):
		return phaseCancelled, "execution cancelled", true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return phaseTimeout, "execution timed out", true
	case ctx.Err() != nil:
		return phaseCancelled, "execution cancelled", true
	}
	return 0, "", false
}

func (r *run) dispatch(ctx context.Context, act agent.Action) {
	var o environment.Outcome
	switch act.Kind {
	case agent.KindClick:
		o = r.driver.Click(ctx, act.Selector)
	case agent.KindType:
		o = r.driver.Type(ctx, act.Selector, act.Text)
	case agent.KindNavigate:
		o = r.driver.Navigate(ctx, act.URL)
	case agent.KindSelect:
		o = r.driver.Select(ctx, act.Selector, act.Value)
	case agent.KindWait:
		d := act.Duration
		if d > r.engine.opts.MaxWait {
			d = r.engine.opts.MaxWait
		}
		if act.Selector != "" {
			if d <= 0 {
				d = 5 * time.Second
			}
			o = r.driver.WaitFor(ctx, act.Selector, d)
		} else {
			sleep(ctx, d)
			o = environment.Outcome{Action: "wait", Success: true}
		}
	default:
		r.log(fmt.Sprintf("Unknown action type: %s", act.Kind))
		return
	}
	last := act.String()
	r.engine.opts.Statuses.Update(r.spec.SubmissionID, execution.StatusUpdate{LastAction: &last})
	if !o.Success {
		r.log(fmt.Sprintf("Action %s failed: %s", o.Action, o.Error))
	}
}

func (r *run) pace(ctx context.Context) {
	sleep(ctx, r.engine.opts.StepDelay)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (r *run) log(line string) {
	r.lines = append(r.lines, line)
	r.engine.opts.Statuses.Update(r.spec.SubmissionID, execution.StatusUpdate{Log: line})
}

// cleanup releases the driver, the agent and the environment. It runs once
// per run whatever the exit path.
func (r *run) cleanup() {
	if r.cleaned {
		return
	}
	r.cleaned = true
	defer func() {
		if p := recover(); p != nil {
			log.Printf("warning: cleanup of run %s panicked: %v", r.executionID, p)
		}
	}()
	if r.driver != nil {
		if err := r.driver.Close(); err != nil {
			log.Printf("warning: closing driver for run %s: %v", r.executionID, err)
		}
	}
	if r.agent != nil {
		r.agent.Reset()
	}
	if r.env != nil {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := r.env.Release(ctx); err != nil {
			log.Printf("warning: releasing environment for run %s: %v", r.executionID, err)
		}
	}
}

// finish builds the result while the driver is still open so its state
// and history can be captured.
func (r *run) finish(p phase, msg string) *execution.RunResult {
	data := map[string]any{}
	if r.driver != nil {
		data["environment_state"] = r.driver.State()
		data["action_history"] = r.driver.History()
	}
	return r.result(p, msg, data)
}

func (r *run) result(p phase, msg string, data map[string]any) *execution.RunResult {
	if data == nil {
		data = map[string]any{}
	}
	res := &execution.RunResult{
		ExecutionID:      r.executionID,
		StepsTaken:       r.steps,
		TotalTimeSeconds: execution.ElapsedSeconds(r.start),
		ExecutionLog:     append([]string(nil), r.lines...),
		ResultData:       data,
	}
	switch p {
	case phaseFinished:
		res.Status, res.SuccessRate = execution.StatusCompleted, 1.0
	case phaseFailed:
		res.Status, res.ErrorMessage = execution.StatusFailed, msg
		data["error"] = msg
	case phaseExhausted:
		res.Status, res.SuccessRate, res.ErrorMessage = execution.StatusFailed, 0.5, msg
		data["exhausted"] = true
	case phaseCancelled:
		res.Status, res.ErrorMessage = execution.StatusCancelled, msg
	case phaseTimeout:
		res.Status, res.ErrorMessage = execution.StatusTimeout, msg
	}
	data["execution_status"] = string(res.Status)

	records := r.usage.Records()
	in, out := llm.TotalUsage(records)
	cost := 0.0
	for _, rec := range records {
		cost += r.engine.opts.Pricing.Cost(rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens)
	}
	data["token_usage"] = map[string]any{"input_tokens": in, "output_tokens": out, "calls": len(records)}
	data["estimated_cost_usd"] = cost
	data["environment"] = r.spec.EnvironmentKind
	if r.generator != "" {
		data["generator"] = r.generator
	}
	return res
}

// MeetsCriteria reports whether at least half of the criteria occur in
// text, ignoring case. An empty list never matches.
func MeetsCriteria(criteria []string, text string) bool {
	if len(criteria) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	met := 0
	for _, c := range criteria {
		if strings.Contains(lower, strings.ToLower(c)) {
			met++
		}
	}
	return met*2 >= len(criteria)
}
