package submission

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/agentarena/internal/catalog"
	"github.com/signalnine/agentarena/internal/execution"
)

const (
	defaultWatchdogGrace = 5 * time.Second
	defaultPollInterval  = 50 * time.Millisecond
)

// SubmitRequest asks for one agent to be evaluated on one task.
type SubmitRequest struct {
	AgentID   string         `json:"agent_id"`
	TaskID    string         `json:"task_id"`
	RunConfig map[string]any `json:"run_config,omitempty"`
}

// Options configure a Manager. Statuses must be the table the selector's
// backends report into so Status and Cancel reach in-flight runs.
type Options struct {
	Catalog  catalog.Catalog
	Store    Store
	Selector *execution.Selector
	Statuses *execution.StatusTable
	Defaults Defaults
	Getenv   func(string) string

	// WatchdogGrace is how long past its deadline a run may take before the
	// manager gives up on it.
	WatchdogGrace time.Duration
	PollInterval  time.Duration
}

// Manager accepts submissions and runs each one on its own goroutine.
type Manager struct {
	opts Options

	mu     sync.Mutex
	runs   map[string]*inflight
	closed bool
	wg     sync.WaitGroup
}

type inflight struct {
	cancel  context.CancelFunc
	backend execution.Backend
}

func NewManager(opts Options) *Manager {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Statuses == nil {
		opts.Statuses = execution.NewStatusTable()
	}
	if opts.WatchdogGrace <= 0 {
		opts.WatchdogGrace = defaultWatchdogGrace
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Manager{opts: opts, runs: map[string]*inflight{}}
}

// Store exposes the underlying store for read-side consumers.
func (m *Manager) Store() Store { return m.opts.Store }

// Submit validates the request, persists a PENDING record and starts the
// run. Unknown agents or tasks return ErrNotFound; an agent owned by another
// user returns ErrValidation.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest, userID string) (*Record, error) {
	if req.AgentID == "" || req.TaskID == "" {
		return nil, execution.Errorf(execution.ErrValidation, "agent_id and task_id are required")
	}
	agent, err := m.opts.Catalog.Agent(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	if agent.OwnerID != userID {
		return nil, execution.Errorf(execution.ErrValidation, "agent %s does not belong to user %s", agent.ID, userID)
	}
	task, err := m.opts.Catalog.Task(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}

	runConfig := copyMap(req.RunConfig)
	runKey, _ := execution.ConfigString(runConfig, CredentialKey)
	delete(runConfig, CredentialKey)

	rec := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		AgentID:   agent.ID,
		TaskID:    task.ID,
		Status:    StatusPending,
		RunConfig: runConfig,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, execution.Errorf(execution.ErrExecution, "submission manager is closed")
	}
	m.wg.Add(1)
	m.mu.Unlock()

	if err := m.opts.Store.Create(ctx, rec); err != nil {
		m.wg.Done()
		return nil, fmt.Errorf("storing submission: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.runs[rec.ID] = &inflight{cancel: cancel}
	m.mu.Unlock()

	go m.execute(runCtx, rec.Clone(), agent, task, runKey)
	return rec, nil
}

func (m *Manager) execute(ctx context.Context, rec *Record, agent *catalog.Agent, task *catalog.Task, runKey string) {
	defer m.wg.Done()
	defer m.release(rec.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("warning: submission %s panicked: %v", rec.ID, r)
			m.fail(rec.ID, fmt.Sprintf("execution panicked: %v", r))
		}
	}()

	if _, err := m.opts.Store.Mutate(context.Background(), rec.ID, func(r *Record) error {
		return r.Advance(StatusProcessing)
	}); err != nil {
		log.Printf("warning: submission %s: marking processing: %v", rec.ID, err)
		m.fail(rec.ID, fmt.Sprintf("could not start execution: %v", err))
		return
	}

	spec := BuildRunSpec(rec, agent, task, m.opts.Defaults, runKey, m.opts.Getenv)
	timeout := time.Duration(spec.TimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backend := m.opts.Selector.Select(runCtx)
	m.mu.Lock()
	if r, ok := m.runs[rec.ID]; ok {
		r.backend = backend
	}
	m.mu.Unlock()
	if runCtx.Err() != nil {
		m.fail(rec.ID, "execution cancelled")
		return
	}

	type outcome struct {
		res *execution.RunResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: execution.Errorf(execution.ErrExecution, "backend %s panicked: %v", backend.Name(), r)}
			}
		}()
		res, err := backend.Run(runCtx, spec)
		done <- outcome{res: res, err: err}
	}()

	watchdog := time.NewTimer(timeout + m.opts.WatchdogGrace)
	defer watchdog.Stop()

	select {
	case o := <-done:
		m.apply(rec.ID, o.res, o.err)
	case <-watchdog.C:
		log.Printf("warning: submission %s overran its %ds deadline", rec.ID, spec.TimeoutSeconds)
		backend.Cancel(rec.ID)
		cancel()
		m.fail(rec.ID, fmt.Sprintf("execution timed out after %d seconds", spec.TimeoutSeconds))
	}
}

// apply persists a backend result. Only COMPLETED maps to COMPLETED.
func (m *Manager) apply(id string, res *execution.RunResult, err error) {
	if err != nil {
		m.fail(id, err.Error())
		return
	}
	if res == nil {
		m.fail(id, "backend returned no result")
		return
	}
	to := StatusFailed
	if res.Status == execution.StatusCompleted {
		to = StatusCompleted
	}
	_, err = m.opts.Store.Mutate(context.Background(), id, func(r *Record) error {
		if err := r.Advance(to); err != nil {
			return err
		}
		r.ExecutionID = res.ExecutionID
		r.StepsTaken = res.StepsTaken
		r.ExecutionTimeSeconds = res.TotalTimeSeconds
		r.SuccessRate = res.SuccessRate
		r.ExecutionLog = append([]string(nil), res.ExecutionLog...)
		r.ResultData = copyMap(res.ResultData)
		r.ErrorMessage = res.ErrorMessage
		return nil
	})
	if err != nil {
		log.Printf("warning: submission %s: storing result: %v", id, err)
	}
}

func (m *Manager) fail(id, msg string) {
	_, err := m.opts.Store.Mutate(context.Background(), id, func(r *Record) error {
		if err := r.Advance(StatusFailed); err != nil {
			return err
		}
		r.ErrorMessage = msg
		return nil
	})
	if err != nil {
		log.Printf("warning: submission %s: marking failed: %v", id, err)
	}
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	r, ok := m.runs[id]
	delete(m.runs, id)
	m.mu.Unlock()
	if ok {
		r.cancel()
	}
}

// Get returns the stored record.
func (m *Manager) Get(ctx context.Context, id string) (*Record, error) {
	return m.opts.Store.Get(ctx, id)
}

// Status returns live progress when a backend tracks the run, otherwise a
// view derived from the stored record.
func (m *Manager) Status(ctx context.Context, id string) (*execution.RunStatus, error) {
	if st, ok := m.opts.Statuses.Get(id); ok {
		return st, nil
	}
	rec, err := m.opts.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.RunStatus(), nil
}

// Cancel stops an in-flight run. It reports false when the submission is
// not running.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	r, ok := m.runs[id]
	var backend execution.Backend
	if ok {
		backend = r.backend
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	if rec, err := m.opts.Store.Get(context.Background(), id); err == nil && rec.Status.Terminal() {
		return false
	}
	m.opts.Statuses.Cancel(id)
	if backend != nil {
		backend.Cancel(id)
	}
	r.cancel()
	return true
}

// Wait polls until the submission reaches a terminal status or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (*Record, error) {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		rec, err := m.opts.Store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec.Status.Terminal() {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) ListByTask(ctx context.Context, taskID string) ([]*Record, error) {
	return m.opts.Store.ListByTask(ctx, taskID)
}

func (m *Manager) ListByUser(ctx context.Context, userID string) ([]*Record, error) {
	return m.opts.Store.ListByUser(ctx, userID)
}

// ListByAgent returns an agent's submissions in creation order.
func (m *Manager) ListByAgent(ctx context.Context, agentID string) ([]*Record, error) {
	all, err := m.opts.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, r := range all {
		if r.AgentID == agentID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Close rejects new submissions and waits for in-flight runs, or until ctx
// ends.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
