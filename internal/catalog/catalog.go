// Package catalog resolves agents and tasks for submissions.
package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/signalnine/agentarena/internal/config"
	"github.com/signalnine/agentarena/internal/execution"
)

// Agent is a registered agent definition.
type Agent struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"owner_id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Type          string         `json:"agent_type"`
	Config        map[string]any `json:"configuration,omitempty"`
	CredentialRef string         `json:"-"`
}

// Task is a registered task definition. Times are in seconds.
type Task struct {
	ID                     string         `json:"id"`
	Title                  string         `json:"title"`
	Description            string         `json:"description,omitempty"`
	Difficulty             string         `json:"difficulty"`
	EnvironmentKind        string         `json:"environment_type"`
	EnvironmentConfig      map[string]any `json:"environment_config,omitempty"`
	SuccessCriteria        []string       `json:"success_criteria,omitempty"`
	ExpectedCompletionTime int            `json:"expected_completion_time,omitempty"`
	MaxAllowedTime         int            `json:"max_allowed_time,omitempty"`
}

// Catalog looks up agents and tasks. Missing ids return ErrNotFound.
type Catalog interface {
	Agent(ctx context.Context, id string) (*Agent, error)
	Task(ctx context.Context, id string) (*Task, error)
	Agents() []*Agent
	Tasks() []*Task
}

// Static is an in-memory catalog. Replace swaps its contents atomically so
// a config reload never exposes a half-built catalog.
type Static struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	tasks  map[string]*Task
}

func NewStatic(agents []*Agent, tasks []*Task) *Static {
	s := &Static{}
	s.Replace(agents, tasks)
	return s
}

// FromConfig builds a catalog from the agents and tasks sections.
func FromConfig(cfg *config.Config) *Static {
	agents, tasks := Convert(cfg)
	return NewStatic(agents, tasks)
}

// Convert maps config entries to catalog entries.
func Convert(cfg *config.Config) ([]*Agent, []*Task) {
	agents := make([]*Agent, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents = append(agents, &Agent{
			ID:            a.ID,
			OwnerID:       a.OwnerID,
			Name:          a.Name,
			Description:   a.Description,
			Type:          a.Type,
			Config:        a.Config,
			CredentialRef: a.CredentialRef,
		})
	}
	tasks := make([]*Task, 0, len(cfg.Tasks))
	for _, t := range cfg.Tasks {
		tasks = append(tasks, &Task{
			ID:                     t.ID,
			Title:                  t.Title,
			Description:            t.Description,
			Difficulty:             t.Difficulty,
			EnvironmentKind:        t.Environment,
			EnvironmentConfig:      t.EnvironmentConfig,
			SuccessCriteria:        t.SuccessCriteria,
			ExpectedCompletionTime: t.ExpectedCompletionTime,
			MaxAllowedTime:         t.MaxAllowedTime,
		})
	}
	return agents, tasks
}

func (s *Static) Replace(agents []*Agent, tasks []*Task) {
	am := make(map[string]*Agent, len(agents))
	for _, a := range agents {
		am[a.ID] = a
	}
	tm := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		tm[t.ID] = t
	}
	s.mu.Lock()
	s.agents, s.tasks = am, tm
	s.mu.Unlock()
}

func (s *Static) Agent(ctx context.Context, id string) (*Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	a, ok := s.agents[id]
	s.mu.RUnlock()
	if !ok {
		return nil, execution.Errorf(execution.ErrNotFound, "agent %s not found", id)
	}
	c := *a
	return &c, nil
}

func (s *Static) Task(ctx context.Context, id string) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, execution.Errorf(execution.ErrNotFound, "task %s not found", id)
	}
	c := *t
	return &c, nil
}

// Agents lists agents sorted by id.
func (s *Static) Agents() []*Agent {
	s.mu.RLock()
	out := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		c := *a
		out = append(out, &c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tasks lists tasks sorted by id.
func (s *Static) Tasks() []*Task {
	s.mu.RLock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		c := *t
		out = append(out, &c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
