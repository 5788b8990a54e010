// Package agent implements the decision agent: it turns an observation of
// the environment into the next action by consulting a text generator.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/signalnine/agentarena/internal/environment"
	"github.com/signalnine/agentarena/internal/execution"
	"github.com/signalnine/agentarena/internal/llm"
)

const (
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultMaxTokens    = 2000
	maxHistory          = 10
)

// Config holds the agent settings read from its configuration map.
type Config struct {
	SystemPrompt string
	MaxTokens    int
}

// ConfigFrom reads system_prompt and max_output_tokens, applying defaults.
func ConfigFrom(agentConfig map[string]any) Config {
	cfg := Config{SystemPrompt: DefaultSystemPrompt, MaxTokens: DefaultMaxTokens}
	if s, ok := execution.ConfigString(agentConfig, "system_prompt"); ok {
		cfg.SystemPrompt = s
	}
	if n, ok := execution.ConfigInt(agentConfig, "max_output_tokens"); ok && n > 0 {
		cfg.MaxTokens = n
	}
	return cfg
}

// Task is what the agent is asked to accomplish.
type Task struct {
	Title           string
	Description     string
	Difficulty      string
	Environment     string
	Instruction     string
	SuccessCriteria []string
}

// HistoryEntry records one decision.
type HistoryEntry struct {
	Observation environment.Observation `json:"observation"`
	Action      Action                  `json:"action"`
	Timestamp   time.Time               `json:"timestamp"`
}

// Agent decides actions for a single run. It is not safe for concurrent
// use.
type Agent struct {
	gen     llm.Generator
	cfg     Config
	task    Task
	history []HistoryEntry
}

func New(gen llm.Generator, cfg Config, task Task) *Agent {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Agent{gen: gen, cfg: cfg, task: task}
}

// Decide returns the next action for obs. Generator failures and panics
// are reported as an error action, never as a Go error.
func (a *Agent) Decide(ctx context.Context, obs environment.Observation) (act Action) {
	defer func() {
		if r := recover(); r != nil {
			act = Error(fmt.Sprintf("agent panicked: %v", r))
		}
	}()
	if a.gen == nil {
		return Error("agent has no generator")
	}
	reply, err := a.gen.Generate(ctx, a.messages(obs), a.cfg.MaxTokens)
	if err != nil {
		return Error(err.Error())
	}
	act = ParseAction(reply)
	a.history = append(a.history, HistoryEntry{Observation: obs, Action: act, Timestamp: time.Now()})
	if len(a.history) > maxHistory {
		a.history = append([]HistoryEntry(nil), a.history[len(a.history)-maxHistory:]...)
	}
	return act
}

// Reset forgets the decision history.
func (a *Agent) Reset() { a.history = nil }

// History returns a copy of the retained decisions, oldest first.
func (a *Agent) History() []HistoryEntry {
	return append([]HistoryEntry(nil), a.history...)
}

func (a *Agent) messages(obs environment.Observation) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: a.cfg.SystemPrompt + "\n\n" + a.taskPrompt()}}
	for _, h := range a.history {
		data, _ := json.Marshal(h.Action)
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: formatObservation(h.Observation)},
			llm.Message{Role: llm.RoleAssistant, Content: string(data)},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: formatObservation(obs)})
}

func (a *Agent) taskPrompt() string {
	instruction := a.task.Instruction
	if instruction == "" {
		instruction = "Complete the task as described."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nDescription: %s\n\nInstructions: %s\n\nEnvironment: %s\n",
		a.task.Title, a.task.Description, instruction, a.task.Environment)
	if a.task.Difficulty != "" {
		fmt.Fprintf(&b, "Difficulty: %s\n", a.task.Difficulty)
	}
	if len(a.task.SuccessCriteria) > 0 {
		fmt.Fprintf(&b, "Success criteria: %s\n", strings.Join(a.task.SuccessCriteria, "; "))
	}
	b.WriteString(`
Complete the task by interacting with the web environment. Reply with ONLY
a JSON object describing the next action, one of:
{"type": "click", "selector": "#id"}
{"type": "type", "selector": "#id", "text": "..."}
{"type": "navigate", "url": "..."}
{"type": "select", "selector": "#id", "value": "..."}
{"type": "wait", "milliseconds": 1000}
{"type": "finish_task", "reason": "..."}`)
	return b.String()
}

func formatObservation(obs environment.Observation) string {
	orNone := func(s []string) string {
		if len(s) == 0 {
			return "none"
		}
		return strings.Join(s, ", ")
	}
	text := obs.Text
	if text == "" {
		text = "No content available"
	}
	return fmt.Sprintf(`Current webpage content:
URL: %s
Title: %s

Page Content:
%s

Available Elements:
- Links: %s
- Buttons: %s
- Inputs: %s
- Selects: %s`, obs.URL, obs.Title, text,
		orNone(obs.Elements.Links), orNone(obs.Elements.Buttons),
		orNone(obs.Elements.Inputs), orNone(obs.Elements.Selects))
}
