package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/agentarena/internal/config"
	"github.com/signalnine/agentarena/internal/submission"
)

func TestFilterAgents(t *testing.T) {
	agents := []config.Agent{
		{ID: "alpha", OwnerID: "u"},
		{ID: "beta", OwnerID: "u"},
		{ID: "gamma", OwnerID: "u"},
	}

	tests := []struct {
		name   string
		filter string
		want   int
	}{
		{"empty filter returns all", "", 3},
		{"exact match", "beta", 1},
		{"no match", "delta", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterAgents(agents, tt.filter)
			if len(got) != tt.want {
				t.Errorf("filterAgents(%q) returned %d, want %d", tt.filter, len(got), tt.want)
			}
		})
	}
}

func TestFilterTasks(t *testing.T) {
	tasks := []config.Task{
		{ID: "buy-laptop", Difficulty: "HARD"},
		{ID: "send-mail", Difficulty: "EASY"},
		{ID: "book-flight", Difficulty: "HARD"},
	}

	tests := []struct {
		name  string
		id    string
		diffF string
		want  int
	}{
		{"empty filters returns all", "", "", 3},
		{"filter by id", "send-mail", "", 1},
		{"filter by difficulty", "", "HARD", 2},
		{"difficulty is case-insensitive", "", "hard", 2},
		{"no match by id", "nonexistent", "", 0},
		{"no match by difficulty", "", "EXPERT", 0},
		{"combined id and difficulty", "buy-laptop", "hard", 1},
		{"combined id and wrong difficulty", "buy-laptop", "easy", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterTasks(tasks, tt.id, tt.diffF)
			if len(got) != tt.want {
				t.Errorf("filterTasks(id=%q, difficulty=%q) returned %d, want %d", tt.id, tt.diffF, len(got), tt.want)
			}
		})
	}
}

func TestTrialTimeout(t *testing.T) {
	tests := []struct {
		name    string
		task    config.Task
		backend config.Backend
		want    time.Duration
	}{
		{"task limit", config.Task{MaxAllowedTime: 120}, config.Backend{DefaultTimeoutSeconds: 600}, 150 * time.Second},
		{"backend default", config.Task{}, config.Backend{DefaultTimeoutSeconds: 60}, 90 * time.Second},
		{"built-in default", config.Task{}, config.Backend{}, 630 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trialTimeout(&tt.task, tt.backend)
			if got != tt.want {
				t.Errorf("trialTimeout(%+v) = %v, want %v", tt.task, got, tt.want)
			}
		})
	}
}

func writeConfig(t *testing.T, storeDir string) string {
	t.Helper()
	body := `backend:
  sim_min_delay_ms: 0
  sim_max_delay_ms: 0
agents:
  - id: agent-1
    owner_id: user-1
    type: gpt-4
  - id: agent-2
    owner_id: user-2
tasks:
  - id: task-1
    difficulty: easy
    environment: omnizon
`
	if storeDir != "" {
		body += "store:\n  dir: " + storeDir + "\n"
	}
	path := filepath.Join(t.TempDir(), "arena.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewAppRunsSubmissions(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if a.selector.UseLive() {
		t.Error("expected simulated backend by default")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := a.manager.Submit(ctx, submission.SubmitRequest{AgentID: "agent-1", TaskID: "task-1"}, "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done, err := a.manager.Wait(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !done.Status.Terminal() {
		t.Errorf("expected terminal record, got %s", done.Status)
	}
	entries, err := a.board.Build(ctx, "task-1")
	if err != nil || len(entries) != 1 {
		t.Errorf("expected one leaderboard entry, got %d (%v)", len(entries), err)
	}
	if err := a.close(time.Second); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestReloadSwapsCatalogAndBackend(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	a, err := newApp(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.close(time.Second)

	next := *cfg
	next.Backend.UseLive = true
	next.Agents = []config.Agent{{ID: "agent-3", OwnerID: "user-3", Name: "agent-3", Type: "mock"}}
	a.reload(&next)

	if !a.selector.UseLive() {
		t.Error("expected live backend after reload")
	}
	ctx := context.Background()
	if _, err := a.catalog.Agent(ctx, "agent-3"); err != nil {
		t.Errorf("expected new agent after reload: %v", err)
	}
	if _, err := a.catalog.Agent(ctx, "agent-1"); err == nil {
		t.Error("expected removed agent to be gone")
	}
}

func TestRunAndReadBackCommands(t *testing.T) {
	storeDir := t.TempDir()
	path := writeConfig(t, storeDir)

	run := NewRootCmd()
	run.SetArgs([]string{"--config", path, "run", "--trials", "2", "--parallel", "2"})
	if err := run.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(storeDir, "submissions"))
	if err != nil {
		t.Fatalf("reading store: %v", err)
	}
	// Two agents, one task, two trials.
	if len(entries) != 4 {
		t.Fatalf("expected 4 stored submissions, got %d", len(entries))
	}
	id := entries[0].Name()[:len(entries[0].Name())-len(".json")]

	for _, args := range [][]string{
		{"--config", path, "leaderboard", "task-1", "--format", "json"},
		{"--config", path, "report", "--format", "markdown"},
		{"--config", path, "status", id},
		{"--config", path, "list"},
		{"--config", path, "validate", "--probe=false"},
	} {
		cmd := NewRootCmd()
		cmd.SetArgs(args)
		if err := cmd.Execute(); err != nil {
			t.Errorf("%v: %v", args[2:], err)
		}
	}
}

func TestReadCommandsNeedStore(t *testing.T) {
	path := writeConfig(t, "")
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"--config", path, "report"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err == nil {
		t.Error("expected report to fail without store.dir")
	}
}
