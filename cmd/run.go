package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/agentarena/internal/config"
	"github.com/signalnine/agentarena/internal/report"
	"github.com/signalnine/agentarena/internal/runner"
)

// trialGrace is added to a task's time limit when waiting on a trial, so
// the submission's own deadline fires first.
const trialGrace = 30 * time.Second

var (
	flagAgent      string
	flagTask       string
	flagDifficulty string
	flagUser       string
	flagTrials     int
	flagParallel   int
	flagLive       bool
	flagRunFormat  string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate agents on tasks and print the leaderboards",
		RunE:  runEvaluation,
	}
	cmd.Flags().StringVar(&flagAgent, "agent", "", "filter to a single agent id")
	cmd.Flags().StringVar(&flagTask, "task", "", "filter to a single task id")
	cmd.Flags().StringVar(&flagDifficulty, "difficulty", "", "filter tasks by difficulty")
	cmd.Flags().StringVar(&flagUser, "user", "", "submit as this user (default: each agent's owner)")
	cmd.Flags().IntVar(&flagTrials, "trials", 0, "override trial count")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "max concurrent submissions")
	cmd.Flags().BoolVar(&flagLive, "live", false, "force the live backend")
	cmd.Flags().StringVar(&flagRunFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}

func runEvaluation(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagTrials > 0 {
		cfg.Trials = flagTrials
	}
	if flagLive {
		cfg.Backend.UseLive = true
	}
	agents := filterAgents(cfg.Agents, flagAgent)
	tasks := filterTasks(cfg.Tasks, flagTask, flagDifficulty)
	if len(agents) == 0 || len(tasks) == 0 {
		return fmt.Errorf("no agents or tasks match the filters")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var jobs []runner.Job
	for _, agent := range agents {
		user := flagUser
		if user == "" {
			user = agent.OwnerID
		}
		for _, task := range tasks {
			for trial := 1; trial <= cfg.Trials; trial++ {
				agent, task, trial := agent, task, trial
				jobs = append(jobs, func(ctx context.Context) error {
					fmt.Printf("Running %s × %s (trial %d/%d)...\n", agent.ID, task.ID, trial, cfg.Trials)
					rec, err := runner.RunTrial(ctx, &runner.TrialOpts{
						Manager:  a.manager,
						UserID:   user,
						AgentID:  agent.ID,
						TaskID:   task.ID,
						TrialNum: trial,
						Timeout:  trialTimeout(&task, cfg.Backend),
					})
					if err != nil {
						return err
					}
					fmt.Printf("  %s × %s trial %d: %s (steps: %d, %.1fs)\n",
						agent.ID, task.ID, trial, runner.Outcome(rec), rec.StepsTaken, rec.ExecutionTimeSeconds)
					return nil
				})
			}
		}
	}

	for _, err := range runner.RunPool(ctx, flagParallel, jobs) {
		fmt.Printf("  ERROR: %v\n", err)
	}
	if err := a.close(trialGrace); err != nil {
		return err
	}

	fmt.Println("\n--- Results ---")
	return report.Generate(context.Background(), a.catalog, a.store, a.board, flagRunFormat, os.Stdout)
}

func filterAgents(agents []config.Agent, id string) []config.Agent {
	if id == "" {
		return agents
	}
	var filtered []config.Agent
	for _, a := range agents {
		if a.ID == id {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func filterTasks(tasks []config.Task, id, difficulty string) []config.Task {
	var filtered []config.Task
	for _, t := range tasks {
		if id != "" && t.ID != id {
			continue
		}
		if difficulty != "" && !strings.EqualFold(t.Difficulty, difficulty) {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}

// trialTimeout bounds the wait on one trial: the task's own limit, or the
// backend default, plus trialGrace.
func trialTimeout(task *config.Task, b config.Backend) time.Duration {
	secs := task.MaxAllowedTime
	if secs <= 0 {
		secs = b.DefaultTimeoutSeconds
	}
	if secs <= 0 {
		secs = config.DefaultTimeoutSeconds
	}
	return time.Duration(secs)*time.Second + trialGrace
}
