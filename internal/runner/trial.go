// Package runner drives batches of submissions from the command line.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/signalnine/agentarena/internal/execution"
	"github.com/signalnine/agentarena/internal/submission"
)

type TrialOpts struct {
	Manager   *submission.Manager
	UserID    string
	AgentID   string
	TaskID    string
	RunConfig map[string]any
	TrialNum  int
	// Timeout bounds the wait for a result. Zero waits until ctx ends.
	Timeout time.Duration
}

// RunTrial submits one evaluation and waits for its terminal record. When
// the wait is abandoned the run is cancelled.
func RunTrial(ctx context.Context, opts *TrialOpts) (*submission.Record, error) {
	rec, err := opts.Manager.Submit(ctx, submission.SubmitRequest{
		AgentID:   opts.AgentID,
		TaskID:    opts.TaskID,
		RunConfig: opts.RunConfig,
	}, opts.UserID)
	if err != nil {
		return nil, fmt.Errorf("trial %d of %s on %s: %w", opts.TrialNum, opts.AgentID, opts.TaskID, err)
	}

	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	done, err := opts.Manager.Wait(waitCtx, rec.ID)
	if err != nil {
		opts.Manager.Cancel(rec.ID)
		return done, fmt.Errorf("trial %d of %s on %s: waiting for %s: %w", opts.TrialNum, opts.AgentID, opts.TaskID, rec.ID, err)
	}
	return done, nil
}

// Outcome names how a finished submission ended: completed, exhausted,
// timeout, cancelled or failed.
func Outcome(rec *submission.Record) string {
	if rec == nil || !rec.Status.Terminal() {
		return "pending"
	}
	if rec.Status == submission.StatusCompleted {
		return "completed"
	}
	if exhausted, _ := rec.ResultData["exhausted"].(bool); exhausted {
		return "exhausted"
	}
	switch s, _ := rec.ResultData["execution_status"].(string); execution.Status(s) {
	case execution.StatusTimeout:
		return "timeout"
	case execution.StatusCancelled:
		return "cancelled"
	}
	return "failed"
}
