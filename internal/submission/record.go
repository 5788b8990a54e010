// Package submission tracks submissions from request to persisted result.
package submission

import (
	"time"

	"github.com/signalnine/agentarena/internal/execution"
)

// Status is the persisted lifecycle state of a submission.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether the submission has a result.
func (s Status) Terminal() bool { return s.rank() == 2 }

// Record is one persisted submission.
type Record struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"user_id"`
	AgentID              string         `json:"agent_id"`
	TaskID               string         `json:"task_id"`
	Status               Status         `json:"status"`
	Seq                  int64          `json:"seq"`
	RunConfig            map[string]any `json:"run_config,omitempty"`
	ExecutionID          string         `json:"execution_id,omitempty"`
	StepsTaken           int            `json:"steps_taken"`
	ExecutionTimeSeconds float64        `json:"execution_time_seconds"`
	SuccessRate          float64        `json:"success_rate"`
	ExecutionLog         []string       `json:"execution_log,omitempty"`
	ResultData           map[string]any `json:"result_data,omitempty"`
	ErrorMessage         string         `json:"error_message,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Advance moves the record to a later status. Regressions, repeated
// terminal transitions and unknown statuses are rejected with
// ErrValidation.
func (r *Record) Advance(to Status) error {
	if to.rank() < 0 {
		return execution.Errorf(execution.ErrValidation, "submission %s: unknown status %q", r.ID, to)
	}
	if to.rank() <= r.Status.rank() {
		return execution.Errorf(execution.ErrValidation, "submission %s: cannot move from %s to %s", r.ID, r.Status, to)
	}
	r.Status = to
	return nil
}

// Clone returns a copy that shares no slices or top-level maps with r.
func (r *Record) Clone() *Record {
	c := *r
	c.ExecutionLog = append([]string(nil), r.ExecutionLog...)
	c.RunConfig = copyMap(r.RunConfig)
	c.ResultData = copyMap(r.ResultData)
	return &c
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = copyMap(nested)
		}
		c[k] = v
	}
	return c
}

// RunStatus derives a progress view from a persisted record, for
// submissions no backend is tracking.
func (r *Record) RunStatus() *execution.RunStatus {
	st := &execution.RunStatus{
		SubmissionID: r.ID,
		ExecutionID:  r.ExecutionID,
		Status:       execution.Status(r.Status),
		StartTime:    r.CreatedAt,
		CurrentStep:  r.StepsTaken,
		ErrorMessage: r.ErrorMessage,
		Logs:         tail(r.ExecutionLog, 20),
	}
	if r.Status.Terminal() {
		end := r.UpdatedAt
		st.EndTime = &end
		st.Progress = 1
		st.ProgressPercentage = 100
	}
	return st
}

func tail(lines []string, n int) []string {
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return append([]string{}, lines...)
}
