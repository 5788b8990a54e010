package execution

import (
	"sync"
	"time"
)

const maxStatusLogs = 20

// StatusTable tracks the RunStatus of every run keyed by submission id.
// It is safe for concurrent use; callers only ever see copies.
type StatusTable struct {
	mu       sync.Mutex
	statuses map[string]*RunStatus
	now      func() time.Time
}

func NewStatusTable() *StatusTable {
	return &StatusTable{statuses: make(map[string]*RunStatus), now: time.Now}
}

// Begin registers a new run. The execution id and start time written here
// are never changed afterwards, even if Begin is called again for the same
// submission.
func (t *StatusTable) Begin(submissionID, executionID string) *RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.statuses[submissionID]; ok {
		st.Status = StatusProcessing
		return st.clone()
	}
	st := &RunStatus{
		SubmissionID: submissionID,
		ExecutionID:  executionID,
		Status:       StatusProcessing,
		StartTime:    t.now(),
		LastAction:   "Starting execution",
		Logs:         []string{},
	}
	t.statuses[submissionID] = st
	return st.clone()
}

// StatusUpdate lists the mutable fields of a RunStatus. Nil fields are left
// untouched.
type StatusUpdate struct {
	Status       *Status
	Progress     *float64
	CurrentStep  *int
	LastAction   *string
	ErrorMessage *string
	Log          string
}

// Update applies u to the status of submissionID. Once a run is CANCELLED
// only its progress fields and logs can still change.
func (t *StatusTable) Update(submissionID string, u StatusUpdate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.statuses[submissionID]
	if !ok {
		return false
	}
	if u.Status != nil && st.Status != StatusCancelled {
		st.Status = *u.Status
		if u.Status.Terminal() && st.EndTime == nil {
			end := t.now()
			st.EndTime = &end
		}
	}
	if u.Progress != nil {
		p := clamp(*u.Progress, 0, 1)
		st.Progress = p
		st.ProgressPercentage = int(p * 100)
	}
	if u.CurrentStep != nil {
		st.CurrentStep = *u.CurrentStep
	}
	if u.LastAction != nil {
		st.LastAction = *u.LastAction
	}
	if u.ErrorMessage != nil {
		st.ErrorMessage = *u.ErrorMessage
	}
	if u.Log != "" {
		st.Logs = append(st.Logs, u.Log)
		if len(st.Logs) > maxStatusLogs {
			st.Logs = append([]string(nil), st.Logs[len(st.Logs)-maxStatusLogs:]...)
		}
	}
	return true
}

// Finish marks the run terminal with full progress.
func (t *StatusTable) Finish(submissionID string, status Status, errMsg string) bool {
	one := 1.0
	u := StatusUpdate{Status: &status, Progress: &one}
	if errMsg != "" {
		u.ErrorMessage = &errMsg
	}
	return t.Update(submissionID, u)
}

// Cancel flags a known run as CANCELLED. Engines observe the flag between
// steps.
func (t *StatusTable) Cancel(submissionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.statuses[submissionID]
	if !ok {
		return false
	}
	if st.Status.Terminal() {
		return st.Status == StatusCancelled
	}
	st.Status = StatusCancelled
	end := t.now()
	st.EndTime = &end
	return true
}

// Cancelled reports whether Cancel was called for the run.
func (t *StatusTable) Cancelled(submissionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.statuses[submissionID]
	return ok && st.Status == StatusCancelled
}

// Get returns a copy of the current status.
func (t *StatusTable) Get(submissionID string) (*RunStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.statuses[submissionID]
	if !ok {
		return nil, false
	}
	return st.clone(), true
}

// Forget drops a run from the table.
func (t *StatusTable) Forget(submissionID string) {
	t.mu.Lock()
	delete(t.statuses, submissionID)
	t.mu.Unlock()
}

// Len is the number of tracked runs.
func (t *StatusTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.statuses)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
