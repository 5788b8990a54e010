package execution

import "time"

// Status is the lifecycle state of a run as reported by a backend.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusTimeout    Status = "TIMEOUT"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	default:
		return false
	}
}

// RunSpec is everything a backend needs to evaluate one submission.
// Engines receive it by pointer and must treat it as read-only.
type RunSpec struct {
	SubmissionID string `json:"submission_id"`
	UserID       string `json:"user_id"`
	AgentID      string `json:"agent_id"`
	TaskID       string `json:"task_id"`

	AgentName        string         `json:"agent_name"`
	AgentDescription string         `json:"agent_description,omitempty"`
	AgentConfig      map[string]any `json:"agent_configuration"`
	AgentType        string         `json:"agent_type"`
	Credential       string         `json:"-"`

	TaskTitle       string   `json:"task_title"`
	TaskDescription string   `json:"task_description"`
	TaskDifficulty  string   `json:"task_difficulty"`
	SuccessCriteria []string `json:"success_criteria,omitempty"`

	EnvironmentKind   string         `json:"environment_kind"`
	EnvironmentConfig map[string]any `json:"environment_config"`

	MaxSteps       int `json:"max_steps"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Validate rejects specs no engine can run.
func (s *RunSpec) Validate() error {
	if s == nil {
		return Errorf(ErrValidation, "run spec is nil")
	}
	if s.SubmissionID == "" {
		return Errorf(ErrValidation, "run spec: submission id is required")
	}
	if s.MaxSteps < 1 {
		return Errorf(ErrValidation, "run spec %s: max_steps must be at least 1", s.SubmissionID)
	}
	return nil
}

// Model returns the model identifier the agent is configured with,
// falling back to the agent type.
func (s *RunSpec) Model() string {
	if m, ok := ConfigString(s.AgentConfig, "model"); ok {
		return m
	}
	return s.AgentType
}

// RunResult is the single outcome of one backend invocation.
type RunResult struct {
	Status           Status         `json:"status"`
	ExecutionID      string         `json:"execution_id"`
	StepsTaken       int            `json:"steps_taken"`
	TotalTimeSeconds float64        `json:"total_time_seconds"`
	SuccessRate      float64        `json:"success_rate"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ExecutionLog     []string       `json:"execution_log"`
	ResultData       map[string]any `json:"result_data"`
}

// RunStatus is the polled progress view of an in-flight or finished run.
type RunStatus struct {
	SubmissionID       string     `json:"submission_id"`
	ExecutionID        string     `json:"execution_id"`
	Status             Status     `json:"status"`
	Progress           float64    `json:"progress"`
	ProgressPercentage int        `json:"progress_percentage"`
	CurrentStep        int        `json:"current_step"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            *time.Time `json:"end_time,omitempty"`
	LastAction         string     `json:"last_action,omitempty"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	Logs               []string   `json:"logs"`
}

func (s *RunStatus) clone() *RunStatus {
	c := *s
	c.Logs = append([]string(nil), s.Logs...)
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}

// ElapsedSeconds returns wall-clock seconds since start, never less than a
// millisecond so reported durations stay positive.
func ElapsedSeconds(start time.Time) float64 {
	d := time.Since(start).Seconds()
	if d < 0.001 {
		return 0.001
	}
	return d
}

// ConfigInt reads an integer from a decoded JSON or YAML map. JSON numbers
// arrive as float64, YAML ones as int.
func ConfigInt(cfg map[string]any, key string) (int, bool) {
	switch v := cfg[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// ConfigString reads a non-empty string from a config map.
func ConfigString(cfg map[string]any, key string) (string, bool) {
	s, ok := cfg[key].(string)
	return s, ok && s != ""
}
