package submission

import (
	"github.com/signalnine/agentarena/internal/catalog"
	"github.com/signalnine/agentarena/internal/execution"
)

const (
	defaultMaxSteps       = 20
	defaultTimeoutSeconds = 600
)

// CredentialKey is the run config key a caller may use to supply a model
// API key for one submission. It is never stored with the record.
const CredentialKey = "llm_api_key"

// Defaults apply when neither the agent nor the task sets a limit.
type Defaults struct {
	MaxSteps       int
	TimeoutSeconds int
}

// BuildRunSpec assembles the RunSpec a backend executes. The agent's max_steps
// config and the task's max allowed time override the defaults. The
// credential is runKey when set, else the agent's credential reference
// resolved through getenv.
func BuildRunSpec(rec *Record, agent *catalog.Agent, task *catalog.Task, d Defaults, runKey string, getenv func(string) string) *execution.RunSpec {
	if d.MaxSteps < 1 {
		d.MaxSteps = defaultMaxSteps
	}
	if d.TimeoutSeconds < 1 {
		d.TimeoutSeconds = defaultTimeoutSeconds
	}

	maxSteps := d.MaxSteps
	if n, ok := execution.ConfigInt(agent.Config, "max_steps"); ok && n > 0 {
		maxSteps = n
	}
	timeout := d.TimeoutSeconds
	if task.MaxAllowedTime > 0 {
		timeout = task.MaxAllowedTime
	}

	credential := runKey
	if credential == "" && agent.CredentialRef != "" && getenv != nil {
		credential = getenv(agent.CredentialRef)
	}

	return &execution.RunSpec{
		SubmissionID:      rec.ID,
		UserID:            rec.UserID,
		AgentID:           agent.ID,
		TaskID:            task.ID,
		AgentName:         agent.Name,
		AgentDescription:  agent.Description,
		AgentConfig:       copyMap(agent.Config),
		AgentType:         agent.Type,
		Credential:        credential,
		TaskTitle:         task.Title,
		TaskDescription:   task.Description,
		TaskDifficulty:    task.Difficulty,
		SuccessCriteria:   append([]string(nil), task.SuccessCriteria...),
		EnvironmentKind:   task.EnvironmentKind,
		EnvironmentConfig: copyMap(task.EnvironmentConfig),
		MaxSteps:          maxSteps,
		TimeoutSeconds:    timeout,
	}
}
