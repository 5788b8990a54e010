package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/agentarena/internal/environment"
)

const (
	DefaultMaxSteps       = 20
	DefaultTimeoutSeconds = 600
	DefaultAddr           = ":8080"
)

type Config struct {
	Backend      Backend                `yaml:"backend"`
	Agents       []Agent                `yaml:"agents"`
	Tasks        []Task                 `yaml:"tasks"`
	Trials       int                    `yaml:"trials"`
	Providers    map[string]Provider    `yaml:"providers"`
	Environments map[string]Environment `yaml:"environments"`
	Store        Store                  `yaml:"store"`
	Server       Server                 `yaml:"server"`
	Secrets      Secrets                `yaml:"secrets"`
	Pricing      string                 `yaml:"pricing"`
}

// Backend selects and tunes the execution engines. Delays are pointers so
// an explicit zero can switch pacing off.
type Backend struct {
	UseLive               bool `yaml:"use_live"`
	DefaultMaxSteps       int  `yaml:"default_max_steps"`
	DefaultTimeoutSeconds int  `yaml:"default_timeout_seconds"`
	StepDelayMS           *int `yaml:"step_delay_ms"`
	SimMinDelayMS         *int `yaml:"sim_min_delay_ms"`
	SimMaxDelayMS         *int `yaml:"sim_max_delay_ms"`
	MaxWaitSeconds        int  `yaml:"max_wait_seconds"`
	ProbeTimeoutSeconds   int  `yaml:"probe_timeout_seconds"`
	DisableMockFallback   bool `yaml:"disable_mock_fallback"`
}

type Agent struct {
	ID            string         `yaml:"id"`
	OwnerID       string         `yaml:"owner_id"`
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	Type          string         `yaml:"type"`
	CredentialRef string         `yaml:"credential_ref"`
	Config        map[string]any `yaml:"config"`
}

type Task struct {
	ID                     string         `yaml:"id"`
	Title                  string         `yaml:"title"`
	Description            string         `yaml:"description"`
	Difficulty             string         `yaml:"difficulty"`
	Environment            string         `yaml:"environment"`
	EnvironmentConfig      map[string]any `yaml:"environment_config"`
	SuccessCriteria        []string       `yaml:"success_criteria"`
	ExpectedCompletionTime int            `yaml:"expected_completion_time"`
	MaxAllowedTime         int            `yaml:"max_allowed_time"`
}

type Provider struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// Environment configures how one environment kind is provisioned.
type Environment struct {
	Image               string            `yaml:"image"`
	Command             []string          `yaml:"command"`
	Env                 map[string]string `yaml:"env"`
	URL                 string            `yaml:"url"`
	ReadyTimeoutSeconds int               `yaml:"ready_timeout_seconds"`
}

// Store selects where submissions are kept. An empty Dir keeps them in
// memory.
type Store struct {
	Dir string `yaml:"dir"`
}

type Server struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document, filling defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &cfg, nil
}

var difficulties = map[string]bool{"EASY": true, "MEDIUM": true, "HARD": true, "EXPERT": true}

func validate(cfg *Config) error {
	b := &cfg.Backend
	if b.DefaultMaxSteps == 0 {
		b.DefaultMaxSteps = DefaultMaxSteps
	}
	if b.DefaultMaxSteps < 1 {
		return fmt.Errorf("backend.default_max_steps must be at least 1")
	}
	if b.DefaultTimeoutSeconds == 0 {
		b.DefaultTimeoutSeconds = DefaultTimeoutSeconds
	}
	if b.DefaultTimeoutSeconds < 1 {
		return fmt.Errorf("backend.default_timeout_seconds must be at least 1")
	}
	if b.ProbeTimeoutSeconds <= 0 {
		b.ProbeTimeoutSeconds = 10
	}
	if b.MaxWaitSeconds <= 0 {
		b.MaxWaitSeconds = 10
	}
	for name, v := range map[string]*int{"step_delay_ms": b.StepDelayMS, "sim_min_delay_ms": b.SimMinDelayMS, "sim_max_delay_ms": b.SimMaxDelayMS} {
		if v != nil && *v < 0 {
			return fmt.Errorf("backend.%s must not be negative", name)
		}
	}
	if lo, hi := b.SimulatedDelays(); lo > hi {
		return fmt.Errorf("backend.sim_min_delay_ms exceeds sim_max_delay_ms")
	}

	if len(cfg.Agents) == 0 {
		return fmt.Errorf("no agents defined")
	}
	agentIDs := map[string]bool{}
	for i, a := range cfg.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent %d: id is required", i)
		}
		if agentIDs[a.ID] {
			return fmt.Errorf("agent %q: duplicate id", a.ID)
		}
		agentIDs[a.ID] = true
		if a.OwnerID == "" {
			return fmt.Errorf("agent %q: owner_id is required", a.ID)
		}
		if a.Name == "" {
			cfg.Agents[i].Name = a.ID
		}
		if a.Type == "" {
			cfg.Agents[i].Type = "mock"
		}
	}

	if len(cfg.Tasks) == 0 {
		return fmt.Errorf("no tasks defined")
	}
	taskIDs := map[string]bool{}
	for i := range cfg.Tasks {
		t := &cfg.Tasks[i]
		if t.ID == "" {
			return fmt.Errorf("task %d: id is required", i)
		}
		if taskIDs[t.ID] {
			return fmt.Errorf("task %q: duplicate id", t.ID)
		}
		taskIDs[t.ID] = true
		if t.Title == "" {
			t.Title = t.ID
		}
		t.Difficulty = strings.ToUpper(strings.TrimSpace(t.Difficulty))
		if t.Difficulty == "" {
			t.Difficulty = "MEDIUM"
		}
		if !difficulties[t.Difficulty] {
			return fmt.Errorf("task %q: unknown difficulty %q", t.ID, t.Difficulty)
		}
		kind, err := environment.NormalizeKind(t.Environment)
		if err != nil {
			return fmt.Errorf("task %q: %w", t.ID, err)
		}
		t.Environment = kind
		if t.MaxAllowedTime < 0 || t.ExpectedCompletionTime < 0 {
			return fmt.Errorf("task %q: times must not be negative", t.ID)
		}
	}

	for kind := range cfg.Environments {
		if _, err := environment.NormalizeKind(kind); err != nil {
			return fmt.Errorf("environments: %w", err)
		}
	}

	if cfg.Trials == 0 {
		cfg.Trials = 1
	}
	if cfg.Trials < 1 {
		return fmt.Errorf("trials must be at least 1")
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	return nil
}

// Agent returns the agent with id, or nil.
func (c *Config) Agent(id string) *Agent {
	for i := range c.Agents {
		if c.Agents[i].ID == id {
			return &c.Agents[i]
		}
	}
	return nil
}

// Task returns the task with id, or nil.
func (c *Config) Task(id string) *Task {
	for i := range c.Tasks {
		if c.Tasks[i].ID == id {
			return &c.Tasks[i]
		}
	}
	return nil
}

// EnvironmentKinds converts the environments section to provisioner input,
// keyed by normalized kind.
func (c *Config) EnvironmentKinds() map[string]environment.KindConfig {
	kinds := make(map[string]environment.KindConfig, len(c.Environments))
	for name, e := range c.Environments {
		kind, err := environment.NormalizeKind(name)
		if err != nil {
			continue
		}
		kinds[kind] = environment.KindConfig{
			Image:        e.Image,
			Command:      e.Command,
			Env:          e.Env,
			URL:          e.URL,
			ReadyTimeout: time.Duration(e.ReadyTimeoutSeconds) * time.Second,
		}
	}
	return kinds
}

// StepDelay is the live pacing delay, 500ms unless configured.
func (b Backend) StepDelay() time.Duration {
	return millis(b.StepDelayMS, 500)
}

// SimulatedDelays is the simulated engine's pacing range, 100-500ms unless
// configured.
func (b Backend) SimulatedDelays() (time.Duration, time.Duration) {
	return millis(b.SimMinDelayMS, 100), millis(b.SimMaxDelayMS, 500)
}

func millis(v *int, def int) time.Duration {
	if v == nil {
		return time.Duration(def) * time.Millisecond
	}
	return time.Duration(*v) * time.Millisecond
}
