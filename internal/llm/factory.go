package llm

import (
	"context"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
)

// ProviderConfig overrides the endpoint and credential source of a provider.
type ProviderConfig struct {
	BaseURL   string
	APIKeyEnv string
}

var defaultKeyEnv = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGemini:    "GEMINI_API_KEY",
}

// Factory builds the generator for an agent. Providers without a usable
// credential fall back to the mock generator unless DisableMockFallback is
// set, in which case the mock provider also stops counting as healthy.
type Factory struct {
	Providers           map[string]ProviderConfig
	Client              *http.Client
	Getenv              func(string) string
	DisableMockFallback bool
}

// ProviderFor maps a model or agent type to its provider.
func ProviderFor(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return ProviderOpenAI
	case strings.HasPrefix(m, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gemini"):
		return ProviderGemini
	default:
		return ProviderMock
	}
}

// Options describe the agent a generator is built for.
type Options struct {
	Model       string
	Credential  string
	AgentConfig map[string]any
	Usage       *Recorder
}

// New returns the generator for opts. It never fails: an agent whose
// provider has no credential gets the mock generator.
func (f *Factory) New(opts Options) Generator {
	provider := ProviderFor(opts.Model)
	if p, ok := opts.AgentConfig["provider"].(string); ok && p != "" {
		provider = strings.ToLower(p)
	}
	script := stringList(opts.AgentConfig["mock_script"])
	if provider == ProviderMock {
		return NewMock(script, opts.Usage)
	}

	key := opts.Credential
	if key == "" {
		key = f.envKey(provider)
	}
	if key == "" {
		log.Printf("warning: no API key for provider %s, falling back to mock generator", provider)
		return NewMock(script, opts.Usage)
	}
	return f.build(provider, opts.Model, key, opts.Usage)
}

func (f *Factory) build(provider, model, key string, usage *Recorder) Generator {
	pc := f.Providers[provider]
	switch provider {
	case ProviderAnthropic:
		return &Anthropic{BaseURL: pc.BaseURL, APIKey: key, Model: model, Client: f.Client, Usage: usage}
	case ProviderGemini:
		base := pc.BaseURL
		if base == "" {
			base = DefaultGeminiURL
		}
		return &OpenAI{Provider: ProviderGemini, BaseURL: base, APIKey: key, Model: model, Client: f.Client, Usage: usage}
	case ProviderOpenAI:
		return &OpenAI{Provider: ProviderOpenAI, BaseURL: pc.BaseURL, APIKey: key, Model: model, Temperature: 0.7, Client: f.Client, Usage: usage}
	default:
		// Any other configured provider is assumed OpenAI-compatible.
		return &OpenAI{Provider: provider, BaseURL: pc.BaseURL, APIKey: key, Model: model, Client: f.Client, Usage: usage}
	}
}

func (f *Factory) envKey(provider string) string {
	getenv := f.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	name := defaultKeyEnv[provider]
	if pc, ok := f.Providers[provider]; ok && pc.APIKeyEnv != "" {
		name = pc.APIKeyEnv
	}
	if name == "" {
		return ""
	}
	return getenv(name)
}

// Health probes every provider that has a credential. The mock provider
// reports healthy while mock fallback is enabled.
func (f *Factory) Health(ctx context.Context) map[string]bool {
	names := map[string]bool{ProviderOpenAI: true, ProviderAnthropic: true, ProviderGemini: true}
	for name := range f.Providers {
		names[name] = true
	}
	delete(names, ProviderMock)

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	status := make(map[string]bool)
	for _, name := range sorted {
		key := f.envKey(name)
		if key == "" {
			continue
		}
		status[name] = f.build(name, "", key, nil).Health(ctx)
	}
	if !f.DisableMockFallback {
		status[ProviderMock] = true
	}
	return status
}

// Healthy reports whether at least one provider is healthy.
func (f *Factory) Healthy(ctx context.Context) bool {
	for name, ok := range f.Health(ctx) {
		if ok {
			return true
		}
		log.Printf("warning: LLM provider %s unhealthy", name)
	}
	return false
}

func stringList(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		if s != "" {
			return []string{s}
		}
	}
	return nil
}
