package pricing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelPricing is the price of 1K tokens in USD.
type ModelPricing struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// Table maps provider -> model -> price.
type Table struct {
	Providers map[string]map[string]ModelPricing
}

// Default is used when no pricing file is configured.
func Default() *Table {
	return &Table{Providers: map[string]map[string]ModelPricing{
		"openai": {
			"gpt-4":         {Input: 0.03, Output: 0.06},
			"gpt-4-turbo":   {Input: 0.01, Output: 0.03},
			"gpt-4o":        {Input: 0.005, Output: 0.015},
			"gpt-3.5-turbo": {Input: 0.0005, Output: 0.0015},
		},
		"anthropic": {
			"claude-3-opus":     {Input: 0.015, Output: 0.075},
			"claude-3-5-sonnet": {Input: 0.003, Output: 0.015},
			"claude-instant":    {Input: 0.0008, Output: 0.0024},
		},
		"mock": {},
	}}
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &Table{Providers: providers}, nil
}

// LoadOrDefault loads path, or returns the built-in table when path is empty.
func LoadOrDefault(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Cost calculates total cost for a request. Prices are per 1K tokens.
// A model that is not listed verbatim matches the longest listed prefix,
// so "gpt-4-0613" is billed as "gpt-4".
func (t *Table) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	if t == nil || t.Providers == nil {
		return 0
	}
	models, ok := t.Providers[provider]
	if !ok {
		return 0
	}
	p, ok := models[model]
	if !ok {
		best := ""
		for name, mp := range models {
			if strings.HasPrefix(model, name) && len(name) > len(best) {
				best, p = name, mp
			}
		}
		if best == "" {
			return 0
		}
	}
	return (float64(inputTokens)/1000.0)*p.Input + (float64(outputTokens)/1000.0)*p.Output
}
