// Package llm provides the text-generation backends the decision agent
// talks to: a scripted mock, OpenAI-compatible chat completions and the
// Anthropic messages API.
package llm

import (
	"context"
	"net/http"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces the next completion for a conversation.
type Generator interface {
	Name() string
	Generate(ctx context.Context, msgs []Message, maxTokens int) (string, error)
	Health(ctx context.Context) bool
}

// GeneratorFunc adapts a plain function to Generator. It is always healthy.
type GeneratorFunc func(ctx context.Context, msgs []Message, maxTokens int) (string, error)

func (f GeneratorFunc) Name() string { return "func" }

func (f GeneratorFunc) Generate(ctx context.Context, msgs []Message, maxTokens int) (string, error) {
	return f(ctx, msgs, maxTokens)
}

func (f GeneratorFunc) Health(context.Context) bool { return true }

const (
	requestTimeout = 30 * time.Second
	healthTimeout  = 10 * time.Second
)

var defaultHTTPClient = &http.Client{Timeout: requestTimeout}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return defaultHTTPClient
}

// splitSystem separates system messages from the conversation for APIs
// that take the system prompt out of band.
func splitSystem(msgs []Message) (system string, rest []Message) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

// estimateTokens is a rough count used when a provider reports no usage.
func estimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}
