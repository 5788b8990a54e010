package llm

import (
	"context"
	"fmt"
	"sync"
)

// Mock answers without any network access. With a script it replays the
// scripted responses in order and then repeats the last one; without a
// script it echoes the last user message.
type Mock struct {
	Script []string
	Usage  *Recorder

	mu   sync.Mutex
	next int
}

func NewMock(script []string, usage *Recorder) *Mock {
	return &Mock{Script: script, Usage: usage}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Generate(ctx context.Context, msgs []Message, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out := m.reply(msgs)
	in := 0
	for _, msg := range msgs {
		in += estimateTokens(msg.Content)
	}
	m.Usage.Add(UsageRecord{Provider: "mock", Model: "mock", InputTokens: in, OutputTokens: estimateTokens(out)})
	return out, nil
}

func (m *Mock) reply(msgs []Message) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Script) > 0 {
		i := m.next
		if i >= len(m.Script) {
			i = len(m.Script) - 1
		} else {
			m.next++
		}
		return m.Script[i]
	}
	prompt := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			prompt = msgs[i].Content
			break
		}
	}
	if len(prompt) > 50 {
		prompt = prompt[:50]
	}
	return fmt.Sprintf("Mock response to: %s...", prompt)
}

func (m *Mock) Health(context.Context) bool { return true }
