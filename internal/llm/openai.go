package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	DefaultOpenAIURL = "https://api.openai.com/v1"
	DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/openai"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint. BaseURL
// includes the version segment, e.g. https://api.openai.com/v1.
type OpenAI struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Client      *http.Client
	Usage       *Recorder
}

func (o *OpenAI) Name() string {
	if o.Provider != "" {
		return o.Provider
	}
	return "openai"
}

func (o *OpenAI) url(path string) string {
	base := o.BaseURL
	if base == "" {
		base = DefaultOpenAIURL
	}
	return strings.TrimRight(base, "/") + path
}

func (o *OpenAI) Generate(ctx context.Context, msgs []Message, maxTokens int) (string, error) {
	reqBody := map[string]interface{}{
		"model":       o.Model,
		"messages":    msgs,
		"max_tokens":  maxTokens,
		"temperature": o.Temperature,
		"stream":      false,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url("/chat/completions"), bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.APIKey)
	}

	resp, err := httpClient(o.Client).Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", o.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errBody)
		return "", fmt.Errorf("%s API returned %d: %v", o.Name(), resp.StatusCode, errBody)
	}

	var chatResult struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatResult); err != nil {
		return "", fmt.Errorf("decoding %s response: %w", o.Name(), err)
	}
	if len(chatResult.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	o.Usage.Add(UsageRecord{
		Provider:     o.Name(),
		Model:        o.Model,
		InputTokens:  chatResult.Usage.PromptTokens,
		OutputTokens: chatResult.Usage.CompletionTokens,
	})
	return chatResult.Choices[0].Message.Content, nil
}

// Health lists models; any 200 counts as healthy.
func (o *OpenAI) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url("/models"), nil)
	if err != nil {
		return false
	}
	if o.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.APIKey)
	}
	resp, err := httpClient(o.Client).Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
