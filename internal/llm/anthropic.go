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
	DefaultAnthropicURL = "https://api.anthropic.com/v1"
	anthropicVersion    = "2023-06-01"
)

// Anthropic talks to the messages API.
type Anthropic struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
	Usage   *Recorder
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) url(path string) string {
	base := a.BaseURL
	if base == "" {
		base = DefaultAnthropicURL
	}
	return strings.TrimRight(base, "/") + path
}

func (a *Anthropic) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.url(path), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return req, nil
}

func (a *Anthropic) Generate(ctx context.Context, msgs []Message, maxTokens int) (string, error) {
	system, rest := splitSystem(msgs)
	reqBody := map[string]interface{}{
		"model":      a.Model,
		"max_tokens": maxTokens,
		"messages":   rest,
	}
	if system != "" {
		reqBody["system"] = system
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	req, err := a.newRequest(ctx, http.MethodPost, "/messages", bodyBytes)
	if err != nil {
		return "", err
	}

	resp, err := httpClient(a.Client).Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errBody)
		return "", fmt.Errorf("anthropic API returned %d: %v", resp.StatusCode, errBody)
	}

	var msgResult struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msgResult); err != nil {
		return "", fmt.Errorf("decoding anthropic response: %w", err)
	}
	var text strings.Builder
	for _, c := range msgResult.Content {
		if c.Type == "" || c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("no text content in response")
	}
	a.Usage.Add(UsageRecord{
		Provider:     "anthropic",
		Model:        a.Model,
		InputTokens:  msgResult.Usage.InputTokens,
		OutputTokens: msgResult.Usage.OutputTokens,
	})
	return text.String(), nil
}

func (a *Anthropic) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := a.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return false
	}
	resp, err := httpClient(a.Client).Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
