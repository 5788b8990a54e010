package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/signalnine/agentarena/internal/llm"
)

func TestMockScript(t *testing.T) {
	rec := &llm.Recorder{}
	m := llm.NewMock([]string{"first", "second"}, rec)
	ctx := context.Background()
	var got []string
	for i := 0; i < 3; i++ {
		out, err := m.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: "go"}}, 100)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, out)
	}
	want := []string{"first", "second", "second"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reply %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if len(rec.Records()) != 3 {
		t.Errorf("usage records: got %d, want 3", len(rec.Records()))
	}
}

func TestMockEcho(t *testing.T) {
	m := llm.NewMock(nil, nil)
	out, err := m.Generate(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "system"},
		{Role: llm.RoleUser, Content: "find the cheapest flight"},
	}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Mock response to: find the cheapest flight..." {
		t.Errorf("got %q", out)
	}
}

func TestMockCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := llm.NewMock(nil, nil).Generate(ctx, nil, 10); err == nil {
		t.Error("expected error on cancelled context")
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/chat/completions":
			if r.Header.Get("Authorization") != "Bearer sk-test" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var body struct {
				Model     string        `json:"model"`
				MaxTokens int           `json:"max_tokens"`
				Messages  []llm.Message `json:"messages"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if body.Model != "gpt-4" || body.MaxTokens != 256 || len(body.Messages) != 2 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"choices":[{"message":{"content":"click #buy"}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`))
		case "/v1/models":
			w.Write([]byte(`{"data":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rec := &llm.Recorder{}
	g := &llm.OpenAI{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "gpt-4", Usage: rec}
	out, err := g.Generate(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "s"},
		{Role: llm.RoleUser, Content: "u"},
	}, 256)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "click #buy" {
		t.Errorf("got %q", out)
	}
	in, outTok := llm.TotalUsage(rec.Records())
	if in != 12 || outTok != 3 {
		t.Errorf("usage: got %d/%d, want 12/3", in, outTok)
	}
	if !g.Health(context.Background()) {
		t.Error("expected healthy")
	}
}

func TestOpenAIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	g := &llm.OpenAI{BaseURL: srv.URL, APIKey: "k", Model: "gpt-4"}
	_, err := g.Generate(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "u"}}, 10)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("expected 500 error, got %v", err)
	}
	if g.Health(context.Background()) {
		t.Error("expected unhealthy")
	}
}

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "ak" || r.Header.Get("anthropic-version") != "2023-06-01" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			System   string        `json:"system"`
			Messages []llm.Message `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.System != "be brief" || len(body.Messages) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"task complete"}],"usage":{"input_tokens":7,"output_tokens":2}}`))
	}))
	defer srv.Close()

	rec := &llm.Recorder{}
	g := &llm.Anthropic{BaseURL: srv.URL, APIKey: "ak", Model: "claude-3-opus", Usage: rec}
	out, err := g.Generate(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "u"},
	}, 64)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "task complete" {
		t.Errorf("got %q", out)
	}
	if recs := rec.Records(); len(recs) != 1 || recs[0].Provider != "anthropic" || recs[0].InputTokens != 7 {
		t.Errorf("usage: %+v", recs)
	}
}

func TestProviderFor(t *testing.T) {
	tests := map[string]string{
		"gpt-4":             llm.ProviderOpenAI,
		"GPT-3.5-turbo":     llm.ProviderOpenAI,
		"claude-3-opus":     llm.ProviderAnthropic,
		"gemini-2.0-flash":  llm.ProviderGemini,
		"custom":            llm.ProviderMock,
		"":                  llm.ProviderMock,
		"claude-3-5-sonnet": llm.ProviderAnthropic,
	}
	for model, want := range tests {
		if got := llm.ProviderFor(model); got != want {
			t.Errorf("ProviderFor(%q) = %s, want %s", model, got, want)
		}
	}
}

func TestFactoryFallsBackToMockWithoutKey(t *testing.T) {
	f := &llm.Factory{Getenv: func(string) string { return "" }}
	g := f.New(llm.Options{Model: "gpt-4"})
	if g.Name() != "mock" {
		t.Errorf("got %s, want mock", g.Name())
	}
}

func TestFactoryUsesCredential(t *testing.T) {
	f := &llm.Factory{Getenv: func(string) string { return "" }}
	if g := f.New(llm.Options{Model: "claude-3-opus", Credential: "ak"}); g.Name() != "anthropic" {
		t.Errorf("got %s, want anthropic", g.Name())
	}
	env := map[string]string{"MY_KEY": "k"}
	f = &llm.Factory{
		Providers: map[string]llm.ProviderConfig{"openai": {APIKeyEnv: "MY_KEY"}},
		Getenv:    func(k string) string { return env[k] },
	}
	if g := f.New(llm.Options{Model: "gpt-4o"}); g.Name() != "openai" {
		t.Errorf("got %s, want openai", g.Name())
	}
}

func TestFactoryMockScriptFromConfig(t *testing.T) {
	f := &llm.Factory{}
	g := f.New(llm.Options{Model: "mock", AgentConfig: map[string]any{"mock_script": []any{"navigate to /cart"}}})
	out, err := g.Generate(context.Background(), nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if out != "navigate to /cart" {
		t.Errorf("got %q", out)
	}
}

func TestFactoryHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	env := map[string]string{"OPENAI_API_KEY": "k"}
	f := &llm.Factory{
		Providers:           map[string]llm.ProviderConfig{"openai": {BaseURL: srv.URL}},
		Getenv:              func(k string) string { return env[k] },
		DisableMockFallback: true,
	}
	status := f.Health(context.Background())
	if ok, present := status["openai"]; !present || ok {
		t.Errorf("openai status: %v", status)
	}
	if f.Healthy(context.Background()) {
		t.Error("expected unhealthy with failing provider and no mock")
	}
	f.DisableMockFallback = false
	if !f.Healthy(context.Background()) {
		t.Error("mock fallback should count as healthy")
	}
}
