package environment_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/signalnine/agentarena/internal/environment"
	"github.com/signalnine/agentarena/internal/execution"
)

func newSim(t *testing.T, kind string) *environment.SimDriver {
	t.Helper()
	site, err := environment.DefaultSite(kind)
	if err != nil {
		t.Fatalf("DefaultSite(%s): %v", kind, err)
	}
	return environment.NewSimDriver(site)
}

func TestKinds(t *testing.T) {
	if got := len(environment.Kinds()); got != 12 {
		t.Errorf("kinds: got %d, want 12", got)
	}
	for _, k := range environment.Kinds() {
		if _, err := environment.DefaultSite(k); err != nil {
			t.Errorf("DefaultSite(%s): %v", k, err)
		}
	}
	if k, err := environment.NormalizeKind("  OmniZon "); err != nil || k != "omnizon" {
		t.Errorf("NormalizeKind: got %q, %v", k, err)
	}
	if _, err := environment.NormalizeKind("moonbase"); !errors.Is(err, execution.ErrConfiguration) {
		t.Errorf("unknown kind: got %v, want ErrConfiguration", err)
	}
}

func TestSimDriverFlow(t *testing.T) {
	ctx := context.Background()
	d := newSim(t, "omnizon")

	if o := d.Navigate(ctx, "http://omnizon.arena.local/"); !o.Success {
		t.Fatalf("navigate home: %+v", o)
	}
	obs := d.Observe(ctx)
	if !strings.Contains(obs.Title, "Omnizon") {
		t.Errorf("title: %q", obs.Title)
	}
	if !obs.Elements.Contains("#search") || !obs.Elements.Contains("#search-button") {
		t.Errorf("elements: %+v", obs.Elements)
	}

	if o := d.Type(ctx, "#search", "laptop"); !o.Success {
		t.Fatalf("type: %+v", o)
	}
	if obs := d.Observe(ctx); !strings.Contains(obs.Text, "#search: laptop") {
		t.Errorf("typed value missing from text: %q", obs.Text)
	}

	steps := []string{"#search-button", "#result-1", "#confirm"}
	for _, sel := range steps {
		if o := d.Click(ctx, sel); !o.Success {
			t.Fatalf("click %s: %+v", sel, o)
		}
	}
	obs = d.Observe(ctx)
	if !strings.Contains(obs.Text, "Order placed successfully") {
		t.Errorf("confirmation text: %q", obs.Text)
	}
	if got := len(d.History()); got != 5 {
		t.Errorf("history: got %d, want 5", got)
	}
}

func TestSimDriverMissingElements(t *testing.T) {
	ctx := context.Background()
	d := newSim(t, "gomail")
	d.Navigate(ctx, "/")

	for _, o := range []environment.Outcome{
		d.Click(ctx, "#nope"),
		d.Type(ctx, "#nope", "x"),
		d.Select(ctx, "#nope", "1"),
		d.WaitFor(ctx, "#nope", 0),
		d.Navigate(ctx, "/does-not-exist"),
		d.Navigate(ctx, "http://elsewhere.example/"),
	} {
		if o.Success || o.Error == "" {
			t.Errorf("expected failure with message: %+v", o)
		}
	}
}

func TestSimDriverSelectAndMessage(t *testing.T) {
	ctx := context.Background()
	d := newSim(t, "staynb")
	d.Navigate(ctx, "/item/2")
	if o := d.Select(ctx, "#quantity", "7"); o.Success {
		t.Error("select accepted an unknown option")
	}
	if o := d.Select(ctx, "#quantity", "2"); !o.Success {
		t.Fatalf("select: %+v", o)
	}
	if !strings.Contains(d.Observe(ctx).Text, "#quantity: 2") {
		t.Error("selected value missing from observation")
	}

	d.Navigate(ctx, "/")
	if o := d.Click(ctx, "#help"); !o.Success {
		t.Fatalf("click help: %+v", o)
	}
	if !strings.Contains(d.Observe(ctx).Text, "Contact support") {
		t.Error("button message missing from observation")
	}
}

func TestSimDriverCloseIdempotent(t *testing.T) {
	ctx := context.Background()
	d := newSim(t, "zilloft")
	d.Navigate(ctx, "/")
	d.Type(ctx, "#search", "condo")
	for i := 0; i < 2; i++ {
		if err := d.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i+1, err)
		}
	}
	if len(d.History()) != 0 {
		t.Error("history not reset")
	}
	if st := d.State(); st["current_url"] != "" {
		t.Errorf("state not reset: %v", st)
	}
}

func TestSiteApplyConfig(t *testing.T) {
	site, _ := environment.DefaultSite("web_browsing")
	err := site.ApplyConfig(map[string]any{
		"pages": map[string]any{
			"docs": map[string]any{
				"title":   "Docs",
				"text":    "Quickstart guide",
				"links":   map[string]any{"#home": "/"},
				"inputs":  []any{"#q"},
				"selects": map[string]any{"#lang": []any{"go", "python"}},
			},
		},
	})
	if err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	d := environment.NewSimDriver(site)
	if o := d.Navigate(context.Background(), "/docs"); !o.Success {
		t.Fatalf("navigate: %+v", o)
	}
	if obs := d.Observe(context.Background()); obs.Title != "Docs" || !obs.Elements.Contains("#lang") {
		t.Errorf("unexpected observation: %+v", obs)
	}

	err = site.ApplyConfig(map[string]any{"pages": []any{"not", "a", "map"}})
	if !errors.Is(err, execution.ErrConfiguration) {
		t.Errorf("malformed pages: got %v, want ErrConfiguration", err)
	}
}
