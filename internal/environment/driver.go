// Package environment provisions task environments and drives the agent's
// interaction with them.
package environment

import (
	"context"
	"time"
)

// Driver performs browser-style actions against one environment. Actions on
// missing elements report Success=false; they never return errors.
type Driver interface {
	Navigate(ctx context.Context, url string) Outcome
	Click(ctx context.Context, selector string) Outcome
	Type(ctx context.Context, selector, text string) Outcome
	Select(ctx context.Context, selector, value string) Outcome
	WaitFor(ctx context.Context, selector string, timeout time.Duration) Outcome
	Observe(ctx context.Context) Observation
	State() map[string]any
	History() []Outcome
	Close() error
}

// Outcome is the result of one driver action.
type Outcome struct {
	Action       string `json:"action"`
	Success      bool   `json:"success"`
	Selector     string `json:"selector,omitempty"`
	URL          string `json:"url,omitempty"`
	Value        string `json:"value,omitempty"`
	StateChanged bool   `json:"state_changed,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Observation is what the agent sees of the current page.
type Observation struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Text     string   `json:"content_text"`
	Elements Elements `json:"elements"`
}

type Elements struct {
	Links   []string `json:"links"`
	Buttons []string `json:"buttons"`
	Inputs  []string `json:"inputs"`
	Selects []string `json:"selects,omitempty"`
}

// Contains reports whether selector is any interactive element on the page.
func (e Elements) Contains(selector string) bool {
	for _, list := range [][]string{e.Links, e.Buttons, e.Inputs, e.Selects} {
		for _, s := range list {
			if s == selector {
				return true
			}
		}
	}
	return false
}
