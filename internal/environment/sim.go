package environment

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// SimDriver drives a Site entirely in memory.
type SimDriver struct {
	site     *Site
	path     string
	values   map[string]string
	messages []string
	history  []Outcome
}

func NewSimDriver(site *Site) *SimDriver {
	return &SimDriver{site: site, values: make(map[string]string)}
}

func (d *SimDriver) baseURL() string { return "http://" + d.site.Host }

func (d *SimDriver) currentURL() string {
	if d.path == "" {
		return ""
	}
	return d.baseURL() + d.path
}

func (d *SimDriver) page() *Page {
	if d.path == "" {
		return nil
	}
	return d.site.Pages[d.path]
}

func (d *SimDriver) record(o Outcome) Outcome {
	d.history = append(d.history, o)
	return o
}

func (d *SimDriver) resolve(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return normalizePath(raw)
	}
	if u.Host != "" && u.Host != d.site.Host {
		return ""
	}
	return normalizePath(u.Path)
}

func (d *SimDriver) goTo(path string) {
	if path != d.path {
		d.values = make(map[string]string)
	}
	d.path = path
	d.messages = nil
}

func (d *SimDriver) Navigate(ctx context.Context, rawURL string) Outcome {
	o := Outcome{Action: "navigate", URL: rawURL}
	path := d.resolve(rawURL)
	if path == "" {
		o.Error = fmt.Sprintf("host not reachable from %s: %s", d.site.Kind, rawURL)
		return d.record(o)
	}
	if _, ok := d.site.Pages[path]; !ok {
		o.Error = "page not found: " + path
		return d.record(o)
	}
	d.goTo(path)
	o.Success = true
	o.StateChanged = true
	o.URL = d.currentURL()
	return d.record(o)
}

func (d *SimDriver) Click(ctx context.Context, selector string) Outcome {
	o := Outcome{Action: "click", Selector: selector}
	p := d.page()
	if p == nil {
		o.Error = "no page loaded"
		return d.record(o)
	}
	if target, ok := p.Links[selector]; ok {
		return d.follow(o, target)
	}
	if target, ok := p.Buttons[selector]; ok {
		if strings.HasPrefix(target, "/") {
			return d.follow(o, target)
		}
		d.messages = append(d.messages, target)
		o.Success = true
		o.StateChanged = true
		o.URL = d.currentURL()
		return d.record(o)
	}
	o.Error = "element not found: " + selector
	return d.record(o)
}

func (d *SimDriver) follow(o Outcome, target string) Outcome {
	path := normalizePath(target)
	if _, ok := d.site.Pages[path]; !ok {
		o.Error = "page not found: " + path
		return d.record(o)
	}
	d.goTo(path)
	o.Success = true
	o.StateChanged = true
	o.URL = d.currentURL()
	return d.record(o)
}

func (d *SimDriver) Type(ctx context.Context, selector, text string) Outcome {
	o := Outcome{Action: "type", Selector: selector, Value: text}
	p := d.page()
	if p == nil || !p.hasInput(selector) {
		o.Error = "element not found: " + selector
		return d.record(o)
	}
	d.values[selector] = text
	o.Success = true
	o.StateChanged = true
	return d.record(o)
}

func (d *SimDriver) Select(ctx context.Context, selector, value string) Outcome {
	o := Outcome{Action: "select", Selector: selector, Value: value}
	p := d.page()
	if p == nil {
		o.Error = "element not found: " + selector
		return d.record(o)
	}
	options, ok := p.Selects[selector]
	if !ok {
		o.Error = "element not found: " + selector
		return d.record(o)
	}
	if len(options) > 0 && !contains(options, value) {
		o.Error = fmt.Sprintf("option %q not available in %s", value, selector)
		return d.record(o)
	}
	d.values[selector] = value
	o.Success = true
	o.StateChanged = true
	return d.record(o)
}

// WaitFor succeeds immediately when the element is present. The simulated
// site never changes on its own, so there is nothing to wait for otherwise.
func (d *SimDriver) WaitFor(ctx context.Context, selector string, timeout time.Duration) Outcome {
	o := Outcome{Action: "wait", Selector: selector}
	p := d.page()
	if p != nil && p.elements().Contains(selector) {
		o.Success = true
	} else {
		o.Error = fmt.Sprintf("element %s not found within %s", selector, timeout)
	}
	return d.record(o)
}

func (d *SimDriver) Observe(ctx context.Context) Observation {
	p := d.page()
	if p == nil {
		return Observation{Text: "No page loaded."}
	}
	var text strings.Builder
	text.WriteString(p.Text)
	for _, m := range d.messages {
		text.WriteString("\n")
		text.WriteString(m)
	}
	keys := sortedKeys(d.values)
	for _, k := range keys {
		fmt.Fprintf(&text, "\n%s: %s", k, d.values[k])
	}
	return Observation{
		URL:      d.currentURL(),
		Title:    p.Title,
		Text:     text.String(),
		Elements: p.elements(),
	}
}

func (d *SimDriver) State() map[string]any {
	values := make(map[string]string, len(d.values))
	for k, v := range d.values {
		values[k] = v
	}
	title := ""
	if p := d.page(); p != nil {
		title = p.Title
	}
	return map[string]any{
		"kind":         d.site.Kind,
		"current_url":  d.currentURL(),
		"title":        title,
		"form_values":  values,
		"action_count": len(d.history),
	}
}

func (d *SimDriver) History() []Outcome {
	return append([]Outcome(nil), d.history...)
}

// Close resets the driver to its initial state. It is idempotent.
func (d *SimDriver) Close() error {
	d.path = ""
	d.values = make(map[string]string)
	d.messages = nil
	d.history = nil
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
