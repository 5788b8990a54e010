package environment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const maxPageBytes = 2 << 20

type htmlElement struct {
	selector string
	kind     string // link, button, input, select
	href     string
	name     string
	value    string
	options  []string
	form     *htmlForm
}

type htmlForm struct {
	action string
	method string
	fields []*htmlElement
}

type htmlPage struct {
	url      *url.URL
	title    string
	text     string
	elements []*htmlElement
}

func (p *htmlPage) find(selector string) *htmlElement {
	for _, e := range p.elements {
		if e.selector == selector {
			return e
		}
	}
	return nil
}

// HTTPDriver drives a real web application over plain HTTP. It fetches
// pages and parses their HTML; it does not run scripts.
type HTTPDriver struct {
	BaseURL string
	Client  *http.Client

	page    *htmlPage
	values  map[string]string
	history []Outcome
}

func NewHTTPDriver(baseURL string, client *http.Client) *HTTPDriver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPDriver{BaseURL: baseURL, Client: client, values: make(map[string]string)}
}

func (d *HTTPDriver) record(o Outcome) Outcome {
	d.history = append(d.history, o)
	return o
}

func (d *HTTPDriver) resolve(raw string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	base := d.page.urlOr(d.BaseURL)
	if base == nil {
		return ref, nil
	}
	return base.ResolveReference(ref), nil
}

func (p *htmlPage) urlOr(fallback string) *url.URL {
	if p != nil && p.url != nil {
		return p.url
	}
	u, err := url.Parse(fallback)
	if err != nil || fallback == "" {
		return nil
	}
	return u
}

func (d *HTTPDriver) load(req *http.Request) error {
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned %d", req.URL, resp.StatusCode)
	}
	page, err := parsePage(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", req.URL, err)
	}
	page.url = resp.Request.URL
	d.page = page
	d.values = make(map[string]string)
	return nil
}

func (d *HTTPDriver) get(ctx context.Context, u *url.URL) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	return d.load(req)
}

func (d *HTTPDriver) Navigate(ctx context.Context, rawURL string) Outcome {
	o := Outcome{Action: "navigate", URL: rawURL}
	u, err := d.resolve(rawURL)
	if err != nil {
		o.Error = err.Error()
		return d.record(o)
	}
	if err := d.get(ctx, u); err != nil {
		o.Error = err.Error()
		return d.record(o)
	}
	o.Success = true
	o.StateChanged = true
	o.URL = d.page.url.String()
	return d.record(o)
}

func (d *HTTPDriver) Click(ctx context.Context, selector string) Outcome {
	o := Outcome{Action: "click", Selector: selector}
	if d.page == nil {
		o.Error = "no page loaded"
		return d.record(o)
	}
	el := d.page.find(selector)
	if el == nil {
		o.Error = "element not found: " + selector
		return d.record(o)
	}
	var err error
	switch {
	case el.kind == "link":
		var u *url.URL
		if u, err = d.resolve(el.href); err == nil {
			err = d.get(ctx, u)
		}
	case el.kind == "button" && el.form != nil:
		err = d.submit(ctx, el)
	default:
		o.Success = true
		o.URL = d.page.url.String()
		return d.record(o)
	}
	if err != nil {
		o.Error = err.Error()
		return d.record(o)
	}
	o.Success = true
	o.StateChanged = true
	o.URL = d.page.url.String()
	return d.record(o)
}

func (d *HTTPDriver) submit(ctx context.Context, button *htmlElement) error {
	f := button.form
	form := url.Values{}
	for _, field := range f.fields {
		if field.name == "" {
			continue
		}
		v, typed := d.values[field.selector]
		if !typed {
			v = field.value
		}
		form.Set(field.name, v)
	}
	if button.name != "" {
		form.Set(button.name, button.value)
	}
	target, err := d.resolve(f.action)
	if err != nil {
		return err
	}
	var req *http.Request
	if f.method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		target.RawQuery = form.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return err
		}
	}
	return d.load(req)
}

func (d *HTTPDriver) Type(ctx context.Context, selector, text string) Outcome {
	o := Outcome{Action: "type", Selector: selector, Value: text}
	if d.page == nil {
		o.Error = "element not found: " + selector
		return d.record(o)
	}
	el := d.page.find(selector)
	if el == nil || el.kind != "input" {
		o.Error = "element not found: " + selector
		return d.record(o)
	}
	d.values[selector] = text
	o.Success = true
	o.StateChanged = true
	return d.record(o)
}

func (d *HTTPDriver) Select(ctx context.Context, selector, value string) Outcome {
	o := Outcome{Action: "select", Selector: selector, Value: value}
	var el *htmlElement
	if d.page != nil {
		el = d.page.find(selector)
	}
	if el == nil || el.kind != "select" {
		o.Error = "element not found: " + selector
		return d.record(o)
	}
	if len(el.options) > 0 && !contains(el.options, value) {
		o.Error = fmt.Sprintf("option %q not available in %s", value, selector)
		return d.record(o)
	}
	d.values[selector] = value
	o.Success = true
	o.StateChanged = true
	return d.record(o)
}

// WaitFor reloads the current page until selector appears or timeout
// elapses.
func (d *HTTPDriver) WaitFor(ctx context.Context, selector string, timeout time.Duration) Outcome {
	o := Outcome{Action: "wait", Selector: selector}
	deadline := time.Now().Add(timeout)
	for {
		if d.page != nil && d.page.find(selector) != nil {
			o.Success = true
			return d.record(o)
		}
		if d.page == nil || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			o.Error = ctx.Err().Error()
			return d.record(o)
		case <-time.After(250 * time.Millisecond):
		}
		values := d.values
		if err := d.get(ctx, d.page.url); err != nil {
			o.Error = err.Error()
			return d.record(o)
		}
		d.values = values
	}
	o.Error = fmt.Sprintf("element %s not found within %s", selector, timeout)
	return d.record(o)
}

func (d *HTTPDriver) Observe(ctx context.Context) Observation {
	if d.page == nil {
		return Observation{Text: "No page loaded."}
	}
	obs := Observation{URL: d.page.url.String(), Title: d.page.title}
	obs.Elements = Elements{Links: []string{}, Buttons: []string{}, Inputs: []string{}}
	for _, e := range d.page.elements {
		switch e.kind {
		case "link":
			obs.Elements.Links = append(obs.Elements.Links, e.selector)
		case "button":
			obs.Elements.Buttons = append(obs.Elements.Buttons, e.selector)
		case "input":
			obs.Elements.Inputs = append(obs.Elements.Inputs, e.selector)
		case "select":
			obs.Elements.Selects = append(obs.Elements.Selects, e.selector)
		}
	}
	var text strings.Builder
	text.WriteString(d.page.text)
	keys := make([]string, 0, len(d.values))
	for k := range d.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&text, "\n%s: %s", k, d.values[k])
	}
	obs.Text = text.String()
	return obs
}

func (d *HTTPDriver) State() map[string]any {
	current, title := "", ""
	if d.page != nil {
		current, title = d.page.url.String(), d.page.title
	}
	values := make(map[string]string, len(d.values))
	for k, v := range d.values {
		values[k] = v
	}
	return map[string]any{
		"base_url":     d.BaseURL,
		"current_url":  current,
		"title":        title,
		"form_values":  values,
		"action_count": len(d.history),
	}
}

func (d *HTTPDriver) History() []Outcome {
	return append([]Outcome(nil), d.history...)
}

func (d *HTTPDriver) Close() error {
	d.page = nil
	d.values = make(map[string]string)
	d.history = nil
	return nil
}

// parsePage extracts the title, visible text and interactive elements.
func parsePage(r io.Reader) (*htmlPage, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	p := &htmlPage{}
	var text []string
	seen := make(map[string]int)
	var walk func(n *html.Node, form *htmlForm)
	walk = func(n *html.Node, form *htmlForm) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "title":
				if n.FirstChild != nil && p.title == "" {
					p.title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case "form":
				method := strings.ToUpper(attr(n, "method"))
				if method != http.MethodPost {
					method = http.MethodGet
				}
				form = &htmlForm{action: attr(n, "action"), method: method}
			case "a":
				if href := attr(n, "href"); href != "" {
					p.add(&htmlElement{selector: selectorFor(n, "a", seen), kind: "link", href: href})
				}
			case "button":
				typ := strings.ToLower(attr(n, "type"))
				el := &htmlElement{selector: selectorFor(n, "button", seen), kind: "button", name: attr(n, "name"), value: attr(n, "value")}
				if typ == "" || typ == "submit" {
					el.form = form
				}
				p.add(el)
			case "input":
				typ := strings.ToLower(attr(n, "type"))
				switch typ {
				case "submit", "image":
					p.add(&htmlElement{selector: selectorFor(n, "input", seen), kind: "button", name: attr(n, "name"), value: attr(n, "value"), form: form})
				case "hidden":
					if form != nil {
						form.fields = append(form.fields, &htmlElement{kind: "hidden", name: attr(n, "name"), value: attr(n, "value")})
					}
				default:
					el := &htmlElement{selector: selectorFor(n, "input", seen), kind: "input", name: attr(n, "name"), value: attr(n, "value"), form: form}
					p.add(el)
					if form != nil {
						form.fields = append(form.fields, el)
					}
				}
			case "textarea":
				el := &htmlElement{selector: selectorFor(n, "textarea", seen), kind: "input", name: attr(n, "name"), form: form}
				p.add(el)
				if form != nil {
					form.fields = append(form.fields, el)
				}
			case "select":
				el := &htmlElement{selector: selectorFor(n, "select", seen), kind: "select", name: attr(n, "name"), form: form}
				collectOptions(n, el)
				p.add(el)
				if form != nil {
					form.fields = append(form.fields, el)
				}
			}
		}
		if n.Type == html.TextNode {
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				text = append(text, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, form)
		}
	}
	walk(doc, nil)
	p.text = strings.Join(text, " ")
	return p, nil
}

func (p *htmlPage) add(e *htmlElement) { p.elements = append(p.elements, e) }

func collectOptions(n *html.Node, el *htmlElement) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.Data == "optgroup" {
			collectOptions(c, el)
			continue
		}
		if c.Data != "option" {
			continue
		}
		v, ok := attrOK(c, "value")
		if !ok && c.FirstChild != nil {
			v = strings.TrimSpace(c.FirstChild.Data)
		}
		el.options = append(el.options, v)
		if _, sel := attrOK(c, "selected"); sel || len(el.options) == 1 {
			el.value = v
		}
	}
}

// selectorFor prefers #id, then tag[name="..."], then a positional
// tag:nth-of-type selector.
func selectorFor(n *html.Node, tag string, seen map[string]int) string {
	if id := attr(n, "id"); id != "" {
		return "#" + id
	}
	if name := attr(n, "name"); name != "" {
		return fmt.Sprintf("%s[name=%q]", tag, name)
	}
	seen[tag]++
	return fmt.Sprintf("%s:nth-of-type(%d)", tag, seen[tag])
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
