package environment

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/signalnine/agentarena/internal/execution"
)

// Page is one page of a simulated site. Link targets are paths. A button
// whose target starts with "/" navigates there; any other target is a
// message shown on the current page.
type Page struct {
	Title   string              `json:"title"`
	Text    string              `json:"text"`
	Links   map[string]string   `json:"links,omitempty"`
	Buttons map[string]string   `json:"buttons,omitempty"`
	Inputs  []string            `json:"inputs,omitempty"`
	Selects map[string][]string `json:"selects,omitempty"`
}

func (p *Page) hasInput(selector string) bool {
	for _, in := range p.Inputs {
		if in == selector {
			return true
		}
	}
	return false
}

func (p *Page) elements() Elements {
	return Elements{
		Links:   sortedKeys(p.Links),
		Buttons: sortedKeys(p.Buttons),
		Inputs:  append([]string{}, p.Inputs...),
		Selects: sortedKeys(p.Selects),
	}
}

// Site is a simulated web application keyed by path.
type Site struct {
	Kind  string           `json:"kind"`
	Host  string           `json:"host"`
	Pages map[string]*Page `json:"pages"`
}

// DefaultSite builds the stock site for a supported kind.
func DefaultSite(kind string) (*Site, error) {
	k, err := NormalizeKind(kind)
	if err != nil {
		return nil, err
	}
	t := templates[k]
	item := strings.ToUpper(t.item[:1]) + t.item[1:]
	site := &Site{
		Kind: k,
		Host: strings.ReplaceAll(k, "_", "-") + ".arena.local",
		Pages: map[string]*Page{
			"/": {
				Title:   t.name + " - Home",
				Text:    fmt.Sprintf("Welcome to %s. %s.", t.name, t.tagline),
				Links:   map[string]string{"#search-link": "/search", "#home": "/"},
				Buttons: map[string]string{"#search-button": "/search", "#help": "Contact support at help@" + k + ".example"},
				Inputs:  []string{"#search"},
			},
			"/search": {
				Title: t.name + " - Search results",
				Text:  fmt.Sprintf("Showing results for your search. 2 %ss found.", t.item),
				Links: map[string]string{"#result-1": "/item/1", "#result-2": "/item/2", "#home": "/"},
			},
			"/confirmation": {
				Title: t.name + " - Confirmation",
				Text:  fmt.Sprintf("%s. Confirmation number %s-1001.", t.confirmation, t.prefix),
				Links: map[string]string{"#home": "/"},
			},
		},
	}
	for i := 1; i <= 2; i++ {
		site.Pages[fmt.Sprintf("/item/%d", i)] = &Page{
			Title:   fmt.Sprintf("%s - %s %d", t.name, item, i),
			Text:    fmt.Sprintf("Details for %s %d. Use %q to continue.", t.item, i, t.actionLabel),
			Links:   map[string]string{"#back": "/search", "#home": "/"},
			Buttons: map[string]string{"#confirm": "/confirmation"},
			Inputs:  []string{"#notes"},
			Selects: map[string][]string{"#quantity": {"1", "2", "3"}},
		}
	}
	return site, nil
}

// ApplyConfig merges environment_config["pages"] into the site. Each entry
// replaces the page at that path.
func (s *Site) ApplyConfig(cfg map[string]any) error {
	raw, ok := cfg["pages"]
	if !ok || raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return execution.Errorf(execution.ErrConfiguration, "environment pages: %v", err)
	}
	var pages map[string]*Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return execution.Errorf(execution.ErrConfiguration, "environment pages: %v", err)
	}
	for path, p := range pages {
		if p == nil {
			continue
		}
		s.Pages[normalizePath(path)] = p
	}
	return nil
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
