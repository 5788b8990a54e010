package agent

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

const defaultWait = time.Second

var (
	idSelectorRe = regexp.MustCompile(`#[A-Za-z0-9_-]+`)
	quotedRe     = regexp.MustCompile("\"([^\"]+)\"|`([^`]+)`")
	urlRe        = regexp.MustCompile(`https?://[^\s"'<>]+`)
	pathRe       = regexp.MustCompile(`(?:^|\s)(/[^\s"'<>]*)`)
	clickRe      = regexp.MustCompile(`(?i)\bclick`)
	typeRe       = regexp.MustCompile(`(?i)\btype\b`)
	intoRe       = regexp.MustCompile(`(?i)\binto\b`)
	navigateRe   = regexp.MustCompile(`(?i)\bnavigate|\bgo to\b`)
)

var kindAliases = map[string]Kind{
	"click":         KindClick,
	"type":          KindType,
	"input":         KindType,
	"fill":          KindType,
	"navigate":      KindNavigate,
	"goto":          KindNavigate,
	"go_to":         KindNavigate,
	"select":        KindSelect,
	"wait":          KindWait,
	"wait_for":      KindWait,
	"finish_task":   KindFinish,
	"finish":        KindFinish,
	"task_complete": KindFinish,
	"complete":      KindFinish,
	"done":          KindFinish,
	"error":         KindError,
}

// ParseAction turns a model reply into an Action. A JSON object anywhere in
// the reply wins; otherwise keyword heuristics apply, and a reply that
// matches nothing becomes a one second wait.
func ParseAction(reply string) Action {
	if a, ok := parseJSONAction(reply); ok {
		return a
	}
	a := parseHeuristic(reply)
	a.Description = describe(reply)
	return a
}

func describe(reply string) string {
	reply = strings.TrimSpace(reply)
	if r := []rune(reply); len(r) > 100 {
		return string(r[:100]) + "..."
	}
	return reply
}

func parseJSONAction(reply string) (Action, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Action{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return Action{}, false
	}
	kind := firstString(raw, "type", "action_type", "action")
	if kind == "" {
		return Action{}, false
	}
	k, known := kindAliases[strings.ToLower(kind)]
	if !known {
		k = Kind(strings.ToLower(kind))
	}
	a := Action{
		Kind:        k,
		Selector:    firstString(raw, "selector", "element", "target"),
		URL:         firstString(raw, "url", "href"),
		Reason:      firstString(raw, "reason"),
		Message:     firstString(raw, "message", "error"),
		Description: firstString(raw, "description", "thought"),
	}
	switch k {
	case KindType:
		a.Text = firstString(raw, "text", "value")
	case KindSelect:
		a.Value = firstString(raw, "value", "option")
	case KindWait:
		a.Duration = durationOf(raw)
	case KindFinish:
		if a.Reason == "" {
			a.Reason = "Task completed successfully"
		}
	}
	return a, true
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func durationOf(m map[string]any) time.Duration {
	if v, ok := m["milliseconds"].(float64); ok {
		return time.Duration(v) * time.Millisecond
	}
	if v, ok := m["duration_ms"].(float64); ok {
		return time.Duration(v) * time.Millisecond
	}
	if v, ok := m["seconds"].(float64); ok {
		return time.Duration(v * float64(time.Second))
	}
	return defaultWait
}

func parseHeuristic(reply string) Action {
	lines := strings.Split(reply, "\n")
	switch {
	case clickRe.MatchString(reply):
		for _, line := range lines {
			if clickRe.MatchString(line) {
				if sel := selectorIn(line); sel != "" {
					return Click(sel)
				}
			}
		}
		return Click("")
	case typeRe.MatchString(reply):
		for _, line := range lines {
			loc := intoRe.FindStringIndex(line)
			if loc == nil || !typeRe.MatchString(line[:loc[0]]) {
				continue
			}
			return Type(selectorIn(line[loc[1]:]), typedText(line[:loc[0]]))
		}
		return Type("", "")
	case navigateRe.MatchString(reply):
		for _, line := range lines {
			if !navigateRe.MatchString(line) {
				continue
			}
			if u := urlRe.FindString(line); u != "" {
				return Navigate(strings.TrimRight(u, ".,;)"))
			}
			if m := pathRe.FindStringSubmatch(line); m != nil {
				return Navigate(strings.TrimRight(m[1], ".,;)"))
			}
		}
		return Navigate("")
	case isCompletion(reply):
		return Finish("Task completed successfully")
	default:
		return Wait(defaultWait)
	}
}

func isCompletion(reply string) bool {
	l := strings.ToLower(reply)
	return strings.Contains(l, "task") && strings.Contains(l, "complete")
}

func selectorIn(s string) string {
	if sel := idSelectorRe.FindString(s); sel != "" {
		return sel
	}
	if m := quotedRe.FindStringSubmatch(s); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[2]
	}
	return ""
}

func typedText(s string) string {
	if m := quotedRe.FindStringSubmatch(s); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[2]
	}
	loc := typeRe.FindStringIndex(s)
	return strings.Trim(strings.TrimSpace(s[loc[1]:]), `"'`)
}
