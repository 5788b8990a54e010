package agent

import (
	"fmt"
	"time"
)

// Kind identifies what an Action does.
type Kind string

const (
	KindClick    Kind = "click"
	KindType     Kind = "type"
	KindNavigate Kind = "navigate"
	KindSelect   Kind = "select"
	KindWait     Kind = "wait"
	KindFinish   Kind = "finish_task"
	KindError    Kind = "error"
)

// Action is one decision of the agent. Which fields are meaningful depends
// on Kind.
type Action struct {
	Kind        Kind          `json:"type"`
	Selector    string        `json:"selector,omitempty"`
	Text        string        `json:"text,omitempty"`
	URL         string        `json:"url,omitempty"`
	Value       string        `json:"value,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Message     string        `json:"message,omitempty"`
	Description string        `json:"description,omitempty"`
}

func Click(selector string) Action { return Action{Kind: KindClick, Selector: selector} }
func Type(selector, text string) Action {
	return Action{Kind: KindType, Selector: selector, Text: text}
}
func Navigate(url string) Action { return Action{Kind: KindNavigate, URL: url} }
func Select(selector, value string) Action {
	return Action{Kind: KindSelect, Selector: selector, Value: value}
}
func Wait(d time.Duration) Action { return Action{Kind: KindWait, Duration: d} }
func WaitFor(selector string, d time.Duration) Action {
	return Action{Kind: KindWait, Selector: selector, Duration: d}
}
func Finish(reason string) Action { return Action{Kind: KindFinish, Reason: reason} }
func Error(msg string) Action     { return Action{Kind: KindError, Message: msg} }

func (a Action) String() string {
	switch a.Kind {
	case KindClick:
		return fmt.Sprintf("click %s", a.Selector)
	case KindType:
		return fmt.Sprintf("type %q into %s", a.Text, a.Selector)
	case KindNavigate:
		return fmt.Sprintf("navigate %s", a.URL)
	case KindSelect:
		return fmt.Sprintf("select %q in %s", a.Value, a.Selector)
	case KindWait:
		if a.Selector != "" {
			return fmt.Sprintf("wait for %s (%s)", a.Selector, a.Duration)
		}
		return fmt.Sprintf("wait %s", a.Duration)
	case KindFinish:
		return fmt.Sprintf("finish_task: %s", a.Reason)
	case KindError:
		return fmt.Sprintf("error: %s", a.Message)
	default:
		return string(a.Kind)
	}
}
