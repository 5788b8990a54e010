package environment

import (
	"sort"
	"strings"

	"github.com/signalnine/agentarena/internal/execution"
)

type siteTemplate struct {
	name         string
	tagline      string
	item         string
	actionLabel  string
	confirmation string
	prefix       string
}

var templates = map[string]siteTemplate{
	"omnizon":      {"Omnizon", "Shop electronics, books and home goods", "product", "Add to cart and checkout", "Order placed successfully", "OMZ"},
	"fly_united":   {"Fly United", "Book flights to hundreds of destinations", "flight", "Book flight", "Flight booked successfully", "FLY"},
	"gomail":       {"GoMail", "Your inbox, organized", "message", "Send email", "Email sent successfully", "GML"},
	"staynb":       {"StayNB", "Find unique places to stay", "listing", "Reserve", "Reservation confirmed", "STY"},
	"dashdish":     {"DashDish", "Food delivery from local restaurants", "dish", "Place order", "Order confirmed", "DSH"},
	"gocalendar":   {"GoCalendar", "Plan your schedule", "event", "Save event", "Event created successfully", "CAL"},
	"networkin":    {"NetworkIn", "Grow your professional network", "profile", "Connect", "Connection request sent", "NET"},
	"udriver":      {"UDriver", "Request a ride in minutes", "ride", "Request ride", "Ride requested successfully", "UDR"},
	"topwork":      {"TopWork", "Hire top freelancers", "job", "Submit proposal", "Proposal submitted successfully", "TOP"},
	"opendining":   {"OpenDining", "Reserve a table at great restaurants", "restaurant", "Book table", "Table reserved successfully", "DIN"},
	"zilloft":      {"Zilloft", "Homes for sale and rent", "home", "Contact agent", "Message sent to agent", "ZLF"},
	"web_browsing": {"Web Browser", "A general purpose browsing sandbox", "page", "Submit", "Form submitted successfully", "WEB"},
}

// Kinds lists the supported environment kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(templates))
	for k := range templates {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// NormalizeKind lowercases kind and checks it is supported.
func NormalizeKind(kind string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(kind))
	if _, ok := templates[k]; !ok {
		return "", execution.Errorf(execution.ErrConfiguration, "unsupported environment type: %s", kind)
	}
	return k, nil
}
