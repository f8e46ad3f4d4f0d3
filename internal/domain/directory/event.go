package directory

import (
	"cmp"
	"regexp"
	"slices"
	"time"
)

// EventTimeLayout is the timestamp format used by the events endpoint.
const EventTimeLayout = "2006-01-02 15:04:05"

// eventUserPattern matches the trailing "(user)" or "(user@address)" of an event message.
var eventUserPattern = regexp.MustCompile(`\(([^()\s@]+)(?:@[^()]*)?\)\s*$`)

// Event is one repository event reported by the server.
type Event struct {
	// Timestamp is when the server logged the event, in server local time.
	Timestamp time.Time
	// Message is the log line with addresses already stripped by the server.
	Message string
}

// User returns the username the event refers to, or "" when the message names none.
func (e Event) User() string {
	match := eventUserPattern.FindStringSubmatch(e.Message)
	if match == nil {
		return ""
	}

	return match[1]
}

// Key identifies an event across two polls of the same window.
func (e Event) Key() string {
	return e.Timestamp.Format(EventTimeLayout) + "|" + e.Message
}

// SortEvents orders events by timestamp, keeping the server order for equal ones.
func SortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return cmp.Compare(a.Timestamp.UnixNano(), b.Timestamp.UnixNano())
	})
}
