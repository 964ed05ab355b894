package event

import (
	"strings"
	"time"
)

// DayFormat is the calendar-date form used in keys and Graph filters.
const DayFormat = "2006-01-02"

// Status is the portion of a day a person is away.
type Status int

const (
	StatusNone Status = iota
	StatusFullDay
	StatusMorning
	StatusAfternoon
)

// statusText is the wire encoding used in shared-calendar subjects. Other
// tooling and manual edits must match it exactly to be recognized on re-read,
// so it is bit-exact and case-sensitive.
var statusText = map[Status]string{
	StatusFullDay:   "OUT",
	StatusMorning:   "OUT AM",
	StatusAfternoon: "OUT PM",
}

func (s Status) String() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	return "NONE"
}

// Key identifies a presence fact by value: two events are the same fact iff
// owner, status and day are equal, regardless of how the remote calendar
// stores them. It is a comparable struct so it can be used directly as a map
// key, instead of the string concatenation the problem invites.
type Key struct {
	Owner  string
	Status Status
	Day    string // YYYY-MM-DD
}

// PresenceEvent is the canonical record that a person is away for some
// portion of a calendar day. Instances are created fresh each cycle by the
// normalizer and never mutated.
type PresenceEvent struct {
	Owner  string
	Status Status
	Day    time.Time // midnight of the day the event applies to
}

// Key returns the identity of the event for reconciliation.
func (e PresenceEvent) Key() Key {
	return Key{Owner: e.Owner, Status: e.Status, Day: e.Day.Format(DayFormat)}
}

// SourceKey is a stable, injective string form of Key, used for audit
// records and log lines. It carries no timestamp or random component, so
// re-running a cycle over unchanged inputs produces identical keys.
func (e PresenceEvent) SourceKey() string {
	return e.Owner + "|" + e.Status.String() + "|" + e.Day.Format(DayFormat)
}

// Subject renders the shared-calendar subject line for the event.
func (e PresenceEvent) Subject() string {
	return e.Owner + " " + e.Status.String()
}

// ParseSubject is the exact inverse of Subject. It reports ok=false for any
// subject that is not one of ours; the shared calendar may contain unrelated
// entries and they are ignored, not rejected.
func ParseSubject(subject string) (owner string, status Status, ok bool) {
	parts := strings.SplitN(subject, " ", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", StatusNone, false
	}
	for st, text := range statusText {
		if parts[1] == text {
			return parts[0], st, true
		}
	}
	return "", StatusNone, false
}

// TrimDomain strips a mail-domain suffix from an identifier, so that
// "asmith@example.edu" and a bare "asmith" name the same owner.
func TrimDomain(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		return id[:i]
	}
	return id
}
