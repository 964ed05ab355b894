package event

import (
	"strings"
	"time"

	"github.com/beekhof/vacation-calendar-sync/internal/window"
)

// endOfDayMin is 23:59 in minutes from midnight, the effective end used for
// days an absence runs through completely.
const endOfDayMin = 23*60 + 59

// RawSpan is the start/end pair of one source-calendar entry as the remote
// API reports it: either a plain date or a date-time, possibly with a
// seven-digit fractional second.
type RawSpan struct {
	Start string
	End   string
}

// Normalizer converts raw calendar entries into canonical presence events.
type Normalizer struct {
	Schedule Schedule
}

// Normalize converts one raw entry into zero or more per-day presence
// events. Multi-day spans are split into one event per covered calendar day;
// days whose effective interval classifies as StatusNone, or which do not
// overlap the sync window, are dropped. Malformed start/end values produce
// zero events, never an error: one broken entry must not poison the feed.
func (n Normalizer) Normalize(raw RawSpan, owner string, syncWindow window.Window) []PresenceEvent {
	start, err := parseGraphTime(raw.Start)
	if err != nil {
		return nil
	}
	end, err := parseGraphTime(raw.End)
	if err != nil {
		return nil
	}
	if !start.Before(end) {
		return nil
	}

	// window.Days already applies the midnight rule: a span ending exactly
	// at 00:00 does not cover its end day, so "Mon 00:00 to Wed 00:00" is
	// Monday and Tuesday only.
	days := window.New(start, end).Days()

	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	sameDay := start.Year() == end.Year() && start.YearDay() == end.YearDay()
	endsAtMidnight := endMin == 0 && end.Second() == 0

	var events []PresenceEvent
	for i, day := range days {
		var effStart, effEnd int
		interior := false
		switch {
		case sameDay:
			effStart, effEnd = startMin, endMin
		case i == 0:
			effStart, effEnd = startMin, endOfDayMin
		case i == len(days)-1 && !endsAtMidnight:
			effStart, effEnd = 0, endMin
		default:
			effStart, effEnd = 0, endOfDayMin
			interior = true
		}

		// Days strictly inside the span are away days by construction; only
		// the edges need the schedule consulted.
		status := StatusFullDay
		if !interior {
			status = n.Schedule.Classify(effStart, effEnd)
		}
		if status == StatusNone {
			continue
		}

		covered := window.New(
			day.Add(time.Duration(effStart)*time.Minute),
			day.Add(time.Duration(effEnd)*time.Minute),
		)
		if !syncWindow.Overlaps(covered) {
			continue
		}

		events = append(events, PresenceEvent{Owner: owner, Status: status, Day: day})
	}
	return events
}

// NormalizeShared reconstructs the canonical event behind one shared-calendar
// entry. Entries whose subject is not one of ours yield ok=false and are
// skipped by the caller.
func (n Normalizer) NormalizeShared(subject, start string) (PresenceEvent, bool) {
	owner, status, ok := ParseSubject(subject)
	if !ok {
		return PresenceEvent{}, false
	}

	at, err := parseGraphTime(start)
	if err != nil {
		return PresenceEvent{}, false
	}

	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	return PresenceEvent{Owner: owner, Status: status, Day: day}, true
}

// parseGraphTime parses the remote API's date or date-time strings. The
// fractional second is truncated, not rounded: the feed carries seven
// digits and the engine is day-grained, so dropping it can never move an
// instant across a boundary.
func parseGraphTime(s string) (time.Time, error) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if strings.ContainsRune(s, 'T') {
		return time.Parse("2006-01-02T15:04:05", s)
	}
	return time.Parse(DayFormat, s)
}
