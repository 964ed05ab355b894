// Package report renders the canonical away state as a human-readable table,
// as JSON, or as an iCalendar file of all-day events.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	json "github.com/goccy/go-json"

	"github.com/beekhof/vacation-calendar-sync/internal/event"
)

// Day lists who is away on one date. Entries are "<owner>", "<owner> AM" or
// "<owner> PM".
type Day struct {
	Date string   `json:"date"`
	Away []string `json:"away"`
}

// Build groups events by date and sorts both days and entries so the same
// input always renders the same report.
func Build(events []event.PresenceEvent) []Day {
	byDate := map[string][]string{}
	for _, e := range events {
		byDate[e.Day.Format(event.DayFormat)] = append(byDate[e.Day.Format(event.DayFormat)], entryLabel(e))
	}

	days := make([]Day, 0, len(byDate))
	for date, away := range byDate {
		sort.Strings(away)
		days = append(days, Day{Date: date, Away: away})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

func entryLabel(e event.PresenceEvent) string {
	switch e.Status {
	case event.StatusMorning:
		return e.Owner + " AM"
	case event.StatusAfternoon:
		return e.Owner + " PM"
	}
	return e.Owner
}

// WriteTable prints one comma-separated line per day.
func WriteTable(w io.Writer, days []Day) error {
	for _, d := range days {
		line := d.Date
		if len(d.Away) > 0 {
			line += "," + strings.Join(d.Away, ",")
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}

// WriteJSON emits the report as an indented JSON array.
func WriteJSON(w io.Writer, days []Day) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(days); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteICS emits the events as an iCalendar file of all-day VEVENTs. stamp is
// recorded as DTSTAMP on every component.
func WriteICS(w io.Writer, events []event.PresenceEvent, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//vacation-calendar-sync//EN")

	for _, e := range events {
		vevent := ical.NewComponent(ical.CompEvent)
		vevent.Props.SetText(ical.PropUID, e.SourceKey()+"@vacation-calendar-sync")
		vevent.Props.SetText(ical.PropSummary, e.Subject())

		dtstart := ical.NewProp("DTSTART")
		dtstart.SetDate(e.Day)
		vevent.Props.Set(dtstart)

		dtend := ical.NewProp("DTEND")
		dtend.SetDate(e.Day.AddDate(0, 0, 1))
		vevent.Props.Set(dtend)

		vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		cal.Children = append(cal.Children, vevent)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode iCalendar: %w", err)
	}
	return nil
}
