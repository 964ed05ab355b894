package window

import (
	"fmt"
	"time"
)

// Window is a half-open time interval [Start, End). An instant equal to End
// is outside the window; an event that began before Start but reaches into
// the interval still overlaps it.
type Window struct {
	Start time.Time
	End   time.Time
}

// New returns the window [start, end).
func New(start, end time.Time) Window {
	return Window{Start: start, End: end}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports whether the two windows share at least one instant.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

// Days returns the midnight of every calendar day the window covers, in
// order. A window ending exactly at midnight does not cover the end day.
// The result is a pure function of Start and End.
func (w Window) Days() []time.Time {
	if !w.Start.Before(w.End) {
		return nil
	}

	var days []time.Time
	day := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, w.Start.Location())
	for day.Before(w.End) {
		days = append(days, day)
		day = day.AddDate(0, 0, 1)
	}
	return days
}
