// Package reconcile computes the minimal edit set that brings the shared
// calendar in line with the canonical state derived from individual
// calendars. It only decides what to change; carrying the changes out is the
// dispatcher's job, which keeps this logic testable with no network.
package reconcile

import (
	"sort"

	"github.com/beekhof/vacation-calendar-sync/internal/event"
)

// Diff returns the events missing from the shared calendar (toAdd) and the
// events present there but no longer backed by any individual calendar
// (toDelete). The two sets are disjoint and together partition the symmetric
// difference of the inputs; events present on both sides appear in neither.
// Diff consults no clock and no randomness, so identical inputs always
// produce identical output, in a deterministic order.
func Diff(individual, shared []event.PresenceEvent) (toAdd, toDelete []event.PresenceEvent) {
	want := keyed(individual)
	have := keyed(shared)

	for k, e := range want {
		if _, ok := have[k]; !ok {
			toAdd = append(toAdd, e)
		}
	}
	for k, e := range have {
		if _, ok := want[k]; !ok {
			toDelete = append(toDelete, e)
		}
	}

	sortEvents(toAdd)
	sortEvents(toDelete)
	return toAdd, toDelete
}

// keyed collapses a slice into a set keyed by canonical identity; duplicate
// statements of the same presence fact fold into one.
func keyed(events []event.PresenceEvent) map[event.Key]event.PresenceEvent {
	set := make(map[event.Key]event.PresenceEvent, len(events))
	for _, e := range events {
		set[e.Key()] = e
	}
	return set
}

func sortEvents(events []event.PresenceEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Owner != events[j].Owner {
			return events[i].Owner < events[j].Owner
		}
		if !events[i].Day.Equal(events[j].Day) {
			return events[i].Day.Before(events[j].Day)
		}
		return events[i].Status < events[j].Status
	})
}
