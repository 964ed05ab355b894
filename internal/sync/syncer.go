// Package sync runs one synchronization cycle: read every member's away
// spans from Graph, read the shared team calendar, compute the difference and
// apply it. All Graph access goes through the GraphAPI interface so the whole
// cycle is testable against a mock.
package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/beekhof/vacation-calendar-sync/internal/audit"
	"github.com/beekhof/vacation-calendar-sync/internal/config"
	"github.com/beekhof/vacation-calendar-sync/internal/dispatch"
	"github.com/beekhof/vacation-calendar-sync/internal/event"
	"github.com/beekhof/vacation-calendar-sync/internal/graph"
	"github.com/beekhof/vacation-calendar-sync/internal/notify"
	"github.com/beekhof/vacation-calendar-sync/internal/reconcile"
	"github.com/beekhof/vacation-calendar-sync/internal/window"
)

// GraphAPI is the slice of the Graph client a cycle needs.
type GraphAPI interface {
	GetSchedule(ctx context.Context, addresses []string, win window.Window, timezone string) ([]graph.MemberSchedule, error)
	FindCalendarByName(ctx context.Context, name string) (string, error)
	ListEvents(ctx context.Context, calendarID string, win window.Window) ([]graph.RemoteEvent, error)
	SubmitBatch(ctx context.Context, requests []graph.BatchRequest) ([]graph.BatchResponse, error)
}

// Syncer drives synchronization cycles for one team.
type Syncer struct {
	api        GraphAPI
	config     *config.Config
	normalizer event.Normalizer
	collector  *notify.Collector
	trail      *audit.Store
}

// CycleResult summarizes what one cycle changed.
type CycleResult struct {
	Added    int
	Deleted  int
	Failed   int
	Outcomes []dispatch.Outcome
}

// NewSyncer builds a Syncer. trail may be nil to disable the audit log.
func NewSyncer(api GraphAPI, cfg *config.Config, collector *notify.Collector, trail *audit.Store) (*Syncer, error) {
	schedule, err := cfg.WorkDay.Schedule()
	if err != nil {
		return nil, err
	}
	return &Syncer{
		api:        api,
		config:     cfg,
		normalizer: event.Normalizer{Schedule: schedule},
		collector:  collector,
		trail:      trail,
	}, nil
}

// DefaultWindow derives the sync window from now: the configured number of
// weeks back and forward from the start of the current week (Monday).
func (s *Syncer) DefaultWindow(now time.Time) window.Window {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := (int(day.Weekday()) + 6) % 7 // days since Monday
	weekStart := day.AddDate(0, 0, -offset)

	start := weekStart.AddDate(0, 0, -7*s.config.WindowWeeksPast)
	end := weekStart.AddDate(0, 0, 7*s.config.WindowWeeks)
	return window.New(start, end)
}

// Sync runs one full cycle over the window. The returned result covers every
// dispatched event; the error is non-nil when the cycle could not run at all
// or had to abort on an inconsistent shared-calendar snapshot.
func (s *Syncer) Sync(ctx context.Context, win window.Window) (*CycleResult, error) {
	cycleStart := time.Now()

	schedules, err := s.api.GetSchedule(ctx, s.config.Members, win, s.config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to read member schedules: %w", err)
	}
	individual := s.collectIndividual(schedules, win)

	shared, remoteIDs, calendarID, err := s.SharedState(ctx, win)
	if err != nil {
		return nil, err
	}

	toAdd, toDelete := reconcile.Diff(individual, shared)
	log.Printf("Cycle %s: %d away events from %d members, %d on shared calendar, %d to add, %d to delete",
		win, len(individual), len(schedules), len(shared), len(toAdd), len(toDelete))

	dispatcher := dispatch.NewDispatcher(s.api, calendarID, s.config.BatchSize,
		s.config.Timezone, s.config.AwayTag, dispatch.RetryPolicy{
			MaxAttempts: s.config.Retry.MaxAttempts,
			BaseDelay:   s.config.Retry.BaseDelay.Std(),
			Multiplier:  s.config.Retry.Multiplier,
		})

	result := &CycleResult{}
	result.Outcomes = append(result.Outcomes, dispatcher.SubmitAdditions(ctx, toAdd)...)

	deleteOutcomes, err := dispatcher.SubmitDeletions(ctx, toDelete, remoteIDs)
	if err != nil {
		// The shared-calendar snapshot no longer matches the delete set.
		// Nothing was deleted; report, record and surface the abort.
		s.collector.Add(notify.ClassConsistency, err.Error())
		if s.trail != nil {
			if auditErr := s.trail.Record(cycleStart, "consistency_violation", "", err.Error()); auditErr != nil {
				log.Printf("Failed to record consistency violation: %v", auditErr)
			}
		}
		s.finish(ctx, cycleStart, result)
		return result, fmt.Errorf("delete phase aborted: %w", err)
	}
	result.Outcomes = append(result.Outcomes, deleteOutcomes...)

	s.finish(ctx, cycleStart, result)
	return result, nil
}

// finish tallies outcomes, records the audit trail and flushes notifications.
func (s *Syncer) finish(ctx context.Context, cycleStart time.Time, result *CycleResult) {
	for _, o := range result.Outcomes {
		switch o.Result {
		case dispatch.Created:
			result.Added++
		case dispatch.Deleted:
			result.Deleted++
		case dispatch.ItemFailed:
			result.Failed++
			s.collector.Add(notify.ClassItemFailure, fmt.Sprintf("%s: %s", o.Event.SourceKey(), o.Reason))
		case dispatch.BatchFailed:
			result.Failed++
			s.collector.Add(notify.ClassBatchFailure, fmt.Sprintf("%s: %s", o.Event.SourceKey(), o.Reason))
		}
	}

	if s.trail != nil && len(result.Outcomes) > 0 {
		if err := s.trail.RecordOutcomes(cycleStart, result.Outcomes); err != nil {
			log.Printf("Failed to record audit trail: %v", err)
		}
	}

	if err := s.collector.Flush(ctx); err != nil {
		log.Printf("Failed to deliver failure notifications: %v", err)
	}

	log.Printf("Cycle done: %d added, %d deleted, %d failed", result.Added, result.Deleted, result.Failed)
}

// SharedState reads the marker events currently on the shared calendar and
// returns them with their remote ids and the calendar id.
func (s *Syncer) SharedState(ctx context.Context, win window.Window) ([]event.PresenceEvent, map[event.Key]string, string, error) {
	calendarID, err := s.api.FindCalendarByName(ctx, s.config.SharedCalendar)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to locate shared calendar: %w", err)
	}

	remote, err := s.api.ListEvents(ctx, calendarID, win)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to read shared calendar: %w", err)
	}

	shared, remoteIDs := s.collectShared(remote)
	return shared, remoteIDs, calendarID, nil
}

// collectIndividual turns raw schedule items into the canonical away state.
// Only spans carrying the configured away tag count; duplicates collapse to
// one event per (owner, status, day).
func (s *Syncer) collectIndividual(schedules []graph.MemberSchedule, win window.Window) []event.PresenceEvent {
	var events []event.PresenceEvent
	seen := map[event.Key]bool{}

	for _, member := range schedules {
		owner := event.TrimDomain(member.ScheduleID)
		for _, item := range member.Items {
			if item.Status != s.config.AwayTag {
				continue
			}
			raw := event.RawSpan{Start: item.Start.DateTime, End: item.End.DateTime}
			for _, e := range s.normalizer.Normalize(raw, owner, win) {
				if seen[e.Key()] {
					continue
				}
				seen[e.Key()] = true
				events = append(events, e)
			}
		}
	}
	return events
}

// collectShared parses the shared calendar's marker events. Events without
// the free marker or with unrecognized subjects belong to humans and are left
// alone. The first remote id wins when the calendar holds duplicates.
func (s *Syncer) collectShared(remote []graph.RemoteEvent) ([]event.PresenceEvent, map[event.Key]string) {
	var events []event.PresenceEvent
	seen := map[event.Key]bool{}
	remoteIDs := map[event.Key]string{}

	for _, r := range remote {
		if r.ShowAs != s.config.FreeMarker {
			continue
		}
		e, ok := s.normalizer.NormalizeShared(r.Subject, r.Start.DateTime)
		if !ok {
			continue
		}
		if seen[e.Key()] {
			log.Printf("Duplicate shared event %s (id %s), keeping the first", e.SourceKey(), r.ID)
			continue
		}
		seen[e.Key()] = true
		if r.ID != "" {
			remoteIDs[e.Key()] = r.ID
		}
		events = append(events, e)
	}
	return events, remoteIDs
}
