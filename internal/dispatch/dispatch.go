// Package dispatch turns reconciliation decisions into Microsoft Graph $batch
// calls. It owns batching, retry of transport-level failures, and the
// correlation of per-item responses back to the events they were issued for.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/beekhof/vacation-calendar-sync/internal/event"
	"github.com/beekhof/vacation-calendar-sync/internal/graph"
)

// ErrMissingRemoteID marks a deletion request for an event with no known
// remote id. It indicates the shared-calendar snapshot and the delete set
// have diverged, so the whole delete phase is refused.
var ErrMissingRemoteID = errors.New("no remote id recorded for event marked for deletion")

// Result classifies what happened to one dispatched event.
type Result int

const (
	Created Result = iota
	Deleted
	ItemFailed
	BatchFailed
)

func (r Result) String() string {
	switch r {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case ItemFailed:
		return "item_failed"
	case BatchFailed:
		return "batch_failed"
	}
	return "unknown"
}

// Outcome reports the fate of a single event after dispatch.
type Outcome struct {
	Event  event.PresenceEvent
	Result Result
	Reason string
}

// BatchAPI is the slice of the Graph client the dispatcher needs.
type BatchAPI interface {
	SubmitBatch(ctx context.Context, requests []graph.BatchRequest) ([]graph.BatchResponse, error)
}

// Dispatcher submits event creations and deletions against one shared
// calendar in fixed-size batches.
type Dispatcher struct {
	api        BatchAPI
	calendarID string
	batchSize  int
	timezone   string
	awayTag    string
	retry      RetryPolicy
}

// graphBatchLimit is the documented ceiling on items per $batch envelope.
const graphBatchLimit = 20

// NewDispatcher builds a dispatcher for the calendar. Batch sizes outside
// [1, 20] are clamped to the Graph limit.
func NewDispatcher(api BatchAPI, calendarID string, batchSize int, timezone, awayTag string, retry RetryPolicy) *Dispatcher {
	if batchSize < 1 || batchSize > graphBatchLimit {
		batchSize = graphBatchLimit
	}
	return &Dispatcher{
		api:        api,
		calendarID: calendarID,
		batchSize:  batchSize,
		timezone:   timezone,
		awayTag:    awayTag,
		retry:      retry,
	}
}

// SubmitAdditions creates one all-day shared-calendar event per presence
// event and reports an outcome for each. A failed batch never prevents the
// remaining batches from being attempted.
func (d *Dispatcher) SubmitAdditions(ctx context.Context, events []event.PresenceEvent) []Outcome {
	outcomes := make([]Outcome, 0, len(events))
	for _, chunk := range chunks(events, d.batchSize) {
		requests := make([]graph.BatchRequest, len(chunk))
		for i, e := range chunk {
			requests[i] = graph.CreateEventRequest(strconv.Itoa(i+1), d.calendarID, d.payload(e))
		}
		outcomes = append(outcomes, d.submit(ctx, chunk, requests, Created, 201)...)
	}
	return outcomes
}

// SubmitDeletions removes shared-calendar events by their remote ids. Every
// event must have an entry in remoteIDs; if any is missing the snapshot is
// inconsistent and no deletion at all is attempted.
func (d *Dispatcher) SubmitDeletions(ctx context.Context, events []event.PresenceEvent, remoteIDs map[event.Key]string) ([]Outcome, error) {
	for _, e := range events {
		if _, ok := remoteIDs[e.Key()]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingRemoteID, e.SourceKey())
		}
	}

	outcomes := make([]Outcome, 0, len(events))
	for _, chunk := range chunks(events, d.batchSize) {
		requests := make([]graph.BatchRequest, len(chunk))
		for i, e := range chunk {
			requests[i] = graph.DeleteEventRequest(strconv.Itoa(i+1), d.calendarID, remoteIDs[e.Key()])
		}
		outcomes = append(outcomes, d.submit(ctx, chunk, requests, Deleted, 204)...)
	}
	return outcomes, nil
}

// submit posts one batch with retries and correlates the responses back to
// the chunk's events by request id.
func (d *Dispatcher) submit(ctx context.Context, chunk []event.PresenceEvent, requests []graph.BatchRequest, success Result, wantStatus int) []Outcome {
	var responses []graph.BatchResponse
	err := d.retry.Do(ctx, graph.IsTransient, func() error {
		var submitErr error
		responses, submitErr = d.api.SubmitBatch(ctx, requests)
		return submitErr
	})
	if err != nil {
		log.Printf("Batch of %d requests failed: %v", len(requests), err)
		outcomes := make([]Outcome, len(chunk))
		for i, e := range chunk {
			outcomes[i] = Outcome{Event: e, Result: BatchFailed, Reason: err.Error()}
		}
		return outcomes
	}

	byID := make(map[string]graph.BatchResponse, len(responses))
	for _, r := range responses {
		byID[r.ID] = r
	}

	outcomes := make([]Outcome, len(chunk))
	for i, e := range chunk {
		resp, ok := byID[strconv.Itoa(i+1)]
		switch {
		case !ok:
			outcomes[i] = Outcome{Event: e, Result: ItemFailed, Reason: "no response for request"}
		case resp.Status == wantStatus:
			outcomes[i] = Outcome{Event: e, Result: success}
		default:
			outcomes[i] = Outcome{
				Event:  e,
				Result: ItemFailed,
				Reason: fmt.Sprintf("status %d: %s", resp.Status, resp.Body),
			}
		}
	}
	return outcomes
}

// payload renders a presence event as an all-day shared-calendar event.
func (d *Dispatcher) payload(e event.PresenceEvent) graph.EventPayload {
	start := e.Day.Format(event.DayFormat) + "T00:00:00.0000000"
	end := e.Day.AddDate(0, 0, 1).Format(event.DayFormat) + "T00:00:00.0000000"
	return graph.EventPayload{
		Subject: e.Subject(),
		ShowAs:  d.awayTag,
		Start:   graph.DateTimeZone{DateTime: start, TimeZone: d.timezone},
		End:     graph.DateTimeZone{DateTime: end, TimeZone: d.timezone},
	}
}

func chunks(events []event.PresenceEvent, size int) [][]event.PresenceEvent {
	var out [][]event.PresenceEvent
	for start := 0; start < len(events); start += size {
		end := start + size
		if end > len(events) {
			end = len(events)
		}
		out = append(out, events[start:end])
	}
	return out
}
