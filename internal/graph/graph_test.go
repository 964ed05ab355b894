package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/beekhof/vacation-calendar-sync/internal/window"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(server.Client(), 5*time.Second)
	c.SetBaseURL(server.URL)
	return c
}

func testWindow() window.Window {
	return window.New(
		time.Date(2023, 7, 17, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 7, 24, 0, 0, 0, 0, time.UTC),
	)
}

func TestGetSchedule(t *testing.T) {
	var gotPrefer string
	var gotBody scheduleRequest

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/calendar/getSchedule" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotPrefer = r.Header.Get("Prefer")
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &gotBody); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		fmt.Fprint(w, `{"value":[{"scheduleId":"asmith@example.edu","scheduleItems":[
			{"status":"oof","start":{"dateTime":"2023-07-17T08:00:00.0000000","timeZone":"Central Standard Time"},
			 "end":{"dateTime":"2023-07-17T17:00:00.0000000","timeZone":"Central Standard Time"}}]}]}`)
	}))

	schedules, err := c.GetSchedule(context.Background(),
		[]string{"asmith@example.edu"}, testWindow(), "Central Standard Time")
	if err != nil {
		t.Fatalf("GetSchedule failed: %v", err)
	}

	if gotPrefer != `outlook.timezone="Central Standard Time"` {
		t.Errorf("Prefer header = %q", gotPrefer)
	}
	if gotBody.AvailabilityViewInterval != 1440 {
		t.Errorf("availabilityViewInterval = %d, want 1440", gotBody.AvailabilityViewInterval)
	}
	if len(gotBody.Schedules) != 1 || gotBody.Schedules[0] != "asmith@example.edu" {
		t.Errorf("schedules = %v", gotBody.Schedules)
	}
	if len(schedules) != 1 || schedules[0].ScheduleID != "asmith@example.edu" {
		t.Fatalf("Unexpected schedules: %v", schedules)
	}
	if len(schedules[0].Items) != 1 || schedules[0].Items[0].Status != "oof" {
		t.Errorf("Unexpected items: %v", schedules[0].Items)
	}
}

func TestFindCalendarByName(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[{"id":"cal-1","name":"Personal"},{"id":"cal-2","name":"Team Vacations"}]}`)
	}))

	id, err := c.FindCalendarByName(context.Background(), "Team Vacations")
	if err != nil {
		t.Fatalf("FindCalendarByName failed: %v", err)
	}
	if id != "cal-2" {
		t.Errorf("id = %q, want cal-2", id)
	}

	if _, err := c.FindCalendarByName(context.Background(), "Missing"); err == nil {
		t.Error("Expected an error for an unknown calendar name")
	}
}

func TestListEvents_FollowsPaging(t *testing.T) {
	var server *httptest.Server
	var firstQuery url.Values

	mux := http.NewServeMux()
	mux.HandleFunc("/me/calendars/cal-2/events", func(w http.ResponseWriter, r *http.Request) {
		firstQuery = r.URL.Query()
		fmt.Fprintf(w, `{"value":[{"id":"e1","subject":"asmith OUT","showAs":"free",
			"start":{"dateTime":"2023-07-17T00:00:00.0000000","timeZone":"UTC"},
			"end":{"dateTime":"2023-07-18T00:00:00.0000000","timeZone":"UTC"}}],
			"@odata.nextLink":%q}`, server.URL+"/page2")
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[{"id":"e2","subject":"jdoe OUT PM","showAs":"free",
			"start":{"dateTime":"2023-07-18T00:00:00.0000000","timeZone":"UTC"},
			"end":{"dateTime":"2023-07-19T00:00:00.0000000","timeZone":"UTC"}}]}`)
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := NewClient(server.Client(), 5*time.Second)
	c.SetBaseURL(server.URL)

	events, err := c.ListEvents(context.Background(), "cal-2", testWindow())
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events across pages, got %d", len(events))
	}
	if events[0].ID != "e1" || events[1].ID != "e2" {
		t.Errorf("Unexpected event order: %v", events)
	}

	if got := firstQuery.Get("$top"); got != "100" {
		t.Errorf("$top = %q, want 100", got)
	}
	wantFilter := "start/dateTime ge '2023-07-17T00:00:00' and start/dateTime lt '2023-07-24T00:00:00'"
	if got := firstQuery.Get("$filter"); got != wantFilter {
		t.Errorf("$filter = %q, want %q", got, wantFilter)
	}
	if got := firstQuery.Get("$select"); got != "subject,start,end,showAs" {
		t.Errorf("$select = %q", got)
	}
}

func TestSubmitBatch(t *testing.T) {
	var gotEnvelope batchEnvelope

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/$batch" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &gotEnvelope); err != nil {
			t.Fatalf("Failed to decode envelope: %v", err)
		}
		fmt.Fprint(w, `{"responses":[{"id":"2","status":204},{"id":"1","status":201}]}`)
	}))

	requests := []BatchRequest{
		CreateEventRequest("1", "cal-2", EventPayload{Subject: "asmith OUT"}),
		DeleteEventRequest("2", "cal-2", "e9"),
	}
	responses, err := c.SubmitBatch(context.Background(), requests)
	if err != nil {
		t.Fatalf("SubmitBatch failed: %v", err)
	}

	if len(gotEnvelope.Requests) != 2 {
		t.Fatalf("Expected 2 requests in the envelope, got %d", len(gotEnvelope.Requests))
	}
	if gotEnvelope.Requests[0].Method != http.MethodPost ||
		gotEnvelope.Requests[0].URL != "/me/calendars/cal-2/events" {
		t.Errorf("Unexpected create request: %+v", gotEnvelope.Requests[0])
	}
	if gotEnvelope.Requests[1].Method != http.MethodDelete ||
		gotEnvelope.Requests[1].URL != "/me/calendars/cal-2/events/e9" {
		t.Errorf("Unexpected delete request: %+v", gotEnvelope.Requests[1])
	}

	// Responses come back in whatever order the server chose.
	if len(responses) != 2 || responses[0].ID != "2" || responses[1].ID != "1" {
		t.Errorf("Unexpected responses: %v", responses)
	}
}

func TestSendMail(t *testing.T) {
	var gotBody mailRequest

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/sendMail" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &gotBody); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	err := c.SendMail(context.Background(), "sync failures", "2 events could not be created",
		[]string{"ops@example.edu"})
	if err != nil {
		t.Fatalf("SendMail failed: %v", err)
	}

	if gotBody.Message.Subject != "sync failures" {
		t.Errorf("subject = %q", gotBody.Message.Subject)
	}
	if gotBody.Message.Body.ContentType != "Text" {
		t.Errorf("contentType = %q, want Text", gotBody.Message.Body.ContentType)
	}
	if len(gotBody.Message.ToRecipients) != 1 ||
		gotBody.Message.ToRecipients[0].EmailAddress.Address != "ops@example.edu" {
		t.Errorf("recipients = %v", gotBody.Message.ToRecipients)
	}
	if gotBody.SaveToSentItems {
		t.Error("Expected saveToSentItems to be false")
	}
}

func TestStatusError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))

	_, err := c.FindCalendarByName(context.Background(), "anything")
	if err == nil {
		t.Fatal("Expected an error")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Expected a StatusError, got %T: %v", err, err)
	}
	if se.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", se.StatusCode)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"throttled", &StatusError{StatusCode: 429}, true},
		{"server error", &StatusError{StatusCode: 503}, true},
		{"bad request", &StatusError{StatusCode: 400}, false},
		{"not found", &StatusError{StatusCode: 404}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("failed to list events: %w", context.DeadlineExceeded), true},
		{"connection refused", &url.Error{Op: "Post", URL: "https://graph.microsoft.com", Err: errors.New("connection refused")}, true},
		{"plain error", errors.New("boom"), false},
		{"wrapped status", fmt.Errorf("failed to submit batch: %w", &StatusError{StatusCode: 500}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
