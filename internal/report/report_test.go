package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/beekhof/vacation-calendar-sync/internal/event"
)

func presence(owner string, status event.Status, day string) event.PresenceEvent {
	d, err := time.Parse(event.DayFormat, day)
	if err != nil {
		panic(err)
	}
	return event.PresenceEvent{Owner: owner, Status: status, Day: d}
}

func testEvents() []event.PresenceEvent {
	return []event.PresenceEvent{
		presence("jdoe", event.StatusMorning, "2023-07-18"),
		presence("asmith", event.StatusFullDay, "2023-07-17"),
		presence("rlee", event.StatusAfternoon, "2023-07-17"),
	}
}

func TestBuild_GroupsAndSorts(t *testing.T) {
	days := Build(testEvents())

	if len(days) != 2 {
		t.Fatalf("Expected 2 days, got %d", len(days))
	}
	if days[0].Date != "2023-07-17" || days[1].Date != "2023-07-18" {
		t.Errorf("Days out of order: %v, %v", days[0].Date, days[1].Date)
	}
	if len(days[0].Away) != 2 || days[0].Away[0] != "asmith" || days[0].Away[1] != "rlee PM" {
		t.Errorf("Unexpected entries for the first day: %v", days[0].Away)
	}
	if len(days[1].Away) != 1 || days[1].Away[0] != "jdoe AM" {
		t.Errorf("Unexpected entries for the second day: %v", days[1].Away)
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, Build(testEvents())); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}

	want := "2023-07-17,asmith,rlee PM\n2023-07-18,jdoe AM\n"
	if buf.String() != want {
		t.Errorf("Table output:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestWriteJSON_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, Build(testEvents())); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var days []Day
	if err := json.Unmarshal(buf.Bytes(), &days); err != nil {
		t.Fatalf("Failed to decode report JSON: %v", err)
	}
	if len(days) != 2 || days[0].Date != "2023-07-17" {
		t.Errorf("Unexpected decoded report: %v", days)
	}
}

func TestWriteICS(t *testing.T) {
	var buf bytes.Buffer
	stamp := time.Date(2023, 7, 20, 6, 0, 0, 0, time.UTC)
	if err := WriteICS(&buf, testEvents(), stamp); err != nil {
		t.Fatalf("WriteICS failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"SUMMARY:asmith OUT",
		"SUMMARY:jdoe OUT AM",
		"SUMMARY:rlee OUT PM",
		"DTSTART;VALUE=DATE:20230717",
		"DTEND;VALUE=DATE:20230718",
		"UID:asmith|OUT|2023-07-17@vacation-calendar-sync",
		"END:VCALENDAR",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("ICS output missing %q:\n%s", want, out)
		}
	}

	if got := strings.Count(out, "BEGIN:VEVENT"); got != 3 {
		t.Errorf("Expected 3 VEVENTs, got %d", got)
	}
}
