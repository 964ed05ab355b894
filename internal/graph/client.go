// Package graph is a thin client for the slice of the Microsoft Graph API the
// synchronizer needs: free/busy schedules, calendar lookup, event listing,
// batched event writes and mail submission. It owns the wire formats and the
// transient-error classification; everything above it works with the decoded
// types.
package graph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/beekhof/vacation-calendar-sync/internal/window"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// TimeFormat is the layout Graph uses for event date-times once the
// fractional-second tail has been cut off.
const TimeFormat = "2006-01-02T15:04:05"

// Client wraps an authenticated HTTP client for Microsoft Graph calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// NewClient creates a Graph client over the provided HTTP client, which is
// expected to carry OAuth2 credentials. Each request runs under its own
// deadline derived from timeout.
func NewClient(httpClient *http.Client, timeout time.Duration) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		timeout:    timeout,
	}
}

// SetBaseURL overrides the Graph endpoint. Used by tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(base, "/")
}

// DateTimeZone mirrors Graph's dateTimeTimeZone resource.
type DateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// ScheduleItem is one busy/away span from a getSchedule response.
type ScheduleItem struct {
	Status string       `json:"status"`
	Start  DateTimeZone `json:"start"`
	End    DateTimeZone `json:"end"`
}

// MemberSchedule is the per-mailbox result of a getSchedule call.
type MemberSchedule struct {
	ScheduleID string         `json:"scheduleId"`
	Items      []ScheduleItem `json:"scheduleItems"`
}

// RemoteEvent is a calendar event as listed from Graph.
type RemoteEvent struct {
	ID      string       `json:"id"`
	Subject string       `json:"subject"`
	Start   DateTimeZone `json:"start"`
	End     DateTimeZone `json:"end"`
	ShowAs  string       `json:"showAs"`
}

// EventPayload is the body of an event-creation request.
type EventPayload struct {
	Subject string       `json:"subject"`
	ShowAs  string       `json:"showAs"`
	Start   DateTimeZone `json:"start"`
	End     DateTimeZone `json:"end"`
}

// StatusError reports a non-success HTTP status from Graph.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graph: unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsTransient reports whether err is worth retrying: throttling, server-side
// failures, timeouts and connection-level errors qualify; other client errors
// do not.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

type scheduleRequest struct {
	Schedules                []string     `json:"schedules"`
	StartTime                DateTimeZone `json:"startTime"`
	EndTime                  DateTimeZone `json:"endTime"`
	AvailabilityViewInterval int          `json:"availabilityViewInterval"`
}

type scheduleResponse struct {
	Value []MemberSchedule `json:"value"`
}

// GetSchedule fetches the free/busy schedule of each address over the window,
// expressed in the given Windows timezone name. The availability interval is
// a whole day so each returned item is an uncollapsed span.
func (c *Client) GetSchedule(ctx context.Context, addresses []string, win window.Window, timezone string) ([]MemberSchedule, error) {
	body := scheduleRequest{
		Schedules:                addresses,
		StartTime:                DateTimeZone{DateTime: win.Start.Format(TimeFormat), TimeZone: timezone},
		EndTime:                  DateTimeZone{DateTime: win.End.Format(TimeFormat), TimeZone: timezone},
		AvailabilityViewInterval: 1440,
	}

	headers := map[string]string{
		"Prefer": fmt.Sprintf("outlook.timezone=%q", timezone),
	}

	var out scheduleResponse
	if err := c.do(ctx, http.MethodPost, "/me/calendar/getSchedule", body, headers, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch schedules: %w", err)
	}
	return out.Value, nil
}

type calendarList struct {
	Value []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"value"`
}

// FindCalendarByName returns the id of the calendar with the given display
// name, or an error if no such calendar is visible to the signed-in user.
func (c *Client) FindCalendarByName(ctx context.Context, name string) (string, error) {
	var out calendarList
	if err := c.do(ctx, http.MethodGet, "/me/calendars", nil, nil, &out); err != nil {
		return "", fmt.Errorf("failed to list calendars: %w", err)
	}
	for _, cal := range out.Value {
		if cal.Name == name {
			return cal.ID, nil
		}
	}
	return "", fmt.Errorf("calendar %q not found", name)
}

type eventPage struct {
	Value    []RemoteEvent `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
}

// ListEvents returns every event of the calendar starting inside the window,
// following server paging until exhausted.
func (c *Client) ListEvents(ctx context.Context, calendarID string, win window.Window) ([]RemoteEvent, error) {
	query := url.Values{}
	query.Set("$select", "subject,start,end,showAs")
	query.Set("$top", "100")
	query.Set("$filter", fmt.Sprintf("start/dateTime ge '%s' and start/dateTime lt '%s'",
		win.Start.Format(TimeFormat), win.End.Format(TimeFormat)))

	next := fmt.Sprintf("%s/me/calendars/%s/events?%s", c.baseURL, url.PathEscape(calendarID), query.Encode())

	var events []RemoteEvent
	for next != "" {
		var page eventPage
		if err := c.doURL(ctx, http.MethodGet, next, nil, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list events: %w", err)
		}
		events = append(events, page.Value...)
		next = page.NextLink
	}
	return events, nil
}

type mailRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type mailRequest struct {
	Message struct {
		Subject string `json:"subject"`
		Body    struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		} `json:"body"`
		ToRecipients []mailRecipient `json:"toRecipients"`
	} `json:"message"`
	SaveToSentItems bool `json:"saveToSentItems"`
}

// SendMail sends a plain-text message from the signed-in mailbox.
func (c *Client) SendMail(ctx context.Context, subject, body string, recipients []string) error {
	var req mailRequest
	req.Message.Subject = subject
	req.Message.Body.ContentType = "Text"
	req.Message.Body.Content = body
	for _, addr := range recipients {
		var r mailRecipient
		r.EmailAddress.Address = addr
		req.Message.ToRecipients = append(req.Message.ToRecipients, r)
	}

	if err := c.do(ctx, http.MethodPost, "/me/sendMail", req, nil, nil); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// do issues a request against a path relative to the Graph base URL.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, headers map[string]string, out interface{}) error {
	return c.doURL(ctx, method, c.baseURL+path, body, headers, out)
}

func (c *Client) doURL(ctx context.Context, method, rawURL string, body interface{}, headers map[string]string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return nil
}
