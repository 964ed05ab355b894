package graph

import (
	"context"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
)

// BatchRequest is one item of a Graph $batch envelope. IDs must be unique
// within a single envelope; URLs are relative to the API version root.
type BatchRequest struct {
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    interface{}       `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// BatchResponse is one item of a $batch reply. Graph does not guarantee the
// reply order matches the request order; callers must match by ID.
type BatchResponse struct {
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

type batchEnvelope struct {
	Requests []BatchRequest `json:"requests"`
}

type batchResult struct {
	Responses []BatchResponse `json:"responses"`
}

// SubmitBatch posts one $batch envelope and returns the per-item responses.
// A returned error means the envelope itself failed; per-item failures are
// reported through the response statuses.
func (c *Client) SubmitBatch(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error) {
	var out batchResult
	if err := c.do(ctx, http.MethodPost, "/$batch", batchEnvelope{Requests: requests}, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to submit batch: %w", err)
	}
	return out.Responses, nil
}

// CreateEventRequest builds a batch item that creates an event on the
// calendar.
func CreateEventRequest(id, calendarID string, payload EventPayload) BatchRequest {
	return BatchRequest{
		ID:      id,
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("/me/calendars/%s/events", calendarID),
		Body:    payload,
		Headers: map[string]string{"Content-Type": "application/json"},
	}
}

// DeleteEventRequest builds a batch item that deletes an event by remote id.
func DeleteEventRequest(id, calendarID, eventID string) BatchRequest {
	return BatchRequest{
		ID:     id,
		Method: http.MethodDelete,
		URL:    fmt.Sprintf("/me/calendars/%s/events/%s", calendarID, eventID),
	}
}
