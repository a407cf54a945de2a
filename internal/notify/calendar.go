package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookCalendar posts invites as JSON to a calendar integration
// endpoint and reads the event ID from the response.
type WebhookCalendar struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewWebhookCalendar creates a calendar client. An empty url yields a
// client that always returns ErrNotConfigured.
func NewWebhookCalendar(url, token string) *WebhookCalendar {
	return &WebhookCalendar{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type calendarEventRequest struct {
	EventID     string    `json:"event_id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Organizer   string    `json:"organizer"`
	Attendees   []string  `json:"attendees"`
}

type calendarEventResponse struct {
	ID string `json:"id"`
}

// CreateEvent creates the event, or updates it when the invite already
// carries an event ID.
func (c *WebhookCalendar) CreateEvent(ctx context.Context, inv *Invite) (string, error) {
	if c.url == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(calendarEventRequest{
		EventID:     inv.EventID,
		Summary:     inv.Topic,
		Description: inv.Description,
		Location:    inv.Location,
		Start:       inv.Start,
		End:         inv.End,
		Organizer:   inv.Organizer,
		Attendees:   []string{inv.AttendeeEmail},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Provider: "calendar", Code: resp.StatusCode, Body: string(data)}
	}

	var out calendarEventResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode event: %w", err)
	}
	if out.ID == "" {
		out.ID = inv.EventID
	}
	return out.ID, nil
}
