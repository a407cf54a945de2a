package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
)

const resendURL = "https://api.resend.com/emails"

// ResendMailer sends confirmation emails through the Resend API.
type ResendMailer struct {
	apiKey     string
	fromEmail  string
	fromName   string
	endpoint   string
	httpClient *http.Client
}

// NewResendMailer creates a mailer. endpoint overrides the API URL when set.
func NewResendMailer(apiKey, fromEmail, fromName, endpoint string) *ResendMailer {
	if endpoint == "" {
		endpoint = resendURL
	}
	return &ResendMailer{
		apiKey:     apiKey,
		fromEmail:  fromEmail,
		fromName:   fromName,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type resendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// SendConfirmation emails the attendee the meeting details.
func (m *ResendMailer) SendConfirmation(ctx context.Context, inv *Invite) error {
	if m.apiKey == "" || m.fromEmail == "" {
		return ErrNotConfigured
	}

	from := m.fromEmail
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)
	}
	subject := inv.Topic
	if inv.Kind == Rescheduled {
		subject += " (rescheduled)"
	}

	body, err := json.Marshal(resendEmailRequest{
		From:    from,
		To:      []string{inv.AttendeeEmail},
		Subject: subject,
		HTML:    confirmationHTML(inv),
		Text:    confirmationText(inv),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Provider: "resend", Code: resp.StatusCode, Body: string(data)}
	}
	return nil
}

func confirmationText(inv *Invite) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", inv.AttendeeName)
	fmt.Fprintf(&b, "%s\n\n", inv.Description)
	fmt.Fprintf(&b, "When: %s to %s\n", inv.Start.Format("Monday, January 2, 2006 15:04 MST"), inv.End.Format("15:04 MST"))
	fmt.Fprintf(&b, "Where: %s\n", inv.Location)
	fmt.Fprintf(&b, "Organizer: %s\n", inv.Organizer)
	return b.String()
}

func confirmationHTML(inv *Invite) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(inv.Topic))
	fmt.Fprintf(&b, "<p>Hi %s,</p>", html.EscapeString(inv.AttendeeName))
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(inv.Description))
	fmt.Fprintf(&b, "<p><strong>When:</strong> %s to %s<br>", inv.Start.Format("Monday, January 2, 2006 15:04 MST"), inv.End.Format("15:04 MST"))
	fmt.Fprintf(&b, "<strong>Where:</strong> %s<br>", html.EscapeString(inv.Location))
	fmt.Fprintf(&b, "<strong>Organizer:</strong> %s</p>", html.EscapeString(inv.Organizer))
	return b.String()
}
