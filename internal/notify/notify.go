// Package notify sends meeting invites through a calendar and an email
// provider. Delivery is best-effort: failures are retried a few times and
// then reported in the Receipt, never returned to the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

// ErrNotConfigured is returned by providers missing credentials.
var ErrNotConfigured = errors.New("notification provider not configured")

// Kind is why an invite is sent.
type Kind string

const (
	Booked      Kind = "booked"
	Rescheduled Kind = "rescheduled"
)

// Invite is a meeting invitation.
type Invite struct {
	Kind          Kind      `json:"kind"`
	AppointmentID string    `json:"appointment_id"`
	EventID       string    `json:"event_id,omitempty"`
	Topic         string    `json:"topic"`
	Description   string    `json:"description"`
	Organizer     string    `json:"organizer"`
	Location      string    `json:"location"`
	Service       string    `json:"service"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail string    `json:"attendee_email"`
}

// Receipt reports what was delivered.
type Receipt struct {
	EventID     string   `json:"calendar_event_id,omitempty"`
	CalendarSet bool     `json:"calendar_updated"`
	EmailSent   bool     `json:"email_sent"`
	Skipped     bool     `json:"skipped,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// Calendar creates or updates calendar events.
type Calendar interface {
	CreateEvent(ctx context.Context, inv *Invite) (string, error)
}

// Mailer sends confirmation emails.
type Mailer interface {
	SendConfirmation(ctx context.Context, inv *Invite) error
}

// Template holds the fixed parts of every invite.
type Template struct {
	Organizer string
	Topic     string
	Location  string
	Duration  time.Duration
}

// DefaultTemplate is used for zero fields.
var DefaultTemplate = Template{
	Organizer: "Coffee Business Solutions",
	Topic:     "Coffee Business Consultation Meeting",
	Location:  "Zoom",
	Duration:  30 * time.Minute,
}

// Policy bounds each delivery attempt.
type Policy struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// DefaultPolicy is used for zero fields.
var DefaultPolicy = Policy{Timeout: 10 * time.Second, Retries: 2, Backoff: 250 * time.Millisecond}

// Notifier delivers invites. Either collaborator may be nil.
type Notifier struct {
	calendar Calendar
	mailer   Mailer
	template Template
	policy   Policy
	log      *logger.Logger
}

// New creates a Notifier.
func New(calendar Calendar, mailer Mailer, template Template, policy Policy, log *logger.Logger) *Notifier {
	if template.Organizer == "" {
		template.Organizer = DefaultTemplate.Organizer
	}
	if template.Topic == "" {
		template.Topic = DefaultTemplate.Topic
	}
	if template.Location == "" {
		template.Location = DefaultTemplate.Location
	}
	if template.Duration <= 0 {
		template.Duration = DefaultTemplate.Duration
	}
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultPolicy.Timeout
	}
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	if policy.Backoff <= 0 {
		policy.Backoff = DefaultPolicy.Backoff
	}
	return &Notifier{calendar: calendar, mailer: mailer, template: template, policy: policy, log: log.Named("notify")}
}

// Build assembles the invite for an appointment.
func (n *Notifier) Build(kind Kind, appt *model.Appointment, customer *model.Customer) *Invite {
	verb := "scheduled"
	if kind == Rescheduled {
		verb = "rescheduled"
	}
	return &Invite{
		Kind:          kind,
		AppointmentID: appt.ID,
		EventID:       appt.CalendarEventID,
		Topic:         n.template.Topic,
		Description: fmt.Sprintf("%s with %s has been %s. Appointment %s.",
			appt.Service, n.template.Organizer, verb, appt.ID),
		Organizer:     n.template.Organizer,
		Location:      n.template.Location,
		Service:       appt.Service,
		Start:         appt.StartsAt,
		End:           appt.StartsAt.Add(n.template.Duration),
		AttendeeName:  customer.Name,
		AttendeeEmail: customer.Email,
	}
}

// Invite sends the calendar event and confirmation email.
func (n *Notifier) Invite(ctx context.Context, kind Kind, appt *model.Appointment, customer *model.Customer) Receipt {
	inv := n.Build(kind, appt, customer)
	receipt := Receipt{EventID: appt.CalendarEventID}
	log := n.log.With(zap.String("appointment_id", appt.ID), zap.String("kind", string(kind)))

	if n.calendar != nil {
		err := n.retry(ctx, func(ctx context.Context) error {
			id, err := n.calendar.CreateEvent(ctx, inv)
			if err == nil {
				receipt.EventID = id
			}
			return err
		})
		if err != nil {
			log.Warn("calendar invite failed", zap.Error(err))
			receipt.Errors = append(receipt.Errors, "calendar: "+err.Error())
		} else {
			receipt.CalendarSet = true
			inv.EventID = receipt.EventID
		}
	}

	if n.mailer != nil {
		err := n.retry(ctx, func(ctx context.Context) error {
			return n.mailer.SendConfirmation(ctx, inv)
		})
		if err != nil {
			log.Warn("confirmation email failed", zap.Error(err))
			receipt.Errors = append(receipt.Errors, "email: "+err.Error())
		} else {
			receipt.EmailSent = true
		}
	}

	receipt.Skipped = n.calendar == nil && n.mailer == nil
	return receipt
}

func (n *Notifier) retry(ctx context.Context, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.policy.Backoff
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(n.policy.Retries)), ctx)
	return backoff.Retry(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, n.policy.Timeout)
		defer cancel()
		err := op(attemptCtx)
		if errors.Is(err, ErrNotConfigured) {
			return backoff.Permanent(err)
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// StatusError is an unexpected HTTP status from a provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.Code, strings.TrimSpace(e.Body))
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}
