package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

var (
	testAppt = &model.Appointment{
		ID:       "APT0003",
		Service:  "Consultation",
		StartsAt: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		Duration: time.Hour,
		Status:   model.StatusScheduled,
	}
	testCustomer = &model.Customer{ID: "CUST0001", Name: "Mike Chen", Email: "mike@citycoffee.com"}
	fastPolicy   = Policy{Timeout: time.Second, Retries: 2, Backoff: time.Millisecond}
)

func TestBuildInvite(t *testing.T) {
	t.Parallel()

	n := New(nil, nil, Template{}, Policy{}, logger.NewNop())
	inv := n.Build(Booked, testAppt, testCustomer)

	if inv.Topic != DefaultTemplate.Topic || inv.Organizer != DefaultTemplate.Organizer || inv.Location != "Zoom" {
		t.Fatalf("Build() = %+v", inv)
	}
	if got := inv.End.Sub(inv.Start); got != 30*time.Minute {
		t.Fatalf("invite length = %v, want 30m", got)
	}
	if inv.AttendeeEmail != testCustomer.Email || !strings.Contains(inv.Description, "APT0003") {
		t.Fatalf("Build() = %+v", inv)
	}
}

func TestInviteDeliversCalendarAndEmail(t *testing.T) {
	t.Parallel()

	var calendarBody calendarEventRequest
	calendar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer cal-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&calendarBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"evt_42"}`))
	}))
	defer calendar.Close()

	var emailBody resendEmailRequest
	mail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&emailBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer mail.Close()

	n := New(
		NewWebhookCalendar(calendar.URL, "cal-token"),
		NewResendMailer("re_key", "meetings@example.com", "Coffee Team", mail.URL),
		Template{}, fastPolicy, logger.NewNop(),
	)

	receipt := n.Invite(context.Background(), Booked, testAppt, testCustomer)
	if receipt.EventID != "evt_42" || !receipt.CalendarSet || !receipt.EmailSent || len(receipt.Errors) != 0 {
		t.Fatalf("Invite() = %+v", receipt)
	}
	if len(calendarBody.Attendees) != 1 || calendarBody.Attendees[0] != testCustomer.Email {
		t.Fatalf("calendar attendees = %v", calendarBody.Attendees)
	}
	if emailBody.From != "Coffee Team <meetings@example.com>" || emailBody.To[0] != testCustomer.Email {
		t.Fatalf("email = %+v", emailBody)
	}
}

func TestInviteRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"evt_7"}`))
	}))
	defer srv.Close()

	n := New(NewWebhookCalendar(srv.URL, ""), nil, Template{}, fastPolicy, logger.NewNop())
	receipt := n.Invite(context.Background(), Booked, testAppt, testCustomer)
	if receipt.EventID != "evt_7" || calls.Load() != 3 {
		t.Fatalf("Invite() = %+v after %d calls", receipt, calls.Load())
	}
}

func TestInviteDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`invalid recipient`))
	}))
	defer srv.Close()

	n := New(nil, NewResendMailer("re_key", "meetings@example.com", "", srv.URL), Template{}, fastPolicy, logger.NewNop())
	receipt := n.Invite(context.Background(), Rescheduled, testAppt, testCustomer)
	if receipt.EmailSent || len(receipt.Errors) != 1 || calls.Load() != 1 {
		t.Fatalf("Invite() = %+v after %d calls", receipt, calls.Load())
	}
	if !strings.Contains(receipt.Errors[0], "invalid recipient") {
		t.Fatalf("Errors = %v", receipt.Errors)
	}
}

func TestUnconfiguredProviders(t *testing.T) {
	t.Parallel()

	if _, err := NewWebhookCalendar("", "").CreateEvent(context.Background(), &Invite{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("CreateEvent() error = %v, want ErrNotConfigured", err)
	}
	if err := NewResendMailer("", "", "", "").SendConfirmation(context.Background(), &Invite{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("SendConfirmation() error = %v, want ErrNotConfigured", err)
	}

	receipt := New(nil, nil, Template{}, fastPolicy, logger.NewNop()).Invite(context.Background(), Booked, testAppt, testCustomer)
	if !receipt.Skipped {
		t.Fatalf("Invite() = %+v, want skipped", receipt)
	}
}
