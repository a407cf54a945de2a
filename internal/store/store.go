// Package store provides durable storage for customers, appointments,
// orders and qualified leads.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a record collides with an existing one.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned when an appointment overlaps a booked slot.
	ErrConflict = errors.New("scheduling conflict")
	// ErrOrphan is returned when a record references a missing customer.
	ErrOrphan = errors.New("referenced customer does not exist")
	// ErrInvalidTransition is returned for a disallowed status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports a field that failed format validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CustomerQuery selects customers. Empty fields are ignored; set fields
// must all match.
type CustomerQuery struct {
	ID    string
	Phone string
	Email string
}

// Empty reports whether the query has no criteria.
func (q CustomerQuery) Empty() bool {
	return q.ID == "" && q.Phone == "" && q.Email == ""
}

// AppointmentQuery selects appointments.
type AppointmentQuery struct {
	CustomerID string
	// From and To bound the start time when non-zero.
	From time.Time
	To   time.Time
	// IncludeCancelled returns cancelled appointments too.
	IncludeCancelled bool
}

// LeadQuery selects persisted leads. Results are ordered by score,
// highest first.
type LeadQuery struct {
	SessionID string
	Priority  model.Priority
	MinScore  int
	Limit     int
}

// Store is the persistence boundary. Every method is atomic with respect
// to a single record; BookAppointment and UpdateAppointment re-check
// scheduling conflicts inside the same critical section as the write.
type Store interface {
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
	FindCustomer(ctx context.Context, q CustomerQuery) (*model.Customer, error)
	ListCustomers(ctx context.Context, q CustomerQuery) ([]model.Customer, error)
	CreateCustomer(ctx context.Context, c *model.Customer) (*model.Customer, error)

	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	ListAppointments(ctx context.Context, q AppointmentQuery) ([]model.Appointment, error)
	BookAppointment(ctx context.Context, a *model.Appointment) (*model.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, fn func(*model.Appointment) error) (*model.Appointment, error)

	ListOrders(ctx context.Context, customerID string) ([]model.Order, error)

	SaveLead(ctx context.Context, l *model.Lead) error
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	QueryLeads(ctx context.Context, q LeadQuery) ([]model.Lead, error)

	Load(ctx context.Context, snap *Snapshot) (*IntegrityReport, error)
	Ping(ctx context.Context) error
	Close() error
}

// ID prefixes for generated identifiers.
const (
	CustomerPrefix    = "CUST"
	AppointmentPrefix = "APT"
	OrderPrefix       = "ORD"
)

// nextID returns the lowest unused prefixed ID above every existing one.
func nextID(prefix string, existing []string) string {
	max := -1
	for _, id := range existing {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
		if err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%04d", prefix, max+1)
}

// prepareCustomer validates and normalizes a customer before insert.
func prepareCustomer(c *model.Customer, now time.Time) (model.Customer, error) {
	out := *c
	out.Name = strings.TrimSpace(out.Name)
	if len(out.Name) < 2 {
		return out, &ValidationError{Field: "name", Reason: "must be at least 2 characters"}
	}
	phone, err := NormalizePhone(out.Phone)
	if err != nil {
		return out, err
	}
	email, err := NormalizeEmail(out.Email)
	if err != nil {
		return out, err
	}
	out.Phone = phone
	out.Email = email
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	return out, nil
}

// prepareAppointment fills defaults and validates an appointment before booking.
func prepareAppointment(a *model.Appointment, now time.Time) (model.Appointment, error) {
	out := *a
	out.CustomerID = NormalizeCustomerID(out.CustomerID)
	if out.StartsAt.IsZero() {
		return out, &ValidationError{Field: "starts_at", Reason: "is required"}
	}
	if out.Duration <= 0 {
		out.Duration = time.Hour
	}
	if out.Status == "" {
		out.Status = model.StatusScheduled
	}
	if !out.Status.Valid() {
		return out, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", out.Status)}
	}
	if out.Service == "" {
		out.Service = model.DefaultService
	}
	out.StartsAt = out.StartsAt.UTC()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	return out, nil
}

// conflicting returns the first blocking appointment overlapping a, ignoring a itself.
func conflicting(existing []model.Appointment, a model.Appointment) *model.Appointment {
	if !a.Blocks() {
		return nil
	}
	for i := range existing {
		other := existing[i]
		if other.ID == a.ID || !other.Blocks() {
			continue
		}
		if other.Overlaps(a.StartsAt, a.Duration) {
			return &other
		}
	}
	return nil
}

func conflictError(other *model.Appointment) error {
	return fmt.Errorf("%w: slot overlaps appointment %s at %s", ErrConflict, other.ID, other.StartsAt.Format(time.RFC3339))
}

func matchesAppointment(a model.Appointment, q AppointmentQuery) bool {
	if q.CustomerID != "" && a.CustomerID != q.CustomerID {
		return false
	}
	if !q.IncludeCancelled && a.Status == model.StatusCancelled {
		return false
	}
	if !q.From.IsZero() && a.EndsAt().Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !a.StartsAt.Before(q.To) {
		return false
	}
	return true
}

func matchesLead(l model.Lead, q LeadQuery) bool {
	if q.SessionID != "" && l.SessionID != q.SessionID {
		return false
	}
	if q.Priority != "" && l.Priority != q.Priority {
		return false
	}
	return l.Score >= q.MinScore
}

func sortLeads(leads []model.Lead, limit int) []model.Lead {
	sort.SliceStable(leads, func(i, j int) bool {
		if leads[i].Score != leads[j].Score {
			return leads[i].Score > leads[j].Score
		}
		return leads[i].UpdatedAt.After(leads[j].UpdatedAt)
	})
	if limit > 0 && len(leads) > limit {
		leads = leads[:limit]
	}
	return leads
}

// Summarize aggregates leads by priority band.
func Summarize(leads []model.Lead) model.LeadSummary {
	var s model.LeadSummary
	total := 0
	for _, l := range leads {
		s.Total++
		total += l.Score
		switch l.Priority {
		case model.PriorityHigh:
			s.High++
		case model.PriorityMedium:
			s.Medium++
		default:
			s.Low++
		}
	}
	if s.Total > 0 {
		s.AverageScore = float64(total) / float64(s.Total)
	}
	return s
}
