package model

import (
	"time"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "Scheduled"
	StatusCompleted AppointmentStatus = "Completed"
	StatusCancelled AppointmentStatus = "Cancelled"
)

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether an appointment may move from s to next.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	if !next.Valid() || s.Terminal() {
		return false
	}
	return next != s
}

// Service types offered for meetings.
var ServiceTypes = []string{"Consultation", "Follow-up", "Review", "Planning"}

// DefaultService is used when no service type is given.
const DefaultService = "Consultation"

// Appointment is a booked meeting slot for a customer.
type Appointment struct {
	ID              string            `json:"id"`
	CustomerID      string            `json:"customer_id"`
	CustomerName    string            `json:"customer_name"`
	Service         string            `json:"service"`
	StartsAt        time.Time         `json:"starts_at"`
	Duration        time.Duration     `json:"duration"`
	Status          AppointmentStatus `json:"status"`
	CalendarEventID string            `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// EndsAt returns the end of the appointment.
func (a Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(a.Duration)
}

// Blocks reports whether the appointment occupies its time slot.
func (a Appointment) Blocks() bool {
	return a.Status != StatusCancelled
}

// Overlaps reports whether the appointment intersects [start, start+d).
func (a Appointment) Overlaps(start time.Time, d time.Duration) bool {
	return a.StartsAt.Before(start.Add(d)) && start.Before(a.EndsAt())
}
