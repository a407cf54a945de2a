package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/store"
)

// SlotLayout is how slots are shown to the model and parsed back.
const SlotLayout = "2006-01-02 15:04"

// BusinessHours describes when meetings can be booked: weekdays between
// Open and Close (hours, local to Location) in Slot-sized steps.
type BusinessHours struct {
	Open     int
	Close    int
	Slot     time.Duration
	Location *time.Location
}

// DefaultHours is 09:00 to 17:00 UTC with one hour slots.
var DefaultHours = BusinessHours{Open: 9, Close: 17, Slot: time.Hour, Location: time.UTC}

func (h BusinessHours) withDefaults() BusinessHours {
	if h.Close <= h.Open {
		h.Open, h.Close = DefaultHours.Open, DefaultHours.Close
	}
	if h.Slot <= 0 {
		h.Slot = DefaultHours.Slot
	}
	if h.Location == nil {
		h.Location = time.UTC
	}
	return h
}

// Contains reports whether a meeting starting at t fits inside business hours.
func (h BusinessHours) Contains(t time.Time) bool {
	h = h.withDefaults()
	local := t.In(h.Location)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	open := time.Date(local.Year(), local.Month(), local.Day(), h.Open, 0, 0, 0, h.Location)
	closing := time.Date(local.Year(), local.Month(), local.Day(), h.Close, 0, 0, 0, h.Location)
	return !local.Before(open) && !local.Add(h.Slot).After(closing)
}

// Slots returns the free slot starts on the days from..to inclusive that
// are after now and do not overlap a blocking appointment.
func (h BusinessHours) Slots(from, to, now time.Time, booked []model.Appointment) []time.Time {
	h = h.withDefaults()
	from = from.In(h.Location)
	to = to.In(h.Location)

	var out []time.Time
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, h.Location)
	last := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, h.Location)
	for ; !day.After(last); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), h.Open, 0, 0, 0, h.Location)
		closing := time.Date(day.Year(), day.Month(), day.Day(), h.Close, 0, 0, 0, h.Location)
		for slot := start; !slot.Add(h.Slot).After(closing); slot = slot.Add(h.Slot) {
			if !slot.After(now) || taken(booked, slot, h.Slot) {
				continue
			}
			out = append(out, slot)
		}
	}
	return out
}

func taken(booked []model.Appointment, start time.Time, d time.Duration) bool {
	for _, a := range booked {
		if a.Blocks() && a.Overlaps(start, d) {
			return true
		}
	}
	return false
}

// Format renders t in business-local time.
func (h BusinessHours) Format(t time.Time) string {
	return t.In(h.withDefaults().Location).Format(SlotLayout)
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	SlotLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 3:04 PM",
	"2006-01-02 3PM",
}

// ParseTime reads a date and time. Inputs without a zone are taken as
// business-local time.
func (h BusinessHours) ParseTime(field, raw string) (time.Time, error) {
	h = h.withDefaults()
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, h.Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &store.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a date and time like 2025-03-14 10:00", raw)}
}

// ParseDate reads a calendar date, also accepting a full date and time.
func (h BusinessHours) ParseDate(field, raw string) (time.Time, error) {
	h = h.withDefaults()
	if t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), h.Location); err == nil {
		return t, nil
	}
	t, err := h.ParseTime(field, raw)
	if err != nil {
		return time.Time{}, &store.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a date like 2025-03-14", raw)}
	}
	return t, nil
}

// checkBookable validates a requested meeting start.
func (h BusinessHours) checkBookable(field string, start, now time.Time) error {
	h = h.withDefaults()
	if !start.After(now) {
		return &store.ValidationError{Field: field, Reason: "is in the past"}
	}
	if !h.Contains(start) {
		return &store.ValidationError{Field: field, Reason: fmt.Sprintf("must be on a weekday between %02d:00 and %02d:00", h.Open, h.Close)}
	}
	return nil
}
