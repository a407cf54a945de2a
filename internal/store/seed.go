package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
)

// Snapshot is the on-disk seed format.
type Snapshot struct {
	Customers    []model.Customer    `json:"customers"`
	Appointments []model.Appointment `json:"appointments"`
	Orders       []model.Order       `json:"orders"`
}

// IntegrityReport describes what a bulk load accepted and skipped.
type IntegrityReport struct {
	Customers    int      `json:"customers"`
	Appointments int      `json:"appointments"`
	Orders       int      `json:"orders"`
	DuplicateIDs []string `json:"duplicate_ids,omitempty"`
	Orphans      []string `json:"orphans,omitempty"`
	Invalid      []string `json:"invalid,omitempty"`
}

// Clean reports whether every record was accepted.
func (r *IntegrityReport) Clean() bool {
	return len(r.DuplicateIDs) == 0 && len(r.Orphans) == 0 && len(r.Invalid) == 0
}

// Issues returns a human readable list of problems.
func (r *IntegrityReport) Issues() []string {
	var out []string
	for _, id := range r.DuplicateIDs {
		out = append(out, "duplicate id "+id)
	}
	for _, id := range r.Orphans {
		out = append(out, "orphaned record "+id)
	}
	out = append(out, r.Invalid...)
	return out
}

// ErrCorruptSeed is returned when a seed file exists but cannot be decoded.
var ErrCorruptSeed = errors.New("corrupt seed file")

// ReadSnapshot reads a seed file. A missing file returns os.ErrNotExist.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSeed, path, err)
	}
	return &snap, nil
}

// WriteSnapshot writes a seed file, creating its directory.
func WriteSnapshot(path string, snap *Snapshot) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create seed dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal seed: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// SeedSizes controls how many mock records GenerateSnapshot produces.
type SeedSizes struct {
	Customers    int
	Appointments int
	Orders       int
}

// DefaultSeedSizes is used when no sizes are configured.
var DefaultSeedSizes = SeedSizes{Customers: 1000, Appointments: 500, Orders: 2000}

// GenerateSnapshot builds mock data. Output is fully determined by now,
// seed and sizes. Appointments land on free weekday business hours so the
// snapshot loads without conflicts.
func GenerateSnapshot(now time.Time, seed int64, sizes SeedSizes) *Snapshot {
	rng := rand.New(rand.NewSource(seed))
	now = now.UTC().Truncate(time.Hour)
	snap := &Snapshot{}

	for i := 0; i < sizes.Customers; i++ {
		snap.Customers = append(snap.Customers, model.Customer{
			ID:        fmt.Sprintf("%s%04d", CustomerPrefix, i),
			Name:      fmt.Sprintf("Customer %d", i),
			Phone:     fmt.Sprintf("+1555%07d", i),
			Email:     fmt.Sprintf("customer%d@example.com", i),
			CreatedAt: now.Add(-time.Duration(rng.Intn(7*24)) * time.Hour),
		})
	}
	if len(snap.Customers) == 0 {
		return snap
	}

	taken := make(map[time.Time]bool)
	statuses := []model.AppointmentStatus{model.StatusScheduled, model.StatusCompleted, model.StatusCancelled}
	for i := 0; i < sizes.Appointments; i++ {
		start, ok := freeSlot(rng, now, taken)
		if !ok {
			break
		}
		c := snap.Customers[rng.Intn(len(snap.Customers))]
		snap.Appointments = append(snap.Appointments, model.Appointment{
			ID:           fmt.Sprintf("%s%04d", AppointmentPrefix, i),
			CustomerID:   c.ID,
			CustomerName: c.Name,
			Service:      model.ServiceTypes[rng.Intn(len(model.ServiceTypes))],
			StartsAt:     start,
			Duration:     time.Hour,
			Status:       statuses[rng.Intn(len(statuses))],
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	orderStatuses := []model.OrderStatus{model.OrderPending, model.OrderShipped, model.OrderDelivered, model.OrderCancelled}
	for i := 0; i < sizes.Orders; i++ {
		c := snap.Customers[rng.Intn(len(snap.Customers))]
		total := 10 + rng.Float64()*490
		snap.Orders = append(snap.Orders, model.Order{
			ID:           fmt.Sprintf("%s%04d", OrderPrefix, i),
			CustomerID:   c.ID,
			CustomerName: c.Name,
			Date:         now.Add(-time.Duration(rng.Intn(7*24)) * time.Hour),
			Items:        1 + rng.Intn(5),
			Total:        math.Round(total*100) / 100,
			Status:       orderStatuses[rng.Intn(len(orderStatuses))],
		})
	}
	return snap
}

// freeSlot picks an unused weekday 09:00-17:00 hour within 14 days of now.
func freeSlot(rng *rand.Rand, now time.Time, taken map[time.Time]bool) (time.Time, bool) {
	for attempt := 0; attempt < 200; attempt++ {
		day := now.AddDate(0, 0, rng.Intn(14))
		start := time.Date(day.Year(), day.Month(), day.Day(), 9+rng.Intn(8), 0, 0, 0, time.UTC)
		if start.Weekday() == time.Saturday || start.Weekday() == time.Sunday || taken[start] {
			continue
		}
		taken[start] = true
		return start, true
	}
	return time.Time{}, false
}

// checkSnapshot splits a snapshot into loadable records and a report.
// current holds what the store already contains. Records are checked in
// order, so later duplicates and orphans are the ones skipped.
func checkSnapshot(snap, current *Snapshot, now time.Time) (*Snapshot, *IntegrityReport) {
	report := &IntegrityReport{}
	clean := &Snapshot{}

	customers := make(map[string]bool)
	pairs := make(map[string]bool)
	for _, c := range current.Customers {
		customers[c.ID] = true
		pairs[c.Phone+"|"+c.Email] = true
	}
	for _, c := range snap.Customers {
		if customers[c.ID] {
			report.DuplicateIDs = append(report.DuplicateIDs, c.ID)
			continue
		}
		if c.ID == "" {
			report.Invalid = append(report.Invalid, "customer without id")
			continue
		}
		prepared, err := prepareCustomer(&c, now)
		if err != nil {
			report.Invalid = append(report.Invalid, fmt.Sprintf("customer %q: %v", c.ID, err))
			continue
		}
		key := prepared.Phone + "|" + prepared.Email
		if pairs[key] {
			report.DuplicateIDs = append(report.DuplicateIDs, c.ID)
			continue
		}
		pairs[key] = true
		customers[c.ID] = true
		clean.Customers = append(clean.Customers, prepared)
	}

	seenAppointments := make(map[string]bool)
	booked := append([]model.Appointment(nil), current.Appointments...)
	for _, a := range current.Appointments {
		seenAppointments[a.ID] = true
	}
	for _, a := range snap.Appointments {
		if a.ID == "" {
			report.Invalid = append(report.Invalid, "appointment without id")
			continue
		}
		if seenAppointments[a.ID] {
			report.DuplicateIDs = append(report.DuplicateIDs, a.ID)
			continue
		}
		seenAppointments[a.ID] = true
		if !customers[a.CustomerID] {
			report.Orphans = append(report.Orphans, a.ID)
			continue
		}
		prepared, err := prepareAppointment(&a, now)
		if err != nil {
			report.Invalid = append(report.Invalid, fmt.Sprintf("appointment %q: %v", a.ID, err))
			continue
		}
		if other := conflicting(booked, prepared); other != nil {
			report.Invalid = append(report.Invalid, fmt.Sprintf("appointment %q overlaps %s", a.ID, other.ID))
			continue
		}
		booked = append(booked, prepared)
		clean.Appointments = append(clean.Appointments, prepared)
	}

	seenOrders := make(map[string]bool)
	for _, o := range current.Orders {
		seenOrders[o.ID] = true
	}
	for _, o := range snap.Orders {
		if seenOrders[o.ID] {
			report.DuplicateIDs = append(report.DuplicateIDs, o.ID)
			continue
		}
		seenOrders[o.ID] = true
		if !customers[o.CustomerID] {
			report.Orphans = append(report.Orphans, o.ID)
			continue
		}
		clean.Orders = append(clean.Orders, o)
	}

	report.Customers = len(clean.Customers)
	report.Appointments = len(clean.Appointments)
	report.Orders = len(clean.Orders)
	return clean, report
}
