package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
)

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		s, err := NewGormStore("sqlite", filepath.Join(t.TempDir(), "leads.db"))
		if err != nil {
			t.Fatalf("NewGormStore() error = %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func mustCustomer(t *testing.T, s Store, name, phone, email string) *model.Customer {
	t.Helper()
	c, err := s.CreateCustomer(context.Background(), &model.Customer{Name: name, Phone: phone, Email: email})
	if err != nil {
		t.Fatalf("CreateCustomer(%s) error = %v", name, err)
	}
	return c
}

func nextWeekday(hour int) time.Time {
	d := time.Now().UTC().AddDate(0, 0, 2)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

func TestCreateCustomerRejectsDuplicatePair(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		first := mustCustomer(t, s, "Mike Rivera", "+1 (555) 010-0456", "Mike@CityCoffee.com")
		if first.ID != "CUST0000" {
			t.Fatalf("first customer ID = %q, want CUST0000", first.ID)
		}
		if first.Phone != "+15550100456" || first.Email != "mike@citycoffee.com" {
			t.Fatalf("customer not normalized: %+v", first)
		}

		_, err := s.CreateCustomer(ctx, &model.Customer{Name: "Mike R", Phone: "555-010-0456", Email: "mike@citycoffee.com"})
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("CreateCustomer() duplicate error = %v, want ErrDuplicate", err)
		}

		found, err := s.ListCustomers(ctx, CustomerQuery{Phone: "+15550100456", Email: "mike@citycoffee.com"})
		if err != nil {
			t.Fatalf("ListCustomers() error = %v", err)
		}
		if len(found) != 1 {
			t.Fatalf("ListCustomers() returned %d records, want 1", len(found))
		}

		// Same phone with a different email is a different pair.
		other := mustCustomer(t, s, "Ana Rivera", "+15550100456", "ana@citycoffee.com")
		if other.ID != "CUST0001" {
			t.Fatalf("second customer ID = %q, want CUST0001", other.ID)
		}
	})
}

func TestCreateCustomerValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		tests := []struct {
			name     string
			customer model.Customer
			field    string
		}{
			{"short name", model.Customer{Name: "M", Phone: "+15550100456", Email: "m@example.com"}, "name"},
			{"local phone", model.Customer{Name: "Mike", Phone: "555-0456", Email: "m@example.com"}, "phone"},
			{"no domain", model.Customer{Name: "Mike", Phone: "+15550100456", Email: "mike@example"}, "email"},
			{"no at", model.Customer{Name: "Mike", Phone: "+15550100456", Email: "mike.example.com"}, "email"},
		}
		for _, tt := range tests {
			_, err := s.CreateCustomer(context.Background(), &tt.customer)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("%s: CreateCustomer() error = %v, want ValidationError", tt.name, err)
			}
			if verr.Field != tt.field {
				t.Fatalf("%s: ValidationError.Field = %q, want %q", tt.name, verr.Field, tt.field)
			}
		}
	})
}

func TestFindCustomerFormatAware(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := mustCustomer(t, s, "Mike Rivera", "+15551230456", "mike@citycoffee.com")

		queries := []CustomerQuery{
			{ID: "0"},
			{ID: "cust0000"},
			{Phone: "(555) 123-0456"},
			{Phone: "123-0456"},
			{Email: " MIKE@citycoffee.com "},
		}
		for _, q := range queries {
			got, err := s.FindCustomer(ctx, q)
			if err != nil {
				t.Fatalf("FindCustomer(%+v) error = %v", q, err)
			}
			if got.ID != c.ID {
				t.Fatalf("FindCustomer(%+v) = %s, want %s", q, got.ID, c.ID)
			}
		}

		if _, err := s.FindCustomer(ctx, CustomerQuery{Email: "nobody@example.com"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("FindCustomer() missing error = %v, want ErrNotFound", err)
		}
	})
}

func TestBookAppointmentRejectsOrphan(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.BookAppointment(context.Background(), &model.Appointment{
			CustomerID: "CUST0099",
			StartsAt:   nextWeekday(10),
		})
		if !errors.Is(err, ErrOrphan) {
			t.Fatalf("BookAppointment() error = %v, want ErrOrphan", err)
		}
	})
}

func TestConcurrentBookingSingleWinner(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		a := mustCustomer(t, s, "Mike Rivera", "+15550100001", "mike@example.com")
		b := mustCustomer(t, s, "Ana Lopez", "+15550100002", "ana@example.com")
		slot := nextWeekday(11)

		const attempts = 8
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				customer := a.ID
				if i%2 == 1 {
					customer = b.ID
				}
				_, errs[i] = s.BookAppointment(context.Background(), &model.Appointment{
					CustomerID: customer,
					StartsAt:   slot,
					Duration:   time.Hour,
				})
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, err := range errs {
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConflict):
			default:
				t.Fatalf("BookAppointment() unexpected error = %v", err)
			}
		}
		if successes != 1 {
			t.Fatalf("successful bookings = %d, want 1", successes)
		}
	})
}

func TestUpdateAppointmentRechecksConflict(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := mustCustomer(t, s, "Mike Rivera", "+15550100001", "mike@example.com")
		first, err := s.BookAppointment(ctx, &model.Appointment{CustomerID: c.ID, StartsAt: nextWeekday(9)})
		if err != nil {
			t.Fatalf("BookAppointment() error = %v", err)
		}
		second, err := s.BookAppointment(ctx, &model.Appointment{CustomerID: c.ID, StartsAt: nextWeekday(10)})
		if err != nil {
			t.Fatalf("BookAppointment() error = %v", err)
		}

		_, err = s.UpdateAppointment(ctx, second.ID, func(a *model.Appointment) error {
			a.StartsAt = first.StartsAt
			return nil
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("UpdateAppointment() error = %v, want ErrConflict", err)
		}

		// Cancelling the first frees the slot.
		if _, err := s.UpdateAppointment(ctx, first.ID, func(a *model.Appointment) error {
			a.Status = model.StatusCancelled
			return nil
		}); err != nil {
			t.Fatalf("UpdateAppointment(cancel) error = %v", err)
		}
		moved, err := s.UpdateAppointment(ctx, second.ID, func(a *model.Appointment) error {
			a.StartsAt = first.StartsAt
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateAppointment(move) error = %v", err)
		}
		if !moved.StartsAt.Equal(first.StartsAt) {
			t.Fatalf("moved StartsAt = %v, want %v", moved.StartsAt, first.StartsAt)
		}

		list, err := s.ListAppointments(ctx, AppointmentQuery{CustomerID: c.ID})
		if err != nil {
			t.Fatalf("ListAppointments() error = %v", err)
		}
		if len(list) != 1 || list[0].ID != second.ID {
			t.Fatalf("ListAppointments() = %+v, want only %s", list, second.ID)
		}
	})
}

func TestLeadRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
		lead := &model.Lead{
			ID:            "lead-1",
			SessionID:     "session-1",
			BusinessType:  model.BusinessExisting,
			Timeline:      "next month",
			PainPoints:    []string{"inconsistent quality"},
			BusinessScale: "3 coffee shops",
			Volume:        "500 customers",
			SupportNeeds:  []string{"training", "menu development"},
			CoffeeStyle:   "specialty",
			ContactName:   "Mike",
			ContactEmail:  "mike@citycoffee.com",
			ContactPhone:  "555-0456",
			ContactRole:   "owner",
			Score:         90,
			Priority:      model.PriorityHigh,
			CreatedAt:     created,
			UpdatedAt:     created.Add(time.Minute),
		}
		if err := s.SaveLead(ctx, lead); err != nil {
			t.Fatalf("SaveLead() error = %v", err)
		}

		got, err := s.GetLead(ctx, "lead-1")
		if err != nil {
			t.Fatalf("GetLead() error = %v", err)
		}
		if !got.CreatedAt.Equal(lead.CreatedAt) || !got.UpdatedAt.Equal(lead.UpdatedAt) {
			t.Fatalf("timestamps = %v/%v, want %v/%v", got.CreatedAt, got.UpdatedAt, lead.CreatedAt, lead.UpdatedAt)
		}
		want := lead.Clone()
		got.CreatedAt, got.UpdatedAt = time.Time{}, time.Time{}
		want.CreatedAt, want.UpdatedAt = time.Time{}, time.Time{}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("GetLead() = %+v, want %+v", got, want)
		}
	})
}

func TestQueryLeadsOrdersByScore(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		leads := []model.Lead{
			{ID: "a", Score: 55, Priority: model.PriorityLow},
			{ID: "b", Score: 92, Priority: model.PriorityHigh},
			{ID: "c", Score: 81, Priority: model.PriorityHigh},
			{ID: "d", Score: 70, Priority: model.PriorityMedium},
		}
		for i := range leads {
			if err := s.SaveLead(ctx, &leads[i]); err != nil {
				t.Fatalf("SaveLead() error = %v", err)
			}
		}

		high, err := s.QueryLeads(ctx, LeadQuery{Priority: model.PriorityHigh})
		if err != nil {
			t.Fatalf("QueryLeads() error = %v", err)
		}
		if len(high) != 2 || high[0].ID != "b" || high[1].ID != "c" {
			t.Fatalf("QueryLeads(HIGH) = %+v, want [b c]", high)
		}

		all, err := s.QueryLeads(ctx, LeadQuery{})
		if err != nil {
			t.Fatalf("QueryLeads() error = %v", err)
		}
		summary := Summarize(all)
		if summary.Total != 4 || summary.High != 2 || summary.Medium != 1 || summary.Low != 1 {
			t.Fatalf("Summarize() = %+v", summary)
		}
	})
}

func TestLoadReportsDuplicatesAndOrphans(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		slot := nextWeekday(14)
		snap := &Snapshot{
			Customers: []model.Customer{
				{ID: "CUST0000", Name: "Customer 0", Phone: "+15550000000", Email: "customer0@example.com"},
				{ID: "CUST0000", Name: "Customer 0 again", Phone: "+15550000009", Email: "again@example.com"},
				{ID: "CUST0001", Name: "Customer 1", Phone: "+15550000001", Email: "customer1@example.com"},
			},
			Appointments: []model.Appointment{
				{ID: "APT0000", CustomerID: "CUST0000", StartsAt: slot, Duration: time.Hour, Status: model.StatusScheduled},
				{ID: "APT0001", CustomerID: "CUST0404", StartsAt: slot.Add(time.Hour), Duration: time.Hour, Status: model.StatusScheduled},
			},
			Orders: []model.Order{
				{ID: "ORD0000", CustomerID: "CUST0001", Items: 2, Total: 20, Status: model.OrderPending},
				{ID: "ORD0001", CustomerID: "CUST0404", Items: 1, Total: 10, Status: model.OrderPending},
			},
		}

		report, err := s.Load(context.Background(), snap)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if report.Clean() {
			t.Fatal("Load() report is clean, want issues")
		}
		if report.Customers != 2 || report.Appointments != 1 || report.Orders != 1 {
			t.Fatalf("Load() counts = %d/%d/%d, want 2/1/1", report.Customers, report.Appointments, report.Orders)
		}
		if !reflect.DeepEqual(report.DuplicateIDs, []string{"CUST0000"}) {
			t.Fatalf("DuplicateIDs = %v", report.DuplicateIDs)
		}
		if !reflect.DeepEqual(report.Orphans, []string{"APT0001", "ORD0001"}) {
			t.Fatalf("Orphans = %v", report.Orphans)
		}

		// IDs continue after the loaded records.
		c := mustCustomer(t, s, "New Customer", "+15550000077", "new@example.com")
		if c.ID != "CUST0002" {
			t.Fatalf("CreateCustomer() ID = %q, want CUST0002", c.ID)
		}
	})
}
