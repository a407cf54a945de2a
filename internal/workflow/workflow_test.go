package workflow

import (
	"errors"
	"testing"
)

func TestMachineForwardOnly(t *testing.T) {
	t.Parallel()

	m := New(Booking)
	if m.State() != Start {
		t.Fatalf("State() = %s, want %s", m.State(), Start)
	}
	if !m.Advance(AvailabilityChecked) {
		t.Fatal("Advance(availability_checked) = false, want true")
	}
	if m.Advance(CustomerLocated) {
		t.Fatal("Advance(customer_located) from availability_checked = true, want false")
	}
	if m.State() != AvailabilityChecked {
		t.Fatalf("State() = %s, want %s", m.State(), AvailabilityChecked)
	}
	if m.Advance(State("bogus")) {
		t.Fatal("Advance(bogus) = true, want false")
	}
	if !m.Advance(Booked) || !m.Terminal() {
		t.Fatal("machine should be terminal after booking")
	}

	m.Reset()
	if m.State() != Start || m.Terminal() {
		t.Fatalf("State() after Reset = %s, want %s", m.State(), Start)
	}
}

func TestMachineCheck(t *testing.T) {
	t.Parallel()

	m := New(Booking)
	if err := m.Check(""); err != nil {
		t.Fatalf("Check(\"\") error = %v", err)
	}

	err := m.Check(AvailabilityChecked)
	var perr *PreconditionError
	if !errors.As(err, &perr) {
		t.Fatalf("Check() error = %v, want PreconditionError", err)
	}
	if perr.Required != AvailabilityChecked || perr.Current != Start || perr.Workflow != Booking {
		t.Fatalf("PreconditionError = %+v", perr)
	}

	m.Advance(CustomerLocated)
	if err := m.Check(AvailabilityChecked); err == nil {
		t.Fatal("Check(availability_checked) from customer_located error = nil")
	}
	if err := m.Check(CustomerLocated); err != nil {
		t.Fatalf("Check(customer_located) error = %v", err)
	}
	if !m.Reached(Start) || m.Reached(Booked) {
		t.Fatal("Reached() inconsistent with state")
	}
}
