// Package workflow tracks multi-step tool workflows such as booking a
// meeting. A Machine only moves forward; the orchestrator checks a tool's
// required state before dispatch and advances the machine after the tool
// succeeds.
package workflow

import (
	"fmt"
	"sync"
)

// Booking is the name of the appointment booking workflow.
const Booking = "booking"

// State is a step in a workflow.
type State string

const (
	Start               State = "start"
	CustomerLocated     State = "customer_located"
	AvailabilityChecked State = "availability_checked"
	Booked              State = "booked"
)

var rank = map[State]int{
	Start:               0,
	CustomerLocated:     1,
	AvailabilityChecked: 2,
	Booked:              3,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := rank[s]
	return ok
}

// PreconditionError is returned when a tool requires a step that the
// workflow has not reached yet.
type PreconditionError struct {
	Workflow string
	Required State
	Current  State
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("workflow %s requires step %s, current step is %s", e.Workflow, e.Required, e.Current)
}

// Machine is a forward-only state machine. It is safe for concurrent use.
type Machine struct {
	name string

	mu    sync.Mutex
	state State
}

// New returns a machine in the Start state.
func New(name string) *Machine {
	return &Machine{name: name, state: Start}
}

// Name returns the workflow name.
func (m *Machine) Name() string { return m.name }

// State returns the current step.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reached reports whether the machine is at or past s.
func (m *Machine) Reached(s State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return rank[m.state] >= rank[s]
}

// Check returns a *PreconditionError when required has not been reached.
// An empty required state always passes.
func (m *Machine) Check(required State) error {
	if required == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rank[m.state] < rank[required] {
		return &PreconditionError{Workflow: m.name, Required: required, Current: m.state}
	}
	return nil
}

// Advance moves the machine to s. Moving backwards or sideways is a
// no-op and reports false.
func (m *Machine) Advance(s State) bool {
	if !s.Valid() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rank[s] <= rank[m.state] {
		return false
	}
	m.state = s
	return true
}

// Terminal reports whether the workflow has completed.
func (m *Machine) Terminal() bool {
	return m.State() == Booked
}

// Reset returns the machine to Start.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.state = Start
	m.mu.Unlock()
}
