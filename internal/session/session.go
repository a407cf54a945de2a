// Package session holds per-conversation dialogue state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/workflow"
)

// Session is one conversation. Turns are processed one at a time: callers
// hold the turn slot via Acquire for the whole turn.
type Session struct {
	ID        string
	TenantID  string
	UserID    string
	CreatedAt time.Time
	Metadata  map[string]string

	turn chan struct{}
	now  func() time.Time

	mu         sync.Mutex
	history    []model.Message
	lead       *model.Lead
	workflows  map[string]*workflow.Machine
	customerID string
	terminated bool
	lastActive time.Time
}

func newSession(id, tenantID, userID string, metadata map[string]string, lead *model.Lead, now func() time.Time) *Session {
	created := now()
	return &Session{
		ID:         id,
		TenantID:   tenantID,
		UserID:     userID,
		CreatedAt:  created,
		Metadata:   metadata,
		turn:       make(chan struct{}, 1),
		now:        now,
		lead:       lead,
		workflows:  make(map[string]*workflow.Machine),
		lastActive: created,
	}
}

// Acquire blocks until the turn slot is free or ctx is done.
func (s *Session) Acquire(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the turn slot if it is free.
func (s *Session) TryAcquire() bool {
	select {
	case s.turn <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the turn slot.
func (s *Session) Release() {
	select {
	case <-s.turn:
	default:
	}
}

// Append adds messages to the history in one step. Missing IDs and
// timestamps are filled in; the stored copies are returned.
func (s *Session) Append(msgs ...model.Message) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.Must(uuid.NewV7()).String()
		}
		m.SessionID = s.ID
		m.TenantID = s.TenantID
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		s.history = append(s.history, m)
		stored = append(stored, m)
	}
	s.lastActive = now
	return stored
}

// History returns a copy of the full history.
func (s *Session) History() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.history...)
}

// Window returns at most limit trailing messages. The window always starts
// at a user message so tool results are never separated from the
// assistant turn that requested them. A non-positive limit returns the
// full history.
func (s *Session) Window(limit int) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if limit > 0 && len(s.history) > limit {
		start = len(s.history) - limit
	}
	for start > 0 && s.history[start].Role != model.RoleUser {
		start++
		if start >= len(s.history) {
			// No user message inside the window; fall back to the last one.
			start = lastUser(s.history)
			break
		}
	}
	return append([]model.Message(nil), s.history[start:]...)
}

func lastUser(history []model.Message) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser {
			return i
		}
	}
	return 0
}

// Lead returns a copy of the session's qualification record.
func (s *Session) Lead() *model.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lead.Clone()
}

// SetLead replaces the qualification record.
func (s *Session) SetLead(l *model.Lead) {
	s.mu.Lock()
	s.lead = l.Clone()
	s.mu.Unlock()
}

// Workflow returns the named workflow machine, creating it on first use.
func (s *Session) Workflow(name string) *workflow.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.workflows[name]
	if !ok {
		m = workflow.New(name)
		s.workflows[name] = m
	}
	return m
}

// CustomerID returns the customer located during this session, if any.
func (s *Session) CustomerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customerID
}

// SetCustomerID records the located customer.
func (s *Session) SetCustomerID(id string) {
	s.mu.Lock()
	s.customerID = id
	s.mu.Unlock()
}

// Terminate marks the session ended. It reports whether this call
// changed the state.
func (s *Session) Terminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return false
	}
	s.terminated = true
	return true
}

// Terminated reports whether the session has ended.
func (s *Session) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// Touch records activity.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// LastActive returns the time of the last recorded activity.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Info returns the externally visible view of the session.
func (s *Session) Info() *model.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := &model.SessionInfo{
		ID:           s.ID,
		TenantID:     s.TenantID,
		UserID:       s.UserID,
		CreatedAt:    s.CreatedAt,
		LastActive:   s.lastActive,
		Terminated:   s.terminated,
		CustomerID:   s.customerID,
		MessageCount: len(s.history),
		Lead:         s.lead.Clone(),
	}
	if len(s.workflows) > 0 {
		info.Workflows = make(map[string]string, len(s.workflows))
		for name, m := range s.workflows {
			info.Workflows[name] = string(m.State())
		}
	}
	return info
}
