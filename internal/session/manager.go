package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/scoring"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

// ErrNotFound is returned for unknown or already removed sessions.
var ErrNotFound = errors.New("session not found")

// Reasons a session ends.
const (
	ReasonExitPhrase = "exit_phrase"
	ReasonEndCall    = "end_call"
	ReasonDisconnect = "disconnect"
	ReasonIdle       = "idle_timeout"
	ReasonClosed     = "closed"
)

// EndFunc is called once for every session removed from the manager.
type EndFunc func(s *Session, reason string)

// Manager owns all live sessions.
type Manager struct {
	log *logger.Logger
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	onEnd    []EndFunc
}

// NewManager creates an empty session manager.
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		log:      log.Named("session"),
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*Session),
	}
}

// OnEnd registers a hook run after a session is removed.
func (m *Manager) OnEnd(fn EndFunc) {
	m.mu.Lock()
	m.onEnd = append(m.onEnd, fn)
	m.mu.Unlock()
}

// Create opens a session with an empty, scored qualification record.
func (m *Manager) Create(tenantID, userID string, metadata map[string]string) *Session {
	id := uuid.Must(uuid.NewV7()).String()
	now := m.now()
	lead := &model.Lead{
		ID:           uuid.NewString(),
		SessionID:    id,
		BusinessType: model.BusinessUnknown,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	scoring.Apply(lead)

	s := newSession(id, tenantID, userID, metadata, lead, m.now)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.Debug("session created", zap.String("session_id", id), zap.String("tenant_id", tenantID))
	return s
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// End terminates and removes a session.
func (m *Manager) End(id, reason string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	hooks := append([]EndFunc(nil), m.onEnd...)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.Terminate()
	m.log.Info("session ended", zap.String("session_id", id), zap.String("reason", reason))
	for _, fn := range hooks {
		fn(s, reason)
	}
	return nil
}

// Sweep removes sessions idle for longer than idle, and terminated
// sessions that are not mid-turn. It returns the number removed.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.RLock()
	var expired []*Session
	for _, s := range m.sessions {
		if s.Terminated() || s.LastActive().Before(cutoff) {
			expired = append(expired, s)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, s := range expired {
		if !s.TryAcquire() {
			continue
		}
		reason := ReasonIdle
		if s.Terminated() {
			reason = ReasonClosed
		}
		err := m.End(s.ID, reason)
		s.Release()
		if err == nil {
			removed++
		}
	}
	return removed
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
