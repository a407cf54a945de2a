// Package service provides the business operations behind the HTTP API.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/session"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
	"github.com/capitalize-ai/lead-qualifier/pkg/metrics"
)

// ErrTranscriptUnavailable is returned when no transcript log is configured.
var ErrTranscriptUnavailable = errors.New("transcript log is not configured")

// EventPublisher records session lifecycle events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.SessionEvent) (uint64, error)
}

// TranscriptReader replays recorded session messages.
type TranscriptReader interface {
	GetMessages(ctx context.Context, tenantID, sessionID string, afterSequence uint64, limit int) ([]model.Message, uint64, bool, error)
}

// SessionService handles session lifecycle operations.
type SessionService struct {
	sessions   *session.Manager
	events     EventPublisher
	transcript TranscriptReader
	logger     *logger.Logger
}

// NewSessionService creates a session service. events and transcript may
// be nil when no event log is configured.
func NewSessionService(sessions *session.Manager, events EventPublisher, transcript TranscriptReader, log *logger.Logger) *SessionService {
	s := &SessionService{
		sessions:   sessions,
		events:     events,
		transcript: transcript,
		logger:     log.Named("sessions"),
	}
	sessions.OnEnd(s.ended)
	return s
}

// Create opens a new session.
func (s *SessionService) Create(ctx context.Context, tenantID, userID string, req *model.CreateSessionRequest) *model.SessionInfo {
	sess := s.sessions.Create(tenantID, userID, req.Metadata)
	metrics.SessionStarted()
	s.publish(ctx, sess, model.EventTypeSessionStarted, "")

	s.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("tenant_id", tenantID),
	)
	return sess.Info()
}

// Lookup returns a live session owned by tenantID.
func (s *SessionService) Lookup(tenantID, sessionID string) (*session.Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.TenantID != tenantID {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

// Get returns the session's current state.
func (s *SessionService) Get(ctx context.Context, tenantID, sessionID string) (*model.SessionInfo, error) {
	sess, err := s.Lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Info(), nil
}

// End terminates and removes a session.
func (s *SessionService) End(ctx context.Context, tenantID, sessionID, reason string) error {
	if _, err := s.Lookup(tenantID, sessionID); err != nil {
		return err
	}
	return s.sessions.End(sessionID, reason)
}

// Transcript replays the recorded messages of a session.
func (s *SessionService) Transcript(ctx context.Context, tenantID, sessionID string, after uint64, limit int) (*model.TranscriptResponse, error) {
	if s.transcript == nil {
		return nil, ErrTranscriptUnavailable
	}
	msgs, last, more, err := s.transcript.GetMessages(ctx, tenantID, sessionID, after, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return &model.TranscriptResponse{Messages: msgs, HasMore: more, LastSequence: last}, nil
}

func (s *SessionService) ended(sess *session.Session, reason string) {
	metrics.SessionEnded(reason)
	s.publish(context.Background(), sess, model.EventTypeSessionEnded, reason)
}

func (s *SessionService) publish(ctx context.Context, sess *session.Session, kind model.EventType, reason string) {
	if s.events == nil {
		return
	}
	event := &model.SessionEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: sess.ID,
		TenantID:  sess.TenantID,
		Type:      kind,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish session event",
			zap.String("session_id", sess.ID),
			zap.String("type", string(kind)),
			zap.Error(err),
		)
	}
}
