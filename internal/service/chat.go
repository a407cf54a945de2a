package service

import (
	"context"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
)

// TurnHandler runs one conversation turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, sessionID, text string) (<-chan model.Fragment, error)
}

// ChatService submits user turns to the orchestrator.
type ChatService struct {
	sessions *SessionService
	turns    TurnHandler
}

// NewChatService creates a chat service.
func NewChatService(sessions *SessionService, turns TurnHandler) *ChatService {
	return &ChatService{sessions: sessions, turns: turns}
}

// Send submits text to a session owned by tenantID and returns the
// turn's fragment stream.
func (s *ChatService) Send(ctx context.Context, tenantID, sessionID, text string) (<-chan model.Fragment, error) {
	if _, err := s.sessions.Lookup(tenantID, sessionID); err != nil {
		return nil, err
	}
	return s.turns.HandleTurn(ctx, sessionID, text)
}
