package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/middleware"
	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/service"
	"github.com/capitalize-ai/lead-qualifier/internal/session"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
	"github.com/capitalize-ai/lead-qualifier/pkg/metrics"
)

const wsWriteWait = 10 * time.Second

// WebSocketHandler carries a whole conversation over one socket. Each
// text frame is a user turn; fragments are written back as JSON frames.
type WebSocketHandler struct {
	sessions *service.SessionService
	chat     *service.ChatService
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewWebSocketHandler creates a WebSocket handler. checkOrigin may be nil
// to accept same-origin requests only.
func NewWebSocketHandler(sessions *service.SessionService, chat *service.ChatService, checkOrigin func(*http.Request) bool, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		chat:     chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: log,
	}
}

// Serve handles GET /api/v1/sessions/{id}/ws
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	sessionID := chi.URLParam(r, "id")

	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.sessions.Lookup(tenantID, sessionID); err != nil {
		status, msg := errorStatus(err)
		writeError(w, status, msg)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(middleware.MaxTurnLength) * 2)

	metrics.IncrementStreamConnections("websocket")
	defer metrics.DecrementStreamConnections("websocket")

	log := h.logger.WithSession(sessionID, tenantID)
	log.Info("websocket connected")

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			// The socket is the session's only transport; losing it ends
			// the conversation.
			if endErr := h.sessions.End(ctx, tenantID, sessionID, session.ReasonDisconnect); endErr != nil && !errors.Is(endErr, session.ErrNotFound) {
				log.Warn("failed to end session", zap.Error(endErr))
			}
			log.Info("websocket disconnected", zap.Error(err))
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		text := turnText(data)
		if err := middleware.ValidateTurnContent(text); err != nil {
			h.write(conn, model.Fragment{Kind: model.FragmentError, Text: err.Error(), Code: "invalid_turn"})
			continue
		}

		fragments, err := h.chat.Send(ctx, tenantID, sessionID, text)
		if err != nil {
			_, msg := errorStatus(err)
			h.write(conn, model.Fragment{Kind: model.FragmentError, Text: msg, Code: "turn_rejected"})
			if errors.Is(err, session.ErrNotFound) {
				h.close(conn, "session not found")
				return
			}
			continue
		}

		reason := ""
		for f := range fragments {
			if err := h.write(conn, f); err != nil {
				log.Warn("failed to write fragment", zap.Error(err))
			}
			if f.Kind == model.FragmentSessionEnded {
				reason = f.Code
			}
		}
		if reason != "" {
			if err := h.sessions.End(ctx, tenantID, sessionID, reason); err != nil && !errors.Is(err, session.ErrNotFound) {
				log.Warn("failed to end session", zap.Error(err))
			}
			h.close(conn, "conversation ended")
			return
		}
	}
}

// turnText accepts either a raw text frame or {"content": "..."}.
func turnText(data []byte) string {
	var req model.SendTurnRequest
	if json.Unmarshal(data, &req) == nil && req.Content != "" {
		return req.Content
	}
	return strings.TrimSpace(string(data))
}

func (h *WebSocketHandler) write(conn *websocket.Conn, f model.Fragment) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(f)
}

func (h *WebSocketHandler) close(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
