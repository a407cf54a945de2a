package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/middleware"
	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/service"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
	"github.com/capitalize-ai/lead-qualifier/pkg/metrics"
)

// StreamHandler handles SSE turn endpoints.
type StreamHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(chat *service.ChatService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		chat:   chat,
		logger: log,
	}
}

// Turn handles POST /api/v1/sessions/{id}/turns
// It accepts one user message and streams the turn's fragments as SSE
// events named after the fragment kind.
func (h *StreamHandler) Turn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	sessionID := chi.URLParam(r, "id")

	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateTurnContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	fragments, err := h.chat.Send(ctx, tenantID, sessionID, req.Content)
	if err != nil {
		status, msg := errorStatus(err)
		writeError(w, status, msg)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	metrics.IncrementStreamConnections("sse")
	defer metrics.DecrementStreamConnections("sse")

	for f := range fragments {
		if err := sendSSEEvent(w, flusher, string(f.Kind), f); err != nil {
			h.logger.Warn("failed to write fragment", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
