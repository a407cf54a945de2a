package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/middleware"
	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/service"
	"github.com/capitalize-ai/lead-qualifier/internal/store"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

// LeadHandler serves persisted qualification records to the sales team.
type LeadHandler struct {
	service *service.LeadService
	logger  *logger.Logger
}

// NewLeadHandler creates a new lead handler.
func NewLeadHandler(svc *service.LeadService, log *logger.Logger) *LeadHandler {
	return &LeadHandler{service: svc, logger: log}
}

// List handles GET /api/v1/leads
// Supports ?priority=HIGH|MEDIUM|LOW, ?min_score=N and ?limit=N.
func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	q := store.LeadQuery{Limit: queryInt(r, "limit", 50, 500)}

	if p := r.URL.Query().Get("priority"); p != "" {
		q.Priority = model.Priority(strings.ToUpper(p))
		switch q.Priority {
		case model.PriorityHigh, model.PriorityMedium, model.PriorityLow:
		default:
			writeError(w, http.StatusBadRequest, "priority must be HIGH, MEDIUM or LOW")
			return
		}
	}
	if s := r.URL.Query().Get("min_score"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "min_score must be between 0 and 100")
			return
		}
		q.MinScore = n
	}

	leads, err := h.service.List(r.Context(), q)
	if err != nil {
		h.fail(w, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
}

// HighPriority handles GET /api/v1/leads/high-priority
func (h *LeadHandler) HighPriority(w http.ResponseWriter, r *http.Request) {
	leads, err := h.service.HighPriority(r.Context(), queryInt(r, "limit", 10, 100))
	if err != nil {
		h.fail(w, "high priority", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
}

// Summary handles GET /api/v1/leads/summary
func (h *LeadHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summary(r.Context())
	if err != nil {
		h.fail(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Get handles GET /api/v1/leads/{id}
func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateLeadID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lead, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// Handoff handles GET /api/v1/leads/{id}/handoff
// The optional ?summary= text is included in the handoff.
func (h *LeadHandler) Handoff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateLeadID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	text, lead, err := h.service.Handoff(r.Context(), id, r.URL.Query().Get("summary"))
	if err != nil {
		h.fail(w, "handoff", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"qualification_id": lead.ID,
		"score":            lead.Score,
		"priority":         lead.Priority,
		"handoff":          text,
	})
}

func (h *LeadHandler) fail(w http.ResponseWriter, op string, err error) {
	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("lead request failed", zap.String("op", op), zap.Error(err))
	}
	writeError(w, status, msg)
}
