package handler

import (
	"net/http"
	"strings"

	"github.com/capitalize-ai/lead-qualifier/internal/knowledge"
	"github.com/capitalize-ai/lead-qualifier/internal/tools"
)

// KnowledgeHandler serves the knowledge base and the tool catalog.
type KnowledgeHandler struct {
	kb       tools.KnowledgeBase
	registry *tools.Registry
}

// NewKnowledgeHandler creates a knowledge handler. kb may be nil.
func NewKnowledgeHandler(kb tools.KnowledgeBase, registry *tools.Registry) *KnowledgeHandler {
	return &KnowledgeHandler{kb: kb, registry: registry}
}

// Topics handles GET /api/v1/knowledge/topics
func (h *KnowledgeHandler) Topics(w http.ResponseWriter, r *http.Request) {
	topics := []string{}
	if h.kb != nil {
		if t := h.kb.Topics(); t != nil {
			topics = t
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics, "count": len(topics)})
}

// Search handles GET /api/v1/knowledge/search?q=
func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	hits := []knowledge.Hit{}
	if h.kb != nil {
		if found := h.kb.Search(q, queryInt(r, "limit", 5, 20)); found != nil {
			hits = found
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "results": hits, "count": len(hits)})
}

type toolView struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Parameters  tools.Schema `json:"parameters"`
	Workflow    string       `json:"workflow,omitempty"`
	Requires    string       `json:"requires,omitempty"`
	Advances    string       `json:"advances,omitempty"`
}

// Tools handles GET /api/v1/tools
func (h *KnowledgeHandler) Tools(w http.ResponseWriter, r *http.Request) {
	list := h.registry.Tools()
	views := make([]toolView, 0, len(list))
	for _, t := range list {
		views = append(views, toolView{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
			Workflow:    t.Workflow,
			Requires:    string(t.Requires),
			Advances:    string(t.Advances),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": views, "count": len(views)})
}
