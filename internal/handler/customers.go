package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/service"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

// CustomerHandler serves customer records.
type CustomerHandler struct {
	service *service.CustomerService
	logger  *logger.Logger
}

// NewCustomerHandler creates a new customer handler.
func NewCustomerHandler(svc *service.CustomerService, log *logger.Logger) *CustomerHandler {
	return &CustomerHandler{service: svc, logger: log}
}

// Get handles GET /api/v1/customers/{id}
func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Appointments handles GET /api/v1/customers/{id}/appointments
func (h *CustomerHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	appts, err := h.service.Appointments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts, "count": len(appts)})
}

// Orders handles GET /api/v1/customers/{id}/orders
func (h *CustomerHandler) Orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.Orders(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "count": len(orders)})
}

func (h *CustomerHandler) fail(w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("customer request failed", zap.Error(err))
	}
	writeError(w, status, msg)
}
