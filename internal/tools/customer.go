package tools

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/store"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

type handlers struct {
	deps Deps
	log  *logger.Logger
}

type customerArgs struct {
	CustomerID string `json:"customer_id"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

func (a customerArgs) query() store.CustomerQuery {
	return store.CustomerQuery{ID: a.CustomerID, Phone: a.Phone, Email: a.Email}
}

func (h *handlers) findCustomer(ctx context.Context, call *Call) (Outcome, error) {
	var args customerArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	q := args.query()
	if q.Empty() {
		return Outcome{}, &store.ValidationError{Field: "customer_id", Reason: "provide a customer ID, phone or email"}
	}

	c, err := h.deps.Store.FindCustomer(ctx, q)
	if errors.Is(err, store.ErrNotFound) {
		return Outcome{Data: map[string]any{
			"found":   false,
			"message": "No customer matches those details. Offer to create an account.",
		}}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	call.Session.SetCustomerID(c.ID)
	return Outcome{Advance: true, Data: map[string]any{"found": true, "customer": c}}, nil
}

type createCustomerArgs struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

func (h *handlers) createCustomer(ctx context.Context, call *Call) (Outcome, error) {
	var args createCustomerArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}

	c, err := h.deps.Store.CreateCustomer(ctx, &model.Customer{Name: args.Name, Phone: args.Phone, Email: args.Email})
	if err != nil {
		return Outcome{}, err
	}

	h.log.Info("customer created", zap.String("customer_id", c.ID), zap.String("session_id", call.Session.ID))
	call.Session.SetCustomerID(c.ID)
	return Outcome{Advance: true, Data: map[string]any{"created": true, "customer": c}}, nil
}

// resolveCustomer loads the customer named by args, falling back to the
// customer already located in the session.
func (h *handlers) resolveCustomer(ctx context.Context, call *Call, args customerArgs) (*model.Customer, error) {
	q := args.query()
	if q.Empty() {
		q.ID = call.Session.CustomerID()
	}
	if q.Empty() {
		return nil, &store.ValidationError{Field: "customer_id", Reason: "no customer has been located yet"}
	}
	return h.deps.Store.FindCustomer(ctx, q)
}

func (h *handlers) getAppointments(ctx context.Context, call *Call) (Outcome, error) {
	var args customerArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	c, err := h.resolveCustomer(ctx, call, customerArgs{CustomerID: args.CustomerID})
	if err != nil {
		return Outcome{}, err
	}

	appts, err := h.deps.Store.ListAppointments(ctx, store.AppointmentQuery{CustomerID: c.ID, IncludeCancelled: true})
	if err != nil {
		return Outcome{}, err
	}
	list := make([]map[string]any, 0, len(appts))
	for _, a := range appts {
		list = append(list, h.appointmentView(a))
	}
	return Outcome{Data: map[string]any{
		"customer_id":  c.ID,
		"appointments": list,
		"count":        len(list),
	}}, nil
}

func (h *handlers) getOrders(ctx context.Context, call *Call) (Outcome, error) {
	var args customerArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	c, err := h.resolveCustomer(ctx, call, customerArgs{CustomerID: args.CustomerID})
	if err != nil {
		return Outcome{}, err
	}

	orders, err := h.deps.Store.ListOrders(ctx, c.ID)
	if err != nil {
		return Outcome{}, err
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return Outcome{Data: map[string]any{
		"customer_id": c.ID,
		"orders":      orders,
		"count":       len(orders),
	}}, nil
}

func (h *handlers) appointmentView(a model.Appointment) map[string]any {
	return map[string]any{
		"appointment_id": a.ID,
		"customer_id":    a.CustomerID,
		"customer_name":  a.CustomerName,
		"date":           h.deps.Hours.Format(a.StartsAt),
		"service":        a.Service,
		"status":         a.Status,
	}
}
