package tools

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/notify"
	"github.com/capitalize-ai/lead-qualifier/internal/store"
)

const (
	defaultWindow = 7 * 24 * time.Hour
	maxWindow     = 31 * 24 * time.Hour
)

type availabilityArgs struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (h *handlers) checkAvailability(ctx context.Context, call *Call) (Outcome, error) {
	var args availabilityArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	if err := required("start_date", args.StartDate); err != nil {
		return Outcome{}, err
	}
	from, err := h.deps.Hours.ParseDate("start_date", args.StartDate)
	if err != nil {
		return Outcome{}, err
	}
	to := from.Add(defaultWindow)
	if args.EndDate != "" {
		if to, err = h.deps.Hours.ParseDate("end_date", args.EndDate); err != nil {
			return Outcome{}, err
		}
	}
	if to.Before(from) {
		return Outcome{}, &store.ValidationError{Field: "end_date", Reason: "is before start_date"}
	}
	if to.Sub(from) > maxWindow {
		return Outcome{}, &store.ValidationError{Field: "end_date", Reason: "range must not exceed 31 days"}
	}

	slots, err := h.freeSlots(ctx, from, to)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Advance: true, Data: map[string]any{
		"start_date":      from.Format("2006-01-02"),
		"end_date":        to.Format("2006-01-02"),
		"available_slots": slots,
		"count":           len(slots),
	}}, nil
}

func (h *handlers) freeSlots(ctx context.Context, from, to time.Time) ([]string, error) {
	endOfRange := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location()).AddDate(0, 0, 1)
	booked, err := h.deps.Store.ListAppointments(ctx, store.AppointmentQuery{From: from, To: endOfRange})
	if err != nil {
		return nil, err
	}
	starts := h.deps.Hours.Slots(from, to, h.deps.Now(), booked)
	slots := make([]string, 0, len(starts))
	for _, s := range starts {
		slots = append(slots, h.deps.Hours.Format(s))
	}
	return slots, nil
}

func (h *handlers) startScheduling(ctx context.Context, call *Call) (Outcome, error) {
	var args customerArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	c, err := h.resolveCustomer(ctx, call, args)
	if err != nil {
		return Outcome{}, err
	}
	call.Session.SetCustomerID(c.ID)

	now := h.deps.Now()
	slots, err := h.freeSlots(ctx, now, now.Add(defaultWindow))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Advance: true, Data: map[string]any{
		"customer":        c,
		"available_slots": slots,
		"next_step":       "present_availability",
	}}, nil
}

type finishArgs struct {
	CustomerID   string `json:"customer_id"`
	SelectedSlot string `json:"selected_slot"`
	ServiceType  string `json:"service_type"`
}

func (h *handlers) finishScheduling(ctx context.Context, call *Call) (Outcome, error) {
	var args finishArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	if err := required("selected_slot", args.SelectedSlot); err != nil {
		return Outcome{}, err
	}
	service, err := serviceType("service_type", args.ServiceType)
	if err != nil {
		return Outcome{}, err
	}
	start, err := h.deps.Hours.ParseTime("selected_slot", args.SelectedSlot)
	if err != nil {
		return Outcome{}, err
	}
	if err := h.deps.Hours.checkBookable("selected_slot", start, h.deps.Now()); err != nil {
		return Outcome{}, err
	}
	c, err := h.resolveCustomer(ctx, call, customerArgs{CustomerID: args.CustomerID})
	if err != nil {
		return Outcome{}, err
	}

	appt, err := h.deps.Store.BookAppointment(ctx, &model.Appointment{
		CustomerID:   c.ID,
		CustomerName: c.Name,
		Service:      service,
		StartsAt:     start,
		Duration:     h.deps.Hours.Slot,
		Status:       model.StatusScheduled,
	})
	if err != nil {
		return Outcome{}, err
	}
	h.log.Info("appointment booked",
		zap.String("appointment_id", appt.ID),
		zap.String("customer_id", c.ID),
		zap.Time("starts_at", appt.StartsAt),
	)

	receipt := h.invite(ctx, notify.Booked, appt, c)
	data := h.appointmentView(*appt)
	data["booked"] = true
	data["invite"] = receipt
	data["message"] = fmt.Sprintf("%s is booked for %s.", service, h.deps.Hours.Format(appt.StartsAt))
	return Outcome{Advance: true, Data: data}, nil
}

// invite sends the meeting invite and records the calendar event on the
// appointment. Failures are only logged.
func (h *handlers) invite(ctx context.Context, kind notify.Kind, appt *model.Appointment, c *model.Customer) notify.Receipt {
	if h.deps.Notifier == nil {
		return notify.Receipt{Skipped: true}
	}
	receipt := h.deps.Notifier.Invite(ctx, kind, appt, c)
	if receipt.EventID != "" && receipt.EventID != appt.CalendarEventID {
		_, err := h.deps.Store.UpdateAppointment(ctx, appt.ID, func(a *model.Appointment) error {
			a.CalendarEventID = receipt.EventID
			return nil
		})
		if err != nil {
			h.log.Warn("failed to record calendar event", zap.String("appointment_id", appt.ID), zap.Error(err))
		}
	}
	return receipt
}

type rescheduleArgs struct {
	AppointmentID string `json:"appointment_id"`
	NewDate       string `json:"new_date"`
	NewService    string `json:"new_service"`
}

func (h *handlers) reschedule(ctx context.Context, call *Call) (Outcome, error) {
	var args rescheduleArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	if err := required("appointment_id", args.AppointmentID); err != nil {
		return Outcome{}, err
	}
	if err := required("new_date", args.NewDate); err != nil {
		return Outcome{}, err
	}
	if err := required("new_service", args.NewService); err != nil {
		return Outcome{}, err
	}
	service, err := serviceType("new_service", args.NewService)
	if err != nil {
		return Outcome{}, err
	}
	start, err := h.deps.Hours.ParseTime("new_date", args.NewDate)
	if err != nil {
		return Outcome{}, err
	}
	if err := h.deps.Hours.checkBookable("new_date", start, h.deps.Now()); err != nil {
		return Outcome{}, err
	}

	var oldStart time.Time
	appt, err := h.deps.Store.UpdateAppointment(ctx, args.AppointmentID, func(a *model.Appointment) error {
		if a.Status.Terminal() {
			return fmt.Errorf("%w: appointment %s is %s", store.ErrInvalidTransition, a.ID, a.Status)
		}
		oldStart = a.StartsAt
		a.StartsAt = start
		a.Service = service
		a.Status = model.StatusScheduled
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	var receipt notify.Receipt
	if c, err := h.deps.Store.GetCustomer(ctx, appt.CustomerID); err == nil {
		receipt = h.invite(ctx, notify.Rescheduled, appt, c)
	} else {
		h.log.Warn("rescheduled appointment has no customer", zap.String("appointment_id", appt.ID), zap.Error(err))
	}

	data := h.appointmentView(*appt)
	data["old_date"] = h.deps.Hours.Format(oldStart)
	data["new_date"] = h.deps.Hours.Format(appt.StartsAt)
	data["invite"] = receipt
	return Outcome{Data: data}, nil
}

type statusArgs struct {
	AppointmentID string `json:"appointment_id"`
	NewStatus     string `json:"new_status"`
}

func (h *handlers) updateStatus(ctx context.Context, call *Call) (Outcome, error) {
	var args statusArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	if err := required("appointment_id", args.AppointmentID); err != nil {
		return Outcome{}, err
	}
	next := model.AppointmentStatus(args.NewStatus)
	if !next.Valid() {
		return Outcome{}, &store.ValidationError{Field: "new_status", Reason: fmt.Sprintf("unknown status %q", args.NewStatus)}
	}

	var old model.AppointmentStatus
	appt, err := h.deps.Store.UpdateAppointment(ctx, args.AppointmentID, func(a *model.Appointment) error {
		if !a.Status.CanTransition(next) {
			return fmt.Errorf("%w: appointment %s cannot move from %s to %s", store.ErrInvalidTransition, a.ID, a.Status, next)
		}
		old = a.Status
		a.Status = next
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	data := h.appointmentView(*appt)
	data["old_status"] = old
	data["new_status"] = appt.Status
	return Outcome{Data: data}, nil
}

func serviceType(field, raw string) (string, error) {
	if raw == "" {
		return model.DefaultService, nil
	}
	for _, s := range model.ServiceTypes {
		if s == raw {
			return s, nil
		}
	}
	return "", &store.ValidationError{Field: field, Reason: fmt.Sprintf("must be one of %v", model.ServiceTypes)}
}
