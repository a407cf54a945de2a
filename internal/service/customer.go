package service

import (
	"context"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/store"
)

// CustomerService reads customer records.
type CustomerService struct {
	store store.Store
}

// NewCustomerService creates a customer service.
func NewCustomerService(st store.Store) *CustomerService {
	return &CustomerService{store: st}
}

// Get returns a customer by ID. IDs are normalized, so "7" finds CUST0007.
func (s *CustomerService) Get(ctx context.Context, id string) (*model.Customer, error) {
	return s.store.GetCustomer(ctx, store.NormalizeCustomerID(id))
}

// Appointments lists a customer's appointments, cancelled ones included.
func (s *CustomerService) Appointments(ctx context.Context, id string) ([]model.Appointment, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	appts, err := s.store.ListAppointments(ctx, store.AppointmentQuery{CustomerID: c.ID, IncludeCancelled: true})
	if err != nil {
		return nil, err
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	return appts, nil
}

// Orders lists a customer's orders.
func (s *CustomerService) Orders(ctx context.Context, id string) ([]model.Order, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	orders, err := s.store.ListOrders(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}
