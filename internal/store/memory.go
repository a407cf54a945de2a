package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
)

// MemoryStore keeps all records in process memory.
type MemoryStore struct {
	mu           sync.RWMutex
	customers    map[string]model.Customer
	appointments map[string]model.Appointment
	orders       map[string]model.Order
	leads        map[string]model.Lead
	now          func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers:    make(map[string]model.Customer),
		appointments: make(map[string]model.Appointment),
		orders:       make(map[string]model.Order),
		leads:        make(map[string]model.Lead),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[NormalizeCustomerID(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) FindCustomer(ctx context.Context, q CustomerQuery) (*model.Customer, error) {
	found, err := s.ListCustomers(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return &found[0], nil
}

func (s *MemoryStore) ListCustomers(ctx context.Context, q CustomerQuery) ([]model.Customer, error) {
	q = q.normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Customer
	for _, c := range s.customers {
		if matchesCustomer(c, q) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateCustomer(ctx context.Context, c *model.Customer) (*model.Customer, error) {
	prepared, err := prepareCustomer(c, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.customers))
	for id, existing := range s.customers {
		if existing.Phone == prepared.Phone && existing.Email == prepared.Email {
			return nil, duplicateCustomer(existing.ID)
		}
		ids = append(ids, id)
	}
	prepared.ID = nextID(CustomerPrefix, ids)
	s.customers[prepared.ID] = prepared
	return &prepared, nil
}

func (s *MemoryStore) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) ListAppointments(ctx context.Context, q AppointmentQuery) ([]model.Appointment, error) {
	q.CustomerID = NormalizeCustomerID(q.CustomerID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Appointment
	for _, a := range s.appointments {
		if matchesAppointment(a, q) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (s *MemoryStore) BookAppointment(ctx context.Context, a *model.Appointment) (*model.Appointment, error) {
	prepared, err := prepareAppointment(a, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[prepared.CustomerID]
	if !ok {
		return nil, ErrOrphan
	}
	if prepared.CustomerName == "" {
		prepared.CustomerName = c.Name
	}
	if other := conflicting(s.appointmentList(), prepared); other != nil {
		return nil, conflictError(other)
	}

	ids := make([]string, 0, len(s.appointments))
	for id := range s.appointments {
		ids = append(ids, id)
	}
	prepared.ID = nextID(AppointmentPrefix, ids)
	s.appointments[prepared.ID] = prepared
	return &prepared, nil
}

func (s *MemoryStore) UpdateAppointment(ctx context.Context, id string, fn func(*model.Appointment) error) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	updated := current
	if err := fn(&updated); err != nil {
		return nil, err
	}
	updated.ID = current.ID
	updated.CustomerID = current.CustomerID
	updated.StartsAt = updated.StartsAt.UTC()
	updated.UpdatedAt = s.now()
	if !updated.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", updated.Status)}
	}
	if other := conflicting(s.appointmentList(), updated); other != nil {
		return nil, conflictError(other)
	}
	s.appointments[id] = updated
	return &updated, nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, customerID string) ([]model.Order, error) {
	customerID = NormalizeCustomerID(customerID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) SaveLead(ctx context.Context, l *model.Lead) error {
	if l.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := l.Clone()
	if existing, ok := s.leads[l.ID]; ok {
		saved.CreatedAt = existing.CreatedAt
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = s.now()
	}
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = saved.CreatedAt
	}
	s.leads[l.ID] = *saved
	return nil
}

func (s *MemoryStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return l.Clone(), nil
}

func (s *MemoryStore) QueryLeads(ctx context.Context, q LeadQuery) ([]model.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Lead
	for _, l := range s.leads {
		if matchesLead(l, q) {
			out = append(out, *l.Clone())
		}
	}
	return sortLeads(out, q.Limit), nil
}

func (s *MemoryStore) Load(ctx context.Context, snap *Snapshot) (*IntegrityReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := &Snapshot{Appointments: s.appointmentList()}
	for _, c := range s.customers {
		current.Customers = append(current.Customers, c)
	}
	for _, o := range s.orders {
		current.Orders = append(current.Orders, o)
	}

	clean, report := checkSnapshot(snap, current, s.now())
	for _, c := range clean.Customers {
		s.customers[c.ID] = c
	}
	for _, a := range clean.Appointments {
		s.appointments[a.ID] = a
	}
	for _, o := range clean.Orders {
		s.orders[o.ID] = o
	}
	return report, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// appointmentList must be called with s.mu held.
func (s *MemoryStore) appointmentList() []model.Appointment {
	out := make([]model.Appointment, 0, len(s.appointments))
	for _, a := range s.appointments {
		out = append(out, a)
	}
	return out
}

func sortAppointments(list []model.Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartsAt.Equal(list[j].StartsAt) {
			return list[i].StartsAt.Before(list[j].StartsAt)
		}
		return list[i].ID < list[j].ID
	})
}

func duplicateCustomer(id string) error {
	return fmt.Errorf("%w: customer %s already has this phone and email", ErrDuplicate, id)
}
