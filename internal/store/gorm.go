package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
)

// GormStore persists records through gorm. Writes are serialized in
// process and run inside a transaction, so conflict checks and inserts
// observe the same state.
type GormStore struct {
	db  *gorm.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewGormStore opens the database and migrates the schema.
func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormDB, err := OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}

	s := &GormStore{db: gormDB, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

func (s *GormStore) migrate() error {
	return s.db.AutoMigrate(&customerRow{}, &appointmentRow{}, &orderRow{}, &leadRow{})
}

type customerRow struct {
	ID        string `gorm:"primaryKey;size:16"`
	Name      string
	Phone     string    `gorm:"index"`
	Email     string    `gorm:"index"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (customerRow) TableName() string { return "customers" }

func (r customerRow) toModel() model.Customer {
	return model.Customer{ID: r.ID, Name: r.Name, Phone: r.Phone, Email: r.Email, CreatedAt: r.CreatedAt.UTC()}
}

func customerRowFrom(c model.Customer) customerRow {
	return customerRow{ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email, CreatedAt: c.CreatedAt}
}

type appointmentRow struct {
	ID              string `gorm:"primaryKey;size:16"`
	CustomerID      string `gorm:"index;size:16"`
	CustomerName    string
	Service         string
	StartsAt        time.Time `gorm:"index"`
	DurationSeconds int64
	Status          string `gorm:"index;size:16"`
	CalendarEventID string
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false"`
}

func (appointmentRow) TableName() string { return "appointments" }

func (r appointmentRow) toModel() model.Appointment {
	return model.Appointment{
		ID:              r.ID,
		CustomerID:      r.CustomerID,
		CustomerName:    r.CustomerName,
		Service:         r.Service,
		StartsAt:        r.StartsAt.UTC(),
		Duration:        time.Duration(r.DurationSeconds) * time.Second,
		Status:          model.AppointmentStatus(r.Status),
		CalendarEventID: r.CalendarEventID,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func appointmentRowFrom(a model.Appointment) appointmentRow {
	return appointmentRow{
		ID:              a.ID,
		CustomerID:      a.CustomerID,
		CustomerName:    a.CustomerName,
		Service:         a.Service,
		StartsAt:        a.StartsAt,
		DurationSeconds: int64(a.Duration / time.Second),
		Status:          string(a.Status),
		CalendarEventID: a.CalendarEventID,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type orderRow struct {
	ID           string `gorm:"primaryKey;size:16"`
	CustomerID   string `gorm:"index;size:16"`
	CustomerName string
	Date         time.Time
	Items        int
	Total        float64
	Status       string
}

func (orderRow) TableName() string { return "orders" }

func (r orderRow) toModel() model.Order {
	return model.Order{
		ID:           r.ID,
		CustomerID:   r.CustomerID,
		CustomerName: r.CustomerName,
		Date:         r.Date.UTC(),
		Items:        r.Items,
		Total:        r.Total,
		Status:       model.OrderStatus(r.Status),
	}
}

func orderRowFrom(o model.Order) orderRow {
	return orderRow{
		ID:           o.ID,
		CustomerID:   o.CustomerID,
		CustomerName: o.CustomerName,
		Date:         o.Date,
		Items:        o.Items,
		Total:        o.Total,
		Status:       string(o.Status),
	}
}

type leadRow struct {
	ID             string `gorm:"primaryKey;size:64"`
	SessionID      string `gorm:"index;size:64"`
	BusinessType   string
	Timeline       string
	PainPoints     []string `gorm:"serializer:json"`
	BusinessScale  string
	Volume         string
	SupportNeeds   []string `gorm:"serializer:json"`
	CoffeeStyle    string
	EquipmentNeeds string
	ContactName    string
	ContactEmail   string
	ContactPhone   string
	ContactRole    string
	Score          int       `gorm:"index"`
	Priority       string    `gorm:"index;size:8"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
}

func (leadRow) TableName() string { return "leads" }

func (r leadRow) toModel() *model.Lead {
	return &model.Lead{
		ID:             r.ID,
		SessionID:      r.SessionID,
		BusinessType:   model.BusinessType(r.BusinessType),
		Timeline:       r.Timeline,
		PainPoints:     r.PainPoints,
		BusinessScale:  r.BusinessScale,
		Volume:         r.Volume,
		SupportNeeds:   r.SupportNeeds,
		CoffeeStyle:    r.CoffeeStyle,
		EquipmentNeeds: r.EquipmentNeeds,
		ContactName:    r.ContactName,
		ContactEmail:   r.ContactEmail,
		ContactPhone:   r.ContactPhone,
		ContactRole:    r.ContactRole,
		Score:          r.Score,
		Priority:       model.Priority(r.Priority),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func leadRowFrom(l *model.Lead) leadRow {
	return leadRow{
		ID:             l.ID,
		SessionID:      l.SessionID,
		BusinessType:   string(l.BusinessType),
		Timeline:       l.Timeline,
		PainPoints:     l.PainPoints,
		BusinessScale:  l.BusinessScale,
		Volume:         l.Volume,
		SupportNeeds:   l.SupportNeeds,
		CoffeeStyle:    l.CoffeeStyle,
		EquipmentNeeds: l.EquipmentNeeds,
		ContactName:    l.ContactName,
		ContactEmail:   l.ContactEmail,
		ContactPhone:   l.ContactPhone,
		ContactRole:    l.ContactRole,
		Score:          l.Score,
		Priority:       string(l.Priority),
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}

func (s *GormStore) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	var row customerRow
	err := s.db.WithContext(ctx).Where("id = ?", NormalizeCustomerID(id)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	c := row.toModel()
	return &c, nil
}

func (s *GormStore) FindCustomer(ctx context.Context, q CustomerQuery) (*model.Customer, error) {
	found, err := s.ListCustomers(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return &found[0], nil
}

func (s *GormStore) ListCustomers(ctx context.Context, q CustomerQuery) ([]model.Customer, error) {
	q = q.normalize()

	tx := s.db.WithContext(ctx).Model(&customerRow{})
	if q.ID != "" {
		tx = tx.Where("id = ?", q.ID)
	}
	if q.Email != "" {
		tx = tx.Where("email = ?", q.Email)
	}
	if q.Phone != "" {
		if partialPhone(q.Phone) {
			tx = tx.Where("phone LIKE ?", "%"+q.Phone)
		} else {
			tx = tx.Where("phone = ?", q.Phone)
		}
	}

	var rows []customerRow
	if err := tx.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	out := make([]model.Customer, 0, len(rows))
	for _, r := range rows {
		c := r.toModel()
		if matchesCustomer(c, q) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *GormStore) CreateCustomer(ctx context.Context, c *model.Customer) (*model.Customer, error) {
	prepared, err := prepareCustomer(c, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing customerRow
		err := tx.Where("phone = ? AND email = ?", prepared.Phone, prepared.Email).Take(&existing).Error
		if err == nil {
			return duplicateCustomer(existing.ID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("duplicate lookup: %w", err)
		}

		var ids []string
		if err := tx.Model(&customerRow{}).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("id lookup: %w", err)
		}
		prepared.ID = nextID(CustomerPrefix, ids)
		row := customerRowFrom(prepared)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create customer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &prepared, nil
}

func (s *GormStore) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	var row appointmentRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	a := row.toModel()
	return &a, nil
}

func (s *GormStore) ListAppointments(ctx context.Context, q AppointmentQuery) ([]model.Appointment, error) {
	q.CustomerID = NormalizeCustomerID(q.CustomerID)

	tx := s.db.WithContext(ctx).Model(&appointmentRow{})
	if q.CustomerID != "" {
		tx = tx.Where("customer_id = ?", q.CustomerID)
	}
	if !q.IncludeCancelled {
		tx = tx.Where("status <> ?", string(model.StatusCancelled))
	}

	var rows []appointmentRow
	if err := tx.Order("starts_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	out := make([]model.Appointment, 0, len(rows))
	for _, r := range rows {
		a := r.toModel()
		if matchesAppointment(a, q) {
			out = append(out, a)
		}
	}
	return out, nil
}

// blocking loads every non-cancelled appointment. Must run inside the
// write transaction.
func blocking(tx *gorm.DB) ([]model.Appointment, error) {
	var rows []appointmentRow
	err := tx.Where("status <> ?", string(model.StatusCancelled)).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("conflict lookup: %w", err)
	}
	out := make([]model.Appointment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *GormStore) BookAppointment(ctx context.Context, a *model.Appointment) (*model.Appointment, error) {
	prepared, err := prepareAppointment(a, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer customerRow
		if err := tx.Where("id = ?", prepared.CustomerID).Take(&customer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrphan
			}
			return fmt.Errorf("customer lookup: %w", err)
		}
		if prepared.CustomerName == "" {
			prepared.CustomerName = customer.Name
		}

		existing, err := blocking(tx)
		if err != nil {
			return err
		}
		if other := conflicting(existing, prepared); other != nil {
			return conflictError(other)
		}

		var ids []string
		if err := tx.Model(&appointmentRow{}).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("id lookup: %w", err)
		}
		prepared.ID = nextID(AppointmentPrefix, ids)
		row := appointmentRowFrom(prepared)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &prepared, nil
}

func (s *GormStore) UpdateAppointment(ctx context.Context, id string, fn func(*model.Appointment) error) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated model.Appointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row appointmentRow
		if err := tx.Where("id = ?", id).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("get appointment: %w", err)
		}
		current := row.toModel()
		updated = current
		if err := fn(&updated); err != nil {
			return err
		}
		updated.ID = current.ID
		updated.CustomerID = current.CustomerID
		updated.StartsAt = updated.StartsAt.UTC()
		updated.UpdatedAt = s.now()
		if !updated.Status.Valid() {
			return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", updated.Status)}
		}

		existing, err := blocking(tx)
		if err != nil {
			return err
		}
		if other := conflicting(existing, updated); other != nil {
			return conflictError(other)
		}
		next := appointmentRowFrom(updated)
		if err := tx.Save(&next).Error; err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *GormStore) ListOrders(ctx context.Context, customerID string) ([]model.Order, error) {
	var rows []orderRow
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", NormalizeCustomerID(customerID)).
		Order("date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]model.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *GormStore) SaveLead(ctx context.Context, l *model.Lead) error {
	if l.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := leadRowFrom(l)
		var existing leadRow
		err := tx.Select("created_at").Where("id = ?", l.ID).Take(&existing).Error
		switch {
		case err == nil:
			row.CreatedAt = existing.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("lead lookup: %w", err)
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = s.now()
		}
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = row.CreatedAt
		}
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("save lead: %w", err)
		}
		return nil
	})
}

func (s *GormStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	var row leadRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return row.toModel(), nil
}

func (s *GormStore) QueryLeads(ctx context.Context, q LeadQuery) ([]model.Lead, error) {
	tx := s.db.WithContext(ctx).Model(&leadRow{})
	if q.SessionID != "" {
		tx = tx.Where("session_id = ?", q.SessionID)
	}
	if q.Priority != "" {
		tx = tx.Where("priority = ?", string(q.Priority))
	}
	if q.MinScore > 0 {
		tx = tx.Where("score >= ?", q.MinScore)
	}
	tx = tx.Order("score DESC").Order("updated_at DESC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []leadRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	out := make([]model.Lead, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toModel())
	}
	return out, nil
}

func (s *GormStore) Load(ctx context.Context, snap *Snapshot) (*IntegrityReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report *IntegrityReport
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := currentSnapshot(tx)
		if err != nil {
			return err
		}
		var clean *Snapshot
		clean, report = checkSnapshot(snap, current, s.now())

		if len(clean.Customers) > 0 {
			rows := make([]customerRow, 0, len(clean.Customers))
			for _, c := range clean.Customers {
				rows = append(rows, customerRowFrom(c))
			}
			if err := tx.CreateInBatches(rows, 200).Error; err != nil {
				return fmt.Errorf("load customers: %w", err)
			}
		}
		if len(clean.Appointments) > 0 {
			rows := make([]appointmentRow, 0, len(clean.Appointments))
			for _, a := range clean.Appointments {
				rows = append(rows, appointmentRowFrom(a))
			}
			if err := tx.CreateInBatches(rows, 200).Error; err != nil {
				return fmt.Errorf("load appointments: %w", err)
			}
		}
		if len(clean.Orders) > 0 {
			rows := make([]orderRow, 0, len(clean.Orders))
			for _, o := range clean.Orders {
				rows = append(rows, orderRowFrom(o))
			}
			if err := tx.CreateInBatches(rows, 200).Error; err != nil {
				return fmt.Errorf("load orders: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func currentSnapshot(tx *gorm.DB) (*Snapshot, error) {
	var customers []customerRow
	if err := tx.Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("read customers: %w", err)
	}
	var appointments []appointmentRow
	if err := tx.Find(&appointments).Error; err != nil {
		return nil, fmt.Errorf("read appointments: %w", err)
	}
	var orderIDs []string
	if err := tx.Model(&orderRow{}).Pluck("id", &orderIDs).Error; err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}

	snap := &Snapshot{}
	for _, r := range customers {
		snap.Customers = append(snap.Customers, r.toModel())
	}
	for _, r := range appointments {
		snap.Appointments = append(snap.Appointments, r.toModel())
	}
	for _, id := range orderIDs {
		snap.Orders = append(snap.Orders, model.Order{ID: id})
	}
	return snap, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
