package reservation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps reservations, facilities and customers in memory.
type MemoryStore struct {
	mu           sync.RWMutex
	reservations map[string]*Reservation
	facilities   map[string]*Facility
	customers    map[string]*Customer
}

var _ Repository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reservations: make(map[string]*Reservation),
		facilities:   make(map[string]*Facility),
		customers:    make(map[string]*Customer),
	}
}

// PutFacility registers a facility.
func (m *MemoryStore) PutFacility(f *Facility) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *f
	m.facilities[f.ID] = &c
}

// PutCustomer registers a customer.
func (m *MemoryStore) PutCustomer(c *Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.customers[c.ID] = &cp
}

// Snapshot returns a deep copy for rollback.
func (m *MemoryStore) Snapshot() *MemoryStore {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := NewMemoryStore()
	for id, r := range m.reservations {
		c := *r
		snap.reservations[id] = &c
	}
	for id, f := range m.facilities {
		snap.facilities[id] = f
	}
	for id, c := range m.customers {
		snap.customers[id] = c
	}
	return snap
}

// Restore replaces the contents with snap.
func (m *MemoryStore) Restore(snap *MemoryStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations = snap.reservations
	m.facilities = snap.facilities
	m.customers = snap.customers
}

func (m *MemoryStore) Get(ctx context.Context, storeID, id string) (*Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reservations[id]
	if !ok || r.StoreID != storeID {
		return nil, ErrNotFound
	}
	out := *r
	if f, ok := m.facilities[r.FacilityID]; ok {
		fc := *f
		out.Facility = &fc
	}
	if c, ok := m.customers[r.CustomerID]; ok {
		cc := *c
		out.Customer = &cc
	}
	return &out, nil
}

// GetForUpdate is Get; the memory unit of work already serializes.
func (m *MemoryStore) GetForUpdate(ctx context.Context, storeID, id string) (*Reservation, error) {
	return m.Get(ctx, storeID, id)
}

func (m *MemoryStore) Create(ctx context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reservations[r.ID]; exists {
		return fmt.Errorf("reservation %s already exists", r.ID)
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	c := *r
	c.Facility, c.Customer, c.Order = nil, nil, nil
	m.reservations[r.ID] = &c
	return nil
}

func (m *MemoryStore) SetFacilityCredit(ctx context.Context, id string, credit decimal.Decimal) error {
	return m.update(id, func(r *Reservation) error {
		r.FacilityCredit = credit
		return nil
	})
}

func (m *MemoryStore) SetOrder(ctx context.Context, id, orderID string) error {
	return m.update(id, func(r *Reservation) error {
		r.OrderID = orderID
		return nil
	})
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	return m.update(id, func(r *Reservation) error {
		if status == StatusCompleted && r.Status != StatusCompleted && !r.Status.CanComplete() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, status)
		}
		r.Status = status
		return nil
	})
}

func (m *MemoryStore) update(id string, fn func(*Reservation) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(r); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}
