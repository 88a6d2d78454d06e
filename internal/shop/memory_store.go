package shop

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps stores, methods and orders in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	stores   map[string]*Store
	shipping map[string][]*ShippingMethod // by store
	payment  map[string][]*PaymentMethod  // by store
	orders   map[string]*Order
}

var _ Repository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stores:   make(map[string]*Store),
		shipping: make(map[string][]*ShippingMethod),
		payment:  make(map[string][]*PaymentMethod),
		orders:   make(map[string]*Order),
	}
}

// PutStore registers or replaces a store.
func (m *MemoryStore) PutStore(s *Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.stores[s.ID] = &c
}

// AddShippingMethod registers a shipping method.
func (m *MemoryStore) AddShippingMethod(sm *ShippingMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *sm
	m.shipping[sm.StoreID] = append(m.shipping[sm.StoreID], &c)
}

// AddPaymentMethod registers a payment method.
func (m *MemoryStore) AddPaymentMethod(pm *PaymentMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *pm
	m.payment[pm.StoreID] = append(m.payment[pm.StoreID], &c)
}

// PutOrder registers an existing order.
func (m *MemoryStore) PutOrder(o *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *o
	m.orders[o.ID] = &c
}

// Snapshot returns a copy for rollback. Stores and methods are treated as
// immutable; only the order set is copied.
func (m *MemoryStore) Snapshot() *MemoryStore {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &MemoryStore{
		stores:   m.stores,
		shipping: m.shipping,
		payment:  m.payment,
		orders:   make(map[string]*Order, len(m.orders)),
	}
	for id, o := range m.orders {
		snap.orders[id] = o
	}
	return snap
}

// Restore replaces the order set with snap's.
func (m *MemoryStore) Restore(snap *MemoryStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = snap.orders
}

// Orders returns every order of storeID.
func (m *MemoryStore) Orders(storeID string) []*Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Order
	for _, o := range m.orders {
		if o.StoreID == storeID {
			c := *o
			out = append(out, &c)
		}
	}
	return out
}

func (m *MemoryStore) GetStore(ctx context.Context, storeID string) (*Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stores[storeID]
	if !ok {
		return nil, ErrStoreNotFound
	}
	c := *s
	return &c, nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, storeID, orderID string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderID]
	if !ok || o.StoreID != storeID {
		return nil, ErrOrderNotFound
	}
	c := *o
	return &c, nil
}

func (m *MemoryStore) ShippingMethod(ctx context.Context, storeID, identifier string) (*ShippingMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sm := range m.shipping[storeID] {
		if sm.Identifier == identifier {
			c := *sm
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) DefaultShippingMethod(ctx context.Context, storeID string) (*ShippingMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sm := range m.shipping[storeID] {
		if sm.IsDefault {
			c := *sm
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) PaymentMethod(ctx context.Context, storeID, identifier string) (*PaymentMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, pm := range m.payment[storeID] {
		if pm.Identifier == identifier {
			c := *pm
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	c := *o
	m.orders[o.ID] = &c
	return nil
}
