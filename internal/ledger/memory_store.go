package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps all three books and the point balances in memory, for
// development mode and tests. Entries are kept in append order, which is
// also creation-time order because Writer never stamps backwards.
//
// MemoryStore has no transactions of its own; uow.MemoryManager serializes
// transactions and uses Snapshot/Restore for rollback.
type MemoryStore struct {
	mu       sync.RWMutex
	credit   []*CustomerEntry
	fiat     []*CustomerEntry
	store    []*StoreEntry
	balances map[CustomerScope]decimal.Decimal
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[CustomerScope]decimal.Decimal)}
}

// CreditLedger returns the credit book view.
func (m *MemoryStore) CreditLedger() CustomerLedger { return &memoryCustomerLedger{m: m, book: BookCredit} }

// FiatLedger returns the fiat book view.
func (m *MemoryStore) FiatLedger() CustomerLedger { return &memoryCustomerLedger{m: m, book: BookFiat} }

// StoreLedger returns the store revenue ledger view.
func (m *MemoryStore) StoreLedger() StoreLedger { return &memoryStoreLedger{m: m} }

// Balances returns the point balance view.
func (m *MemoryStore) Balances() Balances { return &memoryBalances{m: m} }

// Snapshot returns a deep copy of the store.
func (m *MemoryStore) Snapshot() *MemoryStore {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp := &MemoryStore{
		credit:   cloneCustomer(m.credit),
		fiat:     cloneCustomer(m.fiat),
		store:    make([]*StoreEntry, len(m.store)),
		balances: make(map[CustomerScope]decimal.Decimal, len(m.balances)),
	}
	for i, e := range m.store {
		c := *e
		cp.store[i] = &c
	}
	for k, v := range m.balances {
		cp.balances[k] = v
	}
	return cp
}

// Restore replaces the store's contents with those of snap.
func (m *MemoryStore) Restore(snap *MemoryStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit = snap.credit
	m.fiat = snap.fiat
	m.store = snap.store
	m.balances = snap.balances
}

func cloneCustomer(in []*CustomerEntry) []*CustomerEntry {
	out := make([]*CustomerEntry, len(in))
	for i, e := range in {
		c := *e
		out[i] = &c
	}
	return out
}

func (m *MemoryStore) book(b Book) *[]*CustomerEntry {
	if b == BookFiat {
		return &m.fiat
	}
	return &m.credit
}

// --- customer books ---

type memoryCustomerLedger struct {
	m    *MemoryStore
	book Book
}

func (l *memoryCustomerLedger) Book() Book { return l.book }

func (l *memoryCustomerLedger) LockScope(ctx context.Context, scope CustomerScope) error {
	return nil
}

func (l *memoryCustomerLedger) Latest(ctx context.Context, scope CustomerScope) (*CustomerEntry, error) {
	l.m.mu.RLock()
	defer l.m.mu.RUnlock()

	entries := *l.m.book(l.book)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Scope() == scope {
			c := *entries[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (l *memoryCustomerLedger) Insert(ctx context.Context, e *CustomerEntry) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()

	entries := l.m.book(l.book)
	for _, existing := range *entries {
		if existing.ID == e.ID {
			return ErrInvalidEntry
		}
	}
	c := *e
	*entries = append(*entries, &c)
	return nil
}

func (l *memoryCustomerLedger) LatestHold(ctx context.Context, scope CustomerScope, referenceID string) (*CustomerEntry, error) {
	l.m.mu.RLock()
	defer l.m.mu.RUnlock()

	entries := *l.m.book(l.book)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Scope() == scope && e.ReferenceID == referenceID && e.Type == TypeHold {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (l *memoryCustomerLedger) Reclassify(ctx context.Context, id string, t EntryType, referenceID string) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()

	for _, e := range *l.m.book(l.book) {
		if e.ID == id && e.Type == TypeHold {
			e.Type = t
			e.ReferenceID = referenceID
			return nil
		}
	}
	return ErrEntryNotFound
}

func (l *memoryCustomerLedger) List(ctx context.Context, scope CustomerScope, limit int) ([]*CustomerEntry, error) {
	return l.ListBefore(ctx, scope, "", ClampLimit(limit))
}

func (l *memoryCustomerLedger) ListBefore(ctx context.Context, scope CustomerScope, afterID string, limit int) ([]*CustomerEntry, error) {
	l.m.mu.RLock()
	defer l.m.mu.RUnlock()

	limit = fetchLimit(limit)
	entries := *l.m.book(l.book)
	out := make([]*CustomerEntry, 0)
	seeking := afterID != ""
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		if entries[i].Scope() != scope {
			continue
		}
		if seeking {
			seeking = entries[i].ID != afterID
			continue
		}
		c := *entries[i]
		out = append(out, &c)
	}
	return out, nil
}

// --- store ledger ---

type memoryStoreLedger struct {
	m *MemoryStore
}

func (l *memoryStoreLedger) LockScope(ctx context.Context, storeID string) error {
	return nil
}

func (l *memoryStoreLedger) Latest(ctx context.Context, storeID string) (*StoreEntry, error) {
	l.m.mu.RLock()
	defer l.m.mu.RUnlock()

	for i := len(l.m.store) - 1; i >= 0; i-- {
		if l.m.store[i].StoreID == storeID {
			c := *l.m.store[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (l *memoryStoreLedger) Insert(ctx context.Context, e *StoreEntry) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()

	for _, existing := range l.m.store {
		if existing.ID == e.ID {
			return ErrInvalidEntry
		}
	}
	c := *e
	l.m.store = append(l.m.store, &c)
	return nil
}

func (l *memoryStoreLedger) List(ctx context.Context, storeID string, limit int) ([]*StoreEntry, error) {
	return l.ListBefore(ctx, storeID, "", ClampLimit(limit))
}

func (l *memoryStoreLedger) ListBefore(ctx context.Context, storeID, afterID string, limit int) ([]*StoreEntry, error) {
	l.m.mu.RLock()
	defer l.m.mu.RUnlock()

	limit = fetchLimit(limit)
	out := make([]*StoreEntry, 0)
	seeking := afterID != ""
	for i := len(l.m.store) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.m.store[i]
		if e.StoreID != storeID {
			continue
		}
		if seeking {
			seeking = e.ID != afterID
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (l *memoryStoreLedger) ListByOrder(ctx context.Context, storeID, orderID string) ([]*StoreEntry, error) {
	l.m.mu.RLock()
	defer l.m.mu.RUnlock()

	out := make([]*StoreEntry, 0)
	for i := len(l.m.store) - 1; i >= 0; i-- {
		e := l.m.store[i]
		if e.StoreID == storeID && e.OrderID == orderID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// --- balances ---

type memoryBalances struct {
	m *MemoryStore
}

func (b *memoryBalances) Get(ctx context.Context, scope CustomerScope) (decimal.Decimal, error) {
	b.m.mu.RLock()
	defer b.m.mu.RUnlock()
	return b.m.balances[scope], nil
}

func (b *memoryBalances) Adjust(ctx context.Context, scope CustomerScope, delta decimal.Decimal) (decimal.Decimal, error) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()

	next := b.m.balances[scope].Add(delta)
	b.m.balances[scope] = next
	return next, nil
}
