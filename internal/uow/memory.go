package uow

import (
	"context"
	"sync"

	"github.com/tidewell/storeops/internal/ledger"
	"github.com/tidewell/storeops/internal/reservation"
	"github.com/tidewell/storeops/internal/shop"
)

// MemoryStores groups the in-memory repositories a MemoryManager guards.
type MemoryStores struct {
	Ledger       *ledger.MemoryStore
	Reservations *reservation.MemoryStore
	Shops        *shop.MemoryStore
}

// NewMemoryStores creates empty in-memory repositories.
func NewMemoryStores() MemoryStores {
	return MemoryStores{
		Ledger:       ledger.NewMemoryStore(),
		Reservations: reservation.NewMemoryStore(),
		Shops:        shop.NewMemoryStore(),
	}
}

type memorySnapshot struct {
	ledger       *ledger.MemoryStore
	reservations *reservation.MemoryStore
	shops        *shop.MemoryStore
}

func (s MemoryStores) snapshot() memorySnapshot {
	return memorySnapshot{
		ledger:       s.Ledger.Snapshot(),
		reservations: s.Reservations.Snapshot(),
		shops:        s.Shops.Snapshot(),
	}
}

func (s MemoryStores) restore(snap memorySnapshot) {
	s.Ledger.Restore(snap.ledger)
	s.Reservations.Restore(snap.reservations)
	s.Shops.Restore(snap.shops)
}

// MemoryManager runs one unit of work at a time over in-memory stores and
// rolls back by restoring a snapshot. WithinTx must not be called from
// inside fn.
type MemoryManager struct {
	mu     sync.Mutex
	stores MemoryStores
}

var _ Manager = (*MemoryManager)(nil)

func NewMemoryManager(stores MemoryStores) *MemoryManager {
	return &MemoryManager{stores: stores}
}

// Stores returns the underlying repositories, for seeding and inspection.
func (m *MemoryManager) Stores() MemoryStores { return m.stores }

func (m *MemoryManager) WithinTx(ctx context.Context, fn func(ctx context.Context, u UnitOfWork) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snap := m.stores.snapshot()
	if err := fn(ctx, &memoryUnit{stores: m.stores}); err != nil {
		m.stores.restore(snap)
		return err
	}
	return nil
}

type memoryUnit struct {
	stores MemoryStores
}

func (u *memoryUnit) Reservations() reservation.Repository { return u.stores.Reservations }
func (u *memoryUnit) CreditLedger() ledger.CustomerLedger  { return u.stores.Ledger.CreditLedger() }
func (u *memoryUnit) FiatLedger() ledger.CustomerLedger    { return u.stores.Ledger.FiatLedger() }
func (u *memoryUnit) StoreLedger() ledger.StoreLedger      { return u.stores.Ledger.StoreLedger() }
func (u *memoryUnit) Balances() ledger.Balances            { return u.stores.Ledger.Balances() }
func (u *memoryUnit) Shops() shop.Repository               { return u.stores.Shops }

func (u *memoryUnit) Savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := u.stores.snapshot()
	if err := fn(ctx); err != nil {
		u.stores.restore(snap)
		return err
	}
	return nil
}
