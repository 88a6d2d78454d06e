// Package uow provides the unit of work the settlement engine runs in: one
// transaction exposing every repository it writes, passed explicitly down
// through the strategies instead of living in ambient state.
package uow

import (
	"context"

	"github.com/tidewell/storeops/internal/ledger"
	"github.com/tidewell/storeops/internal/reservation"
	"github.com/tidewell/storeops/internal/shop"
)

// UnitOfWork exposes repositories bound to one transaction.
type UnitOfWork interface {
	Reservations() reservation.Repository
	CreditLedger() ledger.CustomerLedger
	FiatLedger() ledger.CustomerLedger
	StoreLedger() ledger.StoreLedger
	Balances() ledger.Balances
	Shops() shop.Repository

	// Savepoint runs fn as a nested atomic section: when fn fails, its
	// writes are undone and the enclosing transaction stays usable.
	Savepoint(ctx context.Context, fn func(ctx context.Context) error) error
}

// Manager runs functions inside a transaction. fn's writes are committed
// when it returns nil and rolled back otherwise. fn may be called more than
// once when the backend retries transient failures.
type Manager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, u UnitOfWork) error) error
}
