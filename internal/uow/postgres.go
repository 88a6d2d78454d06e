package uow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tidewell/storeops/internal/dbx"
	"github.com/tidewell/storeops/internal/ledger"
	"github.com/tidewell/storeops/internal/logging"
	"github.com/tidewell/storeops/internal/reservation"
	"github.com/tidewell/storeops/internal/retry"
	"github.com/tidewell/storeops/internal/shop"
)

// Default retry settings for serialization failures and deadlocks.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 20 * time.Millisecond
)

// PostgresManager runs units of work in READ COMMITTED transactions. Ledger
// scopes are serialized with transaction-scoped advisory locks; whole
// transactions are re-run on serialization failure or deadlock.
type PostgresManager struct {
	db    *sql.DB
	retry retry.Policy
}

var _ Manager = (*PostgresManager)(nil)

// NewPostgresManager creates a manager over db.
func NewPostgresManager(db *sql.DB) *PostgresManager {
	return &PostgresManager{
		db: db,
		retry: retry.Policy{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   DefaultRetryDelay,
			Retryable:   dbx.IsRetryable,
		},
	}
}

// WithRetry overrides the attempt budget and base backoff.
func (m *PostgresManager) WithRetry(maxAttempts int, baseDelay time.Duration) *PostgresManager {
	m.retry.MaxAttempts = maxAttempts
	m.retry.BaseDelay = baseDelay
	return m
}

func (m *PostgresManager) WithinTx(ctx context.Context, fn func(ctx context.Context, u UnitOfWork) error) error {
	return retry.Do(ctx, m.retry, func(attempt int) error {
		if attempt > 0 {
			logging.L(ctx).Warn("retrying transaction", "attempt", attempt+1)
		}
		return m.run(ctx, fn)
	})
}

func (m *PostgresManager) run(ctx context.Context, fn func(ctx context.Context, u UnitOfWork) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, newPostgresUnit(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.L(ctx).Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type postgresUnit struct {
	tx         *sql.Tx
	savepoints int

	reservations *reservation.PostgresStore
	credit       *ledger.PostgresCustomerLedger
	fiat         *ledger.PostgresCustomerLedger
	store        *ledger.PostgresStoreLedger
	balances     *ledger.PostgresBalances
	shops        *shop.PostgresStore
}

func newPostgresUnit(tx *sql.Tx) *postgresUnit {
	return &postgresUnit{
		tx:           tx,
		reservations: reservation.NewPostgresStore(tx),
		credit:       ledger.NewPostgresCustomerLedger(tx, ledger.BookCredit),
		fiat:         ledger.NewPostgresCustomerLedger(tx, ledger.BookFiat),
		store:        ledger.NewPostgresStoreLedger(tx),
		balances:     ledger.NewPostgresBalances(tx),
		shops:        shop.NewPostgresStore(tx),
	}
}

func (u *postgresUnit) Reservations() reservation.Repository { return u.reservations }
func (u *postgresUnit) CreditLedger() ledger.CustomerLedger  { return u.credit }
func (u *postgresUnit) FiatLedger() ledger.CustomerLedger    { return u.fiat }
func (u *postgresUnit) StoreLedger() ledger.StoreLedger      { return u.store }
func (u *postgresUnit) Balances() ledger.Balances            { return u.balances }
func (u *postgresUnit) Shops() shop.Repository               { return u.shops }

func (u *postgresUnit) Savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	u.savepoints++
	name := fmt.Sprintf("sp_%d", u.savepoints)

	if _, err := u.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if err := fn(ctx); err != nil {
		if _, rbErr := u.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("rollback to savepoint: %v (after %w)", rbErr, err)
		}
		return err
	}
	if _, err := u.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
