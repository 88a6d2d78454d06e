package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidewell/storeops/internal/dbx"
)

// Table names. Never derived from input.
const (
	tableCreditLedger = "customer_credit_ledger"
	tableFiatLedger   = "customer_fiat_ledger"
)

// Compile-time checks.
var (
	_ CustomerLedger = (*PostgresCustomerLedger)(nil)
	_ StoreLedger    = (*PostgresStoreLedger)(nil)
	_ Balances       = (*PostgresBalances)(nil)
)

// PostgresCustomerLedger implements CustomerLedger over one of the customer
// book tables. q should be a *sql.Tx for LockScope to be meaningful.
type PostgresCustomerLedger struct {
	q     dbx.Querier
	book  Book
	table string
}

// NewPostgresCustomerLedger binds book b to q.
func NewPostgresCustomerLedger(q dbx.Querier, b Book) *PostgresCustomerLedger {
	table := tableCreditLedger
	if b == BookFiat {
		table = tableFiatLedger
	}
	return &PostgresCustomerLedger{q: q, book: b, table: table}
}

func (p *PostgresCustomerLedger) Book() Book { return p.book }

func (p *PostgresCustomerLedger) LockScope(ctx context.Context, scope CustomerScope) error {
	return dbx.AdvisoryXactLock(ctx, p.q, scope.LockKey(p.book))
}

const customerColumns = `id, store_id, customer_id, amount, balance, type, reference_id, note, created_by, created_at`

func (p *PostgresCustomerLedger) Latest(ctx context.Context, scope CustomerScope) (*CustomerEntry, error) {
	row := p.q.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM `+p.table+`
		WHERE store_id = $1 AND customer_id = $2
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, scope.StoreID, scope.CustomerID)

	e, err := scanCustomerEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (p *PostgresCustomerLedger) Insert(ctx context.Context, e *CustomerEntry) error {
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO `+p.table+` (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.StoreID, e.CustomerID, e.Amount, e.Balance, string(e.Type),
		nullString(e.ReferenceID), nullString(e.Note), nullString(e.CreatedBy), e.CreatedAt)
	return err
}

func (p *PostgresCustomerLedger) LatestHold(ctx context.Context, scope CustomerScope, referenceID string) (*CustomerEntry, error) {
	row := p.q.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM `+p.table+`
		WHERE store_id = $1 AND customer_id = $2 AND reference_id = $3 AND type = $4
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, scope.StoreID, scope.CustomerID, referenceID, string(TypeHold))

	e, err := scanCustomerEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (p *PostgresCustomerLedger) Reclassify(ctx context.Context, id string, t EntryType, referenceID string) error {
	res, err := p.q.ExecContext(ctx, `
		UPDATE `+p.table+` SET type = $2, reference_id = $3
		WHERE id = $1 AND type = $4
	`, id, string(t), referenceID, string(TypeHold))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (p *PostgresCustomerLedger) List(ctx context.Context, scope CustomerScope, limit int) ([]*CustomerEntry, error) {
	return p.ListBefore(ctx, scope, "", ClampLimit(limit))
}

func (p *PostgresCustomerLedger) ListBefore(ctx context.Context, scope CustomerScope, afterID string, limit int) ([]*CustomerEntry, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM `+p.table+`
		WHERE store_id = $1 AND customer_id = $2
		  AND ($3 = '' OR (created_at, seq) < (SELECT created_at, seq FROM `+p.table+` WHERE id = $3))
		ORDER BY created_at DESC, seq DESC
		LIMIT $4
	`, scope.StoreID, scope.CustomerID, afterID, fetchLimit(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*CustomerEntry
	for rows.Next() {
		e, err := scanCustomerEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PostgresStoreLedger implements StoreLedger over the store_ledger table.
type PostgresStoreLedger struct {
	q dbx.Querier
}

// NewPostgresStoreLedger binds the store ledger to q.
func NewPostgresStoreLedger(q dbx.Querier) *PostgresStoreLedger {
	return &PostgresStoreLedger{q: q}
}

func (p *PostgresStoreLedger) LockScope(ctx context.Context, storeID string) error {
	return dbx.AdvisoryXactLock(ctx, p.q, StoreLockKey(storeID))
}

const storeColumns = `id, store_id, order_id, amount, fee, platform_fee, currency, type, balance, available_at, description, note, created_by, created_at`

func (p *PostgresStoreLedger) Latest(ctx context.Context, storeID string) (*StoreEntry, error) {
	row := p.q.QueryRowContext(ctx, `
		SELECT `+storeColumns+`
		FROM store_ledger
		WHERE store_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, storeID)

	e, err := scanStoreEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (p *PostgresStoreLedger) Insert(ctx context.Context, e *StoreEntry) error {
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO store_ledger (`+storeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, e.ID, e.StoreID, e.OrderID, e.Amount, e.Fee, e.PlatformFee, e.Currency, string(e.Type),
		e.Balance, e.AvailableAt, nullString(e.Description), nullString(e.Note), nullString(e.CreatedBy), e.CreatedAt)
	return err
}

func (p *PostgresStoreLedger) List(ctx context.Context, storeID string, limit int) ([]*StoreEntry, error) {
	return p.ListBefore(ctx, storeID, "", ClampLimit(limit))
}

func (p *PostgresStoreLedger) ListBefore(ctx context.Context, storeID, afterID string, limit int) ([]*StoreEntry, error) {
	return p.query(ctx, `
		SELECT `+storeColumns+`
		FROM store_ledger
		WHERE store_id = $1
		  AND ($2 = '' OR (created_at, seq) < (SELECT created_at, seq FROM store_ledger WHERE id = $2))
		ORDER BY created_at DESC, seq DESC
		LIMIT $3
	`, storeID, afterID, fetchLimit(limit))
}

func (p *PostgresStoreLedger) ListByOrder(ctx context.Context, storeID, orderID string) ([]*StoreEntry, error) {
	return p.query(ctx, `
		SELECT `+storeColumns+`
		FROM store_ledger
		WHERE store_id = $1 AND order_id = $2
		ORDER BY created_at DESC, seq DESC
	`, storeID, orderID)
}

func (p *PostgresStoreLedger) query(ctx context.Context, query string, args ...any) ([]*StoreEntry, error) {
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*StoreEntry
	for rows.Next() {
		e, err := scanStoreEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PostgresBalances implements Balances over customer_credit_balances.
type PostgresBalances struct {
	q dbx.Querier
}

// NewPostgresBalances binds the balance table to q.
func NewPostgresBalances(q dbx.Querier) *PostgresBalances {
	return &PostgresBalances{q: q}
}

func (p *PostgresBalances) Get(ctx context.Context, scope CustomerScope) (decimal.Decimal, error) {
	var points decimal.Decimal
	err := p.q.QueryRowContext(ctx, `
		SELECT points FROM customer_credit_balances
		WHERE store_id = $1 AND customer_id = $2
		FOR UPDATE
	`, scope.StoreID, scope.CustomerID).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return points, nil
}

func (p *PostgresBalances) Adjust(ctx context.Context, scope CustomerScope, delta decimal.Decimal) (decimal.Decimal, error) {
	var points decimal.Decimal
	err := p.q.QueryRowContext(ctx, `
		INSERT INTO customer_credit_balances (store_id, customer_id, points, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (store_id, customer_id) DO UPDATE SET
			points     = customer_credit_balances.points + EXCLUDED.points,
			updated_at = NOW()
		RETURNING points
	`, scope.StoreID, scope.CustomerID, delta).Scan(&points)
	if err != nil {
		return decimal.Zero, fmt.Errorf("adjust balance: %w", err)
	}
	return points, nil
}

// --- scanning ---

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomerEntry(s scanner) (*CustomerEntry, error) {
	var (
		e                    CustomerEntry
		typ                        string
		ref, note, createdBy sql.NullString
	)
	if err := s.Scan(&e.ID, &e.StoreID, &e.CustomerID, &e.Amount, &e.Balance, &typ,
		&ref, &note, &createdBy, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Type = EntryType(typ)
	e.ReferenceID = ref.String
	e.Note = note.String
	e.CreatedBy = createdBy.String
	return &e, nil
}

func scanStoreEntry(s scanner) (*StoreEntry, error) {
	var (
		e                          StoreEntry
		typ                        string
		description, note, creator sql.NullString
	)
	if err := s.Scan(&e.ID, &e.StoreID, &e.OrderID, &e.Amount, &e.Fee, &e.PlatformFee, &e.Currency,
		&typ, &e.Balance, &e.AvailableAt, &description, &note, &creator, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Type = StoreEntryType(typ)
	e.Description = description.String
	e.Note = note.String
	e.CreatedBy = creator.String
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
