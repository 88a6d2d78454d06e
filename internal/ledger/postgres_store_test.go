package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var customerCols = []string{"id", "store_id", "customer_id", "amount", "balance", "type", "reference_id", "note", "created_by", "created_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestPostgresCustomerLedger_AppendThroughWriter(t *testing.T) {
	db, mock := newMock(t)
	l := NewPostgresCustomerLedger(db, BookCredit)
	prevAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("credit:st_1:cus_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM customer_credit_ledger\s+WHERE store_id = \$1 AND customer_id = \$2\s+ORDER BY created_at DESC, seq DESC`).
		WithArgs("st_1", "cus_1").
		WillReturnRows(sqlmock.NewRows(customerCols).
			AddRow("cle_prev", "st_1", "cus_1", "200.000000", "200.000000", "TOPUP", nil, nil, nil, prevAt))
	mock.ExpectExec(`INSERT INTO customer_credit_ledger`).
		WithArgs(sqlmock.AnyArg(), "st_1", "cus_1", sqlmock.AnyArg(), sqlmock.AnyArg(), "SPEND",
			"ord_1", nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := &CustomerEntry{StoreID: "st_1", CustomerID: "cus_1", Amount: dec("-75"), Type: TypeSpend, ReferenceID: "ord_1"}
	require.NoError(t, NewWriter().AppendCustomer(context.Background(), l, e))
	assertDec(t, "125", e.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCustomerLedger_LatestEmpty(t *testing.T) {
	db, mock := newMock(t)
	l := NewPostgresCustomerLedger(db, BookFiat)

	mock.ExpectQuery(`FROM customer_fiat_ledger`).
		WithArgs("st_1", "cus_1").
		WillReturnRows(sqlmock.NewRows(customerCols))

	e, err := l.Latest(context.Background(), scopeA)
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCustomerLedger_LatestHoldAndReclassify(t *testing.T) {
	db, mock := newMock(t)
	l := NewPostgresCustomerLedger(db, BookFiat)
	ctx := context.Background()

	mock.ExpectQuery(`FROM customer_fiat_ledger\s+WHERE store_id = \$1 AND customer_id = \$2 AND reference_id = \$3 AND type = \$4`).
		WithArgs("st_1", "cus_1", "ord_7", "HOLD").
		WillReturnRows(sqlmock.NewRows(customerCols).
			AddRow("fle_1", "st_1", "cus_1", "-300", "-300", "HOLD", "ord_7", nil, "staff", time.Now()))
	mock.ExpectExec(`UPDATE customer_fiat_ledger SET type = \$2, reference_id = \$3\s+WHERE id = \$1 AND type = \$4`).
		WithArgs("fle_1", "CAPTURE", "ord_7", "HOLD").
		WillReturnResult(sqlmock.NewResult(0, 1))

	hold, err := FindHold(ctx, l, scopeA, "ord_7")
	require.NoError(t, err)
	assert.Equal(t, "staff", hold.CreatedBy)
	require.NoError(t, SettleHold(ctx, l, hold, "ord_7"))
	assert.Equal(t, TypeCapture, hold.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCustomerLedger_ReclassifyNoRows(t *testing.T) {
	db, mock := newMock(t)
	l := NewPostgresCustomerLedger(db, BookCredit)

	mock.ExpectExec(`UPDATE customer_credit_ledger`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := l.Reclassify(context.Background(), "cle_1", TypeSpend, "ord_1")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestPostgresStoreLedger_ListClampsLimit(t *testing.T) {
	db, mock := newMock(t)
	l := NewPostgresStoreLedger(db)
	cols := []string{"id", "store_id", "order_id", "amount", "fee", "platform_fee", "currency", "type", "balance", "available_at", "description", "note", "created_by", "created_at"}
	now := time.Now()

	mock.ExpectQuery(`FROM store_ledger\s+WHERE store_id = \$1\s+AND \(\$2 = '' OR .*\)\s+ORDER BY created_at DESC, seq DESC\s+LIMIT \$3`).
		WithArgs("st_1", "", MaxListLimit).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("sle_2", "st_1", "ord_2", "10", "0", "0", "twd", "REVENUE", "30", now, nil, nil, nil, now).
			AddRow("sle_1", "st_1", "ord_1", "20", "0", "0", "twd", "CREDIT_USAGE", "20", now, "credit", nil, nil, now))

	entries, err := l.List(context.Background(), "st_1", 10_000)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, StoreCreditUsage, entries[1].Type)
	assert.Equal(t, "credit", entries[1].Description)
	assert.NoError(t, VerifyStoreChain(Chronological(entries)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBalances(t *testing.T) {
	db, mock := newMock(t)
	b := NewPostgresBalances(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT points FROM customer_credit_balances\s+WHERE store_id = \$1 AND customer_id = \$2\s+FOR UPDATE`).
		WithArgs("st_1", "cus_1").
		WillReturnRows(sqlmock.NewRows([]string{"points"}))
	mock.ExpectQuery(`INSERT INTO customer_credit_balances`).
		WithArgs("st_1", "cus_1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow("-12.500000"))

	got, err := b.Get(ctx, scopeA)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	next, err := b.Adjust(ctx, scopeA, dec("-12.5"))
	require.NoError(t, err)
	assertDec(t, "-12.5", next)
	assert.NoError(t, mock.ExpectationsWereMet())
}
