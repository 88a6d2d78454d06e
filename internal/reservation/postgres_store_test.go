package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reservationCols = []string{
	"id", "store_id", "customer_id", "facility_id", "order_id", "already_paid",
	"status", "facility_credit", "starts_at", "ends_at", "staff_name",
	"created_at", "updated_at",
	"f_id", "f_name", "f_default_duration_minutes",
	"c_id", "c_name", "c_email", "c_phone",
}

func TestPostgresStore_GetForUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	mock.ExpectQuery(`FROM reservations r\s+LEFT JOIN facilities f .*WHERE r.id = \$1 AND r.store_id = \$2 FOR UPDATE OF r`).
		WithArgs("res_1", "st_1").
		WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(
			"res_1", "st_1", "cus_1", "fac_1", nil, false,
			"ready", "0", start, end, "Mei",
			start, start,
			"fac_1", "Court 1", 60,
			"cus_1", "Lin", "lin@example.com", nil,
		))

	r, err := NewPostgresStore(db).GetForUpdate(context.Background(), "st_1", "res_1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, r.Status)
	assert.Empty(t, r.OrderID)
	require.NotNil(t, r.EndsAt)
	require.NotNil(t, r.Facility)
	assert.Equal(t, 60, r.Facility.DefaultDurationMinutes)
	require.NotNil(t, r.Customer)
	assert.Empty(t, r.Customer.Phone)
	assert.Equal(t, "60", r.DurationMinutes().String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM reservations r`).
		WithArgs("res_x", "st_1").
		WillReturnRows(sqlmock.NewRows(reservationCols))

	_, err = NewPostgresStore(db).Get(context.Background(), "st_1", "res_x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_UpdateStatusCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE reservations SET status = \$2, updated_at = NOW\(\)\s+WHERE id = \$1 AND status = ANY\(\$3\)`).
		WithArgs("res_1", "completed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.UpdateStatus(ctx, "res_1", StatusCompleted))

	mock.ExpectExec(`UPDATE reservations SET status`).
		WithArgs("res_2", "completed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM reservations WHERE id = \$1`).
		WithArgs("res_2").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("cancelled"))
	assert.ErrorIs(t, store.UpdateStatus(ctx, "res_2", StatusCompleted), ErrInvalidTransition)

	mock.ExpectExec(`UPDATE reservations SET status`).
		WithArgs("res_3", "completed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM reservations`).
		WithArgs("res_3").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	assert.ErrorIs(t, store.UpdateStatus(ctx, "res_3", StatusCompleted), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetFacilityCreditMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE reservations SET facility_credit = \$2`).
		WithArgs("res_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgresStore(db).SetFacilityCredit(context.Background(), "res_1", decimal.NewFromInt(2))
	assert.ErrorIs(t, err, ErrNotFound)
}
