package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/tidewell/storeops/internal/dbx"
)

// PostgresStore implements Repository against the reservations table.
type PostgresStore struct {
	q dbx.Querier
}

var _ Repository = (*PostgresStore)(nil)

// NewPostgresStore binds the repository to q (a *sql.DB or *sql.Tx).
func NewPostgresStore(q dbx.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

const selectReservation = `
	SELECT r.id, r.store_id, r.customer_id, r.facility_id, r.order_id, r.already_paid,
	       r.status, r.facility_credit, r.starts_at, r.ends_at, r.staff_name,
	       r.created_at, r.updated_at,
	       f.id, f.name, f.default_duration_minutes,
	       c.id, c.name, c.email, c.phone
	FROM reservations r
	LEFT JOIN facilities f ON f.id = r.facility_id
	LEFT JOIN customers c ON c.id = r.customer_id
	WHERE r.id = $1 AND r.store_id = $2`

func (p *PostgresStore) Get(ctx context.Context, storeID, id string) (*Reservation, error) {
	return p.get(ctx, selectReservation, id, storeID)
}

func (p *PostgresStore) GetForUpdate(ctx context.Context, storeID, id string) (*Reservation, error) {
	return p.get(ctx, selectReservation+` FOR UPDATE OF r`, id, storeID)
}

func (p *PostgresStore) get(ctx context.Context, query, id, storeID string) (*Reservation, error) {
	var (
		r                               Reservation
		status                          string
		customerID, facilityID, orderID sql.NullString
		staff                           sql.NullString
		endsAt                          sql.NullTime
		fID, fName                      sql.NullString
		fDuration                       sql.NullInt64
		cID, cName, cEmail, cPhone      sql.NullString
	)
	err := p.q.QueryRowContext(ctx, query, id, storeID).Scan(
		&r.ID, &r.StoreID, &customerID, &facilityID, &orderID, &r.AlreadyPaid,
		&status, &r.FacilityCredit, &r.StartsAt, &endsAt, &staff,
		&r.CreatedAt, &r.UpdatedAt,
		&fID, &fName, &fDuration,
		&cID, &cName, &cEmail, &cPhone,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation %s: %w", id, err)
	}

	r.Status = Status(status)
	r.CustomerID = customerID.String
	r.FacilityID = facilityID.String
	r.OrderID = orderID.String
	r.StaffName = staff.String
	if endsAt.Valid {
		t := endsAt.Time
		r.EndsAt = &t
	}
	if fID.Valid {
		r.Facility = &Facility{ID: fID.String, Name: fName.String, DefaultDurationMinutes: int(fDuration.Int64)}
	}
	if cID.Valid {
		r.Customer = &Customer{ID: cID.String, Name: cName.String, Email: cEmail.String, Phone: cPhone.String}
	}
	return &r, nil
}

func (p *PostgresStore) Create(ctx context.Context, r *Reservation) error {
	var endsAt sql.NullTime
	if r.EndsAt != nil {
		endsAt = sql.NullTime{Time: *r.EndsAt, Valid: true}
	}
	err := p.q.QueryRowContext(ctx, `
		INSERT INTO reservations (id, store_id, customer_id, facility_id, order_id, already_paid,
			status, facility_credit, starts_at, ends_at, staff_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at
	`, r.ID, r.StoreID, nullString(r.CustomerID), nullString(r.FacilityID), nullString(r.OrderID),
		r.AlreadyPaid, string(r.Status), r.FacilityCredit, r.StartsAt, endsAt, nullString(r.StaffName),
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (p *PostgresStore) SetFacilityCredit(ctx context.Context, id string, credit decimal.Decimal) error {
	return p.exec(ctx, `UPDATE reservations SET facility_credit = $2, updated_at = NOW() WHERE id = $1`, id, credit)
}

func (p *PostgresStore) SetOrder(ctx context.Context, id, orderID string) error {
	return p.exec(ctx, `UPDATE reservations SET order_id = $2, updated_at = NOW() WHERE id = $1`, id, orderID)
}

// Rewriting Completed onto a completed row is an idempotent no-op.
var completableFrom = []string{string(StatusPending), string(StatusReady), string(StatusCheckedIn), string(StatusCompleted)}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	if status != StatusCompleted {
		return p.exec(ctx, `UPDATE reservations SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	}

	res, err := p.q.ExecContext(ctx, `
		UPDATE reservations SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, string(status), pq.Array(completableFrom))
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var current string
	err = p.q.QueryRowContext(ctx, `SELECT status FROM reservations WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

func (p *PostgresStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := p.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
