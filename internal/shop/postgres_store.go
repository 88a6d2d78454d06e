package shop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tidewell/storeops/internal/dbx"
)

// PostgresStore implements Repository.
type PostgresStore struct {
	q dbx.Querier
}

var _ Repository = (*PostgresStore)(nil)

func NewPostgresStore(q dbx.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

func (p *PostgresStore) GetStore(ctx context.Context, storeID string) (*Store, error) {
	var (
		s        Store
		currency sql.NullString
	)
	err := p.q.QueryRowContext(ctx, `
		SELECT id, name, credit_exchange_rate, credit_service_exchange_rate,
		       default_currency, use_customer_credit
		FROM stores WHERE id = $1
	`, storeID).Scan(&s.ID, &s.Name, &s.Settlement.CreditExchangeRate,
		&s.Settlement.CreditServiceExchangeRate, &currency, &s.Settlement.UseCustomerCredit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load store %s: %w", storeID, err)
	}
	s.Settlement.DefaultCurrency = currency.String
	return &s, nil
}

func (p *PostgresStore) GetOrder(ctx context.Context, storeID, orderID string) (*Order, error) {
	var (
		o                                   Order
		customerID, reservationID, note     sql.NullString
		shippingID, paymentID, paymentIdent sql.NullString
	)
	err := p.q.QueryRowContext(ctx, `
		SELECT o.id, o.store_id, o.customer_id, o.reservation_id, o.shipping_method_id,
		       o.payment_method_id, pm.identifier, o.currency, o.total, o.note, o.created_at
		FROM store_orders o
		LEFT JOIN payment_methods pm ON pm.id = o.payment_method_id
		WHERE o.id = $1 AND o.store_id = $2
	`, orderID, storeID).Scan(&o.ID, &o.StoreID, &customerID, &reservationID, &shippingID,
		&paymentID, &paymentIdent, &o.Currency, &o.Total, &note, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	o.CustomerID = customerID.String
	o.ReservationID = reservationID.String
	o.ShippingMethodID = shippingID.String
	o.PaymentMethodID = paymentID.String
	o.PaymentMethodIdentifier = paymentIdent.String
	o.Note = note.String
	return &o, nil
}

func (p *PostgresStore) ShippingMethod(ctx context.Context, storeID, identifier string) (*ShippingMethod, error) {
	return p.shippingMethod(ctx, `
		SELECT id, store_id, identifier, name, is_default
		FROM shipping_methods WHERE store_id = $1 AND identifier = $2
		LIMIT 1
	`, storeID, identifier)
}

func (p *PostgresStore) DefaultShippingMethod(ctx context.Context, storeID string) (*ShippingMethod, error) {
	return p.shippingMethod(ctx, `
		SELECT id, store_id, identifier, name, is_default
		FROM shipping_methods WHERE store_id = $1 AND is_default
		ORDER BY id
		LIMIT 1
	`, storeID)
}

func (p *PostgresStore) shippingMethod(ctx context.Context, query string, args ...any) (*ShippingMethod, error) {
	var sm ShippingMethod
	err := p.q.QueryRowContext(ctx, query, args...).
		Scan(&sm.ID, &sm.StoreID, &sm.Identifier, &sm.Name, &sm.IsDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load shipping method: %w", err)
	}
	return &sm, nil
}

func (p *PostgresStore) PaymentMethod(ctx context.Context, storeID, identifier string) (*PaymentMethod, error) {
	var pm PaymentMethod
	err := p.q.QueryRowContext(ctx, `
		SELECT id, store_id, identifier, name
		FROM payment_methods WHERE store_id = $1 AND identifier = $2
		LIMIT 1
	`, storeID, identifier).Scan(&pm.ID, &pm.StoreID, &pm.Identifier, &pm.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payment method: %w", err)
	}
	return &pm, nil
}

func (p *PostgresStore) CreateOrder(ctx context.Context, o *Order) error {
	err := p.q.QueryRowContext(ctx, `
		INSERT INTO store_orders (id, store_id, customer_id, reservation_id, shipping_method_id,
			payment_method_id, currency, total, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at
	`, o.ID, o.StoreID, nullString(o.CustomerID), nullString(o.ReservationID),
		nullString(o.ShippingMethodID), nullString(o.PaymentMethodID), o.Currency, o.Total,
		nullString(o.Note)).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
