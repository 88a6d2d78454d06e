// Package shop holds the store-level configuration the settlement engine
// reads (exchange rates, currency, shipping and payment methods) and the
// store orders that revenue entries are anchored to.
package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrStoreNotFound = errors.New("shop: store not found")
	ErrOrderNotFound = errors.New("shop: order not found")
	ErrMissingConfig = errors.New("shop: store configuration incomplete")
)

// Method identifiers with settlement meaning.
const (
	PaymentCreditPoint = "creditPoint" // paid by holding credit points
	PaymentCredit      = "credit"      // fallback order payment method
	ShippingTakeout    = "takeout"
)

// DefaultCurrency is used when a store has none configured.
const DefaultCurrency = "twd"

// ConfigError reports a store missing configuration required to settle.
type ConfigError struct {
	StoreID string
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("shop: store %s has no %s configured", e.StoreID, e.Missing)
}

func (e *ConfigError) Unwrap() error { return ErrMissingConfig }

// SettlementConfig is the read-only settlement input of a store.
type SettlementConfig struct {
	// CreditExchangeRate converts points to cash; must be > 0 for any
	// credit path.
	CreditExchangeRate decimal.Decimal `json:"creditExchangeRate"`
	// CreditServiceExchangeRate is minutes per point; must be > 0 for
	// direct deduction.
	CreditServiceExchangeRate decimal.Decimal `json:"creditServiceExchangeRate"`
	DefaultCurrency           string          `json:"defaultCurrency"`
	UseCustomerCredit         bool            `json:"useCustomerCredit"`
}

// Currency returns the lower-cased store currency, falling back to fallback
// and then DefaultCurrency.
func (c SettlementConfig) Currency(fallback string) string {
	for _, cur := range []string{c.DefaultCurrency, fallback} {
		if cur = strings.TrimSpace(cur); cur != "" {
			return strings.ToLower(cur)
		}
	}
	return DefaultCurrency
}

// Store is a tenant.
type Store struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Settlement SettlementConfig `json:"settlement"`
}

// ShippingMethod is a store fulfilment option.
type ShippingMethod struct {
	ID         string `json:"id"`
	StoreID    string `json:"storeId"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	IsDefault  bool   `json:"isDefault"`
}

// PaymentMethod is a store payment option.
type PaymentMethod struct {
	ID         string `json:"id"`
	StoreID    string `json:"storeId"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

// Order is a store order. Only the fields settlement needs are modelled.
type Order struct {
	ID                      string          `json:"id"`
	StoreID                 string          `json:"storeId"`
	CustomerID              string          `json:"customerId,omitempty"`
	ReservationID           string          `json:"reservationId,omitempty"`
	ShippingMethodID        string          `json:"shippingMethodId,omitempty"`
	PaymentMethodID         string          `json:"paymentMethodId,omitempty"`
	PaymentMethodIdentifier string          `json:"paymentMethodIdentifier,omitempty"`
	Currency                string          `json:"currency"`
	Total                   decimal.Decimal `json:"total"`
	Note                    string          `json:"note,omitempty"`
	CreatedAt               time.Time       `json:"createdAt"`
}

// Repository is a transaction-bound view of store configuration and orders.
type Repository interface {
	GetStore(ctx context.Context, storeID string) (*Store, error)
	GetOrder(ctx context.Context, storeID, orderID string) (*Order, error)
	// ShippingMethod returns the method with identifier, or nil.
	ShippingMethod(ctx context.Context, storeID, identifier string) (*ShippingMethod, error)
	// DefaultShippingMethod returns the store's default method, or nil.
	DefaultShippingMethod(ctx context.Context, storeID string) (*ShippingMethod, error)
	// PaymentMethod returns the method with identifier, or nil.
	PaymentMethod(ctx context.Context, storeID, identifier string) (*PaymentMethod, error)
	CreateOrder(ctx context.Context, o *Order) error
}
