// Package ledger implements the three running-balance books touched by
// reservation settlement: the customer point-credit book, the customer fiat
// (pre-authorized payment) book, and the store revenue ledger.
//
// Every entry stores a balance snapshot: the balance of the previous entry in
// the same scope plus this entry's signed amount. Writes for one scope must be
// serialized, which is why every repository exposes LockScope and the Writer
// always calls it before reading the latest entry.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrHoldNotFound  = errors.New("ledger: no matching hold entry")
	ErrEntryNotFound = errors.New("ledger: entry not found")
	ErrNotAHold      = errors.New("ledger: entry is not a hold")
	ErrMissingScope  = errors.New("ledger: store and customer are required")
	ErrMissingOrder  = errors.New("ledger: store entries require an order reference")
	ErrInvalidEntry  = errors.New("ledger: invalid entry")
	ErrBrokenChain   = errors.New("ledger: running balance chain broken")
)

// Book names one of the customer-scoped books.
type Book string

const (
	BookCredit Book = "credit" // loyalty/credit points
	BookFiat   Book = "fiat"   // store currency, pre-authorized holds
)

// EntryType classifies customer book entries.
type EntryType string

const (
	TypeHold       EntryType = "HOLD"
	TypeSpend      EntryType = "SPEND"
	TypeTopup      EntryType = "TOPUP"
	TypeRefund     EntryType = "REFUND"
	TypeAdjustment EntryType = "ADJUSTMENT"
	TypeCapture    EntryType = "CAPTURE" // settled fiat hold
)

// SettledType is the type a HOLD entry becomes once settled in book b.
func SettledType(b Book) EntryType {
	if b == BookFiat {
		return TypeCapture
	}
	return TypeSpend
}

// CustomerScope identifies a (store, customer) running-balance chain.
type CustomerScope struct {
	StoreID    string
	CustomerID string
}

func (s CustomerScope) valid() bool { return s.StoreID != "" && s.CustomerID != "" }

// LockKey is the advisory lock key for the scope in book b.
func (s CustomerScope) LockKey(b Book) string {
	return fmt.Sprintf("%s:%s:%s", b, s.StoreID, s.CustomerID)
}

// StoreLockKey is the advisory lock key for a store revenue chain.
func StoreLockKey(storeID string) string {
	return "store:" + storeID
}

// CustomerEntry is one row of the credit or fiat book.
type CustomerEntry struct {
	ID          string          `json:"id"`
	StoreID     string          `json:"storeId"`
	CustomerID  string          `json:"customerId"`
	Amount      decimal.Decimal `json:"amount"`  // signed
	Balance     decimal.Decimal `json:"balance"` // snapshot after this entry
	Type        EntryType       `json:"type"`
	ReferenceID string          `json:"referenceId,omitempty"` // order or reservation id
	Note        string          `json:"note,omitempty"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Scope returns the entry's (store, customer) scope.
func (e *CustomerEntry) Scope() CustomerScope {
	return CustomerScope{StoreID: e.StoreID, CustomerID: e.CustomerID}
}

// StoreEntryType classifies store revenue ledger entries.
type StoreEntryType string

const (
	StoreRevenue         StoreEntryType = "REVENUE"
	StoreCreditUsage     StoreEntryType = "CREDIT_USAGE"
	StorePaymentProvider StoreEntryType = "STORE_PAYMENT_PROVIDER"
	StorePayout          StoreEntryType = "PAYOUT"
	StoreRefund          StoreEntryType = "REFUND"
)

// StoreEntry is one row of a store's revenue ledger.
type StoreEntry struct {
	ID          string          `json:"id"`
	StoreID     string          `json:"storeId"`
	OrderID     string          `json:"orderId"`
	Amount      decimal.Decimal `json:"amount"` // signed revenue
	Fee         decimal.Decimal `json:"fee"`
	PlatformFee decimal.Decimal `json:"platformFee"`
	Currency    string          `json:"currency"`
	Type        StoreEntryType  `json:"type"`
	Balance     decimal.Decimal `json:"balance"`
	AvailableAt time.Time       `json:"availableAt"`
	Description string          `json:"description,omitempty"`
	Note        string          `json:"note,omitempty"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// CustomerLedger is a transaction-bound view of one customer book.
type CustomerLedger interface {
	Book() Book
	// LockScope serializes writers of scope until the transaction ends.
	LockScope(ctx context.Context, scope CustomerScope) error
	// Latest returns the newest entry of scope, or nil when the scope is empty.
	Latest(ctx context.Context, scope CustomerScope) (*CustomerEntry, error)
	Insert(ctx context.Context, e *CustomerEntry) error
	// LatestHold returns the newest HOLD entry of scope referencing
	// referenceID, or nil.
	LatestHold(ctx context.Context, scope CustomerScope, referenceID string) (*CustomerEntry, error)
	// Reclassify rewrites type and reference of a HOLD entry in place.
	Reclassify(ctx context.Context, id string, t EntryType, referenceID string) error
	// List returns entries of scope, newest first.
	List(ctx context.Context, scope CustomerScope, limit int) ([]*CustomerEntry, error)
	// ListBefore returns entries of scope older than the entry afterID,
	// newest first. An empty afterID starts at the newest entry; an unknown
	// one yields no entries.
	ListBefore(ctx context.Context, scope CustomerScope, afterID string, limit int) ([]*CustomerEntry, error)
}

// StoreLedger is a transaction-bound view of the store revenue ledger.
type StoreLedger interface {
	LockScope(ctx context.Context, storeID string) error
	Latest(ctx context.Context, storeID string) (*StoreEntry, error)
	Insert(ctx context.Context, e *StoreEntry) error
	// List returns entries of the store, newest first.
	List(ctx context.Context, storeID string, limit int) ([]*StoreEntry, error)
	ListBefore(ctx context.Context, storeID, afterID string, limit int) ([]*StoreEntry, error)
	ListByOrder(ctx context.Context, storeID, orderID string) ([]*StoreEntry, error)
}

// Balances stores the current point balance per (store, customer).
type Balances interface {
	// Get returns the balance, or zero when no row exists.
	Get(ctx context.Context, scope CustomerScope) (decimal.Decimal, error)
	// Adjust adds delta (upserting the row) and returns the new balance.
	// A missing row is created with delta as its value, even if negative.
	Adjust(ctx context.Context, scope CustomerScope, delta decimal.Decimal) (decimal.Decimal, error)
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ClampLimit normalises a caller-supplied page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// fetchLimit bounds a ListBefore page. It allows one entry over
// MaxListLimit so a caller can tell whether another page follows.
func fetchLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit+1)
}
