package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/tidewell/storeops/internal/idgen"
)

// Writer appends entries to a ledger, computing each running balance from
// the latest prior entry of the same scope.
type Writer struct {
	now func() time.Time
}

// NewWriter creates a Writer using the wall clock.
func NewWriter() *Writer {
	return &Writer{now: time.Now}
}

// WithClock overrides the clock, for tests.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// AppendCustomer locks the entry's scope, reads the latest entry, sets
// e.Balance = latest.Balance + e.Amount (or e.Amount for an empty scope) and
// inserts e. ID and CreatedAt are filled in when empty.
func (w *Writer) AppendCustomer(ctx context.Context, l CustomerLedger, e *CustomerEntry) error {
	scope := e.Scope()
	if !scope.valid() {
		return ErrMissingScope
	}
	if e.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidEntry)
	}

	if err := l.LockScope(ctx, scope); err != nil {
		return fmt.Errorf("lock %s scope: %w", l.Book(), err)
	}
	prev, err := l.Latest(ctx, scope)
	if err != nil {
		return fmt.Errorf("read latest %s entry: %w", l.Book(), err)
	}

	e.Balance = e.Amount
	var prevAt time.Time
	if prev != nil {
		e.Balance = prev.Balance.Add(e.Amount)
		prevAt = prev.CreatedAt
	}
	if e.ID == "" {
		e.ID = idgen.WithPrefix(customerPrefix(l.Book()))
	}
	e.CreatedAt = w.stamp(e.CreatedAt, prevAt)

	if err := l.Insert(ctx, e); err != nil {
		return fmt.Errorf("insert %s entry: %w", l.Book(), err)
	}
	return nil
}

// AppendStore is AppendCustomer for the store revenue ledger. AvailableAt
// defaults to the creation time.
func (w *Writer) AppendStore(ctx context.Context, l StoreLedger, e *StoreEntry) error {
	if e.StoreID == "" {
		return ErrMissingScope
	}
	if e.OrderID == "" {
		return ErrMissingOrder
	}
	if e.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidEntry)
	}

	if err := l.LockScope(ctx, e.StoreID); err != nil {
		return fmt.Errorf("lock store scope: %w", err)
	}
	prev, err := l.Latest(ctx, e.StoreID)
	if err != nil {
		return fmt.Errorf("read latest store entry: %w", err)
	}

	e.Balance = e.Amount
	var prevAt time.Time
	if prev != nil {
		e.Balance = prev.Balance.Add(e.Amount)
		prevAt = prev.CreatedAt
	}
	if e.ID == "" {
		e.ID = idgen.WithPrefix("sle_")
	}
	e.CreatedAt = w.stamp(e.CreatedAt, prevAt)
	if e.AvailableAt.IsZero() {
		e.AvailableAt = e.CreatedAt
	}

	if err := l.Insert(ctx, e); err != nil {
		return fmt.Errorf("insert store entry: %w", err)
	}
	return nil
}

// stamp picks the creation time of a new entry. It never goes backwards
// relative to the previous entry, so ordering by creation time keeps
// matching append order even under clock skew.
func (w *Writer) stamp(requested, prev time.Time) time.Time {
	at := requested
	if at.IsZero() {
		at = w.now()
	}
	at = at.UTC()
	if !prev.IsZero() && at.Before(prev) {
		at = prev.UTC()
	}
	return at
}

func customerPrefix(b Book) string {
	if b == BookFiat {
		return "fle_"
	}
	return "cle_"
}
