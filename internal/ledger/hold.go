package ledger

import (
	"context"
	"fmt"
)

// FindHold returns the most recent HOLD entry in l for (scope, orderID).
// It returns ErrHoldNotFound when there is none.
func FindHold(ctx context.Context, l CustomerLedger, scope CustomerScope, orderID string) (*CustomerEntry, error) {
	if !scope.valid() {
		return nil, ErrMissingScope
	}
	hold, err := l.LatestHold(ctx, scope, orderID)
	if err != nil {
		return nil, fmt.Errorf("find %s hold: %w", l.Book(), err)
	}
	if hold == nil {
		return nil, ErrHoldNotFound
	}
	return hold, nil
}

// SettleHold reclassifies hold in place as the settled type of l's book and
// points it at referenceID. Amount and balance are left untouched: the
// customer was already debited when the hold was placed.
func SettleHold(ctx context.Context, l CustomerLedger, hold *CustomerEntry, referenceID string) error {
	if hold.Type != TypeHold {
		return fmt.Errorf("%w: %s is %s", ErrNotAHold, hold.ID, hold.Type)
	}
	settled := SettledType(l.Book())
	if err := l.Reclassify(ctx, hold.ID, settled, referenceID); err != nil {
		return fmt.Errorf("reclassify %s hold %s: %w", l.Book(), hold.ID, err)
	}
	hold.Type = settled
	hold.ReferenceID = referenceID
	return nil
}
