package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrReservationNotFound = errors.New("settlement: reservation not found")
	ErrStoreNotFound       = errors.New("settlement: store not found")
	ErrInvalidStatus       = errors.New("settlement: reservation cannot be completed from its current status")
	ErrInsufficientBalance = errors.New("settlement: insufficient credit balance")
	ErrCompletionFailed    = errors.New("settlement: completion failed")
	ErrInvalidBatch        = errors.New("settlement: invalid batch request")
)

// InsufficientBalanceError aborts a direct deduction whose cost exceeds the
// customer's point balance.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("settlement: insufficient credit balance: required %s, available %s", e.Required, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }
