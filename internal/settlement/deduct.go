package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidewell/storeops/internal/ledger"
	"github.com/tidewell/storeops/internal/logging"
	"github.com/tidewell/storeops/internal/shop"
	"github.com/tidewell/storeops/internal/traces"
	"github.com/tidewell/storeops/internal/uow"
)

// creditScale is the number of decimal places credit costs are rounded to,
// matching the NUMERIC(20,6) ledger columns.
const creditScale = 6

// DeductionResult reports what a direct deduction did.
type DeductionResult struct {
	Success             bool
	CreditDeducted      decimal.Decimal
	BalanceBefore       decimal.Decimal
	BalanceAfter        decimal.Decimal
	InsufficientBalance bool

	SpendEntry   *ledger.CustomerEntry
	StoreEntry   *ledger.StoreEntry
	OrderID      string
	OrderCreated bool
}

// CreditCost is the point cost of a slot: minutes / minutes-per-point.
func CreditCost(durationMinutes, serviceExchangeRate decimal.Decimal) decimal.Decimal {
	if !serviceExchangeRate.IsPositive() {
		return decimal.Zero
	}
	return durationMinutes.DivRound(serviceExchangeRate, creditScale)
}

// Deduct charges the customer's point balance for the slot and books the
// cash value as CREDIT_USAGE revenue.
//
// The computed cost is stored on the reservation before anything else, even
// when the deduction then turns out to be a no-op or fails. A cost of zero
// or less is a no-op. A balance below the cost is reported through
// InsufficientBalance rather than an error; the caller decides to abort.
func (o *Orchestrator) Deduct(ctx context.Context, u uow.UnitOfWork, p DirectDeduction) (DeductionResult, error) {
	ctx, span := traces.StartSpan(ctx, "settlement.deduct",
		traces.StoreID(p.StoreID), traces.ReservationID(p.ReservationID), traces.CustomerID(p.CustomerID))
	var res DeductionResult
	var err error
	defer func() { traces.End(span, err) }()

	cost := CreditCost(p.DurationMinutes, p.ServiceExchangeRate)
	if err = u.Reservations().SetFacilityCredit(ctx, p.ReservationID, cost); err != nil {
		return res, fmt.Errorf("record facility credit: %w", err)
	}
	if !cost.IsPositive() {
		logging.L(ctx).Info("credit cost is zero, nothing to deduct", "duration_minutes", p.DurationMinutes.String())
		return res, nil
	}

	scope := ledger.CustomerScope{StoreID: p.StoreID, CustomerID: p.CustomerID}
	credit := u.CreditLedger()
	// Held across the balance read and the ledger append.
	if err = credit.LockScope(ctx, scope); err != nil {
		return res, fmt.Errorf("lock credit scope: %w", err)
	}

	before, err := u.Balances().Get(ctx, scope)
	if err != nil {
		return res, fmt.Errorf("read credit balance: %w", err)
	}
	res.BalanceBefore = before
	if before.LessThan(cost) {
		res.InsufficientBalance = true
		res.BalanceAfter = before
		return res, nil
	}

	after, err := u.Balances().Adjust(ctx, scope, cost.Neg())
	if err != nil {
		return res, fmt.Errorf("debit credit balance: %w", err)
	}

	spend := &ledger.CustomerEntry{
		StoreID:     p.StoreID,
		CustomerID:  p.CustomerID,
		Amount:      cost.Neg(),
		Type:        ledger.TypeSpend,
		ReferenceID: p.ReservationID,
		Note:        "reservation completed",
	}
	if err = o.writer.AppendCustomer(ctx, credit, spend); err != nil {
		return res, fmt.Errorf("append spend entry: %w", err)
	}
	if !spend.Balance.Equal(after) {
		logging.L(ctx).Warn("credit ledger and balance table disagree",
			"ledger_balance", spend.Balance.String(), "table_balance", after.String())
	}

	order, created, err := shop.EnsureOrder(ctx, u.Shops(), shop.FallbackOrder{
		StoreID:         p.StoreID,
		CustomerID:      p.CustomerID,
		ReservationID:   p.ReservationID,
		ExistingOrderID: p.ExistingOrderID,
		Currency:        p.Currency,
	})
	if err != nil {
		return res, err
	}
	if created {
		if err = u.Reservations().SetOrder(ctx, p.ReservationID, order.ID); err != nil {
			return res, fmt.Errorf("link fallback order: %w", err)
		}
	}

	entry := &ledger.StoreEntry{
		StoreID:     p.StoreID,
		OrderID:     order.ID,
		Amount:      cost.Mul(p.CreditExchangeRate),
		Fee:         decimal.Zero,
		PlatformFee: decimal.Zero,
		Currency:    p.Currency,
		Type:        ledger.StoreCreditUsage,
		Description: "reservation credit usage",
	}
	if err = o.writer.AppendStore(ctx, u.StoreLedger(), entry); err != nil {
		return res, fmt.Errorf("append credit usage entry: %w", err)
	}

	res.Success = true
	res.CreditDeducted = cost
	res.BalanceAfter = after
	res.SpendEntry = spend
	res.StoreEntry = entry
	res.OrderID = order.ID
	res.OrderCreated = created
	return res, nil
}
