package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidewell/storeops/internal/ledger"
	"github.com/tidewell/storeops/internal/logging"
	"github.com/tidewell/storeops/internal/traces"
	"github.com/tidewell/storeops/internal/uow"
)

// ConversionResult reports what a hold conversion did. HoldMissing means no
// HOLD entry matched and nothing was written.
type ConversionResult struct {
	HoldMissing  bool
	SettledEntry *ledger.CustomerEntry
	StoreEntry   *ledger.StoreEntry
}

// ConvertCreditHold settles a credit-point hold: the HOLD entry becomes a
// SPEND referencing the reservation, and |amount| x exchange rate is booked
// as REVENUE.
func (o *Orchestrator) ConvertCreditHold(ctx context.Context, u uow.UnitOfWork, p CreditHoldConversion) (ConversionResult, error) {
	return o.convertHold(ctx, u, u.CreditLedger(), holdConversion{
		storeID:       p.StoreID,
		customerID:    p.CustomerID,
		reservationID: p.ReservationID,
		orderID:       p.OrderID,
		rate:          p.ExchangeRate,
		currency:      p.Currency,
		entryType:     ledger.StoreRevenue,
	})
}

// ConvertFiatHold settles a pre-authorized payment hold: the HOLD entry
// becomes a CAPTURE and |amount| is booked as STORE_PAYMENT_PROVIDER revenue.
func (o *Orchestrator) ConvertFiatHold(ctx context.Context, u uow.UnitOfWork, p FiatHoldConversion) (ConversionResult, error) {
	return o.convertHold(ctx, u, u.FiatLedger(), holdConversion{
		storeID:       p.StoreID,
		customerID:    p.CustomerID,
		reservationID: p.ReservationID,
		orderID:       p.OrderID,
		rate:          decimal.NewFromInt(1),
		currency:      p.Currency,
		entryType:     ledger.StorePaymentProvider,
	})
}

type holdConversion struct {
	storeID       string
	customerID    string
	reservationID string
	orderID       string
	rate          decimal.Decimal
	currency      string
	entryType     ledger.StoreEntryType
}

func (o *Orchestrator) convertHold(ctx context.Context, u uow.UnitOfWork, l ledger.CustomerLedger, hc holdConversion) (ConversionResult, error) {
	ctx, span := traces.StartSpan(ctx, "settlement.convert_hold",
		traces.StoreID(hc.storeID), traces.ReservationID(hc.reservationID), traces.CustomerID(hc.customerID))
	var res ConversionResult
	var err error
	defer func() { traces.End(span, err) }()

	scope := ledger.CustomerScope{StoreID: hc.storeID, CustomerID: hc.customerID}
	if err = l.LockScope(ctx, scope); err != nil {
		return res, fmt.Errorf("lock %s scope: %w", l.Book(), err)
	}

	hold, findErr := ledger.FindHold(ctx, l, scope, hc.orderID)
	if errors.Is(findErr, ledger.ErrHoldNotFound) {
		HoldMissingTotal.WithLabelValues(string(l.Book())).Inc()
		logging.L(ctx).Warn("no hold entry to convert", "book", l.Book(), "order_id", hc.orderID)
		res.HoldMissing = true
		return res, nil
	}
	if findErr != nil {
		err = findErr
		return res, err
	}

	settled := hold.Amount.Abs()
	if err = ledger.SettleHold(ctx, l, hold, hc.reservationID); err != nil {
		return res, err
	}

	entry := &ledger.StoreEntry{
		StoreID:     hc.storeID,
		OrderID:     hc.orderID,
		Amount:      settled.Mul(hc.rate),
		Fee:         decimal.Zero,
		PlatformFee: decimal.Zero,
		Currency:    hc.currency,
		Type:        hc.entryType,
		Description: fmt.Sprintf("reservation %s settled from %s hold", hc.reservationID, l.Book()),
	}
	if err = o.writer.AppendStore(ctx, u.StoreLedger(), entry); err != nil {
		err = fmt.Errorf("append %s entry: %w", hc.entryType, err)
		return res, err
	}

	res.SettledEntry = hold
	res.StoreEntry = entry
	return res, nil
}
