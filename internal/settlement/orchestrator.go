// Package settlement completes reservations. Completing a reservation
// settles its money or credit across the customer credit book, the customer
// fiat book and the store revenue ledger, then marks it Completed, all in
// one unit of work.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidewell/storeops/internal/ledger"
	"github.com/tidewell/storeops/internal/logging"
	"github.com/tidewell/storeops/internal/reservation"
	"github.com/tidewell/storeops/internal/shop"
	"github.com/tidewell/storeops/internal/uow"
)

// Orchestrator runs one settlement plan and the status write inside a
// caller-provided unit of work. It performs no precondition checks of its
// own; see Service for those.
type Orchestrator struct {
	writer           *ledger.Writer
	fallbackCurrency string
}

// NewOrchestrator creates an orchestrator appending through writer.
func NewOrchestrator(writer *ledger.Writer, fallbackCurrency string) *Orchestrator {
	if fallbackCurrency == "" {
		fallbackCurrency = shop.DefaultCurrency
	}
	return &Orchestrator{writer: writer, fallbackCurrency: fallbackCurrency}
}

// CompleteRequest is the input of Complete.
type CompleteRequest struct {
	ReservationID string
	StoreID       string
	// PriorStatus is the status before this call. Completed suppresses
	// settlement so repeated calls never settle twice.
	PriorStatus reservation.Status
	Reservation *reservation.Reservation
	Config      shop.SettlementConfig
}

// Outcome summarizes what a completion did.
type Outcome struct {
	Route          Route
	Reason         string // set for RouteNone
	HoldMissing    bool
	CreditDeducted decimal.Decimal
	StoreEntry     *ledger.StoreEntry
	OrderCreated   bool
}

// Complete settles req.Reservation according to Decide, then sets its status
// to Completed and returns it reloaded with relations. Settlement always runs
// before the status write; any settlement error is returned before the
// status changes, and the caller must roll the unit of work back.
func (o *Orchestrator) Complete(ctx context.Context, u uow.UnitOfWork, req CompleteRequest) (*reservation.Reservation, Outcome, error) {
	if req.Reservation == nil || req.Reservation.ID != req.ReservationID || req.Reservation.StoreID != req.StoreID {
		return nil, Outcome{}, fmt.Errorf("%w: snapshot does not match %s/%s", ErrReservationNotFound, req.StoreID, req.ReservationID)
	}

	plan := Decide(FactsFor(req.Reservation, req.PriorStatus, req.Config, o.fallbackCurrency))
	outcome, err := o.execute(ctx, u, plan)
	if err != nil {
		return nil, outcome, err
	}

	if err := u.Reservations().UpdateStatus(ctx, req.ReservationID, reservation.StatusCompleted); err != nil {
		return nil, outcome, fmt.Errorf("update status: %w", err)
	}

	out, err := u.Reservations().Get(ctx, req.StoreID, req.ReservationID)
	if err != nil {
		return nil, outcome, fmt.Errorf("reload reservation: %w", err)
	}
	if err := attachOrder(ctx, u, out); err != nil {
		return nil, outcome, err
	}
	return out, outcome, nil
}

func (o *Orchestrator) execute(ctx context.Context, u uow.UnitOfWork, plan Plan) (Outcome, error) {
	outcome := Outcome{Route: plan.Route()}
	log := logging.L(ctx).With("route", plan.Route())

	switch p := plan.(type) {
	case CreditHoldConversion:
		res, err := o.ConvertCreditHold(ctx, u, p)
		if err != nil {
			return outcome, fmt.Errorf("convert credit hold: %w", err)
		}
		outcome.HoldMissing = res.HoldMissing
		outcome.StoreEntry = res.StoreEntry

	case FiatHoldConversion:
		res, err := o.ConvertFiatHold(ctx, u, p)
		if err != nil {
			return outcome, fmt.Errorf("convert fiat hold: %w", err)
		}
		outcome.HoldMissing = res.HoldMissing
		outcome.StoreEntry = res.StoreEntry

	case DirectDeduction:
		res, err := o.Deduct(ctx, u, p)
		if err != nil {
			return outcome, fmt.Errorf("deduct credit: %w", err)
		}
		if res.InsufficientBalance {
			return outcome, &InsufficientBalanceError{
				Required:  CreditCost(p.DurationMinutes, p.ServiceExchangeRate),
				Available: res.BalanceBefore,
			}
		}
		outcome.CreditDeducted = res.CreditDeducted
		outcome.StoreEntry = res.StoreEntry
		outcome.OrderCreated = res.OrderCreated

	case NoSettlement:
		outcome.Reason = p.Reason
	}

	log.Debug("settlement executed", "hold_missing", outcome.HoldMissing, "credit_deducted", outcome.CreditDeducted.String())
	return outcome, nil
}

// attachOrder loads the reservation's linked order, if any. A dangling
// order reference is logged and left unattached.
func attachOrder(ctx context.Context, u uow.UnitOfWork, r *reservation.Reservation) error {
	if r.OrderID == "" {
		return nil
	}
	order, err := u.Shops().GetOrder(ctx, r.StoreID, r.OrderID)
	if errors.Is(err, shop.ErrOrderNotFound) {
		logging.L(ctx).Warn("reservation references unknown order", "order_id", r.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load linked order: %w", err)
	}
	r.Order = &reservation.LinkedOrder{
		ID:                      order.ID,
		PaymentMethodIdentifier: order.PaymentMethodIdentifier,
		Currency:                order.Currency,
	}
	return nil
}
