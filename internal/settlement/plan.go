package settlement

import (
	"github.com/shopspring/decimal"
	"github.com/tidewell/storeops/internal/reservation"
	"github.com/tidewell/storeops/internal/shop"
)

// Route names a settlement path.
type Route string

const (
	RouteNone            Route = "none"
	RouteCreditHold      Route = "credit_hold"
	RouteFiatHold        Route = "fiat_hold"
	RouteDirectDeduction Route = "direct_deduction"
)

// Plan is the settlement chosen for one completion. It is one of
// CreditHoldConversion, FiatHoldConversion, DirectDeduction or NoSettlement.
type Plan interface {
	Route() Route
	plan()
}

// CreditHoldConversion settles a credit-point HOLD placed at booking time.
type CreditHoldConversion struct {
	StoreID       string
	CustomerID    string
	ReservationID string
	OrderID       string
	ExchangeRate  decimal.Decimal // points -> cash
	Currency      string
}

// FiatHoldConversion settles a pre-authorized payment HOLD.
type FiatHoldConversion struct {
	StoreID       string
	CustomerID    string
	ReservationID string
	OrderID       string
	Currency      string
}

// DirectDeduction charges credit points for the slot at completion time.
type DirectDeduction struct {
	StoreID             string
	CustomerID          string
	ReservationID       string
	FacilityID          string
	ExistingOrderID     string
	DurationMinutes     decimal.Decimal
	ServiceExchangeRate decimal.Decimal // minutes per point
	CreditExchangeRate  decimal.Decimal // points -> cash
	Currency            string
}

// NoSettlement completes without touching any ledger.
type NoSettlement struct {
	Reason string
}

func (CreditHoldConversion) Route() Route { return RouteCreditHold }
func (FiatHoldConversion) Route() Route   { return RouteFiatHold }
func (DirectDeduction) Route() Route      { return RouteDirectDeduction }
func (NoSettlement) Route() Route         { return RouteNone }

func (CreditHoldConversion) plan() {}
func (FiatHoldConversion) plan()   {}
func (DirectDeduction) plan()      {}
func (NoSettlement) plan()         {}

// Facts are the routing inputs, gathered from the reservation snapshot and
// the store's settlement configuration.
type Facts struct {
	WasCompleted            bool
	AlreadyPaid             bool
	StoreID                 string
	ReservationID           string
	CustomerID              string
	OrderID                 string
	PaymentMethodIdentifier string
	FacilityID              string
	HasFacility             bool
	DurationMinutes         decimal.Decimal
	Config                  shop.SettlementConfig
	Currency                string
}

// FactsFor extracts routing facts. fallbackCurrency is used when the store
// has no currency configured.
func FactsFor(r *reservation.Reservation, prior reservation.Status, cfg shop.SettlementConfig, fallbackCurrency string) Facts {
	f := Facts{
		WasCompleted:    prior == reservation.StatusCompleted,
		AlreadyPaid:     r.AlreadyPaid,
		StoreID:         r.StoreID,
		ReservationID:   r.ID,
		CustomerID:      r.CustomerID,
		OrderID:         r.OrderID,
		FacilityID:      r.FacilityID,
		HasFacility:     r.Facility != nil,
		DurationMinutes: r.DurationMinutes(),
		Config:          cfg,
		Currency:        cfg.Currency(fallbackCurrency),
	}
	if r.Order != nil {
		f.PaymentMethodIdentifier = r.Order.PaymentMethodIdentifier
	}
	return f
}

// Decide selects the settlement plan. Rules are evaluated in priority order
// and the first match wins: credit hold, fiat hold, direct deduction.
func Decide(f Facts) Plan {
	if f.WasCompleted {
		return NoSettlement{Reason: "already completed"}
	}
	if f.CustomerID == "" {
		return NoSettlement{Reason: "no customer"}
	}

	creditRate := f.Config.CreditExchangeRate
	serviceRate := f.Config.CreditServiceExchangeRate

	switch {
	case f.AlreadyPaid && f.OrderID != "" &&
		f.PaymentMethodIdentifier == shop.PaymentCreditPoint && creditRate.IsPositive():
		return CreditHoldConversion{
			StoreID:       f.StoreID,
			CustomerID:    f.CustomerID,
			ReservationID: f.ReservationID,
			OrderID:       f.OrderID,
			ExchangeRate:  creditRate,
			Currency:      f.Currency,
		}

	case f.AlreadyPaid && f.OrderID != "" &&
		f.PaymentMethodIdentifier != "" && f.PaymentMethodIdentifier != shop.PaymentCreditPoint:
		return FiatHoldConversion{
			StoreID:       f.StoreID,
			CustomerID:    f.CustomerID,
			ReservationID: f.ReservationID,
			OrderID:       f.OrderID,
			Currency:      f.Currency,
		}

	case !f.AlreadyPaid && f.HasFacility && f.FacilityID != "" &&
		serviceRate.IsPositive() && creditRate.IsPositive():
		return DirectDeduction{
			StoreID:             f.StoreID,
			CustomerID:          f.CustomerID,
			ReservationID:       f.ReservationID,
			FacilityID:          f.FacilityID,
			ExistingOrderID:     f.OrderID,
			DurationMinutes:     f.DurationMinutes,
			ServiceExchangeRate: serviceRate,
			CreditExchangeRate:  creditRate,
			Currency:            f.Currency,
		}
	}
	return NoSettlement{Reason: "no route matched"}
}
