package shop

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidewell/storeops/internal/idgen"
)

// FallbackOrder describes the order to anchor a revenue entry to.
type FallbackOrder struct {
	StoreID         string
	CustomerID      string
	ReservationID   string
	ExistingOrderID string
	Currency        string
}

// EnsureOrder returns the existing order when one is referenced, otherwise
// synthesizes a minimal zero-total order paid by the store's "credit"
// payment method and shipped by its "takeout" (or default) shipping method.
// A store missing either method yields a *ConfigError.
func EnsureOrder(ctx context.Context, repo Repository, req FallbackOrder) (order *Order, created bool, err error) {
	if req.ExistingOrderID != "" {
		order, err = repo.GetOrder(ctx, req.StoreID, req.ExistingOrderID)
		if err != nil {
			return nil, false, fmt.Errorf("load order %s: %w", req.ExistingOrderID, err)
		}
		return order, false, nil
	}

	shipping, err := repo.ShippingMethod(ctx, req.StoreID, ShippingTakeout)
	if err != nil {
		return nil, false, err
	}
	if shipping == nil {
		if shipping, err = repo.DefaultShippingMethod(ctx, req.StoreID); err != nil {
			return nil, false, err
		}
	}
	if shipping == nil {
		return nil, false, &ConfigError{StoreID: req.StoreID, Missing: "shipping method"}
	}

	payment, err := repo.PaymentMethod(ctx, req.StoreID, PaymentCredit)
	if err != nil {
		return nil, false, err
	}
	if payment == nil {
		return nil, false, &ConfigError{StoreID: req.StoreID, Missing: "credit payment method"}
	}

	order = &Order{
		ID:                      idgen.WithPrefix("ord_"),
		StoreID:                 req.StoreID,
		CustomerID:              req.CustomerID,
		ReservationID:           req.ReservationID,
		ShippingMethodID:        shipping.ID,
		PaymentMethodID:         payment.ID,
		PaymentMethodIdentifier: payment.Identifier,
		Currency:                req.Currency,
		Total:                   decimal.Zero,
		Note:                    "reservation credit settlement",
	}
	if err := repo.CreateOrder(ctx, order); err != nil {
		return nil, false, fmt.Errorf("create fallback order: %w", err)
	}
	return order, true, nil
}
