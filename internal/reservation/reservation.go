// Package reservation models bookable slots and the status transitions the
// settlement engine performs on them.
package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("reservation: not found")
	ErrInvalidTransition = errors.New("reservation: invalid status transition")
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusCheckedIn Status = "checked_in"
	StatusCompleted Status = "completed" // terminal
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusCheckedIn, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// CanComplete reports whether a reservation in status s may move to
// Completed.
func (s Status) CanComplete() bool {
	switch s {
	case StatusPending, StatusReady, StatusCheckedIn:
		return true
	}
	return false
}

// Completable reports whether callers may request completion from s. This is
// narrower than CanComplete: a pending booking has not been confirmed yet.
func (s Status) Completable() bool {
	return s == StatusReady || s == StatusCheckedIn
}

// Facility is the bookable resource (court, room, table).
type Facility struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	DefaultDurationMinutes int    `json:"defaultDurationMinutes"`
}

// Customer carries the contact fields used in notifications.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// LinkedOrder is the order a reservation was paid through.
type LinkedOrder struct {
	ID                      string `json:"id"`
	PaymentMethodIdentifier string `json:"paymentMethodIdentifier,omitempty"`
	Currency                string `json:"currency,omitempty"`
}

// Reservation is a booked slot.
type Reservation struct {
	ID             string          `json:"id"`
	StoreID        string          `json:"storeId"`
	CustomerID     string          `json:"customerId,omitempty"`
	FacilityID     string          `json:"facilityId,omitempty"`
	OrderID        string          `json:"orderId,omitempty"`
	AlreadyPaid    bool            `json:"alreadyPaid"`
	Status         Status          `json:"status"`
	FacilityCredit decimal.Decimal `json:"facilityCredit"`
	StartsAt       time.Time       `json:"startsAt"`
	EndsAt         *time.Time      `json:"endsAt,omitempty"`
	StaffName      string          `json:"staffName,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`

	Facility *Facility    `json:"facility,omitempty"`
	Customer *Customer    `json:"customer,omitempty"`
	Order    *LinkedOrder `json:"order,omitempty"`
}

// DurationMinutes is the slot length used for credit pricing: the booked
// span when an end time is set, otherwise the facility's default length.
func (r *Reservation) DurationMinutes() decimal.Decimal {
	if r.EndsAt != nil && r.EndsAt.After(r.StartsAt) {
		return decimal.NewFromInt(int64(r.EndsAt.Sub(r.StartsAt) / time.Minute))
	}
	if r.Facility != nil && r.Facility.DefaultDurationMinutes > 0 {
		return decimal.NewFromInt(int64(r.Facility.DefaultDurationMinutes))
	}
	return decimal.Zero
}

// Repository is a transaction-bound view of reservations.
type Repository interface {
	// Get loads a reservation of storeID with its facility and customer.
	Get(ctx context.Context, storeID, id string) (*Reservation, error)
	// GetForUpdate is Get with the row locked until the transaction ends.
	GetForUpdate(ctx context.Context, storeID, id string) (*Reservation, error)
	Create(ctx context.Context, r *Reservation) error
	SetFacilityCredit(ctx context.Context, id string, credit decimal.Decimal) error
	SetOrder(ctx context.Context, id, orderID string) error
	// UpdateStatus moves a reservation to status. Moving to Completed is
	// only allowed from a status that CanComplete or from Completed itself.
	UpdateStatus(ctx context.Context, id string, status Status) error
}
