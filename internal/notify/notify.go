// Package notify delivers reservation lifecycle events to downstream
// consumers after the settlement transaction has committed. Delivery is
// fire-and-forget: failures are logged and counted, never returned.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// EventType names a lifecycle event.
type EventType string

const EventCompleted EventType = "completed"

// Event is the flat payload handed to routers.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	StoreID        string    `json:"storeId"`
	ReservationID  string    `json:"reservationId"`
	CustomerID     string    `json:"customerId,omitempty"`
	CustomerName   string    `json:"customerName,omitempty"`
	CustomerEmail  string    `json:"customerEmail,omitempty"`
	CustomerPhone  string    `json:"customerPhone,omitempty"`
	PreviousStatus string    `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	FacilityName   string    `json:"facilityName,omitempty"`
	StaffName      string    `json:"staffName,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Router delivers one event.
type Router interface {
	Route(ctx context.Context, ev *Event) error
}

// RedisRouter publishes events as JSON on a Redis pub/sub channel.
type RedisRouter struct {
	client  *redis.Client
	channel string
}

// NewRedisRouter creates a router publishing on channel.
func NewRedisRouter(client *redis.Client, channel string) *RedisRouter {
	return &RedisRouter{client: client, channel: channel}
}

func (r *RedisRouter) Route(ctx context.Context, ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// LogRouter writes events to a logger. Used when no broker is configured.
type LogRouter struct {
	logger *slog.Logger
}

func NewLogRouter(logger *slog.Logger) *LogRouter {
	return &LogRouter{logger: logger}
}

func (r *LogRouter) Route(ctx context.Context, ev *Event) error {
	r.logger.InfoContext(ctx, "reservation event",
		"event_id", ev.ID,
		"type", ev.Type,
		"store_id", ev.StoreID,
		"reservation_id", ev.ReservationID,
		"previous_status", ev.PreviousStatus,
		"new_status", ev.NewStatus,
	)
	return nil
}
