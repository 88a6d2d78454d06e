package notify

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidewell/storeops/internal/circuitbreaker"
	"github.com/tidewell/storeops/internal/idgen"
	"github.com/tidewell/storeops/internal/logging"
)

var (
	dispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storeops",
		Subsystem: "notify",
		Name:      "dispatch_total",
		Help:      "Total notification dispatch attempts by event type.",
	}, []string{"event_type"})

	dispatchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storeops",
		Subsystem: "notify",
		Name:      "dispatch_errors_total",
		Help:      "Total notification dispatch failures by event type.",
	}, []string{"event_type"})

	dispatchDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storeops",
		Subsystem: "notify",
		Name:      "dispatch_dropped_total",
		Help:      "Notifications dropped while the destination circuit was open.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(dispatchTotal, dispatchErrors, dispatchDropped)
}

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

// Dispatcher hands events to a Router in the background.
type Dispatcher struct {
	router  Router
	breaker *circuitbreaker.Breaker
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher over router.
func NewDispatcher(router Router) *Dispatcher {
	return &Dispatcher{router: router, timeout: DefaultTimeout}
}

// WithTimeout overrides the per-delivery timeout.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	d.timeout = timeout
	return d
}

// WithBreaker stops delivery attempts while b is open. Events raised in
// that window are dropped and counted.
func (d *Dispatcher) WithBreaker(b *circuitbreaker.Breaker) *Dispatcher {
	d.breaker = b
	return d
}

// Dispatch delivers ev asynchronously. The caller's cancellation does not
// abort delivery, but its logger is kept. Errors are logged only.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) {
	if d == nil || d.router == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = idgen.WithPrefix("evt_")
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	dispatchTotal.WithLabelValues(string(ev.Type)).Inc()

	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(bg, d.timeout)
		defer cancel()

		if d.breaker != nil && !d.breaker.Allow() {
			dispatchDropped.WithLabelValues(string(ev.Type)).Inc()
			logging.L(ctx).Warn("notification dropped, circuit open",
				"event_id", ev.ID, "destination", d.breaker.Name(), "reservation_id", ev.ReservationID)
			return
		}

		err := d.router.Route(ctx, ev)
		if err != nil {
			dispatchErrors.WithLabelValues(string(ev.Type)).Inc()
			logging.L(ctx).Warn("notification dispatch failed",
				"event_id", ev.ID, "type", ev.Type, "reservation_id", ev.ReservationID, "error", err)
		}
		if d.breaker != nil {
			if err != nil {
				d.breaker.RecordFailure()
			} else {
				d.breaker.RecordSuccess()
			}
		}
	}()
}

// Wait blocks until in-flight deliveries finish or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
