package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidewell/storeops/internal/dbx"
	"github.com/tidewell/storeops/internal/ledger"
	"github.com/tidewell/storeops/internal/logging"
	"github.com/tidewell/storeops/internal/notify"
	"github.com/tidewell/storeops/internal/pagination"
	"github.com/tidewell/storeops/internal/reservation"
	"github.com/tidewell/storeops/internal/shop"
	"github.com/tidewell/storeops/internal/syncutil"
	"github.com/tidewell/storeops/internal/traces"
	"github.com/tidewell/storeops/internal/uow"
)

// MaxBatchSize bounds CompleteReservations.
const MaxBatchSize = 200

// Notifier receives lifecycle events after commit. Implementations must not
// block.
type Notifier interface {
	Dispatch(ctx context.Context, ev *notify.Event)
}

// Service is the inbound surface of the settlement engine. It checks the
// caller-layer preconditions, serializes completions of the same
// reservation, runs the Orchestrator in a unit of work and notifies after
// commit.
type Service struct {
	tx       uow.Manager
	orch     *Orchestrator
	locks    *syncutil.KeyedMutex
	notifier Notifier
	timeout  time.Duration
}

// NewService creates a settlement service.
func NewService(tx uow.Manager, orch *Orchestrator) *Service {
	return &Service{
		tx:    tx,
		orch:  orch,
		locks: syncutil.NewKeyedMutex(),
	}
}

// WithNotifier sets the post-commit notifier.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithTimeout bounds each completion transaction. Zero means no bound.
func (s *Service) WithTimeout(d time.Duration) *Service {
	s.timeout = d
	return s
}

// BatchFailure names a reservation left out of a batch result.
type BatchFailure struct {
	ReservationID string `json:"reservationId"`
	Error         string `json:"error"`
}

// BatchResult is the result of CompleteReservations.
type BatchResult struct {
	Completed      []*reservation.Reservation `json:"completed"`
	CompletedCount int                        `json:"completedCount"`
	RequestedCount int                        `json:"requestedCount"`
	Failed         []BatchFailure             `json:"failed,omitempty"`
}

// completion carries one successful completion out of the transaction.
type completion struct {
	reservation *reservation.Reservation
	event       *notify.Event
	outcome     Outcome
}

// CompleteReservation settles and completes one reservation of storeID.
func (s *Service) CompleteReservation(ctx context.Context, storeID, reservationID string) (*reservation.Reservation, error) {
	start := time.Now()
	defer observeDuration("single", start)

	ctx = logging.WithAttrs(ctx, "store_id", storeID, "reservation_id", reservationID)
	ctx, span := traces.StartSpan(ctx, "settlement.complete", traces.StoreID(storeID), traces.ReservationID(reservationID))
	var err error
	defer func() { traces.End(span, err) }()

	unlock, err := s.locks.Lock(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var done completion
	err = s.tx.WithinTx(ctx, func(ctx context.Context, u uow.UnitOfWork) error {
		store, err := loadStore(ctx, u, storeID)
		if err != nil {
			return err
		}
		done, err = s.completeOne(ctx, u, store, reservationID)
		return err
	})
	if err != nil {
		err = s.classify(ctx, err)
		recordCompletion(done.outcome.Route, failureOutcome(err))
		return nil, err
	}

	recordSuccess(done.outcome)
	span.SetAttributes(traces.Route(string(done.outcome.Route)))
	logging.L(ctx).Info("reservation completed", "route", done.outcome.Route, "hold_missing", done.outcome.HoldMissing)
	s.notify(ctx, done.event)
	return done.reservation, nil
}

// CompleteReservations completes many reservations of storeID in one
// transaction. Each reservation is settled in its own savepoint: a failing
// one is logged, rolled back and left out of the result while the rest
// commit.
func (s *Service) CompleteReservations(ctx context.Context, storeID string, reservationIDs []string) (*BatchResult, error) {
	if len(reservationIDs) == 0 || len(reservationIDs) > MaxBatchSize {
		return nil, fmt.Errorf("%w: between 1 and %d reservation ids required", ErrInvalidBatch, MaxBatchSize)
	}
	start := time.Now()
	defer observeDuration("batch", start)

	ids := dedupe(reservationIDs)
	ctx = logging.WithAttrs(ctx, "store_id", storeID)
	ctx, span := traces.StartSpan(ctx, "settlement.batch", traces.StoreID(storeID), traces.BatchSize(len(ids)))
	var err error
	defer func() { traces.End(span, err) }()

	unlock, err := s.locks.Lock(ctx, ids...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		completed []completion
		failed    []BatchFailure
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, u uow.UnitOfWork) error {
		completed, failed = nil, nil // reset when the transaction is retried

		store, err := loadStore(ctx, u, storeID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			itemCtx := logging.WithAttrs(ctx, "reservation_id", id)
			var done completion
			spErr := u.Savepoint(itemCtx, func(ctx context.Context) error {
				var err error
				done, err = s.completeOne(ctx, u, store, id)
				return err
			})
			if spErr != nil {
				spErr = s.classify(itemCtx, spErr)
				logging.L(itemCtx).Warn("batch item failed", "error", spErr)
				recordCompletion(done.outcome.Route, failureOutcome(spErr))
				failed = append(failed, BatchFailure{ReservationID: id, Error: spErr.Error()})
				continue
			}
			completed = append(completed, done)
		}
		return nil
	})
	if err != nil {
		err = s.classify(ctx, err)
		return nil, err
	}

	result := &BatchResult{
		Completed:      make([]*reservation.Reservation, 0, len(completed)),
		RequestedCount: len(reservationIDs),
		Failed:         failed,
	}
	for _, done := range completed {
		result.Completed = append(result.Completed, done.reservation)
		recordSuccess(done.outcome)
		s.notify(logging.WithAttrs(ctx, "reservation_id", done.reservation.ID), done.event)
	}
	result.CompletedCount = len(result.Completed)
	BatchItemsTotal.WithLabelValues("completed").Add(float64(len(completed)))
	BatchItemsTotal.WithLabelValues("failed").Add(float64(len(failed)))

	logging.L(ctx).Info("batch completed",
		"requested", result.RequestedCount, "completed", result.CompletedCount, "failed", len(failed))
	return result, nil
}

// completeOne checks preconditions and runs the orchestrator for one
// reservation inside u.
func (s *Service) completeOne(ctx context.Context, u uow.UnitOfWork, store *shop.Store, reservationID string) (completion, error) {
	r, err := u.Reservations().GetForUpdate(ctx, store.ID, reservationID)
	if errors.Is(err, reservation.ErrNotFound) {
		return completion{}, ErrReservationNotFound
	}
	if err != nil {
		return completion{}, err
	}
	if !r.Status.Completable() {
		return completion{}, fmt.Errorf("%w: %s", ErrInvalidStatus, r.Status)
	}
	if err := attachOrder(ctx, u, r); err != nil {
		return completion{}, err
	}

	prior := r.Status
	out, outcome, err := s.orch.Complete(ctx, u, CompleteRequest{
		ReservationID: r.ID,
		StoreID:       store.ID,
		PriorStatus:   prior,
		Reservation:   r,
		Config:        store.Settlement,
	})
	if err != nil {
		return completion{outcome: outcome}, err
	}
	return completion{reservation: out, event: completedEvent(out, prior), outcome: outcome}, nil
}

func loadStore(ctx context.Context, u uow.UnitOfWork, storeID string) (*shop.Store, error) {
	store, err := u.Shops().GetStore(ctx, storeID)
	if errors.Is(err, shop.ErrStoreNotFound) {
		return nil, ErrStoreNotFound
	}
	return store, err
}

// classify hides storage detail of persistence conflicts behind
// ErrCompletionFailed. Other errors pass through.
func (s *Service) classify(ctx context.Context, err error) error {
	if dbx.IsConflict(err) || dbx.IsRetryable(err) {
		logging.L(ctx).Error("completion conflict", "error", err, "sqlstate", dbx.Code(err))
		return ErrCompletionFailed
	}
	return err
}

func failureOutcome(err error) string {
	if errors.Is(err, ErrInsufficientBalance) {
		return outcomeInsufficient
	}
	return outcomeFailed
}

func (s *Service) notify(ctx context.Context, ev *notify.Event) {
	if s.notifier == nil || ev == nil {
		return
	}
	s.notifier.Dispatch(ctx, ev)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func completedEvent(r *reservation.Reservation, prior reservation.Status) *notify.Event {
	ev := &notify.Event{
		Type:           notify.EventCompleted,
		StoreID:        r.StoreID,
		ReservationID:  r.ID,
		CustomerID:     r.CustomerID,
		PreviousStatus: string(prior),
		NewStatus:      string(r.Status),
		StaffName:      r.StaffName,
	}
	if r.Customer != nil {
		ev.CustomerName = r.Customer.Name
		ev.CustomerEmail = r.Customer.Email
		ev.CustomerPhone = r.Customer.Phone
	}
	if r.Facility != nil {
		ev.FacilityName = r.Facility.Name
	}
	return ev
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// --- ledger inquiry ---

// ChainBreak locates the first entry violating the running balance.
type ChainBreak struct {
	Index   int    `json:"index"`
	EntryID string `json:"entryId"`
	Want    string `json:"want"`
	Got     string `json:"got"`
}

// VerifyReport is the result of VerifyStoreLedger.
type VerifyReport struct {
	StoreID string      `json:"storeId"`
	Checked int         `json:"checked"`
	Valid   bool        `json:"valid"`
	Break   *ChainBreak `json:"break,omitempty"`
}

// StoreLedger returns one newest-first page of a store's revenue ledger.
// cursor is empty for the first page, else a NextCursor from a prior page.
func (s *Service) StoreLedger(ctx context.Context, storeID, cursor string, limit int) (pagination.Page[*ledger.StoreEntry], error) {
	after, err := pagination.Decode(cursor)
	if err != nil {
		return pagination.Page[*ledger.StoreEntry]{}, err
	}
	limit = ledger.ClampLimit(limit)

	var entries []*ledger.StoreEntry
	err = s.tx.WithinTx(ctx, func(ctx context.Context, u uow.UnitOfWork) error {
		if _, err := loadStore(ctx, u, storeID); err != nil {
			return err
		}
		var err error
		entries, err = u.StoreLedger().ListBefore(ctx, storeID, cursorID(after), limit+1)
		return err
	})
	if err != nil {
		return pagination.Page[*ledger.StoreEntry]{}, err
	}
	return pagination.ComputePage(entries, limit, func(e *ledger.StoreEntry) (time.Time, string) {
		return e.CreatedAt, e.ID
	}), nil
}

// VerifyStoreLedger checks the running-balance chain over the newest limit
// entries of a store's revenue ledger.
func (s *Service) VerifyStoreLedger(ctx context.Context, storeID string, limit int) (*VerifyReport, error) {
	var entries []*ledger.StoreEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context, u uow.UnitOfWork) error {
		if _, err := loadStore(ctx, u, storeID); err != nil {
			return err
		}
		var err error
		entries, err = u.StoreLedger().List(ctx, storeID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{StoreID: storeID, Checked: len(entries), Valid: true}
	var ce *ledger.ChainError
	if err := ledger.VerifyStoreWindow(ledger.Chronological(entries)); errors.As(err, &ce) {
		report.Valid = false
		report.Break = &ChainBreak{Index: ce.Index, EntryID: ce.EntryID, Want: ce.Want.String(), Got: ce.Got.String()}
		logging.L(ctx).Error("store ledger chain broken", "store_id", storeID, "entry_id", ce.EntryID)
	}
	return report, nil
}

// CustomerLedger returns one newest-first page of a customer's book.
func (s *Service) CustomerLedger(ctx context.Context, storeID, customerID string, book ledger.Book, cursor string, limit int) (pagination.Page[*ledger.CustomerEntry], error) {
	after, err := pagination.Decode(cursor)
	if err != nil {
		return pagination.Page[*ledger.CustomerEntry]{}, err
	}
	limit = ledger.ClampLimit(limit)

	scope := ledger.CustomerScope{StoreID: storeID, CustomerID: customerID}
	var entries []*ledger.CustomerEntry
	err = s.tx.WithinTx(ctx, func(ctx context.Context, u uow.UnitOfWork) error {
		if _, err := loadStore(ctx, u, storeID); err != nil {
			return err
		}
		l := u.CreditLedger()
		if book == ledger.BookFiat {
			l = u.FiatLedger()
		}
		var err error
		entries, err = l.ListBefore(ctx, scope, cursorID(after), limit+1)
		return err
	})
	if err != nil {
		return pagination.Page[*ledger.CustomerEntry]{}, err
	}
	return pagination.ComputePage(entries, limit, func(e *ledger.CustomerEntry) (time.Time, string) {
		return e.CreatedAt, e.ID
	}), nil
}

func cursorID(c *pagination.Cursor) string {
	if c == nil {
		return ""
	}
	return c.ID
}

// Balance is a customer's current point balance.
type Balance struct {
	StoreID    string `json:"storeId"`
	CustomerID string `json:"customerId"`
	Points     string `json:"points"`
}

// CustomerBalance returns a customer's current point balance.
func (s *Service) CustomerBalance(ctx context.Context, storeID, customerID string) (*Balance, error) {
	var out *Balance
	err := s.tx.WithinTx(ctx, func(ctx context.Context, u uow.UnitOfWork) error {
		if _, err := loadStore(ctx, u, storeID); err != nil {
			return err
		}
		points, err := u.Balances().Get(ctx, ledger.CustomerScope{StoreID: storeID, CustomerID: customerID})
		if err != nil {
			return err
		}
		out = &Balance{StoreID: storeID, CustomerID: customerID, Points: points.String()}
		return nil
	})
	return out, err
}
