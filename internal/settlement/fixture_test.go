package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tidewell/storeops/internal/ledger"
	"github.com/tidewell/storeops/internal/notify"
	"github.com/tidewell/storeops/internal/reservation"
	"github.com/tidewell/storeops/internal/shop"
	"github.com/tidewell/storeops/internal/uow"
)

const (
	testStore    = "st_1"
	testCustomer = "cus_1"
	testFacility = "fac_1"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*notify.Event
}

func (n *recordingNotifier) Dispatch(ctx context.Context, ev *notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) Events() []*notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*notify.Event(nil), n.events...)
}

// fixture is a store with a takeout shipping method, credit and creditPoint
// payment methods, one 60-minute facility and one customer. Credit rate is
// 0.5 cash per point and the service rate 30 minutes per point.
type fixture struct {
	t        *testing.T
	ctx      context.Context
	tx       *uow.MemoryManager
	stores   uow.MemoryStores
	writer   *ledger.Writer
	orch     *Orchestrator
	svc      *Service
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores := uow.NewMemoryStores()
	stores.Shops.PutStore(&shop.Store{
		ID:   testStore,
		Name: "Riverside Courts",
		Settlement: shop.SettlementConfig{
			CreditExchangeRate:        dec("0.5"),
			CreditServiceExchangeRate: dec("30"),
			DefaultCurrency:           "TWD",
			UseCustomerCredit:         true,
		},
	})
	stores.Shops.AddShippingMethod(&shop.ShippingMethod{ID: "shp_1", StoreID: testStore, Identifier: shop.ShippingTakeout, Name: "Takeout"})
	stores.Shops.AddPaymentMethod(&shop.PaymentMethod{ID: "pay_credit", StoreID: testStore, Identifier: shop.PaymentCredit, Name: "Credit"})
	stores.Shops.AddPaymentMethod(&shop.PaymentMethod{ID: "pay_points", StoreID: testStore, Identifier: shop.PaymentCreditPoint, Name: "Points"})
	stores.Reservations.PutFacility(&reservation.Facility{ID: testFacility, Name: "Court 1", DefaultDurationMinutes: 60})
	stores.Reservations.PutCustomer(&reservation.Customer{ID: testCustomer, Name: "Mei Lin", Email: "mei@example.com"})

	writer := ledger.NewWriter()
	orch := NewOrchestrator(writer, "")
	tx := uow.NewMemoryManager(stores)
	notifier := &recordingNotifier{}
	return &fixture{
		t:        t,
		ctx:      context.Background(),
		tx:       tx,
		stores:   stores,
		writer:   writer,
		orch:     orch,
		svc:      NewService(tx, orch).WithNotifier(notifier),
		notifier: notifier,
	}
}

// reservation creates a 60-minute Ready reservation at the test facility.
func (f *fixture) reservation(id, customerID string, mutate ...func(*reservation.Reservation)) {
	f.t.Helper()
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	r := &reservation.Reservation{
		ID:         id,
		StoreID:    testStore,
		CustomerID: customerID,
		FacilityID: testFacility,
		Status:     reservation.StatusReady,
		StartsAt:   start,
		EndsAt:     &end,
		StaffName:  "Alex",
	}
	for _, m := range mutate {
		m(r)
	}
	require.NoError(f.t, f.stores.Reservations.Create(f.ctx, r))
}

func paidWith(orderID string) func(*reservation.Reservation) {
	return func(r *reservation.Reservation) {
		r.AlreadyPaid = true
		r.OrderID = orderID
	}
}

func (f *fixture) order(id, paymentIdentifier string) {
	f.stores.Shops.PutOrder(&shop.Order{
		ID:                      id,
		StoreID:                 testStore,
		CustomerID:              testCustomer,
		PaymentMethodIdentifier: paymentIdentifier,
		Currency:                "twd",
		Total:                   dec("10"),
	})
}

// topUp credits points to both the balance table and the credit book.
func (f *fixture) topUp(customerID, points string) {
	f.t.Helper()
	scope := ledger.CustomerScope{StoreID: testStore, CustomerID: customerID}
	_, err := f.stores.Ledger.Balances().Adjust(f.ctx, scope, dec(points))
	require.NoError(f.t, err)
	require.NoError(f.t, f.writer.AppendCustomer(f.ctx, f.stores.Ledger.CreditLedger(), &ledger.CustomerEntry{
		StoreID: testStore, CustomerID: customerID, Amount: dec(points), Type: ledger.TypeTopup,
	}))
}

// hold places a HOLD of amount against orderID in l.
func (f *fixture) hold(l ledger.CustomerLedger, orderID, amount string) *ledger.CustomerEntry {
	f.t.Helper()
	e := &ledger.CustomerEntry{
		StoreID: testStore, CustomerID: testCustomer, Amount: dec(amount), Type: ledger.TypeHold, ReferenceID: orderID,
	}
	require.NoError(f.t, f.writer.AppendCustomer(f.ctx, l, e))
	return e
}

func (f *fixture) storeRevenue(amount string) {
	f.t.Helper()
	require.NoError(f.t, f.writer.AppendStore(f.ctx, f.stores.Ledger.StoreLedger(), &ledger.StoreEntry{
		StoreID: testStore, OrderID: "ord_seed", Amount: dec(amount), Currency: "twd", Type: ledger.StoreRevenue,
	}))
}

func (f *fixture) get(id string) *reservation.Reservation {
	f.t.Helper()
	r, err := f.stores.Reservations.Get(f.ctx, testStore, id)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) balance(customerID string) decimal.Decimal {
	f.t.Helper()
	b, err := f.stores.Ledger.Balances().Get(f.ctx, ledger.CustomerScope{StoreID: testStore, CustomerID: customerID})
	require.NoError(f.t, err)
	return b
}

func (f *fixture) creditEntries(customerID string) []*ledger.CustomerEntry {
	f.t.Helper()
	entries, err := f.stores.Ledger.CreditLedger().List(f.ctx, ledger.CustomerScope{StoreID: testStore, CustomerID: customerID}, 0)
	require.NoError(f.t, err)
	return entries
}

func (f *fixture) storeEntries() []*ledger.StoreEntry {
	f.t.Helper()
	entries, err := f.stores.Ledger.StoreLedger().List(f.ctx, testStore, 0)
	require.NoError(f.t, err)
	return entries
}

// complete runs the orchestrator for id in its own unit of work, the way
// the service does after its precondition checks.
func (f *fixture) complete(id string, prior reservation.Status) (*reservation.Reservation, Outcome, error) {
	f.t.Helper()
	var (
		out     *reservation.Reservation
		outcome Outcome
	)
	err := f.tx.WithinTx(f.ctx, func(ctx context.Context, u uow.UnitOfWork) error {
		r, err := u.Reservations().GetForUpdate(ctx, testStore, id)
		if err != nil {
			return err
		}
		if err := attachOrder(ctx, u, r); err != nil {
			return err
		}
		store, err := u.Shops().GetStore(ctx, testStore)
		if err != nil {
			return err
		}
		out, outcome, err = f.orch.Complete(ctx, u, CompleteRequest{
			ReservationID: id,
			StoreID:       testStore,
			PriorStatus:   prior,
			Reservation:   r,
			Config:        store.Settlement,
		})
		return err
	})
	return out, outcome, err
}
