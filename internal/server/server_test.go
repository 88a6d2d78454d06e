package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidewell/storeops/internal/config"
	"github.com/tidewell/storeops/internal/health"
	"github.com/tidewell/storeops/internal/ledger"
	"github.com/tidewell/storeops/internal/reservation"
	"github.com/tidewell/storeops/internal/shop"
	"github.com/tidewell/storeops/internal/uow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:                  "0",
		Env:                   "test",
		LogLevel:              "error",
		LogFormat:             "text",
		NotifyChannel:         "storeops:test",
		DefaultCurrency:       "twd",
		CompletionMaxAttempts: 1,
		CompletionRetryDelay:  time.Millisecond,
		CompletionTimeout:     5 * time.Second,
		RateLimitRPM:          6000,
	}
}

// seededStores holds one store with a Ready reservation and a customer
// with 5 credit points.
func seededStores(t *testing.T) uow.MemoryStores {
	t.Helper()
	ctx := context.Background()
	stores := uow.NewMemoryStores()
	stores.Shops.PutStore(&shop.Store{
		ID:   "st_1",
		Name: "Riverside Courts",
		Settlement: shop.SettlementConfig{
			CreditExchangeRate:        decimal.RequireFromString("0.5"),
			CreditServiceExchangeRate: decimal.RequireFromString("30"),
			DefaultCurrency:           "TWD",
			UseCustomerCredit:         true,
		},
	})
	stores.Shops.AddShippingMethod(&shop.ShippingMethod{ID: "shp_1", StoreID: "st_1", Identifier: shop.ShippingTakeout, Name: "Takeout"})
	stores.Shops.AddPaymentMethod(&shop.PaymentMethod{ID: "pay_credit", StoreID: "st_1", Identifier: shop.PaymentCredit, Name: "Credit"})
	stores.Reservations.PutFacility(&reservation.Facility{ID: "fac_1", Name: "Court 1", DefaultDurationMinutes: 60})
	stores.Reservations.PutCustomer(&reservation.Customer{ID: "cus_1", Name: "Mei Lin"})

	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	require.NoError(t, stores.Reservations.Create(ctx, &reservation.Reservation{
		ID: "res_1", StoreID: "st_1", CustomerID: "cus_1", FacilityID: "fac_1",
		Status: reservation.StatusReady, StartsAt: start, EndsAt: &end,
	}))

	scope := ledger.CustomerScope{StoreID: "st_1", CustomerID: "cus_1"}
	_, err := stores.Ledger.Balances().Adjust(ctx, scope, decimal.NewFromInt(5))
	require.NoError(t, err)
	require.NoError(t, ledger.NewWriter().AppendCustomer(ctx, stores.Ledger.CreditLedger(), &ledger.CustomerEntry{
		StoreID: "st_1", CustomerID: "cus_1", Amount: decimal.NewFromInt(5), Type: ledger.TypeTopup,
	}))
	return stores
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.rateLimiter.Stop() })
	return s
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := serve(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, Version, resp.Version)
	assert.Empty(t, resp.Checks)

	w = serve(s, http.MethodGet, "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")

	// Not ready until Run marks it
	w = serve(s, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.ready.Store(true)
	w = serve(s, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthDegraded(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.health.Register("broken", func(ctx context.Context) health.Status {
		return health.Status{Name: "broken", Detail: "down"}
	})

	w := serve(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := serve(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "storeops_")
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := serve(s, http.MethodGet, "/health/live")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-from-lb")
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "req-from-lb", w.Header().Get("X-Request-ID"))
}

func TestCompleteReservationThroughServer(t *testing.T) {
	stores := seededStores(t)
	s := newTestServer(t, testConfig(), WithUnitOfWork(uow.NewMemoryManager(stores)))

	w := serve(s, http.MethodPost, "/v1/stores/st_1/reservations/res_1/complete")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	res := resp["reservation"].(map[string]any)
	assert.Equal(t, string(reservation.StatusCompleted), res["status"])

	w = serve(s, http.MethodGet, "/v1/stores/st_1/customers/cus_1/balance")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"points":"3"`)

	w = serve(s, http.MethodGet, "/v1/stores/st_1/ledger/verify")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":true`)

	require.NoError(t, s.dispatcher.Wait(context.Background()))
}

func TestInvalidPathID(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := serve(s, http.MethodPost, "/v1/stores/st_1/reservations/res%3B1/complete")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_reservationId")
}

func TestRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPM = 6
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/health/live").Code)
	w := serve(s, http.MethodGet, "/health/live")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestNewRejectsBadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "not a url"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://app:***@db:5432/storeops", maskDSN("postgres://app:secret@db:5432/storeops"))
	assert.Equal(t, "postgres://db/storeops", maskDSN("postgres://db/storeops"))
}
