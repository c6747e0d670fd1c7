package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/cache"
	"github.com/erp/invoicing/internal/infrastructure/clientregistry"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/event"
	"github.com/erp/invoicing/internal/infrastructure/persistence"
	"github.com/erp/invoicing/internal/infrastructure/resilience"
	"github.com/erp/invoicing/internal/infrastructure/taxservice"
	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/erp/invoicing/internal/interfaces/http/handler"
	"github.com/erp/invoicing/internal/interfaces/http/middleware"
	"github.com/erp/invoicing/internal/interfaces/http/router"
	"github.com/erp/invoicing/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "invoicing-test:"

// apiStack is the invoicing service wired the way cmd/server wires it, with
// fake remote services in front of real PostgreSQL and Redis.
type apiStack struct {
	engine   *gin.Engine
	registry *testutil.FakeClientRegistry
	taxes    *testutil.FakeTaxService
	redis    *TestRedis
	issued   *testutil.EventRecorder
}

func newAPIStack(t *testing.T) *apiStack {
	t.Helper()

	tdb := NewTestDB(t)
	rdb := NewTestRedis(t)
	registry := testutil.NewFakeClientRegistry(t, map[int64]bool{7: true, 8: false})
	taxes := testutil.NewFakeTaxService(t, map[string]string{"IVA19": "0.19", "IVA5": "0.05"})
	log := zap.NewNop()
	ctx := context.Background()

	factory := cache.NewFactory(ctx, config.RedisConfig{}, config.CacheConfig{RedisEnabled: true, KeyPrefix: cacheKeyPrefix},
		cache.WithRedisClient(rdb.Client), cache.WithLogger(log))

	registryBreaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:                clientregistry.DependencyName,
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Minute,
	}, resilience.WithBreakerLogger(log))
	registryExec := resilience.NewExecutor(registryBreaker,
		resilience.WithTimeout[invoicing.ClientLookup](300*time.Millisecond),
		resilience.WithCache[invoicing.ClientLookup](cache.New[invoicing.ClientLookup](factory, "clients", 100, time.Hour)),
		resilience.WithLogger[invoicing.ClientLookup](log),
	)
	clientGate := clientregistry.NewGate(clientregistry.NewHTTPClient(registry.URL()), registryExec, log)

	taxBreaker := resilience.NewBreaker(resilience.DefaultBreakerConfig(taxservice.DependencyName),
		resilience.WithBreakerLogger(log))
	taxExec := resilience.NewExecutor(taxBreaker,
		resilience.WithTimeout[[]invoicing.TaxQuote](300*time.Millisecond),
		resilience.WithLogger[[]invoicing.TaxQuote](log),
	)
	taxGate := taxservice.NewGate(taxservice.NewHTTPClient(taxes.URL()), taxExec,
		cache.New[invoicing.TaxQuote](factory, "tax-quotes", 100, time.Hour))

	issued := testutil.NewEventRecorder(invoicing.EventTypeInvoiceIssued)
	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(issued, invoicing.EventTypeInvoiceIssued)
	require.NoError(t, bus.Start(ctx))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	service := appinvoicing.NewInvoiceService(clientGate, taxGate, persistence.NewGormInvoiceRepository(tdb.DB),
		appinvoicing.WithEventPublisher(bus),
		appinvoicing.WithLogger(log),
	)

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName: "invoicing-integration",
		MaxBodySize: 1 << 20,
		CORS:        middleware.DefaultCORSConfig(),
		Security:    middleware.DefaultSecurityConfig(),
	}, log)
	require.NoError(t, err)

	router.RegisterHealthRoutes(engine, handler.NewHealthHandler("test", []handler.HealthCheck{
		{Name: "database", Check: func(ctx context.Context) error { return tdb.SqlDB.PingContext(ctx) }},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Client.Ping(ctx).Err() }},
	}, registryBreaker, taxBreaker))
	router.NewRouter(engine).Register(router.NewInvoicingRoutes(handler.NewInvoiceHandler(service))...).Setup()

	return &apiStack{engine: engine, registry: registry, taxes: taxes, redis: rdb, issued: issued}
}

func (s *apiStack) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.Request(t, s.engine, method, path, body, headers...)
}

func createRequest(clientID int64, items ...map[string]any) map[string]any {
	return map[string]any{"client_id": clientID, "items": items}
}

func item(desc string, qty int, price, taxCode string) map[string]any {
	return map[string]any{"description": desc, "quantity": qty, "unit_price": price, "tax_code": taxCode}
}

func TestInvoiceAPI_EndToEnd(t *testing.T) {
	s := newAPIStack(t)
	ctx := context.Background()
	order := createRequest(7, item("Laptop", 1, "2000", "IVA19"), item("Mouse", 3, "25.50", "IVA19"))

	var created appinvoicing.InvoiceResponse

	t.Run("create prices items remotely and issues the invoice", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/invoices", order, middleware.IdempotencyHeader, "order-991")

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		created = testutil.DecodeData[appinvoicing.InvoiceResponse](t, w)
		assert.Equal(t, "ISSUED", created.Status)
		assert.Regexp(t, `^FACT-K-[0-9A-F]{20}$`, created.Number)
		assert.True(t, decimal.RequireFromString("2471.04").Equal(created.GrandTotal), created.GrandTotal.String())
		assert.Equal(t, int64(1), s.taxes.Calls())
		assert.True(t, s.issued.WaitFor(t, 1, time.Second))
	})

	t.Run("replaying the idempotency key returns the same invoice", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/invoices", order, middleware.IdempotencyHeader, "order-991")

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		replayed := testutil.DecodeData[appinvoicing.InvoiceResponse](t, w)
		assert.Equal(t, created.ID, replayed.ID)
		assert.Equal(t, created.Number, replayed.Number)

		w = s.do(t, http.MethodGet, "/api/v1/clients/7/invoices", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var list struct {
			Meta dto.Meta `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		assert.Equal(t, int64(1), list.Meta.Total)
	})

	t.Run("reusing the key for other items is rejected", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/invoices", createRequest(7, item("Laptop", 2, "2000", "IVA19")),
			middleware.IdempotencyHeader, "order-991")

		testutil.AssertFailure(t, w, http.StatusConflict, dto.LabelConflict)
	})

	t.Run("repeated signatures are served from the shared quote cache", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/invoices", order)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, int64(1), s.taxes.Calls())

		keys, err := s.redis.Client.Keys(ctx, cacheKeyPrefix+"tax-quotes:*").Result()
		require.NoError(t, err)
		assert.Len(t, keys, 2)
	})

	t.Run("client gate rejections", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/invoices", createRequest(8, item("Desk", 1, "300", "IVA5")))
		testutil.AssertFailure(t, w, http.StatusConflict, dto.LabelClientNotActive)

		w = s.do(t, http.MethodPost, "/api/v1/invoices", createRequest(99, item("Desk", 1, "300", "IVA5")))
		testutil.AssertFailure(t, w, http.StatusNotFound, dto.LabelClientNotFound)
	})

	t.Run("slow tax service answers gateway timeout", func(t *testing.T) {
		s.taxes.SetDelay(time.Second)
		defer s.taxes.SetDelay(0)

		w := s.do(t, http.MethodPost, "/api/v1/invoices", createRequest(7, item("Chair", 2, "150", "IVA5")))

		env := testutil.AssertFailure(t, w, http.StatusGatewayTimeout, dto.LabelGatewayTimeout)
		assert.Contains(t, env.Message, taxservice.DependencyName)
	})

	t.Run("void then read back", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/invoices/"+created.ID.String()+"/void",
			map[string]string{"reason": "Customer returned the goods"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(t, http.MethodGet, "/api/v1/invoices/number/"+created.Number, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		voided := testutil.DecodeData[appinvoicing.InvoiceResponse](t, w)
		assert.Equal(t, "VOIDED", voided.Status)
		assert.Equal(t, "Customer returned the goods", voided.VoidReason)

		w = s.do(t, http.MethodPost, "/api/v1/invoices/"+created.ID.String()+"/void",
			map[string]string{"reason": "Again"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("open registry breaker falls back to cached client status", func(t *testing.T) {
		s.registry.FailWith(http.StatusInternalServerError)
		defer s.registry.FailWith(0)

		for i := 0; i < 2; i++ {
			w := s.do(t, http.MethodPost, "/api/v1/invoices", order)
			testutil.AssertFailure(t, w, http.StatusServiceUnavailable, dto.LabelServiceUnavailable)
		}

		calls := s.registry.Calls()
		w := s.do(t, http.MethodPost, "/api/v1/invoices", order)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, calls, s.registry.Calls())

		w = s.do(t, http.MethodPost, "/api/v1/invoices", createRequest(12, item("Desk", 1, "300", "IVA5")))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		w = s.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var health handler.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
		assert.Equal(t, handler.HealthDegraded, health.Status)
		assert.Equal(t, resilience.StateOpen, health.Breakers[clientregistry.DependencyName])
		assert.Equal(t, resilience.StateClosed, health.Breakers[taxservice.DependencyName])
		assert.Equal(t, handler.HealthUp, health.Components["database"].Status)
		assert.Equal(t, handler.HealthUp, health.Components["redis"].Status)
	})
}
