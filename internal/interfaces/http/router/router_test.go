package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/erp/invoicing/internal/interfaces/http/handler"
	"github.com/erp/invoicing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouter_Setup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.APIVersion())

	r.Register(NewResourceGroup("/invoices").GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	}))
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/invoices/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestRouterSetup_UnknownRouteIsTranslated(t *testing.T) {
	engine := gin.New()
	engine.Use(middleware.FailureTranslator(zap.NewNop()))
	NewRouter(engine).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/shipments/1", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var env dto.ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, dto.LabelServiceNotFound, env.Error)
	assert.Equal(t, dto.MessageRouteLookup, env.Message)
	assert.Equal(t, "/api/v1/shipments/1", env.Path)
}

func TestResourceGroup(t *testing.T) {
	echo := func(c *gin.Context) { c.String(http.StatusOK, c.Request.Method+" "+c.Param("id")) }

	engine := gin.New()
	g := NewResourceGroup("/invoices").Use(func(c *gin.Context) {
		c.Header("X-Group", "invoices")
		c.Next()
	})
	g.GET("/:id", echo).POST("/:id/void", echo).DELETE("/:id", echo).Handle(http.MethodPatch, "/:id", echo)
	g.Child("/drafts").GET("/:id", echo)
	g.RegisterRoutes(engine.Group("/api/v1"))

	for _, tc := range []struct{ method, path, want string }{
		{http.MethodGet, "/api/v1/invoices/42", "GET 42"},
		{http.MethodPost, "/api/v1/invoices/42/void", "POST 42"},
		{http.MethodDelete, "/api/v1/invoices/42", "DELETE 42"},
		{http.MethodPatch, "/api/v1/invoices/42", "PATCH 42"},
		{http.MethodGet, "/api/v1/invoices/drafts/7", "GET 7"},
	} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusOK, w.Code, tc.path)
		assert.Equal(t, tc.want, w.Body.String())
		assert.Equal(t, "invoices", w.Header().Get("X-Group"))
	}

	routes := g.Routes()
	require.Len(t, routes, 5)
	assert.Equal(t, Route{Method: http.MethodGet, Path: "/invoices/drafts/:id"}, routes[4])
}

func TestNewInvoicingRoutes(t *testing.T) {
	engine := gin.New()
	svc := appinvoicing.NewInvoiceService(nil, nil, nil)
	NewRouter(engine).Register(NewInvoicingRoutes(handler.NewInvoiceHandler(svc))...).Setup()

	registered := map[string]bool{}
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"POST /api/v1/invoices",
		"GET /api/v1/invoices",
		"GET /api/v1/invoices/number/:number",
		"GET /api/v1/invoices/:id",
		"POST /api/v1/invoices/:id/issue",
		"POST /api/v1/invoices/:id/void",
		"DELETE /api/v1/invoices/:id",
		"GET /api/v1/clients/:client_id/invoices",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestRegisterHealthRoutes(t *testing.T) {
	engine := gin.New()
	RegisterHealthRoutes(engine, handler.NewHealthHandler("test", nil))

	for _, path := range []string{"/health", "/ping"} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(EngineConfig{
		ServiceName: "invoicing-test",
		MaxBodySize: 64,
		CORS:        middleware.DefaultCORSConfig(),
		Security:    middleware.DefaultSecurityConfig(),
		RateLimiter: middleware.NewRateLimiter(1, 2, 100, time.Minute),
	}, zap.NewNop())
	require.NoError(t, err)

	engine.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			_ = c.Error(middleware.BindingError(err))
			return
		}
		c.JSON(http.StatusOK, body)
	})
	engine.GET("/fail", func(c *gin.Context) {
		_ = c.Error(shared.ErrNotFound)
	})
	NewRouter(engine).Setup()

	t.Run("sets request id and security headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":1}`)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	})

	t.Run("oversized body is rendered by the translator", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":"`+strings.Repeat("x", 100)+`"}`)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		var env dto.ErrorEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		assert.Equal(t, http.StatusRequestEntityTooLarge, env.Status)
	})

	t.Run("rate limit rejects with an envelope", func(t *testing.T) {
		var last *httptest.ResponseRecorder
		for i := 0; i < 5; i++ {
			last = httptest.NewRecorder()
			engine.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/fail", nil))
		}
		assert.Equal(t, http.StatusTooManyRequests, last.Code)
		assert.NotEmpty(t, last.Header().Get("Retry-After"))
	})
}
