package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/invoicing/internal/infrastructure/resilience"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBreaker struct {
	name  string
	state string
}

func (b stubBreaker) Name() string  { return b.name }
func (b stubBreaker) State() string { return b.state }

func healthRouter(h *HealthHandler) *gin.Engine {
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/ping", h.Ping)
	return r
}

func okCheck(name string) HealthCheck {
	return HealthCheck{Name: name, Check: func(ctx context.Context) error { return nil }}
}

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		breakers   []BreakerStatus
		wantCode   int
		wantStatus string
	}{
		{
			name:       "all up",
			checks:     []HealthCheck{okCheck("database"), okCheck("redis")},
			breakers:   []BreakerStatus{stubBreaker{"client-registry", resilience.StateClosed}},
			wantCode:   http.StatusOK,
			wantStatus: HealthUp,
		},
		{
			name:   "open breaker degrades",
			checks: []HealthCheck{okCheck("database")},
			breakers: []BreakerStatus{
				stubBreaker{"client-registry", resilience.StateClosed},
				stubBreaker{"tax-service", resilience.StateOpen},
			},
			wantCode:   http.StatusOK,
			wantStatus: HealthDegraded,
		},
		{
			name: "failing check is down",
			checks: []HealthCheck{
				okCheck("redis"),
				{Name: "database", Check: func(ctx context.Context) error { return errors.New("connection refused") }},
			},
			breakers:   []BreakerStatus{stubBreaker{"tax-service", resilience.StateOpen}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: HealthDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("1.2.3", tt.checks, tt.breakers...)

			w := httptest.NewRecorder()
			healthRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			body := decode[HealthResponse](t, w)
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, "1.2.3", body.Version)
			assert.NotEmpty(t, body.GoVersion)
			assert.Len(t, body.Components, len(tt.checks))
			assert.Len(t, body.Breakers, len(tt.breakers))
		})
	}
}

func TestHealthHandler_Health_ReportsComponentErrors(t *testing.T) {
	h := NewHealthHandler("dev", []HealthCheck{
		{Name: "database", Check: func(ctx context.Context) error { return errors.New("dial tcp: i/o timeout") }},
	}, stubBreaker{"tax-service", resilience.StateHalfOpen})

	w := httptest.NewRecorder()
	healthRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	body := decode[HealthResponse](t, w)
	require.Contains(t, body.Components, "database")
	assert.Equal(t, HealthDown, body.Components["database"].Status)
	assert.Equal(t, "dial tcp: i/o timeout", body.Components["database"].Error)
	assert.Equal(t, resilience.StateHalfOpen, body.Breakers["tax-service"])
}

func TestHealthHandler_Health_ChecksGetDeadline(t *testing.T) {
	var hadDeadline bool
	h := NewHealthHandler("dev", []HealthCheck{{Name: "database", Check: func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}}})

	w := httptest.NewRecorder()
	healthRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, hadDeadline)
}

func TestHealthHandler_Ping(t *testing.T) {
	h := NewHealthHandler("dev", nil)

	w := httptest.NewRecorder()
	healthRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "pong", body["message"])
	assert.NotEmpty(t, body["timestamp"])
}
