package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// meteredEngine wires HTTPMetricsWithMeter outside FailureTranslator the way
// NewEngine does, and returns a reader over what it records.
func meteredEngine(t *testing.T) (*gin.Engine, func() map[string]metricdata.Metrics) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	engine := gin.New()
	engine.Use(HTTPMetricsWithMeter(mp.Meter("http.server")))
	engine.Use(FailureTranslator(zap.NewNop()))

	collect := func() map[string]metricdata.Metrics {
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))
		out := make(map[string]metricdata.Metrics)
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				out[m.Name] = m
			}
		}
		return out
	}
	return engine, collect
}

func sumBy(t *testing.T, m metricdata.Metrics, key attribute.Key) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(key)
		out[v.Emit()] += dp.Value
	}
	return out
}

func TestHTTPMetrics_Disabled(t *testing.T) {
	for _, cfg := range []HTTPMetricsConfig{{Enabled: false}, {Enabled: true}} {
		w := serveWith(HTTPMetrics(cfg), http.MethodGet, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestHTTPMetricsWithMeter_RecordsByRouteStatusAndLabel(t *testing.T) {
	engine, collect := meteredEngine(t)
	engine.GET("/api/v1/invoices/:id", func(c *gin.Context) {
		if c.Param("id") == "missing" {
			_ = c.Error(shared.ErrNotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})

	for _, id := range []string{"a", "b", "missing"} {
		engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/invoices/"+id, nil))
	}
	metrics := collect()

	assert.Equal(t, map[string]int64{"200": 2, "404": 1},
		sumBy(t, metrics["http_server_request_total"], telemetry.AttrHTTPStatus))
	assert.Equal(t, map[string]int64{dto.LabelNotFound: 1},
		sumBy(t, metrics["http_server_failure_total"], telemetry.AttrErrorLabel))
	inFlight, ok := metrics["http_server_active_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, inFlight.DataPoints, 1)
	assert.Zero(t, inFlight.DataPoints[0].Value)

	hist, ok := metrics["http_server_request_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(3), hist.DataPoints[0].Count)
}

func TestHTTPMetricsWithMeter_UnmatchedRoute(t *testing.T) {
	engine, collect := meteredEngine(t)

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere/123", nil))

	assert.Equal(t, map[string]int64{"unmatched": 1},
		sumBy(t, collect()["http_server_request_total"], telemetry.AttrHTTPRoute))
}
