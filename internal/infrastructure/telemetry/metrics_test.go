package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func newTestMeter(t *testing.T) (metric.Meter, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp.Meter("test"), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %s not recorded", name)
	return metricdata.Metrics{}
}

// sumWhere adds the data points of an int64 sum whose attributes contain match
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name string, match ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := findMetric(t, rm, name).Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", name)

	var total int64
	for _, dp := range sum.DataPoints {
		matched := true
		for _, kv := range match {
			v, found := dp.Attributes.Value(kv.Key)
			if !found || v != kv.Value {
				matched = false
				break
			}
		}
		if matched {
			total += dp.Value
		}
	}
	return total
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:     false,
		ServiceName: "invoicing-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("noop"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestResilienceMetrics(t *testing.T) {
	meter, reader := newTestMeter(t)
	m, err := telemetry.NewResilienceMetrics(meter)
	require.NoError(t, err)
	ctx := context.Background()

	m.BreakerStateChanged("tax-service", "closed", "open")
	m.BreakerRejected(ctx, "tax-service")
	m.BreakerRejected(ctx, "tax-service")
	m.CallCompleted(ctx, "client-registry", "success", 40*time.Millisecond)
	m.CallCompleted(ctx, "client-registry", "timeout", 5*time.Second)
	m.CacheLookup(ctx, "tax-service", true)
	m.CacheLookup(ctx, "tax-service", false)
	m.CacheLookup(ctx, "tax-service", true)

	rm := collect(t, reader)
	assert.Equal(t, int64(1), sumWhere(t, rm, "invoicing_breaker_transitions_total",
		telemetry.AttrBreakerTo.String("open")))
	assert.Equal(t, int64(2), sumWhere(t, rm, "invoicing_breaker_rejections_total",
		telemetry.AttrDependency.String("tax-service")))
	assert.Equal(t, int64(1), sumWhere(t, rm, "invoicing_remote_calls_total",
		telemetry.AttrOutcome.String("timeout")))
	assert.Equal(t, int64(2), sumWhere(t, rm, "invoicing_cache_lookups_total",
		telemetry.AttrCacheResult.String("hit")))
	assert.Equal(t, int64(1), sumWhere(t, rm, "invoicing_cache_lookups_total",
		telemetry.AttrCacheResult.String("miss")))

	hist, ok := findMetric(t, rm, "invoicing_remote_call_duration_seconds").Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestInvoiceMetrics(t *testing.T) {
	meter, reader := newTestMeter(t)
	m, err := telemetry.NewInvoiceMetrics(meter)
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordCreated(ctx, "ISSUED", decimal.RequireFromString("2405.04"))
	m.RecordCreated(ctx, "DRAFT", decimal.RequireFromString("10.5"))
	m.RecordRejected(ctx, "CLIENT_NOT_ACTIVE")
	m.RecordVoided(ctx)

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumWhere(t, rm, "invoicing_invoices_created_total"))
	assert.Equal(t, int64(240504), sumWhere(t, rm, "invoicing_invoiced_amount_cents_total",
		telemetry.AttrStatus.String("ISSUED")))
	assert.Equal(t, int64(1050), sumWhere(t, rm, "invoicing_invoiced_amount_cents_total",
		telemetry.AttrStatus.String("DRAFT")))
	assert.Equal(t, int64(1), sumWhere(t, rm, "invoicing_creations_rejected_total",
		telemetry.AttrErrorCode.String("CLIENT_NOT_ACTIVE")))
	assert.Equal(t, int64(1), sumWhere(t, rm, "invoicing_invoices_voided_total"))
}

func TestNewMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewResilienceMetrics(nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
	_, err = telemetry.NewInvoiceMetrics(nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}
