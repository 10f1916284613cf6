package telemetry

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewBillingMetrics_NilMeter(t *testing.T) {
	_, err := NewBillingMetrics(nil, nil)
	assert.ErrorIs(t, err, ErrMeterNil)
}

func TestBillingMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	bm, err := NewBillingMetrics(provider.Meter("waterbill-test"), nil)
	require.NoError(t, err)

	ctx := context.Background()
	bm.RecordReading(ctx, 15)
	bm.RecordReading(ctx, 3)
	bm.RecordBillGenerated(ctx, decimal.NewFromInt(40))
	bm.RecordBillTransition(ctx, "paid")
	bm.RecordPayment(ctx, "cash", decimal.NewFromInt(40))
	bm.RecordSweep(ctx, 4, 1)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, data["waterbill_readings_total"]))
	assert.Equal(t, int64(1), sumOf(t, data["waterbill_bills_generated_total"]))
	assert.Equal(t, int64(1), sumOf(t, data["waterbill_bill_transitions_total"]))
	assert.Equal(t, int64(1), sumOf(t, data["waterbill_payments_total"]))
	assert.Equal(t, int64(4), sumOf(t, data["waterbill_sweep_overdue_total"]))
	assert.Equal(t, int64(1), sumOf(t, data["waterbill_sweep_failures_total"]))

	hist, ok := data["waterbill_reading_consumption"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.Equal(t, 18.0, hist.DataPoints[0].Sum)
}
