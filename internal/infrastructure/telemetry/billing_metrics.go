package telemetry

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BillingMetrics records reading, bill, payment and sweep activity.
type BillingMetrics struct {
	logger *zap.Logger

	readingsTotal     *Counter
	consumption       *Histogram
	billsGenerated    *Counter
	billAmount        *Histogram
	billTransitions   *Counter
	paymentsTotal     *Counter
	paymentAmount     *Histogram
	sweepTransitioned *Counter
	sweepFailures     *Counter
}

// NewBillingMetrics registers the billing instruments on meter.
func NewBillingMetrics(meter metric.Meter, logger *zap.Logger) (*BillingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BillingMetrics{logger: logger}
	var err error

	if bm.readingsTotal, err = NewCounter(meter, "waterbill_readings_total", "Meter readings recorded", "{reading}"); err != nil {
		return nil, err
	}
	if bm.consumption, err = NewHistogram(meter, HistogramOpts{
		Name:        "waterbill_reading_consumption",
		Description: "Units consumed per reading",
		Unit:        "{unit}",
		Boundaries:  ConsumptionBuckets,
	}); err != nil {
		return nil, err
	}
	if bm.billsGenerated, err = NewCounter(meter, "waterbill_bills_generated_total", "Bills generated", "{bill}"); err != nil {
		return nil, err
	}
	if bm.billAmount, err = NewHistogram(meter, HistogramOpts{
		Name:        "waterbill_bill_amount",
		Description: "Total amount per generated bill",
		Unit:        "{currency}",
		Boundaries:  AmountBuckets,
	}); err != nil {
		return nil, err
	}
	if bm.billTransitions, err = NewCounter(meter, "waterbill_bill_transitions_total", "Bill status transitions", "{transition}"); err != nil {
		return nil, err
	}
	if bm.paymentsTotal, err = NewCounter(meter, "waterbill_payments_total", "Payments recorded", "{payment}"); err != nil {
		return nil, err
	}
	if bm.paymentAmount, err = NewHistogram(meter, HistogramOpts{
		Name:        "waterbill_payment_amount",
		Description: "Amount per recorded payment",
		Unit:        "{currency}",
		Boundaries:  AmountBuckets,
	}); err != nil {
		return nil, err
	}
	if bm.sweepTransitioned, err = NewCounter(meter, "waterbill_sweep_overdue_total", "Bills moved to overdue by the sweep", "{bill}"); err != nil {
		return nil, err
	}
	if bm.sweepFailures, err = NewCounter(meter, "waterbill_sweep_failures_total", "Bills the sweep could not transition", "{bill}"); err != nil {
		return nil, err
	}

	return bm, nil
}

// RecordReading counts a reading and its consumption.
func (m *BillingMetrics) RecordReading(ctx context.Context, consumption uint64) {
	m.readingsTotal.Inc(ctx)
	m.consumption.Record(ctx, float64(consumption))
}

// RecordBillGenerated counts a new bill.
func (m *BillingMetrics) RecordBillGenerated(ctx context.Context, total decimal.Decimal) {
	m.billsGenerated.Inc(ctx)
	m.billAmount.Record(ctx, total.InexactFloat64())
}

// RecordBillTransition counts a status change, labelled by target status.
func (m *BillingMetrics) RecordBillTransition(ctx context.Context, to string) {
	m.billTransitions.Inc(ctx, AttrBillStatus.String(to))
}

// RecordPayment counts a payment, labelled by method.
func (m *BillingMetrics) RecordPayment(ctx context.Context, method string, amount decimal.Decimal) {
	m.paymentsTotal.Inc(ctx, AttrPaymentMethod.String(method))
	m.paymentAmount.Record(ctx, amount.InexactFloat64(), AttrPaymentMethod.String(method))
}

// RecordSweep records one overdue sweep run.
func (m *BillingMetrics) RecordSweep(ctx context.Context, transitioned, failed int) {
	m.sweepTransitioned.Add(ctx, int64(transitioned))
	m.sweepFailures.Add(ctx, int64(failed))
	m.logger.Debug("Sweep metrics recorded",
		zap.Int("transitioned", transitioned),
		zap.Int("failed", failed))
}
