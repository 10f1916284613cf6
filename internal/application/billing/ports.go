package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/infrastructure/lock"
	"go.uber.org/zap"
)

// KeyedLocker serializes work on a single key (a bill, meter or customer).
// Lock blocks until the key is held or ctx is done; the returned func releases it.
type KeyedLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Metrics receives billing counters. Implemented by the telemetry layer.
type Metrics interface {
	RecordReading(ctx context.Context, consumption uint64)
	RecordBillGenerated(ctx context.Context, total decimal.Decimal)
	RecordBillTransition(ctx context.Context, to string)
	RecordPayment(ctx context.Context, method string, amount decimal.Decimal)
	RecordSweep(ctx context.Context, transitioned, failed int)
}

type nopMetrics struct{}

func (nopMetrics) RecordReading(context.Context, uint64) {}
func (nopMetrics) RecordBillGenerated(context.Context, decimal.Decimal) {}
func (nopMetrics) RecordBillTransition(context.Context, string) {}
func (nopMetrics) RecordPayment(context.Context, string, decimal.Decimal) {}
func (nopMetrics) RecordSweep(context.Context, int, int) {}

// Dependencies shared by the billing services
type Dependencies struct {
	Locker  KeyedLocker
	Events  shared.EventPublisher
	Metrics Metrics
	Logger  *zap.Logger
	Clock   shared.Clock
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Locker == nil {
		d.Locker = lock.NewMemoryLocker()
	}
	if d.Events == nil {
		d.Events = shared.NopEventPublisher{}
	}
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = shared.SystemClock
	}
	return d
}

func billLockKey(billID uuid.UUID) string {
	return fmt.Sprintf("bill:%s", billID)
}

func meterLockKey(meterID uuid.UUID) string {
	return fmt.Sprintf("meter:%s", meterID)
}

func customerLockKey(customerID uuid.UUID) string {
	return fmt.Sprintf("customer:%s", customerID)
}

func readingLockKey(readingID uuid.UUID) string {
	return fmt.Sprintf("reading:%s", readingID)
}

// publish sends events after the store write succeeded. Failures are logged only.
func publish(ctx context.Context, publisher shared.EventPublisher, logger *zap.Logger, events ...shared.DomainEvent) {
	if err := publisher.Publish(ctx, events...); err != nil {
		for _, e := range events {
			logger.Warn("Failed to publish domain event",
				zap.String("event_type", e.EventType()),
				zap.String("aggregate_id", e.AggregateID().String()),
				zap.Error(err))
		}
	}
}
