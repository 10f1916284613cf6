package event

import (
	"context"

	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// LogPublisher writes every event to the structured log.
// It is the publisher used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a new LogPublisher
func NewLogPublisher(l *zap.Logger) *LogPublisher {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogPublisher{logger: l.Named("events")}
}

// Publish implements shared.EventPublisher
func (p *LogPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	log := logger.ForContext(ctx, p.logger)
	for _, e := range events {
		log.Info("Domain event",
			zap.String("event_type", e.EventType()),
			zap.String("event_id", e.EventID().String()),
			zap.String("aggregate_type", e.AggregateType()),
			zap.String("aggregate_id", e.AggregateID().String()),
			zap.Time("occurred_at", e.OccurredAt()),
		)
	}
	return nil
}

var _ shared.EventPublisher = (*LogPublisher)(nil)
