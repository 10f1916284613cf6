package event

import (
	"context"
	"errors"

	"github.com/waterbill/backend/internal/domain/shared"
)

// FanoutPublisher delivers events to several publishers in order.
// Every publisher is attempted; the failures are joined.
type FanoutPublisher struct {
	publishers []shared.EventPublisher
}

// NewFanoutPublisher creates a FanoutPublisher, skipping nil entries
func NewFanoutPublisher(publishers ...shared.EventPublisher) *FanoutPublisher {
	out := make([]shared.EventPublisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return &FanoutPublisher{publishers: out}
}

// Publish implements shared.EventPublisher
func (f *FanoutPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ shared.EventPublisher = (*FanoutPublisher)(nil)
