package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys of work that already completed, such as
// inbound command IDs, so that a redelivery is not applied twice
type IdempotencyStore interface {
	// MarkProcessed records key for ttl.
	// Returns true if the key was newly recorded, false if it was already present
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether key is recorded and not yet expired
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close releases the store's resources
	Close() error
}
