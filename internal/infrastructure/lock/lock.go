// Package lock provides keyed mutual exclusion for billing operations.
// MemoryLocker serializes within one process; RedisLocker serializes across
// instances sharing a Redis server.
package lock

import "errors"

// ErrLockTimeout is returned when a lock could not be acquired before the context ended
var ErrLockTimeout = errors.New("lock: timed out waiting for key")
