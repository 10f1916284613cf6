package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryArchive keeps archived reading files in process memory.
// Used when no bucket is configured.
type MemoryArchive struct {
	mu      sync.RWMutex
	objects map[string][]byte
	now     func() time.Time
}

// NewMemoryArchive creates an empty MemoryArchive
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{objects: make(map[string][]byte), now: time.Now}
}

// ArchiveImport stores a copy of data and returns its key
func (m *MemoryArchive) ArchiveImport(_ context.Context, data []byte) (string, error) {
	key := ImportKey(m.now())
	m.mu.Lock()
	m.objects[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return key, nil
}

// Get returns an archived file
func (m *MemoryArchive) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

// Delete removes an archived file
func (m *MemoryArchive) Delete(_ context.Context, key string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of archived files
func (m *MemoryArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
