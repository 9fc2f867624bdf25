package coordinator

import (
	"context"
	"sync"
)

// MemoryLockTable is a mutex-guarded set of held keys
type MemoryLockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLockTable creates an empty lock table
func NewMemoryLockTable() *MemoryLockTable {
	return &MemoryLockTable{
		held: make(map[string]struct{}),
	}
}

// TryAcquire inserts key if absent
func (t *MemoryLockTable) TryAcquire(ctx context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.held[key]; exists {
		return false, nil
	}
	t.held[key] = struct{}{}
	return true, nil
}

// Release removes key. Releasing an absent key is a no-op.
func (t *MemoryLockTable) Release(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.held, key)
	return nil
}

// Held reports whether key is currently locked
func (t *MemoryLockTable) Held(ctx context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, exists := t.held[key]
	return exists, nil
}

// Ping always succeeds for the in-memory table
func (t *MemoryLockTable) Ping(ctx context.Context) error {
	return nil
}

// Size returns the number of held keys
func (t *MemoryLockTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.held)
}
