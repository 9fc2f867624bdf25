// Package coordinator holds the per-process coordination state of the room
// lifecycle: the admission lock table and the eviction timer table.
package coordinator

import (
	"context"
	"time"

	"github.com/devrev/tempvoice/internal/clock"
)

// LockTable deduplicates in-flight work per key
type LockTable interface {
	// TryAcquire inserts the lock for key. It returns false without error
	// when the key is already held.
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
	Held(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}

// TimerTable tracks cancellable delayed callbacks keyed by id
type TimerTable interface {
	// Arm schedules fn at deadline. It returns false and does nothing when
	// a timer for id is already armed.
	Arm(id string, deadline time.Time, fn func()) bool
	// Cancel stops the timer for id. It returns true if an armed timer was
	// removed from the table.
	Cancel(id string) bool
	Deadline(id string) (time.Time, bool)
	Len() int
}

// Coordinator bundles the lock and timer tables shared by the creation
// queue and the eviction scheduler
type Coordinator struct {
	Locks  LockTable
	Timers TimerTable
	Clock  clock.Clock
}

// NewInMemory creates a process-local coordinator
func NewInMemory(c clock.Clock) *Coordinator {
	if c == nil {
		c = clock.New()
	}
	return &Coordinator{
		Locks:  NewMemoryLockTable(),
		Timers: NewMemoryTimerTable(c),
		Clock:  c,
	}
}
