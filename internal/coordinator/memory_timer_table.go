package coordinator

import (
	"sync"
	"time"

	"github.com/devrev/tempvoice/internal/clock"
)

// MemoryTimerTable maps ids to armed clock timers
type MemoryTimerTable struct {
	clock   clock.Clock
	mu      sync.Mutex
	entries map[string]*timerEntry
}

type timerEntry struct {
	timer    clock.Timer
	deadline time.Time
}

// NewMemoryTimerTable creates an empty timer table on clock c
func NewMemoryTimerTable(c clock.Clock) *MemoryTimerTable {
	return &MemoryTimerTable{
		clock:   c,
		entries: make(map[string]*timerEntry),
	}
}

// Arm schedules fn at deadline unless a timer for id is already armed.
// A deadline in the past fires as soon as the clock allows.
// The entry leaves the table before fn runs, so fn and anything racing it
// may arm a fresh timer for the same id.
func (t *MemoryTimerTable) Arm(id string, deadline time.Time, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return false
	}

	delay := deadline.Sub(t.clock.Now())
	if delay < 0 {
		delay = 0
	}

	entry := &timerEntry{deadline: deadline}
	t.entries[id] = entry
	entry.timer = t.clock.AfterFunc(delay, func() {
		if t.claim(id, entry) {
			fn()
		}
	})
	return true
}

// claim removes entry if it is still the one registered for id. A false
// result means the timer was cancelled or replaced and must not run.
func (t *MemoryTimerTable) claim(id string, entry *timerEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.entries[id]; ok && current == entry {
		delete(t.entries, id)
		return true
	}
	return false
}

// Cancel stops and removes the timer for id
func (t *MemoryTimerTable) Cancel(id string) bool {
	t.mu.Lock()
	entry, exists := t.entries[id]
	if exists {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !exists {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	return true
}

// Deadline returns when the timer for id will fire
func (t *MemoryTimerTable) Deadline(id string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.entries[id]
	if !exists {
		return time.Time{}, false
	}
	return entry.deadline, true
}

// Len returns the number of armed timers
func (t *MemoryTimerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
