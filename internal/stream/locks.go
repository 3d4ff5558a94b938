package stream

import "sync"

// lockTable hands out one mutex per stream identifier so that operations on
// the same stream serialize while distinct streams proceed concurrently.
// Locks are never removed; the table grows with the number of streams ever
// touched by this process, which is bounded and cheap.
type lockTable struct {
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uint64]*sync.Mutex)}
}

// acquire locks the stream's mutex and returns the matching unlock.
func (t *lockTable) acquire(id uint64) func() {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
