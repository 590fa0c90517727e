package service

import "sync"

// orderLock is a mutex dedicated to a single order number. Holders are
// refcounted so the registry can evict the entry once the order reaches a
// terminal state and no other goroutine is waiting on it.
type orderLock struct {
	mu       sync.Mutex
	refs     int
	terminal bool
}

// lockRegistry hands out one lock per order number. All messages for the
// same order serialize on that lock while messages for different orders
// proceed in parallel.
type lockRegistry struct {
	mu      sync.Mutex
	entries map[string]*orderLock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{entries: make(map[string]*orderLock)}
}

// Lock blocks until the caller holds the lock for orderNo.
func (r *lockRegistry) Lock(orderNo string) *orderLock {
	r.mu.Lock()
	l, ok := r.entries[orderNo]
	if !ok {
		l = &orderLock{}
		r.entries[orderNo] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return l
}

// Unlock releases the lock. When terminal is true the entry is marked for
// eviction; it is removed once the last holder releases it. A later Lock for
// the same order number simply creates a fresh entry.
func (r *lockRegistry) Unlock(orderNo string, l *orderLock, terminal bool) {
	l.mu.Unlock()

	r.mu.Lock()
	l.refs--
	if terminal {
		l.terminal = true
	}
	if l.terminal && l.refs == 0 {
		delete(r.entries, orderNo)
	}
	r.mu.Unlock()
}

// Size reports the number of live entries.
func (r *lockRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
