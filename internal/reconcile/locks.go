package reconcile

import "sync"

// keyedMutex serializes work per string key. It backs the per-account
// mutual exclusion between reconciliation passes that must not share a
// result (a realign arriving during a reconcile waits; it never joins).
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()

	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}

	k.mu.Unlock()

	m.Lock()

	return m.Unlock
}
