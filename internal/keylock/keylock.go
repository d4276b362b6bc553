// Package keylock provides mutual exclusion scoped to a string key.
package keylock

import "sync"

type entry struct {
	mu   sync.RWMutex
	refs int
}

// Map hands out one reader/writer mutex per key. Entries are created on first Lock and
// dropped when the last holder or waiter unlocks, so the map only holds
// keys that are in use.
//
// The zero value is ready to use.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// Lock blocks until the lock for key is held exclusively and returns the
// function that releases it.
//
//	unlock := locks.Lock(vaultID + "/" + fileID)
//	defer unlock()
func (m *Map) Lock(key string) (unlock func()) {
	e := m.acquire(key)
	e.mu.Lock()
	return m.releaser(key, e, e.mu.Unlock)
}

// RLock blocks until the lock for key is held shared. Any number of RLock
// holders exclude a Lock holder.
func (m *Map) RLock(key string) (unlock func()) {
	e := m.acquire(key)
	e.mu.RLock()
	return m.releaser(key, e, e.mu.RUnlock)
}

func (m *Map) acquire(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[string]*entry)
	}
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *Map) releaser(key string, e *entry, release func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			release()

			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.locks, key)
			}
			m.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently locked or waited on.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
