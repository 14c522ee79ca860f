package services

import "sync"

// studentLocks serializes operations on the same student within the process.
// Entries are dropped once no goroutine holds or waits for them.
type studentLocks struct {
	mu    sync.Mutex
	locks map[string]*studentLock
}

type studentLock struct {
	mu      sync.Mutex
	waiters int
}

func newStudentLocks() *studentLocks {
	return &studentLocks{locks: make(map[string]*studentLock)}
}

// Lock acquires the lock for id and returns its release func.
func (l *studentLocks) Lock(id string) func() {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &studentLock{}
		l.locks[id] = lk
	}
	lk.waiters++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.waiters--
		if lk.waiters == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *studentLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
