package devices

import "sync"

// Locker serializes access to a device mount. Concurrent reads or writes
// against the same on-device database or USB endpoint are unsafe, so every
// read/transfer path acquires the device's lock first; distinct devices can
// still be processed in parallel.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocker() *Locker {
	return &Locker{locks: map[string]*sync.Mutex{}}
}

// Acquire blocks until the lock for the given device key is held and
// returns a release function.
func (l *Locker) Acquire(key string) func() {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
