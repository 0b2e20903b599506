package device

import (
	"context"
	"sync"
)

// keyLock hands out one lock per UserKey. Entries are reference counted and removed when
// the last holder or waiter leaves, so the map only holds keys that are in use.
type keyLock struct {
	mu      sync.Mutex
	entries map[UserKey]*keyLockEntry
}

type keyLockEntry struct {
	sem  chan struct{}
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{entries: make(map[UserKey]*keyLockEntry)}
}

// Lock blocks until key is free or ctx is done. The returned func releases the lock.
func (l *keyLock) Lock(ctx context.Context, key UserKey) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &keyLockEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
		return func() {
			<-entry.sem
			l.release(key, entry)
		}, nil
	case <-ctx.Done():
		l.release(key, entry)
		return nil, ctx.Err()
	}
}

func (l *keyLock) release(key UserKey, entry *keyLockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// size reports the number of keys currently tracked
func (l *keyLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
