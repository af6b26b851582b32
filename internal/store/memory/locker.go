package memory

import (
	"context"
	"sync"
)

// Locker serializes operations per key with in-process mutexes. Suitable
// for single-instance deployments; the redis lock manager covers the
// multi-instance case.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocker creates an empty locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sync.Mutex)}
}

// Acquire blocks until the key's lock is held and returns a release func.
func (l *Locker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, exists := l.locks[key]
	if !exists {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
