package models

import (
	"sync"
)

// UserLocker serialises portfolio mutations per user.
// Uses per-user locks instead of a global lock.
type UserLocker struct {
	userLocks map[string]*sync.Mutex // user_id → mutex
	mapMutex  sync.Mutex             // protects the map itself
}

func NewUserLocker() *UserLocker {
	return &UserLocker{
		userLocks: make(map[string]*sync.Mutex),
	}
}

// Lock blocks until the caller holds userID's lock.
func (l *UserLocker) Lock(userID string) {
	l.mapMutex.Lock()
	userMutex, ok := l.userLocks[userID]
	if !ok {
		userMutex = &sync.Mutex{}
		l.userLocks[userID] = userMutex
	}
	l.mapMutex.Unlock()

	userMutex.Lock()
}

func (l *UserLocker) Unlock(userID string) {
	l.mapMutex.Lock()
	userMutex := l.userLocks[userID]
	l.mapMutex.Unlock()

	if userMutex != nil {
		userMutex.Unlock()
	}
}

// WithLock runs fn while holding userID's lock.
func (l *UserLocker) WithLock(userID string, fn func() error) error {
	l.Lock(userID)
	defer l.Unlock(userID)
	return fn()
}
