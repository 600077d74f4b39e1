package auth

import "sync"

// IdentityLocks serializes claim-sensitive operations per identity so a
// claims push for one login can never interleave with the revocation step
// of a concurrent login or role change for the same identity. Operations
// on different identities proceed in parallel.
type IdentityLocks struct {
	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

func NewIdentityLocks() *IdentityLocks {
	return &IdentityLocks{locks: make(map[string]*identityLock)}
}

// Lock blocks until the identity's lock is held and returns the unlock
// function. Entries are removed once the last holder releases them.
func (l *IdentityLocks) Lock(uid string) func() {
	l.mu.Lock()
	entry, ok := l.locks[uid]
	if !ok {
		entry = &identityLock{}
		l.locks[uid] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, uid)
		}
		l.mu.Unlock()
	}
}

// Len reports the number of identities currently holding or waiting on a
// lock.
func (l *IdentityLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
