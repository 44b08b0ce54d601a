package merge

import "sync"

// branchLocks serializes merge application per (database, branch) so two
// concurrent merges into the same branch cannot interleave their head
// advances. Analysis runs unlocked; only the apply window holds the lock.
type branchLocks struct {
	mu    sync.Mutex
	locks map[string]*branchLock
}

type branchLock struct {
	mu   sync.Mutex
	refs int
}

func newBranchLocks() *branchLocks {
	return &branchLocks{locks: make(map[string]*branchLock)}
}

// acquire locks the mutex for a branch and returns its unlock function.
// Entries are reference-counted and dropped once the last holder or
// waiter releases, so the map stays bounded by the number of in-flight
// merges rather than growing with every branch ever merged.
func (b *branchLocks) acquire(database, branch string) func() {
	key := database + "/" + branch

	b.mu.Lock()
	lock, ok := b.locks[key]
	if !ok {
		lock = &branchLock{}
		b.locks[key] = lock
	}
	lock.refs++
	b.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		b.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(b.locks, key)
		}
		b.mu.Unlock()
	}
}
