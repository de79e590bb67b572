package bidding

import "sync"

// keyedLocks hands out one mutex per auction ID. Placement serializes per
// auction so bid validation and status flips never interleave in-process;
// the escalation guard uses TryLock so a second trigger simply skips instead
// of queueing behind a running escalation.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	return lock
}

func (k *keyedLocks) Lock(key string) { k.get(key).Lock() }

func (k *keyedLocks) Unlock(key string) { k.get(key).Unlock() }

func (k *keyedLocks) TryLock(key string) bool { return k.get(key).TryLock() }
