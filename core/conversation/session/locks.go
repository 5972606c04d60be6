package session

import (
	"sync"
	"sync/atomic"

	"github.com/swiftline/courierbot/core/transport"
)

// KeyedLock serializes all processing for a single (user, platform) pair
// while letting different pairs proceed in parallel. Waits counts lock
// acquisitions that had to block, which tests use to observe that
// same-session concurrency really is serialized.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[pairKey]*pairLock
	waits atomic.Int64
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLock constructs an empty KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[pairKey]*pairLock)}
}

// Lock acquires the pair's lock, blocking while another message for the
// same pair is being processed.
func (k *KeyedLock) Lock(userID int64, platform transport.Platform) {
	key := pairKey{userID, platform}

	k.mu.Lock()
	pl, ok := k.locks[key]
	if !ok {
		pl = &pairLock{}
		k.locks[key] = pl
	}
	pl.refs++
	contended := pl.refs > 1
	k.mu.Unlock()

	if contended {
		k.waits.Add(1)
	}
	pl.mu.Lock()
}

// Unlock releases the pair's lock and drops it once nobody is waiting.
func (k *KeyedLock) Unlock(userID int64, platform transport.Platform) {
	key := pairKey{userID, platform}

	k.mu.Lock()
	pl, ok := k.locks[key]
	if ok {
		pl.refs--
		if pl.refs <= 0 {
			delete(k.locks, key)
		}
	}
	k.mu.Unlock()

	if ok {
		pl.mu.Unlock()
	}
}

// Waits reports how many acquisitions had to wait for the same pair.
func (k *KeyedLock) Waits() int64 {
	return k.waits.Load()
}
