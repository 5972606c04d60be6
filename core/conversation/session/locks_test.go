package session

import (
	"sync"
	"testing"
	"time"

	"github.com/swiftline/courierbot/core/transport"
)

func TestKeyedLockSerializesSamePair(t *testing.T) {
	kl := NewKeyedLock()

	var inside int
	var maxInside int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kl.Lock(1, transport.PlatformTelegram)
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			kl.Unlock(1, transport.PlatformTelegram)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("critical section held by %d goroutines at once", maxInside)
	}
	if kl.Waits() == 0 {
		t.Fatal("expected observable contention for the same pair")
	}
}

func TestKeyedLockDifferentPairsDoNotContend(t *testing.T) {
	kl := NewKeyedLock()

	kl.Lock(1, transport.PlatformTelegram)
	done := make(chan struct{})
	go func() {
		kl.Lock(2, transport.PlatformTelegram)
		kl.Unlock(2, transport.PlatformTelegram)
		kl.Lock(1, transport.PlatformGateway)
		kl.Unlock(1, transport.PlatformGateway)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different pairs blocked on each other")
	}
	kl.Unlock(1, transport.PlatformTelegram)

	if kl.Waits() != 0 {
		t.Fatalf("unexpected contention count %d", kl.Waits())
	}
}
