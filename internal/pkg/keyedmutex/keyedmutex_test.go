package keyedmutex

import (
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	m := New()
	const goroutines = 16
	const iterations = 50

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				unlock := m.Lock("session-1")
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()

	if counter != goroutines*iterations {
		t.Fatalf("expected %d increments, got %d", goroutines*iterations, counter)
	}
}

func TestLockDifferentKeysDoNotContend(t *testing.T) {
	m := New()

	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := m.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on independent key blocked")
	}
}

func TestLockEntryRemovedAfterLastUnlock(t *testing.T) {
	m := New()
	unlock := m.Lock("ephemeral")
	unlock()

	s := &m.shards[m.shardFor("ephemeral")]
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries["ephemeral"]; ok {
		t.Fatal("expected lock entry to be removed after unlock")
	}
}
