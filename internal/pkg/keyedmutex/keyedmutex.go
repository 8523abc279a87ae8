package keyedmutex

import (
	"hash/fnv"
	"sync"
)

const shardCount = 64

// Mutex serializes callers holding the same key while callers with
// different keys proceed in parallel. Entries are reference counted
// and removed once the last holder unlocks, so the lock table stays
// proportional to the number of active keys.
type Mutex struct {
	shards [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New constructs an empty keyed mutex.
func New() *Mutex {
	m := &Mutex{}
	for i := range m.shards {
		m.shards[i].entries = make(map[string]*entry)
	}
	return m
}

// Lock blocks until the key's critical section is free and returns the
// matching unlock function.
func (m *Mutex) Lock(key string) func() {
	s := &m.shards[m.shardFor(key)]

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.entries, key)
		}
		s.mu.Unlock()
	}
}

func (m *Mutex) shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
