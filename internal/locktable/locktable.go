// Package locktable implements the key-scoped lock table behind cache
// transactions. Each Table is an explicit, per-cache structure: two cache
// instances in the same process never contend with each other.
//
// A lock is a one-token channel; acquiring sends the token, releasing drains
// it. Entries are reference counted and removed once nobody holds or waits
// on them, so the table stays proportional to live contention, not to the
// keyspace.
package locktable

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type entry struct {
	ch   chan struct{}
	refs int
}

type shard struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// Table maps lock keys to their current holder. Safe for concurrent use.
type Table struct {
	shards [shardCount]shard
}

func New() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i].locks = make(map[string]*entry)
	}
	return t
}

func (t *Table) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &t.shards[h.Sum32()%shardCount]
}

// Acquire obtains the lock on key, waiting up to timeout. It returns false
// when the timeout elapses first; the table is left unchanged then.
func (t *Table) Acquire(key string, timeout time.Duration) bool {
	s := t.shardFor(key)
	s.mu.Lock()
	e, ok := s.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		s.locks[key] = e
	}
	e.refs++
	s.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return true
	default:
	}
	if timeout <= 0 {
		t.unref(key)
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e.ch <- struct{}{}:
		return true
	case <-timer.C:
		t.unref(key)
		return false
	}
}

// Release gives up the lock on key. Releasing a lock that is not held is a
// no-op.
func (t *Table) Release(key string) {
	s := t.shardFor(key)
	s.mu.Lock()
	e, ok := s.locks[key]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-e.ch:
	default:
	}
	t.unref(key)
}

// unref drops one reference on key's entry and deletes it once it is both
// unreferenced and unheld.
func (t *Table) unref(key string) {
	s := t.shardFor(key)
	s.mu.Lock()
	if e, ok := s.locks[key]; ok {
		if e.refs > 0 {
			e.refs--
		}
		if e.refs == 0 && len(e.ch) == 0 {
			delete(s.locks, key)
		}
	}
	s.mu.Unlock()
}
