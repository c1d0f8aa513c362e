// Package local implements the single-node in-memory backend. Entries live
// in RWMutex-guarded shards selected by FNV-1a over the key; an optional
// janitor prunes expired entries in the background, and reads prune them
// lazily either way.
package local

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/unkn0wn-root/stratacache"
	"github.com/unkn0wn-root/stratacache/internal/counter"
)

const defaultShards = 16

type entry struct {
	obj      stratacache.Object
	expireAt time.Time // zero => no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

type shard struct {
	mu sync.RWMutex
	m  map[string]entry
}

// Backend is a fully functional standalone cache and the usual level 1 of a
// multilevel setup.
type Backend struct {
	shards     []*shard
	defaultTTL time.Duration

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ stratacache.Cache = (*Backend)(nil)

type Config struct {
	Shards          int           // 0 => 16
	DefaultTTL      time.Duration // applied to writes without WithTTL; 0 => no expiry
	CleanupInterval time.Duration // 0 => no background janitor (lazy expiry only)
}

func New(cfg Config) *Backend {
	n := cfg.Shards
	if n <= 0 {
		n = defaultShards
	}
	b := &Backend{
		shards:     make([]*shard, n),
		defaultTTL: cfg.DefaultTTL,
	}
	for i := range b.shards {
		b.shards[i] = &shard{m: make(map[string]entry)}
	}
	if cfg.CleanupInterval > 0 {
		b.ticker = time.NewTicker(cfg.CleanupInterval)
		b.stopCh = make(chan struct{})
		b.wg.Add(1)
		go b.janitor()
	}
	return b
}

func (b *Backend) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return b.shards[h.Sum32()%uint32(len(b.shards))]
}

func (b *Backend) Get(_ context.Context, key string, _ ...stratacache.Option) (*stratacache.Object, bool, error) {
	s := b.shardFor(key)
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		s.mu.Lock()
		if cur, still := s.m[key]; still && cur.expired(time.Now()) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	obj := e.obj
	return &obj, true, nil
}

func (b *Backend) Set(_ context.Context, key string, value any, opts ...stratacache.Option) (*stratacache.Object, error) {
	co := stratacache.ParseOptions(opts...)
	s := b.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if co.HasVersion {
		if err := checkVersion(s, key, co.Version); err != nil {
			return nil, err
		}
	}
	obj := stratacache.Object{Key: key, Value: value, Version: stratacache.NewVersion()}
	s.m[key] = entry{obj: obj, expireAt: b.expiry(co.TTL)}
	return &obj, nil
}

func (b *Backend) Delete(_ context.Context, key string, opts ...stratacache.Option) error {
	co := stratacache.ParseOptions(opts...)
	s := b.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if co.HasVersion {
		if err := checkVersion(s, key, co.Version); err != nil {
			return err
		}
	}
	delete(s.m, key)
	return nil
}

func (b *Backend) Has(_ context.Context, key string) (bool, error) {
	s := b.shardFor(key)
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	return ok && !e.expired(time.Now()), nil
}

func (b *Backend) Size(_ context.Context) (int, error) {
	now := time.Now()
	total := 0
	for _, s := range b.shards {
		s.mu.RLock()
		for _, e := range s.m {
			if !e.expired(now) {
				total++
			}
		}
		s.mu.RUnlock()
	}
	return total, nil
}

func (b *Backend) Flush(_ context.Context) error {
	for _, s := range b.shards {
		s.mu.Lock()
		s.m = make(map[string]entry)
		s.mu.Unlock()
	}
	return nil
}

func (b *Backend) Keys(_ context.Context) ([]string, error) {
	now := time.Now()
	var out []string
	for _, s := range b.shards {
		s.mu.RLock()
		for k, e := range s.m {
			if !e.expired(now) {
				out = append(out, k)
			}
		}
		s.mu.RUnlock()
	}
	return out, nil
}

func (b *Backend) Reduce(_ context.Context, acc any, fn stratacache.ReduceFunc, _ ...stratacache.Option) (any, error) {
	now := time.Now()
	for _, s := range b.shards {
		s.mu.RLock()
		for _, e := range s.m {
			if e.expired(now) {
				continue
			}
			obj := e.obj
			acc = fn(acc, &obj)
		}
		s.mu.RUnlock()
	}
	return acc, nil
}

func (b *Backend) ToMap(_ context.Context, opts ...stratacache.Option) (map[string]any, error) {
	co := stratacache.ParseOptions(opts...)
	now := time.Now()
	out := make(map[string]any)
	for _, s := range b.shards {
		s.mu.RLock()
		for k, e := range s.m {
			if e.expired(now) {
				continue
			}
			if co.Return == stratacache.ReturnObject {
				obj := e.obj
				out[k] = &obj
			} else {
				out[k] = e.obj.Value
			}
		}
		s.mu.RUnlock()
	}
	return out, nil
}

func (b *Backend) UpdateCounter(_ context.Context, key string, delta int64, _ ...stratacache.Option) (int64, error) {
	s := b.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur int64
	if e, ok := s.m[key]; ok && !e.expired(time.Now()) {
		n, numeric := counter.Coerce(e.obj.Value)
		if !numeric {
			return 0, fmt.Errorf("local: value at %q is not a counter", key)
		}
		cur = n
	}
	next := cur + delta
	obj := stratacache.Object{Key: key, Value: next, Version: stratacache.NewVersion()}
	s.m[key] = entry{obj: obj, expireAt: b.expiry(0)}
	return next, nil
}

func (b *Backend) Close(_ context.Context) error {
	b.closeOnce.Do(func() {
		if b.stopCh != nil {
			close(b.stopCh)
			if b.ticker != nil {
				b.ticker.Stop()
			}
			b.wg.Wait()
		}
	})
	return nil
}

func (b *Backend) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = b.defaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// checkVersion must run under the shard's write lock.
func checkVersion(s *shard, key string, want uint64) error {
	e, ok := s.m[key]
	if !ok || e.expired(time.Now()) {
		return &stratacache.VersionConflictError{Key: key, Want: want}
	}
	if e.obj.Version != want {
		return &stratacache.VersionConflictError{Key: key, Want: want, Got: e.obj.Version}
	}
	return nil
}

func (b *Backend) janitor() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ticker.C:
			b.removeExpired()
		case <-b.stopCh:
			return
		}
	}
}

func (b *Backend) removeExpired() {
	now := time.Now()
	for _, s := range b.shards {
		s.mu.Lock()
		for k, e := range s.m {
			if e.expired(now) {
				delete(s.m, k)
			}
		}
		s.mu.Unlock()
	}
}
