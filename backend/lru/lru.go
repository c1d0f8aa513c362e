// Package lru implements a capacity-bounded level on
// hashicorp/golang-lru/v2. Eviction is LRU and silent, which makes this a
// natural front level; there is no per-entry TTL.
package lru

import (
	"context"
	"fmt"
	"sync"

	hlru "github.com/hashicorp/golang-lru/v2"

	"github.com/unkn0wn-root/stratacache"
	"github.com/unkn0wn-root/stratacache/internal/counter"
)

type Backend struct {
	// mu makes check-then-act sequences (version checks, counters) atomic;
	// the underlying cache is only locked per call.
	mu sync.Mutex
	c  *hlru.Cache[string, stratacache.Object]
}

var _ stratacache.Cache = (*Backend)(nil)

type Config struct {
	Capacity int // required, > 0
}

func New(cfg Config) (*Backend, error) {
	c, err := hlru.New[string, stratacache.Object](cfg.Capacity)
	if err != nil {
		return nil, err
	}
	return &Backend{c: c}, nil
}

func (b *Backend) Get(_ context.Context, key string, _ ...stratacache.Option) (*stratacache.Object, bool, error) {
	b.mu.Lock()
	obj, ok := b.c.Get(key)
	b.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	return &obj, true, nil
}

func (b *Backend) Set(_ context.Context, key string, value any, opts ...stratacache.Option) (*stratacache.Object, error) {
	co := stratacache.ParseOptions(opts...)
	b.mu.Lock()
	defer b.mu.Unlock()

	if co.HasVersion {
		if err := b.checkVersion(key, co.Version); err != nil {
			return nil, err
		}
	}
	obj := stratacache.Object{Key: key, Value: value, Version: stratacache.NewVersion()}
	b.c.Add(key, obj)
	return &obj, nil
}

func (b *Backend) Delete(_ context.Context, key string, opts ...stratacache.Option) error {
	co := stratacache.ParseOptions(opts...)
	b.mu.Lock()
	defer b.mu.Unlock()

	if co.HasVersion {
		if err := b.checkVersion(key, co.Version); err != nil {
			return err
		}
	}
	b.c.Remove(key)
	return nil
}

func (b *Backend) Has(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	ok := b.c.Contains(key)
	b.mu.Unlock()
	return ok, nil
}

func (b *Backend) Size(_ context.Context) (int, error) {
	b.mu.Lock()
	n := b.c.Len()
	b.mu.Unlock()
	return n, nil
}

func (b *Backend) Flush(_ context.Context) error {
	b.mu.Lock()
	b.c.Purge()
	b.mu.Unlock()
	return nil
}

func (b *Backend) Keys(_ context.Context) ([]string, error) {
	b.mu.Lock()
	ks := b.c.Keys()
	b.mu.Unlock()
	return ks, nil
}

func (b *Backend) Reduce(_ context.Context, acc any, fn stratacache.ReduceFunc, _ ...stratacache.Option) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range b.c.Keys() {
		if obj, ok := b.c.Peek(k); ok {
			o := obj
			acc = fn(acc, &o)
		}
	}
	return acc, nil
}

func (b *Backend) ToMap(_ context.Context, opts ...stratacache.Option) (map[string]any, error) {
	co := stratacache.ParseOptions(opts...)
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]any, b.c.Len())
	for _, k := range b.c.Keys() {
		obj, ok := b.c.Peek(k)
		if !ok {
			continue
		}
		if co.Return == stratacache.ReturnObject {
			o := obj
			out[k] = &o
		} else {
			out[k] = obj.Value
		}
	}
	return out, nil
}

func (b *Backend) UpdateCounter(_ context.Context, key string, delta int64, _ ...stratacache.Option) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var cur int64
	if obj, ok := b.c.Peek(key); ok {
		n, numeric := counter.Coerce(obj.Value)
		if !numeric {
			return 0, fmt.Errorf("lru: value at %q is not a counter", key)
		}
		cur = n
	}
	next := cur + delta
	b.c.Add(key, stratacache.Object{Key: key, Value: next, Version: stratacache.NewVersion()})
	return next, nil
}

func (b *Backend) Close(_ context.Context) error {
	b.mu.Lock()
	b.c.Purge()
	b.mu.Unlock()
	return nil
}

// checkVersion must run under mu.
func (b *Backend) checkVersion(key string, want uint64) error {
	obj, ok := b.c.Peek(key)
	if !ok {
		return &stratacache.VersionConflictError{Key: key, Want: want}
	}
	if obj.Version != want {
		return &stratacache.VersionConflictError{Key: key, Want: want, Got: obj.Version}
	}
	return nil
}
