// Package bigcache implements a level on allegro/bigcache. Values are
// serialized by a pluggable codec and framed with the wire envelope so the
// Object version survives the byte store.
//
// BigCache has no per-entry TTL; entries age out with the global LifeWindow,
// so WithTTL is ignored here.
package bigcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/stratacache"
	"github.com/unkn0wn-root/stratacache/codec"
	"github.com/unkn0wn-root/stratacache/internal/counter"
	"github.com/unkn0wn-root/stratacache/internal/wire"
)

type Backend struct {
	// mu serializes check-then-act sequences (version checks, counters);
	// plain reads go straight to the store.
	mu    sync.Mutex
	c     *bc.BigCache
	codec codec.Codec
}

var _ stratacache.Cache = (*Backend)(nil)

type Config struct {
	Codec codec.Codec // required

	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Backend, error) {
	if cfg.Codec == nil {
		return nil, errors.New("bigcache: codec is required")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Backend{c: c, codec: cfg.Codec}, nil
}

func (b *Backend) Get(_ context.Context, key string, _ ...stratacache.Option) (*stratacache.Object, bool, error) {
	return b.read(key)
}

func (b *Backend) read(key string) (*stratacache.Object, bool, error) {
	raw, err := b.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	obj, err := b.decode(key, raw)
	if err != nil {
		_ = b.c.Delete(key) // self-heal corrupt
		return nil, false, nil
	}
	return obj, true, nil
}

func (b *Backend) decode(key string, raw []byte) (*stratacache.Object, error) {
	ver, payload, err := wire.Decode(raw)
	if err != nil {
		return nil, err
	}
	v, err := b.codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	return &stratacache.Object{Key: key, Value: v, Version: ver}, nil
}

func (b *Backend) write(key string, value any) (*stratacache.Object, error) {
	payload, err := b.codec.Encode(value)
	if err != nil {
		return nil, err
	}
	obj := stratacache.Object{Key: key, Value: value, Version: stratacache.NewVersion()}
	if err := b.c.Set(key, wire.Encode(obj.Version, payload)); err != nil {
		return nil, err
	}
	return &obj, nil
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
	return b.write(key, value)
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
	err := b.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (b *Backend) Has(_ context.Context, key string) (bool, error) {
	_, ok, err := b.read(key)
	return ok, err
}

func (b *Backend) Size(_ context.Context) (int, error) {
	return b.c.Len(), nil
}

func (b *Backend) Flush(_ context.Context) error {
	return b.c.Reset()
}

func (b *Backend) Keys(_ context.Context) ([]string, error) {
	var out []string
	it := b.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			return nil, err
		}
		out = append(out, info.Key())
	}
	return out, nil
}

func (b *Backend) Reduce(_ context.Context, acc any, fn stratacache.ReduceFunc, _ ...stratacache.Option) (any, error) {
	it := b.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			return nil, err
		}
		obj, err := b.decode(info.Key(), info.Value())
		if err != nil {
			continue // corrupt entries are skipped, reads will heal them
		}
		acc = fn(acc, obj)
	}
	return acc, nil
}

func (b *Backend) ToMap(_ context.Context, opts ...stratacache.Option) (map[string]any, error) {
	co := stratacache.ParseOptions(opts...)
	out := make(map[string]any)
	it := b.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			return nil, err
		}
		obj, err := b.decode(info.Key(), info.Value())
		if err != nil {
			continue
		}
		if co.Return == stratacache.ReturnObject {
			out[obj.Key] = obj
		} else {
			out[obj.Key] = obj.Value
		}
	}
	return out, nil
}

func (b *Backend) UpdateCounter(_ context.Context, key string, delta int64, _ ...stratacache.Option) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var cur int64
	if obj, ok, err := b.read(key); err != nil {
		return 0, err
	} else if ok {
		n, numeric := counter.Coerce(obj.Value)
		if !numeric {
			return 0, fmt.Errorf("bigcache: value at %q is not a counter", key)
		}
		cur = n
	}
	next := cur + delta
	if _, err := b.write(key, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (b *Backend) Close(_ context.Context) error {
	return b.c.Close()
}

// checkVersion must run under mu.
func (b *Backend) checkVersion(key string, want uint64) error {
	obj, ok, err := b.read(key)
	if err != nil {
		return err
	}
	if !ok {
		return &stratacache.VersionConflictError{Key: key, Want: want}
	}
	if obj.Version != want {
		return &stratacache.VersionConflictError{Key: key, Want: want, Got: obj.Version}
	}
	return nil
}
