// Package redis implements the distributed backend on go-redis. Entries are
// serialized by a pluggable codec and framed with the wire envelope; keys
// are namespaced so several caches can share one database.
//
// Version-checked writes and counters run inside WATCH/MULTI transactions,
// so they are atomic against concurrent writers of the same key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/stratacache"
	"github.com/unkn0wn-root/stratacache/codec"
	"github.com/unkn0wn-root/stratacache/internal/counter"
	"github.com/unkn0wn-root/stratacache/internal/wire"
)

var ErrNilClient = errors.New("redis backend: nil client")

const (
	scanCount = 512
	mgetChunk = 256

	// watch transactions retry on concurrent modification before giving up
	txAttempts = 8
)

type Backend struct {
	rdb         goredis.UniversalClient
	ns          string
	codec       codec.Codec
	defaultTTL  time.Duration
	closeClient bool
}

var _ stratacache.Cache = (*Backend)(nil)

type Config struct {
	Client    goredis.UniversalClient
	Namespace string      // required; isolates this cache's keyspace
	Codec     codec.Codec // required

	DefaultTTL  time.Duration // applied to writes without WithTTL; 0 => no expiry
	CloseClient bool          // set true only if this backend exclusively owns the client
}

func New(cfg Config) (*Backend, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Namespace == "" {
		return nil, errors.New("redis backend: namespace is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("redis backend: codec is required")
	}
	return &Backend{
		rdb:         cfg.Client,
		ns:          cfg.Namespace,
		codec:       cfg.Codec,
		defaultTTL:  cfg.DefaultTTL,
		closeClient: cfg.CloseClient,
	}, nil
}

func (b *Backend) key(k string) string   { return b.ns + ":" + k }
func (b *Backend) pattern() string       { return b.ns + ":*" }
func (b *Backend) strip(k string) string { return strings.TrimPrefix(k, b.ns+":") }

func (b *Backend) Get(ctx context.Context, key string, _ ...stratacache.Option) (*stratacache.Object, bool, error) {
	raw, err := b.rdb.Get(ctx, b.key(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	obj, err := b.decode(key, raw)
	if err != nil {
		_ = b.rdb.Del(ctx, b.key(key)).Err() // self-heal corrupt
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

func (b *Backend) encode(key string, value any) (*stratacache.Object, []byte, error) {
	payload, err := b.codec.Encode(value)
	if err != nil {
		return nil, nil, err
	}
	obj := &stratacache.Object{Key: key, Value: value, Version: stratacache.NewVersion()}
	return obj, wire.Encode(obj.Version, payload), nil
}

func (b *Backend) Set(ctx context.Context, key string, value any, opts ...stratacache.Option) (*stratacache.Object, error) {
	co := stratacache.ParseOptions(opts...)
	obj, raw, err := b.encode(key, value)
	if err != nil {
		return nil, err
	}
	ttl := b.ttl(co)

	if !co.HasVersion {
		if err := b.rdb.Set(ctx, b.key(key), raw, ttl).Err(); err != nil {
			return nil, err
		}
		return obj, nil
	}

	err = b.watch(ctx, key, func(tx *goredis.Tx) error {
		if err := b.checkVersion(ctx, tx, key, co.Version); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, b.key(key), raw, ttl)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (b *Backend) Delete(ctx context.Context, key string, opts ...stratacache.Option) error {
	co := stratacache.ParseOptions(opts...)
	if !co.HasVersion {
		return b.rdb.Del(ctx, b.key(key)).Err()
	}
	return b.watch(ctx, key, func(tx *goredis.Tx) error {
		if err := b.checkVersion(ctx, tx, key, co.Version); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, b.key(key))
			return nil
		})
		return err
	})
}

func (b *Backend) Has(ctx context.Context, key string) (bool, error) {
	n, err := b.rdb.Exists(ctx, b.key(key)).Result()
	return n > 0, err
}

func (b *Backend) Size(ctx context.Context) (int, error) {
	n := 0
	iter := b.rdb.Scan(ctx, 0, b.pattern(), scanCount).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

func (b *Backend) Flush(ctx context.Context) error {
	var batch []string
	iter := b.rdb.Scan(ctx, 0, b.pattern(), scanCount).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanCount {
			if err := b.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return b.rdb.Del(ctx, batch...).Err()
	}
	return nil
}

func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	var out []string
	iter := b.rdb.Scan(ctx, 0, b.pattern(), scanCount).Iterator()
	for iter.Next(ctx) {
		out = append(out, b.strip(iter.Val()))
	}
	return out, iter.Err()
}

func (b *Backend) Reduce(ctx context.Context, acc any, fn stratacache.ReduceFunc, _ ...stratacache.Option) (any, error) {
	objs, err := b.toObjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, obj := range objs {
		acc = fn(acc, obj)
	}
	return acc, nil
}

func (b *Backend) ToMap(ctx context.Context, opts ...stratacache.Option) (map[string]any, error) {
	co := stratacache.ParseOptions(opts...)
	objs, err := b.toObjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(objs))
	for k, obj := range objs {
		if co.Return == stratacache.ReturnObject {
			out[k] = obj
		} else {
			out[k] = obj.Value
		}
	}
	return out, nil
}

// toObjects snapshots the namespace via SCAN + chunked MGET. Entries deleted
// between the two steps are skipped.
func (b *Backend) toObjects(ctx context.Context) (map[string]*stratacache.Object, error) {
	keys, err := b.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*stratacache.Object, len(keys))
	for start := 0; start < len(keys); start += mgetChunk {
		end := start + mgetChunk
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]
		full := make([]string, len(chunk))
		for i, k := range chunk {
			full[i] = b.key(k)
		}
		vals, err := b.rdb.MGet(ctx, full...).Result()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				continue
			}
			obj, err := b.decode(chunk[i], []byte(s))
			if err != nil {
				continue // corrupt; a direct Get will heal it
			}
			out[chunk[i]] = obj
		}
	}
	return out, nil
}

func (b *Backend) UpdateCounter(ctx context.Context, key string, delta int64, _ ...stratacache.Option) (int64, error) {
	var next int64
	err := b.watch(ctx, key, func(tx *goredis.Tx) error {
		var cur int64
		raw, err := tx.Get(ctx, b.key(key)).Bytes()
		switch {
		case err == goredis.Nil:
			// absent counts as zero
		case err != nil:
			return err
		default:
			obj, derr := b.decode(key, raw)
			if derr != nil {
				return derr
			}
			n, numeric := counter.Coerce(obj.Value)
			if !numeric {
				return fmt.Errorf("redis: value at %q is not a counter", key)
			}
			cur = n
		}
		next = cur + delta
		_, raw2, err := b.encode(key, next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, b.key(key), raw2, 0)
			return nil
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Close releases the underlying client only when this backend owns it.
// Safe to call multiple times.
func (b *Backend) Close(context.Context) error {
	if b.closeClient {
		if err := b.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func (b *Backend) ttl(co stratacache.CallOptions) time.Duration {
	ttl := co.TTL
	if ttl <= 0 {
		ttl = b.defaultTTL
	}
	if ttl <= 0 {
		return 0 // no expiry
	}
	return ttl
}

// watch runs fn under WATCH on key, retrying a bounded number of times when
// a concurrent writer invalidates the transaction.
func (b *Backend) watch(ctx context.Context, key string, fn func(tx *goredis.Tx) error) error {
	var err error
	for i := 0; i < txAttempts; i++ {
		err = b.rdb.Watch(ctx, fn, b.key(key))
		if err != goredis.TxFailedErr {
			return err
		}
	}
	return err
}

// checkVersion compares the stored version under WATCH; the caller's
// pipeline only runs if it matched and nobody wrote in between.
func (b *Backend) checkVersion(ctx context.Context, tx *goredis.Tx, key string, want uint64) error {
	raw, err := tx.Get(ctx, b.key(key)).Bytes()
	if err == goredis.Nil {
		return &stratacache.VersionConflictError{Key: key, Want: want}
	}
	if err != nil {
		return err
	}
	ver, _, err := wire.Decode(raw)
	if err != nil {
		return err
	}
	if ver != want {
		return &stratacache.VersionConflictError{Key: key, Want: want, Got: ver}
	}
	return nil
}
