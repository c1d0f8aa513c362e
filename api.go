package stratacache

import (
	"context"
	"time"
)

// ReduceFunc folds an accumulator over cache entries. The coordinator and
// every backend hand the fold a full *Object; use obj.Value when only the
// payload matters.
type ReduceFunc func(acc any, obj *Object) any

// UpdateFunc maps the current value of a key (nil when absent) to the next
// value to store. Used by Multilevel.Update.
type UpdateFunc func(current any) any

// GetAndUpdateFunc receives the current value of a key (nil when absent) and
// returns the value handed back to the caller plus the next value to store.
// Returning pop=true deletes the key instead of writing next.
type GetAndUpdateFunc func(current any) (ret any, next any, pop bool)

// Fallback computes a value for a key on a total cache miss. A nil result is
// treated as a miss and never cached; an error propagates to the caller
// untouched.
type Fallback func(ctx context.Context, key string) (any, error)

// Cache is the uniform contract every level must expose. A level is itself a
// fully functional cache, usable with or without a coordinator in front of
// it. Multilevel both consumes this interface (its levels) and implements
// it, which permits nesting a multilevel cache as a level of another.
//
// Options honored by backends: WithTTL and WithVersion on Set, WithVersion
// on Delete, WithReturn on ToMap. Implementations must be safe for
// concurrent use, and read-modify-write operations (UpdateCounter,
// version-checked writes) must be atomic with respect to the backend's own
// writes.
type Cache interface {
	// Get returns (obj, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string, opts ...Option) (*Object, bool, error)

	// Set stores value under key with a fresh version and returns the stored
	// Object. A nil value stores an explicit empty entry. With WithVersion,
	// the write succeeds only when the current version matches; otherwise a
	// *VersionConflictError is returned.
	Set(ctx context.Context, key string, value any, opts ...Option) (*Object, error)

	// Delete removes key. Deleting an absent key is not an error. With
	// WithVersion, the delete succeeds only when the current version matches.
	Delete(ctx context.Context, key string, opts ...Option) error

	// Has reports whether key is present (stored-empty entries included).
	Has(ctx context.Context, key string) (bool, error)

	// Size returns the number of entries held by this backend.
	Size(ctx context.Context) (int, error)

	// Flush removes every entry.
	Flush(ctx context.Context) error

	// Keys returns all present keys in no particular order.
	Keys(ctx context.Context) ([]string, error)

	// Reduce folds fn over every entry in the backend's native iteration
	// order, starting from acc.
	Reduce(ctx context.Context, acc any, fn ReduceFunc, opts ...Option) (any, error)

	// ToMap returns all entries keyed by cache key. Values are bare by
	// default; WithReturn(ReturnObject) yields *Object values.
	ToMap(ctx context.Context, opts ...Option) (map[string]any, error)

	// UpdateCounter atomically adds delta to the integer counter stored at
	// key (absent counts as zero) and returns the new value.
	UpdateCounter(ctx context.Context, key string, delta int64, opts ...Option) (int64, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// Options configure a Multilevel coordinator. Levels is required and must be
// non-empty; everything else has defaults.
type Options struct {
	// Levels is the ordered, fixed level list. Position is significant:
	// Levels[0] is level 1, queried and written first.
	Levels []Cache

	// Model selects the consistency policy across levels.
	// Default: ModelInclusive.
	Model Model

	// Fallback, when set, is invoked on a total miss during Get and its
	// result written to level 1 only. Overridable per call with WithFallback
	// or WithFallbackName.
	Fallback Fallback

	// Fallbacks is an optional registry of named fallbacks resolved by
	// WithFallbackName at call time.
	Fallbacks map[string]Fallback

	Logger Logger    // nil => NopLogger
	Stats  Collector // nil => NopCollector

	// LockTimeout bounds each lock-acquisition attempt inside Transaction.
	// 0 => 1s.
	LockTimeout time.Duration

	// LockRetries is the maximum number of lock-acquisition attempts per
	// Transaction call. 0 => 5.
	LockRetries int
}
