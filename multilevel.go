package stratacache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/stratacache/internal/locktable"
)

// Model is the consistency policy of a multilevel cache. Fixed at
// construction time.
type Model int

const (
	// ModelInclusive replicates a value into all earlier levels once a read
	// finds it below level 1.
	ModelInclusive Model = iota

	// ModelExclusive keeps a key at exactly one level; reads that hit below
	// level 1 relocate the value to level 1.
	ModelExclusive
)

func (m Model) String() string {
	switch m {
	case ModelExclusive:
		return "exclusive"
	default:
		return "inclusive"
	}
}

// Multilevel cascades every cache operation across an ordered list of
// independent levels. It holds no shared mutable state of its own beyond the
// transaction lock table, so it is safe for concurrent use; all cached data
// lives in the levels.
//
// Multilevel itself satisfies Cache, so a multilevel cache can serve as a
// level of another one.
type Multilevel struct {
	levels    []Cache
	model     Model
	fallback  Fallback
	fallbacks map[string]Fallback

	log   Logger
	stats Collector

	locks       *locktable.Table
	lockTimeout time.Duration
	lockRetries int
}

var _ Cache = (*Multilevel)(nil)

// New builds a Multilevel from opts. The level list must be non-empty; a
// multilevel cache with no levels is meaningless and rejected with a
// *ConfigError.
func New(opts Options) (*Multilevel, error) {
	if len(opts.Levels) == 0 {
		return nil, &ConfigError{Reason: "at least one level is required"}
	}
	m := &Multilevel{
		levels:    append([]Cache(nil), opts.Levels...),
		model:     opts.Model,
		fallback:  opts.Fallback,
		fallbacks: opts.Fallbacks,
		locks:     locktable.New(),
	}
	m.log = coalesce[Logger](opts.Logger, NopLogger{})
	m.stats = coalesce[Collector](opts.Stats, NopCollector{})
	m.lockTimeout = coalesce[time.Duration](opts.LockTimeout, time.Second)
	m.lockRetries = coalesce[int](opts.LockRetries, 5)
	return m, nil
}

// Levels returns the number of configured levels.
func (m *Multilevel) Levels() int { return len(m.levels) }

// ModelInUse returns the active consistency model.
func (m *Multilevel) ModelInUse() Model { return m.model }

// selected resolves the level option into the slice of levels an operation
// acts on. Level 0 means all levels, in order.
func (m *Multilevel) selected(co CallOptions) ([]Cache, error) {
	if co.Level == 0 {
		return m.levels, nil
	}
	if co.Level < 1 || co.Level > len(m.levels) {
		return nil, &ConfigError{
			Reason: fmt.Sprintf("level %d out of range 1..%d", co.Level, len(m.levels)),
		}
	}
	return m.levels[co.Level-1 : co.Level], nil
}

// Get scans levels in order and returns the first hit. Under the inclusive
// model a hit below level 1 is backfilled into all earlier levels before Get
// returns; under the exclusive model it is relocated to level 1. On a total
// miss the fallback (per-call, named or configured) runs and its non-nil
// result is written to level 1 only.
func (m *Multilevel) Get(ctx context.Context, key string, opts ...Option) (*Object, bool, error) {
	co := ParseOptions(opts...)

	obj, ok, err := m.lookup(ctx, key)
	if err != nil || ok {
		return obj, ok, err
	}

	fb, err := m.resolveFallback(co)
	if err != nil {
		return nil, false, err
	}
	if fb == nil {
		return nil, false, nil
	}

	// Fallback failures are the caller's problem; nothing is cached then.
	m.stats.IncCounter(MetricFallbacks, 1)
	v, err := fb(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	stored, err := m.levels[0].Set(ctx, key, v, co.writeOpts()...)
	if err != nil {
		return nil, false, err
	}
	m.log.Debug("fallback result stored at level 1", Fields{"key": key})
	return stored, true, nil
}

// lookup is Get without the fallback: the level scan plus the model's
// backfill/relocation side effects. Both run synchronously, so the movement
// is visible before the call returns.
func (m *Multilevel) lookup(ctx context.Context, key string) (*Object, bool, error) {
	for i, lvl := range m.levels {
		obj, ok, err := lvl.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		m.stats.IncCounter(MetricHits, 1)
		if i == 0 {
			return obj, true, nil
		}

		switch m.model {
		case ModelExclusive:
			// Delete-then-set: a concurrent reader can transiently observe
			// the key absent from both levels. Documented race.
			if err := lvl.Delete(ctx, key); err != nil {
				return nil, false, err
			}
			moved, err := m.levels[0].Set(ctx, key, obj.Value)
			if err != nil {
				return nil, false, err
			}
			m.stats.IncCounter(MetricPromotions, 1)
			m.log.Debug("relocated key to level 1", Fields{"key": key, "from": i + 1})
			return moved, true, nil
		default:
			for j := 0; j < i; j++ {
				if _, err := m.levels[j].Set(ctx, key, obj.Value); err != nil {
					return nil, false, err
				}
			}
			m.stats.IncCounter(MetricBackfills, 1)
			m.log.Debug("backfilled key into earlier levels", Fields{"key": key, "from": i + 1})
			return obj, true, nil
		}
	}
	m.stats.IncCounter(MetricMisses, 1)
	return nil, false, nil
}

// peek is a side-effect-free read across levels, shallowest hit wins.
func (m *Multilevel) peek(ctx context.Context, key string) (*Object, bool, error) {
	for _, lvl := range m.levels {
		obj, ok, err := lvl.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return obj, true, nil
		}
	}
	return nil, false, nil
}

// Set writes the identical value to every selected level in order 1..N.
// There is no merge logic; the last write per level wins independently.
func (m *Multilevel) Set(ctx context.Context, key string, value any, opts ...Option) (*Object, error) {
	co := ParseOptions(opts...)
	lvls, err := m.selected(co)
	if err != nil {
		return nil, err
	}
	var first *Object
	for _, lvl := range lvls {
		obj, err := lvl.Set(ctx, key, value, co.writeOpts()...)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = obj
		}
	}
	return first, nil
}

// Delete removes key from every selected level regardless of where it
// actually resides. Not-found at an individual level is not an error.
func (m *Multilevel) Delete(ctx context.Context, key string, opts ...Option) error {
	co := ParseOptions(opts...)
	lvls, err := m.selected(co)
	if err != nil {
		return err
	}
	for _, lvl := range lvls {
		if err := lvl.Delete(ctx, key, co.writeOpts()...); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether any level holds key, short-circuiting on the first
// level that does.
func (m *Multilevel) Has(ctx context.Context, key string) (bool, error) {
	for _, lvl := range m.levels {
		ok, err := lvl.Has(ctx, key)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Size sums Size across all levels. The sum is NOT deduplicated: a key
// replicated under the inclusive model counts once per level holding it.
// This is raw storage footprint, not logical key count; Keys gives the
// latter.
func (m *Multilevel) Size(ctx context.Context) (int, error) {
	total := 0
	for _, lvl := range m.levels {
		n, err := lvl.Size(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Flush clears every level. Best-effort: the clears are not atomic across
// levels, so a failure mid-flush leaves earlier levels cleared and later
// ones not.
func (m *Multilevel) Flush(ctx context.Context) error {
	for _, lvl := range m.levels {
		if err := lvl.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the deduplicated union of Keys across all levels, unordered.
func (m *Multilevel) Keys(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, lvl := range m.levels {
		ks, err := lvl.Keys(ctx)
		if err != nil {
			return nil, err
		}
		for _, k := range ks {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out, nil
}

// Reduce folds fn over levels in order 1..N, deduplicating by key: once a
// key has been folded from an earlier level, deeper occurrences are skipped.
// Level precedence therefore decides which value wins when a key diverges
// across levels.
func (m *Multilevel) Reduce(ctx context.Context, acc any, fn ReduceFunc, opts ...Option) (any, error) {
	seen := make(map[string]struct{})
	for _, lvl := range m.levels {
		next, err := lvl.Reduce(ctx, acc, func(a any, obj *Object) any {
			if _, dup := seen[obj.Key]; dup {
				return a
			}
			seen[obj.Key] = struct{}{}
			return fn(a, obj)
		})
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

// ToMap merges all levels into one mapping with the same deduplication rule
// as Reduce: deeper levels only contribute keys absent from all earlier
// ones. WithReturn(ReturnObject) yields *Object values.
func (m *Multilevel) ToMap(ctx context.Context, opts ...Option) (map[string]any, error) {
	co := ParseOptions(opts...)
	merged := make(map[string]any)
	for _, lvl := range m.levels {
		part, err := lvl.ToMap(ctx, WithReturn(ReturnObject))
		if err != nil {
			return nil, err
		}
		for k, v := range part {
			if _, dup := merged[k]; !dup {
				merged[k] = v
			}
		}
	}
	if co.Return == ReturnObject {
		return merged, nil
	}
	for k, v := range merged {
		merged[k] = v.(*Object).Value
	}
	return merged, nil
}

// Take reads key exactly as Get would (including the model's backfill or
// relocation side effects, but never the fallback) and then deletes it from
// every level. With WithVersion, a mismatch against the currently stored
// Object fails with a *VersionConflictError and deletes nothing. A total
// miss returns (nil, false, nil).
func (m *Multilevel) Take(ctx context.Context, key string, opts ...Option) (*Object, bool, error) {
	co := ParseOptions(opts...)
	if co.HasVersion {
		cur, ok, err := m.peek(ctx, key)
		if err != nil {
			return nil, false, err
		}
		var got uint64
		if ok {
			got = cur.Version
		}
		if !ok || cur.Version != co.Version {
			return nil, false, &VersionConflictError{Key: key, Want: co.Version, Got: got}
		}
	}
	obj, ok, err := m.lookup(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	for _, lvl := range m.levels {
		if err := lvl.Delete(ctx, key); err != nil {
			return nil, false, err
		}
	}
	return obj, true, nil
}

// GetAndUpdate reads the current value of key (nil when absent), applies fn
// and either stores the returned next value with Set semantics over the
// selected levels, or deletes the key when fn asks for a pop. The value fn
// hands back is returned alongside the stored Object (nil after a pop).
//
// The read-modify-write is not atomic across levels; run it inside a
// Transaction when cross-operation consistency matters.
func (m *Multilevel) GetAndUpdate(ctx context.Context, key string, fn GetAndUpdateFunc, opts ...Option) (any, *Object, error) {
	co := ParseOptions(opts...)
	lvls, err := m.selected(co)
	if err != nil {
		return nil, nil, err
	}

	cur, ok, err := m.readCurrent(ctx, key, co, lvls)
	if err != nil {
		return nil, nil, err
	}
	var curVal any
	if ok {
		curVal = cur.Value
	}

	ret, next, pop := fn(curVal)
	if pop {
		for _, lvl := range lvls {
			if err := lvl.Delete(ctx, key); err != nil {
				return nil, nil, err
			}
		}
		return ret, nil, nil
	}

	var first *Object
	for _, lvl := range lvls {
		obj, err := lvl.Set(ctx, key, next, co.writeOpts()...)
		if err != nil {
			return nil, nil, err
		}
		if first == nil {
			first = obj
		}
	}
	return ret, first, nil
}

// Update stores fn(current) when key is present and initial when it is not,
// writing with the same Set semantics as GetAndUpdate.
func (m *Multilevel) Update(ctx context.Context, key string, initial any, fn UpdateFunc, opts ...Option) (*Object, error) {
	co := ParseOptions(opts...)
	lvls, err := m.selected(co)
	if err != nil {
		return nil, err
	}

	cur, ok, err := m.readCurrent(ctx, key, co, lvls)
	if err != nil {
		return nil, err
	}
	next := initial
	if ok {
		next = fn(cur.Value)
	}

	var first *Object
	for _, lvl := range lvls {
		obj, err := lvl.Set(ctx, key, next, co.writeOpts()...)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = obj
		}
	}
	return first, nil
}

// readCurrent reads the value an RMW operation starts from: the single
// selected level when one was given, otherwise the shallowest hit across
// all levels.
func (m *Multilevel) readCurrent(ctx context.Context, key string, co CallOptions, lvls []Cache) (*Object, bool, error) {
	if co.Level != 0 {
		return lvls[0].Get(ctx, key)
	}
	return m.peek(ctx, key)
}

// UpdateCounter increments the counter at key on every selected level with
// the same delta. Each level keeps its own counter; they are not kept in
// sync beyond receiving the same delta. The value returned is the one from
// the shallowest selected level.
func (m *Multilevel) UpdateCounter(ctx context.Context, key string, delta int64, opts ...Option) (int64, error) {
	co := ParseOptions(opts...)
	lvls, err := m.selected(co)
	if err != nil {
		return 0, err
	}
	var first int64
	for i, lvl := range lvls {
		n, err := lvl.UpdateCounter(ctx, key, delta)
		if err != nil {
			return 0, err
		}
		if i == 0 {
			first = n
		}
	}
	return first, nil
}

// Close closes every level, returning the combined errors.
func (m *Multilevel) Close(ctx context.Context) error {
	var errs []error
	for _, lvl := range m.levels {
		if err := lvl.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multilevel) resolveFallback(co CallOptions) (Fallback, error) {
	if co.Fallback != nil {
		return co.Fallback, nil
	}
	if co.FallbackName != "" {
		fb, ok := m.fallbacks[co.FallbackName]
		if !ok {
			return nil, &ConfigError{Reason: fmt.Sprintf("unknown fallback %q", co.FallbackName)}
		}
		return fb, nil
	}
	return m.fallback, nil
}
