package stratacache

import "time"

// CallOptions is the materialized form of one operation's options. Backend
// implementations call ParseOptions on the opts they receive and read the
// fields they honor (TTL, version, return shape); the coordinator interprets
// the rest.
type CallOptions struct {
	// Level targets a single level (1-based). 0 means all levels.
	Level int

	// Return selects bare values or full Objects in dynamic containers.
	Return Return

	// Version plus HasVersion make writes and deletes conditional on the
	// stored Object still carrying Version.
	Version    uint64
	HasVersion bool

	// TTL bounds the lifetime of a written entry. 0 means no expiry.
	TTL time.Duration

	// Fallback and FallbackName select a miss fallback for a single Get.
	Fallback     Fallback
	FallbackName string

	// Keys, Retries and LockTimeout apply to Transaction only.
	Keys        []string
	Retries     int
	LockTimeout time.Duration
}

// Option tunes a single cache operation. Backends ignore options they have
// no use for; the coordinator validates the ones it interprets itself.
type Option func(*CallOptions)

// ParseOptions folds opts into a CallOptions.
func ParseOptions(opts ...Option) CallOptions {
	var co CallOptions
	for _, o := range opts {
		o(&co)
	}
	return co
}

// WithLevel targets a single level (1-based) instead of all of them.
// Interpreted by the coordinator on Set, Delete, UpdateCounter, Update,
// GetAndUpdate and Take. A level outside 1..N fails with a *ConfigError.
func WithLevel(n int) Option {
	return func(co *CallOptions) { co.Level = n }
}

// WithReturn selects bare values or full Objects where the operation returns
// a dynamic container (ToMap).
func WithReturn(r Return) Option {
	return func(co *CallOptions) { co.Return = r }
}

// WithVersion makes a write, delete or take conditional on the stored Object
// still carrying version v. On mismatch the operation fails with a
// *VersionConflictError and changes nothing.
func WithVersion(v uint64) Option {
	return func(co *CallOptions) {
		co.Version = v
		co.HasVersion = true
	}
}

// WithTTL bounds the lifetime of the entry written by Set. Zero means no
// expiry. Backends without per-entry TTL support (bigcache) ignore it.
func WithTTL(ttl time.Duration) Option {
	return func(co *CallOptions) { co.TTL = ttl }
}

// WithFallback supplies an inline fallback for this Get only, overriding any
// configured one.
func WithFallback(fn Fallback) Option {
	return func(co *CallOptions) { co.Fallback = fn }
}

// WithFallbackName selects a fallback registered in Options.Fallbacks. An
// unknown name fails the Get with a *ConfigError.
func WithFallbackName(name string) Option {
	return func(co *CallOptions) { co.FallbackName = name }
}

// WithKeys declares the keys a Transaction locks. Default is a single
// whole-cache lock.
func WithKeys(keys ...string) Option {
	return func(co *CallOptions) { co.Keys = keys }
}

// WithRetries caps the number of lock-acquisition attempts of a Transaction.
func WithRetries(n int) Option {
	return func(co *CallOptions) { co.Retries = n }
}

// WithLockTimeout overrides the per-attempt lock wait of a Transaction.
func WithLockTimeout(d time.Duration) Option {
	return func(co *CallOptions) { co.LockTimeout = d }
}

// writeOpts re-packs the write-relevant options for forwarding to a level.
func (co CallOptions) writeOpts() []Option {
	var out []Option
	if co.TTL > 0 {
		out = append(out, WithTTL(co.TTL))
	}
	if co.HasVersion {
		out = append(out, WithVersion(co.Version))
	}
	return out
}
