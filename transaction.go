package stratacache

import (
	"context"
	"sort"
	"time"
)

// globalLockKey stands in for "the whole cache" when a transaction declares
// no keys. The NUL prefix keeps it out of any realistic user keyspace.
const globalLockKey = "\x00stratacache/global"

type txCtxKey struct{}

type txState struct {
	owner *Multilevel
	keys  []string
}

// Transaction runs fn while holding exclusive locks on the declared keys
// (WithKeys; default is one whole-cache lock). Locks are acquired in a
// canonical sorted order so transactions over overlapping key sets cannot
// deadlock each other. Each acquisition attempt waits up to the lock
// timeout; when WithRetries attempts are exhausted the transaction fails
// with a *TransactionAbortedError and fn never runs.
//
// Any error from fn propagates to the caller after the locks are released;
// there is no rollback of work fn already performed. Locks are released
// unconditionally, in reverse acquisition order.
//
// Starting a transaction inside another one is not a no-op: the nested call
// acquires locks again, so nesting over the same keys self-aborts once the
// retry budget runs out. Callers must avoid it.
func (m *Multilevel) Transaction(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	co := ParseOptions(opts...)

	keys := co.Keys
	if len(keys) == 0 {
		keys = []string{globalLockKey}
	}
	keys = canonicalKeys(keys)

	timeout := coalesce[time.Duration](co.LockTimeout, m.lockTimeout)
	attempts := coalesce[int](co.Retries, m.lockRetries)

	start := time.Now()
	acquired := false
	for attempt := 1; attempt <= attempts; attempt++ {
		if m.acquireAll(keys, timeout) {
			acquired = true
			break
		}
		m.log.Debug("lock acquisition attempt timed out", Fields{
			"attempt": attempt, "keys": len(keys), "timeout": timeout,
		})
	}
	m.stats.ObserveHistogram(MetricLockWaitSeconds, time.Since(start).Seconds())
	if !acquired {
		m.stats.IncCounter(MetricTxAborted, 1)
		m.log.Warn("transaction aborted", Fields{"keys": len(keys), "attempts": attempts})
		return &TransactionAbortedError{Keys: keys, Attempts: attempts}
	}
	defer m.releaseAll(keys)

	txCtx := context.WithValue(ctx, txCtxKey{}, &txState{owner: m, keys: keys})
	if err := fn(txCtx); err != nil {
		return err
	}
	m.stats.IncCounter(MetricTxCommitted, 1)
	return nil
}

// InTransaction reports whether ctx is inside the dynamic extent of a
// Transaction started on this cache instance. The state travels in the
// context, so it behaves correctly across goroutines that inherit ctx.
func (m *Multilevel) InTransaction(ctx context.Context) bool {
	st, ok := ctx.Value(txCtxKey{}).(*txState)
	return ok && st.owner == m
}

// acquireAll locks every key in order within one shared deadline. On
// timeout, locks taken so far are released (in reverse) and the attempt
// reports failure.
func (m *Multilevel) acquireAll(keys []string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for i, k := range keys {
		if !m.locks.Acquire(k, time.Until(deadline)) {
			for j := i - 1; j >= 0; j-- {
				m.locks.Release(keys[j])
			}
			return false
		}
	}
	return true
}

func (m *Multilevel) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		m.locks.Release(keys[i])
	}
}

// canonicalKeys copies, sorts and deduplicates the lock set.
func canonicalKeys(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
