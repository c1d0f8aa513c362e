package stratacache

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid configuration or an invalid level selector.
// It is fatal at the point raised and never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "stratacache: " + e.Reason
}

// VersionConflictError reports a write, delete or take whose target version
// no longer matches the stored Object. The operation changed nothing; the
// caller must re-read and decide.
type VersionConflictError struct {
	Key  string
	Want uint64 // version the caller expected
	Got  uint64 // version actually stored; 0 when the key was absent
}

func (e *VersionConflictError) Error() string {
	if e.Got == 0 {
		return fmt.Sprintf("stratacache: version conflict on %q: want %d, key absent", e.Key, e.Want)
	}
	return fmt.Sprintf("stratacache: version conflict on %q: want %d, have %d", e.Key, e.Want, e.Got)
}

// TransactionAbortedError reports a transaction that exhausted its
// lock-acquisition retry budget. The supplied function never ran.
type TransactionAbortedError struct {
	Keys     []string
	Attempts int
}

func (e *TransactionAbortedError) Error() string {
	return fmt.Sprintf("stratacache: transaction aborted: could not lock [%s] after %d attempt(s)",
		strings.Join(e.Keys, ", "), e.Attempts)
}
