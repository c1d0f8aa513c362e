package stratacache

import (
	"sync/atomic"
	"time"
)

// Object is the versioned envelope every cache operation stores and returns.
// A nil Value is a legal, explicitly stored empty entry and is distinct from
// "key not present". Objects are read-only once returned to a caller; every
// mutation produces a new Object with a fresh version.
type Object struct {
	Key     string
	Value   any
	Version uint64
}

// Return selects the shape of values in dynamic containers (ToMap).
type Return int

const (
	// ReturnValue yields bare values (the default).
	ReturnValue Return = iota
	// ReturnObject yields full *Object envelopes.
	ReturnObject
)

// versionSeq is seeded from the wall clock so versions from separate runs of
// the same process do not collide on shared backends.
var versionSeq atomic.Uint64

func init() {
	versionSeq.Store(uint64(time.Now().UnixNano()))
}

// NewVersion returns a fresh, process-unique version token. Backends call it
// on every successful write; callers only ever compare the result.
func NewVersion() uint64 {
	return versionSeq.Add(1)
}
