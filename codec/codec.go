// Package codec serializes cache values for byte-store backends (redis,
// bigcache). Values travel as any, so pick a codec whose dynamic round-trip
// suits your payloads: Msgpack keeps integers as int64 (required if you use
// counters on a byte-store level), JSON decodes numbers as float64 and
// objects as map[string]any.
package codec

// Codec encodes and decodes cache values to and from []byte.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}
