// Package counter normalizes stored counter values. Codecs round-trip
// integers through different dynamic types (JSON gives float64, msgpack
// int64, cbor uint64), so every backend funnels counter reads through
// Coerce.
package counter

// Coerce converts a stored value to int64. ok is false when the value is not
// an integral number.
func Coerce(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case float32:
		if float64(n) == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
