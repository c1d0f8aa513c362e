package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack is a Codec on vmihailenco/msgpack/v5. The zero value is ready to
// use. Compact, fast, and round-trips integers as int64, which makes it the
// recommended codec for levels that store counters.
type Msgpack struct{}

var _ Codec = Msgpack{}

func (Msgpack) Encode(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (Msgpack) Decode(b []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	// loose decoding widens integers to int64/uint64 instead of int8 and
	// friends, which is what the counter path expects
	dec.UseLooseInterfaceDecoding(true)
	return dec.DecodeInterface()
}
