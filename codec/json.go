package codec

import "encoding/json"

// JSON is a Codec on encoding/json. Decoded values follow json's dynamic
// mapping: numbers become float64, objects map[string]any. Prefer Msgpack
// when integer fidelity matters.
type JSON struct{}

var _ Codec = JSON{}

func (JSON) Encode(v any) ([]byte, error) { return json.Marshal(v) }
func (JSON) Decode(b []byte) (any, error) {
	var v any
	err := json.Unmarshal(b, &v)
	return v, err
}
