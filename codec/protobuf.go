package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Protobuf is a Codec for levels whose values are all the same proto
// message type. Encode rejects values that are not proto.Message.
type Protobuf struct {
	new func() proto.Message // constructor for the concrete message
}

var _ Codec = Protobuf{}

func NewProtobuf(ctor func() proto.Message) Protobuf {
	return Protobuf{new: ctor}
}

func (c Protobuf) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("protobuf codec: %T is not a proto.Message", v)
	}
	return proto.Marshal(m)
}

func (c Protobuf) Decode(b []byte) (any, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
