package codec

import (
	"strings"
	"testing"
)

func TestMsgpackIntegerFidelity(t *testing.T) {
	c := Msgpack{}
	for _, n := range []int64{0, 1, 127, 128, -1, 1 << 40} {
		b, err := c.Encode(n)
		if err != nil {
			t.Fatalf("Encode(%d): %v", n, err)
		}
		v, err := c.Decode(b)
		if err != nil {
			t.Fatalf("Decode(%d): %v", n, err)
		}
		got, ok := v.(int64)
		if !ok || got != n {
			t.Fatalf("round-trip of %d gave %v (%T)", n, v, v)
		}
	}
}

func TestJSONDynamicMapping(t *testing.T) {
	c := JSON{}
	b, err := c.Encode(map[string]any{"n": 3})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	v, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", v)
	}
	if _, ok := m["n"].(float64); !ok {
		t.Fatalf("json number decoded as %T, want float64", m["n"])
	}
}

func TestCBORRoundTrip(t *testing.T) {
	c := MustCBOR(true)
	b, err := c.Encode("value")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	v, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v != "value" {
		t.Fatalf("round-trip gave %v", v)
	}
}

func TestLimitRejectsOversizedPayloads(t *testing.T) {
	c := Limit{Inner: JSON{}, MaxDecode: 8}

	small, err := c.Encode("ok")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := c.Decode(small); err != nil {
		t.Fatalf("Decode small: %v", err)
	}

	big, err := c.Encode(strings.Repeat("x", 64))
	if err != nil {
		t.Fatalf("Encode big: %v", err)
	}
	if _, err := c.Decode(big); err == nil {
		t.Fatal("Decode accepted an oversized payload")
	}

	// MaxDecode <= 0 disables the check
	unlimited := Limit{Inner: JSON{}, MaxDecode: 0}
	if _, err := unlimited.Decode(big); err != nil {
		t.Fatalf("Decode with limit disabled: %v", err)
	}
}

func TestProtobufRejectsNonMessages(t *testing.T) {
	c := NewProtobuf(nil)
	if _, err := c.Encode("not a message"); err == nil {
		t.Fatal("Encode accepted a non-proto value")
	}
}
