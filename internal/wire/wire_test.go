package wire

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		version uint64
		payload []byte
	}{
		{"empty payload", 1, nil},
		{"small", 42, []byte("hello")},
		{"zero version", 0, []byte{0x00, 0xff}},
		{"max version", math.MaxUint64, []byte("v")},
		{"binary payload", 7, bytes.Repeat([]byte{0xde, 0xad}, 512)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc := Encode(tc.version, tc.payload)
			version, payload, err := Decode(enc)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if version != tc.version {
				t.Fatalf("version=%d, want %d", version, tc.version)
			}
			if !bytes.Equal(payload, tc.payload) {
				t.Fatalf("payload=%x, want %x", payload, tc.payload)
			}
		})
	}
}

func TestDecodeRejectsCorruptEntries(t *testing.T) {
	valid := Encode(9, []byte("payload"))

	mutate := func(fn func(b []byte) []byte) []byte {
		b := make([]byte, len(valid))
		copy(b, valid)
		return fn(b)
	}

	cases := []struct {
		name string
		in   []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"short header", valid[:10]},
		{"bad magic", mutate(func(b []byte) []byte { b[0] = 'X'; return b })},
		{"bad format version", mutate(func(b []byte) []byte { b[4] = 99; return b })},
		{"truncated payload", valid[:len(valid)-2]},
		{"trailing junk", append(mutate(func(b []byte) []byte { return b }), 0x00)},
		{"length overstates payload", mutate(func(b []byte) []byte {
			b[13] = 0xff // vlen high byte
			return b
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Decode(tc.in); !errors.Is(err, ErrCorrupt) {
				t.Fatalf("Decode(%x): err=%v, want ErrCorrupt", tc.in, err)
			}
		})
	}
}
