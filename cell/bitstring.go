package cell

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/bits"
)

var errBadCompletionTag = errors.New("payload has no completion tag")

// BitString is an immutable big-endian sequence of bits. Bits past Len in
// the last byte are always zero.
type BitString struct {
	data []byte
	n    int
}

// NewBitString takes the first n bits of data. It panics if data is too
// short, like slicing would.
func NewBitString(data []byte, n int) BitString {
	size := (n + 7) / 8
	buf := make([]byte, size)
	copy(buf, data[:size])
	if r := n % 8; r != 0 {
		buf[size-1] &= byte(0xff << uint(8-r))
	}
	return BitString{data: buf, n: n}
}

// ParseAugmented decodes a payload as stored on the wire. Unaligned
// payloads end with a completion tag which is stripped.
func ParseAugmented(data []byte, aligned bool) (BitString, error) {
	if aligned || len(data) == 0 {
		return NewBitString(data, len(data)*8), nil
	}
	last := data[len(data)-1]
	if last == 0 {
		return BitString{}, errBadCompletionTag
	}
	n := len(data)*8 - bits.TrailingZeros8(last) - 1
	return NewBitString(data, n), nil
}

func (b BitString) Len() int {
	return b.n
}

// Bytes returns the backing bytes. The caller must not modify them.
func (b BitString) Bytes() []byte {
	return b.data
}

// Bit returns the i-th bit.
func (b BitString) Bit(i int) bool {
	return b.data[i/8]&(0x80>>uint(i%8)) != 0
}

// Augmented returns the payload with a completion tag appended when the
// length is not a multiple of eight.
func (b BitString) Augmented() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	if r := b.n % 8; r != 0 {
		out[len(out)-1] |= 0x80 >> uint(r)
	}
	return out
}

func (b BitString) Equal(o BitString) bool {
	return b.n == o.n && bytes.Equal(b.data, o.data)
}

func (b BitString) String() string {
	s := hex.EncodeToString(b.Augmented())
	if b.n%8 != 0 {
		s += "_"
	}
	return s
}
