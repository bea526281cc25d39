package boc

import (
	"bytes"
	"hash/crc32"
	"sync"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// widthFor returns the smallest byte width n >= 1 such that v < 1<<(8n).
func widthFor(v uint64) int {
	n := 1
	for n < 8 && v >= 1<<(uint(n)*8) {
		n++
	}
	return n
}

// readUint decodes a big-endian unsigned integer of len(b) bytes.
func readUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// putUint encodes v big-endian into all of b.
func putUint(b []byte, v uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// appendUint appends v as a big-endian integer of size bytes.
func appendUint(buf []byte, v uint64, size int) []byte {
	for i := size - 1; i >= 0; i-- {
		buf = append(buf, byte(v>>(uint(i)*8)))
	}
	return buf
}

var bufferPool sync.Pool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(nil)
	},
}
