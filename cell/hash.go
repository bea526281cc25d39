package cell

import (
	"encoding/hex"
	"fmt"
	"hash"

	sha256 "github.com/minio/sha256-simd"
)

const (
	// HashSize is the size of a representation hash.
	HashSize = 32
	// DepthSize is the size of a serialized depth.
	DepthSize = 2
)

// Hash is a cell representation hash.
type Hash [HashSize]byte

// ParseHash decodes a hex encoded hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("expected %d hash bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func newHasher() *hasher {
	return &hasher{h: sha256.New()}
}

type hasher struct {
	h hash.Hash
}

func (s *hasher) write(b ...byte) {
	_, _ = s.h.Write(b)
}

func (s *hasher) writeBytes(b []byte) {
	_, _ = s.h.Write(b)
}

func (s *hasher) sum() Hash {
	var out Hash
	copy(out[:], s.h.Sum(nil))
	s.h.Reset()
	return out
}
