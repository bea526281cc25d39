package cell

import "fmt"

const (
	levelMaskBits = 0b1110_0000
	hasHashesBit  = 0b0001_0000
	exoticBit     = 0b0000_1000
	refCountBits  = 0b0000_0111
)

// Descriptor is the two byte header of a serialized cell.
type Descriptor struct {
	// D1 packs the reference count, exotic flag, embedded-hashes flag and
	// the level mask.
	D1 byte
	// D2 packs the payload length in bytes and whether the last byte is
	// partial.
	D2 byte
}

// NewDescriptor builds a descriptor without the embedded-hashes flag.
func NewDescriptor(mask LevelMask, exotic bool, refs, bitLen int) Descriptor {
	return Descriptor{
		D1: computeD1(mask, exotic, refs),
		D2: computeD2(bitLen),
	}
}

func computeD1(mask LevelMask, exotic bool, refs int) byte {
	d1 := byte(mask&0b111)<<5 | byte(refs&refCountBits)
	if exotic {
		d1 |= exoticBit
	}
	return d1
}

func computeD2(bitLen int) byte {
	return byte(bitLen/8 + (bitLen+7)/8)
}

func (d Descriptor) LevelMask() LevelMask {
	return LevelMask(d.D1 >> 5)
}

// HasHashes reports whether the serialized form embeds hashes and depths.
func (d Descriptor) HasHashes() bool {
	return d.D1&hasHashesBit != 0
}

func (d Descriptor) IsExotic() bool {
	return d.D1&exoticBit != 0
}

func (d Descriptor) RefCount() int {
	return int(d.D1 & refCountBits)
}

// IsAbsent reports the "absent cell" marker, which carries no body.
func (d Descriptor) IsAbsent() bool {
	return d.D1&(exoticBit|refCountBits) == exoticBit|refCountBits
}

// IsAligned reports whether the payload is a whole number of bytes.
func (d Descriptor) IsAligned() bool {
	return d.D2&1 == 0
}

// ByteLen is the length of the serialized payload, completion tag included.
func (d Descriptor) ByteLen() int {
	return int(d.D2>>1) + int(d.D2&1)
}

// Type classifies the cell by its descriptor alone. Exotic type bytes are
// not consulted, so Merkle proofs and updates are told apart by their
// reference count.
func (d Descriptor) Type() Type {
	if !d.IsExotic() {
		return Ordinary
	}
	switch d.RefCount() {
	case 0:
		if d.LevelMask().IsEmpty() {
			return LibraryReference
		}
		return PrunedBranch
	case 1:
		return MerkleProof
	default:
		return MerkleUpdate
	}
}

// HashCount is the number of hash/depth pairs embedded when HasHashes is
// set. Pruned branches embed only their own top hash.
func (d Descriptor) HashCount() int {
	if d.Type() == PrunedBranch {
		return 1
	}
	return d.LevelMask().HashCount()
}

// WithHashes returns the descriptor with the embedded-hashes flag set.
func (d Descriptor) WithHashes() Descriptor {
	d.D1 |= hasHashesBit
	return d
}

// WithoutHashes returns the descriptor with the embedded-hashes flag cleared.
func (d Descriptor) WithoutHashes() Descriptor {
	d.D1 &^= hasHashesBit
	return d
}

func (d Descriptor) String() string {
	return fmt.Sprintf("d1=%#02x d2=%#02x", d.D1, d.D2)
}
