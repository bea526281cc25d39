// Package cell implements the content-addressed node of a bag of cells: an
// immutable bit payload with up to four child references, hashed bottom-up
// per level.
package cell

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/xerrors"
)

const (
	// MaxBits is the largest payload a cell can hold.
	MaxBits = 1023
	// MaxRefs is the largest number of child references.
	MaxRefs = 4
	// MaxDepth bounds the depth of any cell.
	MaxDepth = 1024
)

var (
	ErrOverflow      = errors.New("cell overflow")
	ErrInvalidExotic = errors.New("invalid exotic cell")
	ErrDepthLimit    = errors.New("cell depth limit exceeded")
	ErrNoReference   = errors.New("no such cell reference")
)

// Type tags the variant of a cell. Exotic variants use the value of their
// leading type byte.
type Type uint8

const (
	Ordinary         Type = 0
	PrunedBranch     Type = 1
	LibraryReference Type = 2
	MerkleProof      Type = 3
	MerkleUpdate     Type = 4
)

func (t Type) String() string {
	switch t {
	case Ordinary:
		return "ordinary"
	case PrunedBranch:
		return "pruned_branch"
	case LibraryReference:
		return "library_reference"
	case MerkleProof:
		return "merkle_proof"
	case MerkleUpdate:
		return "merkle_update"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// IsMerkle reports whether the variant shifts its children's levels.
func (t Type) IsMerkle() bool {
	return t == MerkleProof || t == MerkleUpdate
}

// Cell is a node of a cell DAG. Implementations are immutable. Reference
// may fail for cells whose children are loaded on demand.
type Cell interface {
	Descriptor() Descriptor
	Bits() BitString
	RefCount() int
	Reference(i int) (Cell, error)
	Hash(level int) Hash
	Depth(level int) int
}

// ReprHash is the hash identifying a cell, the one at the highest level.
func ReprHash(c Cell) Hash {
	return c.Hash(MaxLevel)
}

// Equal reports whether two cells have identical content.
func Equal(a, b Cell) bool {
	return ReprHash(a) == ReprHash(b)
}

// DataCell is a fully built cell. The variant is given by Type and the
// variant accessors return false for other variants.
type DataCell struct {
	typ    Type
	desc   Descriptor
	bits   BitString
	refs   []Cell
	hashes []Hash
	depths []int
}

var _ Cell = (*DataCell)(nil)

// New builds a cell from a payload and children, validating exotic layouts
// and computing hashes and depths.
func New(bits BitString, refs []Cell, exotic bool) (*DataCell, error) {
	if bits.Len() > MaxBits {
		return nil, xerrors.Errorf("%d bits: %w", bits.Len(), ErrOverflow)
	}
	if len(refs) > MaxRefs {
		return nil, xerrors.Errorf("%d references: %w", len(refs), ErrOverflow)
	}
	for i, r := range refs {
		if r == nil {
			return nil, xerrors.Errorf("reference %d is nil", i)
		}
	}

	typ := Ordinary
	data := bits.Bytes()
	if exotic {
		if bits.Len() < 8 {
			return nil, xerrors.Errorf("exotic cell needs a type byte: %w", ErrInvalidExotic)
		}
		typ = Type(data[0])
		if typ < PrunedBranch || typ > MerkleUpdate {
			return nil, xerrors.Errorf("unknown exotic type %d: %w", data[0], ErrInvalidExotic)
		}
	}

	var mask LevelMask
	switch typ {
	case Ordinary:
		for _, r := range refs {
			mask |= r.Descriptor().LevelMask()
		}
	case PrunedBranch:
		if len(refs) != 0 {
			return nil, xerrors.Errorf("pruned branch has references: %w", ErrInvalidExotic)
		}
		if bits.Len() < 16 {
			return nil, xerrors.Errorf("pruned branch too short: %w", ErrInvalidExotic)
		}
		if data[1] > 0b111 || data[1] == 0 {
			return nil, xerrors.Errorf("pruned branch level mask %#b: %w", data[1], ErrInvalidExotic)
		}
		mask = LevelMask(data[1])
		if want := (2 + mask.HashIndex()*(HashSize+DepthSize)) * 8; bits.Len() != want {
			return nil, xerrors.Errorf("pruned branch has %d bits, expected %d: %w", bits.Len(), want, ErrInvalidExotic)
		}
	case LibraryReference:
		if len(refs) != 0 {
			return nil, xerrors.Errorf("library reference has references: %w", ErrInvalidExotic)
		}
		if bits.Len() != 8*(1+HashSize) {
			return nil, xerrors.Errorf("library reference has %d bits: %w", bits.Len(), ErrInvalidExotic)
		}
	case MerkleProof:
		if len(refs) != 1 {
			return nil, xerrors.Errorf("merkle proof has %d references: %w", len(refs), ErrInvalidExotic)
		}
		if bits.Len() != 8*(1+HashSize+DepthSize) {
			return nil, xerrors.Errorf("merkle proof has %d bits: %w", bits.Len(), ErrInvalidExotic)
		}
		if err := checkVirtual(refs[0], data[1:1+HashSize], data[1+HashSize:]); err != nil {
			return nil, err
		}
		mask = refs[0].Descriptor().LevelMask().Shift(1)
	case MerkleUpdate:
		if len(refs) != 2 {
			return nil, xerrors.Errorf("merkle update has %d references: %w", len(refs), ErrInvalidExotic)
		}
		if bits.Len() != 8*(1+2*(HashSize+DepthSize)) {
			return nil, xerrors.Errorf("merkle update has %d bits: %w", bits.Len(), ErrInvalidExotic)
		}
		depths := data[1+2*HashSize:]
		for i, r := range refs {
			if err := checkVirtual(r, data[1+i*HashSize:1+(i+1)*HashSize], depths[i*DepthSize:]); err != nil {
				return nil, err
			}
		}
		mask = (refs[0].Descriptor().LevelMask() | refs[1].Descriptor().LevelMask()).Shift(1)
	}

	c := &DataCell{
		typ:  typ,
		desc: NewDescriptor(mask, exotic, len(refs), bits.Len()),
		bits: bits,
		refs: append([]Cell(nil), refs...),
	}
	c.computeHashes()
	if d := c.depths[len(c.depths)-1]; d > MaxDepth {
		return nil, xerrors.Errorf("depth %d: %w", d, ErrDepthLimit)
	}
	return c, nil
}

func checkVirtual(child Cell, hash, depth []byte) error {
	h := child.Hash(0)
	if string(h[:]) != string(hash) {
		return xerrors.Errorf("merkle hash does not match child %s: %w", h, ErrInvalidExotic)
	}
	if d := int(binary.BigEndian.Uint16(depth)); d != child.Depth(0) {
		return xerrors.Errorf("merkle depth %d does not match child depth %d: %w", d, child.Depth(0), ErrInvalidExotic)
	}
	return nil
}

func (c *DataCell) computeHashes() {
	mask := c.desc.LevelMask()
	count := mask.HashCount()
	c.hashes = make([]Hash, count)
	c.depths = make([]int, count)

	// Lower levels of a pruned branch are stored in its payload.
	offset := 0
	if c.typ == PrunedBranch {
		offset = count - 1
		data := c.bits.Bytes()
		for i := 0; i < offset; i++ {
			copy(c.hashes[i][:], data[2+i*HashSize:])
			c.depths[i] = int(binary.BigEndian.Uint16(data[2+offset*HashSize+i*DepthSize:]))
		}
	}

	shift := 0
	if c.typ.IsMerkle() {
		shift = 1
	}

	h := newHasher()
	hashI := 0
	for level := 0; level <= mask.Level(); level++ {
		if !mask.IsSignificant(level) {
			continue
		}
		if hashI < offset {
			hashI++
			continue
		}
		h.write(computeD1(mask.Apply(level), c.desc.IsExotic(), len(c.refs)), c.desc.D2)
		if hashI == offset {
			h.writeBytes(c.bits.Augmented())
		} else {
			h.writeBytes(c.hashes[hashI-1][:])
		}

		childLevel := level + shift
		depth := 0
		for _, r := range c.refs {
			d := r.Depth(childLevel)
			h.write(byte(d>>8), byte(d))
			if d+1 > depth {
				depth = d + 1
			}
		}
		for _, r := range c.refs {
			rh := r.Hash(childLevel)
			h.writeBytes(rh[:])
		}
		c.hashes[hashI] = h.sum()
		c.depths[hashI] = depth
		hashI++
	}
}

func (c *DataCell) Type() Type {
	return c.typ
}

func (c *DataCell) Descriptor() Descriptor {
	return c.desc
}

func (c *DataCell) Bits() BitString {
	return c.bits
}

func (c *DataCell) RefCount() int {
	return len(c.refs)
}

func (c *DataCell) Reference(i int) (Cell, error) {
	if i < 0 || i >= len(c.refs) {
		return nil, xerrors.Errorf("reference %d of %d: %w", i, len(c.refs), ErrNoReference)
	}
	return c.refs[i], nil
}

// Refs returns the children. The caller must not modify the slice.
func (c *DataCell) Refs() []Cell {
	return c.refs
}

func (c *DataCell) LevelMask() LevelMask {
	return c.desc.LevelMask()
}

func (c *DataCell) Level() int {
	return c.desc.LevelMask().Level()
}

func (c *DataCell) Hash(level int) Hash {
	return c.hashes[c.desc.LevelMask().Apply(level).HashIndex()]
}

func (c *DataCell) Depth(level int) int {
	return c.depths[c.desc.LevelMask().Apply(level).HashIndex()]
}

// PrunedHash returns the hash and depth a pruned branch stores for level.
// The top level of a pruned branch is its own hash and is not stored.
func (c *DataCell) PrunedHash(level int) (Hash, int, bool) {
	if c.typ != PrunedBranch {
		return Hash{}, 0, false
	}
	i := c.desc.LevelMask().Apply(level).HashIndex()
	if i == len(c.hashes)-1 {
		return Hash{}, 0, false
	}
	return c.hashes[i], c.depths[i], true
}

// LibraryHash returns the hash of the library cell a reference points to.
func (c *DataCell) LibraryHash() (Hash, bool) {
	var h Hash
	if c.typ != LibraryReference {
		return h, false
	}
	copy(h[:], c.bits.Bytes()[1:])
	return h, true
}

// MerkleHash returns the virtual hash and depth recorded for the i-th child
// of a Merkle proof or update.
func (c *DataCell) MerkleHash(i int) (Hash, int, bool) {
	var h Hash
	if !c.typ.IsMerkle() || i < 0 || i >= len(c.refs) {
		return h, 0, false
	}
	data := c.bits.Bytes()
	copy(h[:], data[1+i*HashSize:])
	depths := data[1+len(c.refs)*HashSize:]
	return h, int(binary.BigEndian.Uint16(depths[i*DepthSize:])), true
}

func (c *DataCell) String() string {
	return fmt.Sprintf("%s{%s refs=%d bits=%s}", c.typ, c.Hash(MaxLevel), len(c.refs), c.bits)
}
