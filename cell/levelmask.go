package cell

import "math/bits"

// MaxLevel is the highest level a cell can carry hashes for.
const MaxLevel = 3

// LevelMask is the de Bruijn level presence bitset of a cell. Bit i set
// means the cell has a distinct hash at level i+1.
type LevelMask uint8

// LevelMaskFor returns the mask containing only the given level.
func LevelMaskFor(level int) LevelMask {
	if level == 0 {
		return 0
	}
	return LevelMask(1 << uint(level-1))
}

// Level is the number of the highest level present in the mask.
func (m LevelMask) Level() int {
	return bits.Len8(uint8(m & 0b111))
}

// HashIndex counts the levels present in the mask.
func (m LevelMask) HashIndex() int {
	return bits.OnesCount8(uint8(m & 0b111))
}

// HashCount is the number of distinct hashes a cell with this mask has.
func (m LevelMask) HashCount() int {
	return m.HashIndex() + 1
}

// Apply restricts the mask to levels below level.
func (m LevelMask) Apply(level int) LevelMask {
	if level >= 8 {
		return m & 0b111
	}
	return m & 0b111 & LevelMask((1<<uint(level))-1)
}

// IsSignificant reports whether level has its own hash under this mask.
func (m LevelMask) IsSignificant(level int) bool {
	return level == 0 || (m>>uint(level-1))&1 != 0
}

// Shift drops the lowest n levels, as Merkle cells do with their children.
func (m LevelMask) Shift(n int) LevelMask {
	return (m & 0b111) >> uint(n)
}

func (m LevelMask) IsEmpty() bool {
	return m&0b111 == 0
}
