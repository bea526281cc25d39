package cell

import "golang.org/x/xerrors"

// CreatePrunedBranch replaces c by a pruned branch at newLevel, keeping
// only its hashes and depths.
func CreatePrunedBranch(c Cell, newLevel int) (*DataCell, error) {
	mask := c.Descriptor().LevelMask()
	level := mask.Level()
	if newLevel < level+1 || newLevel > MaxLevel {
		return nil, xerrors.Errorf("cannot prune a level %d cell at level %d: %w", level, newLevel, ErrInvalidExotic)
	}

	b := NewBuilder()
	b.StoreUint(uint64(PrunedBranch), 8)
	b.StoreUint(uint64(mask.Apply(newLevel-1)|LevelMaskFor(newLevel)), 8)
	for i := 0; i <= level; i++ {
		if mask.IsSignificant(i) {
			b.StoreHash(c.Hash(i))
		}
	}
	for i := 0; i <= level; i++ {
		if mask.IsSignificant(i) {
			b.StoreUint(uint64(c.Depth(i)), 16)
		}
	}
	return b.BuildExotic()
}

// CreateMerkleProof wraps c in a Merkle proof over its level 0 hash.
func CreateMerkleProof(c Cell) (*DataCell, error) {
	return NewBuilder().
		StoreUint(uint64(MerkleProof), 8).
		StoreHash(c.Hash(0)).
		StoreUint(uint64(c.Depth(0)), 16).
		StoreRef(c).
		BuildExotic()
}

// CreateMerkleUpdate links the state before and after a change.
func CreateMerkleUpdate(from, to Cell) (*DataCell, error) {
	return NewBuilder().
		StoreUint(uint64(MerkleUpdate), 8).
		StoreHash(from.Hash(0)).
		StoreHash(to.Hash(0)).
		StoreUint(uint64(from.Depth(0)), 16).
		StoreUint(uint64(to.Depth(0)), 16).
		StoreRef(from).
		StoreRef(to).
		BuildExotic()
}

// CreateLibrary builds a reference to the library cell with hash h.
func CreateLibrary(h Hash) (*DataCell, error) {
	return NewBuilder().
		StoreUint(uint64(LibraryReference), 8).
		StoreHash(h).
		BuildExotic()
}
