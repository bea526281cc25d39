package boc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonkit/go-boc/cell"
	"github.com/tonkit/go-boc/internal/cellgen"
)

// distinct counts the distinct cells reachable from roots.
func distinct(t *testing.T, roots ...cell.Cell) int {
	t.Helper()
	seen := make(map[cell.Hash]bool)
	stack := append([]cell.Cell(nil), roots...)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h := cell.ReprHash(c)
		if seen[h] {
			continue
		}
		seen[h] = true
		for i := 0; i < c.RefCount(); i++ {
			r, err := c.Reference(i)
			require.NoError(t, err)
			stack = append(stack, r)
		}
	}
	return len(seen)
}

func TestDeduplication(t *testing.T) {
	build := func() *cell.DataCell {
		leaf := mustBuild(t, cell.NewBuilder().StoreUint(5, 3))
		return mustBuild(t, cell.NewBuilder().StoreUint(9, 8).StoreRef(leaf).StoreRef(leaf))
	}
	a, b := build(), build()
	require.NotSame(t, a, b)

	top := mustBuild(t, cell.NewBuilder().StoreRef(a).StoreRef(b))
	data, err := Encode([]cell.Cell{top})
	require.NoError(t, err)
	bag, err := NewBag(NewBytesSource(data))
	require.NoError(t, err)
	require.Equal(t, 3, bag.Header().CellCount)

	root, err := cellgen.Random(5, 300, true)
	require.NoError(t, err)
	data, err = Encode([]cell.Cell{root})
	require.NoError(t, err)
	bag, err = NewBag(NewBytesSource(data))
	require.NoError(t, err)
	require.Equal(t, distinct(t, root), bag.Header().CellCount)
}

func TestForwardReferences(t *testing.T) {
	for seed := int64(0); seed < 4; seed++ {
		g := cellgen.New(newRand(seed), true)
		require.NoError(t, g.Grow(250))
		roots := g.Roots(6)

		data, err := Encode(roots, WithIndex(true))
		require.NoError(t, err)
		bag, err := NewBag(NewBytesSource(data))
		require.NoError(t, err)
		require.Equal(t, distinct(t, roots...), bag.Header().CellCount)

		for i := 0; i < bag.Header().CellCount; i++ {
			raw, err := bag.readCell(i)
			require.NoError(t, err)
			for _, r := range raw.refs {
				require.Greater(t, r, i)
			}
		}
	}
}

func TestIndexIsIncreasing(t *testing.T) {
	root, err := cellgen.Random(9, 300, true)
	require.NoError(t, err)
	for _, cacheBits := range []bool{false, true} {
		data, err := Encode([]cell.Cell{root}, WithIndex(true), WithCacheBits(cacheBits))
		require.NoError(t, err)
		bag, err := NewBag(NewBytesSource(data))
		require.NoError(t, err)
		h := bag.Header()

		prev := uint64(0)
		for i := 0; i < h.CellCount; i++ {
			pos := h.IndexOffset + int64(i*h.OffsetByteSize)
			entry := readUint(data[pos : pos+int64(h.OffsetByteSize)])
			if cacheBits {
				entry >>= 1
			}
			require.Greater(t, entry, prev)
			prev = entry
		}
		require.Equal(t, uint64(h.DataSize), prev)
	}
}

func TestEmbeddedHashCount(t *testing.T) {
	g := cellgen.New(newRand(3), true)
	require.NoError(t, g.Grow(400))
	root, err := g.Root()
	require.NoError(t, err)
	roots := append([]cell.Cell{root}, g.Roots(4)...)

	cfg := defaultEncodeConfig()
	cfg.withTopHashes, cfg.withInternalHashes = true, true
	s := newSerializer(cfg)
	for _, r := range roots {
		require.NoError(t, s.addRoot(r))
	}
	s.selectCheckpoints()
	require.NoError(t, s.reorder())

	want := 0
	for _, ci := range s.cells {
		if ci.special() || ci.isRootCell {
			want += ci.cell.Descriptor().HashCount()
		}
	}
	require.Equal(t, want, s.internalHashes+s.topHashes)

	data, err := Encode(roots, WithTopHashes(true), WithInternalHashes(true))
	require.NoError(t, err)
	bag, err := NewBag(NewBytesSource(data))
	require.NoError(t, err)
	got := 0
	for i := 0; i < bag.Header().CellCount; i++ {
		raw, err := bag.readCell(i)
		require.NoError(t, err)
		got += len(raw.hashes)
	}
	require.Equal(t, want, got)
}

func TestReorderRoots(t *testing.T) {
	cells := chain(t, 4)
	s := newSerializer(defaultEncodeConfig())
	require.NoError(t, s.addRoot(cells[3]))
	require.NoError(t, s.addRoot(cells[1]))
	s.selectCheckpoints()
	require.NoError(t, s.reorder())

	for i, ci := range s.cells {
		require.Equal(t, i, ci.index)
		for j := 0; j < ci.refCount; j++ {
			require.Less(t, ci.refs[j], i)
		}
	}
	// Roots are allocated last and so come first on the wire.
	n := len(s.cells)
	require.Equal(t, 0, n-1-s.roots[0].index)
	require.Equal(t, cells[1].Hash(0), cell.ReprHash(s.cells[s.roots[1].index].cell))
	require.Equal(t, s.roots[1].index, s.byHash[cell.ReprHash(cells[1])])
}

func TestReencodeLazy(t *testing.T) {
	bag, err := NewBag(NewBytesSource(mustEncode(t, chain(t, 70)[69], WithTopHashes(true), WithInternalHashes(true))),
		LazyLoad(true))
	require.NoError(t, err)
	root, err := bag.Root(0)
	require.NoError(t, err)

	// Re-encoding a lazily decoded DAG loads it on the way.
	data, err := Encode([]cell.Cell{root}, WithTopHashes(true), WithInternalHashes(true))
	require.NoError(t, err)
	require.Equal(t, mustEncode(t, chain(t, 70)[69], WithTopHashes(true), WithInternalHashes(true)), data)
}

func mustEncode(t *testing.T, root cell.Cell, opts ...EncodeOption) []byte {
	t.Helper()
	data, err := Encode([]cell.Cell{root}, opts...)
	require.NoError(t, err)
	return data
}
