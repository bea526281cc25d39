package boc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tonkit/go-boc/cell"
	"github.com/tonkit/go-boc/internal/cellgen"
)

// hashedCell returns the wire position and data offset of the first cell
// embedding hashes.
func hashedCell(t *testing.T, data []byte) (int, int64) {
	t.Helper()
	bag, err := NewBag(NewBytesSource(data))
	require.NoError(t, err)
	for i := 0; i < bag.Header().CellCount; i++ {
		raw, err := bag.readCell(i)
		require.NoError(t, err)
		if raw.desc.HasHashes() {
			start, _, _, err := bag.location(i)
			require.NoError(t, err)
			return i, bag.Header().DataOffset + start
		}
	}
	t.Fatal("no cell with embedded hashes")
	return 0, 0
}

func TestCRCMismatch(t *testing.T) {
	root, err := cellgen.Random(1, 50, true)
	require.NoError(t, err)
	data, err := Encode([]cell.Cell{root}, WithCRC32C(true), WithIndex(true))
	require.NoError(t, err)

	_, err = Decode(data)
	require.NoError(t, err)

	bag, err := NewBag(NewBytesSource(data))
	require.NoError(t, err)
	dataOffset := bag.Header().DataOffset

	for i := range data {
		corrupt := append([]byte(nil), data...)
		corrupt[i] ^= 0x01
		_, err := Decode(corrupt)
		require.Error(t, err, "flipped byte %d", i)
		if int64(i) >= dataOffset {
			require.ErrorIs(t, err, ErrCRCMismatch, "flipped byte %d", i)
		}
	}
}

func TestCRCUnchecked(t *testing.T) {
	c := mustBuild(t, cell.NewBuilder().StoreUint(0x2a, 8))
	data, err := Encode([]cell.Cell{c}, WithCRC32C(true))
	require.NoError(t, err)
	data[len(data)-5] = 0x2b

	_, err = Decode(data)
	require.ErrorIs(t, err, ErrCRCMismatch)

	out, err := Decode(data, CheckCRC32C(false))
	require.NoError(t, err)
	require.Equal(t, []byte{0x2b}, out[0].Bits().Bytes())
}

func TestEmbeddedHashMismatch(t *testing.T) {
	root := chain(t, 65)[64]
	data, err := Encode([]cell.Cell{root}, WithInternalHashes(true))
	require.NoError(t, err)
	index, offset := hashedCell(t, data)

	corrupt := append([]byte(nil), data...)
	corrupt[offset+2] ^= 0x80
	_, err = Decode(corrupt)
	require.ErrorIs(t, err, ErrHashMismatch)
	var ce *CellError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, index, ce.Index)

	// Without verification the stored hash is ignored.
	out, err := Decode(corrupt, CheckHashes(false))
	require.NoError(t, err)
	require.True(t, cell.Equal(root, out[0]))

	corrupt = append([]byte(nil), data...)
	corrupt[offset+2+cell.HashSize+1] ^= 0x01
	_, err = Decode(corrupt)
	require.ErrorIs(t, err, ErrDepthMismatch)
	require.True(t, errors.As(err, &ce))
	require.Equal(t, index, ce.Index)
}

func TestTopHashMismatch(t *testing.T) {
	root := chain(t, 3)[2]
	data, err := Encode([]cell.Cell{root}, WithTopHashes(true))
	require.NoError(t, err)
	index, offset := hashedCell(t, data)
	require.Equal(t, 0, index)

	data[offset+2+5] ^= 0x10
	_, err = Decode(data)
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestLazyLoad(t *testing.T) {
	root := chain(t, 65)[64]
	data, err := Encode([]cell.Cell{root}, WithTopHashes(true), WithInternalHashes(true))
	require.NoError(t, err)

	bag, err := NewBag(NewBytesSource(data), LazyLoad(true))
	require.NoError(t, err)
	got, err := bag.Root(0)
	require.NoError(t, err)

	stub, ok := got.(*lazyCell)
	require.True(t, ok)
	require.Nil(t, stub.cell)
	require.Equal(t, root.Hash(0), got.Hash(0))
	require.Equal(t, root.Depth(0), got.Depth(0))
	require.Equal(t, root.Descriptor(), got.Descriptor())
	require.Nil(t, stub.cell)

	child, err := got.Reference(0)
	require.NoError(t, err)
	require.NotNil(t, stub.cell)
	_, ok = child.(*lazyCell)
	require.True(t, ok)

	assertSameCell(t, root, got)

	_, err = got.Reference(1)
	require.ErrorIs(t, err, cell.ErrNoReference)
}

func TestLazyLoadVerifiesOnReference(t *testing.T) {
	root := chain(t, 65)[64]
	data, err := Encode([]cell.Cell{root}, WithTopHashes(true), WithInternalHashes(true))
	require.NoError(t, err)

	bag, err := NewBag(NewBytesSource(data))
	require.NoError(t, err)
	// The root comes first; the checkpoint below it is the next hashed cell.
	var offset int64
	for i := 1; i < bag.Header().CellCount; i++ {
		raw, err := bag.readCell(i)
		require.NoError(t, err)
		if raw.desc.HasHashes() {
			start, _, _, err := bag.location(i)
			require.NoError(t, err)
			offset = bag.Header().DataOffset + start
			break
		}
	}
	require.NotZero(t, offset)
	data[offset+2] ^= 0x01

	bag, err = NewBag(NewBytesSource(data), LazyLoad(true))
	require.NoError(t, err)
	got, err := bag.Root(0)
	require.NoError(t, err)
	require.Equal(t, root.Hash(0), got.Hash(0))

	_, err = got.Reference(0)
	require.ErrorIs(t, err, ErrHashMismatch)
	var ce *CellError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, 0, ce.Index)

	// The failure sticks.
	_, err = got.Reference(0)
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestLazyRootHashTrustedUntilReference(t *testing.T) {
	root := chain(t, 4)[3]
	data, err := Encode([]cell.Cell{root}, WithTopHashes(true))
	require.NoError(t, err)

	bag, err := NewBag(NewBytesSource(data))
	require.NoError(t, err)
	data[bag.Header().DataOffset+2] ^= 0x01

	bag, err = NewBag(NewBytesSource(data), LazyLoad(true), CheckHashes(true))
	require.NoError(t, err)
	got, err := bag.Root(0)
	require.NoError(t, err)
	// The stub reports the tampered embedded hash as is.
	require.NotEqual(t, root.Hash(0), got.Hash(0))
	require.Equal(t, root.Depth(0), got.Depth(0))

	_, err = got.Reference(0)
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestLinearScan(t *testing.T) {
	root, err := cellgen.Random(7, 150, true)
	require.NoError(t, err)
	data, err := Encode([]cell.Cell{root})
	require.NoError(t, err)

	bag, err := NewBag(NewBytesSource(data))
	require.NoError(t, err)
	require.False(t, bag.Header().HasIndex)
	out, err := bag.Roots()
	require.NoError(t, err)
	assertSameCell(t, root, out[0])
	require.Len(t, bag.locs.ends, bag.Header().CellCount)
	require.Equal(t, bag.Header().DataSize, bag.locs.ends[len(bag.locs.ends)-1])

	indexed, err := Encode([]cell.Cell{root}, WithIndex(true))
	require.NoError(t, err)
	ibag, err := NewBag(NewBytesSource(indexed))
	require.NoError(t, err)
	for i := 0; i < bag.Header().CellCount; i++ {
		s1, e1, _, err := bag.location(i)
		require.NoError(t, err)
		s2, e2, _, err := ibag.location(i)
		require.NoError(t, err)
		require.Equal(t, s1, s2)
		require.Equal(t, e1, e2)
	}
	require.Empty(t, ibag.locs.ends)
}

func TestCacheBits(t *testing.T) {
	leaf := mustBuild(t, cell.NewBuilder().StoreUint(7, 8))
	a := mustBuild(t, cell.NewBuilder().StoreUint(1, 8).StoreRef(leaf))
	b := mustBuild(t, cell.NewBuilder().StoreUint(2, 8).StoreRef(leaf))
	data, err := Encode([]cell.Cell{a, b}, WithCacheBits(true))
	require.NoError(t, err)

	bag, err := NewBag(NewBytesSource(data))
	require.NoError(t, err)
	require.True(t, bag.Header().HasIndex)
	require.True(t, bag.Header().HasCacheBits)

	cached := 0
	for i := 0; i < 3; i++ {
		raw, err := bag.readCell(i)
		require.NoError(t, err)
		if raw.shouldCache {
			cached++
			require.Empty(t, raw.refs)
		}
	}
	require.Equal(t, 1, cached)
}

func TestConcurrentDecode(t *testing.T) {
	g := cellgen.New(newRand(11), true)
	require.NoError(t, g.Grow(300))
	roots := g.Roots(8)
	data, err := Encode(roots, WithIndex(true), WithTopHashes(true))
	require.NoError(t, err)

	for _, lazy := range []bool{false, true} {
		bag, err := NewBag(NewReaderAtSource(bytes.NewReader(data), int64(len(data))), LazyLoad(lazy))
		require.NoError(t, err)

		var grp errgroup.Group
		for w := 0; w < 8; w++ {
			w := w
			grp.Go(func() error {
				b := bag
				if w%2 == 0 {
					var err error
					if b, err = bag.WithSource(NewBytesSource(data)); err != nil {
						return err
					}
				}
				for i := range roots {
					r, err := b.Root((i + w) % len(roots))
					if err != nil {
						return err
					}
					if !cell.Equal(r, roots[(i+w)%len(roots)]) {
						return errors.New("decoded root differs")
					}
				}
				return nil
			})
		}
		require.NoError(t, grp.Wait())
	}

	bag, err := NewBag(NewBytesSource(data))
	require.NoError(t, err)
	_, err = bag.WithSource(NewBytesSource(data[:len(data)-1]))
	require.ErrorIs(t, err, ErrTruncated)
}

func TestRootOutOfRange(t *testing.T) {
	data, err := Encode([]cell.Cell{chain(t, 2)[1]})
	require.NoError(t, err)
	bag, err := NewBag(NewBytesSource(data))
	require.NoError(t, err)
	_, err = bag.Root(1)
	require.ErrorIs(t, err, ErrInvalidRoot)
	_, err = bag.Root(-1)
	require.ErrorIs(t, err, ErrInvalidRoot)
}
