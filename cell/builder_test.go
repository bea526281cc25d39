package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyCellHash(t *testing.T) {
	c, err := NewBuilder().Build()
	require.NoError(t, err)

	assert.Equal(t, "96a296d224f285c67bee93c30f8a309157f0daa35dc5b87e410b78630a09cfc7", c.Hash(0).String())
	assert.Equal(t, c.Hash(0), ReprHash(c))
	assert.Equal(t, 0, c.Depth(0))
	assert.Equal(t, Ordinary, c.Type())
}

func TestStoreBits(t *testing.T) {
	b := NewBuilder()
	b.StoreUint(0b101, 3).StoreBit(true).StoreBytes([]byte{0xab})
	require.NoError(t, b.Err())
	require.Equal(t, 12, b.BitLen())

	s := b.BitString()
	require.Equal(t, []byte{0xba, 0xb0}, s.Bytes())
	require.Equal(t, []byte{0xba, 0xb8}, s.Augmented())
	require.Equal(t, "bab8_", s.String())

	parsed, err := ParseAugmented(s.Augmented(), false)
	require.NoError(t, err)
	require.True(t, s.Equal(parsed))

	_, err = ParseAugmented([]byte{0xba, 0x00}, false)
	require.Error(t, err)
}

func TestBuilderOverflow(t *testing.T) {
	b := NewBuilder()
	for i := 0; i < 127; i++ {
		b.StoreUint(0xff, 8)
	}
	require.NoError(t, b.Err())
	b.StoreUint(0, 7)
	require.NoError(t, b.Err())
	require.Equal(t, 0, b.BitsLeft())

	b.StoreBit(true)
	require.ErrorIs(t, b.Err(), ErrOverflow)
	_, err := b.Build()
	require.ErrorIs(t, err, ErrOverflow)

	leaf, err := NewBuilder().Build()
	require.NoError(t, err)
	rb := NewBuilder()
	for i := 0; i < MaxRefs; i++ {
		rb.StoreRef(leaf)
	}
	require.NoError(t, rb.Err())
	rb.StoreRef(leaf)
	require.ErrorIs(t, rb.Err(), ErrOverflow)
}

func TestDepthAndIdentity(t *testing.T) {
	leaf, err := NewBuilder().StoreUint(7, 8).Build()
	require.NoError(t, err)
	mid, err := NewBuilder().StoreRef(leaf).StoreRef(leaf).Build()
	require.NoError(t, err)
	top, err := NewBuilder().StoreRef(mid).StoreRef(leaf).Build()
	require.NoError(t, err)

	require.Equal(t, 0, leaf.Depth(0))
	require.Equal(t, 1, mid.Depth(0))
	require.Equal(t, 2, top.Depth(MaxLevel))

	again, err := NewBuilder().StoreUint(7, 8).Build()
	require.NoError(t, err)
	require.NotSame(t, leaf, again)
	require.True(t, Equal(leaf, again))
	require.False(t, Equal(leaf, mid))

	ref, err := top.Reference(1)
	require.NoError(t, err)
	require.True(t, Equal(ref, leaf))
	_, err = top.Reference(2)
	require.ErrorIs(t, err, ErrNoReference)
}

func TestUnalignedHashDiffers(t *testing.T) {
	a, err := NewBuilder().StoreUint(1, 7).Build()
	require.NoError(t, err)
	b, err := NewBuilder().StoreUint(2, 8).Build()
	require.NoError(t, err)
	require.Equal(t, a.Bits().Augmented(), []byte{0x03})
	require.NotEqual(t, a.Hash(0), b.Hash(0))
}
