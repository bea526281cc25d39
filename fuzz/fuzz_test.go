package fuzzer

import (
	"testing"

	"github.com/stretchr/testify/require"

	boc "github.com/tonkit/go-boc"
	"github.com/tonkit/go-boc/cell"
	"github.com/tonkit/go-boc/internal/cellgen"
)

func FuzzOps(f *testing.F) {
	f.Add([]byte{0})
	f.Add([]byte{
		0, 8, 0, 0, 0, 0, 0, 0, 0, 0xff, 0, 0, 0, 0, 0, 0, 0,
		1, 0, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0,
		3, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		6, 0, 1, 2, 0, 0, 0, 0, 0, 0x1f, 0, 0, 0, 1, 0, 0, 0,
		8, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0,
	})
	f.Fuzz(func(t *testing.T, data []byte) {
		Fuzz(data)
	})
}

func FuzzDecodeBag(f *testing.F) {
	for seed := int64(0); seed < 4; seed++ {
		root, err := cellgen.Random(seed, 40, true)
		require.NoError(f, err)
		for _, opts := range [][]boc.EncodeOption{
			nil,
			{boc.WithIndex(true), boc.WithCRC32C(true)},
			{boc.WithCacheBits(true), boc.WithTopHashes(true), boc.WithInternalHashes(true)},
		} {
			data, err := boc.Encode([]cell.Cell{root}, opts...)
			require.NoError(f, err)
			f.Add(data)
		}
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		FuzzDecode(data)
	})
}

func TestReplaySeeds(t *testing.T) {
	require.Equal(t, -1, Fuzz(nil))
	require.NotPanics(t, func() {
		Fuzz([]byte("a bag of cells built from arbitrary bytes"))
	})
	require.Equal(t, 0, FuzzDecode([]byte{0xb5, 0xee, 0x9c, 0x72}))

	root, err := cellgen.Random(7, 100, true)
	require.NoError(t, err)
	data, err := boc.Encode([]cell.Cell{root}, boc.WithIndex(true))
	require.NoError(t, err)
	require.Equal(t, 1, FuzzDecode(data))
}
