package boc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// rawBag assembles a bag by hand with one byte references and offsets.
func rawBag(flags byte, cells, roots, absent, dataSize byte, rest ...byte) []byte {
	data := []byte{0xb5, 0xee, 0x9c, 0x72, flags, 1, cells, roots, absent, dataSize}
	return append(data, rest...)
}

func TestInvalidHeader(t *testing.T) {
	valid := rawBag(0x01, 1, 1, 0, 3, 0, 0x00, 0x02, 0x2a)
	out, err := Decode(valid)
	require.NoError(t, err)
	require.Equal(t, []byte{0x2a}, out[0].Bits().Bytes())

	cases := []struct {
		name string
		data []byte
		err  error
	}{
		{"empty", nil, ErrTruncated},
		{"short", valid[:5], ErrTruncated},
		{"magic", append([]byte{0x68, 0xff, 0x65, 0xf3}, valid[4:]...), ErrBadMagic},
		{"cache bits without index", rawBag(0x21, 1, 1, 0, 3, 0, 0x00, 0x02, 0x2a), ErrInvalidHeader},
		{"zero ref size", rawBag(0x00, 1, 1, 0, 3, 0, 0x00, 0x02, 0x2a), ErrInvalidHeader},
		{"ref size too large", rawBag(0x05, 1, 1, 0, 3, 0, 0x00, 0x02, 0x2a), ErrInvalidHeader},
		{"zero roots", rawBag(0x01, 1, 0, 0, 3, 0x00, 0x02, 0x2a), ErrInvalidHeader},
		{"zero cells", rawBag(0x01, 0, 1, 0, 0, 0), ErrInvalidHeader},
		{"absent cells", rawBag(0x01, 1, 1, 1, 3, 0, 0x00, 0x02, 0x2a), ErrInvalidHeader},
		{"data too small", rawBag(0x01, 2, 1, 0, 4, 0, 0x00, 0x00, 0x00, 0x00), ErrInvalidHeader},
		{"data too large", rawBag(0x01, 1, 1, 0, 0xff, 0, 0x00, 0x02, 0x2a), ErrTruncated},
		{"truncated body", valid[:len(valid)-1], ErrTruncated},
		{"missing crc", rawBag(0x41, 1, 1, 0, 3, 0, 0x00, 0x02, 0x2a), ErrTruncated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			require.ErrorIs(t, err, tc.err)
		})
	}

	offsets := append([]byte{0xb5, 0xee, 0x9c, 0x72, 0x01, 0}, valid[6:]...)
	_, err = Decode(offsets)
	require.ErrorIs(t, err, ErrInvalidHeader)
	offsets[5] = 9
	_, err = Decode(offsets)
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func requireCellError(t *testing.T, err error, index int, target error) {
	t.Helper()
	require.ErrorIs(t, err, target)
	var ce *CellError
	require.True(t, errors.As(err, &ce), "%v is not a cell error", err)
	require.Equal(t, index, ce.Index)
}

func TestInvalidCells(t *testing.T) {
	t.Run("backward reference", func(t *testing.T) {
		data := rawBag(0x01, 2, 1, 0, 6, 0,
			0x01, 0x00, 0x01,
			0x01, 0x00, 0x00)
		_, err := Decode(data)
		requireCellError(t, err, 1, ErrInvalidReference)
	})
	t.Run("self reference", func(t *testing.T) {
		data := rawBag(0x01, 1, 1, 0, 3, 0, 0x01, 0x00, 0x00)
		_, err := Decode(data)
		requireCellError(t, err, 0, ErrInvalidReference)
	})
	t.Run("reference past the end", func(t *testing.T) {
		data := rawBag(0x01, 1, 1, 0, 3, 0, 0x01, 0x00, 0x01)
		_, err := Decode(data)
		requireCellError(t, err, 0, ErrInvalidReference)
	})
	t.Run("too many references", func(t *testing.T) {
		data := rawBag(0x01, 1, 1, 0, 2, 0, 0x05, 0x00)
		_, err := Decode(data)
		requireCellError(t, err, 0, ErrInvalidRefCount)
	})
	t.Run("absent cell", func(t *testing.T) {
		data := rawBag(0x01, 1, 1, 0, 2, 0, 0x0f, 0x00)
		_, err := Decode(data)
		requireCellError(t, err, 0, ErrInvalidCell)
	})
	t.Run("missing completion tag", func(t *testing.T) {
		data := rawBag(0x01, 1, 1, 0, 3, 0, 0x00, 0x01, 0x00)
		_, err := Decode(data)
		requireCellError(t, err, 0, ErrInvalidCell)
	})
	t.Run("invalid exotic", func(t *testing.T) {
		data := rawBag(0x01, 1, 1, 0, 3, 0, 0x08, 0x02, 0x09)
		_, err := Decode(data)
		requireCellError(t, err, 0, ErrInvalidCell)
	})
	t.Run("wrong level mask", func(t *testing.T) {
		data := rawBag(0x01, 1, 1, 0, 3, 0, 0x20, 0x02, 0x2a)
		_, err := Decode(data)
		requireCellError(t, err, 0, ErrInvalidCell)
	})
	t.Run("root past the end", func(t *testing.T) {
		data := rawBag(0x01, 1, 1, 0, 3, 1, 0x00, 0x02, 0x2a)
		_, err := Decode(data)
		require.ErrorIs(t, err, ErrInvalidRoot)
	})
	t.Run("index past the data", func(t *testing.T) {
		data := rawBag(0x81, 1, 1, 0, 3, 0, 4, 0x00, 0x02, 0x2a)
		_, err := Decode(data)
		requireCellError(t, err, 0, ErrInvalidCell)
	})
	t.Run("index disagrees with body", func(t *testing.T) {
		data := rawBag(0x81, 2, 1, 0, 6, 0, 2, 6,
			0x00, 0x02, 0x2a,
			0x00, 0x02, 0x2b)
		_, err := Decode(data)
		requireCellError(t, err, 0, ErrInvalidCell)
	})
}
