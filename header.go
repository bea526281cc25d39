package boc

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/xerrors"
)

const (
	// Magic identifies a generic bag of cells.
	Magic uint32 = 0xb5ee9c72

	flagIndex     = 1 << 7
	flagCRC32C    = 1 << 6
	flagCacheBits = 1 << 5
	refSizeMask   = 0b111

	// magic, flags and offset size
	headerPrefixSize = 6
	crcSize          = 4
)

// Header is the fixed part of a serialized bag, with the section offsets
// derived from it.
type Header struct {
	Magic          uint32
	HasIndex       bool
	HasCRC32C      bool
	HasCacheBits   bool
	RefByteSize    int
	OffsetByteSize int
	CellCount      int
	RootCount      int
	AbsentCount    int
	DataSize       int64

	RootsOffset int64
	IndexOffset int64
	DataOffset  int64
	TotalSize   int64
}

func (h *Header) String() string {
	return fmt.Sprintf("cells=%d roots=%d ref=%d off=%d data=%d index=%t crc32c=%t cache=%t",
		h.CellCount, h.RootCount, h.RefByteSize, h.OffsetByteSize, h.DataSize, h.HasIndex, h.HasCRC32C, h.HasCacheBits)
}

// layout fills in the section offsets from the fields.
func (h *Header) layout() {
	h.RootsOffset = int64(headerPrefixSize + 3*h.RefByteSize + h.OffsetByteSize)
	h.IndexOffset = h.RootsOffset + int64(h.RootCount*h.RefByteSize)
	h.DataOffset = h.IndexOffset
	if h.HasIndex {
		h.DataOffset += int64(h.CellCount * h.OffsetByteSize)
	}
	h.TotalSize = h.DataOffset + h.DataSize
	if h.HasCRC32C {
		h.TotalSize += crcSize
	}
}

// Flags is the flag byte, which also carries the reference size.
func (h *Header) Flags() byte {
	f := byte(h.RefByteSize)
	if h.HasIndex {
		f |= flagIndex
	}
	if h.HasCRC32C {
		f |= flagCRC32C
	}
	if h.HasCacheBits {
		f |= flagCacheBits
	}
	return f
}

// appendTo writes the fixed fields, up to the root list.
func (h *Header) appendTo(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, h.Magic)
	buf = append(buf, h.Flags(), byte(h.OffsetByteSize))
	buf = appendUint(buf, uint64(h.CellCount), h.RefByteSize)
	buf = appendUint(buf, uint64(h.RootCount), h.RefByteSize)
	buf = appendUint(buf, uint64(h.AbsentCount), h.RefByteSize)
	buf = appendUint(buf, uint64(h.DataSize), h.OffsetByteSize)
	return buf
}

func readHeader(src Source) (*Header, error) {
	if err := src.SetPosition(0); err != nil {
		return nil, err
	}
	var prefix [headerPrefixSize]byte
	if err := src.Read(prefix[:]); err != nil {
		return nil, xerrors.Errorf("reading header: %w", err)
	}

	h := &Header{
		Magic:          binary.BigEndian.Uint32(prefix[:4]),
		HasIndex:       prefix[4]&flagIndex != 0,
		HasCRC32C:      prefix[4]&flagCRC32C != 0,
		HasCacheBits:   prefix[4]&flagCacheBits != 0,
		RefByteSize:    int(prefix[4] & refSizeMask),
		OffsetByteSize: int(prefix[5]),
	}
	if h.Magic != Magic {
		return nil, xerrors.Errorf("magic %#08x: %w", h.Magic, ErrBadMagic)
	}
	if h.HasCacheBits && !h.HasIndex {
		return nil, xerrors.Errorf("cache bits without an index: %w", ErrInvalidHeader)
	}
	if h.RefByteSize < 1 || h.RefByteSize > 4 {
		return nil, xerrors.Errorf("reference size %d: %w", h.RefByteSize, ErrInvalidHeader)
	}
	if h.OffsetByteSize < 1 || h.OffsetByteSize > 8 {
		return nil, xerrors.Errorf("offset size %d: %w", h.OffsetByteSize, ErrInvalidHeader)
	}

	fields := make([]byte, 3*h.RefByteSize+h.OffsetByteSize)
	if err := src.Read(fields); err != nil {
		return nil, xerrors.Errorf("reading header: %w", err)
	}
	ref := h.RefByteSize
	h.CellCount = int(readUint(fields[:ref]))
	h.RootCount = int(readUint(fields[ref : 2*ref]))
	h.AbsentCount = int(readUint(fields[2*ref : 3*ref]))
	dataSize := readUint(fields[3*ref:])

	if h.RootCount == 0 {
		return nil, xerrors.Errorf("no roots: %w", ErrInvalidHeader)
	}
	if h.AbsentCount != 0 {
		return nil, xerrors.Errorf("%d absent cells are not supported: %w", h.AbsentCount, ErrInvalidHeader)
	}
	// The same cell may be listed as several roots, so roots may outnumber
	// cells.
	if h.CellCount == 0 {
		return nil, xerrors.Errorf("no cells: %w", ErrInvalidHeader)
	}
	if dataSize > 1<<40 || dataSize > uint64(h.CellCount)<<10 {
		return nil, xerrors.Errorf("data size %d for %d cells: %w", dataSize, h.CellCount, ErrInvalidHeader)
	}
	if minSize := uint64(h.CellCount*(2+ref) - ref); dataSize < minSize {
		return nil, xerrors.Errorf("data size %d below %d: %w", dataSize, minSize, ErrInvalidHeader)
	}
	h.DataSize = int64(dataSize)

	h.layout()
	if h.TotalSize > src.Size() {
		return nil, xerrors.Errorf("header needs %d bytes, have %d: %w", h.TotalSize, src.Size(), ErrTruncated)
	}
	return h, nil
}
