package boc

import (
	"bytes"
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"

	"golang.org/x/xerrors"

	"github.com/tonkit/go-boc/cell"
)

// Cell bodies are buffered and flushed this many at a time.
const bodyBatch = 1_000_000

// Encode serializes the DAGs below roots into a bag of cells. Identical
// cells are stored once; a root given twice is listed twice.
func Encode(roots []cell.Cell, opts ...EncodeOption) ([]byte, error) {
	s, h, err := prepare(roots, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(int(h.TotalSize))
	if err := s.write(&buf, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo is Encode writing to w.
func EncodeTo(w io.Writer, roots []cell.Cell, opts ...EncodeOption) error {
	s, h, err := prepare(roots, opts)
	if err != nil {
		return err
	}
	return s.write(w, h)
}

func prepare(roots []cell.Cell, opts []EncodeOption) (*serializer, *Header, error) {
	cfg := defaultEncodeConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, nil, err
		}
	}
	// Cache bits live in the index.
	if cfg.withCacheBits {
		cfg.withIndex = true
	}
	if len(roots) == 0 {
		return nil, nil, ErrNoRoots
	}

	s := newSerializer(cfg)
	for _, r := range roots {
		if err := s.addRoot(r); err != nil {
			return nil, nil, err
		}
	}
	s.selectCheckpoints()
	if err := s.reorder(); err != nil {
		return nil, nil, err
	}

	h, err := s.header()
	if err != nil {
		return nil, nil, err
	}
	log.Debugw("encoding bag", "cells", h.CellCount, "roots", h.RootCount,
		"internalHashes", s.internalHashes, "topHashes", s.topHashes, "size", h.TotalSize)
	return s, h, nil
}

func (s *serializer) withHash(ci *cellInfo) bool {
	return (s.cfg.withInternalHashes && ci.special()) || (s.cfg.withTopHashes && ci.isRootCell)
}

func (s *serializer) bodySize(ci *cellInfo, refSize int) int {
	size := 2 + ci.cell.Descriptor().ByteLen() + ci.refCount*refSize
	if s.withHash(ci) {
		size += ci.hashCount * (cell.HashSize + cell.DepthSize)
	}
	return size
}

// embeddedHashes counts the hash/depth pairs the current options embed.
func (s *serializer) embeddedHashes() int {
	n := 0
	if s.cfg.withTopHashes {
		n += s.topHashes
	}
	if s.cfg.withInternalHashes {
		n += s.internalHashes
	}
	return n
}

func (s *serializer) header() (*Header, error) {
	count := len(s.cells)
	ref := widthFor(uint64(count))
	if ref > 4 {
		return nil, xerrors.Errorf("%d cells do not fit in a bag", count)
	}

	dataSize := s.dataBytes + s.intRefs*ref + s.embeddedHashes()*(cell.HashSize+cell.DepthSize)
	maxOffset := uint64(dataSize)
	if s.cfg.withCacheBits {
		maxOffset *= 2
	}

	h := &Header{
		Magic:          Magic,
		HasIndex:       s.cfg.withIndex,
		HasCRC32C:      s.cfg.withCRC32C,
		HasCacheBits:   s.cfg.withCacheBits,
		RefByteSize:    ref,
		OffsetByteSize: widthFor(maxOffset),
		CellCount:      count,
		RootCount:      len(s.roots),
		DataSize:       int64(dataSize),
	}
	h.layout()
	return h, nil
}

type crcWriter struct {
	w   io.Writer
	crc hash.Hash32
}

func (c *crcWriter) Write(p []byte) (int, error) {
	c.crc.Write(p)
	return c.w.Write(p)
}

func (s *serializer) write(w io.Writer, h *Header) error {
	var cw *crcWriter
	if h.HasCRC32C {
		cw = &crcWriter{w: w, crc: crc32.New(castagnoli)}
		w = cw
	}

	n := len(s.cells)
	ref := h.RefByteSize

	buf := make([]byte, 0, h.DataOffset)
	buf = h.appendTo(buf)
	for _, r := range s.roots {
		buf = appendUint(buf, uint64(n-1-r.index), ref)
	}
	if h.HasIndex {
		offset := uint64(0)
		for i := 0; i < n; i++ {
			ci := s.cells[n-1-i]
			offset += uint64(s.bodySize(ci, ref))
			entry := offset
			if h.HasCacheBits {
				entry *= 2
				if ci.shouldCache {
					entry++
				}
			}
			buf = appendUint(buf, entry, h.OffsetByteSize)
		}
	}
	if _, err := w.Write(buf); err != nil {
		return xerrors.Errorf("writing header: %w", err)
	}

	body := bufferPool.Get().(*bytes.Buffer)
	defer func() {
		body.Reset()
		bufferPool.Put(body)
	}()

	written := int64(0)
	for start := 0; start < n; start += bodyBatch {
		end := start + bodyBatch
		if end > n {
			end = n
		}
		body.Reset()
		for i := start; i < end; i++ {
			s.writeBody(body, s.cells[n-1-i], n, ref)
		}
		written += int64(body.Len())
		if _, err := w.Write(body.Bytes()); err != nil {
			return xerrors.Errorf("writing cells: %w", err)
		}
	}
	if written != h.DataSize {
		return xerrors.Errorf("wrote %d bytes of cells, expected %d", written, h.DataSize)
	}

	if cw != nil {
		var sum [crcSize]byte
		binary.LittleEndian.PutUint32(sum[:], cw.crc.Sum32())
		if _, err := cw.w.Write(sum[:]); err != nil {
			return xerrors.Errorf("writing crc32c: %w", err)
		}
	}
	return nil
}

func (s *serializer) writeBody(buf *bytes.Buffer, ci *cellInfo, n, ref int) {
	c := ci.cell
	desc := c.Descriptor().WithoutHashes()
	withHash := s.withHash(ci)
	if withHash {
		desc = desc.WithHashes()
	}
	buf.WriteByte(desc.D1)
	buf.WriteByte(desc.D2)

	if withHash {
		levels := hashLevels(desc)
		for _, level := range levels {
			h := c.Hash(level)
			buf.Write(h[:])
		}
		for _, level := range levels {
			d := c.Depth(level)
			buf.WriteByte(byte(d >> 8))
			buf.WriteByte(byte(d))
		}
	}

	buf.Write(c.Bits().Augmented())

	var tmp [4]byte
	for j := 0; j < ci.refCount; j++ {
		putUint(tmp[:ref], uint64(n-1-ci.refs[j]))
		buf.Write(tmp[:ref])
	}
}

// hashLevels lists the levels whose hash and depth are embedded for a cell,
// in wire order.
func hashLevels(desc cell.Descriptor) []int {
	if desc.Type() == cell.PrunedBranch {
		return []int{cell.MaxLevel}
	}
	mask := desc.LevelMask()
	levels := make([]int, 0, mask.HashCount())
	for level := 0; level <= mask.Level(); level++ {
		if mask.IsSignificant(level) {
			levels = append(levels, level)
		}
	}
	return levels
}
