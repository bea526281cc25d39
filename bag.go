package boc

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/tonkit/go-boc/cell"
)

var log = logging.Logger("boc")

const crcChunk = 64 << 10

// Bag decodes cells from a serialized bag of cells on demand. Methods are
// safe for concurrent use; readers contend on the source cursor, and
// WithSource gives a reader its own.
type Bag struct {
	cfg    *decodeConfig
	header *Header
	cache  *cellCache
	locs   *locations

	mu  sync.Mutex
	src Source
}

// Decode returns the roots of a serialized bag.
func Decode(data []byte, opts ...DecodeOption) ([]cell.Cell, error) {
	b, err := NewBag(NewBytesSource(data), opts...)
	if err != nil {
		return nil, err
	}
	return b.Roots()
}

// NewBag parses the header of the bag in src and, if requested, checks its
// CRC32-C. Cells are read when requested.
func NewBag(src Source, opts ...DecodeOption) (*Bag, error) {
	cfg := defaultDecodeConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	h, err := readHeader(src)
	if err != nil {
		return nil, err
	}
	b := &Bag{
		cfg:    cfg,
		header: h,
		locs:   &locations{},
		src:    src,
	}
	if cfg.useCache {
		b.cache = newCellCache()
	}
	if h.HasCRC32C && cfg.checkCRC32C {
		if err := b.checkCRC(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Bag) checkCRC() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.src.SetPosition(0); err != nil {
		return err
	}
	end := b.header.TotalSize - crcSize
	buf := make([]byte, crcChunk)
	var sum uint32
	for pos := int64(0); pos < end; {
		n := end - pos
		if n > crcChunk {
			n = crcChunk
		}
		if err := b.src.Read(buf[:n]); err != nil {
			return xerrors.Errorf("reading for crc32c: %w", err)
		}
		sum = crc32.Update(sum, castagnoli, buf[:n])
		pos += n
	}
	var trailer [crcSize]byte
	if err := b.src.Read(trailer[:]); err != nil {
		return xerrors.Errorf("reading crc32c: %w", err)
	}
	if want := binary.LittleEndian.Uint32(trailer[:]); want != sum {
		return xerrors.Errorf("stored %#08x, computed %#08x: %w", want, sum, ErrCRCMismatch)
	}
	return nil
}

// WithSource returns a bag reading the same bytes from src. The returned
// bag shares the header and the cell cache with b.
func (b *Bag) WithSource(src Source) (*Bag, error) {
	if src.Size() < b.header.TotalSize {
		return nil, xerrors.Errorf("source has %d bytes, bag needs %d: %w", src.Size(), b.header.TotalSize, ErrTruncated)
	}
	return &Bag{
		cfg:    b.cfg,
		header: b.header,
		cache:  b.cache,
		locs:   b.locs,
		src:    src,
	}, nil
}

// Header returns the parsed header. The caller must not modify it.
func (b *Bag) Header() *Header {
	return b.header
}

func (b *Bag) RootCount() int {
	return b.header.RootCount
}

// Root decodes the i-th root.
func (b *Bag) Root(i int) (cell.Cell, error) {
	return b.root(i, make(map[int]cell.Cell))
}

// Roots decodes all roots.
func (b *Bag) Roots() ([]cell.Cell, error) {
	memo := make(map[int]cell.Cell)
	roots := make([]cell.Cell, b.header.RootCount)
	for i := range roots {
		r, err := b.root(i, memo)
		if err != nil {
			return nil, err
		}
		roots[i] = r
	}
	return roots, nil
}

func (b *Bag) root(i int, memo map[int]cell.Cell) (cell.Cell, error) {
	h := b.header
	if i < 0 || i >= h.RootCount {
		return nil, xerrors.Errorf("root %d of %d: %w", i, h.RootCount, ErrInvalidRoot)
	}
	entry := make([]byte, h.RefByteSize)
	if err := b.readAt(h.RootsOffset+int64(i*h.RefByteSize), entry); err != nil {
		return nil, xerrors.Errorf("reading root %d: %w", i, err)
	}
	pos := readUint(entry)
	if pos >= uint64(h.CellCount) {
		return nil, xerrors.Errorf("root %d points to cell %d of %d: %w", i, pos, h.CellCount, ErrInvalidRoot)
	}
	return b.load(int(pos), memo)
}

func (b *Bag) readAt(pos int64, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.src.SetPosition(pos); err != nil {
		return err
	}
	return b.src.Read(p)
}

// location returns the byte range of a cell relative to the data section
// and whether it is worth caching.
func (b *Bag) location(index int) (int64, int64, bool, error) {
	h := b.header
	if !h.HasIndex {
		start, end, err := b.scan(index)
		return start, end, true, err
	}

	off := h.OffsetByteSize
	var start, end uint64
	if index == 0 {
		buf := make([]byte, off)
		if err := b.readAt(h.IndexOffset, buf); err != nil {
			return 0, 0, false, err
		}
		end = readUint(buf)
	} else {
		buf := make([]byte, 2*off)
		if err := b.readAt(h.IndexOffset+int64((index-1)*off), buf); err != nil {
			return 0, 0, false, err
		}
		start, end = readUint(buf[:off]), readUint(buf[off:])
	}

	shouldCache := true
	if h.HasCacheBits {
		shouldCache = end&1 == 1
		start >>= 1
		end >>= 1
	}
	if start >= end || end > uint64(h.DataSize) {
		return 0, 0, false, xerrors.Errorf("index entry [%d, %d) outside of %d data bytes: %w", start, end, h.DataSize, ErrInvalidCell)
	}
	return int64(start), int64(end), shouldCache, nil
}

// scan walks cell descriptors from the last known cell up to index.
func (b *Bag) scan(index int) (int64, int64, error) {
	h := b.header
	l := b.locs
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.ends) <= index {
		l.warn.Do(func() {
			log.Warnw("bag of cells has no index, scanning cells linearly", "cells", h.CellCount, "size", h.TotalSize)
		})
	}
	var d [2]byte
	for len(l.ends) <= index {
		start := int64(0)
		if n := len(l.ends); n > 0 {
			start = l.ends[n-1]
		}
		if start+2 > h.DataSize {
			return 0, 0, xerrors.Errorf("cell %d starts past %d data bytes: %w", len(l.ends), h.DataSize, ErrTruncated)
		}
		if err := b.readAt(h.DataOffset+start, d[:]); err != nil {
			return 0, 0, err
		}
		size, err := bodySize(cell.Descriptor{D1: d[0], D2: d[1]}, h.RefByteSize)
		if err != nil {
			return 0, 0, cellErr(len(l.ends), err)
		}
		end := start + int64(size)
		if end > h.DataSize {
			return 0, 0, cellErr(len(l.ends), xerrors.Errorf("cell ends at %d past %d data bytes: %w", end, h.DataSize, ErrTruncated))
		}
		l.ends = append(l.ends, end)
	}

	start := int64(0)
	if index > 0 {
		start = l.ends[index-1]
	}
	return start, l.ends[index], nil
}

func bodySize(desc cell.Descriptor, refSize int) (int, error) {
	if desc.IsAbsent() {
		return 0, xerrors.Errorf("absent cells are not supported: %w", ErrInvalidCell)
	}
	refs := desc.RefCount()
	if refs > cell.MaxRefs {
		return 0, xerrors.Errorf("%d references: %w", refs, ErrInvalidRefCount)
	}
	size := 2 + desc.ByteLen() + refs*refSize
	if desc.HasHashes() {
		size += desc.HashCount() * (cell.HashSize + cell.DepthSize)
	}
	return size, nil
}

// rawCell is a cell body as read from the wire.
type rawCell struct {
	index       int
	desc        cell.Descriptor
	hashes      []cell.Hash
	depths      []int
	bits        cell.BitString
	refs        []int
	shouldCache bool
}

func (b *Bag) readCell(index int) (*rawCell, error) {
	h := b.header
	start, end, shouldCache, err := b.location(index)
	if err != nil {
		return nil, cellErr(index, err)
	}
	buf := make([]byte, end-start)
	if err := b.readAt(h.DataOffset+start, buf); err != nil {
		return nil, cellErr(index, err)
	}

	if len(buf) < 2 {
		return nil, cellErr(index, xerrors.Errorf("%d byte body: %w", len(buf), ErrInvalidCell))
	}
	raw := &rawCell{
		index:       index,
		desc:        cell.Descriptor{D1: buf[0], D2: buf[1]},
		shouldCache: shouldCache,
	}
	size, err := bodySize(raw.desc, h.RefByteSize)
	if err != nil {
		return nil, cellErr(index, err)
	}
	if size != len(buf) {
		return nil, cellErr(index, xerrors.Errorf("body is %d bytes, descriptor %s needs %d: %w", len(buf), raw.desc, size, ErrInvalidCell))
	}

	pos := 2
	if raw.desc.HasHashes() {
		n := raw.desc.HashCount()
		raw.hashes = make([]cell.Hash, n)
		raw.depths = make([]int, n)
		for i := 0; i < n; i++ {
			copy(raw.hashes[i][:], buf[pos:])
			pos += cell.HashSize
		}
		for i := 0; i < n; i++ {
			raw.depths[i] = int(binary.BigEndian.Uint16(buf[pos:]))
			pos += cell.DepthSize
		}
	}

	payload := buf[pos : pos+raw.desc.ByteLen()]
	pos += len(payload)
	raw.bits, err = cell.ParseAugmented(payload, raw.desc.IsAligned())
	if err != nil {
		return nil, cellErr(index, fmt.Errorf("%w: %w", ErrInvalidCell, err))
	}

	raw.refs = make([]int, raw.desc.RefCount())
	for i := range raw.refs {
		r := readUint(buf[pos : pos+h.RefByteSize])
		pos += h.RefByteSize
		if r <= uint64(index) || r >= uint64(h.CellCount) {
			return nil, cellErr(index, xerrors.Errorf("reference %d points to cell %d: %w", i, r, ErrInvalidReference))
		}
		raw.refs[i] = int(r)
	}
	return raw, nil
}

func (b *Bag) lazy(raw *rawCell) bool {
	return b.cfg.lazyLoad && raw.desc.HasHashes() && len(raw.refs) > 0
}

func (b *Bag) cached(index int, memo map[int]cell.Cell) (cell.Cell, bool) {
	if c, ok := memo[index]; ok {
		return c, true
	}
	if c, ok := b.cache.get(index); ok {
		memo[index] = c
		return c, true
	}
	return nil, false
}

func (b *Bag) remember(raw *rawCell, c cell.Cell, memo map[int]cell.Cell) cell.Cell {
	if raw.shouldCache {
		c = b.cache.put(raw.index, c)
	}
	memo[raw.index] = c
	return c
}

type loadFrame struct {
	raw      *rawCell
	children []cell.Cell
}

// load decodes the cell at a wire position and, unless deferred, its
// subtree. memo holds the cells decoded by the current call.
func (b *Bag) load(index int, memo map[int]cell.Cell) (cell.Cell, error) {
	if c, ok := b.cached(index, memo); ok {
		return c, nil
	}
	raw, err := b.readCell(index)
	if err != nil {
		return nil, err
	}
	if b.lazy(raw) {
		return b.remember(raw, newLazyCell(b, raw), memo), nil
	}

	stack := []*loadFrame{{raw: raw}}
	for {
		top := stack[len(stack)-1]
		if next := len(top.children); next < len(top.raw.refs) {
			ref := top.raw.refs[next]
			if c, ok := b.cached(ref, memo); ok {
				top.children = append(top.children, c)
				continue
			}
			child, err := b.readCell(ref)
			if err != nil {
				return nil, err
			}
			if b.lazy(child) {
				top.children = append(top.children, b.remember(child, newLazyCell(b, child), memo))
				continue
			}
			stack = append(stack, &loadFrame{raw: child})
			continue
		}

		built, err := b.build(top.raw, top.children)
		if err != nil {
			return nil, err
		}
		c := b.remember(top.raw, built, memo)
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			return c, nil
		}
		parent := stack[len(stack)-1]
		parent.children = append(parent.children, c)
	}
}

// build creates the cell from a body and its decoded children, checking
// the result against the descriptor and embedded hashes.
func (b *Bag) build(raw *rawCell, children []cell.Cell) (*cell.DataCell, error) {
	c, err := cell.New(raw.bits, children, raw.desc.IsExotic())
	if err != nil {
		return nil, cellErr(raw.index, fmt.Errorf("%w: %w", ErrInvalidCell, err))
	}
	if want := raw.desc.WithoutHashes(); c.Descriptor() != want {
		return nil, cellErr(raw.index, xerrors.Errorf("descriptor %s, rebuilt cell has %s: %w", want, c.Descriptor(), ErrInvalidCell))
	}
	if raw.desc.HasHashes() && b.cfg.checkHashes {
		if err := raw.verify(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// verify compares the embedded hashes and depths with those of c.
func (raw *rawCell) verify(c cell.Cell) error {
	for j, level := range hashLevels(raw.desc) {
		if got := c.Hash(level); got != raw.hashes[j] {
			return cellErr(raw.index, xerrors.Errorf("level %d hash is %s, embedded %s: %w", level, got, raw.hashes[j], ErrHashMismatch))
		}
		if got := c.Depth(level); got != raw.depths[j] {
			return cellErr(raw.index, xerrors.Errorf("level %d depth is %d, embedded %d: %w", level, got, raw.depths[j], ErrDepthMismatch))
		}
	}
	return nil
}
