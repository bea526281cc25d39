package boc

import (
	"io"

	"golang.org/x/xerrors"
)

// Source is a seekable view of serialized bag bytes. Read and Peek fill p
// completely or fail. A Source is not safe for concurrent use; a Bag
// serializes its own accesses and WithSource gives a bag an independent
// cursor.
type Source interface {
	Size() int64
	Position() int64
	SetPosition(pos int64) error
	Read(p []byte) error
	Peek(p []byte) error
}

type bytesSource struct {
	data []byte
	pos  int64
}

// NewBytesSource reads from an in-memory buffer. The buffer must not be
// modified while in use.
func NewBytesSource(data []byte) Source {
	return &bytesSource{data: data}
}

func (s *bytesSource) Size() int64 {
	return int64(len(s.data))
}

func (s *bytesSource) Position() int64 {
	return s.pos
}

func (s *bytesSource) SetPosition(pos int64) error {
	if pos < 0 || pos > int64(len(s.data)) {
		return xerrors.Errorf("position %d outside of %d bytes: %w", pos, len(s.data), ErrTruncated)
	}
	s.pos = pos
	return nil
}

func (s *bytesSource) Peek(p []byte) error {
	if int64(len(p)) > int64(len(s.data))-s.pos {
		return xerrors.Errorf("reading %d bytes at %d: %w", len(p), s.pos, ErrTruncated)
	}
	copy(p, s.data[s.pos:])
	return nil
}

func (s *bytesSource) Read(p []byte) error {
	if err := s.Peek(p); err != nil {
		return err
	}
	s.pos += int64(len(p))
	return nil
}

type readerAtSource struct {
	r    io.ReaderAt
	size int64
	pos  int64
}

// NewReaderAtSource reads size bytes from r, typically an *os.File.
func NewReaderAtSource(r io.ReaderAt, size int64) Source {
	return &readerAtSource{r: r, size: size}
}

func (s *readerAtSource) Size() int64 {
	return s.size
}

func (s *readerAtSource) Position() int64 {
	return s.pos
}

func (s *readerAtSource) SetPosition(pos int64) error {
	if pos < 0 || pos > s.size {
		return xerrors.Errorf("position %d outside of %d bytes: %w", pos, s.size, ErrTruncated)
	}
	s.pos = pos
	return nil
}

func (s *readerAtSource) Peek(p []byte) error {
	if int64(len(p)) > s.size-s.pos {
		return xerrors.Errorf("reading %d bytes at %d: %w", len(p), s.pos, ErrTruncated)
	}
	n, err := s.r.ReadAt(p, s.pos)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = ErrTruncated
	}
	return xerrors.Errorf("reading %d bytes at %d: %w", len(p), s.pos, err)
}

func (s *readerAtSource) Read(p []byte) error {
	if err := s.Peek(p); err != nil {
		return err
	}
	s.pos += int64(len(p))
	return nil
}
