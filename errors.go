package boc

import (
	"errors"
	"fmt"
)

var (
	ErrNoRoots          = errors.New("bag of cells has no roots")
	ErrUnknownCell      = errors.New("cell was never imported")
	ErrBadMagic         = errors.New("unknown bag of cells magic")
	ErrInvalidHeader    = errors.New("invalid bag of cells header")
	ErrTruncated        = errors.New("bag of cells is truncated")
	ErrCRCMismatch      = errors.New("bag of cells crc32c mismatch")
	ErrInvalidRoot      = errors.New("invalid root index")
	ErrInvalidReference = errors.New("invalid cell reference")
	ErrInvalidRefCount  = errors.New("invalid cell reference count")
	ErrInvalidCell      = errors.New("invalid cell body")
	ErrHashMismatch     = errors.New("embedded cell hash mismatch")
	ErrDepthMismatch    = errors.New("embedded cell depth mismatch")
)

// CellError attributes a decoding failure to the cell at a wire position.
type CellError struct {
	Index int
	Err   error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("boc cell #%d: %s", e.Index, e.Err)
}

func (e *CellError) Unwrap() error {
	return e.Err
}

func cellErr(index int, err error) error {
	var ce *CellError
	if errors.As(err, &ce) {
		return err
	}
	return &CellError{Index: index, Err: err}
}
