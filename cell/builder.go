package cell

import "golang.org/x/xerrors"

// Builder accumulates a payload and references. The first overflow is kept
// and reported by Build, so calls can be chained.
type Builder struct {
	data []byte
	n    int
	refs []Cell
	err  error
}

func NewBuilder() *Builder {
	return &Builder{data: make([]byte, 0, (MaxBits+7)/8)}
}

// BitLen is the number of payload bits stored so far.
func (b *Builder) BitLen() int {
	return b.n
}

func (b *Builder) RefCount() int {
	return len(b.refs)
}

func (b *Builder) BitsLeft() int {
	return MaxBits - b.n
}

func (b *Builder) RefsLeft() int {
	return MaxRefs - len(b.refs)
}

// Err returns the first overflow hit by a store call.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) checkBits(n int) bool {
	if b.err != nil {
		return false
	}
	if n < 0 || b.n+n > MaxBits {
		b.err = xerrors.Errorf("storing %d bits with %d left: %w", n, MaxBits-b.n, ErrOverflow)
		return false
	}
	return true
}

func (b *Builder) appendBit(v bool) {
	if b.n%8 == 0 {
		b.data = append(b.data, 0)
	}
	if v {
		b.data[b.n/8] |= 0x80 >> uint(b.n%8)
	}
	b.n++
}

func (b *Builder) StoreBit(v bool) *Builder {
	if b.checkBits(1) {
		b.appendBit(v)
	}
	return b
}

// StoreUint stores the low n bits of v, most significant first.
func (b *Builder) StoreUint(v uint64, n int) *Builder {
	if n > 64 {
		if b.err == nil {
			b.err = xerrors.Errorf("cannot store %d bits of a uint64: %w", n, ErrOverflow)
		}
		return b
	}
	if !b.checkBits(n) {
		return b
	}
	for i := n - 1; i >= 0; i-- {
		b.appendBit(v>>uint(i)&1 != 0)
	}
	return b
}

func (b *Builder) StoreBytes(p []byte) *Builder {
	if !b.checkBits(len(p) * 8) {
		return b
	}
	if b.n%8 == 0 {
		b.data = append(b.data, p...)
		b.n += len(p) * 8
		return b
	}
	for _, c := range p {
		for i := 7; i >= 0; i-- {
			b.appendBit(c>>uint(i)&1 != 0)
		}
	}
	return b
}

func (b *Builder) StoreBitString(s BitString) *Builder {
	if !b.checkBits(s.Len()) {
		return b
	}
	for i := 0; i < s.Len(); i++ {
		b.appendBit(s.Bit(i))
	}
	return b
}

func (b *Builder) StoreHash(h Hash) *Builder {
	return b.StoreBytes(h[:])
}

func (b *Builder) StoreRef(c Cell) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.refs) >= MaxRefs {
		b.err = xerrors.Errorf("storing reference %d: %w", len(b.refs)+1, ErrOverflow)
		return b
	}
	b.refs = append(b.refs, c)
	return b
}

// BitString returns a copy of the payload stored so far.
func (b *Builder) BitString() BitString {
	return NewBitString(b.data, b.n)
}

// Build finishes an ordinary cell.
func (b *Builder) Build() (*DataCell, error) {
	return b.build(false)
}

// BuildExotic finishes an exotic cell whose variant is given by the first
// payload byte.
func (b *Builder) BuildExotic() (*DataCell, error) {
	return b.build(true)
}

func (b *Builder) build(exotic bool) (*DataCell, error) {
	if b.err != nil {
		return nil, b.err
	}
	return New(b.BitString(), b.refs, exotic)
}
