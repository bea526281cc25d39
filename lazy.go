package boc

import (
	"sync"

	"golang.org/x/xerrors"

	"github.com/tonkit/go-boc/cell"
)

// lazyCell stands in for a cell whose hashes were embedded in the bag. It
// answers from the body alone and decodes its children on the first
// Reference call.
type lazyCell struct {
	bag *Bag
	raw *rawCell

	once sync.Once
	cell *cell.DataCell
	err  error
}

var _ cell.Cell = (*lazyCell)(nil)

func newLazyCell(b *Bag, raw *rawCell) *lazyCell {
	return &lazyCell{bag: b, raw: raw}
}

func (l *lazyCell) Descriptor() cell.Descriptor {
	return l.raw.desc.WithoutHashes()
}

func (l *lazyCell) Bits() cell.BitString {
	return l.raw.bits
}

func (l *lazyCell) RefCount() int {
	return len(l.raw.refs)
}

func (l *lazyCell) Hash(level int) cell.Hash {
	return l.raw.hashes[l.raw.desc.LevelMask().Apply(level).HashIndex()]
}

func (l *lazyCell) Depth(level int) int {
	return l.raw.depths[l.raw.desc.LevelMask().Apply(level).HashIndex()]
}

func (l *lazyCell) Reference(i int) (cell.Cell, error) {
	if i < 0 || i >= len(l.raw.refs) {
		return nil, xerrors.Errorf("reference %d of %d: %w", i, len(l.raw.refs), cell.ErrNoReference)
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l.cell.Reference(i)
}

func (l *lazyCell) load() error {
	l.once.Do(func() {
		memo := make(map[int]cell.Cell)
		children := make([]cell.Cell, len(l.raw.refs))
		for i, ref := range l.raw.refs {
			c, err := l.bag.load(ref, memo)
			if err != nil {
				l.err = err
				return
			}
			children[i] = c
		}
		c, err := l.bag.build(l.raw, children)
		if err != nil {
			l.err = err
			return
		}
		l.cell = c
	})
	return l.err
}

func (l *lazyCell) String() string {
	return "lazy " + l.raw.desc.Type().String() + "{" + l.Hash(cell.MaxLevel).String() + "}"
}
