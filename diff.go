package boc

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/xerrors"

	"github.com/tonkit/go-boc/cell"
)

// ChangeType denotes type of change in Change
type ChangeType int

// These constants define the changes between two cell DAGs.
const (
	Add ChangeType = iota
	Remove
)

func (t ChangeType) String() string {
	switch t {
	case Add:
		return "add"
	case Remove:
		return "remove"
	default:
		return fmt.Sprintf("change(%d)", int(t))
	}
}

// Change is a cell reachable from only one of the diffed roots.
type Change struct {
	Type ChangeType
	Hash cell.Hash
	Cell cell.Cell
}

func (ch Change) String() string {
	return fmt.Sprintf("%s %s", ch.Type, ch.Hash)
}

type side uint8

const (
	inPrev side = 1 << iota
	inCur
	inBoth = inPrev | inCur
)

type diffEntry struct {
	cell cell.Cell
	hash cell.Hash
	side side
}

// differ walks both DAGs by decreasing depth. A child is always shallower
// than its parent, so by the time a depth is reached every parent of its
// cells has been expanded and the side of each cell is final. Cells found
// on both sides are not reported, and their subtrees are only walked while
// unmatched cells remain.
type differ struct {
	mu      sync.Mutex
	buckets []map[cell.Hash]*diffEntry
	pending int
}

func newDiffer(prev, cur cell.Cell) (*differ, error) {
	top := prev.Depth(cell.MaxLevel)
	if d := cur.Depth(cell.MaxLevel); d > top {
		top = d
	}
	df := &differ{buckets: make([]map[cell.Hash]*diffEntry, top+1)}
	if err := df.add(prev, inPrev, top+1); err != nil {
		return nil, err
	}
	if err := df.add(cur, inCur, top+1); err != nil {
		return nil, err
	}
	return df, nil
}

func (df *differ) add(c cell.Cell, s side, parentDepth int) error {
	d := c.Depth(cell.MaxLevel)
	if d < 0 || d >= parentDepth {
		return xerrors.Errorf("cell %s has depth %d under a parent of depth %d", cell.ReprHash(c), d, parentDepth)
	}
	h := cell.ReprHash(c)

	df.mu.Lock()
	defer df.mu.Unlock()
	bucket := df.buckets[d]
	if bucket == nil {
		bucket = make(map[cell.Hash]*diffEntry)
		df.buckets[d] = bucket
	}
	e, ok := bucket[h]
	if !ok {
		bucket[h] = &diffEntry{cell: c, hash: h, side: s}
		if s != inBoth {
			df.pending++
		}
		return nil
	}
	if e.side != inBoth && e.side|s == inBoth {
		df.pending--
	}
	e.side |= s
	return nil
}

// take removes the cells of one depth, ordered by hash.
func (df *differ) take(depth int) []*diffEntry {
	bucket := df.buckets[depth]
	df.buckets[depth] = nil
	entries := make([]*diffEntry, 0, len(bucket))
	for _, e := range bucket {
		entries = append(entries, e)
		if e.side != inBoth {
			df.pending--
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].hash[:], entries[j].hash[:]) < 0
	})
	return entries
}

func (df *differ) expand(e *diffEntry, depth int) error {
	for i := 0; i < e.cell.RefCount(); i++ {
		child, err := e.cell.Reference(i)
		if err != nil {
			return xerrors.Errorf("loading reference %d of %s: %w", i, e.hash, err)
		}
		if err := df.add(child, e.side, depth); err != nil {
			return err
		}
	}
	return nil
}

// run walks the buckets, calling expandAll for the cells of each depth.
func (df *differ) run(ctx context.Context, expandAll func(entries []*diffEntry, depth int) error) ([]*Change, error) {
	var changes []*Change
	for depth := len(df.buckets) - 1; depth >= 0 && df.pending > 0; depth-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries := df.take(depth)
		for _, e := range entries {
			switch e.side {
			case inPrev:
				changes = append(changes, &Change{Type: Remove, Hash: e.hash, Cell: e.cell})
			case inCur:
				changes = append(changes, &Change{Type: Add, Hash: e.hash, Cell: e.cell})
			}
		}
		if df.pending == 0 && allCommon(entries) {
			break
		}
		if err := expandAll(entries, depth); err != nil {
			return nil, err
		}
	}
	return changes, nil
}

func allCommon(entries []*diffEntry) bool {
	for _, e := range entries {
		if e.side != inBoth {
			return false
		}
	}
	return true
}

// Diff returns the cells reachable from only one of prev and cur, deepest
// first. Subtrees shared by both are not reported.
func Diff(ctx context.Context, prev, cur cell.Cell) ([]*Change, error) {
	if cell.Equal(prev, cur) {
		return nil, nil
	}
	df, err := newDiffer(prev, cur)
	if err != nil {
		return nil, err
	}
	return df.run(ctx, func(entries []*diffEntry, depth int) error {
		for _, e := range entries {
			if err := df.expand(e, depth); err != nil {
				return err
			}
		}
		return nil
	})
}
