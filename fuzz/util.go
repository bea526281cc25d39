package fuzzer

import (
	"context"
	"fmt"

	block "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"

	"github.com/tonkit/go-boc/cell"
)

// mockBlocks is an in-memory block store for the store ops.
type mockBlocks struct {
	data map[cid.Cid]block.Block
}

func newMockBlocks() *mockBlocks {
	return &mockBlocks{make(map[cid.Cid]block.Block)}
}

func (mb *mockBlocks) Get(_ context.Context, c cid.Cid) (block.Block, error) {
	if d, ok := mb.data[c]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("block %s not found", c)
}

func (mb *mockBlocks) Put(_ context.Context, b block.Block) error {
	mb.data[b.Cid()] = b
	return nil
}

// reachable loads the whole DAG under root and returns the hashes of its
// distinct cells.
func reachable(root cell.Cell) (map[cell.Hash]bool, error) {
	seen := make(map[cell.Hash]bool)
	stack := []cell.Cell{root}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h := cell.ReprHash(c)
		if seen[h] {
			continue
		}
		seen[h] = true
		for i := 0; i < c.RefCount(); i++ {
			r, err := c.Reference(i)
			if err != nil {
				return nil, err
			}
			stack = append(stack, r)
		}
	}
	return seen, nil
}

// sameCell compares two DAGs cell by cell, loading every reference.
func sameCell(a, b cell.Cell) bool {
	type pair struct{ a, b cell.Cell }
	seen := make(map[cell.Hash]bool)
	stack := []pair{{a, b}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h := cell.ReprHash(p.a)
		if h != cell.ReprHash(p.b) {
			return false
		}
		if seen[h] {
			continue
		}
		seen[h] = true
		if p.a.Descriptor() != p.b.Descriptor() || !p.a.Bits().Equal(p.b.Bits()) {
			return false
		}
		for i := 0; i < p.a.RefCount(); i++ {
			ra, err := p.a.Reference(i)
			if err != nil {
				return false
			}
			rb, err := p.b.Reference(i)
			if err != nil {
				return false
			}
			stack = append(stack, pair{ra, rb})
		}
	}
	return true
}
