// Package cellgen builds random cell DAGs for tests, benchmarks and the
// fuzzer. Cells are shared between parents and may include pruned branches
// and Merkle proofs.
package cellgen

import (
	"math/rand"

	"github.com/tonkit/go-boc/cell"
)

type node struct {
	cell        cell.Cell
	merkleDepth int
}

// Generator grows a DAG one random cell at a time. Each cell references
// earlier ones, biased towards the most recent, so the DAG gets deep.
type Generator struct {
	rnd    *rand.Rand
	exotic bool
	nodes  []node
}

func New(rnd *rand.Rand, exotic bool) *Generator {
	return &Generator{rnd: rnd, exotic: exotic}
}

// Random returns the root of a DAG of size random cells.
func Random(seed int64, size int, exotic bool) (cell.Cell, error) {
	g := New(rand.New(rand.NewSource(seed)), exotic)
	if err := g.Grow(size); err != nil {
		return nil, err
	}
	return g.Root()
}

func (g *Generator) Len() int {
	return len(g.nodes)
}

func (g *Generator) Cell(i int) cell.Cell {
	return g.nodes[i].cell
}

func (g *Generator) Grow(n int) error {
	for i := 0; i < n; i++ {
		if err := g.Add(); err != nil {
			return err
		}
	}
	return nil
}

// Add appends one random cell.
func (g *Generator) Add() error {
	for {
		b := cell.NewBuilder()
		merkleDepth := 0
		refs := g.rnd.Intn(cell.MaxRefs + 1)
		for j := 0; j < refs && len(g.nodes) > 0; j++ {
			from := 0
			if j == 0 && len(g.nodes) > 3 {
				from = len(g.nodes) - 3
			}
			to := from + g.rnd.Intn(len(g.nodes)-from)
			if d := g.nodes[to].merkleDepth; d > merkleDepth {
				merkleDepth = d
			}
			b.StoreRef(g.nodes[to].cell)
		}
		for k := g.rnd.Intn(5); k > 0; k-- {
			b.StoreBytes([]byte{"ab"[g.rnd.Intn(2)]})
		}
		if g.rnd.Intn(5) == 4 {
			fill := byte(0x55)
			if g.rnd.Intn(2) == 0 {
				fill = 0xff
			}
			b.StoreBitString(cell.NewBitString([]byte{fill}, 1+g.rnd.Intn(7)))
		}
		c, err := b.Build()
		if err != nil {
			return err
		}

		if g.exotic {
			if level := c.Level(); g.rnd.Intn(6) == 0 && level+1 < cell.MaxLevel {
				if c, err = cell.CreatePrunedBranch(c, level+1); err != nil {
					return err
				}
			}
			if merkleDepth+1+c.Level() < cell.MaxLevel && g.rnd.Intn(11) == 0 {
				if c, err = cell.CreateMerkleProof(c); err != nil {
					return err
				}
				merkleDepth++
			}
		}
		if merkleDepth+c.Level() >= cell.MaxLevel {
			continue
		}
		g.nodes = append(g.nodes, node{cell: c, merkleDepth: merkleDepth})
		return nil
	}
}

// Root wraps the last cell in Merkle proofs until it has level 0.
func (g *Generator) Root() (cell.Cell, error) {
	last := g.nodes[len(g.nodes)-1]
	for last.cell.Descriptor().LevelMask().Level() != 0 {
		c, err := cell.CreateMerkleProof(last.cell)
		if err != nil {
			return nil, err
		}
		last = node{cell: c, merkleDepth: last.merkleDepth + 1}
		g.nodes = append(g.nodes, last)
	}
	return last.cell, nil
}

// Roots picks n cells of the DAG, possibly repeating.
func (g *Generator) Roots(n int) []cell.Cell {
	roots := make([]cell.Cell, n)
	for i := range roots {
		roots[i] = g.nodes[g.rnd.Intn(len(g.nodes))].cell
	}
	return roots
}
