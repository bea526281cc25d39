package fuzzer

import (
	"bytes"
	"context"
	"fmt"

	boc "github.com/tonkit/go-boc"
	"github.com/tonkit/go-boc/cell"
	"github.com/tonkit/go-boc/store"
)

type checkedBag struct {
	cells []cell.Cell
	step  uint64
	store *store.Store
}

func newCheckedBag() *checkedBag {
	return &checkedBag{store: store.New(newMockBlocks())}
}

func (c *checkedBag) pick(key uint64) cell.Cell {
	return c.cells[key%uint64(len(c.cells))]
}

// add keeps a freshly built cell. Cells the builder rejects are not a
// failure: the ops are arbitrary and may ask for impossible layouts.
func (c *checkedBag) add(n cell.Cell, err error) {
	if err != nil {
		c.trace("rejected: %s", err)
		return
	}
	c.cells = append(c.cells, n)
}

func (c *checkedBag) leaf(key, value uint64) {
	n := int(key % 65)
	c.trace("leaf of %d bits", n)
	c.add(cell.NewBuilder().StoreUint(value, n).Build())
}

func (c *checkedBag) branch(key, value uint64) {
	refs := int(value % (cell.MaxRefs + 1))
	if len(c.cells) == 0 {
		refs = 0
	}
	c.trace("branch with %d refs", refs)
	b := cell.NewBuilder().StoreUint(value>>8, 24)
	for i := 0; i < refs; i++ {
		b.StoreRef(c.pick(key >> (8 * i)))
	}
	c.add(b.Build())
}

func (c *checkedBag) prune(key, value uint64) {
	if len(c.cells) == 0 {
		return
	}
	level := int(value%cell.MaxLevel) + 1
	c.trace("prune at level %d", level)
	c.add(cell.CreatePrunedBranch(c.pick(key), level))
}

func (c *checkedBag) proof(key uint64) {
	if len(c.cells) == 0 {
		return
	}
	c.trace("proof")
	c.add(cell.CreateMerkleProof(c.pick(key)))
}

func (c *checkedBag) update(key, value uint64) {
	if len(c.cells) == 0 {
		return
	}
	c.trace("update")
	c.add(cell.CreateMerkleUpdate(c.pick(key), c.pick(value)))
}

func (c *checkedBag) library(key uint64) {
	if len(c.cells) == 0 {
		return
	}
	c.trace("library")
	c.add(cell.CreateLibrary(cell.ReprHash(c.pick(key))))
}

func (c *checkedBag) roots(key, value uint64) []cell.Cell {
	n := int(value%4) + 1
	roots := make([]cell.Cell, n)
	for i := range roots {
		roots[i] = c.pick(key >> (8 * i))
	}
	return roots
}

func encodeOptions(value uint64) []boc.EncodeOption {
	return []boc.EncodeOption{
		boc.WithIndex(value&1 != 0),
		boc.WithCRC32C(value&2 != 0),
		boc.WithCacheBits(value&4 != 0),
		boc.WithTopHashes(value&8 != 0),
		boc.WithInternalHashes(value&16 != 0),
		boc.WithInliningBudget(2 + int(value>>8)%254),
	}
}

func (c *checkedBag) encode(key, value uint64) {
	if len(c.cells) == 0 {
		return
	}
	c.trace("encode with flags %#x", value&0x1f)
	roots := c.roots(key, value>>32)
	opts := encodeOptions(value)
	data, err := boc.Encode(roots, opts...)
	c.checkErr(err)

	for _, dopts := range decodeVariants {
		out, err := boc.Decode(data, dopts...)
		c.checkErr(err)
		c.checkRoots(roots, out)

		again, err := boc.Encode(out, opts...)
		c.checkErr(err)
		if !bytes.Equal(data, again) {
			c.fail("re-encoding changed the bag")
		}
	}
}

func (c *checkedBag) persist(key, value uint64) {
	if len(c.cells) == 0 {
		return
	}
	c.trace("store")
	roots := c.roots(key, value)
	ctx := context.Background()
	id, err := c.store.Put(ctx, roots, encodeOptions(value>>8)...)
	c.checkErr(err)
	out, err := c.store.Get(ctx, id, boc.LazyLoad(true))
	c.checkErr(err)
	c.checkRoots(roots, out)
}

func (c *checkedBag) diff(key, value uint64) {
	if len(c.cells) == 0 {
		return
	}
	prev, cur := c.pick(key), c.pick(value)
	c.trace("diff")
	before, err := reachable(prev)
	c.checkErr(err)
	after, err := reachable(cur)
	c.checkErr(err)

	changes, err := boc.Diff(context.Background(), prev, cur)
	c.checkErr(err)
	seen := make(map[cell.Hash]bool, len(changes))
	for _, ch := range changes {
		if seen[ch.Hash] {
			c.fail("%s reported twice", ch)
		}
		seen[ch.Hash] = true
		switch ch.Type {
		case boc.Add:
			if before[ch.Hash] || !after[ch.Hash] {
				c.fail("unexpected %s", ch)
			}
		case boc.Remove:
			if !before[ch.Hash] || after[ch.Hash] {
				c.fail("unexpected %s", ch)
			}
		}
	}
	for h := range before {
		if !after[h] && !seen[h] {
			c.fail("missed removal of %s", h)
		}
	}
	for h := range after {
		if !before[h] && !seen[h] {
			c.fail("missed addition of %s", h)
		}
	}

	parallel, err := boc.ParallelDiff(context.Background(), prev, cur, int(value%8)+1)
	c.checkErr(err)
	if len(parallel) != len(changes) {
		c.fail("parallel diff found %d changes, expected %d", len(parallel), len(changes))
	}
	for i := range changes {
		if parallel[i].Hash != changes[i].Hash || parallel[i].Type != changes[i].Type {
			c.fail("parallel diff differs at %d: %s != %s", i, parallel[i], changes[i])
		}
	}
}

func (c *checkedBag) trace(msg string, args ...interface{}) {
	c.step++
	if Debug {
		fmt.Printf("step %d: "+msg+"\n", append([]interface{}{c.step}, args...)...)
	}
}

// check encodes the whole DAG with every option and reads it back.
func (c *checkedBag) check() {
	if len(c.cells) == 0 {
		return
	}
	for flags := uint64(0); flags < 32; flags++ {
		data, err := boc.Encode(c.cells, encodeOptions(flags)...)
		c.checkErr(err)
		out, err := boc.Decode(data)
		c.checkErr(err)
		c.checkRoots(c.cells, out)
	}
}

func (c *checkedBag) checkRoots(want, got []cell.Cell) {
	if len(want) != len(got) {
		c.fail("expected %d roots, got %d", len(want), len(got))
	}
	for i := range want {
		if !sameCell(want[i], got[i]) {
			c.fail("root %d does not match", i)
		}
	}
}

func (c *checkedBag) checkErr(e error) {
	if e != nil {
		c.fail(e.Error())
	}
}

func (c *checkedBag) fail(msg string, args ...interface{}) {
	panic(fmt.Sprintf("step %d: "+msg, append([]interface{}{c.step}, args...)...))
}
