package boc

import (
	"sync"

	"github.com/tonkit/go-boc/cell"
)

// cellCache keeps decoded cells by wire position. Lookups never block: a
// lookup that loses the lock to a writer is a miss.
type cellCache struct {
	mu    sync.Mutex
	cells map[int]cell.Cell
}

func newCellCache() *cellCache {
	return &cellCache{cells: make(map[int]cell.Cell)}
}

func (c *cellCache) get(index int) (cell.Cell, bool) {
	if c == nil || !c.mu.TryLock() {
		return nil, false
	}
	defer c.mu.Unlock()
	v, ok := c.cells[index]
	return v, ok
}

func (c *cellCache) put(index int, v cell.Cell) cell.Cell {
	if c == nil {
		return v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// First decode wins so that every reader shares one instance.
	if prev, ok := c.cells[index]; ok {
		return prev
	}
	c.cells[index] = v
	return v
}

// locations memoizes the end offsets of cells found by scanning a bag
// without an index. ends[i] is the end of cell i relative to the data
// section.
type locations struct {
	mu   sync.Mutex
	ends []int64
	warn sync.Once
}
