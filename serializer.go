package boc

import (
	"golang.org/x/xerrors"

	"github.com/tonkit/go-boc/cell"
)

const maxCellWeight = 255

// Allocation states of a cellInfo index. Non-negative values are final
// indexes.
const (
	notVisited = -1
	preVisited = -2
	visited    = -3
)

type cellInfo struct {
	cell cell.Cell
	// refs holds import indexes until the cell is visited, final indexes
	// after.
	refs        [cell.MaxRefs]int
	refCount    int
	weight      int
	hashCount   int
	shouldCache bool
	isRootCell  bool
	index       int
}

// special cells get their hashes embedded.
func (ci *cellInfo) special() bool {
	return ci.weight == 0
}

type rootInfo struct {
	cell  cell.Cell
	hash  cell.Hash
	index int
}

// serializer holds the state of one encode call: the deduplicated cells in
// import order, then after allocate in final order.
type serializer struct {
	cfg *encodeConfig

	cells  []*cellInfo
	byHash map[cell.Hash]int
	roots  []rootInfo

	intRefs        int
	dataBytes      int
	internalHashes int
	topHashes      int
	rvIndex        int
}

func newSerializer(cfg *encodeConfig) *serializer {
	return &serializer{
		cfg:    cfg,
		byHash: make(map[cell.Hash]int),
	}
}

// addRoot imports the DAG below root.
func (s *serializer) addRoot(root cell.Cell) error {
	if root == nil {
		return xerrors.Errorf("root %d is nil", len(s.roots))
	}
	idx, err := s.importCell(root)
	if err != nil {
		return err
	}
	s.roots = append(s.roots, rootInfo{cell: root, hash: cell.ReprHash(root), index: idx})
	return nil
}

type importFrame struct {
	cell cell.Cell
	hash cell.Hash
	next int
	refs [cell.MaxRefs]int
}

// importCell adds c and its descendants in post order, returning the import
// index of c. Cells already seen are flagged for caching.
func (s *serializer) importCell(c cell.Cell) (int, error) {
	h := cell.ReprHash(c)
	if idx, ok := s.byHash[h]; ok {
		s.cells[idx].shouldCache = true
		return idx, nil
	}

	stack := []*importFrame{{cell: c, hash: h}}
	for {
		top := stack[len(stack)-1]
		if top.next < top.cell.RefCount() {
			child, err := top.cell.Reference(top.next)
			if err != nil {
				return 0, xerrors.Errorf("importing reference %d of %s: %w", top.next, top.hash, err)
			}
			ch := cell.ReprHash(child)
			if idx, ok := s.byHash[ch]; ok {
				s.cells[idx].shouldCache = true
				top.refs[top.next] = idx
				top.next++
				continue
			}
			if len(stack) > cell.MaxDepth {
				return 0, xerrors.Errorf("importing %s: %w", h, cell.ErrDepthLimit)
			}
			stack = append(stack, &importFrame{cell: child, hash: ch})
			continue
		}

		idx := s.newCellInfo(top)
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			return idx, nil
		}
		parent := stack[len(stack)-1]
		parent.refs[parent.next] = idx
		parent.next++
	}
}

func (s *serializer) newCellInfo(f *importFrame) int {
	desc := f.cell.Descriptor()
	ci := &cellInfo{
		cell:      f.cell,
		refs:      f.refs,
		refCount:  f.cell.RefCount(),
		hashCount: desc.HashCount(),
		index:     notVisited,
	}
	weight := 1
	for i := 0; i < ci.refCount; i++ {
		weight += s.cells[ci.refs[i]].weight
	}
	if weight > maxCellWeight {
		weight = maxCellWeight
	}
	ci.weight = weight

	s.intRefs += ci.refCount
	s.dataBytes += desc.ByteLen() + 2

	idx := len(s.cells)
	s.cells = append(s.cells, ci)
	s.byHash[f.hash] = idx
	return idx
}

// selectCheckpoints decides which cells become special. Parents cap the
// weight of their children to a share of the inlining budget, then every
// cell whose subtree no longer fits under its cap is made special.
func (s *serializer) selectCheckpoints() {
	budget := s.cfg.budget
	for i := len(s.cells) - 1; i >= 0; i-- {
		ci := s.cells[i]
		refs := ci.refCount
		if refs == 0 {
			continue
		}
		remaining := budget - 1
		left := refs
		var pinned [cell.MaxRefs]bool
		for j := 0; j < refs; j++ {
			child := s.cells[ci.refs[j]]
			if child.weight <= (budget-1+j)/refs {
				remaining -= child.weight
				left--
				pinned[j] = true
			}
		}
		if left == 0 {
			continue
		}
		for j := 0; j < refs; j++ {
			if pinned[j] {
				continue
			}
			child := s.cells[ci.refs[j]]
			limit := remaining / left
			remaining++
			if child.weight > limit {
				child.weight = limit
			}
		}
	}

	for _, ci := range s.cells {
		sum := 1
		for j := 0; j < ci.refCount; j++ {
			sum += s.cells[ci.refs[j]].weight
		}
		if sum <= ci.weight {
			ci.weight = sum
		} else {
			ci.weight = 0
			s.internalHashes += ci.hashCount
		}
	}

	for _, r := range s.roots {
		ci := s.cells[r.index]
		if ci.isRootCell || ci.special() {
			continue
		}
		ci.isRootCell = true
		s.topHashes += ci.hashCount
	}
}

type allocFrame struct {
	idx   int
	visit bool
	stage int
	next  int
}

// revisit runs the previsit or visit phase from idx. Children are always
// allocated before their parent, so final indexes of children are smaller.
func (s *serializer) revisit(idx int, visit bool) {
	stack := []allocFrame{{idx: idx, visit: visit}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		ci := s.cells[f.idx]

		if !f.visit {
			if f.stage == 0 {
				if ci.index != notVisited {
					stack = stack[:len(stack)-1]
					continue
				}
				f.stage = 1
				f.next = ci.refCount - 1
			}
			if f.next >= 0 {
				child := ci.refs[f.next]
				f.next--
				stack = append(stack, allocFrame{idx: child, visit: s.cells[child].special()})
				continue
			}
			ci.index = preVisited
			stack = stack[:len(stack)-1]
			continue
		}

		switch f.stage {
		case 0:
			if ci.index >= 0 || ci.index == visited {
				stack = stack[:len(stack)-1]
				continue
			}
			f.stage = 1
			f.next = ci.refCount - 1
			if ci.special() {
				stack = append(stack, allocFrame{idx: f.idx})
				continue
			}
		case 1:
			if f.next >= 0 {
				child := ci.refs[f.next]
				f.next--
				stack = append(stack, allocFrame{idx: child, visit: true})
				continue
			}
			for j := ci.refCount - 1; j >= 0; j-- {
				ci.refs[j] = s.allocate(ci.refs[j])
			}
			ci.index = visited
			stack = stack[:len(stack)-1]
		}
	}
}

func (s *serializer) allocate(idx int) int {
	ci := s.cells[idx]
	if ci.index < 0 {
		ci.index = s.rvIndex
		s.rvIndex++
	}
	return ci.index
}

// reorder assigns final indexes and sorts cells by them.
func (s *serializer) reorder() error {
	s.rvIndex = 0
	for _, r := range s.roots {
		s.revisit(r.index, false)
		s.revisit(r.index, true)
	}
	for _, r := range s.roots {
		s.allocate(r.index)
	}
	if s.rvIndex != len(s.cells) {
		return xerrors.Errorf("allocated %d of %d cells: %w", s.rvIndex, len(s.cells), ErrUnknownCell)
	}

	sorted := make([]*cellInfo, len(s.cells))
	for _, ci := range s.cells {
		sorted[ci.index] = ci
	}
	for i := range s.roots {
		s.roots[i].index = s.cells[s.roots[i].index].index
	}
	for h, idx := range s.byHash {
		s.byHash[h] = s.cells[idx].index
	}
	s.cells = sorted
	return nil
}
