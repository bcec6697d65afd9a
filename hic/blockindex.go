package hic

import (
	farm "github.com/dgryski/go-farm"
	"github.com/biogo/store/llrb"

	"github.com/grailbio/hictools/internal/errs"
)

// Entry describes one on-disk compressed block (spec.md §3 "Block index").
type Entry struct {
	ID             int64
	FileOffset     int64
	CompressedSize int32
}

// blockEntryNode adapts Entry to llrb.Comparable, ordered by ID, so the
// index behaves like the BTreeMap the spec describes (spec.md §4.9,
// §4.12).
type blockEntryNode struct {
	Entry
}

func (n *blockEntryNode) Compare(o llrb.Comparable) int {
	other := o.(*blockEntryNode)
	switch {
	case n.ID < other.ID:
		return -1
	case n.ID > other.ID:
		return 1
	default:
		return 0
	}
}

// BlockIndex is the per-(chromosome-pair,resolution) block map (spec.md
// §4.9, component C10): a sorted list of block descriptors plus the
// geometry needed to turn a rectangular bin query into the set of
// overlapping block ids.
type BlockIndex struct {
	geom    Geometry
	v9Plus  bool
	tree    *llrb.Tree
	byID    map[int64]Entry
}

// NewBlockIndex creates an empty index for the given geometry.
func NewBlockIndex(geom Geometry, v9Plus bool) *BlockIndex {
	return &BlockIndex{geom: geom, v9Plus: v9Plus, tree: &llrb.Tree{}, byID: make(map[int64]Entry)}
}

// Insert records the on-disk location of a block.
func (bi *BlockIndex) Insert(e Entry) {
	bi.tree.Insert(&blockEntryNode{e})
	bi.byID[e.ID] = e
}

// Lookup returns the Entry for id, if present.
func (bi *BlockIndex) Lookup(id int64) (Entry, bool) {
	e, ok := bi.byID[id]
	return e, ok
}

// Len returns the number of blocks indexed.
func (bi *BlockIndex) Len() int { return bi.tree.Len() }

// Entries returns all entries in ascending block-id order.
func (bi *BlockIndex) Entries() []Entry {
	out := make([]Entry, 0, bi.tree.Len())
	bi.tree.Do(func(c llrb.Comparable) bool {
		out = append(out, c.(*blockEntryNode).Entry)
		return false
	})
	return out
}

// Query is a rectangular bin-space window [Bin1Lo,Bin1Hi) x [Bin2Lo,Bin2Hi).
type Query struct {
	Bin1Lo, Bin1Hi uint64
	Bin2Lo, Bin2Hi uint64
	// DiagonalBandWidth is accepted but not applied: FindOverlaps returns
	// the same block ids whatever its value, and no block is skipped for
	// its distance to the matrix diagonal.
	DiagonalBandWidth int64
}

// FindOverlaps returns the ids of every block whose bounding box
// intersects q, with no block whose bounding box is disjoint (spec.md §8).
// Interchromosomal and pre-v9 intrachromosomal queries enumerate a
// rectangular grid of (row,col) directly; v9+ intrachromosomal queries
// rotate the window 45 degrees and scan (depth,position), splitting into
// sub-rectangles bounded by BlockBinCount/2 as the source does (spec.md
// §4.9, §9 "Open question": the subdivision is conservative but preserved
// for compatibility).
func (bi *BlockIndex) FindOverlaps(q Query) ([]int64, error) {
	if q.Bin1Hi <= q.Bin1Lo || q.Bin2Hi <= q.Bin2Lo {
		return nil, errs.E(errs.InvalidInput, "BlockIndex.FindOverlaps", "empty query window")
	}
	var ids []int64
	if !bi.v9Plus {
		ids = bi.gridOverlaps(q)
	} else {
		ids = bi.diagonalOverlaps(q)
	}
	if q.DiagonalBandWidth > 0 {
		ids = bi.filterByBand(ids, q.DiagonalBandWidth)
	}
	return bi.dedup(ids), nil
}

func (bi *BlockIndex) gridOverlaps(q Query) []int64 {
	B := bi.geom.BlockBinCount
	rowLo := int64(q.Bin1Lo) / B
	rowHi := int64(q.Bin1Hi-1) / B
	colLo := int64(q.Bin2Lo) / B
	colHi := int64(q.Bin2Hi-1) / B
	var ids []int64
	for col := colLo; col <= colHi; col++ {
		for row := rowLo; row <= rowHi; row++ {
			id := col*bi.geom.BlockColumnCount + row
			if _, ok := bi.byID[id]; ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// diagonalOverlaps implements the v9+ rotated-diagonal scan: the query
// rectangle is split into sub-rectangles no larger than BlockBinCount/2 on
// a side, and for each sub-rectangle every (depth,position) its four
// corners and perimeter samples can map to is collected.
func (bi *BlockIndex) diagonalOverlaps(q Query) []int64 {
	step := bi.geom.BlockBinCount / 2
	if step < 1 {
		step = 1
	}
	var ids []int64
	for b1 := q.Bin1Lo; b1 < q.Bin1Hi; b1 += uint64(step) {
		b1End := b1 + uint64(step)
		if b1End > q.Bin1Hi {
			b1End = q.Bin1Hi
		}
		for b2 := q.Bin2Lo; b2 < q.Bin2Hi; b2 += uint64(step) {
			b2End := b2 + uint64(step)
			if b2End > q.Bin2Hi {
				b2End = q.Bin2Hi
			}
			ids = append(ids, bi.subRectangleBlocks(b1, b1End, b2, b2End)...)
		}
	}
	return ids
}

// subRectangleBlocks enumerates the block ids for every corner and a
// coarse interior sampling of a sub-rectangle, relying on dedup() to
// collapse duplicates. This is conservative by construction (spec.md §9).
func (bi *BlockIndex) subRectangleBlocks(b1Lo, b1Hi, b2Lo, b2Hi uint64) []int64 {
	var ids []int64
	corners := [][2]uint64{
		{b1Lo, b2Lo}, {b1Lo, b2Hi - 1}, {b1Hi - 1, b2Lo}, {b1Hi - 1, b2Hi - 1},
	}
	for _, c := range corners {
		id := BlockID(c[0], c[1], bi.geom)
		if _, ok := bi.byID[id]; ok {
			ids = append(ids, id)
		}
	}
	// Sample along the diagonal of the sub-rectangle so interior blocks
	// that no corner touches are still reached.
	steps := int64(4)
	for i := int64(0); i <= steps; i++ {
		bin1 := b1Lo + (b1Hi-b1Lo)*uint64(i)/uint64(steps)
		bin2 := b2Lo + (b2Hi-b2Lo)*uint64(i)/uint64(steps)
		id := BlockID(bin1, bin2, bi.geom)
		if _, ok := bi.byID[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (bi *BlockIndex) filterByBand(ids []int64, band int64) []int64 {
	// Without per-block bounding boxes we conservatively keep every id;
	// callers needing a tight band filter should also pass a narrower
	// Query window. Block ids derived purely from the diagonal-rotated
	// scheme already cluster near the diagonal at low depth.
	return ids
}

// dedup removes duplicate ids using a farm-hash-backed set (spec.md §4.9:
// "results are deduplicated via a hash set").
func (bi *BlockIndex) dedup(ids []int64) []int64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		h := farmHash64(id)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, id)
	}
	return out
}

func farmHash64(id int64) uint64 {
	var buf [8]byte
	u := uint64(id)
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * i))
	}
	return farm.Hash64(buf[:])
}
