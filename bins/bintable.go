// Package bins implements the mapping between genomic intervals and bin
// ids used by both the cool and hic packages (spec.md §4.2, component C2).
package bins

import (
	"fmt"
	"sort"

	"github.com/biogo/store/interval"

	"github.com/grailbio/hictools/biopb"
	"github.com/grailbio/hictools/internal/errs"
)

// Bin is a single row/column of a contact matrix.
type Bin struct {
	ID     uint64
	RelID  uint32 // position within Chrom, 0-based
	Chrom  biopb.Chromosome
	Start  uint32
	End    uint32
}

// BinTable maps bin ids to genomic intervals and back. It is either
// fixed-resolution (every bin is R base pairs wide, save the last bin of
// each chromosome) or variable (explicit per-chromosome start/end arrays).
// A BinTable is built once from a Reference and is immutable and shared
// thereafter (spec.md §3).
type BinTable struct {
	ref        *biopb.Reference
	resolution uint32 // 0 for variable-width tables
	chromStart []uint64 // bin-id offset of chromosome i, length Len(ref)+1

	// Only populated for variable-width tables.
	starts [][]uint32
	ends   [][]uint32
	trees  []*interval.Tree
}

// binInterval adapts a variable-width bin to biogo/store/interval.Interval.
type binInterval struct {
	r      interval.IntRange
	id     uintptr
	binIdx int
}

func (b *binInterval) Overlap(r interval.IntRange) bool {
	return b.r.Start < r.End && r.Start < b.r.End
}
func (b *binInterval) ID() uintptr          { return b.id }
func (b *binInterval) Range() interval.IntRange { return b.r }
func (b *binInterval) SetID(id uintptr)     { b.id = id }

// NewFixedResolution builds a fixed-width BinTable tiling ref in bins of R
// base pairs. Fails with InvalidInput if R is 0 (spec.md §4.2).
func NewFixedResolution(ref *biopb.Reference, resolution uint32) (*BinTable, error) {
	if resolution == 0 {
		return nil, errs.E(errs.InvalidInput, "NewFixedResolution", "resolution must be > 0")
	}
	t := &BinTable{ref: ref, resolution: resolution}
	t.chromStart = make([]uint64, ref.Len()+1)
	for i := 0; i < ref.Len(); i++ {
		c, _ := ref.At(i)
		nbins := uint64(c.Size+resolution-1) / uint64(resolution)
		t.chromStart[i+1] = t.chromStart[i] + nbins
	}
	return t, nil
}

// NewVariable builds a BinTable from explicit per-chromosome start/end
// arrays. starts[i]/ends[i] must be ordered and non-overlapping within a
// chromosome and cover [0, chrom.Size) exhaustively is not required, only
// that every entry satisfies start<end<=chrom.Size.
func NewVariable(ref *biopb.Reference, starts, ends [][]uint32) (*BinTable, error) {
	if len(starts) != ref.Len() || len(ends) != ref.Len() {
		return nil, errs.E(errs.InvalidInput, "NewVariable", "starts/ends must have one entry per chromosome")
	}
	t := &BinTable{ref: ref, resolution: 0, starts: starts, ends: ends}
	t.chromStart = make([]uint64, ref.Len()+1)
	t.trees = make([]*interval.Tree, ref.Len())
	for i := 0; i < ref.Len(); i++ {
		c, _ := ref.At(i)
		if len(starts[i]) != len(ends[i]) {
			return nil, errs.E(errs.InvalidInput, "NewVariable", fmt.Sprintf("chromosome %q: mismatched start/end count", c.Name))
		}
		tree := &interval.Tree{}
		for j := range starts[i] {
			if starts[i][j] >= ends[i][j] || ends[i][j] > c.Size {
				return nil, errs.E(errs.InvalidInput, "NewVariable", fmt.Sprintf("chromosome %q bin %d: invalid [%d,%d)", c.Name, j, starts[i][j], ends[i][j]))
			}
			iv := &binInterval{r: interval.IntRange{Start: int(starts[i][j]), End: int(ends[i][j])}, binIdx: j}
			if err := tree.Insert(iv, false); err != nil {
				return nil, errs.E(errs.InvalidInput, "NewVariable", err)
			}
		}
		tree.AdjustRanges()
		t.trees[i] = tree
		t.chromStart[i+1] = t.chromStart[i] + uint64(len(starts[i]))
	}
	return t, nil
}

// Size returns the total number of bins.
func (t *BinTable) Size() uint64 { return t.chromStart[len(t.chromStart)-1] }

// Resolution returns the table's fixed bin width, or 0 for variable tables.
func (t *BinTable) Resolution() uint32 { return t.resolution }

// chromIndexForBin finds the chromosome containing binID via binary search
// over the chromosome bin-offset prefix sum (spec.md §4.2).
func (t *BinTable) chromIndexForBin(binID uint64) (int, error) {
	if binID >= t.Size() {
		return 0, errs.E(errs.OutOfRange, "BinTable", fmt.Sprintf("bin id %d", binID))
	}
	i := sort.Search(len(t.chromStart), func(i int) bool { return t.chromStart[i] > binID }) - 1
	return i, nil
}

// At returns the Bin with the given id in O(1) (fixed) or O(log n)
// (variable, via binary search over the chromosome offsets).
func (t *BinTable) At(binID uint64) (Bin, error) {
	ci, err := t.chromIndexForBin(binID)
	if err != nil {
		return Bin{}, err
	}
	chrom, _ := t.ref.At(ci)
	relID := uint32(binID - t.chromStart[ci])
	if t.resolution > 0 {
		start := relID * t.resolution
		end := start + t.resolution
		if end > chrom.Size {
			end = chrom.Size
		}
		return Bin{ID: binID, RelID: relID, Chrom: chrom, Start: start, End: end}, nil
	}
	return Bin{
		ID:    binID,
		RelID: relID,
		Chrom: chrom,
		Start: t.starts[ci][relID],
		End:   t.ends[ci][relID],
	}, nil
}

// AtPosition returns the Bin covering (chromName, pos).
func (t *BinTable) AtPosition(chromName string, pos uint32) (Bin, error) {
	chrom, err := t.ref.ByName(chromName)
	if err != nil {
		return Bin{}, err
	}
	if pos >= chrom.Size {
		return Bin{}, errs.E(errs.OutOfRange, "BinTable.AtPosition", fmt.Sprintf("position %d >= chromosome %q size %d", pos, chromName, chrom.Size))
	}
	ci := int(chrom.ID)
	if t.ref.HasALL() {
		ci--
	}
	if t.resolution > 0 {
		relID := pos / t.resolution
		return t.At(t.chromStart[ci] + uint64(relID))
	}
	tree := t.trees[ci]
	hits := tree.Get(&binInterval{r: interval.IntRange{Start: int(pos), End: int(pos) + 1}})
	if len(hits) == 0 {
		return Bin{}, errs.E(errs.OutOfRange, "BinTable.AtPosition", fmt.Sprintf("no bin covers %s:%d", chromName, pos))
	}
	b := hits[0].(*binInterval)
	return t.At(t.chromStart[ci] + uint64(b.binIdx))
}

// FindOverlap returns the half-open [begin,end) range of bin ids whose
// interval intersects query (spec.md §4.2).
func (t *BinTable) FindOverlap(query biopb.GenomicInterval) (begin, end uint64, err error) {
	ci := int(query.Chrom.ID)
	if t.ref.HasALL() {
		ci--
	}
	if ci < 0 || ci >= t.ref.Len() {
		return 0, 0, errs.E(errs.OutOfRange, "BinTable.FindOverlap", fmt.Sprintf("chromosome id %d", query.Chrom.ID))
	}
	if t.resolution > 0 {
		firstRel := uint64(query.Start / t.resolution)
		lastRel := uint64((query.End - 1) / t.resolution)
		return t.chromStart[ci] + firstRel, t.chromStart[ci] + lastRel + 1, nil
	}
	tree := t.trees[ci]
	hits := tree.Get(&binInterval{r: interval.IntRange{Start: int(query.Start), End: int(query.End)}})
	if len(hits) == 0 {
		return t.chromStart[ci], t.chromStart[ci], nil
	}
	minIdx, maxIdx := hits[0].(*binInterval).binIdx, hits[0].(*binInterval).binIdx
	for _, h := range hits[1:] {
		idx := h.(*binInterval).binIdx
		if idx < minIdx {
			minIdx = idx
		}
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	return t.chromStart[ci] + uint64(minIdx), t.chromStart[ci] + uint64(maxIdx) + 1, nil
}

// ChromOffset returns the bin-id offset of the start of chromosome i
// (filtered index space), used to derive indexes/chrom_offset (C7).
func (t *BinTable) ChromOffset(i int) uint64 { return t.chromStart[i] }

// Reference returns the underlying Reference.
func (t *BinTable) Reference() *biopb.Reference { return t.ref }
