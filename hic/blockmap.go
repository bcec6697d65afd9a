// Package hic implements the block-sharded storage engine for the HIC
// container format (spec.md §2 components C10–C14, §3 "HIC file", §4.9–
// §4.13).
package hic

import "math"

// Geometry bundles the per-chromosome-pair block-addressing parameters
// chosen at write time (spec.md §4.10).
type Geometry struct {
	BlockBinCount   int64
	BlockColumnCount int64
	// LogBase is the logarithm base used by the v9+ diagonal-rotated
	// intrachromosomal scheme; 0 means "not applicable" (inter or pre-v9).
	LogBase float64
}

// Block geometry policy constants, carried verbatim from the source the
// spec was distilled from (spec.md §4.10, §9 "Open question"): the
// provenance of these cutoffs is undocumented upstream, so their values
// are preserved rather than re-derived.
const (
	IntraCutoffBP      = 500
	InterCutoffBP      = 5000
	DefaultBlockBins   = 1000
	// MaxBlockColumns bounds block_column_count so that row*columnCount+col
	// never overflows a signed 32-bit block id (spec.md §4.10).
	MaxBlockColumns = 46339 // floor(sqrt(MaxInt32)) - 1
)

// ChooseGeometry picks BlockBinCount/BlockColumnCount for a chromosome pair
// of the given sizes (in bins at resolution R) per the policy of spec.md
// §4.10: an intra cutoff of 500bp, an inter cutoff of 5000bp, and a
// default capacity of 1000 bins/block, bounded so the column count stays
// under MaxBlockColumns.
func ChooseGeometry(resolution int64, chrom1Size, chrom2Size int64, intra bool, v9Plus bool) Geometry {
	cutoff := InterCutoffBP
	if intra {
		cutoff = IntraCutoffBP
	}
	blockBinCount := DefaultBlockBins
	if resolution > 0 && int64(cutoff)/resolution > 0 {
		blockBinCount = int(int64(cutoff) / resolution)
	}
	if blockBinCount < 1 {
		blockBinCount = 1
	}
	maxSize := chrom1Size
	if chrom2Size > maxSize {
		maxSize = chrom2Size
	}
	cols := (maxSize + int64(blockBinCount) - 1) / int64(blockBinCount)
	if cols < 1 {
		cols = 1
	}
	if cols > MaxBlockColumns {
		cols = MaxBlockColumns
	}
	g := Geometry{BlockBinCount: int64(blockBinCount), BlockColumnCount: cols}
	if intra && v9Plus {
		g.LogBase = math.Log(2)
	}
	return g
}

// BlockID computes the deterministic block id for a pixel (spec.md §3
// "Pixel-to-block mapping", §4.10).
//
// For interchromosomal pairs, or pre-v9 intrachromosomal pairs, this is a
// simple grid: block_id = (bin2/B)*C + (bin1/B).
//
// For v9+ intrachromosomal pairs the matrix is rotated 45 degrees: blocks
// are addressed by (depth, position) where depth buckets distance from the
// diagonal logarithmically and position walks along the diagonal.
func BlockID(bin1, bin2 uint64, g Geometry) int64 {
	if g.LogBase > 0 {
		return intraV9BlockID(bin1, bin2, g)
	}
	return gridBlockID(bin1, bin2, g)
}

func gridBlockID(bin1, bin2 uint64, g Geometry) int64 {
	row := int64(bin1) / g.BlockBinCount
	col := int64(bin2) / g.BlockBinCount
	return col*g.BlockColumnCount + row
}

func intraV9BlockID(bin1, bin2 uint64, g Geometry) int64 {
	depth, position := intraV9DepthPosition(bin1, bin2, g)
	return depth*g.BlockColumnCount + position
}

// intraV9DepthPosition computes the (depth, position) pair for the v9+
// diagonal-rotated scheme (spec.md §3).
func intraV9DepthPosition(bin1, bin2 uint64, g Geometry) (depth, position int64) {
	var d int64
	if bin1 > bin2 {
		d = int64(bin1 - bin2)
	} else {
		d = int64(bin2 - bin1)
	}
	depth = int64(math.Log2(1+float64(d)/(math.Sqrt2*float64(g.BlockBinCount))) / g.LogBase)
	position = int64((bin1 + bin2) / 2 / uint64(g.BlockBinCount))
	return depth, position
}
