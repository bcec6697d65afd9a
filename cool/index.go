package cool

import (
	"github.com/grailbio/hictools/internal/errs"
)

// Index is the Cool bin1-offset index (spec.md §3 "Cool index", component
// C7): for each bin id b, Offsets[b] is the row number of the first pixel
// with bin1_id == b, and Offsets[b+1]-Offsets[b] its run length. The final
// entry equals the total pixel count (spec.md §4.6).
type Index struct {
	offsets  []int64
	set      []bool // which offsets were explicitly recorded by SetOffsetByBinID
	finalized bool
}

// NewIndex creates an empty index sized for nBins bins.
func NewIndex(nBins int64) *Index {
	return &Index{offsets: make([]int64, nBins+1), set: make([]bool, nBins+1)}
}

// NewIndexFromOffsets wraps an already-materialized offsets slice, as read
// back from an existing "indexes/bin1_offset" dataset (spec.md §4.8
// "open_read_only" reconstructs the index rather than recomputing it).
func NewIndexFromOffsets(offsets []int64) *Index {
	set := make([]bool, len(offsets))
	for i := range set {
		set[i] = true
	}
	return &Index{offsets: offsets, set: set, finalized: true}
}

// SetOffsetByBinID records the first pixel row for binID. Callers only
// need to call this for bins that actually receive pixels; Finalize
// forward-fills every bin id left unset (spec.md §4.6).
func (idx *Index) SetOffsetByBinID(binID uint64, offset int64) error {
	if idx.finalized {
		return errs.E(errs.InvalidInput, "Index.SetOffsetByBinID", "index already finalized")
	}
	if binID >= uint64(len(idx.offsets)) {
		return errs.E(errs.OutOfRange, "Index.SetOffsetByBinID", binID)
	}
	idx.offsets[binID] = offset
	idx.set[binID] = true
	return nil
}

// GetOffsetByBinID returns the row offset recorded for binID.
func (idx *Index) GetOffsetByBinID(binID uint64) (int64, error) {
	if binID >= uint64(len(idx.offsets)) {
		return 0, errs.E(errs.OutOfRange, "Index.GetOffsetByBinID", binID)
	}
	return idx.offsets[binID], nil
}

// NNZ returns the number of pixels covered by [loBin,hiBin).
func (idx *Index) NNZ(loBin, hiBin uint64) (int64, error) {
	lo, err := idx.GetOffsetByBinID(loBin)
	if err != nil {
		return 0, err
	}
	hi, err := idx.GetOffsetByBinID(hiBin)
	if err != nil {
		return 0, err
	}
	return hi - lo, nil
}

// Size returns the total number of pixels recorded (the final offset).
func (idx *Index) Size() int64 {
	if len(idx.offsets) == 0 {
		return 0
	}
	return idx.offsets[len(idx.offsets)-1]
}

// Finalize forward-fills bins with zero pixels of their own to the
// running pixel count seen so far (spec.md §4.6: "bin1_offset[i] is the
// number of pixels with bin1_id < i"), sets the final entry to
// totalPixels, and marks the index read-only. Appenders only call
// SetOffsetByBinID for bins that actually receive pixels, so gaps are the
// normal case, not a caller error.
func (idx *Index) Finalize(totalPixels int64) error {
	running := idx.offsets[0]
	for i := 1; i < len(idx.offsets)-1; i++ {
		if !idx.set[i] {
			idx.offsets[i] = running
		} else {
			running = idx.offsets[i]
		}
	}
	idx.offsets[len(idx.offsets)-1] = totalPixels
	idx.finalized = true
	return idx.Validate()
}

// Validate checks that offsets are monotonically non-decreasing (spec.md
// §4.6, §8 "corruption is detected, not panicked on"). It does not compare
// the final entry with the pixel count; ValidateFile does that.
func (idx *Index) Validate() error {
	for i := 1; i < len(idx.offsets); i++ {
		if idx.offsets[i] < idx.offsets[i-1] {
			return errs.E(errs.Corruption, "Index.Validate", "offsets not monotonically non-decreasing")
		}
	}
	return nil
}

// ChromOffsets returns a copy of chromStarts, the row-index of the first
// bin of each chromosome as already computed by a BinTable (spec.md §4.6
// "compute_chrom_offsets", O(N_chroms)); it derives nothing itself.
func ChromOffsets(chromStarts []uint64) []uint64 {
	out := make([]uint64, len(chromStarts))
	copy(out, chromStarts)
	return out
}
