package biopb

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/grailbio/hictools/internal/errs"
)

// GenomicInterval is a half-open [Start,End) range on a chromosome, with
// Start < End <= Chrom.Size (spec.md §3).
type GenomicInterval struct {
	Chrom Chromosome
	Start uint32
	End   uint32
}

// Compare orders by chromosome, then start, then end.
func (g GenomicInterval) Compare(o GenomicInterval) int {
	if g.Chrom.ID != o.Chrom.ID {
		return int(g.Chrom.ID) - int(o.Chrom.ID)
	}
	if g.Start != o.Start {
		return int(g.Start) - int(o.Start)
	}
	return int(g.End) - int(o.End)
}

// Intersects reports whether g and o overlap on the same chromosome.
func (g GenomicInterval) Intersects(o GenomicInterval) bool {
	return g.Chrom.ID == o.Chrom.ID && g.Start < o.End && o.Start < g.End
}

var ucscRe = regexp.MustCompile(`^([^:]+):([0-9,]+)-([0-9,]+)$`)

// ParseUCSC parses a "chr:start-end" range string, accepting comma
// thousands separators, against ref.
func ParseUCSC(ref *Reference, s string) (GenomicInterval, error) {
	m := ucscRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return GenomicInterval{}, errs.E(errs.InvalidInput, "ParseUCSC", s, "malformed UCSC range")
	}
	chrom, err := ref.ByName(m[1])
	if err != nil {
		return GenomicInterval{}, err
	}
	start, err := strconv.ParseUint(strings.ReplaceAll(m[2], ",", ""), 10, 32)
	if err != nil {
		return GenomicInterval{}, errs.E(errs.InvalidInput, "ParseUCSC", s, err)
	}
	end, err := strconv.ParseUint(strings.ReplaceAll(m[3], ",", ""), 10, 32)
	if err != nil {
		return GenomicInterval{}, errs.E(errs.InvalidInput, "ParseUCSC", s, err)
	}
	return newInterval(chrom, uint32(start), uint32(end))
}

// ParseBED parses a three-field tab-separated BED line ("chrom\tstart\tend")
// against ref.
func ParseBED(ref *Reference, s string) (GenomicInterval, error) {
	fields := strings.Split(strings.TrimSpace(s), "\t")
	if len(fields) != 3 {
		return GenomicInterval{}, errs.E(errs.InvalidInput, "ParseBED", s, "expected 3 tab-separated fields")
	}
	chrom, err := ref.ByName(fields[0])
	if err != nil {
		return GenomicInterval{}, err
	}
	start, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return GenomicInterval{}, errs.E(errs.InvalidInput, "ParseBED", s, err)
	}
	end, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return GenomicInterval{}, errs.E(errs.InvalidInput, "ParseBED", s, err)
	}
	return newInterval(chrom, uint32(start), uint32(end))
}

// NewWholeChromosome returns the interval spanning all of chrom.
func NewWholeChromosome(chrom Chromosome) GenomicInterval {
	return GenomicInterval{Chrom: chrom, Start: 0, End: chrom.Size}
}

func newInterval(chrom Chromosome, start, end uint32) (GenomicInterval, error) {
	if start >= end {
		return GenomicInterval{}, errs.E(errs.InvalidInput, "GenomicInterval", fmt.Sprintf("start %d >= end %d", start, end))
	}
	if end > chrom.Size {
		return GenomicInterval{}, errs.E(errs.OutOfRange, "GenomicInterval", fmt.Sprintf("end %d exceeds chromosome %q size %d", end, chrom.Name, chrom.Size))
	}
	return GenomicInterval{Chrom: chrom, Start: start, End: end}, nil
}

// PixelCoordinates is an ordered pair of bin ids in symmetric-upper
// canonical form: Bin1 <= Bin2 (spec.md §3).
type PixelCoordinates struct {
	Bin1 uint64
	Bin2 uint64
}

// NewPixelCoordinates returns the canonical (bin1<=bin2) form of (a,b).
func NewPixelCoordinates(a, b uint64) PixelCoordinates {
	if a <= b {
		return PixelCoordinates{Bin1: a, Bin2: b}
	}
	return PixelCoordinates{Bin1: b, Bin2: a}
}

// Compare orders lexicographically by (Bin1, Bin2).
func (p PixelCoordinates) Compare(o PixelCoordinates) int {
	if p.Bin1 != o.Bin1 {
		if p.Bin1 < o.Bin1 {
			return -1
		}
		return 1
	}
	if p.Bin2 != o.Bin2 {
		if p.Bin2 < o.Bin2 {
			return -1
		}
		return 1
	}
	return 0
}

// ThinPixel is the on-disk representation of a single contact: a pair of
// bin ids plus a count, generic over the count's numeric type.
type ThinPixel[N Number] struct {
	Bin1ID uint64
	Bin2ID uint64
	Count  N
}

// Pixel additionally carries the resolved matrix coordinates.
type Pixel[N Number] struct {
	Coords PixelCoordinates
	Count  N
}

// Number is the set of element types a pixel count may hold.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}
