package cool

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/grailbio/hictools/biopb"
	"github.com/grailbio/hictools/bins"
	"github.com/grailbio/hictools/internal/errs"
)

// BalanceMode selects how a named weight vector is applied to raw counts
// (spec.md §4.7 "balancing"): Cool weight vectors are conventionally
// multiplicative (ICE-style), but some callers store divisive factors.
type BalanceMode int

const (
	BalanceMultiplicative BalanceMode = iota
	BalanceDivisive
)

// Balancer applies a named per-bin weight vector to raw pixel counts,
// propagating NaN for any bin with an undefined weight (spec.md §4.7:
// "a pixel touching a masked bin is NaN, not dropped").
type Balancer struct {
	Weights []float64
	Mode    BalanceMode
}

// Apply returns count weighted by the bin1/bin2 weights, or NaN if either
// bin's weight is NaN or the bin falls outside the weight vector.
func (b *Balancer) Apply(bin1, bin2 uint64, count float64) float64 {
	w1 := b.weightAt(bin1)
	w2 := b.weightAt(bin2)
	if math.IsNaN(w1) || math.IsNaN(w2) {
		return math.NaN()
	}
	switch b.Mode {
	case BalanceDivisive:
		if w1 == 0 || w2 == 0 {
			return math.NaN()
		}
		return count / w1 / w2
	default:
		return count * w1 * w2
	}
}

func (b *Balancer) weightAt(bin uint64) float64 {
	if bin >= uint64(len(b.Weights)) {
		return math.NaN()
	}
	return b.Weights[bin]
}

// ApplyVector multiplies every entry of counts by the corresponding pair
// of weights in bulk (multiplicative weights only), using gonum/floats for the
// elementwise work (spec.md §4.7 "vectorized balancing").
func ApplyVector(weights []float64, bin1, bin2 []uint64, counts []float64) []float64 {
	out := make([]float64, len(counts))
	w1 := make([]float64, len(counts))
	w2 := make([]float64, len(counts))
	for i := range counts {
		w1[i] = weightOrNaN(weights, bin1[i])
		w2[i] = weightOrNaN(weights, bin2[i])
	}
	copy(out, counts)
	floats.Mul(out, w1)
	floats.Mul(out, w2)
	return out
}

func weightOrNaN(weights []float64, bin uint64) float64 {
	if bin >= uint64(len(weights)) {
		return math.NaN()
	}
	return weights[bin]
}

// PixelSelector iterates the pixels of a rectangular bin-space query
// window, merging the bin1_id/bin2_id/count column iterators under the
// guidance of the Index (spec.md §3 "PixelSelector", §4.7, component C8).
type PixelSelector struct {
	bin1       *Dataset
	bin2       *Dataset
	counts     *Dataset
	index      *Index
	loBin, hiBin uint64
	loCol, hiCol uint64

	row      int64
	rowEnd   int64
	balancer *Balancer
}

// NewPixelSelector builds a selector over [loBin,hiBin) x [loCol,hiCol) in
// bin-id space (the symmetric-upper convention means loCol/hiCol may start
// before loBin for a query straddling the diagonal; spec.md §4.7).
func NewPixelSelector(bin1, bin2, counts *Dataset, index *Index, loBin, hiBin, loCol, hiCol uint64) (*PixelSelector, error) {
	if hiBin <= loBin || hiCol <= loCol {
		return nil, errs.E(errs.InvalidInput, "NewPixelSelector", "empty query window")
	}
	start, err := index.GetOffsetByBinID(loBin)
	if err != nil {
		return nil, err
	}
	end, err := index.GetOffsetByBinID(hiBin)
	if err != nil {
		return nil, err
	}
	return &PixelSelector{
		bin1: bin1, bin2: bin2, counts: counts, index: index,
		loBin: loBin, hiBin: hiBin, loCol: loCol, hiCol: hiCol,
		row: start, rowEnd: end,
	}, nil
}

// WithBalancer attaches a weight vector to apply to every yielded pixel.
func (s *PixelSelector) WithBalancer(b *Balancer) *PixelSelector {
	s.balancer = b
	return s
}

// Next implements the selector's four-step scan (spec.md §4.7): (1) stop
// once the row cursor reaches the index-bounded end; (2) read the next
// row's bin1/bin2/count triple; (3) skip rows whose bin2 falls outside
// [loCol,hiCol); (4) yield everything else, applying the balancer if set.
func (s *PixelSelector) Next() (biopb.Pixel[float64], bool, error) {
	for s.row < s.rowEnd {
		b1, err := s.bin1.ReadUint64At(s.row)
		if err != nil {
			return biopb.Pixel[float64]{}, false, err
		}
		b2, err := s.bin2.ReadUint64At(s.row)
		if err != nil {
			return biopb.Pixel[float64]{}, false, err
		}
		var count float64
		if s.counts.DType() == DTypeFloat64 {
			count, err = s.counts.ReadFloat64At(s.row)
		} else {
			var c uint64
			c, err = s.counts.ReadUint64At(s.row)
			count = float64(c)
		}
		if err != nil {
			return biopb.Pixel[float64]{}, false, err
		}
		s.row++
		if b2 < s.loCol || b2 >= s.hiCol {
			continue
		}
		if s.balancer != nil {
			count = s.balancer.Apply(b1, b2, count)
		}
		coords, err := safeCoords(b1, b2)
		if err != nil {
			return biopb.Pixel[float64]{}, false, err
		}
		return biopb.Pixel[float64]{Coords: coords, Count: count}, true, nil
	}
	return biopb.Pixel[float64]{}, false, nil
}

func safeCoords(b1, b2 uint64) (biopb.PixelCoordinates, error) {
	return biopb.NewPixelCoordinates(b1, b2), nil
}

// SelectRectangle resolves a GenomicInterval pair against a BinTable and
// builds the corresponding PixelSelector (spec.md §4.7).
func SelectRectangle(bin1, bin2, counts *Dataset, index *Index, table *bins.BinTable, q1, q2 biopb.GenomicInterval) (*PixelSelector, error) {
	lo1, hi1, err := table.FindOverlap(q1)
	if err != nil {
		return nil, err
	}
	lo2, hi2, err := table.FindOverlap(q2)
	if err != nil {
		return nil, err
	}
	return NewPixelSelector(bin1, bin2, counts, index, lo1, hi1, lo2, hi2)
}
