package cool

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/hictools/biopb"
)

// buildTestMatrix lays out a tiny 4-bin symmetric-upper matrix:
// (0,0)=1 (0,1)=2 (0,2)=3 (1,1)=4 (1,2)=5 (2,3)=6
func buildTestMatrix(t *testing.T) (*Dataset, *Dataset, *Dataset, *Index) {
	t.Helper()
	dir := t.TempDir()
	bin1 := []uint64{0, 0, 0, 1, 1, 2}
	bin2 := []uint64{0, 1, 2, 1, 2, 3}
	cnt := []uint64{1, 2, 3, 4, 5, 6}

	g1 := createUint64Dataset(t, filepath.Join(dir, "b1.h5"), "bin1_id", bin1)
	d1, err := OpenDataset(g1, "bin1_id", 8)
	require.NoError(t, err)

	g2 := createUint64Dataset(t, filepath.Join(dir, "b2.h5"), "bin2_id", bin2)
	d2, err := OpenDataset(g2, "bin2_id", 8)
	require.NoError(t, err)

	g3 := createUint64Dataset(t, filepath.Join(dir, "c.h5"), "count", cnt)
	d3, err := OpenDataset(g3, "count", 8)
	require.NoError(t, err)

	idx := NewIndex(4)
	require.NoError(t, idx.SetOffsetByBinID(0, 0))
	require.NoError(t, idx.SetOffsetByBinID(1, 3))
	require.NoError(t, idx.SetOffsetByBinID(2, 5))
	require.NoError(t, idx.SetOffsetByBinID(3, 6))
	require.NoError(t, idx.Finalize(6))

	return d1, d2, d3, idx
}

func TestPixelSelectorWholeMatrix(t *testing.T) {
	b1, b2, c, idx := buildTestMatrix(t)
	sel, err := NewPixelSelector(b1, b2, c, idx, 0, 4, 0, 4)
	require.NoError(t, err)

	var got []biopb.Pixel[float64]
	for {
		p, ok, err := sel.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, p)
	}
	assert.Len(t, got, 6)
	assert.EqualValues(t, 1, got[0].Count)
}

func TestPixelSelectorColumnFilter(t *testing.T) {
	b1, b2, c, idx := buildTestMatrix(t)
	sel, err := NewPixelSelector(b1, b2, c, idx, 0, 4, 2, 4)
	require.NoError(t, err)

	var got []biopb.Pixel[float64]
	for {
		p, ok, err := sel.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, p)
	}
	// only (0,2)=3, (1,2)=5, (2,3)=6 have bin2 in [2,4)
	assert.Len(t, got, 3)
}

func TestBalancerPropagatesNaN(t *testing.T) {
	b := &Balancer{Weights: []float64{1, math.NaN(), 2}}
	v := b.Apply(0, 1, 10)
	assert.True(t, math.IsNaN(v))

	v = b.Apply(0, 2, 10)
	assert.InDelta(t, 20, v, 1e-9)
}

func TestApplyVectorElementwise(t *testing.T) {
	weights := []float64{1, 2, 4}
	bin1 := []uint64{0, 1}
	bin2 := []uint64{1, 2}
	counts := []float64{1, 1}
	out := ApplyVector(weights, bin1, bin2, counts)
	assert.InDelta(t, 2, out[0], 1e-9)
	assert.InDelta(t, 8, out[1], 1e-9)
}
