package hic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockIDWithinRangeGrid(t *testing.T) {
	g := Geometry{BlockBinCount: 32, BlockColumnCount: 4}
	for bin1 := uint64(0); bin1 < 128; bin1 += 7 {
		for bin2 := uint64(0); bin2 < 128; bin2 += 11 {
			id := BlockID(bin1, bin2, g)
			assert.GreaterOrEqual(t, id, int64(0))
		}
	}
}

func TestDiagonalV9BlockDepthZero(t *testing.T) {
	// spec.md §8 scenario 5: chr1 1,000,000bp at R=1000 -> 1000 bins,
	// block_bin_count=1024, block_column_count=4. (500,500) -> depth 0, pos 0.
	g := Geometry{BlockBinCount: 1024, BlockColumnCount: 4, LogBase: math.Log(2)}
	id := BlockID(500, 500, g)
	assert.EqualValues(t, 0, id)
}

func TestDiagonalV9DepthIncreasesWithDistance(t *testing.T) {
	g := Geometry{BlockBinCount: 1024, BlockColumnCount: 4, LogBase: math.Log(2)}
	near := BlockID(500, 501, g)
	far := BlockID(0, 999, g)
	assert.NotEqual(t, near, far)
}

func TestChooseGeometryBoundedColumns(t *testing.T) {
	g := ChooseGeometry(1, 1<<40, 1<<40, true, false)
	assert.LessOrEqual(t, g.BlockColumnCount, int64(MaxBlockColumns))
}
