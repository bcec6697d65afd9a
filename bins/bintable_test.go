package bins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/hictools/biopb"
)

func testTable(t *testing.T) (*biopb.Reference, *BinTable) {
	t.Helper()
	ref, err := biopb.NewReference([]string{"chr1", "chr2"}, []uint32{1000, 500})
	require.NoError(t, err)
	bt, err := NewFixedResolution(ref, 100)
	require.NoError(t, err)
	return ref, bt
}

func TestBinTableRoundTrip(t *testing.T) {
	_, bt := testTable(t)
	require.EqualValues(t, 15, bt.Size()) // 10 bins chr1 + 5 bins chr2
	for i := uint64(0); i < bt.Size(); i++ {
		b, err := bt.At(i)
		require.NoError(t, err)
		b2, err := bt.AtPosition(b.Chrom.Name, b.Start)
		require.NoError(t, err)
		assert.Equal(t, b, b2)
	}
}

func TestFindOverlapWholeChromosome(t *testing.T) {
	ref, bt := testTable(t)
	c1, err := ref.ByName("chr1")
	require.NoError(t, err)
	begin, end, err := bt.FindOverlap(biopb.NewWholeChromosome(c1))
	require.NoError(t, err)
	assert.EqualValues(t, 0, begin)
	assert.EqualValues(t, 10, end)
}

func TestZeroResolutionRejected(t *testing.T) {
	ref, _ := biopb.NewReference([]string{"chr1"}, []uint32{100})
	_, err := NewFixedResolution(ref, 0)
	assert.Error(t, err)
}

func TestVariableBinTable(t *testing.T) {
	ref, err := biopb.NewReference([]string{"chr1"}, []uint32{100})
	require.NoError(t, err)
	starts := [][]uint32{{0, 30, 70}}
	ends := [][]uint32{{30, 70, 100}}
	bt, err := NewVariable(ref, starts, ends)
	require.NoError(t, err)
	require.EqualValues(t, 3, bt.Size())

	b, err := bt.AtPosition("chr1", 45)
	require.NoError(t, err)
	assert.EqualValues(t, 1, b.RelID)
	assert.Equal(t, uint32(30), b.Start)
	assert.Equal(t, uint32(70), b.End)
}
