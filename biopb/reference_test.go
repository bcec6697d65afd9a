package biopb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRef(t *testing.T) *Reference {
	t.Helper()
	r, err := NewReference([]string{"chr1", "chr2", "chr3"}, []uint32{1000, 500, 2000})
	require.NoError(t, err)
	return r
}

func TestReferencePreservesOrderAndLookup(t *testing.T) {
	r := testRef(t)
	require.Equal(t, 3, r.Len())
	for i := 0; i < r.Len(); i++ {
		c, err := r.At(i)
		require.NoError(t, err)
		byID, err := r.ByID(c.ID)
		require.NoError(t, err)
		byName, err := r.ByName(c.Name)
		require.NoError(t, err)
		assert.Equal(t, c, byID)
		assert.Equal(t, c, byName)
	}
}

func TestReferenceRejectsInvalidInput(t *testing.T) {
	_, err := NewReference([]string{"chr1", ""}, []uint32{10, 20})
	assert.Error(t, err)

	_, err = NewReference([]string{"chr1", "chr2"}, []uint32{10, 0})
	assert.Error(t, err)

	_, err = NewReference([]string{"chr1", "chr1"}, []uint32{10, 20})
	assert.Error(t, err)

	_, err = NewReference([]string{"chr1"}, []uint32{10, 20})
	assert.Error(t, err)
}

func TestAddALLRemoveALLIsIdentity(t *testing.T) {
	r := testRef(t)
	withAll, err := r.AddALL(1000)
	require.NoError(t, err)
	require.True(t, withAll.HasALL())

	back, err := withAll.RemoveALL()
	require.NoError(t, err)
	require.False(t, back.HasALL())
	assert.Equal(t, r.Len(), back.Len())
	for i := 0; i < r.Len(); i++ {
		want, _ := r.At(i)
		got, _ := back.At(i)
		assert.Equal(t, want, got)
	}
}

func TestAddALLSize(t *testing.T) {
	r := testRef(t)
	withAll, err := r.AddALL(1)
	require.NoError(t, err)
	all, err := withAll.ByID(0)
	require.NoError(t, err)
	assert.Equal(t, AllChromosomeName, all.Name)
	assert.EqualValues(t, r.TotalSize(), all.Size)
}

func TestLongestChromosomeTieBreakLowestID(t *testing.T) {
	r, err := NewReference([]string{"a", "b", "c"}, []uint32{100, 100, 50})
	require.NoError(t, err)
	longest, err := r.LongestChromosome()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), longest.ID)
}

func TestChromosomeWithLongestName(t *testing.T) {
	r, err := NewReference([]string{"chr1", "chrLong", "c3"}, []uint32{10, 10, 10})
	require.NoError(t, err)
	c, err := r.ChromosomeWithLongestName()
	require.NoError(t, err)
	assert.Equal(t, "chrLong", c.Name)
}
