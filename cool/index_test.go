package cool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexOffsetsAndNNZ(t *testing.T) {
	idx := NewIndex(4)
	require.NoError(t, idx.SetOffsetByBinID(0, 0))
	require.NoError(t, idx.SetOffsetByBinID(1, 3))
	require.NoError(t, idx.SetOffsetByBinID(2, 3)) // bin 1 empty: bin 2 starts where bin 1 does
	require.NoError(t, idx.SetOffsetByBinID(3, 5))
	require.NoError(t, idx.Finalize(7))

	assert.EqualValues(t, 7, idx.Size())
	n, err := idx.NNZ(0, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = idx.NNZ(1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestIndexRejectsOutOfRange(t *testing.T) {
	idx := NewIndex(2)
	err := idx.SetOffsetByBinID(10, 0)
	assert.Error(t, err)
}

func TestIndexValidateDetectsNonMonotonic(t *testing.T) {
	idx := NewIndex(2)
	require.NoError(t, idx.SetOffsetByBinID(0, 5))
	require.NoError(t, idx.SetOffsetByBinID(1, 2))
	err := idx.Finalize(2)
	assert.Error(t, err)
}

func TestIndexRejectsSetAfterFinalize(t *testing.T) {
	idx := NewIndex(2)
	require.NoError(t, idx.Finalize(0))
	err := idx.SetOffsetByBinID(0, 1)
	assert.Error(t, err)
}
