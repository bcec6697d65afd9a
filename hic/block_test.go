package hic

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/hictools/biopb"
)

func TestBlockRoundTripRowMajorColumnAscending(t *testing.T) {
	b := NewBlock(0, 0)
	b.Add(1, 1, 3)
	b.Add(0, 1, 2)
	b.Add(0, 0, 1)
	b.Finalize()

	encoded, err := b.Serialize(6)
	require.NoError(t, err)

	decoded, err := DecodeBlock(encoded)
	require.NoError(t, err)

	rows := decoded.Rows()
	require.Len(t, rows, 2)
	assert.EqualValues(t, 0, rows[0].RowNumber)
	require.Len(t, rows[0].Entries, 2)
	assert.EqualValues(t, 0, rows[0].Entries[0].Col)
	assert.EqualValues(t, 1, rows[0].Entries[1].Col)
	assert.EqualValues(t, 1, rows[1].RowNumber)

	pixels := decoded.Pixels()
	want := []biopb.ThinPixel[float32]{
		{Bin1ID: 0, Bin2ID: 0, Count: 1},
		{Bin1ID: 0, Bin2ID: 1, Count: 2},
		{Bin1ID: 1, Bin2ID: 1, Count: 3},
	}
	if diff := cmp.Diff(want, pixels); diff != "" {
		t.Fatalf("decoded pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestBlockNRecords(t *testing.T) {
	b := NewBlock(0, 0)
	b.Add(0, 0, 1)
	b.Add(0, 5, 2)
	b.Finalize()
	assert.Equal(t, 2, b.NRecords())
}
