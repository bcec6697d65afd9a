package hic

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/hictools/biopb"
)

func testReference(t *testing.T) *biopb.Reference {
	t.Helper()
	ref, err := biopb.NewReference([]string{"chr1", "chr2"}, []uint32{1_000_000, 800_000})
	require.NoError(t, err)
	return ref
}

// TestWriterReaderPixelRoundTrip writes pixels across two chromosome pairs
// and multiple resolutions, finalizes the file, and confirms Reader.Fetch
// recovers exactly the pixels written, correctly separated by pair and
// resolution: the round trip the writer/reader pipeline exists to provide
// (spec.md §4.13).
func TestWriterReaderPixelRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ref := testReference(t)

	w, err := NewWriter(ctx, filepath.Join(dir, "out.hic"), filepath.Join(dir, "spill.rio"), ref, WriteOptions{
		Version:     V9,
		GenomeID:    "testGenome",
		Resolutions: []int32{1000, 5000},
		ChunkSize:   4,
		ZlibLevel:   6,
	})
	require.NoError(t, err)

	require.NoError(t, w.AddPixel(1000, 0, 0, 0, 0, 3))
	require.NoError(t, w.AddPixel(1000, 0, 0, 1, 2, 5))
	require.NoError(t, w.AddPixel(1000, 0, 0, 900, 901, 9))
	require.NoError(t, w.AddPixel(1000, 0, 1, 10, 20, 7))
	require.NoError(t, w.AddPixel(5000, 0, 0, 0, 0, 42)) // same pair, different resolution
	require.NoError(t, w.Finalize())

	r, err := OpenReader(ctx, filepath.Join(dir, "out.hic"))
	require.NoError(t, err)
	assert.EqualValues(t, V9, r.Header.Version)
	assert.Equal(t, "testGenome", r.Header.GenomeID)
	assert.Equal(t, 2, r.Reference().Len())
	require.Len(t, r.Master, 2) // one chunk per chromosome pair, not per (pair,resolution)

	bt, err := r.BinTableAt(1000)
	require.NoError(t, err)
	assert.Greater(t, bt.Size(), uint64(0))

	_, err = r.BinTableAt(9999)
	assert.Error(t, err)

	wideWindow := Query{Bin1Lo: 0, Bin1Hi: 2000, Bin2Lo: 0, Bin2Hi: 2000}

	pixels00, err := r.Fetch(0, 0, 1000, wideWindow)
	require.NoError(t, err)
	require.Len(t, pixels00, 3)
	assert.EqualValues(t, 0, pixels00[0].Bin1ID)
	assert.EqualValues(t, 0, pixels00[0].Bin2ID)
	assert.EqualValues(t, 3, pixels00[0].Count)
	assert.EqualValues(t, 1, pixels00[1].Bin1ID)
	assert.EqualValues(t, 2, pixels00[1].Bin2ID)
	assert.EqualValues(t, 5, pixels00[1].Count)
	assert.EqualValues(t, 900, pixels00[2].Bin1ID)

	pixels01, err := r.Fetch(0, 1, 1000, wideWindow)
	require.NoError(t, err)
	require.Len(t, pixels01, 1)
	assert.EqualValues(t, 10, pixels01[0].Bin1ID)
	assert.EqualValues(t, 20, pixels01[0].Bin2ID)
	assert.EqualValues(t, 7, pixels01[0].Count)

	pixels00At5k, err := r.Fetch(0, 0, 5000, wideWindow)
	require.NoError(t, err)
	require.Len(t, pixels00At5k, 1)
	assert.EqualValues(t, 42, pixels00At5k[0].Count)

	narrow, err := r.Fetch(0, 0, 1000, Query{Bin1Lo: 0, Bin1Hi: 2, Bin2Lo: 0, Bin2Hi: 3})
	require.NoError(t, err)
	require.Len(t, narrow, 2)

	_, err = r.Fetch(2, 2, 1000, wideWindow)
	assert.Error(t, err)
}
