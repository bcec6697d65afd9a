package hic

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpillStoreAppendAndFlush(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "spill.rio")

	s, err := NewSpillStore(ctx, path, 2)
	require.NoError(t, err)

	pair := chromPairKey{Chrom1: 1, Chrom2: 1}
	require.NoError(t, s.Append(pair, 1000, 7, 10, 20, 1))
	require.NoError(t, s.Append(pair, 1000, 7, 11, 21, 2)) // triggers a flush at chunkSize=2
	require.NoError(t, s.Append(pair, 1000, 7, 12, 22, 3))
	require.NoError(t, s.Close())

	ids := s.BlockIDsForPair(pair, 1000)
	assert.Equal(t, []int64{7}, ids)

	locs := s.ChunkLocations(pair, 1000, 7)
	require.NotEmpty(t, locs)

	pixels, err := MergeBlocks(ctx, path, locs)
	require.NoError(t, err)
	require.Len(t, pixels, 3)
	assert.EqualValues(t, 10, pixels[0].Bin1ID)
	assert.EqualValues(t, 11, pixels[1].Bin1ID)
}

func TestSpillStoreSeparatesChromosomePairs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "spill2.rio")

	s, err := NewSpillStore(ctx, path, 100)
	require.NoError(t, err)

	a := chromPairKey{Chrom1: 1, Chrom2: 1}
	b := chromPairKey{Chrom1: 1, Chrom2: 2}
	require.NoError(t, s.Append(a, 1000, 0, 0, 0, 1))
	require.NoError(t, s.Append(b, 1000, 0, 0, 0, 2))
	require.NoError(t, s.Close())

	assert.Equal(t, []int64{0}, s.BlockIDsForPair(a, 1000))
	assert.Equal(t, []int64{0}, s.BlockIDsForPair(b, 1000))

	locsA := s.ChunkLocations(a, 1000, 0)
	pixelsA, err := MergeBlocks(ctx, path, locsA)
	require.NoError(t, err)
	require.Len(t, pixelsA, 1)
	assert.EqualValues(t, 1, pixelsA[0].Count)
}

// TestSpillStoreSeparatesBlockIDsWithinPair guards the sharding invariant
// spec.md §4.12 requires: two block ids for the same chromosome pair must
// never be merged together, and each must keep its own (offset,size)
// entries regardless of which Append call triggers the flush.
func TestSpillStoreSeparatesBlockIDsWithinPair(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "spill3.rio")

	s, err := NewSpillStore(ctx, path, 2)
	require.NoError(t, err)

	pair := chromPairKey{Chrom1: 3, Chrom2: 3}
	require.NoError(t, s.Append(pair, 5000, 0, 0, 0, 1))
	require.NoError(t, s.Append(pair, 5000, 1, 100, 100, 2))
	require.NoError(t, s.Append(pair, 5000, 0, 0, 1, 3)) // triggers a flush of block 0 only
	require.NoError(t, s.Append(pair, 5000, 1, 100, 101, 4))
	require.NoError(t, s.Close())

	ids := s.BlockIDsForPair(pair, 5000)
	assert.Equal(t, []int64{0, 1}, ids)

	locs0 := s.ChunkLocations(pair, 5000, 0)
	pixels0, err := MergeBlocks(ctx, path, locs0)
	require.NoError(t, err)
	require.Len(t, pixels0, 2)
	for _, p := range pixels0 {
		assert.EqualValues(t, 0, p.Bin1ID)
	}

	locs1 := s.ChunkLocations(pair, 5000, 1)
	pixels1, err := MergeBlocks(ctx, path, locs1)
	require.NoError(t, err)
	require.Len(t, pixels1, 2)
	for _, p := range pixels1 {
		assert.EqualValues(t, 100, p.Bin1ID)
	}
}

// TestSpillStoreSeparatesResolutions guards against block-id collisions
// across resolutions for the same chromosome pair, since each resolution
// has its own independent geometry and thus its own block-id space.
func TestSpillStoreSeparatesResolutions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "spill4.rio")

	s, err := NewSpillStore(ctx, path, 100)
	require.NoError(t, err)

	pair := chromPairKey{Chrom1: 1, Chrom2: 1}
	require.NoError(t, s.Append(pair, 1000, 0, 0, 0, 1))
	require.NoError(t, s.Append(pair, 5000, 0, 0, 0, 2))
	require.NoError(t, s.Close())

	locs1k := s.ChunkLocations(pair, 1000, 0)
	pixels1k, err := MergeBlocks(ctx, path, locs1k)
	require.NoError(t, err)
	require.Len(t, pixels1k, 1)
	assert.EqualValues(t, 1, pixels1k[0].Count)

	locs5k := s.ChunkLocations(pair, 5000, 0)
	pixels5k, err := MergeBlocks(ctx, path, locs5k)
	require.NoError(t, err)
	require.Len(t, pixels5k, 1)
	assert.EqualValues(t, 2, pixels5k[0].Count)
}
