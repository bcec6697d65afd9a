package hic

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTripV9(t *testing.T) {
	h := Header{
		Version:           V9,
		MasterIndexOffset: 0,
		GenomeID:          "hg38",
		Attributes:        map[string]string{"software": "hictools"},
		Chroms: []ChromEntry{
			{Name: "chr1", Length: 248956422},
			{Name: "chr2", Length: 242193529},
		},
		Resolutions: []int32{1000, 5000, 10000},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, h))

	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h.Version, got.Version)
	assert.Equal(t, h.GenomeID, got.GenomeID)
	assert.Equal(t, h.Chroms, got.Chroms)
	assert.Equal(t, h.Resolutions, got.Resolutions)
}

func TestHeaderRoundTripPreV9UsesInt32Lengths(t *testing.T) {
	h := Header{
		Version: 8,
		Chroms:  []ChromEntry{{Name: "chrX", Length: 156040895}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, h))
	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h.Chroms, got.Chroms)
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader([]byte("NOPE")))
	assert.Error(t, err)
}

func TestMasterIndexRoundTrip(t *testing.T) {
	entries := []MasterIndexEntry{
		{Chrom1: 1, Chrom2: 1, BodyOffset: 100, BodySize: 50},
		{Chrom1: 1, Chrom2: 2, BodyOffset: 150, BodySize: 30},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteMasterIndex(&buf, entries))
	got, err := ReadMasterIndex(&buf)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestReferenceFromHeader(t *testing.T) {
	h := Header{Chroms: []ChromEntry{{Name: "chr1", Length: 100}, {Name: "chr2", Length: 200}}}
	ref, err := ReferenceFromHeader(h)
	require.NoError(t, err)
	assert.Equal(t, 2, ref.Len())
}
