package biopb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUCSC(t *testing.T) {
	ref, err := NewReference([]string{"chr1"}, []uint32{1000})
	require.NoError(t, err)

	iv, err := ParseUCSC(ref, "chr1:100-200")
	require.NoError(t, err)
	assert.Equal(t, uint32(100), iv.Start)
	assert.Equal(t, uint32(200), iv.End)

	iv2, err := ParseUCSC(ref, "chr1:500-900")
	require.NoError(t, err)
	assert.Equal(t, uint32(500), iv2.Start)

	_, err = ParseUCSC(ref, "chr1:1,000-1,000")
	assert.Error(t, err) // start == end is rejected

	_, err = ParseUCSC(ref, "not-a-range")
	assert.Error(t, err)
}

func TestParseBED(t *testing.T) {
	ref, err := NewReference([]string{"chr1"}, []uint32{1000})
	require.NoError(t, err)

	iv, err := ParseBED(ref, "chr1\t10\t20")
	require.NoError(t, err)
	assert.Equal(t, uint32(10), iv.Start)
	assert.Equal(t, uint32(20), iv.End)
}

func TestGenomicIntervalRejectsOutOfRange(t *testing.T) {
	ref, err := NewReference([]string{"chr1"}, []uint32{100})
	require.NoError(t, err)
	_, err = ParseBED(ref, "chr1\t0\t200")
	assert.Error(t, err)
}

func TestPixelCoordinatesCanonicalForm(t *testing.T) {
	p := NewPixelCoordinates(5, 3)
	assert.Equal(t, uint64(3), p.Bin1)
	assert.Equal(t, uint64(5), p.Bin2)
}
