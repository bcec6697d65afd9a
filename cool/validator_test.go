package cool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFileDetectsIndexCountMismatch(t *testing.T) {
	b1, b2, c, idx := buildTestMatrix(t)
	// Corrupt the index so its final entry disagrees with the pixel count.
	badIdx := NewIndex(4)
	require.NoError(t, badIdx.SetOffsetByBinID(0, 0))
	require.NoError(t, badIdx.Finalize(999))

	report, err := ValidateFile(b1, b2, c, badIdx)
	require.NoError(t, err)
	assert.False(t, report.Ok)
	_ = idx
}

func TestValidateFileAcceptsWellFormedMatrix(t *testing.T) {
	b1, b2, c, idx := buildTestMatrix(t)
	report, err := ValidateFile(b1, b2, c, idx)
	require.NoError(t, err)
	assert.True(t, report.Ok)
}

func TestContentDigestDeterministic(t *testing.T) {
	data := []byte("some pixel bytes")
	h1, err := ContentDigest(data)
	require.NoError(t, err)
	h2, err := ContentDigest(data)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestValidateMCoolFansOutAcrossResolutions(t *testing.T) {
	b1, b2, c, idx := buildTestMatrix(t)
	resolutions := []uint32{1000, 5000}
	reports, err := ValidateMCool(resolutions, func(r uint32) (*Dataset, *Dataset, *Dataset, *Index, error) {
		return b1, b2, c, idx, nil
	})
	require.NoError(t, err)
	assert.Len(t, reports, 2)
	for _, rep := range reports {
		assert.True(t, rep.Ok)
	}
}
