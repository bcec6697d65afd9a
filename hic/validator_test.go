package hic

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.hic")
	require.NoError(t, os.WriteFile(path, []byte("NOTHIC"), 0o644))

	report, err := Validate(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, report.Ok)
}

func TestValidateAcceptsWellFormedHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ok.hic")
	f, err := os.Create(path)
	require.NoError(t, err)
	h := Header{
		Version:           V9,
		MasterIndexOffset: -1,
		Chroms:            []ChromEntry{{Name: "chr1", Length: 1000}},
		Resolutions:       []int32{100},
	}
	require.NoError(t, WriteHeader(f, h))
	require.NoError(t, f.Close())

	report, err := Validate(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, report.Ok)
}

func TestValidateBlockRejectsGarbage(t *testing.T) {
	issue := ValidateBlock([]byte("not a zlib stream"))
	assert.Equal(t, SeverityError, issue.Severity)
}

func TestValidateBlockAcceptsRoundTrip(t *testing.T) {
	b := NewBlock(0, 0)
	b.Add(0, 0, 1)
	b.Finalize()
	encoded, err := b.Serialize(6)
	require.NoError(t, err)
	issue := ValidateBlock(encoded)
	assert.Equal(t, SeverityWarning, issue.Severity)
}
