package cool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/hictools/biopb"
	"github.com/grailbio/hictools/bins"
)

func testBinTable(t *testing.T) *bins.BinTable {
	t.Helper()
	ref, err := biopb.NewReference([]string{"chr1"}, []uint32{1000})
	require.NoError(t, err)
	table, err := bins.NewFixedResolution(ref, 100)
	require.NoError(t, err)
	return table
}

func TestParseURIDetectsStorageMode(t *testing.T) {
	u, err := ParseURI("m.mcool::/resolutions/1000")
	require.NoError(t, err)
	assert.Equal(t, StorageMCool, detectMode(u))

	u, err = ParseURI("m.scool::/cells/a")
	require.NoError(t, err)
	assert.Equal(t, StorageSCool, detectMode(u))

	u, err = ParseURI("m.cool")
	require.NoError(t, err)
	assert.Equal(t, StorageCool, detectMode(u))
}

func TestCreateNewWritesSentinelUntilFinalized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.cool")
	table := testBinTable(t)

	f, err := CreateNew(path, table, DTypeUint64)
	require.NoError(t, err)
	assert.Equal(t, StateWritable, f.state)

	require.NoError(t, f.Finalize())
	assert.Equal(t, StateFinalized, f.state)
	require.NoError(t, f.Close())

	reopened, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, StateReadOnly, reopened.state)
}

// TestCreateAppendFetchRoundTrip exercises the full write/read path: the
// mandatory schema CreateNew builds, AppendPixels streaming rows into it,
// Finalize patching the index, and a reopened File's Fetch recovering the
// pixels exactly (spec.md §4.7, §4.8, §6, component C9).
func TestCreateAppendFetchRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roundtrip.cool")
	table := testBinTable(t)

	f, err := CreateNew(path, table, DTypeUint64)
	require.NoError(t, err)

	require.NoError(t, f.AppendPixels([]biopb.ThinPixel[uint64]{
		{Bin1ID: 0, Bin2ID: 0, Count: 5},
		{Bin1ID: 0, Bin2ID: 2, Count: 7},
		{Bin1ID: 1, Bin2ID: 1, Count: 3},
		{Bin1ID: 1, Bin2ID: 9, Count: 11},
	}))
	require.NoError(t, f.Finalize())
	require.NoError(t, f.Close())

	reopened, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.Reference().Len())
	require.NotNil(t, reopened.BinTable())
	assert.Equal(t, uint64(10), reopened.BinTable().Size())

	chrom, err := reopened.Reference().ByName("chr1")
	require.NoError(t, err)
	window := biopb.NewWholeChromosome(chrom)

	pixels, err := reopened.Fetch(window, window, nil)
	require.NoError(t, err)
	require.Len(t, pixels, 4)
}

// TestValidateAcceptsFinalizedFile exercises ValidateSchema/ValidateFile
// through File.Validate against a freshly created and finalized file,
// confirming the mandatory groups, datasets, root attributes, and bin
// table this session wired into CreateNew/createSchema pass structural
// validation (spec.md §4.14, component C15).
func TestValidateAcceptsFinalizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "valid.cool")
	table := testBinTable(t)

	f, err := CreateNew(path, table, DTypeUint64)
	require.NoError(t, err)
	require.NoError(t, f.AppendPixels([]biopb.ThinPixel[uint64]{
		{Bin1ID: 0, Bin2ID: 0, Count: 1},
		{Bin1ID: 1, Bin2ID: 1, Count: 2},
	}))
	require.NoError(t, f.Finalize())
	require.NoError(t, f.Close())

	reopened, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer reopened.Close()

	report, err := reopened.Validate()
	require.NoError(t, err)
	assert.True(t, report.Ok, "%+v", report.Issues)
}

func TestOpenReadOnlyRejectsUnfinalizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unfinished.cool")
	table := testBinTable(t)

	f, err := CreateNew(path, table, DTypeUint64)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = OpenReadOnly(path)
	assert.Error(t, err)
}
