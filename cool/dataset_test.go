package cool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/hdf5"
)

func createUint64Dataset(t *testing.T, path, name string, initial []uint64) *hdf5.Group {
	t.Helper()
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	grp, err := f.CreateGroup("pixels")
	require.NoError(t, err)

	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(initial))}, []uint{hdf5.DS_UNLIMITED})
	require.NoError(t, err)
	dcpl := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	require.NoError(t, dcpl.SetChunk([]uint{64}))

	dtype, err := hdf5.NewDatatypeFromType(hdf5.T_NATIVE_UINT64)
	require.NoError(t, err)
	ds, err := grp.CreateDatasetWith(name, dtype, space, dcpl)
	require.NoError(t, err)
	require.NoError(t, ds.Write(&initial))
	return grp
}

func TestDatasetReadRange(t *testing.T) {
	dir := t.TempDir()
	grp := createUint64Dataset(t, filepath.Join(dir, "a.h5"), "bin1_id", []uint64{10, 20, 30, 40, 50})

	ds, err := OpenDataset(grp, "bin1_id", 4)
	require.NoError(t, err)
	assert.EqualValues(t, 5, ds.Len())

	got, err := ds.ReadRangeUint64(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint64{20, 30, 40}, got)

	v, err := ds.ReadUint64At(0)
	require.NoError(t, err)
	assert.EqualValues(t, 10, v)
}

func TestDatasetAppendExtends(t *testing.T) {
	dir := t.TempDir()
	grp := createUint64Dataset(t, filepath.Join(dir, "b.h5"), "bin2_id", []uint64{1, 2})

	ds, err := OpenDataset(grp, "bin2_id", 4)
	require.NoError(t, err)
	require.NoError(t, ds.Append([]uint64{3, 4}))
	assert.EqualValues(t, 4, ds.Len())

	got, err := ds.ReadRangeUint64(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4}, got)
}

func TestDatasetOutOfRange(t *testing.T) {
	dir := t.TempDir()
	grp := createUint64Dataset(t, filepath.Join(dir, "c.h5"), "count", []uint64{1, 2, 3})
	ds, err := OpenDataset(grp, "count", 4)
	require.NoError(t, err)

	_, err = ds.ReadUint64At(10)
	assert.Error(t, err)
}

func TestChunkIteratorWalksWholeDataset(t *testing.T) {
	dir := t.TempDir()
	grp := createUint64Dataset(t, filepath.Join(dir, "d.h5"), "bin1_id", []uint64{1, 2, 3, 4, 5, 6, 7})
	ds, err := OpenDataset(grp, "bin1_id", 8)
	require.NoError(t, err)

	it := NewChunkIterator(ds, 3, 0)
	var all []uint64
	for it.Next() {
		all = append(all, it.Chunk()...)
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7}, all)
}
