// Package cool implements the HDF5-backed multi-resolution contact matrix
// storage engine for the Cool/MCool/SCool format family (spec.md §2
// components C6–C9, §3 "Cool file", §4.5–§4.8).
package cool

import (
	"sync"

	"gonum.org/v1/hdf5"

	"github.com/grailbio/hictools/internal/errs"
)

// chunkCache bounds the number of decoded chunks held in memory per
// Dataset, evicting the least-recently-used chunk once Capacity is
// exceeded (spec.md §4.5 "local read cache, weighted by chunk size").
type chunkCache struct {
	mu       sync.Mutex
	capacity int
	order    []int64 // chunk indices, most-recently-used last
	chunks   map[int64][]byte
}

func newChunkCache(capacity int) *chunkCache {
	return &chunkCache{capacity: capacity, chunks: make(map[int64][]byte)}
}

func (c *chunkCache) get(idx int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, ok := c.chunks[idx]
	if ok {
		c.touch(idx)
	}
	return buf, ok
}

func (c *chunkCache) put(idx int64, buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.chunks[idx]; !ok && len(c.chunks) >= c.capacity && c.capacity > 0 {
		evict := c.order[0]
		c.order = c.order[1:]
		delete(c.chunks, evict)
	}
	c.chunks[idx] = buf
	c.touch(idx)
}

func (c *chunkCache) touch(idx int64) {
	for i, v := range c.order {
		if v == idx {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, idx)
}

// DType identifies a Dataset's element representation (spec.md §6: bin and
// pixel-count datasets are unsigned integers; "chroms/name" is fixed-width
// ASCII; "pixels/count" may instead be stored as float when counts are
// balanced or fractional).
type DType int

const (
	DTypeUint64 DType = iota
	DTypeFloat64
	DTypeString
)

// datasetChunkSize is the default HDF5 chunk size, in elements, for newly
// created resizable datasets (spec.md §4.5 "chunked, resizable").
const datasetChunkSize = 1 << 16

// Dataset wraps a single chunked HDF5 dataset (one Cool column, e.g.
// "pixels/bin1_id") with a local chunk cache and copy-on-write iteration
// (spec.md §4.5).
type Dataset struct {
	ds        *hdf5.Dataset
	name      string
	chunkSize int64
	length    int64
	cache     *chunkCache
	dtype     DType
	strLen    int // element width in bytes, DTypeString only
}

// OpenDataset opens an existing dataset by name within group, inferring its
// DType from the on-disk HDF5 type class.
func OpenDataset(group *hdf5.Group, name string, cacheChunks int) (*Dataset, error) {
	ds, err := group.OpenDataset(name)
	if err != nil {
		return nil, errs.E(errs.IO, "OpenDataset", name, err)
	}
	space := ds.Space()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, errs.E(errs.Format, "OpenDataset", name, err)
	}
	if len(dims) != 1 {
		return nil, errs.E(errs.Format, "OpenDataset", name, "expected a 1-D dataset")
	}
	dtype, strLen, err := inferDType(ds, name)
	if err != nil {
		return nil, err
	}
	return &Dataset{
		ds:     ds,
		name:   name,
		length: int64(dims[0]),
		cache:  newChunkCache(cacheChunks),
		dtype:  dtype,
		strLen: strLen,
	}, nil
}

// inferDType classifies an existing dataset's HDF5 datatype (spec.md §6
// mandatory dtypes, §7 Format errors on an unexpected class).
func inferDType(ds *hdf5.Dataset, name string) (DType, int, error) {
	dtype, err := ds.GetType()
	if err != nil {
		return 0, 0, errs.E(errs.Format, "inferDType", name, err)
	}
	defer dtype.Close()
	switch dtype.Class() {
	case hdf5.T_INTEGER:
		return DTypeUint64, 0, nil
	case hdf5.T_FLOAT:
		return DTypeFloat64, 0, nil
	case hdf5.T_STRING:
		size, err := dtype.Size()
		if err != nil {
			return 0, 0, errs.E(errs.Format, "inferDType", name, err)
		}
		return DTypeString, int(size), nil
	default:
		return 0, 0, errs.E(errs.Format, "inferDType", name, "unsupported dataset dtype class")
	}
}

// DType reports which native representation this dataset's elements use.
func (d *Dataset) DType() DType { return d.dtype }

// nativeType builds the HDF5 datatype matching dtype, sizing a string type
// to strLen bytes.
func nativeType(dtype DType, strLen int) (*hdf5.Datatype, error) {
	switch dtype {
	case DTypeUint64:
		return hdf5.NewDatatypeFromType(hdf5.T_NATIVE_UINT64)
	case DTypeFloat64:
		return hdf5.NewDatatypeFromType(hdf5.T_NATIVE_DOUBLE)
	case DTypeString:
		t, err := hdf5.NewDatatypeFromType(hdf5.T_C_S1)
		if err != nil {
			return nil, err
		}
		if err := t.SetSize(uint(strLen)); err != nil {
			t.Close()
			return nil, err
		}
		return t, nil
	default:
		return nil, errs.E(errs.Unsupported, "nativeType", "unknown dtype")
	}
}

// CreateDataset creates a new, empty, chunked, and resizable HDF5 dataset
// under group (spec.md §4.6 "ten mandatory datasets"). strLen is only
// consulted for DTypeString, fixing the per-element ASCII width (e.g. for
// "chroms/name").
func CreateDataset(group *hdf5.Group, name string, dtype DType, strLen int) (*Dataset, error) {
	h5type, err := nativeType(dtype, strLen)
	if err != nil {
		return nil, errs.E(errs.IO, "CreateDataset", name, err)
	}
	defer h5type.Close()

	space, err := hdf5.CreateSimpleDataspace([]uint{0}, []uint{hdf5.DS_UNLIMITED})
	if err != nil {
		return nil, errs.E(errs.IO, "CreateDataset", name, err)
	}
	defer space.Close()

	plist := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	defer plist.Close()
	if err := plist.SetChunk([]uint{uint(datasetChunkSize)}); err != nil {
		return nil, errs.E(errs.IO, "CreateDataset", name, err)
	}

	ds, err := group.CreateDatasetWith(name, h5type, space, plist)
	if err != nil {
		return nil, errs.E(errs.IO, "CreateDataset", name, err)
	}
	return &Dataset{
		ds:     ds,
		name:   name,
		cache:  newChunkCache(0),
		dtype:  dtype,
		strLen: strLen,
	}, nil
}

// Len returns the number of elements in the dataset.
func (d *Dataset) Len() int64 { return d.length }

// Close releases the underlying HDF5 dataset handle. Columns a File keeps
// open for its lifetime (pixels/bin1_id etc.) are closed by File.Close
// instead; Close is for datasets written once and not retained, such as
// "chroms/name".
func (d *Dataset) Close() error {
	if err := d.ds.Close(); err != nil {
		return errs.E(errs.IO, "Dataset.Close", d.name, err)
	}
	return nil
}

// AppendFloat64 writes vals starting at the dataset's current end, for a
// DTypeFloat64 dataset (spec.md §6: "pixels/count" may be float when
// counts are balanced or fractional).
func (d *Dataset) AppendFloat64(vals []float64) error {
	newLen := d.length + int64(len(vals))
	if err := d.ds.Resize([]uint{uint(newLen)}); err != nil {
		return errs.E(errs.IO, "Dataset.AppendFloat64", d.name, err)
	}
	space := d.ds.Space()
	if err := space.SelectHyperslab([]uint{uint(d.length)}, nil, []uint{uint(len(vals))}, nil); err != nil {
		return errs.E(errs.IO, "Dataset.AppendFloat64", d.name, err)
	}
	memSpace, err := hdf5.CreateSimpleDataspace([]uint{uint(len(vals))}, nil)
	if err != nil {
		return errs.E(errs.IO, "Dataset.AppendFloat64", d.name, err)
	}
	if err := d.ds.WriteSubset(&vals, memSpace, space); err != nil {
		return errs.E(errs.IO, "Dataset.AppendFloat64", d.name, err)
	}
	d.length = newLen
	return nil
}

// ReadFloat64At reads a single float64 element.
func (d *Dataset) ReadFloat64At(i int64) (float64, error) {
	if i < 0 || i >= d.length {
		return 0, errs.E(errs.OutOfRange, "Dataset.ReadFloat64At", d.name)
	}
	space := d.ds.Space()
	if err := space.SelectHyperslab([]uint{uint(i)}, nil, []uint{1}, nil); err != nil {
		return 0, errs.E(errs.IO, "Dataset.ReadFloat64At", d.name, err)
	}
	memSpace, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return 0, errs.E(errs.IO, "Dataset.ReadFloat64At", d.name, err)
	}
	var out [1]float64
	if err := d.ds.ReadSubset(&out, memSpace, space); err != nil {
		return 0, errs.E(errs.IO, "Dataset.ReadFloat64At", d.name, err)
	}
	return out[0], nil
}

// AppendStrings writes vals as fixed-width ASCII records, for a
// DTypeString dataset such as "chroms/name" (spec.md §6). Each value must
// fit within the dataset's configured strLen.
func (d *Dataset) AppendStrings(vals []string) error {
	for _, v := range vals {
		if len(v) > d.strLen {
			return errs.E(errs.InvalidInput, "Dataset.AppendStrings", d.name, "value exceeds fixed string width")
		}
	}
	newLen := d.length + int64(len(vals))
	if err := d.ds.Resize([]uint{uint(newLen)}); err != nil {
		return errs.E(errs.IO, "Dataset.AppendStrings", d.name, err)
	}
	space := d.ds.Space()
	if err := space.SelectHyperslab([]uint{uint(d.length)}, nil, []uint{uint(len(vals))}, nil); err != nil {
		return errs.E(errs.IO, "Dataset.AppendStrings", d.name, err)
	}
	memSpace, err := hdf5.CreateSimpleDataspace([]uint{uint(len(vals))}, nil)
	if err != nil {
		return errs.E(errs.IO, "Dataset.AppendStrings", d.name, err)
	}
	if err := d.ds.WriteSubset(&vals, memSpace, space); err != nil {
		return errs.E(errs.IO, "Dataset.AppendStrings", d.name, err)
	}
	d.length = newLen
	return nil
}

// ReadStringAt reads a single fixed-width ASCII record.
func (d *Dataset) ReadStringAt(i int64) (string, error) {
	if i < 0 || i >= d.length {
		return "", errs.E(errs.OutOfRange, "Dataset.ReadStringAt", d.name)
	}
	space := d.ds.Space()
	if err := space.SelectHyperslab([]uint{uint(i)}, nil, []uint{1}, nil); err != nil {
		return "", errs.E(errs.IO, "Dataset.ReadStringAt", d.name, err)
	}
	memSpace, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return "", errs.E(errs.IO, "Dataset.ReadStringAt", d.name, err)
	}
	out := make([]string, 1)
	if err := d.ds.ReadSubset(&out, memSpace, space); err != nil {
		return "", errs.E(errs.IO, "Dataset.ReadStringAt", d.name, err)
	}
	return out[0], nil
}

// ReadUint64At reads a single uint64 element.
func (d *Dataset) ReadUint64At(i int64) (uint64, error) {
	if i < 0 || i >= d.length {
		return 0, errs.E(errs.OutOfRange, "Dataset.ReadUint64At", d.name)
	}
	var out [1]uint64
	if err := d.readRangeInto(i, i+1, out[:]); err != nil {
		return 0, err
	}
	return out[0], nil
}

func (d *Dataset) readRangeInto(lo, hi int64, out []uint64) error {
	space := d.ds.Space()
	if err := space.SelectHyperslab([]uint{uint(lo)}, nil, []uint{uint(hi - lo)}, nil); err != nil {
		return errs.E(errs.IO, "Dataset.readRangeInto", d.name, err)
	}
	memSpace, err := hdf5.CreateSimpleDataspace([]uint{uint(hi - lo)}, nil)
	if err != nil {
		return errs.E(errs.IO, "Dataset.readRangeInto", d.name, err)
	}
	if err := d.ds.ReadSubset(&out, memSpace, space); err != nil {
		return errs.E(errs.IO, "Dataset.readRangeInto", d.name, err)
	}
	return nil
}

// ReadRangeUint64 reads [lo,hi) into a freshly allocated slice directly
// from the HDF5 dataset; it neither consults nor populates the chunk cache,
// which only ChunkIterator uses.
func (d *Dataset) ReadRangeUint64(lo, hi int64) ([]uint64, error) {
	if lo < 0 || hi > d.length || hi < lo {
		return nil, errs.E(errs.OutOfRange, "Dataset.ReadRangeUint64", d.name)
	}
	out := make([]uint64, hi-lo)
	if hi == lo {
		return out, nil
	}
	if err := d.readRangeInto(lo, hi, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Append writes vals starting at the dataset's current end, resizing the
// backing HDF5 dataset as needed (spec.md §4.5 "resize-on-append").
func (d *Dataset) Append(vals []uint64) error {
	newLen := d.length + int64(len(vals))
	if err := d.ds.Resize([]uint{uint(newLen)}); err != nil {
		return errs.E(errs.IO, "Dataset.Append", d.name, err)
	}
	space := d.ds.Space()
	if err := space.SelectHyperslab([]uint{uint(d.length)}, nil, []uint{uint(len(vals))}, nil); err != nil {
		return errs.E(errs.IO, "Dataset.Append", d.name, err)
	}
	memSpace, err := hdf5.CreateSimpleDataspace([]uint{uint(len(vals))}, nil)
	if err != nil {
		return errs.E(errs.IO, "Dataset.Append", d.name, err)
	}
	if err := d.ds.WriteSubset(&vals, memSpace, space); err != nil {
		return errs.E(errs.IO, "Dataset.Append", d.name, err)
	}
	d.length = newLen
	return nil
}

// overwriteAll replaces a dataset's entire contents with vals, which must
// have the same length as the dataset. Used by File.Finalize to patch in
// the completed "indexes/bin1_offset" contents after pixels/* have been
// fully appended (spec.md §4.6 "finalize_index").
func (d *Dataset) overwriteAll(vals []uint64) error {
	if int64(len(vals)) != d.length {
		return errs.E(errs.InvalidInput, "Dataset.overwriteAll", d.name, "length mismatch")
	}
	space := d.ds.Space()
	if err := space.SelectHyperslab([]uint{0}, nil, []uint{uint(len(vals))}, nil); err != nil {
		return errs.E(errs.IO, "Dataset.overwriteAll", d.name, err)
	}
	memSpace, err := hdf5.CreateSimpleDataspace([]uint{uint(len(vals))}, nil)
	if err != nil {
		return errs.E(errs.IO, "Dataset.overwriteAll", d.name, err)
	}
	if err := d.ds.WriteSubset(&vals, memSpace, space); err != nil {
		return errs.E(errs.IO, "Dataset.overwriteAll", d.name, err)
	}
	return nil
}

// ChunkIterator walks a Dataset chunk by chunk with copy-on-write
// semantics: Chunk() returns the current chunk's backing slice, which
// must not be retained past the next call to Next (spec.md §9 "explicit
// jump states").
type ChunkIterator struct {
	d         *Dataset
	chunkSize int64
	pos       int64
	buf       []uint64
	done      bool
}

// NewChunkIterator creates an iterator over d starting at element start.
func NewChunkIterator(d *Dataset, chunkSize int64, start int64) *ChunkIterator {
	if chunkSize <= 0 {
		chunkSize = 1 << 16
	}
	return &ChunkIterator{d: d, chunkSize: chunkSize, pos: start}
}

// Next advances to the next chunk, loading it from the cache or dataset.
// It returns false once the dataset is exhausted.
func (it *ChunkIterator) Next() bool {
	if it.done || it.pos >= it.d.length {
		it.done = true
		return false
	}
	idx := it.pos / it.chunkSize
	if cached, ok := it.d.cache.get(idx); ok {
		it.buf = bytesToUint64(cached)
	} else {
		hi := it.pos + it.chunkSize
		if hi > it.d.length {
			hi = it.d.length
		}
		vals, err := it.d.ReadRangeUint64(it.pos, hi)
		if err != nil {
			it.done = true
			return false
		}
		it.buf = vals
		it.d.cache.put(idx, uint64ToBytes(vals))
	}
	it.pos += int64(len(it.buf))
	return true
}

// Chunk returns the current chunk's values. The returned slice is only
// valid until the next call to Next (copy-on-write: callers that need to
// retain it must copy).
func (it *ChunkIterator) Chunk() []uint64 { return it.buf }

func uint64ToBytes(vals []uint64) []byte {
	out := make([]byte, len(vals)*8)
	for i, v := range vals {
		for b := 0; b < 8; b++ {
			out[i*8+b] = byte(v >> (8 * b))
		}
	}
	return out
}

func bytesToUint64(buf []byte) []uint64 {
	out := make([]uint64, len(buf)/8)
	for i := range out {
		var v uint64
		for b := 0; b < 8; b++ {
			v |= uint64(buf[i*8+b]) << (8 * b)
		}
		out[i] = v
	}
	return out
}
