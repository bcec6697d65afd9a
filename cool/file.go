package cool

import (
	"fmt"
	"sync"

	"gonum.org/v1/hdf5"

	"github.com/grailbio/hictools/biopb"
	"github.com/grailbio/hictools/bins"
	"github.com/grailbio/hictools/internal/errs"
	"github.com/grailbio/hictools/variant"
)

// State is a Cool File's lifecycle stage (spec.md §4.8 "states {ReadOnly,
// Writable, Finalized, Closed}").
type State int

const (
	StateReadOnly State = iota
	StateWritable
	StateFinalized
	StateClosed
)

// StorageMode distinguishes a plain single-resolution Cool file from the
// multi-resolution (MCool) and single-cell (SCool) container variants
// (spec.md §5 "Supplemented features": StorageMode() lets callers branch
// on which variant they opened without re-deriving it from the URI).
type StorageMode int

const (
	StorageCool StorageMode = iota
	StorageMCool
	StorageSCool
)

// formatName and formatVersion are the values CreateNew stamps on the
// mandatory "format"/"format-version" root attributes (spec.md §6).
const (
	formatName    = "HDF5::Cool"
	formatVersion = int64(3)
)

// Mandatory group and dataset names (spec.md §6 "four mandatory groups...
// ten mandatory datasets").
const (
	groupChroms  = "chroms"
	groupBins    = "bins"
	groupPixels  = "pixels"
	groupIndexes = "indexes"
)

const defaultChunkCacheSize = 64

// File is the root Cool/MCool/SCool abstraction (spec.md §3 "Cool File",
// component C9): it owns the underlying HDF5 file handle, tracks the
// write-in-progress sentinel, and exposes the per-resolution/per-cell
// group layout plus the pixel columns and index needed to serve Fetch.
type File struct {
	mu    sync.Mutex
	h5    *hdf5.File
	uri   URI
	state State
	mode  StorageMode
	ref   *biopb.Reference

	table   *bins.BinTable
	bin1Ds  *Dataset
	bin2Ds  *Dataset
	countDs *Dataset
	idx     *Index
}

const writeSentinelAttr = "__hictools_writing__"

// OpenReadOnly opens an existing Cool URI for reading, reconstructing its
// bin table, reference, and pixel/index datasets from the mandatory
// groups (spec.md §4.8 "open_read_only").
func OpenReadOnly(rawURI string) (*File, error) {
	u, err := ParseURI(rawURI)
	if err != nil {
		return nil, err
	}
	h5, err := hdf5.OpenFile(u.Path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, errs.E(errs.IO, "OpenReadOnly", u.Path, err)
	}
	f := &File{h5: h5, uri: u, state: StateReadOnly}
	f.mode = detectMode(u)
	if err := f.checkNoWriteSentinel(); err != nil {
		h5.Close()
		return nil, err
	}
	if err := f.loadSchema(); err != nil {
		h5.Close()
		return nil, err
	}
	return f, nil
}

func detectMode(u URI) StorageMode {
	if _, ok, _ := u.Resolution(); ok {
		return StorageMCool
	}
	if _, ok := u.Cell(); ok {
		return StorageSCool
	}
	return StorageCool
}

// StorageMode reports which container variant this File was opened as.
func (f *File) StorageMode() StorageMode { return f.mode }

func (f *File) groupPath() string {
	if f.uri.GroupPath == "" {
		return "/"
	}
	return "/" + f.uri.GroupPath
}

func (f *File) openGroup() (*hdf5.Group, error) {
	g, err := f.h5.OpenGroup(f.groupPath())
	if err != nil {
		return nil, errs.E(errs.IO, "File.openGroup", f.uri.String(), err)
	}
	return g, nil
}

// checkNoWriteSentinel refuses to serve reads against a Cool file an
// in-progress writer has not yet finalized (spec.md §4.8 "sentinel-during-
// write protocol").
func (f *File) checkNoWriteSentinel() error {
	g, err := f.openGroup()
	if err != nil {
		return err
	}
	defer g.Close()
	if g.AttributeExists(writeSentinelAttr) {
		return errs.E(errs.InvalidInput, "checkNoWriteSentinel", f.uri.String(), "file has an unfinalized write in progress")
	}
	return nil
}

// loadSchema reconstructs the reference, bin table, pixel columns, and
// index of an already-finalized Cool group (spec.md §4.8, §6 "mandatory
// groups and datasets").
func (f *File) loadSchema() error {
	g, err := f.openGroup()
	if err != nil {
		return err
	}
	defer g.Close()

	chroms, err := g.OpenGroup(groupChroms)
	if err != nil {
		return errs.E(errs.Format, "File.loadSchema", f.uri.String(), "missing chroms group")
	}
	defer chroms.Close()
	nameDs, err := OpenDataset(chroms, "name", 0)
	if err != nil {
		return err
	}
	defer nameDs.Close()
	lengthDs, err := OpenDataset(chroms, "length", 0)
	if err != nil {
		return err
	}
	defer lengthDs.Close()

	n := nameDs.Len()
	names := make([]string, n)
	sizes := make([]uint32, n)
	for i := int64(0); i < n; i++ {
		name, err := nameDs.ReadStringAt(i)
		if err != nil {
			return err
		}
		l, err := lengthDs.ReadUint64At(i)
		if err != nil {
			return err
		}
		names[i] = name
		sizes[i] = uint32(l)
	}
	ref, err := biopb.NewReference(names, sizes)
	if err != nil {
		return err
	}
	f.ref = ref

	binsGrp, err := g.OpenGroup(groupBins)
	if err != nil {
		return errs.E(errs.Format, "File.loadSchema", f.uri.String(), "missing bins group")
	}
	defer binsGrp.Close()
	chromDs, err := OpenDataset(binsGrp, "chrom", 0)
	if err != nil {
		return err
	}
	defer chromDs.Close()
	startDs, err := OpenDataset(binsGrp, "start", 0)
	if err != nil {
		return err
	}
	defer startDs.Close()
	endDs, err := OpenDataset(binsGrp, "end", 0)
	if err != nil {
		return err
	}
	defer endDs.Close()

	table, err := rebuildBinTable(g, ref, chromDs, startDs, endDs)
	if err != nil {
		return err
	}
	f.table = table

	pixels, err := g.OpenGroup(groupPixels)
	if err != nil {
		return errs.E(errs.Format, "File.loadSchema", f.uri.String(), "missing pixels group")
	}
	defer pixels.Close()
	if f.bin1Ds, err = OpenDataset(pixels, "bin1_id", defaultChunkCacheSize); err != nil {
		return err
	}
	if f.bin2Ds, err = OpenDataset(pixels, "bin2_id", defaultChunkCacheSize); err != nil {
		return err
	}
	if f.countDs, err = OpenDataset(pixels, "count", defaultChunkCacheSize); err != nil {
		return err
	}

	indexes, err := g.OpenGroup(groupIndexes)
	if err != nil {
		return errs.E(errs.Format, "File.loadSchema", f.uri.String(), "missing indexes group")
	}
	defer indexes.Close()
	offsetDs, err := OpenDataset(indexes, "bin1_offset", 0)
	if err != nil {
		return err
	}
	defer offsetDs.Close()
	offsets := make([]int64, offsetDs.Len())
	for i := range offsets {
		v, err := offsetDs.ReadUint64At(int64(i))
		if err != nil {
			return err
		}
		offsets[i] = int64(v)
	}
	f.idx = NewIndexFromOffsets(offsets)
	return nil
}

// rebuildBinTable reconstructs a BinTable from the bin-type root
// attribute and, for variable-width tables, the bins/chrom,start,end
// datasets (spec.md §4.2, §6).
func rebuildBinTable(g *hdf5.Group, ref *biopb.Reference, chromDs, startDs, endDs *Dataset) (*bins.BinTable, error) {
	binType, err := ReadAttr(g, "bin-type")
	if err != nil {
		return nil, err
	}
	if binType.String() == "fixed" {
		binSize, err := ReadAttr(g, "bin-size")
		if err != nil {
			return nil, err
		}
		res, err := binSize.Int64()
		if err != nil {
			return nil, err
		}
		return bins.NewFixedResolution(ref, uint32(res))
	}

	n := chromDs.Len()
	starts := make([][]uint32, ref.Len())
	ends := make([][]uint32, ref.Len())
	for i := int64(0); i < n; i++ {
		c, err := chromDs.ReadUint64At(i)
		if err != nil {
			return nil, err
		}
		s, err := startDs.ReadUint64At(i)
		if err != nil {
			return nil, err
		}
		e, err := endDs.ReadUint64At(i)
		if err != nil {
			return nil, err
		}
		starts[c] = append(starts[c], uint32(s))
		ends[c] = append(ends[c], uint32(e))
	}
	return bins.NewVariable(ref, starts, ends)
}

// CreateNew creates a brand-new Cool file at rawURI's path: it writes the
// four mandatory groups, the ten mandatory datasets (populated from
// table), the four mandatory root attributes, and marks the group with
// the write-in-progress sentinel until Finalize is called (spec.md §4.8
// "create_new", §6). countDType selects the on-disk representation of
// "pixels/count" (DTypeUint64 for raw observed counts, DTypeFloat64 for a
// file whose counts are pre-balanced).
func CreateNew(rawURI string, table *bins.BinTable, countDType DType) (*File, error) {
	u, err := ParseURI(rawURI)
	if err != nil {
		return nil, err
	}
	h5, err := hdf5.CreateFile(u.Path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, errs.E(errs.IO, "CreateNew", u.Path, err)
	}
	f := &File{h5: h5, uri: u, state: StateWritable, mode: detectMode(u), ref: table.Reference(), table: table}

	g, err := f.createGroupPath()
	if err != nil {
		h5.Close()
		return nil, err
	}
	defer g.Close()

	if err := writeRootAttrs(g, table); err != nil {
		h5.Close()
		return nil, err
	}
	if err := WriteAttr(g, writeSentinelAttr, variant.FromBool(true)); err != nil {
		h5.Close()
		return nil, err
	}
	if err := f.createSchema(g, table, countDType); err != nil {
		h5.Close()
		return nil, err
	}
	return f, nil
}

// writeRootAttrs stamps the four mandatory root attributes (spec.md §6:
// "format", "format-version", "bin-size", "bin-type").
func writeRootAttrs(g *hdf5.Group, table *bins.BinTable) error {
	if err := WriteAttr(g, "format", variant.FromString(formatName)); err != nil {
		return err
	}
	if err := WriteAttr(g, "format-version", variant.FromInt64(formatVersion)); err != nil {
		return err
	}
	binType := "variable"
	binSize := int64(0)
	if r := table.Resolution(); r > 0 {
		binType = "fixed"
		binSize = int64(r)
	}
	if err := WriteAttr(g, "bin-size", variant.FromInt64(binSize)); err != nil {
		return err
	}
	if err := WriteAttr(g, "bin-type", variant.FromString(binType)); err != nil {
		return err
	}
	return nil
}

// createSchema creates the four mandatory groups and ten mandatory
// datasets under g, populating chroms/*, bins/* and indexes/chrom_offset
// immediately (table is fully known at creation time), zero-filling
// indexes/bin1_offset until Finalize overwrites it, and leaving pixels/*
// empty for AppendPixels to fill (spec.md §6).
func (f *File) createSchema(g *hdf5.Group, table *bins.BinTable, countDType DType) error {
	chroms, err := g.CreateGroup(groupChroms)
	if err != nil {
		return errs.E(errs.IO, "File.createSchema", groupChroms, err)
	}
	defer chroms.Close()
	if err := writeChromDatasets(chroms, table.Reference()); err != nil {
		return err
	}

	binsGrp, err := g.CreateGroup(groupBins)
	if err != nil {
		return errs.E(errs.IO, "File.createSchema", groupBins, err)
	}
	defer binsGrp.Close()
	if err := writeBinDatasets(binsGrp, table); err != nil {
		return err
	}

	pixels, err := g.CreateGroup(groupPixels)
	if err != nil {
		return errs.E(errs.IO, "File.createSchema", groupPixels, err)
	}
	defer pixels.Close()
	if f.bin1Ds, err = CreateDataset(pixels, "bin1_id", DTypeUint64, 0); err != nil {
		return errs.E(errs.IO, "File.createSchema", "pixels/bin1_id", err)
	}
	if f.bin2Ds, err = CreateDataset(pixels, "bin2_id", DTypeUint64, 0); err != nil {
		return errs.E(errs.IO, "File.createSchema", "pixels/bin2_id", err)
	}
	if f.countDs, err = CreateDataset(pixels, "count", countDType, 0); err != nil {
		return errs.E(errs.IO, "File.createSchema", "pixels/count", err)
	}

	indexes, err := g.CreateGroup(groupIndexes)
	if err != nil {
		return errs.E(errs.IO, "File.createSchema", groupIndexes, err)
	}
	defer indexes.Close()
	chromOffsetDs, err := CreateDataset(indexes, "chrom_offset", DTypeUint64, 0)
	if err != nil {
		return errs.E(errs.IO, "File.createSchema", "indexes/chrom_offset", err)
	}
	defer chromOffsetDs.Close()
	chromOffsets := make([]uint64, table.Reference().Len()+1)
	for i := range chromOffsets {
		chromOffsets[i] = table.ChromOffset(i)
	}
	if err := chromOffsetDs.Append(chromOffsets); err != nil {
		return err
	}
	binOffsetDs, err := CreateDataset(indexes, "bin1_offset", DTypeUint64, 0)
	if err != nil {
		return errs.E(errs.IO, "File.createSchema", "indexes/bin1_offset", err)
	}
	if err := binOffsetDs.Append(make([]uint64, table.Size()+1)); err != nil {
		return err
	}

	f.idx = NewIndex(int64(table.Size()))
	return nil
}

func writeChromDatasets(g *hdf5.Group, ref *biopb.Reference) error {
	n := ref.Len()
	names := make([]string, n)
	lengths := make([]uint64, n)
	maxLen := 1
	for i := 0; i < n; i++ {
		c, err := ref.At(i)
		if err != nil {
			return err
		}
		names[i] = c.Name
		lengths[i] = uint64(c.Size)
		if len(c.Name) > maxLen {
			maxLen = len(c.Name)
		}
	}
	nameDs, err := CreateDataset(g, "name", DTypeString, maxLen)
	if err != nil {
		return errs.E(errs.IO, "writeChromDatasets", "chroms/name", err)
	}
	defer nameDs.Close()
	if err := nameDs.AppendStrings(names); err != nil {
		return err
	}

	lengthDs, err := CreateDataset(g, "length", DTypeUint64, 0)
	if err != nil {
		return errs.E(errs.IO, "writeChromDatasets", "chroms/length", err)
	}
	defer lengthDs.Close()
	return lengthDs.Append(lengths)
}

func writeBinDatasets(g *hdf5.Group, table *bins.BinTable) error {
	n := table.Size()
	chrom := make([]uint64, n)
	start := make([]uint64, n)
	end := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		b, err := table.At(i)
		if err != nil {
			return err
		}
		chrom[i] = uint64(b.Chrom.ID)
		start[i] = uint64(b.Start)
		end[i] = uint64(b.End)
	}
	chromDs, err := CreateDataset(g, "chrom", DTypeUint64, 0)
	if err != nil {
		return errs.E(errs.IO, "writeBinDatasets", "bins/chrom", err)
	}
	defer chromDs.Close()
	if err := chromDs.Append(chrom); err != nil {
		return err
	}

	startDs, err := CreateDataset(g, "start", DTypeUint64, 0)
	if err != nil {
		return errs.E(errs.IO, "writeBinDatasets", "bins/start", err)
	}
	defer startDs.Close()
	if err := startDs.Append(start); err != nil {
		return err
	}

	endDs, err := CreateDataset(g, "end", DTypeUint64, 0)
	if err != nil {
		return errs.E(errs.IO, "writeBinDatasets", "bins/end", err)
	}
	defer endDs.Close()
	return endDs.Append(end)
}

func (f *File) createGroupPath() (*hdf5.Group, error) {
	if f.uri.GroupPath == "" {
		g, err := f.h5.OpenGroup("/")
		if err != nil {
			return nil, errs.E(errs.IO, "File.createGroupPath", err)
		}
		return g, nil
	}
	g, err := f.h5.CreateGroup("/" + f.uri.GroupPath)
	if err != nil {
		return nil, errs.E(errs.IO, "File.createGroupPath", f.uri.GroupPath, err)
	}
	return g, nil
}

// AppendPixels appends pixel rows and extends the index, as the caller
// streams them in bin1-ascending order (spec.md §4.8 "append_pixels").
func (f *File) AppendPixels(pixels []biopb.ThinPixel[uint64]) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateWritable {
		return errs.E(errs.InvalidInput, "File.AppendPixels", "file is not writable")
	}
	startRow := f.bin1Ds.Len()
	bin1 := make([]uint64, len(pixels))
	bin2 := make([]uint64, len(pixels))
	cnt := make([]uint64, len(pixels))
	for i, p := range pixels {
		bin1[i], bin2[i], cnt[i] = p.Bin1ID, p.Bin2ID, p.Count
	}
	if err := f.bin1Ds.Append(bin1); err != nil {
		return err
	}
	if err := f.bin2Ds.Append(bin2); err != nil {
		return err
	}
	if err := f.countDs.Append(cnt); err != nil {
		return err
	}
	for i, p := range pixels {
		if err := f.idx.SetOffsetByBinID(p.Bin1ID+1, startRow+int64(i)+1); err != nil {
			return err
		}
	}
	return nil
}

// Fetch resolves a rectangular genomic query against the pixel columns
// and index this File opened or created, applying balancer (if non-nil)
// to every yielded pixel (spec.md §4.7, §3 "PixelSelector", component C8
// "wire PixelSelector to File").
func (f *File) Fetch(q1, q2 biopb.GenomicInterval, balancer *Balancer) ([]biopb.Pixel[float64], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bin1Ds == nil || f.table == nil {
		return nil, errs.E(errs.InvalidInput, "File.Fetch", f.uri.String(), "file has no open pixel columns")
	}
	sel, err := SelectRectangle(f.bin1Ds, f.bin2Ds, f.countDs, f.idx, f.table, q1, q2)
	if err != nil {
		return nil, err
	}
	if balancer != nil {
		sel = sel.WithBalancer(balancer)
	}
	var out []biopb.Pixel[float64]
	for {
		p, ok, err := sel.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

// WriteWeights persists a named weight vector under the bins group
// (spec.md §4.8 "write_weights"; §5 "Supplemented features": multiple
// named vectors are supported via ListWeights).
func (f *File) WriteWeights(group *hdf5.Group, name string, weights []float64) error {
	if f.state != StateWritable {
		return errs.E(errs.InvalidInput, "File.WriteWeights", "file is not writable")
	}
	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(weights))}, nil)
	if err != nil {
		return errs.E(errs.IO, "File.WriteWeights", name, err)
	}
	defer space.Close()
	dtype, err := hdf5.NewDatatypeFromType(hdf5.T_NATIVE_DOUBLE)
	if err != nil {
		return errs.E(errs.IO, "File.WriteWeights", name, err)
	}
	defer dtype.Close()
	ds, err := group.CreateDataset(name, dtype, space)
	if err != nil {
		return errs.E(errs.IO, "File.WriteWeights", name, err)
	}
	defer ds.Close()
	if err := ds.Write(&weights); err != nil {
		return errs.E(errs.IO, "File.WriteWeights", name, err)
	}
	return nil
}

// ListWeights enumerates the names of every weight vector stored under
// the bins group (spec.md §5 "Supplemented features").
func (f *File) ListWeights(group *hdf5.Group, knownColumns map[string]bool) ([]string, error) {
	n, err := group.NumObjects()
	if err != nil {
		return nil, errs.E(errs.IO, "File.ListWeights", err)
	}
	var names []string
	for i := uint(0); i < n; i++ {
		name, err := group.ObjectNameByIndex(i)
		if err != nil {
			return nil, errs.E(errs.IO, "File.ListWeights", err)
		}
		if !knownColumns[name] {
			names = append(names, name)
		}
	}
	return names, nil
}

// Finalize writes the completed bin1_offset index, clears the
// write-in-progress sentinel, and transitions the file to StateFinalized
// (spec.md §4.8 "finalize").
func (f *File) Finalize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateWritable {
		return errs.E(errs.InvalidInput, "File.Finalize", "file is not in a writable state")
	}
	if err := f.idx.Finalize(f.bin1Ds.Len()); err != nil {
		return err
	}
	offsets := make([]uint64, len(f.idx.offsets))
	for i, v := range f.idx.offsets {
		if v < 0 {
			return errs.E(errs.Corruption, "File.Finalize", fmt.Sprintf("negative offset at bin %d", i))
		}
		offsets[i] = uint64(v)
	}
	g, err := f.openGroup()
	if err != nil {
		return err
	}
	defer g.Close()
	indexes, err := g.OpenGroup(groupIndexes)
	if err != nil {
		return errs.E(errs.IO, "File.Finalize", err)
	}
	defer indexes.Close()
	offsetDs, err := OpenDataset(indexes, "bin1_offset", 0)
	if err != nil {
		return err
	}
	defer offsetDs.Close()
	if err := offsetDs.overwriteAll(offsets); err != nil {
		return err
	}
	if err := g.DeleteAttribute(writeSentinelAttr); err != nil {
		return errs.E(errs.IO, "File.Finalize", err)
	}
	f.state = StateFinalized
	return nil
}

// Close releases the underlying HDF5 handles.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateClosed {
		return nil
	}
	if f.bin1Ds != nil {
		f.bin1Ds.Close()
	}
	if f.bin2Ds != nil {
		f.bin2Ds.Close()
	}
	if f.countDs != nil {
		f.countDs.Close()
	}
	if err := f.h5.Close(); err != nil {
		return errs.E(errs.IO, "File.Close", err)
	}
	f.state = StateClosed
	return nil
}

// Reference returns the genomic reference this Cool file was built from.
func (f *File) Reference() *biopb.Reference { return f.ref }

// BinTable returns the bin table this Cool file was built from (nil until
// CreateNew or a successful OpenReadOnly).
func (f *File) BinTable() *bins.BinTable { return f.table }

// Validate runs the full structural validation suite against this File:
// mandatory groups/datasets/root attributes and the on-disk bin table
// (ValidateSchema), plus the pixel-column/index invariants (ValidateFile)
// (spec.md §4.14, component C15).
func (f *File) Validate() (*ValidationReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, err := f.openGroup()
	if err != nil {
		return nil, err
	}
	defer g.Close()
	schemaReport, err := ValidateSchema(g, f.table)
	if err != nil {
		return nil, err
	}
	if f.bin1Ds == nil {
		return schemaReport, nil
	}
	pixelReport, err := ValidateFile(f.bin1Ds, f.bin2Ds, f.countDs, f.idx)
	if err != nil {
		return nil, err
	}
	return mergeReports(schemaReport, pixelReport), nil
}
