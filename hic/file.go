package hic

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sort"
	"sync"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"

	"github.com/grailbio/hictools/biopb"
	"github.com/grailbio/hictools/bins"
	"github.com/grailbio/hictools/internal/errs"
)

// WriteOptions controls how Writer lays out a HIC file (spec.md §4.13,
// §5 "Supplemented features": expected-value/normalization vectors are
// caller-suppliable rather than computed here).
type WriteOptions struct {
	Version     int32
	GenomeID    string
	Resolutions []int32
	ChunkSize   int
	ZlibLevel   int
	// ExpectedValues, keyed by resolution, holds a caller-precomputed
	// genome-wide expected contact vector to persist alongside the matrix
	// body (spec.md §5). Nil writes the zero-count shell spec.md §4.13 step
	// 4 requires when no such vectors are provided.
	ExpectedValues map[int32][]float64
	// Normalizations, keyed by (name, resolution), holds caller-precomputed
	// per-bin normalization vectors, one per resolution, genome-wide (not
	// split per chromosome). Nil writes the zero-count shell.
	Normalizations map[string]map[int32][]float64
}

// Writer builds a HIC file incrementally: pixels are appended per
// chromosome pair and resolution into the Interaction Spill Store, then
// Finalize streams them out as compressed blocks with a master index
// (spec.md §4.13 "writer steps").
type Writer struct {
	ctx     context.Context
	path    string
	opts    WriteOptions
	ref     *biopb.Reference
	spill   *SpillStore
	spillPath string
	geoms   map[int32]map[chromPairKey]Geometry
}

// NewWriter opens a new HIC file for writing, backed by a temporary spill
// file at spillPath for the intermediate interaction data (spec.md §4.12,
// §4.13).
func NewWriter(ctx context.Context, path, spillPath string, ref *biopb.Reference, opts WriteOptions) (*Writer, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1 << 16
	}
	spill, err := NewSpillStore(ctx, spillPath, opts.ChunkSize)
	if err != nil {
		return nil, err
	}
	return &Writer{
		ctx:       ctx,
		path:      path,
		spillPath: spillPath,
		opts:      opts,
		ref:       ref,
		spill:     spill,
		geoms:     make(map[int32]map[chromPairKey]Geometry),
	}, nil
}

func (w *Writer) geometryFor(resolution int32, pair chromPairKey) Geometry {
	byPair, ok := w.geoms[resolution]
	if !ok {
		byPair = make(map[chromPairKey]Geometry)
		w.geoms[resolution] = byPair
	}
	if g, ok := byPair[pair]; ok {
		return g
	}
	c1, err1 := w.ref.ByID(pair.Chrom1)
	c2, err2 := w.ref.ByID(pair.Chrom2)
	var size1, size2 int64
	if err1 == nil {
		size1 = int64(c1.Size) / int64(resolution)
	}
	if err2 == nil {
		size2 = int64(c2.Size) / int64(resolution)
	}
	g := ChooseGeometry(int64(resolution), size1, size2, pair.Chrom1 == pair.Chrom2, w.opts.Version >= V9)
	byPair[pair] = g
	return g
}

// AddPixel records one interaction at the given resolution (spec.md §4.13).
func (w *Writer) AddPixel(resolution int32, chrom1, chrom2 uint32, bin1, bin2 uint64, count float32) error {
	pair := chromPairKey{Chrom1: chrom1, Chrom2: chrom2}
	g := w.geometryFor(resolution, pair)
	id := BlockID(bin1, bin2, g)
	return w.spill.Append(pair, resolution, id, bin1, bin2, count)
}

// masterIndexOffsetFieldPos is the byte offset of Header.MasterIndexOffset
// within a WriteHeader encoding: magic, then the version i32, then the
// offset i64 (spec.md §6).
const masterIndexOffsetFieldPos = int64(len(Magic)) + 4

// Finalize streams the spilled interaction data out as compressed HIC
// blocks, writes the header, matrix body, and master index, and patches
// the header's master-index offset (spec.md §4.13 "writer steps": reserve
// header, stream body, emit footer, patch offset).
//
// grailbio/base/file's Writer has no observed Seek/WriteAt usage anywhere
// in the example corpus — only its Reader is ever seeked — so this builds
// the entire file in an in-memory buffer, patches the MasterIndexOffset
// bytes directly in that buffer once the body's length is known, and
// writes the whole thing to the real (forward-only) output in one pass.
func (w *Writer) Finalize() error {
	if err := w.spill.Flush(); err != nil {
		return err
	}

	header := Header{
		Version:     w.opts.Version,
		GenomeID:    w.opts.GenomeID,
		Resolutions: w.opts.Resolutions,
		Attributes:  map[string]string{},
	}
	for i := 0; i < w.ref.RawLen(); i++ {
		c := w.ref.At(i)
		header.Chroms = append(header.Chroms, ChromEntry{Name: c.Name, Length: int64(c.Size)})
	}

	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		return err
	}

	pairs := w.collectAllPairs()
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Chrom1 != pairs[j].Chrom1 {
			return pairs[i].Chrom1 < pairs[j].Chrom1
		}
		return pairs[i].Chrom2 < pairs[j].Chrom2
	})

	var master []MasterIndexEntry
	for _, pair := range pairs {
		entry, err := w.emitPair(&buf, pair)
		if err != nil {
			return err
		}
		master = append(master, entry)
	}

	masterIndexOffset := int64(buf.Len())
	if err := WriteMasterIndex(&buf, master); err != nil {
		return err
	}
	if err := WriteExpectedValues(&buf, w.expectedValueVectors()); err != nil {
		return err
	}
	if err := WriteNormalizations(&buf, w.normalizationVectors()); err != nil {
		return err
	}

	out := buf.Bytes()
	binary.BigEndian.PutUint64(out[masterIndexOffsetFieldPos:masterIndexOffsetFieldPos+8], uint64(masterIndexOffset))

	f, err := file.Create(w.ctx, w.path)
	if err != nil {
		return errs.E(errs.IO, "Writer.Finalize", w.path, err)
	}
	defer f.Close(w.ctx)
	if _, err := f.Writer(w.ctx).Write(out); err != nil {
		return errs.E(errs.IO, "Writer.Finalize", err)
	}
	log.Debug.Printf("hic.Writer: wrote %d matrices to %s", len(master), w.path)
	return w.spill.Close()
}

// collectAllPairs returns every chromosome pair that has pixel data in any
// resolution, since the matrix body groups all of a pair's resolutions
// into one PairMeta chunk (spec.md §6).
func (w *Writer) collectAllPairs() []chromPairKey {
	seen := make(map[chromPairKey]bool)
	var out []chromPairKey
	for _, byPair := range w.geoms {
		for pair := range byPair {
			if !seen[pair] {
				seen[pair] = true
				out = append(out, pair)
			}
		}
	}
	return out
}

// emitPair writes every resolution's compressed blocks for pair to buf,
// then appends that pair's PairMeta chunk recording each block's absolute
// file position, and returns the MasterIndexEntry bracketing the PairMeta
// chunk itself (spec.md §6 "Matrix body per chromosome pair").
func (w *Writer) emitPair(buf *bytes.Buffer, pair chromPairKey) (MasterIndexEntry, error) {
	var resolutions []int32
	for _, r := range w.opts.Resolutions {
		if _, ok := w.geoms[r][pair]; ok {
			resolutions = append(resolutions, r)
		}
	}

	resMetas := make([]ResolutionMeta, 0, len(resolutions))
	for _, resolution := range resolutions {
		g := w.geoms[resolution][pair]
		ids := w.spill.BlockIDsForPair(pair, resolution)
		blocks := make([]BlockMeta, 0, len(ids))
		var sum float64
		for _, id := range ids {
			locs := w.spill.ChunkLocations(pair, resolution, id)
			pixels, err := w.spill.MergeBlocksLocked(w.ctx, w.spillPath, pair, resolution, id, locs)
			if err != nil {
				return MasterIndexEntry{}, err
			}
			blk := NewBlock(0, 0)
			for _, p := range pixels {
				blk.Add(p.Bin1ID, p.Bin2ID, p.Count)
				sum += float64(p.Count)
			}
			blk.Finalize()
			encoded, err := blk.Serialize(w.opts.ZlibLevel)
			if err != nil {
				return MasterIndexEntry{}, err
			}
			position := int64(buf.Len())
			if _, err := buf.Write(encoded); err != nil {
				return MasterIndexEntry{}, errs.E(errs.IO, "Writer.emitPair", err)
			}
			blocks = append(blocks, BlockMeta{BlockID: id, Position: position, SizeBytes: int32(len(encoded))})
		}
		resMetas = append(resMetas, ResolutionMeta{
			Unit:             "BP",
			ResIdx:           resolution,
			SumCounts:        float32(sum),
			BinSize:          resolution,
			BlockBinCount:    int32(g.BlockBinCount),
			BlockColumnCount: int32(g.BlockColumnCount),
			Blocks:           blocks,
		})
	}

	metaStart := int64(buf.Len())
	if err := WritePairMeta(buf, PairMeta{Chrom1: pair.Chrom1, Chrom2: pair.Chrom2, Resolutions: resMetas}); err != nil {
		return MasterIndexEntry{}, err
	}
	metaSize := int64(buf.Len()) - metaStart

	return MasterIndexEntry{Chrom1: pair.Chrom1, Chrom2: pair.Chrom2, BodyOffset: metaStart, BodySize: metaSize}, nil
}

// expectedValueVectors converts WriteOptions.ExpectedValues into the wire
// shape, sorted by resolution for deterministic output; nil if the caller
// supplied none, which WriteExpectedValues renders as the zero-count shell.
func (w *Writer) expectedValueVectors() []ExpectedValueVector {
	if len(w.opts.ExpectedValues) == 0 {
		return nil
	}
	resolutions := make([]int32, 0, len(w.opts.ExpectedValues))
	for r := range w.opts.ExpectedValues {
		resolutions = append(resolutions, r)
	}
	sort.Slice(resolutions, func(i, j int) bool { return resolutions[i] < resolutions[j] })
	out := make([]ExpectedValueVector, 0, len(resolutions))
	for _, r := range resolutions {
		out = append(out, ExpectedValueVector{Unit: "BP", BinSize: r, Values: w.opts.ExpectedValues[r]})
	}
	return out
}

// normalizationVectors converts WriteOptions.Normalizations into the wire
// shape, sorted by (name, resolution) for deterministic output; nil if the
// caller supplied none, which WriteNormalizations renders as the
// zero-count shell.
func (w *Writer) normalizationVectors() []NormalizationVector {
	if len(w.opts.Normalizations) == 0 {
		return nil
	}
	names := make([]string, 0, len(w.opts.Normalizations))
	for name := range w.opts.Normalizations {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []NormalizationVector
	for _, name := range names {
		byRes := w.opts.Normalizations[name]
		resolutions := make([]int32, 0, len(byRes))
		for r := range byRes {
			resolutions = append(resolutions, r)
		}
		sort.Slice(resolutions, func(i, j int) bool { return resolutions[i] < resolutions[j] })
		for _, r := range resolutions {
			out = append(out, NormalizationVector{Type: name, Unit: "BP", BinSize: r, Values: byRes[r]})
		}
	}
	return out
}

// Reader serves queries against an on-disk HIC file: it reads the header
// and master index eagerly on open, and lazily materializes each
// (chromosome pair, resolution)'s block index on first access (spec.md
// §4.13 "reader steps": "on open, verify magic and version; read master
// index; lazily read each chromosome pair's block index on first access").
type Reader struct {
	ctx          context.Context
	path         string
	Header       Header
	Master       []MasterIndexEntry
	ref          *biopb.Reference
	masterByPair map[chromPairKey]MasterIndexEntry

	mu       sync.Mutex
	pairMeta map[chromPairKey]PairMeta
	blockIdx map[pairResKey]*BlockIndex
}

// OpenReader opens path, verifies its magic, and reads the header and
// master index. grailbio/base/file's Reader is an io.ReadSeeker (unlike its
// forward-only Writer), so the master index is reached with one seek
// straight to Header.MasterIndexOffset rather than a full body scan.
func OpenReader(ctx context.Context, path string) (*Reader, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errs.E(errs.IO, "OpenReader", path, err)
	}
	defer f.Close(ctx)
	rd := f.Reader(ctx)
	h, err := ReadHeader(rd)
	if err != nil {
		return nil, err
	}
	ref, err := ReferenceFromHeader(h)
	if err != nil {
		return nil, err
	}
	seeker, ok := rd.(io.ReadSeeker)
	if !ok {
		return nil, errs.E(errs.Unsupported, "OpenReader", "reader does not support seeking")
	}
	if _, err := seeker.Seek(h.MasterIndexOffset, io.SeekStart); err != nil {
		return nil, errs.E(errs.IO, "OpenReader", err)
	}
	master, err := ReadMasterIndex(rd)
	if err != nil {
		return nil, err
	}
	masterByPair := make(map[chromPairKey]MasterIndexEntry, len(master))
	for _, e := range master {
		masterByPair[chromPairKey{Chrom1: e.Chrom1, Chrom2: e.Chrom2}] = e
	}
	return &Reader{
		ctx: ctx, path: path, Header: h, Master: master, ref: ref,
		masterByPair: masterByPair,
		pairMeta:     make(map[chromPairKey]PairMeta),
		blockIdx:     make(map[pairResKey]*BlockIndex),
	}, nil
}

// Reference returns the genomic reference recovered from the header.
func (r *Reader) Reference() *biopb.Reference { return r.ref }

// BinTableAt returns a fixed-resolution BinTable for the given resolution,
// provided it is one of the header's listed resolutions.
func (r *Reader) BinTableAt(resolution int32) (*bins.BinTable, error) {
	for _, res := range r.Header.Resolutions {
		if res == resolution {
			return bins.NewFixedResolution(r.ref, uint32(resolution))
		}
	}
	return nil, errs.E(errs.InvalidInput, "Reader.BinTableAt", "resolution not present in file")
}

// openSeeker opens a fresh handle onto the file and asserts its Reader
// supports Seek, the precondition every random-access Fetch relies on.
func (r *Reader) openSeeker() (file.File, io.ReadSeeker, error) {
	f, err := file.Open(r.ctx, r.path)
	if err != nil {
		return nil, nil, errs.E(errs.IO, "Reader", r.path, err)
	}
	seeker, ok := f.Reader(r.ctx).(io.ReadSeeker)
	if !ok {
		f.Close(r.ctx)
		return nil, nil, errs.E(errs.Unsupported, "Reader", "reader does not support seeking")
	}
	return f, seeker, nil
}

// pairMetaFor lazily seeks to and decodes pair's PairMeta chunk, caching
// the result for subsequent calls.
func (r *Reader) pairMetaFor(pair chromPairKey) (PairMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.pairMeta[pair]; ok {
		return m, nil
	}
	entry, ok := r.masterByPair[pair]
	if !ok {
		return PairMeta{}, errs.E(errs.OutOfRange, "Reader.pairMetaFor", "chromosome pair not present in file")
	}
	f, seeker, err := r.openSeeker()
	if err != nil {
		return PairMeta{}, err
	}
	defer f.Close(r.ctx)
	if _, err := seeker.Seek(entry.BodyOffset, io.SeekStart); err != nil {
		return PairMeta{}, errs.E(errs.IO, "Reader.pairMetaFor", err)
	}
	m, err := ReadPairMeta(io.LimitReader(seeker, entry.BodySize))
	if err != nil {
		return PairMeta{}, err
	}
	r.pairMeta[pair] = m
	return m, nil
}

// blockIndexFor lazily builds and caches the BlockIndex for (pair,
// resolution), reading that pair's PairMeta chunk on first access (spec.md
// §4.13 "lazily read each chromosome pair's block index on first access").
func (r *Reader) blockIndexFor(pair chromPairKey, resolution int32) (*BlockIndex, error) {
	key := pairResKey{Pair: pair, Resolution: resolution}
	r.mu.Lock()
	if bi, ok := r.blockIdx[key]; ok {
		r.mu.Unlock()
		return bi, nil
	}
	r.mu.Unlock()

	m, err := r.pairMetaFor(pair)
	if err != nil {
		return nil, err
	}
	var resMeta *ResolutionMeta
	for i := range m.Resolutions {
		if m.Resolutions[i].ResIdx == resolution {
			resMeta = &m.Resolutions[i]
			break
		}
	}
	if resMeta == nil {
		return nil, errs.E(errs.OutOfRange, "Reader.blockIndexFor", "resolution not present for chromosome pair")
	}

	c1, err1 := r.ref.ByID(pair.Chrom1)
	c2, err2 := r.ref.ByID(pair.Chrom2)
	var size1, size2 int64
	if err1 == nil {
		size1 = int64(c1.Size) / int64(resolution)
	}
	if err2 == nil {
		size2 = int64(c2.Size) / int64(resolution)
	}
	g := ChooseGeometry(int64(resolution), size1, size2, pair.Chrom1 == pair.Chrom2, r.Header.Version >= V9)
	g.BlockBinCount = int64(resMeta.BlockBinCount)
	g.BlockColumnCount = int64(resMeta.BlockColumnCount)

	// The diagonal-rotated scheme applies only to intrachromosomal pairs in
	// v9+ files (spec.md §4.10); g.LogBase > 0 is the same test BlockID
	// itself uses, so the index must key off it rather than the file
	// version alone or an interchromosomal pair in a v9+ file would be
	// scanned with the wrong overlap algorithm.
	bi := NewBlockIndex(g, g.LogBase > 0)
	for _, b := range resMeta.Blocks {
		bi.Insert(Entry{ID: b.BlockID, FileOffset: b.Position, CompressedSize: b.SizeBytes})
	}

	r.mu.Lock()
	r.blockIdx[key] = bi
	r.mu.Unlock()
	return bi, nil
}

// Fetch returns every pixel at the given resolution for the chromosome
// pair whose bin coordinates overlap q, decoding only the blocks q's
// bounding box touches (spec.md §4.9, §6 "Query interface").
func (r *Reader) Fetch(chrom1, chrom2 uint32, resolution int32, q Query) ([]biopb.ThinPixel[float32], error) {
	pair := chromPairKey{Chrom1: chrom1, Chrom2: chrom2}
	bi, err := r.blockIndexFor(pair, resolution)
	if err != nil {
		return nil, err
	}
	ids, err := bi.FindOverlaps(q)
	if err != nil {
		return nil, err
	}

	f, seeker, err := r.openSeeker()
	if err != nil {
		return nil, err
	}
	defer f.Close(r.ctx)

	var out []biopb.ThinPixel[float32]
	for _, id := range ids {
		entry, ok := bi.Lookup(id)
		if !ok {
			continue
		}
		if _, err := seeker.Seek(entry.FileOffset, io.SeekStart); err != nil {
			return nil, errs.E(errs.IO, "Reader.Fetch", err)
		}
		compressed := make([]byte, entry.CompressedSize)
		if _, err := io.ReadFull(seeker, compressed); err != nil {
			return nil, errs.E(errs.IO, "Reader.Fetch", err)
		}
		blk, err := DecodeBlock(compressed)
		if err != nil {
			return nil, err
		}
		for _, p := range blk.Pixels() {
			if p.Bin1ID < q.Bin1Lo || p.Bin1ID >= q.Bin1Hi || p.Bin2ID < q.Bin2Lo || p.Bin2ID >= q.Bin2Hi {
				continue
			}
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bin1ID != out[j].Bin1ID {
			return out[i].Bin1ID < out[j].Bin1ID
		}
		return out[i].Bin2ID < out[j].Bin2ID
	})
	return out, nil
}
