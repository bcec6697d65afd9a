package hic

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/hictools/biopb"
	"github.com/grailbio/hictools/internal/errs"
)

// Magic is the fixed 4-byte file signature (spec.md §6 "HIC header").
const Magic = "HIC\x00"

// Version 9 is where the chromosome length field widens from int32 to
// int64 and the intrachromosomal block scheme switches to the diagonal-
// rotated layout (spec.md §4.10, §6).
const V9 = 9

// ChromEntry is one chromosome's name and length as recorded in the HIC
// header (spec.md §6).
type ChromEntry struct {
	Name   string
	Length int64
}

// Header is the fixed-then-variable leading section of a HIC file (spec.md
// §6 "HIC header"): magic, version, a placeholder master-index offset
// patched after the body is written, a genome id, a free-form attribute
// dictionary, the chromosome table, and the resolution list.
type Header struct {
	Version           int32
	MasterIndexOffset int64
	GenomeID          string
	Attributes        map[string]string
	Chroms            []ChromEntry
	Resolutions       []int32
}

// WriteHeader encodes h per spec.md §6. Chromosome lengths are written as
// int32 for Version < V9 and int64 for Version >= V9 (spec.md §4.10 "redesign
// flag": the pre-v9 32-bit length field overflows for chromosome 1 in some
// assemblies; v9 widens it).
func WriteHeader(w io.Writer, h Header) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Magic); err != nil {
		return errs.E(errs.IO, "WriteHeader", err)
	}
	if err := binary.Write(bw, binary.BigEndian, h.Version); err != nil {
		return errs.E(errs.IO, "WriteHeader", err)
	}
	if err := binary.Write(bw, binary.BigEndian, h.MasterIndexOffset); err != nil {
		return errs.E(errs.IO, "WriteHeader", err)
	}
	if err := writeCString(bw, h.GenomeID); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, int32(len(h.Attributes))); err != nil {
		return errs.E(errs.IO, "WriteHeader", err)
	}
	for k, v := range h.Attributes {
		if err := writeCString(bw, k); err != nil {
			return err
		}
		if err := writeCString(bw, v); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.BigEndian, int32(len(h.Chroms))); err != nil {
		return errs.E(errs.IO, "WriteHeader", err)
	}
	for _, c := range h.Chroms {
		if err := writeCString(bw, c.Name); err != nil {
			return err
		}
		if h.Version >= V9 {
			if err := binary.Write(bw, binary.BigEndian, c.Length); err != nil {
				return errs.E(errs.IO, "WriteHeader", err)
			}
		} else {
			if err := binary.Write(bw, binary.BigEndian, int32(c.Length)); err != nil {
				return errs.E(errs.IO, "WriteHeader", err)
			}
		}
	}
	if err := binary.Write(bw, binary.BigEndian, int32(len(h.Resolutions))); err != nil {
		return errs.E(errs.IO, "WriteHeader", err)
	}
	for _, r := range h.Resolutions {
		if err := binary.Write(bw, binary.BigEndian, r); err != nil {
			return errs.E(errs.IO, "WriteHeader", err)
		}
	}
	return bw.Flush()
}

// ReadHeader decodes a Header written by WriteHeader, validating the magic
// signature (spec.md §4.9: "reject any file whose magic does not match").
func ReadHeader(r io.Reader) (Header, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return Header{}, errs.E(errs.IO, "ReadHeader", err)
	}
	if string(magic) != Magic {
		return Header{}, errs.E(errs.Format, "ReadHeader", "bad magic")
	}
	var h Header
	if err := binary.Read(br, binary.BigEndian, &h.Version); err != nil {
		return Header{}, errs.E(errs.IO, "ReadHeader", err)
	}
	if err := binary.Read(br, binary.BigEndian, &h.MasterIndexOffset); err != nil {
		return Header{}, errs.E(errs.IO, "ReadHeader", err)
	}
	var err error
	if h.GenomeID, err = readCString(br); err != nil {
		return Header{}, err
	}
	var nAttrs int32
	if err := binary.Read(br, binary.BigEndian, &nAttrs); err != nil {
		return Header{}, errs.E(errs.IO, "ReadHeader", err)
	}
	h.Attributes = make(map[string]string, nAttrs)
	for i := int32(0); i < nAttrs; i++ {
		k, err := readCString(br)
		if err != nil {
			return Header{}, err
		}
		v, err := readCString(br)
		if err != nil {
			return Header{}, err
		}
		h.Attributes[k] = v
	}
	var nChroms int32
	if err := binary.Read(br, binary.BigEndian, &nChroms); err != nil {
		return Header{}, errs.E(errs.IO, "ReadHeader", err)
	}
	h.Chroms = make([]ChromEntry, nChroms)
	for i := range h.Chroms {
		name, err := readCString(br)
		if err != nil {
			return Header{}, err
		}
		var length int64
		if h.Version >= V9 {
			if err := binary.Read(br, binary.BigEndian, &length); err != nil {
				return Header{}, errs.E(errs.IO, "ReadHeader", err)
			}
		} else {
			var l32 int32
			if err := binary.Read(br, binary.BigEndian, &l32); err != nil {
				return Header{}, errs.E(errs.IO, "ReadHeader", err)
			}
			length = int64(l32)
		}
		h.Chroms[i] = ChromEntry{Name: name, Length: length}
	}
	var nRes int32
	if err := binary.Read(br, binary.BigEndian, &nRes); err != nil {
		return Header{}, errs.E(errs.IO, "ReadHeader", err)
	}
	h.Resolutions = make([]int32, nRes)
	for i := range h.Resolutions {
		if err := binary.Read(br, binary.BigEndian, &h.Resolutions[i]); err != nil {
			return Header{}, errs.E(errs.IO, "ReadHeader", err)
		}
	}
	return h, nil
}

// ReferenceFromHeader builds a biopb.Reference from the header's
// chromosome table.
func ReferenceFromHeader(h Header) (*biopb.Reference, error) {
	names := make([]string, len(h.Chroms))
	sizes := make([]uint32, len(h.Chroms))
	for i, c := range h.Chroms {
		names[i] = c.Name
		sizes[i] = uint32(c.Length)
	}
	return biopb.NewReference(names, sizes)
}

// MasterIndexEntry is one chromosome pair's matrix-body chunk position,
// keyed by "chr1Idx_chr2Idx" (spec.md §6 "master index"). A pair's chunk
// holds every resolution's block metadata (see PairMeta), so the master
// index itself carries no resolution field.
type MasterIndexEntry struct {
	Chrom1, Chrom2 uint32
	BodyOffset     int64
	BodySize       int64
}

// masterIndexKey renders the "chr1Idx_chr2Idx" string spec.md §6 uses as
// the master index's lookup key.
func masterIndexKey(chrom1, chrom2 uint32) string {
	return fmt.Sprintf("%d_%d", chrom1, chrom2)
}

// WriteMasterIndex writes the master index section: a count followed by
// that many (key, position, size) records (spec.md §6). The file footer
// stores this section's own offset in the header's MasterIndexOffset field
// so a reader can seek directly to it without reading the whole body.
func WriteMasterIndex(w io.Writer, entries []MasterIndexEntry) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.BigEndian, int32(len(entries))); err != nil {
		return errs.E(errs.IO, "WriteMasterIndex", err)
	}
	for _, e := range entries {
		if err := writeCString(bw, masterIndexKey(e.Chrom1, e.Chrom2)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, e.BodyOffset); err != nil {
			return errs.E(errs.IO, "WriteMasterIndex", err)
		}
		if err := binary.Write(bw, binary.BigEndian, e.BodySize); err != nil {
			return errs.E(errs.IO, "WriteMasterIndex", err)
		}
	}
	return bw.Flush()
}

// ReadMasterIndex decodes a master index section written by
// WriteMasterIndex, recovering Chrom1/Chrom2 from the "chr1Idx_chr2Idx" key.
func ReadMasterIndex(r io.Reader) ([]MasterIndexEntry, error) {
	br := bufio.NewReader(r)
	var n int32
	if err := binary.Read(br, binary.BigEndian, &n); err != nil {
		return nil, errs.E(errs.IO, "ReadMasterIndex", err)
	}
	entries := make([]MasterIndexEntry, n)
	for i := range entries {
		e := &entries[i]
		key, err := readCString(br)
		if err != nil {
			return nil, err
		}
		if _, err := fmt.Sscanf(key, "%d_%d", &e.Chrom1, &e.Chrom2); err != nil {
			return nil, errs.E(errs.Format, "ReadMasterIndex", "bad master index key", key, err)
		}
		if err := binary.Read(br, binary.BigEndian, &e.BodyOffset); err != nil {
			return nil, errs.E(errs.IO, "ReadMasterIndex", err)
		}
		if err := binary.Read(br, binary.BigEndian, &e.BodySize); err != nil {
			return nil, errs.E(errs.IO, "ReadMasterIndex", err)
		}
	}
	return entries, nil
}

// BlockMeta is one block's entry in a resolution's block table (spec.md §6
// matrix-body layout: "blockCount triples (blockId: i32, blockPosition: i64,
// blockSizeBytes: i32)"). BlockID is carried as int64 in memory to match
// BlockIndex's Entry.ID, truncating to i32 only on the wire.
type BlockMeta struct {
	BlockID   int64
	Position  int64
	SizeBytes int32
}

// ResolutionMeta is one resolution's metadata chunk within a chromosome
// pair's matrix body (spec.md §6): the reserved statistics fields are
// carried through but never interpreted by this library (no balancing pass
// is in scope).
type ResolutionMeta struct {
	Unit              string
	ResIdx            int32
	SumCounts         float32
	OccupiedCellCount float32
	Percent5          float32
	Percent95         float32
	BinSize           int32
	BlockBinCount     int32
	BlockColumnCount  int32
	Blocks            []BlockMeta
}

// PairMeta is the matrix-body chunk for one chromosome pair (spec.md §6):
// "chr1Idx, chr2Idx, nResolutions as i32; per resolution: ...". The master
// index's BodyOffset/BodySize bracket exactly the bytes WritePairMeta emits.
type PairMeta struct {
	Chrom1, Chrom2 uint32
	Resolutions    []ResolutionMeta
}

// WritePairMeta encodes one chromosome pair's matrix-body chunk.
func WritePairMeta(w io.Writer, m PairMeta) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.BigEndian, m.Chrom1); err != nil {
		return errs.E(errs.IO, "WritePairMeta", err)
	}
	if err := binary.Write(bw, binary.BigEndian, m.Chrom2); err != nil {
		return errs.E(errs.IO, "WritePairMeta", err)
	}
	if err := binary.Write(bw, binary.BigEndian, int32(len(m.Resolutions))); err != nil {
		return errs.E(errs.IO, "WritePairMeta", err)
	}
	for _, res := range m.Resolutions {
		if err := writeCString(bw, res.Unit); err != nil {
			return err
		}
		for _, v := range []interface{}{
			res.ResIdx, res.SumCounts, res.OccupiedCellCount, res.Percent5, res.Percent95,
			res.BinSize, res.BlockBinCount, res.BlockColumnCount, int32(len(res.Blocks)),
		} {
			if err := binary.Write(bw, binary.BigEndian, v); err != nil {
				return errs.E(errs.IO, "WritePairMeta", err)
			}
		}
		for _, b := range res.Blocks {
			if err := binary.Write(bw, binary.BigEndian, int32(b.BlockID)); err != nil {
				return errs.E(errs.IO, "WritePairMeta", err)
			}
			if err := binary.Write(bw, binary.BigEndian, b.Position); err != nil {
				return errs.E(errs.IO, "WritePairMeta", err)
			}
			if err := binary.Write(bw, binary.BigEndian, b.SizeBytes); err != nil {
				return errs.E(errs.IO, "WritePairMeta", err)
			}
		}
	}
	return bw.Flush()
}

// ReadPairMeta decodes one chromosome pair's matrix-body chunk written by
// WritePairMeta.
func ReadPairMeta(r io.Reader) (PairMeta, error) {
	br := bufio.NewReader(r)
	var m PairMeta
	if err := binary.Read(br, binary.BigEndian, &m.Chrom1); err != nil {
		return PairMeta{}, errs.E(errs.IO, "ReadPairMeta", err)
	}
	if err := binary.Read(br, binary.BigEndian, &m.Chrom2); err != nil {
		return PairMeta{}, errs.E(errs.IO, "ReadPairMeta", err)
	}
	var nRes int32
	if err := binary.Read(br, binary.BigEndian, &nRes); err != nil {
		return PairMeta{}, errs.E(errs.IO, "ReadPairMeta", err)
	}
	m.Resolutions = make([]ResolutionMeta, nRes)
	for i := range m.Resolutions {
		res := &m.Resolutions[i]
		unit, err := readCString(br)
		if err != nil {
			return PairMeta{}, err
		}
		res.Unit = unit
		var nBlocks int32
		for _, v := range []interface{}{
			&res.ResIdx, &res.SumCounts, &res.OccupiedCellCount, &res.Percent5, &res.Percent95,
			&res.BinSize, &res.BlockBinCount, &res.BlockColumnCount, &nBlocks,
		} {
			if err := binary.Read(br, binary.BigEndian, v); err != nil {
				return PairMeta{}, errs.E(errs.IO, "ReadPairMeta", err)
			}
		}
		res.Blocks = make([]BlockMeta, nBlocks)
		for j := range res.Blocks {
			b := &res.Blocks[j]
			var id32 int32
			if err := binary.Read(br, binary.BigEndian, &id32); err != nil {
				return PairMeta{}, errs.E(errs.IO, "ReadPairMeta", err)
			}
			b.BlockID = int64(id32)
			if err := binary.Read(br, binary.BigEndian, &b.Position); err != nil {
				return PairMeta{}, errs.E(errs.IO, "ReadPairMeta", err)
			}
			if err := binary.Read(br, binary.BigEndian, &b.SizeBytes); err != nil {
				return PairMeta{}, errs.E(errs.IO, "ReadPairMeta", err)
			}
		}
	}
	return m, nil
}

// ExpectedValueVector is one unit/resolution's expected-count-by-distance
// curve (spec.md §6: "Expected-value vectors ... follow a parallel
// structure, each prefixed by a count").
type ExpectedValueVector struct {
	Unit    string
	BinSize int32
	Values  []float64
}

// WriteExpectedValues writes the expected-value section. A caller with no
// vectors (the default) writes the zero-count shell spec.md §4.13 step 4
// requires.
func WriteExpectedValues(w io.Writer, vecs []ExpectedValueVector) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.BigEndian, int32(len(vecs))); err != nil {
		return errs.E(errs.IO, "WriteExpectedValues", err)
	}
	for _, v := range vecs {
		if err := writeCString(bw, v.Unit); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, v.BinSize); err != nil {
			return errs.E(errs.IO, "WriteExpectedValues", err)
		}
		if err := binary.Write(bw, binary.BigEndian, int32(len(v.Values))); err != nil {
			return errs.E(errs.IO, "WriteExpectedValues", err)
		}
		for _, x := range v.Values {
			if err := binary.Write(bw, binary.BigEndian, x); err != nil {
				return errs.E(errs.IO, "WriteExpectedValues", err)
			}
		}
	}
	return bw.Flush()
}

// ReadExpectedValues decodes an expected-value section written by
// WriteExpectedValues; a zero count decodes to a nil slice.
func ReadExpectedValues(r io.Reader) ([]ExpectedValueVector, error) {
	br := bufio.NewReader(r)
	var n int32
	if err := binary.Read(br, binary.BigEndian, &n); err != nil {
		return nil, errs.E(errs.IO, "ReadExpectedValues", err)
	}
	vecs := make([]ExpectedValueVector, n)
	for i := range vecs {
		v := &vecs[i]
		unit, err := readCString(br)
		if err != nil {
			return nil, err
		}
		v.Unit = unit
		if err := binary.Read(br, binary.BigEndian, &v.BinSize); err != nil {
			return nil, errs.E(errs.IO, "ReadExpectedValues", err)
		}
		var nVals int32
		if err := binary.Read(br, binary.BigEndian, &nVals); err != nil {
			return nil, errs.E(errs.IO, "ReadExpectedValues", err)
		}
		v.Values = make([]float64, nVals)
		for j := range v.Values {
			if err := binary.Read(br, binary.BigEndian, &v.Values[j]); err != nil {
				return nil, errs.E(errs.IO, "ReadExpectedValues", err)
			}
		}
	}
	return vecs, nil
}

// NormalizationVector is one (type, unit, resolution, chromosome)
// normalization vector, e.g. a "KR" or "VC" balancing factor curve
// (spec.md §6 normalization section, parallel to the expected-value one).
type NormalizationVector struct {
	Type     string
	Unit     string
	BinSize  int32
	ChromIdx uint32
	Values   []float64
}

// WriteNormalizations writes the normalization section. A caller with no
// vectors (the default, since this library never computes balancing
// weights) writes the zero-count shell spec.md §4.13 step 4 requires.
func WriteNormalizations(w io.Writer, vecs []NormalizationVector) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.BigEndian, int32(len(vecs))); err != nil {
		return errs.E(errs.IO, "WriteNormalizations", err)
	}
	for _, v := range vecs {
		if err := writeCString(bw, v.Type); err != nil {
			return err
		}
		if err := writeCString(bw, v.Unit); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, v.BinSize); err != nil {
			return errs.E(errs.IO, "WriteNormalizations", err)
		}
		if err := binary.Write(bw, binary.BigEndian, v.ChromIdx); err != nil {
			return errs.E(errs.IO, "WriteNormalizations", err)
		}
		if err := binary.Write(bw, binary.BigEndian, int32(len(v.Values))); err != nil {
			return errs.E(errs.IO, "WriteNormalizations", err)
		}
		for _, x := range v.Values {
			if err := binary.Write(bw, binary.BigEndian, x); err != nil {
				return errs.E(errs.IO, "WriteNormalizations", err)
			}
		}
	}
	return bw.Flush()
}

// ReadNormalizations decodes a normalization section written by
// WriteNormalizations; a zero count decodes to a nil slice.
func ReadNormalizations(r io.Reader) ([]NormalizationVector, error) {
	br := bufio.NewReader(r)
	var n int32
	if err := binary.Read(br, binary.BigEndian, &n); err != nil {
		return nil, errs.E(errs.IO, "ReadNormalizations", err)
	}
	vecs := make([]NormalizationVector, n)
	for i := range vecs {
		v := &vecs[i]
		typ, err := readCString(br)
		if err != nil {
			return nil, err
		}
		v.Type = typ
		unit, err := readCString(br)
		if err != nil {
			return nil, err
		}
		v.Unit = unit
		if err := binary.Read(br, binary.BigEndian, &v.BinSize); err != nil {
			return nil, errs.E(errs.IO, "ReadNormalizations", err)
		}
		if err := binary.Read(br, binary.BigEndian, &v.ChromIdx); err != nil {
			return nil, errs.E(errs.IO, "ReadNormalizations", err)
		}
		var nVals int32
		if err := binary.Read(br, binary.BigEndian, &nVals); err != nil {
			return nil, errs.E(errs.IO, "ReadNormalizations", err)
		}
		v.Values = make([]float64, nVals)
		for j := range v.Values {
			if err := binary.Read(br, binary.BigEndian, &v.Values[j]); err != nil {
				return nil, errs.E(errs.IO, "ReadNormalizations", err)
			}
		}
	}
	return vecs, nil
}

func writeCString(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return errs.E(errs.IO, "writeCString", err)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return errs.E(errs.IO, "writeCString", err)
	}
	return nil
}

func readCString(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", errs.E(errs.IO, "readCString", err)
	}
	return s[:len(s)-1], nil
}
