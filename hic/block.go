package hic

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/yasushi-saito/zlibng"

	"github.com/grailbio/hictools/biopb"
	"github.com/grailbio/hictools/internal/errs"
)

// Representation selects the on-disk row layout of a Block (spec.md §3).
type Representation int32

const (
	RepresentationListOfRows Representation = 0
	RepresentationDense      Representation = 1
)

// Row is one row of a Block: a bin1 coordinate (relative to the block's
// BinRowOffset) and its sorted (column, count) entries.
type Row struct {
	RowNumber int32
	Entries   []CellEntry
}

// CellEntry is a single (column, count) pair within a Row, column given
// relative to the block's BinColumnOffset.
type CellEntry struct {
	Col   int32
	Count float32
}

// Block is the in-memory form of a single HIC interaction block (spec.md
// §3 "HIC block", §4.11). Encoding accumulates pixels by relative row;
// Finalize sorts rows and within-row entries into canonical form.
type Block struct {
	BinColumnOffset int32
	BinRowOffset    int32
	UseFloatCounts  bool
	Representation  Representation

	rows     map[int32]*Row
	finalRows []Row
	finalized bool
}

// NewBlock creates an empty Block writer for the given row/column offsets.
func NewBlock(binRowOffset, binColumnOffset int32) *Block {
	return &Block{
		BinRowOffset:    binRowOffset,
		BinColumnOffset: binColumnOffset,
		UseFloatCounts:  true,
		Representation:  RepresentationListOfRows,
		rows:            make(map[int32]*Row),
	}
}

// Add accumulates one pixel into the block, grouped by its relative row
// (spec.md §4.11).
func (b *Block) Add(bin1, bin2 uint64, count float32) {
	row := int32(int64(bin1) - int64(b.BinRowOffset))
	col := int32(int64(bin2) - int64(b.BinColumnOffset))
	r, ok := b.rows[row]
	if !ok {
		r = &Row{RowNumber: row}
		b.rows[row] = r
	}
	r.Entries = append(r.Entries, CellEntry{Col: col, Count: count})
}

// Finalize sorts rows by RowNumber and entries within each row by Col,
// producing the canonical form required by spec.md §3.
func (b *Block) Finalize() {
	if b.finalized {
		return
	}
	b.finalRows = make([]Row, 0, len(b.rows))
	for _, r := range b.rows {
		sort.Slice(r.Entries, func(i, j int) bool { return r.Entries[i].Col < r.Entries[j].Col })
		b.finalRows = append(b.finalRows, *r)
	}
	sort.Slice(b.finalRows, func(i, j int) bool { return b.finalRows[i].RowNumber < b.finalRows[j].RowNumber })
	b.finalized = true
}

// Rows returns the canonical (sorted) rows. Finalize must be called first.
func (b *Block) Rows() []Row { return b.finalRows }

// NRecords returns the total number of (bin1,bin2,count) entries.
func (b *Block) NRecords() int {
	n := 0
	for _, r := range b.finalRows {
		n += len(r.Entries)
	}
	return n
}

// Serialize encodes the block's canonical byte layout (spec.md §3) and
// zlib-compresses it via zlibng (spec.md §4.11: "runs zlib compression
// with a caller-supplied libdeflate context"; zlibng plays that role here).
func (b *Block) Serialize(level int) ([]byte, error) {
	if !b.finalized {
		b.Finalize()
	}
	var payload bytes.Buffer
	writeI32 := func(v int32) { _ = binary.Write(&payload, binary.BigEndian, v) }
	writeF32 := func(v float32) { _ = binary.Write(&payload, binary.BigEndian, v) }

	writeI32(int32(b.NRecords()))
	writeI32(b.BinColumnOffset)
	writeI32(b.BinRowOffset)
	payload.WriteByte(boolByte(b.UseFloatCounts))
	payload.WriteByte(1) // useIntXPos
	payload.WriteByte(1) // useIntYPos
	payload.WriteByte(byte(b.Representation))
	writeI32(int32(len(b.finalRows)))
	for _, r := range b.finalRows {
		writeI32(r.RowNumber)
		writeI32(int32(len(r.Entries)))
		for _, e := range r.Entries {
			writeI32(e.Col)
			writeF32(e.Count)
		}
	}

	var compressed bytes.Buffer
	zw, err := zlibng.NewWriterLevel(&compressed, level)
	if err != nil {
		return nil, errs.E(errs.IO, "Block.Serialize", err)
	}
	if _, err := zw.Write(payload.Bytes()); err != nil {
		return nil, errs.E(errs.IO, "Block.Serialize", err)
	}
	if err := zw.Close(); err != nil {
		return nil, errs.E(errs.IO, "Block.Serialize", err)
	}
	return compressed.Bytes(), nil
}

// DecodeBlock decompresses and decodes a block byte blob produced by
// Serialize (spec.md §4.11: "no partial decode - a block is always
// decompressed whole").
func DecodeBlock(compressed []byte) (*Block, error) {
	zr, err := zlibng.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errs.E(errs.Corruption, "DecodeBlock", err)
	}
	defer zr.Close()
	var payload bytes.Buffer
	if _, err := payload.ReadFrom(zr); err != nil {
		return nil, errs.E(errs.Corruption, "DecodeBlock", err)
	}
	buf := payload.Bytes()
	r := bytes.NewReader(buf)
	readI32 := func() int32 {
		var v int32
		_ = binary.Read(r, binary.BigEndian, &v)
		return v
	}
	readF32 := func() float32 {
		var v float32
		_ = binary.Read(r, binary.BigEndian, &v)
		return v
	}

	nRecords := readI32()
	b := &Block{rows: make(map[int32]*Row)}
	b.BinColumnOffset = readI32()
	b.BinRowOffset = readI32()
	useFloat, _ := r.ReadByte()
	b.UseFloatCounts = useFloat != 0
	_, _ = r.ReadByte() // useIntXPos
	_, _ = r.ReadByte() // useIntYPos
	repr, _ := r.ReadByte()
	b.Representation = Representation(repr)
	rowCount := readI32()

	b.finalRows = make([]Row, 0, rowCount)
	total := 0
	for i := int32(0); i < rowCount; i++ {
		row := Row{RowNumber: readI32()}
		n := readI32()
		row.Entries = make([]CellEntry, n)
		for j := int32(0); j < n; j++ {
			row.Entries[j] = CellEntry{Col: readI32(), Count: readF32()}
		}
		total += int(n)
		b.finalRows = append(b.finalRows, row)
	}
	if total != int(nRecords) {
		return nil, errs.E(errs.Corruption, "DecodeBlock", "record count mismatch")
	}
	b.finalized = true
	return b, nil
}

// Pixels expands a decoded block back into ThinPixels with absolute bin
// ids, using the block's stored offsets.
func (b *Block) Pixels() []biopb.ThinPixel[float32] {
	out := make([]biopb.ThinPixel[float32], 0, b.NRecords())
	for _, row := range b.finalRows {
		bin1 := uint64(int64(b.BinRowOffset) + int64(row.RowNumber))
		for _, e := range row.Entries {
			bin2 := uint64(int64(b.BinColumnOffset) + int64(e.Col))
			out = append(out, biopb.ThinPixel[float32]{Bin1ID: bin1, Bin2ID: bin2, Count: e.Count})
		}
	}
	return out
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
