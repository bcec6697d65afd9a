package hic

import (
	"bytes"
	"context"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/biogo/store/llrb"
	"github.com/blainsmith/seahash"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"

	"github.com/grailbio/hictools/biopb"
	"github.com/grailbio/hictools/internal/errs"
)

// readShardCount bounds the number of shard locks guarding concurrent
// MergeBlocks readers; (chromosome pair, resolution) keys hash onto a shard
// via seahash so unrelated keys don't serialize behind one another (spec.md
// §4.12 "concurrent-reader shard-lock design").
const readShardCount = 16

func init() {
	recordiozstd.Init()
}

// chromPairKey identifies one chromosome pair's worth of pending and
// flushed interaction data (spec.md §4.12).
type chromPairKey struct {
	Chrom1, Chrom2 uint32
}

func (k chromPairKey) less(o chromPairKey) bool {
	if k.Chrom1 != o.Chrom1 {
		return k.Chrom1 < o.Chrom1
	}
	return k.Chrom2 < o.Chrom2
}

// spillKey identifies one flush unit: a single block id within a single
// chromosome pair *and* resolution. Resolution is folded into the key
// (beyond the (chrom1,chrom2,block_id) triple spec.md §4.12 names)
// because a HIC writer streams pixels for every resolution through one
// shared spill store, and block ids are only unique within the geometry of
// one resolution — two resolutions can and do produce colliding block ids
// for the same chromosome pair. Keying on resolution as well keeps each
// flush unit's pixels attributable to exactly one (pair, resolution, block)
// triple; see DESIGN.md's Open Question notes.
type spillKey struct {
	Pair       chromPairKey
	Resolution int32
	BlockID    int64
}

func (k spillKey) less(o spillKey) bool {
	if k.Pair != o.Pair {
		return k.Pair.less(o.Pair)
	}
	if k.Resolution != o.Resolution {
		return k.Resolution < o.Resolution
	}
	return k.BlockID < o.BlockID
}

// flatBlock is the pending, not-yet-flushed accumulation for one spillKey:
// three parallel slices rather than a slice of structs, matching the
// columnar layout spec.md §4.12 describes for the in-memory spill buffer.
type flatBlock struct {
	bin1 []uint64
	bin2 []uint64
	cnt  []float32
}

func (f *flatBlock) append(b1, b2 uint64, c float32) {
	f.bin1 = append(f.bin1, b1)
	f.bin2 = append(f.bin2, b2)
	f.cnt = append(f.cnt, c)
}

func (f *flatBlock) len() int { return len(f.bin1) }

// chunkNode and pairNode adapt the spill store's two BTreeMap-semantics
// indices (spec.md §4.12: "block_index: BTreeMap<(chrom1,chrom2,block_id),
// Vec<(offset,size)>>", "chrom_index: BTreeMap<(chrom1,chrom2), Vec<block_id>>")
// onto biogo/store/llrb, the same ordered-map structure the spec's
// "BTreeMap" vocabulary maps onto in Go.
type chunkLoc struct {
	Offset int64
	Size   int32
}

type chunkNode struct {
	key spillKey
	loc []chunkLoc
}

func (n *chunkNode) Compare(o llrb.Comparable) int {
	other := o.(*chunkNode)
	switch {
	case n.key.less(other.key):
		return -1
	case other.key.less(n.key):
		return 1
	default:
		return 0
	}
}

// pairResKey is the chrom_index's key: a (pair, resolution) group, each
// holding the set of block ids observed for it.
type pairResKey struct {
	Pair       chromPairKey
	Resolution int32
}

func (k pairResKey) less(o pairResKey) bool {
	if k.Pair != o.Pair {
		return k.Pair.less(o.Pair)
	}
	return k.Resolution < o.Resolution
}

type pairNode struct {
	key pairResKey
	ids map[int64]bool
}

func (n *pairNode) Compare(o llrb.Comparable) int {
	other := o.(*pairNode)
	switch {
	case n.key.less(other.key):
		return -1
	case other.key.less(n.key):
		return 1
	default:
		return 0
	}
}

// SpillStore is the Interaction Spill Store (spec.md §3, component C13):
// an append-only recordio file of zstd-compressed flat-block chunks, with
// in-memory indices mapping (chrom pair, resolution, block id) to its
// on-disk chunk locations so merge_blocks can read back and concatenate
// out-of-order writes before the final per-block sort (spec.md §4.12).
type SpillStore struct {
	mu        sync.Mutex
	w         recordio.Writer
	closer    func() error
	chunkSize int

	pending    map[spillKey]*flatBlock
	blockIndex *llrb.Tree // spillKey -> []chunkLoc
	chromIndex *llrb.Tree // pairResKey -> set of block ids seen

	nextOffset int64

	readShards [readShardCount]sync.RWMutex
}

// shardFor picks the read-lock shard for (pair, resolution) by hashing
// their bytes with seahash (spec.md §4.12).
func (s *SpillStore) shardFor(pair chromPairKey, resolution int32) *sync.RWMutex {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], pair.Chrom1)
	binary.BigEndian.PutUint32(buf[4:8], pair.Chrom2)
	binary.BigEndian.PutUint32(buf[8:12], uint32(resolution))
	h := seahash.Sum64(buf[:])
	return &s.readShards[h%readShardCount]
}

// NewSpillStore creates a spill store backed by a freshly created file at
// path, flushing a (pair, resolution, block) buffer to disk once it
// accumulates chunkSize entries (spec.md §4.12).
func NewSpillStore(ctx context.Context, path string, chunkSize int) (*SpillStore, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errs.E(errs.IO, "NewSpillStore", path, err)
	}
	w := recordio.NewWriter(f.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	return &SpillStore{
		w:          w,
		closer:     func() error { return f.Close(ctx) },
		chunkSize:  chunkSize,
		pending:    make(map[spillKey]*flatBlock),
		blockIndex: &llrb.Tree{},
		chromIndex: &llrb.Tree{},
	}, nil
}

// Append records one pixel against the given chromosome pair, resolution,
// and block id, flushing that key's pending buffer once it reaches
// chunkSize entries (spec.md §4.12 "append protocol").
func (s *SpillStore) Append(pair chromPairKey, resolution int32, blockID int64, bin1, bin2 uint64, count float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := spillKey{Pair: pair, Resolution: resolution, BlockID: blockID}
	fb, ok := s.pending[key]
	if !ok {
		fb = &flatBlock{}
		s.pending[key] = fb
	}
	fb.append(bin1, bin2, count)
	s.markSeen(key)

	if fb.len() >= s.chunkSize {
		return s.flushLocked(key)
	}
	return nil
}

func (s *SpillStore) markSeen(key spillKey) {
	rk := pairResKey{Pair: key.Pair, Resolution: key.Resolution}
	probe := &pairNode{key: rk}
	if n := s.chromIndex.Get(probe); n != nil {
		n.(*pairNode).ids[key.BlockID] = true
		return
	}
	probe.ids = map[int64]bool{key.BlockID: true}
	s.chromIndex.Insert(probe)
}

// flushLocked flushes exactly key's pending buffer to disk and records its
// (offset, size) under that same key — never under whichever key happened
// to trigger the flush (spec.md §4.12: each BlockId's records must stay
// attributable to that BlockId alone).
func (s *SpillStore) flushLocked(key spillKey) error {
	fb := s.pending[key]
	if fb == nil || fb.len() == 0 {
		return nil
	}
	payload := encodeFlatBlock(fb)
	offset := s.nextOffset
	if err := s.w.Append(payload); err != nil {
		return errs.E(errs.IO, "SpillStore.flush", err)
	}
	size := int32(len(payload))
	s.nextOffset += int64(size)

	probe := &chunkNode{key: key}
	if n := s.blockIndex.Get(probe); n != nil {
		node := n.(*chunkNode)
		node.loc = append(node.loc, chunkLoc{Offset: offset, Size: size})
	} else {
		probe.loc = []chunkLoc{{Offset: offset, Size: size}}
		s.blockIndex.Insert(probe)
	}

	delete(s.pending, key)
	return nil
}

// Flush forces every pending (pair, resolution, block) buffer to disk,
// each tagged with its own real key — never a placeholder block id — so
// no pending data is misattributed (spec.md §4.12).
func (s *SpillStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]spillKey, 0, len(s.pending))
	for key := range s.pending {
		keys = append(keys, key)
	}
	for _, key := range keys {
		if err := s.flushLocked(key); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes remaining pending data and finalizes the underlying
// recordio file.
func (s *SpillStore) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Finish(); err != nil {
		return errs.E(errs.IO, "SpillStore.Close", err)
	}
	return s.closer()
}

// MergeBlocksLocked is MergeBlocks run under a read lock on
// (pair,resolution)'s shard (spec.md §4.12). No code path takes a shard's
// write lock, so concurrent callers do not block one another here, whether
// they merge the same key or different ones; each MergeBlocks call opens
// its own file handle.
func (s *SpillStore) MergeBlocksLocked(ctx context.Context, path string, pair chromPairKey, resolution int32, blockID int64, locs []chunkLoc) ([]biopb.ThinPixel[float32], error) {
	shard := s.shardFor(pair, resolution)
	shard.RLock()
	defer shard.RUnlock()
	return MergeBlocks(ctx, path, locs)
}

// MergeBlocks reads back every chunk recorded for one (pair, resolution,
// blockID) key, in recordio-scan order, concatenates their pixels, and
// returns them sorted into canonical (bin1,bin2) order (spec.md §4.12
// "merge_blocks(k)").
func MergeBlocks(ctx context.Context, path string, locs []chunkLoc) ([]biopb.ThinPixel[float32], error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errs.E(errs.IO, "MergeBlocks", path, err)
	}
	defer f.Close(ctx)

	r := recordio.NewScanner(f.Reader(ctx), recordio.ScannerOpts{})
	var out []biopb.ThinPixel[float32]
	for _, loc := range locs {
		if !r.Seek(recordio.ItemLocation{Offset: loc.Offset}) {
			return nil, errs.E(errs.Corruption, "MergeBlocks", "seek failed")
		}
		if !r.Scan() {
			return nil, errs.E(errs.Corruption, "MergeBlocks", "scan failed", r.Err())
		}
		fb := decodeFlatBlock(r.Get().([]byte))
		for i := 0; i < fb.len(); i++ {
			out = append(out, biopb.ThinPixel[float32]{Bin1ID: fb.bin1[i], Bin2ID: fb.bin2[i], Count: fb.cnt[i]})
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

// ChunkLocations returns the recorded on-disk chunks for (pair, resolution, blockID).
func (s *SpillStore) ChunkLocations(pair chromPairKey, resolution int32, blockID int64) []chunkLoc {
	s.mu.Lock()
	defer s.mu.Unlock()
	probe := &chunkNode{key: spillKey{Pair: pair, Resolution: resolution, BlockID: blockID}}
	if n := s.blockIndex.Get(probe); n != nil {
		return append([]chunkLoc(nil), n.(*chunkNode).loc...)
	}
	return nil
}

// BlockIDsForPair returns every block id observed for (pair, resolution),
// in ascending order.
func (s *SpillStore) BlockIDsForPair(pair chromPairKey, resolution int32) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	probe := &pairNode{key: pairResKey{Pair: pair, Resolution: resolution}}
	n := s.chromIndex.Get(probe)
	if n == nil {
		return nil
	}
	ids := make([]int64, 0, len(n.(*pairNode).ids))
	for id := range n.(*pairNode).ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func encodeFlatBlock(fb *flatBlock) []byte {
	var buf bytes.Buffer
	n := int32(fb.len())
	_ = binary.Write(&buf, binary.BigEndian, n)
	for i := 0; i < fb.len(); i++ {
		_ = binary.Write(&buf, binary.BigEndian, fb.bin1[i])
		_ = binary.Write(&buf, binary.BigEndian, fb.bin2[i])
		_ = binary.Write(&buf, binary.BigEndian, fb.cnt[i])
	}
	return buf.Bytes()
}

func decodeFlatBlock(data []byte) *flatBlock {
	r := bytes.NewReader(data)
	var n int32
	_ = binary.Read(r, binary.BigEndian, &n)
	fb := &flatBlock{bin1: make([]uint64, n), bin2: make([]uint64, n), cnt: make([]float32, n)}
	for i := int32(0); i < n; i++ {
		_ = binary.Read(r, binary.BigEndian, &fb.bin1[i])
		_ = binary.Read(r, binary.BigEndian, &fb.bin2[i])
		_ = binary.Read(r, binary.BigEndian, &fb.cnt[i])
	}
	return fb
}
