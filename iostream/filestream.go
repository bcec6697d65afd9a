// Package iostream implements FileStream (spec.md §4.4, component C5): a
// thread-safe seek/read/write wrapper over a local file with binary-typed
// helpers. No other package of this module imports it: the hic package
// reads and writes through github.com/grailbio/base/file, and the cool
// package's HDF5 layer owns its own file handle via gonum.org/v1/hdf5.
package iostream

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/grailbio/hictools/internal/errs"
)

// ByteOrder selects the numeric encoding used by a helper call. The spec
// fixes byte order per format (HDF5 payloads are little-endian, HIC's wire
// format is big-endian) as a compile-time choice on the call, not a
// runtime flag (spec.md §4.4).
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (o ByteOrder) impl() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// FileStream owns a local file handle, optionally guarded by a mutex so
// that concurrent readers (e.g. multiple PixelSelector iterators, or
// concurrent HIC spill-store readers) may safely interleave operations.
// It tracks the file's size independently of the OS to avoid repeated stat
// calls (spec.md §4.4).
type FileStream struct {
	f       *os.File
	mu      *sync.Mutex // nil if this stream is single-owner (no locking needed)
	size    int64
	writable bool
}

// Open opens path for reading only. The returned stream has no internal
// mutex; callers that need concurrent access should use OpenShared.
func Open(path string) (*FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.E(errs.IO, "FileStream.Open", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, errs.E(errs.IO, "FileStream.Open", path, err)
	}
	return &FileStream{f: f, size: fi.Size()}, nil
}

// OpenShared opens path for reading and installs an internal mutex so the
// returned stream can be safely shared by multiple PixelSelector-style
// iterators (spec.md §4.4, §5).
func OpenShared(path string) (*FileStream, error) {
	fs, err := Open(path)
	if err != nil {
		return nil, err
	}
	fs.mu = &sync.Mutex{}
	return fs, nil
}

// Create creates (or truncates, if overwrite) path for reading and writing.
func Create(path string, overwrite bool) (*FileStream, error) {
	flag := os.O_RDWR | os.O_CREATE
	if overwrite {
		flag |= os.O_TRUNC
	} else {
		flag |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, errs.E(errs.IO, "FileStream.Create", path, err)
	}
	return &FileStream{f: f, writable: true, mu: &sync.Mutex{}}, nil
}

// Size returns the stream's tracked size without calling stat.
func (fs *FileStream) Size() int64 {
	if fs.mu != nil {
		fs.mu.Lock()
		defer fs.mu.Unlock()
	}
	return fs.size
}

// Close closes the underlying file.
func (fs *FileStream) Close() error {
	if err := fs.f.Close(); err != nil {
		return errs.E(errs.IO, "FileStream.Close", fs.f.Name(), err)
	}
	return nil
}

func (fs *FileStream) lock() {
	if fs.mu != nil {
		fs.mu.Lock()
	}
}
func (fs *FileStream) unlock() {
	if fs.mu != nil {
		fs.mu.Unlock()
	}
}

// SeekAndRead reads exactly len(buf) bytes starting at offset, returning
// (offsetBefore, offsetAfter). It does not move any externally-visible
// cursor state beyond the read range.
func (fs *FileStream) SeekAndRead(offset int64, buf []byte) (before, after int64, err error) {
	fs.lock()
	defer fs.unlock()
	return fs.unsafeSeekAndRead(offset, buf)
}

// unsafeSeekAndRead assumes the caller already holds fs.mu (or that no
// locking is required), matching the "unsafe_*" composable primitives of
// spec.md §4.4.
func (fs *FileStream) unsafeSeekAndRead(offset int64, buf []byte) (before, after int64, err error) {
	if offset < 0 || offset+int64(len(buf)) > fs.size {
		return 0, 0, errs.E(errs.OutOfRange, "FileStream.SeekAndRead", fs.f.Name())
	}
	if _, err := fs.f.ReadAt(buf, offset); err != nil {
		return 0, 0, errs.E(errs.IO, "FileStream.SeekAndRead", fs.f.Name(), err)
	}
	return offset, offset + int64(len(buf)), nil
}

// SeekAndWrite writes buf at offset, extending the file (and the tracked
// size) if necessary.
func (fs *FileStream) SeekAndWrite(offset int64, buf []byte) (before, after int64, err error) {
	fs.lock()
	defer fs.unlock()
	return fs.unsafeSeekAndWrite(offset, buf)
}

func (fs *FileStream) unsafeSeekAndWrite(offset int64, buf []byte) (before, after int64, err error) {
	if !fs.writable {
		return 0, 0, errs.E(errs.InvalidInput, "FileStream.SeekAndWrite", fs.f.Name(), "stream is read-only")
	}
	if _, err := fs.f.WriteAt(buf, offset); err != nil {
		return 0, 0, errs.E(errs.IO, "FileStream.SeekAndWrite", fs.f.Name(), err)
	}
	end := offset + int64(len(buf))
	if end > fs.size {
		fs.size = end
	}
	return offset, end, nil
}

// Resize grows or truncates the file to newSize.
func (fs *FileStream) Resize(newSize int64) error {
	fs.lock()
	defer fs.unlock()
	if err := fs.f.Truncate(newSize); err != nil {
		return errs.E(errs.IO, "FileStream.Resize", fs.f.Name(), err)
	}
	fs.size = newSize
	return nil
}

// ReadUint32 / WriteUint32 and friends are the binary-typed helpers of
// spec.md §4.4. Byte order is chosen per call, not globally.

func (fs *FileStream) ReadUint32(offset int64, order ByteOrder) (uint32, error) {
	var buf [4]byte
	if _, _, err := fs.SeekAndRead(offset, buf[:]); err != nil {
		return 0, err
	}
	return order.impl().Uint32(buf[:]), nil
}

func (fs *FileStream) WriteUint32(offset int64, v uint32, order ByteOrder) error {
	var buf [4]byte
	order.impl().PutUint32(buf[:], v)
	_, _, err := fs.SeekAndWrite(offset, buf[:])
	return err
}

func (fs *FileStream) ReadUint64(offset int64, order ByteOrder) (uint64, error) {
	var buf [8]byte
	if _, _, err := fs.SeekAndRead(offset, buf[:]); err != nil {
		return 0, err
	}
	return order.impl().Uint64(buf[:]), nil
}

func (fs *FileStream) WriteUint64(offset int64, v uint64, order ByteOrder) error {
	var buf [8]byte
	order.impl().PutUint64(buf[:], v)
	_, _, err := fs.SeekAndWrite(offset, buf[:])
	return err
}

func (fs *FileStream) ReadInt32(offset int64, order ByteOrder) (int32, error) {
	u, err := fs.ReadUint32(offset, order)
	return int32(u), err
}

func (fs *FileStream) ReadInt64(offset int64, order ByteOrder) (int64, error) {
	u, err := fs.ReadUint64(offset, order)
	return int64(u), err
}

// GetLine reads a delimiter-terminated line starting at offset, returning
// the line (without the delimiter), the offset just past it, and whether
// EOF was reached without finding the delimiter (which is not itself an
// error for a well-formed terminal line, per spec.md §4.4).
func (fs *FileStream) GetLine(offset int64, delim byte) (line string, next int64, eof bool, err error) {
	fs.lock()
	defer fs.unlock()
	if offset < 0 || offset > fs.size {
		return "", 0, false, errs.E(errs.OutOfRange, "FileStream.GetLine", fs.f.Name())
	}
	r := io.NewSectionReader(fs.f, offset, fs.size-offset)
	br := bufio.NewReader(r)
	b, rerr := br.ReadBytes(delim)
	if rerr == io.EOF {
		return string(b), offset + int64(len(b)), true, nil
	}
	if rerr != nil {
		return "", 0, false, errs.E(errs.IO, "FileStream.GetLine", fs.f.Name(), rerr)
	}
	return string(b[:len(b)-1]), offset + int64(len(b)), false, nil
}
