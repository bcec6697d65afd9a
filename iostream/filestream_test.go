package iostream

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeekAndReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	fs, err := Create(path, true)
	require.NoError(t, err)
	defer fs.Close()

	payload := []byte("hello, hictools")
	_, _, err = fs.SeekAndWrite(0, payload)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), fs.Size())

	got := make([]byte, len(payload))
	_, _, err = fs.SeekAndRead(0, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSeekAndWritePastEndExtendsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	fs, err := Create(path, true)
	require.NoError(t, err)
	defer fs.Close()

	_, _, err = fs.SeekAndWrite(10, []byte("xyz"))
	require.NoError(t, err)
	assert.EqualValues(t, 13, fs.Size())
}

func TestGetLineReassemblesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	fs, err := Create(path, true)
	require.NoError(t, err)
	defer fs.Close()

	content := "line one\nline two\nline three"
	_, _, err = fs.SeekAndWrite(0, []byte(content))
	require.NoError(t, err)

	var lines []string
	var offset int64
	for {
		line, next, eof, err := fs.GetLine(offset, '\n')
		require.NoError(t, err)
		lines = append(lines, line)
		offset = next
		if eof {
			break
		}
	}
	assert.Equal(t, []string{"line one", "line two", "line three"}, lines)
}

func TestBigEndianLittleEndianHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	fs, err := Create(path, true)
	require.NoError(t, err)
	defer fs.Close()

	require.NoError(t, fs.WriteUint32(0, 0x01020304, BigEndian))
	v, err := fs.ReadUint32(0, BigEndian)
	require.NoError(t, err)
	assert.EqualValues(t, 0x01020304, v)

	require.NoError(t, fs.WriteUint32(4, 0x01020304, LittleEndian))
	v2, err := fs.ReadUint32(4, LittleEndian)
	require.NoError(t, err)
	assert.EqualValues(t, 0x01020304, v2)
}

func TestOutOfRangeRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	fs, err := Create(path, true)
	require.NoError(t, err)
	defer fs.Close()
	_, _, err = fs.SeekAndRead(0, make([]byte, 10))
	assert.Error(t, err)
}
