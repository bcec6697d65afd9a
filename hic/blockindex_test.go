package hic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockIndexInsertLookup(t *testing.T) {
	bi := NewBlockIndex(Geometry{BlockBinCount: 32, BlockColumnCount: 4}, false)
	bi.Insert(Entry{ID: 3, FileOffset: 100, CompressedSize: 10})
	bi.Insert(Entry{ID: 1, FileOffset: 0, CompressedSize: 50})

	e, ok := bi.Lookup(1)
	require.True(t, ok)
	assert.EqualValues(t, 0, e.FileOffset)

	entries := bi.Entries()
	require.Len(t, entries, 2)
	assert.EqualValues(t, 1, entries[0].ID)
	assert.EqualValues(t, 3, entries[1].ID)
}

func TestBlockIndexFindOverlapsGrid(t *testing.T) {
	g := Geometry{BlockBinCount: 10, BlockColumnCount: 4}
	bi := NewBlockIndex(g, false)
	bi.Insert(Entry{ID: gridBlockID(0, 0, g)})
	bi.Insert(Entry{ID: gridBlockID(15, 25, g)})
	bi.Insert(Entry{ID: gridBlockID(100, 100, g)}) // well outside the query window

	ids, err := bi.FindOverlaps(Query{Bin1Lo: 0, Bin1Hi: 20, Bin2Lo: 0, Bin2Hi: 30})
	require.NoError(t, err)
	assert.Contains(t, ids, gridBlockID(0, 0, g))
	assert.Contains(t, ids, gridBlockID(15, 25, g))
	assert.NotContains(t, ids, gridBlockID(100, 100, g))
}

func TestBlockIndexRejectsEmptyQuery(t *testing.T) {
	bi := NewBlockIndex(Geometry{BlockBinCount: 10, BlockColumnCount: 4}, false)
	_, err := bi.FindOverlaps(Query{Bin1Lo: 5, Bin1Hi: 5, Bin2Lo: 0, Bin2Hi: 1})
	assert.Error(t, err)
}

func TestBlockIndexDiagonalFindsNearDiagonalBlock(t *testing.T) {
	g := ChooseGeometry(1, 2000, 2000, true, true)
	bi := NewBlockIndex(g, true)
	id := BlockID(500, 505, g)
	bi.Insert(Entry{ID: id})

	ids, err := bi.FindOverlaps(Query{Bin1Lo: 490, Bin1Hi: 520, Bin2Lo: 490, Bin2Hi: 520})
	require.NoError(t, err)
	assert.Contains(t, ids, id)
}
