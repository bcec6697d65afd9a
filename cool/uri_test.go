package cool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURIPlain(t *testing.T) {
	u, err := ParseURI("matrix.cool")
	require.NoError(t, err)
	assert.Equal(t, "matrix.cool", u.Path)
	assert.Equal(t, "", u.GroupPath)
}

func TestParseURIResolution(t *testing.T) {
	u, err := ParseURI("matrix.mcool::/resolutions/1000")
	require.NoError(t, err)
	r, ok, err := u.Resolution()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1000, r)
}

func TestParseURICell(t *testing.T) {
	u, err := ParseURI("matrix.scool::/cells/cellA")
	require.NoError(t, err)
	name, ok := u.Cell()
	assert.True(t, ok)
	assert.Equal(t, "cellA", name)
}

func TestURIRoundTripString(t *testing.T) {
	u, err := ParseURI("m.mcool::/resolutions/500")
	require.NoError(t, err)
	assert.Equal(t, "m.mcool::/resolutions/500", u.String())
}
