package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripWhenRepresentable(t *testing.T) {
	v := FromInt32(42)
	out, err := v.ConvertTo(Int64)
	require.NoError(t, err)
	x, err := out.Int64()
	require.NoError(t, err)
	assert.EqualValues(t, 42, x)
}

func TestFloatToIntFloorCheck(t *testing.T) {
	v := FromFloat64(3.0)
	out, err := v.ConvertTo(Int32)
	require.NoError(t, err)
	x, _ := out.Int64()
	assert.EqualValues(t, 3, x)

	_, err = FromFloat64(3.5).ConvertTo(Int32)
	assert.Error(t, err)
}

func TestIntOutOfRangeRejected(t *testing.T) {
	_, err := FromInt64(1 << 40).ConvertTo(Int32)
	assert.Error(t, err)
}

func TestSignedUnsignedMismatchAllowedWhenRepresentable(t *testing.T) {
	v := FromInt32(200)
	out, err := v.ConvertTo(Uint8)
	require.NoError(t, err)
	x, _ := out.Uint64()
	assert.EqualValues(t, 200, x)

	_, err = FromInt32(-1).ConvertTo(Uint8)
	assert.Error(t, err)
}

func TestStringParsing(t *testing.T) {
	v := FromString("123")
	out, err := v.ConvertTo(Int64)
	require.NoError(t, err)
	x, _ := out.Int64()
	assert.EqualValues(t, 123, x)

	_, err = FromString("123abc").ConvertTo(Int64)
	assert.Error(t, err)

	outF, err := FromString("3.14").ConvertTo(Float64)
	require.NoError(t, err)
	f, _ := outF.Float64()
	assert.InDelta(t, 3.14, f, 1e-9)
}

func TestUnsupportedPairFails(t *testing.T) {
	_, err := FromBool(true).ConvertTo(Int64)
	assert.Error(t, err)
}

func TestIsZero(t *testing.T) {
	assert.True(t, FromInt64(0).IsZero())
	assert.False(t, FromInt64(1).IsZero())
	assert.True(t, FromFloat64(0).IsZero())
}
