package ndarray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuffer(t *testing.T) {
	b, err := NewBuffer(make([]byte, 24), []int64{2, 3}, Int32)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, b.Shape())
	assert.Equal(t, int64(6), b.Len())

	_, err = NewBuffer(make([]byte, 23), []int64{2, 3}, Int32)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = NewBuffer(nil, []int64{-1}, Int32)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestFromSliceValues(t *testing.T) {
	b, err := FromSlice([]int32{1, -2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, Int32, b.Dtype())
	assert.Equal(t, []int64{2, 3}, b.Shape())
	assert.Equal(t, []byte{0xfe, 0xff, 0xff, 0xff}, b.Data()[4:8])

	vals, err := Values[int32](b)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -2, 3, 4, 5, 6}, vals)

	_, err = Values[float32](b)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = FromSlice([]int32{1, 2, 3}, 2, 2)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestDtypeFor(t *testing.T) {
	assert.Equal(t, Uint8, DtypeFor[uint8]())
	assert.Equal(t, Int8, DtypeFor[int8]())
	assert.Equal(t, Int64, DtypeFor[int64]())
	assert.Equal(t, Uint32, DtypeFor[uint32]())
	assert.Equal(t, Float32, DtypeFor[float32]())
	assert.Equal(t, Float64, DtypeFor[float64]())
}

func TestValuesRoundTrip(t *testing.T) {
	f, err := FromSlice([]float64{0.5, -1.25, 1e300})
	require.NoError(t, err)
	got, err := Values[float64](f)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -1.25, 1e300}, got)

	u, err := FromSlice([]uint16{0, 1, 65535})
	require.NoError(t, err)
	gotU, err := Values[uint16](u)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 1, 65535}, gotU)
}
