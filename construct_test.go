package ndarray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyDefaults(t *testing.T) {
	a, err := Empty([]int64{100, 30})
	require.NoError(t, err)
	assert.Equal(t, Uint8, a.Dtype())
	assert.Equal(t, 1, a.ItemSize())
	assert.Equal(t, []int64{100, 30}, a.Shape())
	assert.Equal(t, []int64{100, 30}, a.ChunkShape())
	assert.Equal(t, CodecLZ4, a.Codec())
	assert.Equal(t, 5, a.Level())
	assert.Equal(t, []string{FilterShuffle}, a.Filters())
	assert.Equal(t, int64(3000), a.Size())
}

func TestConstructorsValidateShape(t *testing.T) {
	for _, shape := range [][]int64{nil, {}, {0}, {3, -1}} {
		_, err := Empty(shape)
		assert.ErrorIs(t, err, ErrConfiguration, "%v", shape)
		_, err = Zeros(shape)
		assert.ErrorIs(t, err, ErrConfiguration, "%v", shape)
		_, err = Full(shape, 1)
		assert.ErrorIs(t, err, ErrConfiguration, "%v", shape)
		_, err = FromBuffer(nil, shape)
		assert.ErrorIs(t, err, ErrConfiguration, "%v", shape)
	}

	_, err := Empty([]int64{4}, WithChunks(2), WithBlocks(3))
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = Empty([]int64{4}, WithDtype(Dtype{}))
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = Empty([]int64{4}, WithCodec("brotli", 1))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestFromBuffer(t *testing.T) {
	shape := []int64{3, 5}
	data := make([]byte, 3*5*4)
	for i := range data {
		data[i] = byte(i)
	}

	a, err := FromBuffer(data, shape, WithDtype(Int32))
	require.NoError(t, err)
	got, err := a.ToBuffer()
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = FromBuffer(data[:len(data)-1], shape, WithDtype(Int32))
	assert.ErrorIs(t, err, ErrSizeMismatch)
	_, err = FromBuffer(append(data, 0), shape, WithDtype(Int32))
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestFullDtypes(t *testing.T) {
	tests := []struct {
		name string
		fill interface{}
		opts []Option
		want Dtype
		item []byte
	}{
		{"int", 3, nil, Int64, []byte{3, 0, 0, 0, 0, 0, 0, 0}},
		{"float32", float32(1), nil, Float32, []byte{0, 0, 0x80, 0x3f}},
		{"explicit dtype", 3, []Option{WithDtype(Int16)}, Int16, []byte{3, 0}},
		{"bool", true, nil, Bool, []byte{1}},
		{"byte string", []byte("abc"), nil, String(3), []byte("abc")},
		{"byte string overrides width", []byte("abc"), []Option{WithDtype(Int32)}, String(3), []byte("abc")},
		{"byte string with matching void", []byte("ab"), []Option{WithDtype(Void(2))}, Void(2), []byte("ab")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Full([]int64{2, 3}, tt.fill, tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Dtype())

			buf, err := a.Get(Int(1), Int(2))
			require.NoError(t, err)
			assert.Equal(t, tt.item, buf.Data())
		})
	}

	_, err := Full([]int64{2}, struct{}{})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestAsArray(t *testing.T) {
	src, err := FromSlice([]uint16{1, 2, 3, 4, 5, 6}, 3, 2)
	require.NoError(t, err)

	a, err := AsArray(src, WithBlocks(1, 2))
	require.NoError(t, err)
	assert.Equal(t, Uint16, a.Dtype())
	assert.Equal(t, []int64{3, 2}, a.Shape())
	assert.Equal(t, []int64{1, 2}, a.BlockShape())

	b, err := AsArray(a)
	require.NoError(t, err)
	got, err := b.Get(Int(2))
	require.NoError(t, err)
	vals, err := Values[uint16](got)
	require.NoError(t, err)
	assert.Equal(t, []uint16{5, 6}, vals)

	c, err := Copy(b)
	require.NoError(t, err)
	assert.Equal(t, b.ChunkShape(), c.ChunkShape())
}

func TestConstructorModes(t *testing.T) {
	kv := NewMemoryStore()
	a, err := Zeros([]int64{4}, WithStore(kv), WithPath("x"), WithDtype(Int32))
	require.NoError(t, err)
	require.NoError(t, a.SetScalar([]Index{Int(3)}, 1))

	_, err = Zeros([]int64{4}, WithStore(kv), WithPath("x"), WithMode(ModeWriteFail))
	assert.ErrorIs(t, err, ErrConfiguration)

	existing, err := Zeros([]int64{99}, WithStore(kv), WithPath("x"), WithMode(ModeReadWriteCreate))
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, existing.Shape())
	assert.Equal(t, Int32, existing.Dtype())

	_, err = Zeros([]int64{4}, WithStore(kv), WithPath("x"), WithMode(ModeRead))
	assert.ErrorIs(t, err, ErrConfiguration)

	fresh, err := Zeros([]int64{8}, WithStore(kv), WithPath("y"), WithMode(ModeWriteFail))
	require.NoError(t, err)
	assert.Equal(t, []int64{8}, fresh.Shape())

	replaced, err := Empty([]int64{2}, WithStore(kv), WithPath("x"))
	require.NoError(t, err)
	assert.Equal(t, Uint8, replaced.Dtype())
	keys, err := kv.List("x/c/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
