package ndarray

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarWriteIntoZeros(t *testing.T) {
	a, err := Zeros([]int64{10, 10}, WithDtype(Int32))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.SetScalar([]Index{Slice(2, 5), Slice(2, 5)}, 7))

	buf, err := a.Get(Slice(0, 10), Slice(0, 10))
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 10}, buf.Shape())
	vals, err := Values[int32](buf)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			want := int32(0)
			if i >= 2 && i < 5 && j >= 2 && j < 5 {
				want = 7
			}
			assert.Equal(t, want, vals[i*10+j], "element (%d, %d)", i, j)
		}
	}
}

func TestGetDropsIntegerAxes(t *testing.T) {
	a, err := Zeros([]int64{4, 5, 6}, WithDtype(Int16))
	require.NoError(t, err)

	buf, err := a.Get(Int(2), Slice(1, 4), All())
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 6}, buf.Shape())
	assert.Len(t, buf.Data(), 3*6*2)

	buf, err = a.Get(Int(0), Int(-1), Int(5))
	require.NoError(t, err)
	assert.Empty(t, buf.Shape())
	assert.Len(t, buf.Data(), 2)
}

func TestRoundTripRegions(t *testing.T) {
	shape := []int64{13, 11}
	a, err := Zeros(shape, WithDtype(Int32), WithChunks(5, 4), WithBlocks(2, 3))
	require.NoError(t, err)

	regions := map[string][]Index{
		"full":   nil,
		"single": {Slice(6, 7), Slice(3, 4)},
		"edge":   {Slice(9, 13), SliceFrom(7)},
		"empty":  {Slice(4, 4), All()},
	}
	for name, key := range regions {
		t.Run(name, func(t *testing.T) {
			nk, _, err := Normalize(key, shape)
			require.NoError(t, err)
			r, err := Resolve(nk, shape)
			require.NoError(t, err)

			vals := make([]int32, r.Size)
			for i := range vals {
				vals[i] = int32(i*7 + len(name))
			}
			src, err := FromSlice(vals, r.Shape(nil)...)
			require.NoError(t, err)
			require.NoError(t, a.Set(key, src))

			got, err := a.Get(key...)
			require.NoError(t, err)
			assert.Equal(t, src.Data(), got.Data())
			assert.Equal(t, r.Shape(nil), got.Shape())
		})
	}
}

func TestSetShapes(t *testing.T) {
	a, err := Zeros([]int64{4, 5, 6}, WithDtype(Int32))
	require.NoError(t, err)
	key := []Index{Int(1), Slice(0, 2), All()}

	dropped, err := FromSlice(make([]int32, 12), 2, 6)
	require.NoError(t, err)
	assert.NoError(t, a.Set(key, dropped))

	kept, err := FromSlice(make([]int32, 12), 1, 2, 6)
	require.NoError(t, err)
	assert.NoError(t, a.Set(key, kept))

	wrong, err := FromSlice(make([]int32, 12), 3, 4)
	require.NoError(t, err)
	err = a.Set(key, wrong)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	var sme *ShapeMismatchError
	require.True(t, errors.As(err, &sme))
	assert.Equal(t, []int64{2, 6}, sme.Expected)
	assert.Equal(t, []int64{3, 4}, sme.Actual)

	narrow, err := FromSlice(make([]int16, 12), 2, 6)
	require.NoError(t, err)
	assert.ErrorIs(t, a.Set(key, narrow), ErrSizeMismatch)

	assert.ErrorIs(t, a.Set(key, nil), ErrShapeMismatch)
}

func TestSetZeroDimensionalBroadcasts(t *testing.T) {
	a, err := Zeros([]int64{3, 3}, WithDtype(Int32))
	require.NoError(t, err)

	scalar, err := NewBuffer([]byte{4, 0, 0, 0}, nil, Int32)
	require.NoError(t, err)
	require.NoError(t, a.Set([]Index{Int(1)}, scalar))

	buf, err := a.Get()
	require.NoError(t, err)
	vals, err := Values[int32](buf)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0, 0, 4, 4, 4, 0, 0, 0}, vals)
}

func TestSetFromArray(t *testing.T) {
	src, err := FromSlice([]int32{1, 2, 3, 4})
	require.NoError(t, err)
	b, err := AsArray(src)
	require.NoError(t, err)

	a, err := Zeros([]int64{2, 4}, WithDtype(Int32))
	require.NoError(t, err)
	require.NoError(t, a.Set([]Index{Int(1)}, b))

	row, err := a.Get(Int(1))
	require.NoError(t, err)
	vals, err := Values[int32](row)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4}, vals)
}

func TestEmptyWritesAreNoops(t *testing.T) {
	a, err := Zeros([]int64{4, 4}, WithDtype(Int32))
	require.NoError(t, err)

	empty, err := FromSlice([]int32{}, 0, 4)
	require.NoError(t, err)
	assert.NoError(t, a.Set([]Index{Slice(3, 1)}, empty))
	assert.NoError(t, a.SetScalar([]Index{Slice(2, 2)}, 9))
	assert.Equal(t, 0.0, a.CompressionRatio())
}

func TestUnsupportedStep(t *testing.T) {
	a, err := Zeros([]int64{10})
	require.NoError(t, err)

	_, err = a.Get(Slice(0, 10).Step(2))
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, a.SetScalar([]Index{All().Step(2)}, 1), ErrUnsupported)
	_, err = a.SubArray([]Index{SliceFrom(1).Step(2)})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCopyIdempotence(t *testing.T) {
	vals := make([]float64, 7*9)
	for i := range vals {
		vals[i] = float64(i) / 3
	}
	src, err := FromSlice(vals, 7, 9)
	require.NoError(t, err)
	a, err := AsArray(src, WithChunks(3, 4), WithBlocks(2, 2))
	require.NoError(t, err)

	b, err := a.Copy()
	require.NoError(t, err)
	c, err := b.Copy(WithChunks(7, 2), WithCodec(CodecZstd, 7))
	require.NoError(t, err)

	assert.Equal(t, a.ChunkShape(), b.ChunkShape())
	assert.Equal(t, a.BlockShape(), b.BlockShape())
	assert.Equal(t, []int64{7, 2}, c.ChunkShape())
	assert.Equal(t, CodecZstd, c.Codec())
	assert.Equal(t, 7, c.Level())

	want, err := a.ToBuffer()
	require.NoError(t, err)
	for _, x := range []*NDArray{b, c} {
		got, err := x.ToBuffer()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	require.NoError(t, a.SetScalar(nil, 0.0))
	got, err := c.ToBuffer()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResize(t *testing.T) {
	a, err := Zeros([]int64{4, 4}, WithDtype(Int32), WithChunks(3, 3))
	require.NoError(t, err)
	require.NoError(t, a.SetScalar([]Index{Slice(1, 3), Slice(1, 3)}, 5))
	before, err := a.ToBuffer()
	require.NoError(t, err)

	assert.ErrorIs(t, a.Resize(3, 4), ErrInvalidResize)
	assert.ErrorIs(t, a.Resize(4, 4, 1), ErrInvalidResize)
	require.NoError(t, a.Resize(4, 4))
	require.NoError(t, a.Resize(6, 5))
	assert.Equal(t, []int64{6, 5}, a.Shape())

	old, err := a.Get(SliceTo(4), SliceTo(4))
	require.NoError(t, err)
	assert.Equal(t, before, old.Data())

	require.NoError(t, a.SetScalar([]Index{Int(5), Int(4)}, 8))
	corner, err := a.Get(Int(5), Int(4))
	require.NoError(t, err)
	assert.Equal(t, []byte{8, 0, 0, 0}, corner.Data())
}

func TestSubArray(t *testing.T) {
	vals := make([]int32, 4*5*6)
	for i := range vals {
		vals[i] = int32(i)
	}
	src, err := FromSlice(vals, 4, 5, 6)
	require.NoError(t, err)
	a, err := AsArray(src, WithCodec(CodecZstd, 2))
	require.NoError(t, err)

	sub, err := a.SubArray([]Index{Int(2), Slice(1, 4)}, WithChunks(2, 6))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 6}, sub.Shape())
	assert.Equal(t, []int64{2, 6}, sub.ChunkShape())
	assert.Equal(t, Int32, sub.Dtype())
	assert.Equal(t, CodecZstd, sub.Codec())

	want, err := a.Get(Int(2), Slice(1, 4))
	require.NoError(t, err)
	got, err := sub.ToBuffer()
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got)

	// the extracted array is independent
	require.NoError(t, a.SetScalar(nil, int32(-1)))
	again, err := sub.ToBuffer()
	require.NoError(t, err)
	assert.Equal(t, got, again)

	one, err := a.SubArray([]Index{Int(0), Int(0), Int(0)})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, one.Shape())

	_, err = a.SubArray([]Index{Slice(2, 2)})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSqueeze(t *testing.T) {
	a, err := Zeros([]int64{1, 4, 1, 3}, WithDtype(Int32))
	require.NoError(t, err)
	before, err := a.ToBuffer()
	require.NoError(t, err)

	require.NoError(t, a.Squeeze())
	assert.Equal(t, []int64{4, 3}, a.Shape())
	assert.Equal(t, 2, a.NDim())
	assert.Len(t, a.ChunkShape(), 2)
	assert.Equal(t, []int64{1, 4, 1, 3}, a.Storage().Shape())

	after, err := a.ToBuffer()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	require.NoError(t, a.SetScalar([]Index{Int(2), Int(1)}, 6))
	v, err := a.Get(Int(2), Int(1))
	require.NoError(t, err)
	assert.Equal(t, []byte{6, 0, 0, 0}, v.Data())

	raw := make([]byte, 4)
	require.NoError(t, a.Storage().ReadRegion([]int64{0, 2, 0, 1}, []int64{1, 3, 1, 2}, raw))
	assert.Equal(t, []byte{6, 0, 0, 0}, raw)

	require.NoError(t, a.Resize(5, 3))
	assert.Equal(t, []int64{1, 5, 1, 3}, a.Storage().Shape())

	// squeezing twice is a no-op
	require.NoError(t, a.Squeeze())
	assert.Equal(t, []int64{5, 3}, a.Shape())
}

func TestWrapSharesStorage(t *testing.T) {
	a, err := Zeros([]int64{3, 3}, WithDtype(Int32))
	require.NoError(t, err)
	v := Wrap(a.Storage())

	require.NoError(t, v.SetScalar([]Index{Int(0), Int(0)}, 3))
	got, err := a.Get(Int(0), Int(0))
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0, 0, 0}, got.Data())

	require.NoError(t, a.Close())
	_, err = a.Get()
	assert.ErrorIs(t, err, ErrUseAfterFree)

	// the wrapping view keeps the storage alive
	_, err = v.Get()
	require.NoError(t, err)
	require.NoError(t, v.Close())
	assert.ErrorIs(t, v.Close(), ErrUseAfterFree)
}

func TestClosedArray(t *testing.T) {
	a, err := Zeros([]int64{2})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = a.Get()
	assert.ErrorIs(t, err, ErrUseAfterFree)
	assert.ErrorIs(t, a.SetScalar(nil, 1), ErrUseAfterFree)
	assert.ErrorIs(t, a.Resize(4), ErrUseAfterFree)
	assert.ErrorIs(t, a.Squeeze(), ErrUseAfterFree)
	_, err = a.Copy()
	assert.ErrorIs(t, err, ErrUseAfterFree)
	_, err = a.ToBuffer()
	assert.ErrorIs(t, err, ErrUseAfterFree)
}

func TestOpenModes(t *testing.T) {
	kv := NewMemoryStore()
	a, err := Full([]int64{6}, int32(2), WithStore(kv), WithPath("foo/bar"))
	require.NoError(t, err)
	require.NoError(t, a.SetScalar([]Index{Int(0)}, 1))
	require.NoError(t, a.Close())

	r, err := Open(kv, "/foo/bar/", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, ModeRead, r.Mode())
	buf, err := r.Get()
	require.NoError(t, err)
	vals, err := Values[int32](buf)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 2, 2, 2, 2}, vals)

	assert.ErrorIs(t, r.SetScalar(nil, 0), ErrReadOnly)
	assert.ErrorIs(t, r.Resize(8), ErrReadOnly)

	rw, err := Open(kv, "foo/bar", ModeReadWrite)
	require.NoError(t, err)
	require.NoError(t, rw.Resize(8))

	_, err = Open(kv, "nope", ModeReadWrite)
	assert.True(t, IsNotFound(err))
	_, err = Open(kv, "nope", ModeReadWriteCreate)
	assert.True(t, IsNotFound(err))
	_, err = Open(kv, "foo/bar", ModeWrite)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = Open(kv, "foo/bar", "x")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestInfo(t *testing.T) {
	a, err := Zeros([]int64{10, 10}, WithDtype(Int32), WithFilters(FilterNone, FilterShuffle))
	require.NoError(t, err)
	require.NoError(t, a.SetScalar(nil, 0))

	items := a.InfoItems()
	got := map[string]string{}
	for _, it := range items {
		got[it.Key] = it.Value
	}
	assert.Equal(t, "NDArray", got["Type"])
	assert.Equal(t, "4", got["Typesize"])
	assert.Equal(t, "(10, 10)", got["Shape"])
	assert.Equal(t, "(10, 10)", got["Chunks"])
	assert.Equal(t, "lz4", got["Comp. codec"])
	assert.Equal(t, "5", got["Comp. level"])
	assert.Equal(t, "[shuffle]", got["Comp. filters"])
	assert.NotEqual(t, "0.00", got["Comp. ratio"])

	info := a.Info()
	assert.True(t, strings.HasPrefix(info, "Type          : NDArray\n"), info)
	assert.Equal(t, len(items), strings.Count(info, "\n"))
}
