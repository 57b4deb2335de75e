package badgerstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qri-io/ndarray-go"
)

func TestStoreKeys(t *testing.T) {
	s, err := OpenInMemory(nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ndarray.ErrNotFound)

	require.NoError(t, s.Put("a/c/1", bytes.NewReader([]byte{1})))
	require.NoError(t, s.Put("a/c/0", bytes.NewReader([]byte{0})))
	require.NoError(t, s.Put("b/c/0", bytes.NewReader([]byte{2})))

	keys, err := s.List("a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/c/0", "a/c/1"}, keys)

	require.NoError(t, s.Delete("a/c/0"))
	require.NoError(t, s.Delete("a/c/0"))
	keys, err = s.List("a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/c/1"}, keys)
}

func TestArrayOnBadger(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	a, err := ndarray.Zeros([]int64{20, 30},
		ndarray.WithDtype(ndarray.Int32),
		ndarray.WithChunks(8, 8),
		ndarray.WithStore(s),
		ndarray.WithPath("weather/temp"),
	)
	require.NoError(t, err)
	require.NoError(t, a.SetScalar([]ndarray.Index{ndarray.Slice(5, 15), ndarray.SliceFrom(20)}, 11))
	want, err := a.ToBuffer()
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, s.Close())

	s, err = Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	b, err := ndarray.Open(s, "weather/temp", ndarray.ModeRead)
	require.NoError(t, err)
	assert.Equal(t, []int64{20, 30}, b.Shape())
	got, err := b.ToBuffer()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	v, err := b.Get(ndarray.Int(10), ndarray.Int(25))
	require.NoError(t, err)
	assert.Equal(t, []byte{11, 0, 0, 0}, v.Data())
}
