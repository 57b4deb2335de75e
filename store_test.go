package ndarray

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	t.Helper()

	_, err := s.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Put("a/.ndarray", bytes.NewReader([]byte("meta"))))
	require.NoError(t, s.Put("a/c/0.1", bytes.NewReader([]byte{1, 2, 3})))
	require.NoError(t, s.Put("a/c/0.0", bytes.NewReader([]byte{4})))
	require.NoError(t, s.Put("b/c/0", bytes.NewReader(nil)))

	r, err := s.Get("a/c/0.1")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, []byte{1, 2, 3}, data)

	keys, err := s.List("a/c/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/c/0.0", "a/c/0.1"}, keys)

	require.NoError(t, s.Put("a/c/0.1", bytes.NewReader([]byte{9})))
	r, err = s.Get("a/c/0.1")
	require.NoError(t, err)
	data, err = readAllClose(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, data)

	require.NoError(t, s.Delete("a/c/0.0"))
	require.NoError(t, s.Delete("a/c/0.0"))
	keys, err = s.List("a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/.ndarray", "a/c/0.1"}, keys)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	assert.Equal(t, MemoryStoreType, s.Type())
	testStore(t, s)
	assert.Equal(t, int64(1), s.Size("a/c/"))
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	assert.Equal(t, LocalStoreType, s.Type())
	testStore(t, s)

	_, err = os.Stat(filepath.Join(dir, "a", "c", "0.1"))
	assert.NoError(t, err)
}
