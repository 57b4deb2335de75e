package ndarray

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metaExample = `{
  "ndarray_format": 1,
  "shape": [10000, 10000],
  "chunks": [1000, 1000],
  "blocks": [100, 250],
  "dtype": "<f8",
  "compressor": {
    "codec": "zstd",
    "clevel": 3,
    "filters": ["shuffle", "delta"]
  },
  "fill_value": null,
  "order": "C",
  "dimension_separator": "/"
}`

func TestMetadataSerialization(t *testing.T) {
	m := &ArrayMeta{}
	require.NoError(t, json.Unmarshal([]byte(metaExample), m))
	require.NoError(t, m.validate())

	assert.Equal(t, []int64{10000, 10000}, m.Shape)
	assert.Equal(t, []int64{100, 250}, m.Blocks)
	assert.Equal(t, Float64, m.Dtype)
	assert.Equal(t, CodecZstd, m.Compressor.Codec)
	assert.Equal(t, []string{FilterShuffle, FilterDelta}, m.Compressor.Filters)
	assert.Nil(t, m.FillValue)
	assert.Equal(t, "/", m.separator())
	assert.Equal(t, MTArray, m.MetaType())
}

func TestMetadataValidate(t *testing.T) {
	valid := func() *ArrayMeta {
		return &ArrayMeta{
			Format:     FormatVersion,
			Shape:      []int64{10, 10},
			Chunks:     []int64{5, 5},
			Blocks:     []int64{5, 5},
			Dtype:      Int32,
			Compressor: DefaultCParams(),
			Order:      "C",
		}
	}
	require.NoError(t, valid().validate())
	assert.Equal(t, ".", valid().separator())

	mutations := map[string]func(m *ArrayMeta){
		"format":     func(m *ArrayMeta) { m.Format = 2 },
		"order":      func(m *ArrayMeta) { m.Order = "F" },
		"fill value": func(m *ArrayMeta) { m.FillValue = []byte{1} },
		"blocks":     func(m *ArrayMeta) { m.Blocks = []int64{6, 5} },
		"dtype":      func(m *ArrayMeta) { m.Dtype = Dtype{} },
		"codec":      func(m *ArrayMeta) { m.Compressor.Codec = "snappy" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			m := valid()
			mutate(m)
			assert.ErrorIs(t, m.validate(), ErrConfiguration)
		})
	}
}

func TestReadWriteMeta(t *testing.T) {
	s := NewMemoryStore()
	p, err := NewPath("foo/bar")
	require.NoError(t, err)

	exists, err := arrayExists(s, p)
	require.NoError(t, err)
	assert.False(t, exists)

	m := &ArrayMeta{
		Format:     FormatVersion,
		Shape:      []int64{4},
		Chunks:     []int64{2},
		Blocks:     []int64{1},
		Dtype:      Int16,
		Compressor: CParams{Codec: CodecGzip, Level: 1},
		FillValue:  []byte{1, 0},
		Order:      "C",
	}
	require.NoError(t, writeMeta(s, p, m))

	r, err := s.Get("foo/bar/.ndarray")
	require.NoError(t, err)
	raw, err := readAllClose(r)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"dtype":"<i2"`)

	exists, err = arrayExists(s, p)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := readMeta(s, p)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	require.NoError(t, s.Put("bad/.ndarray", bytes.NewReader([]byte(`{"ndarray_format": 1}`))))
	_, err = readMeta(s, Path{"bad"})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewPath(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"foo":           "foo",
		"/foo/bar/":     "foo/bar",
		`foo\bar`:       "foo/bar",
		"//foo///bar//": "foo/bar",
	}
	for in, want := range cases {
		p, err := NewPath(in)
		require.NoError(t, err)
		assert.Equal(t, want, p.String(), in)
	}

	for _, bad := range []string{"foo/../bar", "./foo"} {
		_, err := NewPath(bad)
		assert.Error(t, err, bad)
	}

	base := Path{"a"}
	_ = base.Join("b")
	assert.Equal(t, "a/c", base.Join("c").String())
}
