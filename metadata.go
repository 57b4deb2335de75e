package ndarray

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// FormatVersion is the version of the metadata layout written by this
	// package.
	FormatVersion = 1
)

type MetaType string

const (
	// MTArray is the key for storing metadata on an array store
	MTArray MetaType = ".ndarray"
)

// Each array requires essential configuration metadata to be stored,
// enabling correct interpretation of the stored data.
// This metadata is encoded using JSON and stored as the value of the
// ".ndarray" key below the array path.
type ArrayMeta struct {
	// An integer defining the version of the storage layout to which the
	// array store adheres.
	Format int `json:"ndarray_format"`
	// A list of integers defining the length of each dimension of the array.
	Shape []int64 `json:"shape"`
	// A list of integers defining the length of each dimension of a chunk of the
	// array. Note that all chunks within an array have the same shape.
	Chunks []int64 `json:"chunks"`
	// The shape of the blocks each chunk is divided into before compression.
	Blocks []int64 `json:"blocks"`
	// The element type.
	Dtype Dtype `json:"dtype"`
	// Codec, level and filter chain applied to every block.
	Compressor CParams `json:"compressor"`
	// A single encoded element used for chunks that were never written, or
	// null for zeros.
	FillValue []byte `json:"fill_value"`
	// Always "C": row-major order, the last dimension varies fastest.
	Order string `json:"order"`
	// Separator placed between the dimensions of a chunk key.
	DimensionSeparator string `json:"dimension_separator"`
}

func (m ArrayMeta) MetaType() MetaType { return MTArray }

func (m *ArrayMeta) validate() error {
	if m.Format != FormatVersion {
		return configErrorf("unsupported format version %d", m.Format)
	}
	if err := validateShape(m.Shape); err != nil {
		return err
	}
	if err := validatePlan(m.Shape, m.Chunks, m.Blocks); err != nil {
		return err
	}
	if err := m.Dtype.validate(); err != nil || m.Dtype.ByteSize <= 0 {
		return configErrorf("invalid dtype %s", m.Dtype)
	}
	if err := validateChunkBytes(m.Chunks, m.Dtype.ByteSize); err != nil {
		return err
	}
	if m.FillValue != nil && len(m.FillValue) != m.Dtype.ByteSize {
		return configErrorf("fill value has %d bytes, dtype %s needs %d", len(m.FillValue), m.Dtype, m.Dtype.ByteSize)
	}
	if m.Order != "C" {
		return configErrorf("unsupported order %q", m.Order)
	}
	return m.Compressor.validate()
}

func (m *ArrayMeta) separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

func readMeta(store Store, p Path) (*ArrayMeta, error) {
	f, err := store.Get(p.Join(string(MTArray)).String())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := &ArrayMeta{}
	if err := json.NewDecoder(f).Decode(m); err != nil {
		return nil, fmt.Errorf("reading %s metadata: %w", p, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("reading %s metadata: %w", p, err)
	}
	return m, nil
}

// arrayExists reports whether array metadata is stored at p.
func arrayExists(store Store, p Path) (bool, error) {
	r, err := store.Get(p.Join(string(MTArray)).String())
	switch {
	case errors.Is(err, ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, r.Close()
}

func writeMeta(store Store, p Path, m *ArrayMeta) error {
	// keep typestrs such as "<f8" readable
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return err
	}
	return store.Put(p.Join(string(MTArray)).String(), &buf)
}

// Path is a normalized "/"-separated logical key prefix.
type Path []string

// NewPath normalizes a logical path to ensure consistent behaviour across
// different storage systems:
//   - Replace all backward slash characters ("\") with forward slash characters ("/")
//   - Strip any leading "/" characters
//   - Strip any trailing "/" characters
//   - Collapse any sequence of more than one "/" character into a single "/" character
func NewPath(posix string) (Path, error) {
	posix = strings.ReplaceAll(posix, `\`, "/")
	var p Path
	for _, seg := range strings.Split(posix, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("invalid path segment %q in %q", seg, posix)
		}
		p = append(p, seg)
	}
	return p, nil
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

func (p Path) Join(elems ...string) Path {
	joined := make(Path, 0, len(p)+len(elems))
	joined = append(joined, p...)
	return append(joined, elems...)
}

// readAllClose drains and closes r.
func readAllClose(r io.ReadCloser) ([]byte, error) {
	defer r.Close()
	return io.ReadAll(r)
}
