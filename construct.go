package ndarray

import (
	"fmt"
)

// Empty creates an array of the given shape whose elements are not
// initialized. The default element type is |u1.
func Empty(shape []int64, opts ...Option) (*NDArray, error) {
	cfg := newConfig(opts)
	return create(shape, nil, cfg)
}

// Zeros creates an array of the given shape filled with zeros.
func Zeros(shape []int64, opts ...Option) (*NDArray, error) {
	cfg := newConfig(opts)
	return create(shape, make([]byte, max(cfg.Dtype.ByteSize, 0)), cfg)
}

// Full creates an array of the given shape with every element set to fill.
// Without WithDtype the element type follows the Go type of fill; a []byte or
// string fill always makes a |S<len> array unless WithDtype names a type of
// exactly that width.
func Full(shape []int64, fill interface{}, opts ...Option) (*NDArray, error) {
	cfg := newConfig(opts)
	if !cfg.dtypeSet || isByteString(fill) {
		dt, err := DtypeOf(fill)
		if err != nil {
			return nil, err
		}
		if !cfg.dtypeSet || cfg.Dtype.ByteSize != dt.ByteSize {
			cfg.Dtype = dt
		}
	}
	item, err := cfg.Dtype.EncodeScalar(fill)
	if err != nil {
		return nil, err
	}
	return create(shape, item, cfg)
}

func isByteString(v interface{}) bool {
	switch v.(type) {
	case []byte, string:
		return true
	}
	return false
}

// FromBuffer creates an array holding the row-major contents of data, which
// must be exactly product(shape) * itemsize bytes long.
func FromBuffer(data []byte, shape []int64, opts ...Option) (*NDArray, error) {
	cfg := newConfig(opts)
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if want := product(shape) * int64(cfg.Dtype.ByteSize); int64(len(data)) != want {
		return nil, fmt.Errorf("%w: buffer has %d bytes, shape %v of %s needs %d", ErrSizeMismatch, len(data), shape, cfg.Dtype, want)
	}

	a, err := create(shape, nil, cfg)
	if err != nil {
		return nil, err
	}
	r := FullRegion(shape)
	if err := a.store.WriteRegion(r.Start, r.Stop, data); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// AsArray creates a chunked array from any ArrayLike source, such as a Buffer
// or another NDArray. The element type follows the source unless WithDtype is
// given. A zero-dimensional source becomes a one element array.
func AsArray(v ArrayLike, opts ...Option) (*NDArray, error) {
	shape := v.Shape()
	if len(shape) == 0 {
		shape = []int64{1}
	}
	data, err := v.Bytes()
	if err != nil {
		return nil, err
	}
	return FromBuffer(data, shape, append([]Option{WithDtype(v.Dtype())}, opts...)...)
}

// Copy returns an independent copy of a. See NDArray.Copy.
func Copy(a *NDArray, opts ...Option) (*NDArray, error) {
	return a.Copy(opts...)
}

func create(shape []int64, fill []byte, cfg *Config) (*NDArray, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if err := cfg.Dtype.validate(); err != nil || cfg.Dtype.ByteSize <= 0 {
		return nil, configErrorf("invalid dtype %s", cfg.Dtype)
	}

	if cfg.Store != nil {
		p, err := NewPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		exists, err := arrayExists(cfg.Store, p)
		if err != nil {
			return nil, err
		}
		switch cfg.Mode {
		case ModeWrite:
		case ModeWriteFail:
			if exists {
				return nil, configErrorf("array already exists at %q", p)
			}
		case ModeReadWriteCreate:
			if exists {
				return Open(cfg.Store, cfg.Path, ModeReadWrite, WithNThreads(cfg.CParams.NThreads), WithLogger(cfg.Logger), WithMetrics(cfg.Metrics))
			}
		default:
			return nil, configErrorf("mode %q opens existing arrays, use Open", cfg.Mode)
		}
	}

	sc, err := cfg.storage(shape, fill)
	if err != nil {
		return nil, err
	}
	s, err := CreateChunkStore(sc)
	if err != nil {
		return nil, err
	}
	return newArray(s, ModeReadWrite), nil
}
