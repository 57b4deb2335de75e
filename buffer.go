package ndarray

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ArrayLike is any source of row-major element bytes with a shape.
type ArrayLike interface {
	Shape() []int64
	Dtype() Dtype
	// Bytes returns the row-major contents, len == product(Shape) * ItemSize.
	Bytes() ([]byte, error)
}

// Buffer is an uncompressed, row-major array held in memory. Reads return
// Buffers and writes accept them.
type Buffer struct {
	shape []int64
	dtype Dtype
	data  []byte
}

var _ ArrayLike = (*Buffer)(nil)

// NewBuffer wraps data as an array of the given shape and type. The length of
// data must match the shape exactly.
func NewBuffer(data []byte, shape []int64, dt Dtype) (*Buffer, error) {
	if dt.ByteSize <= 0 {
		return nil, configErrorf("invalid dtype %s", dt)
	}
	for i, n := range shape {
		if n < 0 {
			return nil, configErrorf("negative extent %d on axis %d", n, i)
		}
	}
	want := product(shape) * int64(dt.ByteSize)
	if int64(len(data)) != want {
		return nil, fmt.Errorf("%w: buffer has %d bytes, shape %v of %s needs %d", ErrSizeMismatch, len(data), shape, dt, want)
	}
	return &Buffer{shape: append([]int64(nil), shape...), dtype: dt, data: data}, nil
}

func newZeroBuffer(shape []int64, dt Dtype) *Buffer {
	return &Buffer{
		shape: append([]int64(nil), shape...),
		dtype: dt,
		data:  make([]byte, product(shape)*int64(dt.ByteSize)),
	}
}

func (b *Buffer) Shape() []int64 { return append([]int64(nil), b.shape...) }

func (b *Buffer) Dtype() Dtype { return b.dtype }

func (b *Buffer) Bytes() ([]byte, error) { return b.data, nil }

// Data returns the underlying bytes without copying.
func (b *Buffer) Data() []byte { return b.data }

// Len returns the number of elements.
func (b *Buffer) Len() int64 { return product(b.shape) }

// Number is the set of Go types with a fixed-width element encoding.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// DtypeFor returns the element type matching T. Multi-byte types are
// little-endian.
func DtypeFor[T Number]() Dtype {
	size := sizeOf[T]()
	bt := BTUnsigned
	switch {
	case isFloat[T]():
		bt = BTFloatingPoint
	case isSigned[T]():
		bt = BTInteger
	}
	bo := BOLittleEndian
	if size == 1 {
		bo = BONotRelevant
	}
	return Dtype{ByteOrder: bo, BasicType: bt, ByteSize: size}
}

func sizeOf[T Number]() int {
	return binary.Size(*new(T))
}

func isFloat[T Number]() bool {
	var one T = 1
	return one/2 != 0
}

func isSigned[T Number]() bool {
	var zero T
	return zero-1 < zero
}

// FromSlice packs vals into a little-endian Buffer of the given shape. With
// no shape, the buffer is one-dimensional.
func FromSlice[T Number](vals []T, shape ...int64) (*Buffer, error) {
	if len(shape) == 0 {
		shape = []int64{int64(len(vals))}
	}
	dt := DtypeFor[T]()
	data := make([]byte, len(vals)*dt.ByteSize)
	for i, v := range vals {
		putNumber(data[i*dt.ByteSize:], v, dt)
	}
	return NewBuffer(data, shape, dt)
}

// Values decodes a Buffer into a slice of T. The buffer item size must match
// the width of T.
func Values[T Number](b *Buffer) ([]T, error) {
	dt := DtypeFor[T]()
	if b.dtype.ByteSize != dt.ByteSize || b.dtype.BasicType != dt.BasicType {
		return nil, fmt.Errorf("%w: cannot decode %s as %s", ErrSizeMismatch, b.dtype, dt)
	}
	bo := b.dtype.order()
	out := make([]T, b.Len())
	for i := range out {
		raw := b.data[i*dt.ByteSize:]
		switch dt.ByteSize {
		case 1:
			out[i] = fromBits[T](uint64(raw[0]), 1)
		case 2:
			out[i] = fromBits[T](uint64(bo.Uint16(raw)), 2)
		case 4:
			out[i] = fromBits[T](uint64(bo.Uint32(raw)), 4)
		case 8:
			out[i] = fromBits[T](bo.Uint64(raw), 8)
		}
	}
	return out, nil
}

func putNumber[T Number](dst []byte, v T, dt Dtype) {
	bo := dt.order()
	var bits uint64
	switch {
	case isFloat[T]() && dt.ByteSize == 4:
		bits = uint64(math.Float32bits(float32(v)))
	case isFloat[T]():
		bits = math.Float64bits(float64(v))
	case isSigned[T]():
		bits = uint64(int64(v))
	default:
		bits = uint64(v)
	}
	switch dt.ByteSize {
	case 1:
		dst[0] = byte(bits)
	case 2:
		bo.PutUint16(dst, uint16(bits))
	case 4:
		bo.PutUint32(dst, uint32(bits))
	case 8:
		bo.PutUint64(dst, bits)
	}
}

func fromBits[T Number](bits uint64, size int) T {
	switch {
	case isFloat[T]() && size == 4:
		return T(math.Float32frombits(uint32(bits)))
	case isFloat[T]():
		return T(math.Float64frombits(bits))
	case isSigned[T]():
		switch size {
		case 1:
			return T(int8(bits))
		case 2:
			return T(int16(bits))
		case 4:
			return T(int32(bits))
		}
		return T(int64(bits))
	}
	return T(bits)
}
