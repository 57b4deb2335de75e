package ndarray

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dtype is the element type of an array, written as a NumPy array protocol
// type string (typestr). The format consists of 3 parts:
//   - One character describing the byteorder of the data:
//     "<": little-endian; ">": big-endian; "|": not-relevant)
//   - One character code giving the basic type of the array:
//   - "b": Boolean (integer type where all values are only True or False)
//   - "i": integer;
//   - "u": unsigned integer
//   - "f": floating point
//   - "c": complex floating point
//   - "S": string (fixed-length sequence of char)
//   - "V": other (void * – each item is a fixed-size chunk of memory))
//   - An integer specifying the number of bytes the type uses.
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
}

var (
	_ json.Unmarshaler = (*Dtype)(nil)
	_ json.Marshaler   = (*Dtype)(nil)
)

var (
	Bool    = Dtype{BONotRelevant, BTBoolean, 1}
	Int8    = Dtype{BONotRelevant, BTInteger, 1}
	Int16   = Dtype{BOLittleEndian, BTInteger, 2}
	Int32   = Dtype{BOLittleEndian, BTInteger, 4}
	Int64   = Dtype{BOLittleEndian, BTInteger, 8}
	Uint8   = Dtype{BONotRelevant, BTUnsigned, 1}
	Uint16  = Dtype{BOLittleEndian, BTUnsigned, 2}
	Uint32  = Dtype{BOLittleEndian, BTUnsigned, 4}
	Uint64  = Dtype{BOLittleEndian, BTUnsigned, 8}
	Float32 = Dtype{BOLittleEndian, BTFloatingPoint, 4}
	Float64 = Dtype{BOLittleEndian, BTFloatingPoint, 8}
)

// String returns a fixed-length byte string type of n bytes.
func String(n int) Dtype { return Dtype{BONotRelevant, BTString, n} }

// Void returns an opaque type of n bytes.
func Void(n int) Dtype { return Dtype{BONotRelevant, BTOther, n} }

func ParseDtype(s string) (dt Dtype, err error) {
	// bug in python implementation uses HTML escape sequences when serializaing JSON
	s = strings.Replace(s, "&lt;", "<", 1)
	s = strings.Replace(s, "&gt;", ">", 1)

	if len(s) < 3 {
		return dt, fmt.Errorf("invalid Dtype string. %q is too short", s)
	}

	boByte, s := s[0], s[1:]
	dt.ByteOrder, err = ParseByteOrder(rune(boByte))
	if err != nil {
		return dt, err
	}

	typeByte, s := s[0], s[1:]
	dt.BasicType, err = ParseBasicType(rune(typeByte))
	if err != nil {
		return dt, err
	}

	size, err := strconv.ParseInt(s, 10, 0)
	if err != nil {
		return dt, fmt.Errorf("invalid Dtype size %q: %w", s, err)
	}
	if size <= 0 {
		return dt, fmt.Errorf("invalid Dtype size %d", size)
	}
	dt.ByteSize = int(size)

	return dt, dt.validate()
}

func (dt Dtype) validate() error {
	switch dt.BasicType {
	case BTBoolean:
		if dt.ByteSize != 1 {
			return fmt.Errorf("unsupported boolean size %d", dt.ByteSize)
		}
	case BTInteger, BTUnsigned:
		switch dt.ByteSize {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("unsupported integer size %d", dt.ByteSize)
		}
	case BTFloatingPoint:
		if dt.ByteSize != 4 && dt.ByteSize != 8 {
			return fmt.Errorf("unsupported float size %d", dt.ByteSize)
		}
	case BTComplex:
		if dt.ByteSize != 8 && dt.ByteSize != 16 {
			return fmt.Errorf("unsupported complex size %d", dt.ByteSize)
		}
	}
	return nil
}

func (dt Dtype) String() string {
	return fmt.Sprintf("%s%s%d", string(dt.ByteOrder), string(dt.BasicType), dt.ByteSize)
}

// ItemSize returns the width of a single element in bytes.
func (dt Dtype) ItemSize() int { return dt.ByteSize }

func (dt Dtype) order() binary.ByteOrder {
	if dt.ByteOrder == BOBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return []byte(`"` + dt.String() + `"`), nil
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return err
	}
	t, err := ParseDtype(s)
	if err != nil {
		return err
	}

	*dt = t
	return nil
}

// DtypeOf returns the natural element type of a Go scalar. A []byte or
// string value maps to a fixed-length byte string of its length.
func DtypeOf(v interface{}) (Dtype, error) {
	switch x := v.(type) {
	case bool:
		return Bool, nil
	case int8:
		return Int8, nil
	case int16:
		return Int16, nil
	case int32:
		return Int32, nil
	case int, int64:
		return Int64, nil
	case uint8:
		return Uint8, nil
	case uint16:
		return Uint16, nil
	case uint32:
		return Uint32, nil
	case uint, uint64:
		return Uint64, nil
	case float32:
		return Float32, nil
	case float64:
		return Float64, nil
	case complex64:
		return Dtype{BOLittleEndian, BTComplex, 8}, nil
	case complex128:
		return Dtype{BOLittleEndian, BTComplex, 16}, nil
	case []byte:
		if len(x) == 0 {
			return Dtype{}, configErrorf("byte string fill values cannot be empty")
		}
		return String(len(x)), nil
	case string:
		if len(x) == 0 {
			return Dtype{}, configErrorf("byte string fill values cannot be empty")
		}
		return String(len(x)), nil
	}
	return Dtype{}, configErrorf("no element type for %T", v)
}

// EncodeScalar converts a Go scalar into a single element of type dt.
func (dt Dtype) EncodeScalar(v interface{}) ([]byte, error) {
	out := make([]byte, dt.ByteSize)
	bo := dt.order()

	switch dt.BasicType {
	case BTString, BTOther:
		var raw []byte
		switch x := v.(type) {
		case []byte:
			raw = x
		case string:
			raw = []byte(x)
		default:
			return nil, fmt.Errorf("%w: cannot store %T in %s", ErrShapeMismatch, v, dt)
		}
		if len(raw) > dt.ByteSize {
			return nil, fmt.Errorf("%w: byte string of %d bytes does not fit %s", ErrSizeMismatch, len(raw), dt)
		}
		copy(out, raw)
		return out, nil
	case BTComplex:
		var c complex128
		switch x := v.(type) {
		case complex64:
			c = complex128(x)
		case complex128:
			c = x
		default:
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			c = complex(f, 0)
		}
		half := dt.ByteSize / 2
		if half == 4 {
			bo.PutUint32(out, math.Float32bits(float32(real(c))))
			bo.PutUint32(out[4:], math.Float32bits(float32(imag(c))))
		} else {
			bo.PutUint64(out, math.Float64bits(real(c)))
			bo.PutUint64(out[8:], math.Float64bits(imag(c)))
		}
		return out, nil
	case BTFloatingPoint:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if dt.ByteSize == 4 {
			bo.PutUint32(out, math.Float32bits(float32(f)))
		} else {
			bo.PutUint64(out, math.Float64bits(f))
		}
		return out, nil
	case BTBoolean, BTInteger, BTUnsigned:
		u, err := toBits(v)
		if err != nil {
			return nil, err
		}
		switch dt.ByteSize {
		case 1:
			out[0] = byte(u)
		case 2:
			bo.PutUint16(out, uint16(u))
		case 4:
			bo.PutUint32(out, uint32(u))
		case 8:
			bo.PutUint64(out, u)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: scalar encoding for %s", ErrUnsupported, dt)
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	}
	u, err := toBits(v)
	if err != nil {
		return 0, err
	}
	switch v.(type) {
	case uint, uint8, uint16, uint32, uint64:
		return float64(u), nil
	}
	return float64(int64(u)), nil
}

// toBits returns the two's complement bit pattern of an integer or boolean
// scalar. Floats are truncated toward zero.
func toBits(v interface{}) (uint64, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case int:
		return uint64(x), nil
	case int8:
		return uint64(x), nil
	case int16:
		return uint64(x), nil
	case int32:
		return uint64(x), nil
	case int64:
		return uint64(x), nil
	case uint:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	case float32:
		return uint64(int64(x)), nil
	case float64:
		return uint64(int64(x)), nil
	}
	return 0, fmt.Errorf("%w: %T is not a numeric scalar", ErrShapeMismatch, v)
}

type ByteOrder rune

func ParseByteOrder(r rune) (ByteOrder, error) {
	o := ByteOrder(r)
	if _, ok := byteOrders[o]; !ok {
		return o, fmt.Errorf("unsupported byte order format: %q", r)
	}
	return o, nil
}

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

var byteOrders = map[ByteOrder]struct{}{
	BONotRelevant:  {},
	BOLittleEndian: {},
	BOBigEndian:    {},
}

type BasicType rune

func ParseBasicType(r rune) (BasicType, error) {
	t := BasicType(r)
	if _, ok := supportedBasicTypes[t]; !ok {
		return t, fmt.Errorf("unsupported basic type: %q", r)
	}
	return t, nil
}

func (bt BasicType) Human() string {
	return supportedBasicTypes[bt]
}

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
	BTComplex       BasicType = 'c'
	BTString        BasicType = 'S'
	BTOther         BasicType = 'V'
)

var supportedBasicTypes = map[BasicType]string{
	BTBoolean:       "bool",
	BTInteger:       "int",
	BTUnsigned:      "uint",
	BTFloatingPoint: "float",
	BTComplex:       "complex",
	BTString:        "string",
	BTOther:         "void",
}
