package commands

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/qri-io/ndarray-go"
)

// parseScalar reads a single element of type dt from its text form.
func parseScalar(dt ndarray.Dtype, s string) (interface{}, error) {
	s = strings.TrimSpace(s)
	switch dt.BasicType {
	case ndarray.BTBoolean:
		return strconv.ParseBool(s)
	case ndarray.BTInteger:
		return strconv.ParseInt(s, 10, 64)
	case ndarray.BTUnsigned:
		return strconv.ParseUint(s, 10, 64)
	case ndarray.BTFloatingPoint:
		return strconv.ParseFloat(s, 64)
	case ndarray.BTComplex:
		return strconv.ParseComplex(s, 128)
	case ndarray.BTString, ndarray.BTOther:
		if len(s) > dt.ByteSize {
			return nil, fmt.Errorf("value %q is wider than %s", s, dt)
		}
		// padded to the full width so the element type is kept
		b := make([]byte, dt.ByteSize)
		copy(b, s)
		return b, nil
	}
	return nil, fmt.Errorf("cannot parse values of type %s", dt)
}

// formatValues renders each element of buf as text, row-major.
func formatValues(buf *ndarray.Buffer) []string {
	dt := buf.Dtype()
	data := buf.Data()
	var bo binary.ByteOrder = binary.LittleEndian
	if dt.ByteOrder == ndarray.BOBigEndian {
		bo = binary.BigEndian
	}

	out := make([]string, 0, buf.Len())
	for off := 0; off+dt.ByteSize <= len(data); off += dt.ByteSize {
		out = append(out, formatElement(dt, bo, data[off:off+dt.ByteSize]))
	}
	return out
}

func formatElement(dt ndarray.Dtype, bo binary.ByteOrder, b []byte) string {
	switch dt.BasicType {
	case ndarray.BTBoolean:
		return strconv.FormatBool(b[0] != 0)
	case ndarray.BTInteger:
		return strconv.FormatInt(signed(bo, b), 10)
	case ndarray.BTUnsigned:
		return strconv.FormatUint(unsigned(bo, b), 10)
	case ndarray.BTFloatingPoint:
		if len(b) == 4 {
			return strconv.FormatFloat(float64(math.Float32frombits(bo.Uint32(b))), 'g', -1, 32)
		}
		return strconv.FormatFloat(math.Float64frombits(bo.Uint64(b)), 'g', -1, 64)
	case ndarray.BTComplex:
		half := len(b) / 2
		if half == 4 {
			c := complex(math.Float32frombits(bo.Uint32(b)), math.Float32frombits(bo.Uint32(b[4:])))
			return strconv.FormatComplex(complex128(c), 'g', -1, 64)
		}
		c := complex(math.Float64frombits(bo.Uint64(b)), math.Float64frombits(bo.Uint64(b[8:])))
		return strconv.FormatComplex(c, 'g', -1, 128)
	case ndarray.BTString:
		return strconv.Quote(strings.TrimRight(string(b), "\x00"))
	}
	return fmt.Sprintf("%x", b)
}

func unsigned(bo binary.ByteOrder, b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(bo.Uint16(b))
	case 4:
		return uint64(bo.Uint32(b))
	}
	return bo.Uint64(b)
}

func signed(bo binary.ByteOrder, b []byte) int64 {
	switch len(b) {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(bo.Uint16(b)))
	case 4:
		return int64(int32(bo.Uint32(b)))
	}
	return int64(bo.Uint64(b))
}

func formatDims(dims []int64) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return strings.Join(parts, ",")
}
