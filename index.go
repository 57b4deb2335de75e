package ndarray

import (
	"fmt"
	"strconv"
	"strings"
)

type termKind uint8

const (
	termInt termKind = iota
	termSlice
	termEllipsis
)

// Index is a single term of an index expression: an integer, a slice, or an
// ellipsis. Build terms with Int, Slice, SliceFrom, SliceTo, All, Step and
// Ellipsis.
type Index struct {
	kind     termKind
	i        int64
	start    int64
	stop     int64
	step     int64
	hasStart bool
	hasStop  bool
	hasStep  bool
}

// Int selects a single position on an axis and drops that axis from read
// results. Negative values count from the end.
func Int(i int64) Index { return Index{kind: termInt, i: i} }

// Slice selects the half-open range [start, stop) on an axis.
func Slice(start, stop int64) Index {
	return Index{kind: termSlice, start: start, stop: stop, hasStart: true, hasStop: true}
}

// SliceFrom selects [start, extent).
func SliceFrom(start int64) Index {
	return Index{kind: termSlice, start: start, hasStart: true}
}

// SliceTo selects [0, stop).
func SliceTo(stop int64) Index {
	return Index{kind: termSlice, stop: stop, hasStop: true}
}

// All selects a whole axis.
func All() Index { return Index{kind: termSlice} }

// Ellipsis expands to as many All terms as needed to cover every axis.
func Ellipsis() Index { return Index{kind: termEllipsis} }

// Step returns a copy of a slice term with an explicit step. Only a step of 1
// is accepted when normalizing, and a step on an integer or ellipsis term is
// an ErrIndex.
func (ix Index) Step(step int64) Index {
	ix.step = step
	ix.hasStep = true
	return ix
}

func (ix Index) String() string {
	switch ix.kind {
	case termInt:
		return strconv.FormatInt(ix.i, 10)
	case termEllipsis:
		return "..."
	}
	var sb strings.Builder
	if ix.hasStart {
		sb.WriteString(strconv.FormatInt(ix.start, 10))
	}
	sb.WriteByte(':')
	if ix.hasStop {
		sb.WriteString(strconv.FormatInt(ix.stop, 10))
	}
	if ix.hasStep {
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(ix.step, 10))
	}
	return sb.String()
}

// Range is a concrete half-open interval along one axis.
type Range struct {
	Start int64
	Stop  int64
}

// Len returns the number of positions in the range.
func (r Range) Len() int64 { return r.Stop - r.Start }

// Key is a normalized index expression, one Range per axis.
type Key []Range

// DropMask flags the axes indexed by a bare integer. Those axes are removed
// from the shape of read results.
type DropMask []bool

// normalizers resolves a single term against an axis extent.
var normalizers = map[termKind]func(ix Index, axis int, extent int64) (Range, bool, error){
	termInt:   normalizeInt,
	termSlice: normalizeSlice,
}

// Normalize expands an index expression against shape into one concrete Range
// per axis and the matching drop mask.
func Normalize(key []Index, shape []int64) (Key, DropMask, error) {
	terms, err := expand(key, len(shape))
	if err != nil {
		return nil, nil, err
	}

	nk := make(Key, len(shape))
	mask := make(DropMask, len(shape))
	for axis, ix := range terms {
		norm, ok := normalizers[ix.kind]
		if !ok {
			return nil, nil, indexErrorf("invalid term %q at axis %d", ix, axis)
		}
		r, drop, err := norm(ix, axis, shape[axis])
		if err != nil {
			return nil, nil, err
		}
		nk[axis] = r
		mask[axis] = drop
	}
	return nk, mask, nil
}

// expand replaces an ellipsis and implicit trailing axes with All terms.
func expand(key []Index, rank int) ([]Index, error) {
	ellipsis := -1
	explicit := 0
	for i, ix := range key {
		if ix.kind == termEllipsis {
			if ix.hasStep {
				return nil, indexErrorf("an ellipsis cannot have a step")
			}
			if ellipsis >= 0 {
				return nil, indexErrorf("an index can only have a single ellipsis")
			}
			ellipsis = i
			continue
		}
		explicit++
	}
	if explicit > rank {
		return nil, indexErrorf("too many indices for array: array is %d-dimensional, but %d were indexed", rank, explicit)
	}

	terms := make([]Index, 0, rank)
	for i, ix := range key {
		if i == ellipsis {
			for j := 0; j < rank-explicit; j++ {
				terms = append(terms, All())
			}
			continue
		}
		terms = append(terms, ix)
	}
	for len(terms) < rank {
		terms = append(terms, All())
	}
	return terms, nil
}

func normalizeInt(ix Index, axis int, extent int64) (Range, bool, error) {
	if ix.hasStep {
		return Range{}, false, indexErrorf("integer index %d on axis %d cannot have a step", ix.i, axis)
	}
	i := ix.i
	if i < -extent || i >= extent {
		return Range{}, false, &IndexError{Axis: axis, Index: ix.i, Extent: extent}
	}
	if i < 0 {
		i += extent
	}
	return Range{Start: i, Stop: i + 1}, true, nil
}

func normalizeSlice(ix Index, axis int, extent int64) (Range, bool, error) {
	if ix.hasStep && ix.step != 1 {
		return Range{}, false, fmt.Errorf("%w: step %d on axis %d, only unit steps are supported", ErrUnsupported, ix.step, axis)
	}

	start, stop := int64(0), extent
	if ix.hasStart {
		start = clampBound(ix.start, extent)
	}
	if ix.hasStop {
		stop = clampBound(ix.stop, extent)
	}
	if start > stop {
		stop = start
	}
	return Range{Start: start, Stop: stop}, false, nil
}

// clampBound rebases negative bounds from the end and clamps to [0, extent].
func clampBound(b, extent int64) int64 {
	if b < 0 {
		b += extent
	}
	if b < 0 {
		return 0
	}
	if b > extent {
		return extent
	}
	return b
}

// ParseIndex parses a textual index expression such as "2, 1:4, ..." or
// ":, -1". An empty string selects everything.
func ParseIndex(s string) ([]Index, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	key := make([]Index, 0, len(parts))
	for _, p := range parts {
		ix, err := parseTerm(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		key = append(key, ix)
	}
	return key, nil
}

func parseTerm(s string) (Index, error) {
	if s == "..." {
		return Ellipsis(), nil
	}
	if !strings.Contains(s, ":") {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Index{}, indexErrorf("invalid index term %q", s)
		}
		return Int(i), nil
	}

	fields := strings.Split(s, ":")
	if len(fields) > 3 {
		return Index{}, indexErrorf("invalid slice %q", s)
	}
	ix := All()
	for n, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return Index{}, indexErrorf("invalid slice %q", s)
		}
		switch n {
		case 0:
			ix.start, ix.hasStart = v, true
		case 1:
			ix.stop, ix.hasStop = v, true
		case 2:
			ix = ix.Step(v)
		}
	}
	return ix, nil
}
