package ndarray

// A mapping of items from a chunk to a region. Can be used to extract items
// from the chunk array for loading into an output array. Can also be used to
// extract items from a value array for setting/updating in a chunk array.
type chunkProjection struct {
	// Indices of chunk
	ChunkCoords []int64
	// Origin of the chunk in array coordinates.
	Origin []int64
	// Intersection of the chunk and the region, in array coordinates.
	Start []int64
	Stop  []int64
}

// covers reports whether the projection spans every in-bounds element of its
// chunk.
func (p chunkProjection) covers(chunks, shape []int64) bool {
	for i := range p.Start {
		end := p.Origin[i] + chunks[i]
		if end > shape[i] {
			end = shape[i]
		}
		if p.Start[i] != p.Origin[i] || p.Stop[i] != end {
			return false
		}
	}
	return true
}

// projectRegion lists the chunks of a grid with the given chunk shape that
// intersect [start, stop), in row-major chunk order.
func projectRegion(start, stop, chunks []int64) []chunkProjection {
	rank := len(start)
	lo := make([]int64, rank)
	hi := make([]int64, rank)
	for i := 0; i < rank; i++ {
		if stop[i] <= start[i] {
			return nil
		}
		lo[i] = start[i] / chunks[i]
		hi[i] = (stop[i] - 1) / chunks[i]
	}

	var out []chunkProjection
	coords := append([]int64(nil), lo...)
	for {
		p := chunkProjection{
			ChunkCoords: append([]int64(nil), coords...),
			Origin:      make([]int64, rank),
			Start:       make([]int64, rank),
			Stop:        make([]int64, rank),
		}
		for i := 0; i < rank; i++ {
			p.Origin[i] = coords[i] * chunks[i]
			p.Start[i] = max(start[i], p.Origin[i])
			p.Stop[i] = min(stop[i], p.Origin[i]+chunks[i])
		}
		out = append(out, p)

		if !nextCoord(coords, lo, hi) {
			return out
		}
	}
}

// nextCoord advances coords in row-major order within [lo, hi] inclusive.
func nextCoord(coords, lo, hi []int64) bool {
	for i := len(coords) - 1; i >= 0; i-- {
		if coords[i] < hi[i] {
			coords[i]++
			return true
		}
		coords[i] = lo[i]
	}
	return false
}

// gridShape returns the number of chunks along each axis.
func gridShape(shape, chunks []int64) []int64 {
	g := make([]int64, len(shape))
	for i := range shape {
		g[i] = ceilDiv(shape[i], chunks[i])
	}
	return g
}

func strides(shape []int64) []int64 {
	s := make([]int64, len(shape))
	acc := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// copyBox copies a box of the given extent between two row-major arrays.
// Offsets are the box origin inside each array.
func copyBox(dst []byte, dstShape, dstOff []int64, src []byte, srcShape, srcOff []int64, extent []int64, itemsize int) {
	rank := len(extent)
	for _, n := range extent {
		if n <= 0 {
			return
		}
	}
	ds := strides(dstShape)
	ss := strides(srcShape)
	row := int(extent[rank-1]) * itemsize

	idx := make([]int64, rank)
	zero := make([]int64, rank)
	last := make([]int64, rank)
	for i := range extent {
		last[i] = extent[i] - 1
	}
	last[rank-1] = 0

	for {
		var d, s int64
		for i := 0; i < rank; i++ {
			d += (dstOff[i] + idx[i]) * ds[i]
			s += (srcOff[i] + idx[i]) * ss[i]
		}
		di, si := int(d)*itemsize, int(s)*itemsize
		copy(dst[di:di+row], src[si:si+row])

		if !nextCoord(idx, zero, last) {
			return
		}
	}
}

// fillBox writes item into every element of a box inside a row-major array.
func fillBox(dst []byte, dstShape, dstOff []int64, extent []int64, item []byte) {
	rank := len(extent)
	for _, n := range extent {
		if n <= 0 {
			return
		}
	}
	itemsize := len(item)
	ds := strides(dstShape)
	row := int(extent[rank-1]) * itemsize

	idx := make([]int64, rank)
	zero := make([]int64, rank)
	last := make([]int64, rank)
	for i := range extent {
		last[i] = extent[i] - 1
	}
	last[rank-1] = 0

	for {
		var d int64
		for i := 0; i < rank; i++ {
			d += (dstOff[i] + idx[i]) * ds[i]
		}
		di := int(d) * itemsize
		fillPattern(dst[di:di+row], item)

		if !nextCoord(idx, zero, last) {
			return
		}
	}
}

// fillPattern repeats item across dst, doubling the copied span each step.
func fillPattern(dst, item []byte) {
	if len(dst) == 0 {
		return
	}
	n := copy(dst, item)
	for n < len(dst) {
		n += copy(dst[n:], dst[:n])
	}
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func subtract(a, b []int64) []int64 {
	out := make([]int64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}
