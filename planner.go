package ndarray

import "math"

const (
	KiB int64 = 1 << 10
	MiB int64 = 1 << 20
)

// Target bounds the byte footprint of automatically planned chunks and blocks.
type Target struct {
	// ChunkBytes is the preferred uncompressed chunk size.
	ChunkBytes int64
	// MinChunkBytes and MaxChunkBytes clamp ChunkBytes.
	MinChunkBytes int64
	MaxChunkBytes int64
	// BlockBytes is the preferred uncompressed block size. When zero it is
	// ChunkBytes / BlockFraction.
	BlockBytes    int64
	BlockFraction int64
	// MinBlockBytes is the smallest block the codecs work well with.
	MinBlockBytes int64
}

// DefaultTarget returns the planning targets used when none are configured.
func DefaultTarget() Target {
	return Target{
		ChunkBytes:    4 * MiB,
		MinChunkBytes: 64 * KiB,
		MaxChunkBytes: 256 * MiB,
		BlockFraction: 16,
		MinBlockBytes: 16 * KiB,
	}
}

func (t Target) withDefaults() Target {
	d := DefaultTarget()
	if t.ChunkBytes <= 0 {
		t.ChunkBytes = d.ChunkBytes
	}
	if t.MinChunkBytes <= 0 {
		t.MinChunkBytes = d.MinChunkBytes
	}
	if t.MaxChunkBytes <= 0 {
		t.MaxChunkBytes = d.MaxChunkBytes
	}
	if t.MaxChunkBytes < t.MinChunkBytes {
		t.MaxChunkBytes = t.MinChunkBytes
	}
	if t.BlockFraction <= 0 {
		t.BlockFraction = d.BlockFraction
	}
	if t.MinBlockBytes <= 0 {
		t.MinBlockBytes = d.MinBlockBytes
	}
	return t
}

// byteBudgets returns the clamped chunk and block byte targets.
func (t Target) byteBudgets() (chunkBytes, blockBytes int64) {
	t = t.withDefaults()
	chunkBytes = clamp(t.ChunkBytes, t.MinChunkBytes, t.MaxChunkBytes)
	blockBytes = t.BlockBytes
	if blockBytes <= 0 {
		blockBytes = chunkBytes / t.BlockFraction
	}
	blockBytes = clamp(blockBytes, t.MinBlockBytes, chunkBytes)
	return chunkBytes, blockBytes
}

// Plan computes the chunk and block shapes of an array. Explicit chunks and
// blocks are validated and used as given; missing ones are derived from the
// byte budgets in t, scaled by itemsize.
func Plan(shape []int64, itemsize int, chunks, blocks []int64, t Target) ([]int64, []int64, error) {
	if err := validateShape(shape); err != nil {
		return nil, nil, err
	}
	if itemsize <= 0 {
		return nil, nil, configErrorf("item size must be positive, got %d", itemsize)
	}
	if chunks != nil {
		if err := validateLayout("chunk", shape, chunks); err != nil {
			return nil, nil, err
		}
		chunks = append([]int64(nil), chunks...)
	}
	if blocks != nil {
		if err := validateLayout("block", shape, blocks); err != nil {
			return nil, nil, err
		}
		blocks = append([]int64(nil), blocks...)
	}

	chunkBytes, blockBytes := t.byteBudgets()
	chunkItems := maxInt64(chunkBytes/int64(itemsize), 1)
	blockItems := maxInt64(blockBytes/int64(itemsize), 1)

	switch {
	case chunks != nil && blocks != nil:
	case chunks != nil:
		blocks = partition(blockItems, chunks, ones(len(shape)))
	case blocks != nil:
		chunks = partition(chunkItems, shape, blocks)
	default:
		blocks = partition(blockItems, shape, ones(len(shape)))
		if total, ok := mulInt64(product(shape), int64(itemsize)); ok && total <= chunkBytes {
			chunks = append([]int64(nil), shape...)
		} else {
			chunks = partition(chunkItems, shape, blocks)
		}
	}

	if err := validatePlan(shape, chunks, blocks); err != nil {
		return nil, nil, err
	}
	if err := validateChunkBytes(chunks, itemsize); err != nil {
		return nil, nil, err
	}
	return chunks, blocks, nil
}

// partition grows a shape from minpart until it holds at least nitems
// elements or reaches maxshape. Each step grows the axis with the most
// remaining room relative to its current size, so partitions stay compact.
// Growth on an axis stays a multiple of its minpart entry where possible.
func partition(nitems int64, maxshape, minpart []int64) []int64 {
	part := append([]int64(nil), minpart...)
	limit := make([]int64, len(maxshape))
	for i := range maxshape {
		limit[i] = maxInt64(maxshape[i], part[i])
	}

	size := product(part)
	for size < nitems {
		best := -1
		bestRatio := 0.0
		for i := len(part) - 1; i >= 0; i-- {
			if part[i] >= limit[i] {
				continue
			}
			ratio := float64(limit[i]) / float64(part[i])
			if ratio > bestRatio {
				best, bestRatio = i, ratio
			}
		}
		if best < 0 {
			break
		}

		other := size / part[best]
		need := roundUp(ceilDiv(nitems, other), minpart[best])
		next := part[best] * 2
		if need < next {
			next = need
		}
		if next > limit[best] {
			next = limit[best]
		}
		part[best] = next
		size = other * next
	}
	return part
}

func validateShape(shape []int64) error {
	if len(shape) == 0 {
		return configErrorf("shape must have at least one dimension")
	}
	for i, n := range shape {
		if n <= 0 {
			return configErrorf("shape extent %d on axis %d must be positive", n, i)
		}
	}
	if _, ok := checkedProduct(shape); !ok {
		return configErrorf("shape %v holds more than %d elements", shape, int64(math.MaxInt64))
	}
	return nil
}

// validateChunkBytes bounds the uncompressed chunk size by the uint32 block
// offsets of the chunk header.
func validateChunkBytes(chunks []int64, itemsize int) error {
	n, ok := checkedProduct(chunks)
	if ok {
		n, ok = mulInt64(n, int64(itemsize))
	}
	if !ok || n > math.MaxUint32 {
		return configErrorf("chunk shape %v of %d byte items exceeds the %d byte chunk limit", chunks, itemsize, uint64(math.MaxUint32))
	}
	return nil
}

func validateLayout(name string, shape, layout []int64) error {
	if len(layout) != len(shape) {
		return configErrorf("%s shape %v has rank %d, array has rank %d", name, layout, len(layout), len(shape))
	}
	for i, n := range layout {
		if n <= 0 {
			return configErrorf("%s extent %d on axis %d must be positive", name, n, i)
		}
	}
	return nil
}

func validatePlan(shape, chunks, blocks []int64) error {
	if err := validateLayout("chunk", shape, chunks); err != nil {
		return err
	}
	if err := validateLayout("block", shape, blocks); err != nil {
		return err
	}
	for i := range chunks {
		if blocks[i] > chunks[i] {
			return configErrorf("block shape %v exceeds chunk shape %v on axis %d", blocks, chunks, i)
		}
	}
	return nil
}

func product(shape []int64) int64 {
	p := int64(1)
	for _, n := range shape {
		p *= n
	}
	return p
}

// checkedProduct is product for positive extents, reporting overflow.
func checkedProduct(shape []int64) (int64, bool) {
	p := int64(1)
	for _, n := range shape {
		var ok bool
		if p, ok = mulInt64(p, n); !ok {
			return 0, false
		}
	}
	return p, true
}

// mulInt64 multiplies non-negative a and b, reporting overflow.
func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

func ones(n int) []int64 {
	s := make([]int64, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

func ceilDiv(a, b int64) int64 { return (a + b - 1) / b }

func roundUp(a, m int64) int64 { return ceilDiv(a, m) * m }

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
