package ndarray

// Region is an axis-aligned bounding box [Start, Stop) over an array.
type Region struct {
	Start []int64
	Stop  []int64
	// Size is the number of elements inside the region.
	Size int64
}

// Resolve turns a normalized key into concrete start and stop coordinates.
func Resolve(key Key, shape []int64) (Region, error) {
	if len(key) != len(shape) {
		return Region{}, indexErrorf("key has %d axes, array has %d", len(key), len(shape))
	}
	r := Region{
		Start: make([]int64, len(key)),
		Stop:  make([]int64, len(key)),
		Size:  1,
	}
	for i, k := range key {
		r.Start[i] = k.Start
		r.Stop[i] = k.Stop
		r.Size *= k.Len()
	}
	return r, nil
}

// FullRegion covers a whole array of the given shape.
func FullRegion(shape []int64) Region {
	r := Region{
		Start: make([]int64, len(shape)),
		Stop:  append([]int64(nil), shape...),
		Size:  1,
	}
	for _, n := range shape {
		r.Size *= n
	}
	return r
}

// Empty reports whether the region holds no elements.
func (r Region) Empty() bool { return r.Size == 0 }

// Shape returns the extent of the region along every axis not flagged in
// drop. A nil mask keeps every axis.
func (r Region) Shape(drop DropMask) []int64 {
	shape := make([]int64, 0, len(r.Start))
	for i := range r.Start {
		if drop != nil && drop[i] {
			continue
		}
		shape = append(shape, r.Stop[i]-r.Start[i])
	}
	return shape
}
