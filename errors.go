package ndarray

import (
	"errors"
	"fmt"
)

var (
	// ErrIndex is returned for index expressions that are out of bounds, have
	// the wrong rank, or are malformed.
	ErrIndex = errors.New("index error")
	// ErrUnsupported is returned for index features this package does not
	// implement, such as non-unit slice steps.
	ErrUnsupported = errors.New("unsupported feature")
	// ErrShapeMismatch is returned when a written value does not match the
	// shape of the region it is written to.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrSizeMismatch is returned when a source buffer length does not match
	// the declared shape and item size.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrConfiguration is returned for invalid shapes and layout parameters.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrInvalidResize is returned when a resize shrinks an axis or changes
	// the rank of an array.
	ErrInvalidResize = errors.New("invalid resize")
	// ErrUseAfterFree is returned by every operation on a closed array.
	ErrUseAfterFree = errors.New("array is closed")
	// ErrReadOnly is returned when mutating an array opened with ModeRead.
	ErrReadOnly = errors.New("array is read only")
)

// IndexError describes an integer index outside of an axis extent.
type IndexError struct {
	Axis   int
	Index  int64
	Extent int64
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d is out of bounds for axis %d with size %d", e.Index, e.Axis, e.Extent)
}

func (e *IndexError) Unwrap() error { return ErrIndex }

// ShapeMismatchError reports the expected and actual shapes of a write.
type ShapeMismatchError struct {
	Expected []int64
	Actual   []int64
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: expected %v, got %v", e.Expected, e.Actual)
}

func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func indexErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIndex, fmt.Sprintf(format, args...))
}
