package ndarray

import (
	"log/slog"
	"time"
)

// Storage is the chunked, compressed byte store an NDArray delegates all
// physical I/O to. Regions are half-open [start, stop) boxes in array
// coordinates; buffers are row-major and hold exactly the region elements.
type Storage interface {
	Shape() []int64
	ChunkShape() []int64
	BlockShape() []int64
	Dtype() Dtype
	ItemSize() int
	CParams() CParams
	// CompressionRatio is uncompressed chunk bytes over stored bytes, or 0
	// when nothing is stored yet.
	CompressionRatio() float64

	ReadRegion(start, stop []int64, dst []byte) error
	WriteRegion(start, stop []int64, src []byte) error
	// FillRegion writes a single encoded element to every position of a
	// region.
	FillRegion(start, stop []int64, item []byte) error
	Resize(shape []int64) error
	// Copy rewrites the full contents into a new store with the layout in cfg.
	Copy(cfg StorageConfig) (Storage, error)
	// Export returns the full array contents, row-major.
	Export() ([]byte, error)

	// Retain registers one more holder of the store.
	Retain()
	// Close releases one holder. The last Close releases the store.
	Close() error
}

// StorageConfig describes a store to create.
type StorageConfig struct {
	Store Store
	Path  string

	Shape  []int64
	Chunks []int64
	Blocks []int64
	Dtype  Dtype
	// FillValue is one encoded element used for unwritten chunks. Nil means
	// zeros.
	FillValue []byte
	CParams   CParams

	Logger  *slog.Logger
	Metrics Metrics
}

// Metrics receives chunk level I/O observations. A nil Metrics costs nothing.
type Metrics interface {
	ObserveChunkRead(stored int, d time.Duration)
	ObserveChunkWrite(raw, stored int, d time.Duration)
	ObserveFillChunk()
}

func observeRead(m Metrics, stored int, start time.Time) {
	if m != nil {
		m.ObserveChunkRead(stored, time.Since(start))
	}
}

func observeWrite(m Metrics, raw, stored int, start time.Time) {
	if m != nil {
		m.ObserveChunkWrite(raw, stored, time.Since(start))
	}
}

func observeFill(m Metrics) {
	if m != nil {
		m.ObserveFillChunk()
	}
}
