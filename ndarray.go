package ndarray

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Version is the current version of this library.
	Version = "0.1.0"
)

type PersistenceMode string

const (
	// Persistence mode:
	// ‘r’ means read only (must exist);
	ModeRead PersistenceMode = "r"
	//‘r+’ means read/write (must exist)
	ModeReadWrite PersistenceMode = "r+"
	// ‘a’ means read/write. Constructors given WithMode create the array if
	// it doesn’t exist; Open requires it to exist.
	ModeReadWriteCreate PersistenceMode = "a"
	// ‘w’ means create (overwrite if exists)
	ModeWrite PersistenceMode = "w"
	// ‘w-’ means create (fail if exists).
	ModeWriteFail PersistenceMode = "w-"
)

// Readable arrays materialize regions into uncompressed buffers.
type Readable interface {
	Get(key ...Index) (*Buffer, error)
	ToBuffer() ([]byte, error)
}

// Writable arrays accept array and scalar writes into regions.
type Writable interface {
	Set(key []Index, value ArrayLike) error
	SetScalar(key []Index, v interface{}) error
}

// Resizable arrays can grow along any axis.
type Resizable interface {
	Resize(shape ...int64) error
}

// NDArray is an N-dimensional view onto a chunked, compressed Storage. All
// physical I/O is delegated to the storage; the view only maps index
// expressions onto regions of it.
type NDArray struct {
	store Storage
	// axes maps every view axis to a storage axis. Storage axes missing from
	// the map were squeezed away and have extent 1.
	axes   []int
	mode   PersistenceMode
	closed bool
}

var (
	_ Readable  = (*NDArray)(nil)
	_ Writable  = (*NDArray)(nil)
	_ Resizable = (*NDArray)(nil)
	_ ArrayLike = (*NDArray)(nil)
)

func newArray(s Storage, mode PersistenceMode) *NDArray {
	axes := make([]int, len(s.Shape()))
	for i := range axes {
		axes[i] = i
	}
	return &NDArray{store: s, axes: axes, mode: mode}
}

// Wrap returns a view over an existing storage. The view and every other
// holder of s observe the same live bytes; s is released once all of them
// are closed.
func Wrap(s Storage) *NDArray {
	s.Retain()
	return newArray(s, ModeReadWrite)
}

// Open opens the array persisted at path of store. ModeRead rejects every
// mutation with ErrReadOnly. ModeReadWriteCreate behaves like ModeReadWrite
// here, so a missing array is an ErrNotFound. Creating needs a shape and is
// served by the constructors with WithMode.
func Open(store Store, path string, mode PersistenceMode, opts ...Option) (*NDArray, error) {
	switch mode {
	case ModeRead, ModeReadWrite, ModeReadWriteCreate:
	case ModeWrite, ModeWriteFail:
		return nil, configErrorf("mode %q creates arrays, use a constructor with WithMode", mode)
	default:
		return nil, configErrorf("unknown persistence mode %q", mode)
	}

	cfg := newConfig(opts)
	s, err := OpenChunkStore(StorageConfig{
		Store:   store,
		Path:    path,
		CParams: cfg.CParams,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return newArray(s, mode), nil
}

func (a *NDArray) live() error {
	if a.closed {
		return ErrUseAfterFree
	}
	return nil
}

func (a *NDArray) writable() error {
	if err := a.live(); err != nil {
		return err
	}
	if a.mode == ModeRead {
		return ErrReadOnly
	}
	return nil
}

// Shape returns the extent of every view axis.
func (a *NDArray) Shape() []int64 {
	return a.view(a.store.Shape())
}

// view projects a storage-rank vector onto the view axes.
func (a *NDArray) view(v []int64) []int64 {
	out := make([]int64, len(a.axes))
	for i, ax := range a.axes {
		out[i] = v[ax]
	}
	return out
}

func (a *NDArray) NDim() int { return len(a.axes) }

func (a *NDArray) Dtype() Dtype { return a.store.Dtype() }

func (a *NDArray) ItemSize() int { return a.store.ItemSize() }

func (a *NDArray) ChunkShape() []int64 { return a.view(a.store.ChunkShape()) }

func (a *NDArray) BlockShape() []int64 { return a.view(a.store.BlockShape()) }

func (a *NDArray) CParams() CParams { return a.store.CParams() }

func (a *NDArray) Codec() string { return a.store.CParams().Codec }

func (a *NDArray) Level() int { return a.store.CParams().Level }

// Filters lists the filters applied before compression, skipping no-ops.
func (a *NDArray) Filters() []string { return a.store.CParams().ActiveFilters() }

func (a *NDArray) CompressionRatio() float64 { return a.store.CompressionRatio() }

func (a *NDArray) Mode() PersistenceMode { return a.mode }

// Storage returns the collaborator backing the view.
func (a *NDArray) Storage() Storage { return a.store }

// Size returns the number of elements.
func (a *NDArray) Size() int64 { return product(a.Shape()) }

// resolve normalizes key against the view shape. It returns the region in
// view coordinates, the same region in storage coordinates, and the drop
// mask.
func (a *NDArray) resolve(key []Index) (Region, Region, DropMask, error) {
	shape := a.Shape()
	nk, drop, err := Normalize(key, shape)
	if err != nil {
		return Region{}, Region{}, nil, err
	}
	r, err := Resolve(nk, shape)
	if err != nil {
		return Region{}, Region{}, nil, err
	}
	return r, a.storeRegion(r), drop, nil
}

func (a *NDArray) storeRegion(r Region) Region {
	rank := len(a.store.ChunkShape())
	sr := Region{
		Start: make([]int64, rank),
		Stop:  ones(rank),
		Size:  r.Size,
	}
	for i, ax := range a.axes {
		sr.Start[ax] = r.Start[i]
		sr.Stop[ax] = r.Stop[i]
	}
	return sr
}

// Get reads the region selected by key into a new buffer. Axes indexed by an
// integer are dropped from the buffer shape. An empty key reads everything.
func (a *NDArray) Get(key ...Index) (*Buffer, error) {
	if err := a.live(); err != nil {
		return nil, err
	}
	r, sr, drop, err := a.resolve(key)
	if err != nil {
		return nil, err
	}
	buf := newZeroBuffer(r.Shape(drop), a.Dtype())
	if r.Empty() {
		return buf, nil
	}
	if err := a.store.ReadRegion(sr.Start, sr.Stop, buf.data); err != nil {
		return nil, err
	}
	return buf, nil
}

// Set writes value into the region selected by key. The value shape must
// match the region, with or without its integer-indexed axes. A
// zero-dimensional value is broadcast like a scalar. An *NDArray value is
// read in full first.
func (a *NDArray) Set(key []Index, value ArrayLike) error {
	if err := a.writable(); err != nil {
		return err
	}
	if value == nil {
		return fmt.Errorf("%w: nil value", ErrShapeMismatch)
	}
	r, sr, drop, err := a.resolve(key)
	if err != nil {
		return err
	}

	itemsize := a.ItemSize()
	if vs := value.Dtype().ByteSize; vs != itemsize {
		return fmt.Errorf("%w: value item size %d, array item size %d", ErrSizeMismatch, vs, itemsize)
	}
	vshape := value.Shape()
	if len(vshape) == 0 {
		item, err := value.Bytes()
		if err != nil {
			return err
		}
		return a.fill(r, sr, item)
	}
	if want := r.Shape(drop); !equalShape(vshape, want) && !equalShape(vshape, r.Shape(nil)) {
		return &ShapeMismatchError{Expected: want, Actual: vshape}
	}
	if r.Empty() {
		return nil
	}

	data, err := value.Bytes()
	if err != nil {
		return err
	}
	if want := r.Size * int64(itemsize); int64(len(data)) != want {
		return fmt.Errorf("%w: value holds %d bytes, region needs %d", ErrSizeMismatch, len(data), want)
	}
	return a.store.WriteRegion(sr.Start, sr.Stop, data)
}

// SetScalar writes v to every element of the region selected by key.
func (a *NDArray) SetScalar(key []Index, v interface{}) error {
	if err := a.writable(); err != nil {
		return err
	}
	r, sr, _, err := a.resolve(key)
	if err != nil {
		return err
	}
	item, err := a.Dtype().EncodeScalar(v)
	if err != nil {
		return err
	}
	return a.fill(r, sr, item)
}

func (a *NDArray) fill(r, sr Region, item []byte) error {
	if len(item) != a.ItemSize() {
		return fmt.Errorf("%w: scalar has %d bytes, array item size %d", ErrSizeMismatch, len(item), a.ItemSize())
	}
	if r.Empty() {
		return nil
	}
	return a.store.FillRegion(sr.Start, sr.Stop, item)
}

// ToBuffer returns the full contents, row-major.
func (a *NDArray) ToBuffer() ([]byte, error) {
	if err := a.live(); err != nil {
		return nil, err
	}
	return a.store.Export()
}

// Bytes implements ArrayLike.
func (a *NDArray) Bytes() ([]byte, error) { return a.ToBuffer() }

// Copy returns an independent array holding the same data. Without options
// the copy keeps the layout and compression parameters. WithChunks or
// WithBlocks re-plan it, filling in the missing shape against WithTarget.
func (a *NDArray) Copy(opts ...Option) (*NDArray, error) {
	if err := a.live(); err != nil {
		return nil, err
	}
	cfg := &Config{Dtype: a.Dtype(), CParams: a.store.CParams(), Target: DefaultTarget()}
	for _, opt := range opts {
		opt(cfg)
	}

	sc := StorageConfig{
		Store:   cfg.Store,
		Path:    cfg.Path,
		CParams: cfg.CParams,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	}
	if cfg.Chunks != nil || cfg.Blocks != nil {
		chunks, blocks, err := Plan(a.store.Shape(), a.ItemSize(), a.storeLayout(cfg.Chunks), a.storeLayout(cfg.Blocks), cfg.Target)
		if err != nil {
			return nil, err
		}
		sc.Chunks, sc.Blocks = chunks, blocks
	}

	s, err := a.store.Copy(sc)
	if err != nil {
		return nil, err
	}
	return &NDArray{store: s, axes: append([]int(nil), a.axes...), mode: ModeReadWrite}, nil
}

// storeLayout lifts a view-rank layout to the storage rank. Squeezed axes get
// extent 1.
func (a *NDArray) storeLayout(v []int64) []int64 {
	if v == nil || len(v) != len(a.axes) {
		return v
	}
	out := ones(len(a.store.ChunkShape()))
	for i, ax := range a.axes {
		out[ax] = v[i]
	}
	return out
}

// Resize grows the array to shape. The rank must be kept and no axis may
// shrink. Elements outside the old shape read as the fill value until they
// are written.
func (a *NDArray) Resize(shape ...int64) error {
	if err := a.writable(); err != nil {
		return err
	}
	if len(shape) != len(a.axes) {
		return fmt.Errorf("%w: new shape %v has rank %d, array has rank %d", ErrInvalidResize, shape, len(shape), len(a.axes))
	}
	target := a.store.Shape()
	for i, ax := range a.axes {
		target[ax] = shape[i]
	}
	return a.store.Resize(target)
}

// SubArray extracts the region selected by key into a new chunked array with
// its own, re-planned layout. Integer-indexed axes are removed; a fully
// integer-indexed key yields a one element array. The result keeps the
// element type and compression parameters unless opts override them.
func (a *NDArray) SubArray(key []Index, opts ...Option) (*NDArray, error) {
	buf, err := a.Get(key...)
	if err != nil {
		return nil, err
	}
	shape := buf.Shape()
	if len(shape) == 0 {
		shape = []int64{1}
	}
	base := []Option{WithDtype(a.Dtype()), WithCParams(a.store.CParams())}
	return FromBuffer(buf.data, shape, append(base, opts...)...)
}

// Squeeze removes every axis of extent 1 from the view. Stored bytes and
// the storage rank are untouched.
func (a *NDArray) Squeeze() error {
	if err := a.live(); err != nil {
		return err
	}
	shape := a.Shape()
	kept := a.axes[:0:0]
	for i, ax := range a.axes {
		if shape[i] != 1 {
			kept = append(kept, ax)
		}
	}
	a.axes = kept
	return nil
}

// Close releases the view. Every later call on it fails with
// ErrUseAfterFree.
func (a *NDArray) Close() error {
	if a.closed {
		return ErrUseAfterFree
	}
	a.closed = true
	return a.store.Close()
}

// InfoItem is one labelled line of an array summary.
type InfoItem struct {
	Key   string
	Value string
}

// InfoItems summarizes the array layout and compression.
func (a *NDArray) InfoItems() []InfoItem {
	return []InfoItem{
		{"Type", "NDArray"},
		{"Typesize", fmt.Sprint(a.ItemSize())},
		{"Shape", formatShape(a.Shape())},
		{"Chunks", formatShape(a.ChunkShape())},
		{"Blocks", formatShape(a.BlockShape())},
		{"Comp. codec", a.Codec()},
		{"Comp. level", fmt.Sprint(a.Level())},
		{"Comp. filters", "[" + strings.Join(a.Filters(), ", ") + "]"},
		{"Comp. ratio", fmt.Sprintf("%.2f", a.CompressionRatio())},
	}
}

// Info renders InfoItems as aligned "key : value" lines.
func (a *NDArray) Info() string {
	items := a.InfoItems()
	width := 0
	for _, it := range items {
		width = max(width, len(it.Key))
	}
	var sb strings.Builder
	for _, it := range items {
		fmt.Fprintf(&sb, "%-*s : %s\n", width, it.Key, it.Value)
	}
	return sb.String()
}

func formatShape(shape []int64) string {
	parts := make([]string, len(shape))
	for i, n := range shape {
		parts[i] = fmt.Sprint(n)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IsNotFound reports whether err means a key or array is missing from a
// store.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
