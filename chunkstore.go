package ndarray

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ChunkStore is the Storage implementation of this package. Every chunk is
// split into blocks that are filtered and compressed independently, so reads
// only decode the blocks they touch. Encoded chunks and metadata live in a
// key-value Store:
//
//	<path>/.ndarray        JSON ArrayMeta
//	<path>/c/<i>.<j>...    encoded chunk
//
// An encoded chunk is a little-endian header [nblocks uint32][offset uint32...]
// followed by the encoded blocks, each holding its block-shaped, row-major,
// padded elements.
type ChunkStore struct {
	mu   sync.RWMutex
	kv   Store
	path Path
	meta ArrayMeta
	bc   *blockCodec
	fill []byte

	// grid of blocks inside one chunk
	blockGrid []int64
	nblocks   int

	statsMu sync.Mutex
	stored  map[string]int64

	refs    atomic.Int32
	log     *slog.Logger
	metrics Metrics
}

var _ Storage = (*ChunkStore)(nil)

// CreateChunkStore creates a new store, replacing any array previously kept
// at cfg.Path of cfg.Store.
func CreateChunkStore(cfg StorageConfig) (*ChunkStore, error) {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	p, err := NewPath(cfg.Path)
	if err != nil {
		return nil, err
	}
	meta := ArrayMeta{
		Format:     FormatVersion,
		Shape:      append([]int64(nil), cfg.Shape...),
		Chunks:     append([]int64(nil), cfg.Chunks...),
		Blocks:     append([]int64(nil), cfg.Blocks...),
		Dtype:      cfg.Dtype,
		Compressor: cfg.CParams,
		Order:      "C",
	}
	if cfg.FillValue != nil && !isZero(cfg.FillValue) {
		meta.FillValue = append([]byte(nil), cfg.FillValue...)
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}

	s, err := newChunkStore(cfg.Store, p, meta, cfg.Logger, cfg.Metrics)
	if err != nil {
		return nil, err
	}

	stale, err := cfg.Store.List(s.chunkPrefix())
	if err != nil {
		return nil, err
	}
	for _, key := range stale {
		if err := cfg.Store.Delete(key); err != nil {
			return nil, err
		}
	}
	if err := writeMeta(cfg.Store, p, &s.meta); err != nil {
		return nil, err
	}

	s.log.Debug("chunk store created",
		"path", p.String(),
		"shape", meta.Shape,
		"chunks", meta.Chunks,
		"blocks", meta.Blocks,
		"dtype", meta.Dtype.String(),
		"codec", meta.Compressor.Codec,
	)
	return s, nil
}

// OpenChunkStore opens the array persisted at cfg.Path of cfg.Store. Only the
// Store, Path, Logger, Metrics and CParams.NThreads fields of cfg are used.
func OpenChunkStore(cfg StorageConfig) (*ChunkStore, error) {
	if cfg.Store == nil {
		return nil, configErrorf("no store to open")
	}
	p, err := NewPath(cfg.Path)
	if err != nil {
		return nil, err
	}
	meta, err := readMeta(cfg.Store, p)
	if err != nil {
		return nil, err
	}
	meta.Compressor.NThreads = cfg.CParams.NThreads

	s, err := newChunkStore(cfg.Store, p, *meta, cfg.Logger, cfg.Metrics)
	if err != nil {
		return nil, err
	}

	keys, err := cfg.Store.List(s.chunkPrefix())
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		r, err := cfg.Store.Get(key)
		if err != nil {
			return nil, err
		}
		data, err := readAllClose(r)
		if err != nil {
			return nil, err
		}
		s.stored[key] = int64(len(data))
	}
	return s, nil
}

func newChunkStore(kv Store, p Path, meta ArrayMeta, logger *slog.Logger, m Metrics) (*ChunkStore, error) {
	if meta.Compressor.NThreads <= 0 {
		meta.Compressor.NThreads = runtime.GOMAXPROCS(0)
	}
	bc, err := newBlockCodec(meta.Compressor, meta.Dtype.ByteSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &ChunkStore{
		kv:        kv,
		path:      p,
		meta:      meta,
		bc:        bc,
		fill:      meta.FillValue,
		blockGrid: gridShape(meta.Chunks, meta.Blocks),
		stored:    map[string]int64{},
		log:       logger,
		metrics:   m,
	}
	if s.fill == nil {
		s.fill = make([]byte, meta.Dtype.ByteSize)
	}
	s.nblocks = int(product(s.blockGrid))
	s.refs.Store(1)
	return s, nil
}

func (s *ChunkStore) live() error {
	if s.refs.Load() <= 0 {
		return ErrUseAfterFree
	}
	return nil
}

func (s *ChunkStore) Shape() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.meta.Shape...)
}

func (s *ChunkStore) ChunkShape() []int64 { return append([]int64(nil), s.meta.Chunks...) }

func (s *ChunkStore) BlockShape() []int64 { return append([]int64(nil), s.meta.Blocks...) }

func (s *ChunkStore) Dtype() Dtype { return s.meta.Dtype }

func (s *ChunkStore) ItemSize() int { return s.meta.Dtype.ByteSize }

func (s *ChunkStore) CParams() CParams {
	p := s.meta.Compressor
	p.Filters = append([]string(nil), p.Filters...)
	return p
}

// Meta returns a copy of the persisted metadata.
func (s *ChunkStore) Meta() ArrayMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.meta
	m.Shape = append([]int64(nil), m.Shape...)
	return m
}

func (s *ChunkStore) chunkBytes() int64 {
	return product(s.meta.Chunks) * int64(s.meta.Dtype.ByteSize)
}

// NBytes returns the uncompressed size of all stored chunks.
func (s *ChunkStore) NBytes() int64 {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return int64(len(s.stored)) * s.chunkBytes()
}

// CBytes returns the stored size of all chunks.
func (s *ChunkStore) CBytes() int64 {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	var n int64
	for _, c := range s.stored {
		n += c
	}
	return n
}

func (s *ChunkStore) CompressionRatio() float64 {
	cbytes := s.CBytes()
	if cbytes == 0 {
		return 0
	}
	return float64(s.NBytes()) / float64(cbytes)
}

func (s *ChunkStore) Retain() {
	s.refs.Add(1)
}

func (s *ChunkStore) Close() error {
	n := s.refs.Add(-1)
	if n < 0 {
		s.refs.Store(0)
		return ErrUseAfterFree
	}
	if n == 0 {
		s.log.Debug("chunk store released", "path", s.path.String())
	}
	return nil
}

func (s *ChunkStore) ReadRegion(start, stop []int64, dst []byte) error {
	if err := s.live(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readRegion(start, stop, dst)
}

func (s *ChunkStore) readRegion(start, stop []int64, dst []byte) error {
	size, err := s.checkRegion(start, stop)
	if err != nil {
		return err
	}
	if want := size * int64(s.meta.Dtype.ByteSize); int64(len(dst)) != want {
		return fmt.Errorf("%w: read buffer has %d bytes, region needs %d", ErrSizeMismatch, len(dst), want)
	}
	if size == 0 {
		return nil
	}

	extent := subtract(stop, start)
	projs := projectRegion(start, stop, s.meta.Chunks)
	return s.parallel(len(projs), func(i int) error {
		return s.readChunk(projs[i], start, extent, dst)
	})
}

// readChunk copies the part of one chunk inside a region into dst, decoding
// only the blocks that intersect it.
func (s *ChunkStore) readChunk(p chunkProjection, regionStart, regionShape []int64, dst []byte) error {
	t := time.Now()
	blob, err := s.loadChunk(p.ChunkCoords)
	if errors.Is(err, ErrNotFound) {
		fillBox(dst, regionShape, subtract(p.Start, regionStart), subtract(p.Stop, p.Start), s.fill)
		observeFill(s.metrics)
		return nil
	}
	if err != nil {
		return err
	}
	offsets, err := s.blockOffsets(blob)
	if err != nil {
		return err
	}

	rank := len(p.Start)
	blocks := s.meta.Blocks
	itemsize := s.meta.Dtype.ByteSize
	lo := make([]int64, rank)
	hi := make([]int64, rank)
	for i := 0; i < rank; i++ {
		lo[i] = (p.Start[i] - p.Origin[i]) / blocks[i]
		hi[i] = (p.Stop[i] - 1 - p.Origin[i]) / blocks[i]
	}
	gs := strides(s.blockGrid)

	bcoords := append([]int64(nil), lo...)
	boxLo := make([]int64, rank)
	boxHi := make([]int64, rank)
	blockOrigin := make([]int64, rank)
	for {
		var idx int64
		for i := 0; i < rank; i++ {
			idx += bcoords[i] * gs[i]
			blockOrigin[i] = p.Origin[i] + bcoords[i]*blocks[i]
			boxLo[i] = max(p.Start[i], blockOrigin[i])
			boxHi[i] = min(p.Stop[i], blockOrigin[i]+blocks[i])
		}
		data, err := s.decodeBlock(blob, offsets, int(idx))
		if err != nil {
			return fmt.Errorf("chunk %v block %d: %w", p.ChunkCoords, idx, err)
		}
		copyBox(dst, regionShape, subtract(boxLo, regionStart),
			data, blocks, subtract(boxLo, blockOrigin),
			subtract(boxHi, boxLo), itemsize)

		if !nextCoord(bcoords, lo, hi) {
			break
		}
	}
	observeRead(s.metrics, len(blob), t)
	return nil
}

func (s *ChunkStore) WriteRegion(start, stop []int64, src []byte) error {
	if err := s.live(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	size, err := s.checkRegion(start, stop)
	if err != nil {
		return err
	}
	if want := size * int64(s.meta.Dtype.ByteSize); int64(len(src)) != want {
		return fmt.Errorf("%w: source has %d bytes, region needs %d", ErrSizeMismatch, len(src), want)
	}
	extent := subtract(stop, start)
	itemsize := s.meta.Dtype.ByteSize
	return s.writeRegion(start, stop, func(chunk []byte, p chunkProjection) {
		copyBox(chunk, s.meta.Chunks, subtract(p.Start, p.Origin),
			src, extent, subtract(p.Start, start),
			subtract(p.Stop, p.Start), itemsize)
	})
}

func (s *ChunkStore) FillRegion(start, stop []int64, item []byte) error {
	if err := s.live(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.checkRegion(start, stop); err != nil {
		return err
	}
	if len(item) != s.meta.Dtype.ByteSize {
		return fmt.Errorf("%w: fill item has %d bytes, dtype %s needs %d", ErrSizeMismatch, len(item), s.meta.Dtype, s.meta.Dtype.ByteSize)
	}
	return s.writeRegion(start, stop, func(chunk []byte, p chunkProjection) {
		fillBox(chunk, s.meta.Chunks, subtract(p.Start, p.Origin), subtract(p.Stop, p.Start), item)
	})
}

// writeRegion runs a read-modify-write cycle on every chunk intersecting the
// region. Chunks the region covers completely are not read.
func (s *ChunkStore) writeRegion(start, stop []int64, apply func(chunk []byte, p chunkProjection)) error {
	projs := projectRegion(start, stop, s.meta.Chunks)
	return s.parallel(len(projs), func(i int) error {
		p := projs[i]
		t := time.Now()

		var chunk []byte
		if p.covers(s.meta.Chunks, s.meta.Shape) {
			chunk = s.newChunkBuffer()
		} else {
			blob, err := s.loadChunk(p.ChunkCoords)
			switch {
			case errors.Is(err, ErrNotFound):
				chunk = s.newChunkBuffer()
			case err != nil:
				return err
			default:
				if chunk, err = s.decodeChunk(blob); err != nil {
					return fmt.Errorf("chunk %v: %w", p.ChunkCoords, err)
				}
			}
		}

		apply(chunk, p)

		blob, err := s.encodeChunk(chunk)
		if err != nil {
			return err
		}
		key := s.chunkKey(p.ChunkCoords)
		if err := s.kv.Put(key, bytes.NewReader(blob)); err != nil {
			return err
		}

		s.statsMu.Lock()
		s.stored[key] = int64(len(blob))
		s.statsMu.Unlock()

		observeWrite(s.metrics, len(chunk), len(blob), t)
		s.log.Debug("chunk stored", "key", key, "raw", len(chunk), "stored", len(blob))
		return nil
	})
}

// Resize grows the logical shape. The chunk grid keeps its chunk shape, so
// stored chunks keep their coordinates.
func (s *ChunkStore) Resize(shape []int64) error {
	if err := s.live(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(shape) != len(s.meta.Shape) {
		return fmt.Errorf("%w: new shape %v has rank %d, array has rank %d", ErrInvalidResize, shape, len(shape), len(s.meta.Shape))
	}
	for i, n := range shape {
		if n < s.meta.Shape[i] {
			return fmt.Errorf("%w: axis %d cannot shrink from %d to %d", ErrInvalidResize, i, s.meta.Shape[i], n)
		}
	}
	if _, ok := checkedProduct(shape); !ok {
		return fmt.Errorf("%w: shape %v holds too many elements", ErrInvalidResize, shape)
	}

	prev := s.meta.Shape
	s.meta.Shape = append([]int64(nil), shape...)
	if err := writeMeta(s.kv, s.path, &s.meta); err != nil {
		s.meta.Shape = prev
		return err
	}
	s.log.Debug("chunk store resized", "path", s.path.String(), "from", prev, "to", shape)
	return nil
}

// Copy writes the contents into a new store. Unset layout fields of cfg
// default to the layout of s.
func (s *ChunkStore) Copy(cfg StorageConfig) (Storage, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Store == s.kv {
		p, err := NewPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		if p.String() == s.path.String() {
			return nil, configErrorf("cannot copy array %q onto itself", p)
		}
	}
	cfg.Shape = append([]int64(nil), s.meta.Shape...)
	cfg.Dtype = s.meta.Dtype
	if cfg.FillValue == nil {
		cfg.FillValue = s.meta.FillValue
	}
	if cfg.Chunks == nil && cfg.Blocks == nil {
		cfg.Chunks, cfg.Blocks = s.meta.Chunks, s.meta.Blocks
	} else {
		chunks, blocks, err := Plan(cfg.Shape, s.meta.Dtype.ByteSize, cfg.Chunks, cfg.Blocks, DefaultTarget())
		if err != nil {
			return nil, err
		}
		cfg.Chunks, cfg.Blocks = chunks, blocks
	}
	if cfg.CParams.Codec == "" {
		cfg.CParams = s.CParams()
	}
	if cfg.Logger == nil {
		cfg.Logger = s.log
	}
	if cfg.Metrics == nil {
		cfg.Metrics = s.metrics
	}

	dst, err := CreateChunkStore(cfg)
	if err != nil {
		return nil, err
	}

	zero := make([]int64, len(cfg.Shape))
	for _, p := range projectRegion(zero, cfg.Shape, dst.meta.Chunks) {
		buf := make([]byte, product(subtract(p.Stop, p.Start))*int64(s.meta.Dtype.ByteSize))
		if err := s.readRegion(p.Start, p.Stop, buf); err != nil {
			dst.Close()
			return nil, err
		}
		if err := dst.WriteRegion(p.Start, p.Stop, buf); err != nil {
			dst.Close()
			return nil, err
		}
	}
	return dst, nil
}

func (s *ChunkStore) Export() ([]byte, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := FullRegion(s.meta.Shape)
	buf := make([]byte, r.Size*int64(s.meta.Dtype.ByteSize))
	if err := s.readRegion(r.Start, r.Stop, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *ChunkStore) checkRegion(start, stop []int64) (int64, error) {
	shape := s.meta.Shape
	if len(start) != len(shape) || len(stop) != len(shape) {
		return 0, indexErrorf("region rank %d/%d does not match array rank %d", len(start), len(stop), len(shape))
	}
	size := int64(1)
	for i := range shape {
		if start[i] < 0 || start[i] > stop[i] || stop[i] > shape[i] {
			return 0, indexErrorf("region [%d, %d) is out of bounds for axis %d with size %d", start[i], stop[i], i, shape[i])
		}
		size *= stop[i] - start[i]
	}
	return size, nil
}

func (s *ChunkStore) parallel(n int, fn func(i int) error) error {
	threads := s.meta.Compressor.NThreads
	if n <= 1 || threads <= 1 {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(threads)
	for i := 0; i < n; i++ {
		g.Go(func() error { return fn(i) })
	}
	return g.Wait()
}

func (s *ChunkStore) chunkPrefix() string {
	return s.path.Join("c").String() + "/"
}

func (s *ChunkStore) chunkKey(coords []int64) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.FormatInt(c, 10)
	}
	return s.path.Join("c", strings.Join(parts, s.meta.separator())).String()
}

func (s *ChunkStore) loadChunk(coords []int64) ([]byte, error) {
	r, err := s.kv.Get(s.chunkKey(coords))
	if err != nil {
		return nil, err
	}
	return readAllClose(r)
}

// newChunkBuffer returns a chunk sized buffer holding the fill value.
func (s *ChunkStore) newChunkBuffer() []byte {
	buf := make([]byte, s.chunkBytes())
	if !isZero(s.fill) {
		fillPattern(buf, s.fill)
	}
	return buf
}

func (s *ChunkStore) encodeChunk(chunk []byte) ([]byte, error) {
	rank := len(s.meta.Chunks)
	blocks := s.meta.Blocks
	itemsize := s.meta.Dtype.ByteSize
	blockLen := product(blocks) * int64(itemsize)

	header := 4 + 4*s.nblocks
	out := make([]byte, header, header+len(chunk)/2)
	binary.LittleEndian.PutUint32(out, uint32(s.nblocks))

	zero := make([]int64, rank)
	last := make([]int64, rank)
	for i := range last {
		last[i] = s.blockGrid[i] - 1
	}
	bcoords := make([]int64, rank)
	origin := make([]int64, rank)
	extent := make([]int64, rank)
	for idx := 0; ; idx++ {
		for i := 0; i < rank; i++ {
			origin[i] = bcoords[i] * blocks[i]
			extent[i] = min(blocks[i], s.meta.Chunks[i]-origin[i])
		}
		block := make([]byte, blockLen)
		if !isZero(s.fill) {
			fillPattern(block, s.fill)
		}
		copyBox(block, blocks, zero, chunk, s.meta.Chunks, origin, extent, itemsize)

		enc, err := s.bc.encode(block)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(out[4+4*idx:], uint32(len(out)))
		out = append(out, enc...)

		if !nextCoord(bcoords, zero, last) {
			break
		}
	}
	return out, nil
}

func (s *ChunkStore) decodeChunk(blob []byte) ([]byte, error) {
	offsets, err := s.blockOffsets(blob)
	if err != nil {
		return nil, err
	}
	rank := len(s.meta.Chunks)
	blocks := s.meta.Blocks
	chunk := s.newChunkBuffer()

	zero := make([]int64, rank)
	last := make([]int64, rank)
	for i := range last {
		last[i] = s.blockGrid[i] - 1
	}
	bcoords := make([]int64, rank)
	origin := make([]int64, rank)
	extent := make([]int64, rank)
	for idx := 0; ; idx++ {
		data, err := s.decodeBlock(blob, offsets, idx)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", idx, err)
		}
		for i := 0; i < rank; i++ {
			origin[i] = bcoords[i] * blocks[i]
			extent[i] = min(blocks[i], s.meta.Chunks[i]-origin[i])
		}
		copyBox(chunk, s.meta.Chunks, origin, data, blocks, zero, extent, s.meta.Dtype.ByteSize)

		if !nextCoord(bcoords, zero, last) {
			break
		}
	}
	return chunk, nil
}

func (s *ChunkStore) blockOffsets(blob []byte) ([]int, error) {
	if len(blob) < 4 {
		return nil, errors.New("chunk too small for header")
	}
	n := int(binary.LittleEndian.Uint32(blob))
	if n != s.nblocks {
		return nil, fmt.Errorf("chunk holds %d blocks, layout needs %d", n, s.nblocks)
	}
	header := 4 + 4*n
	if len(blob) < header {
		return nil, errors.New("chunk too small for block table")
	}
	offsets := make([]int, n+1)
	for i := 0; i < n; i++ {
		off := int(binary.LittleEndian.Uint32(blob[4+4*i:]))
		if off < header || off > len(blob) || (i > 0 && off < offsets[i-1]) {
			return nil, fmt.Errorf("invalid offset %d for block %d", off, i)
		}
		offsets[i] = off
	}
	offsets[n] = len(blob)
	return offsets, nil
}

func (s *ChunkStore) decodeBlock(blob []byte, offsets []int, idx int) ([]byte, error) {
	data, err := s.bc.decode(blob[offsets[idx]:offsets[idx+1]])
	if err != nil {
		return nil, err
	}
	if want := product(s.meta.Blocks) * int64(s.meta.Dtype.ByteSize); int64(len(data)) != want {
		return nil, fmt.Errorf("decoded block has %d bytes, want %d", len(data), want)
	}
	return data, nil
}
