package ndarray

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/qri-io/dataset/compression"
)

// Codec names understood by CParams.
const (
	CodecNone = "none"
	CodecLZ4  = "lz4"
	CodecZstd = "zstd"
	CodecGzip = "gzip"
)

// Filter names understood by CParams.
const (
	FilterNone    = "nofilter"
	FilterShuffle = "shuffle"
	FilterDelta   = "delta"
)

// CParams are the compression parameters of a chunk store.
type CParams struct {
	Codec    string   `json:"codec"`
	Level    int      `json:"clevel"`
	Filters  []string `json:"filters,omitempty"`
	NThreads int      `json:"-"`
}

// DefaultCParams returns lz4 at level 5 with byte shuffle.
func DefaultCParams() CParams {
	return CParams{
		Codec:    CodecLZ4,
		Level:    5,
		Filters:  []string{FilterShuffle},
		NThreads: runtime.GOMAXPROCS(0),
	}
}

func (p CParams) validate() error {
	if _, ok := codecs[p.Codec]; !ok {
		return configErrorf("unknown codec %q", p.Codec)
	}
	if p.Level < 0 || p.Level > 9 {
		return configErrorf("compression level %d out of range [0, 9]", p.Level)
	}
	for _, f := range p.Filters {
		if _, ok := filters[f]; !ok {
			return configErrorf("unknown filter %q", f)
		}
	}
	return nil
}

// ActiveFilters lists the filters that transform data, skipping no-ops.
func (p CParams) ActiveFilters() []string {
	active := make([]string, 0, len(p.Filters))
	for _, f := range p.Filters {
		if f != FilterNone {
			active = append(active, f)
		}
	}
	return active
}

type codec interface {
	compress(src []byte, level int) ([]byte, error)
	decompress(src []byte, rawLen int) ([]byte, error)
}

var codecs = map[string]codec{
	CodecNone: noneCodec{},
	CodecLZ4:  lz4Codec{},
	CodecZstd: zstdCodec{},
	CodecGzip: streamCodec{format: "gzip"},
}

type noneCodec struct{}

func (noneCodec) compress(src []byte, _ int) ([]byte, error) { return nil, nil }

func (noneCodec) decompress(src []byte, _ int) ([]byte, error) {
	return nil, errors.New("none codec cannot hold compressed blocks")
}

type lz4Codec struct{}

func (lz4Codec) compress(src []byte, level int) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var (
		n   int
		err error
	)
	if level >= 9 {
		n, err = lz4.CompressBlockHC(src, dst, lz4.Level9, nil, nil)
	} else {
		n, err = lz4.CompressBlock(src, dst, nil)
	}
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// incompressible
		return nil, nil
	}
	return dst[:n], nil
}

func (lz4Codec) decompress(src []byte, rawLen int) ([]byte, error) {
	dst := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	if n != rawLen {
		return nil, errors.New("decompressed size mismatch")
	}
	return dst, nil
}

// zstd encoders are pooled per level, decoders are shared.
var (
	zstdEncoders [10]sync.Pool
	zstdDecoders sync.Pool
)

type zstdCodec struct{}

func (zstdCodec) compress(src []byte, level int) ([]byte, error) {
	pool := &zstdEncoders[level]
	enc, _ := pool.Get().(*zstd.Encoder)
	if enc == nil {
		var err error
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(level)), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
	}
	defer pool.Put(enc)
	return enc.EncodeAll(src, nil), nil
}

func (zstdCodec) decompress(src []byte, rawLen int) ([]byte, error) {
	dec, _ := zstdDecoders.Get().(*zstd.Decoder)
	if dec == nil {
		var err error
		dec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
	}
	defer zstdDecoders.Put(dec)

	out, err := dec.DecodeAll(src, make([]byte, 0, rawLen))
	if err != nil {
		return nil, err
	}
	if len(out) != rawLen {
		return nil, errors.New("decompressed size mismatch")
	}
	return out, nil
}

func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 2:
		return zstd.SpeedFastest
	case level <= 5:
		return zstd.SpeedDefault
	case level <= 7:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// streamCodec adapts the stream compressors of qri-io/dataset.
type streamCodec struct {
	format string
}

func (c streamCodec) compress(src []byte, _ int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := compression.Compressor(c.format, &buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c streamCodec) decompress(src []byte, rawLen int) ([]byte, error) {
	r, err := compression.Decompressor(c.format, io.NopCloser(bytes.NewReader(src)))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]byte, rawLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%s: %w", c.format, err)
	}
	return out, nil
}

type filter interface {
	forward(src []byte, itemsize int) []byte
	backward(src []byte, itemsize int) []byte
}

var filters = map[string]filter{
	FilterNone:    nopFilter{},
	FilterShuffle: shuffleFilter{},
	FilterDelta:   deltaFilter{},
}

type nopFilter struct{}

func (nopFilter) forward(src []byte, _ int) []byte  { return src }
func (nopFilter) backward(src []byte, _ int) []byte { return src }

// shuffleFilter groups byte k of every item together, so slowly varying high
// bytes form long runs.
type shuffleFilter struct{}

func (shuffleFilter) forward(src []byte, itemsize int) []byte {
	n := len(src) / itemsize
	if itemsize <= 1 || n == 0 {
		return src
	}
	out := make([]byte, len(src))
	for i := 0; i < n; i++ {
		for j := 0; j < itemsize; j++ {
			out[j*n+i] = src[i*itemsize+j]
		}
	}
	copy(out[n*itemsize:], src[n*itemsize:])
	return out
}

func (shuffleFilter) backward(src []byte, itemsize int) []byte {
	n := len(src) / itemsize
	if itemsize <= 1 || n == 0 {
		return src
	}
	out := make([]byte, len(src))
	for i := 0; i < n; i++ {
		for j := 0; j < itemsize; j++ {
			out[i*itemsize+j] = src[j*n+i]
		}
	}
	copy(out[n*itemsize:], src[n*itemsize:])
	return out
}

// deltaFilter stores each byte as the difference to the same byte of the
// previous item.
type deltaFilter struct{}

func (deltaFilter) forward(src []byte, itemsize int) []byte {
	out := make([]byte, len(src))
	copy(out, src[:min(itemsize, len(src))])
	for i := itemsize; i < len(src); i++ {
		out[i] = src[i] - src[i-itemsize]
	}
	return out
}

func (deltaFilter) backward(src []byte, itemsize int) []byte {
	out := make([]byte, len(src))
	copy(out, src[:min(itemsize, len(src))])
	for i := itemsize; i < len(src); i++ {
		out[i] = src[i] + out[i-itemsize]
	}
	return out
}

// blockHeaderSize frames every encoded block:
// [rawLen uint32][compLen uint32][payload]. compLen 0 means the payload is
// stored uncompressed.
const blockHeaderSize = 8

// blockCodec encodes and decodes single blocks for one parameter set.
type blockCodec struct {
	params   CParams
	itemsize int
	codec    codec
	chain    []filter
}

func newBlockCodec(p CParams, itemsize int) (*blockCodec, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	bc := &blockCodec{params: p, itemsize: itemsize, codec: codecs[p.Codec]}
	for _, name := range p.Filters {
		bc.chain = append(bc.chain, filters[name])
	}
	return bc, nil
}

func (bc *blockCodec) encode(raw []byte) ([]byte, error) {
	data := raw
	for _, f := range bc.chain {
		data = f.forward(data, bc.itemsize)
	}

	var compressed []byte
	if bc.params.Level > 0 && len(data) > 0 {
		var err error
		if compressed, err = bc.codec.compress(data, bc.params.Level); err != nil {
			return nil, fmt.Errorf("%s compress: %w", bc.params.Codec, err)
		}
	}

	payload := compressed
	if len(compressed) == 0 || len(compressed) >= len(data) {
		payload, compressed = data, nil
	}
	out := make([]byte, blockHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], payload)
	return out, nil
}

func (bc *blockCodec) decode(block []byte) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, errors.New("block too small for header")
	}
	rawLen := int(binary.LittleEndian.Uint32(block[0:]))
	compLen := int(binary.LittleEndian.Uint32(block[4:]))

	var data []byte
	if compLen == 0 {
		if len(block) < blockHeaderSize+rawLen {
			return nil, errors.New("block data too small")
		}
		data = make([]byte, rawLen)
		copy(data, block[blockHeaderSize:blockHeaderSize+rawLen])
	} else {
		if len(block) < blockHeaderSize+compLen {
			return nil, errors.New("compressed block data too small")
		}
		var err error
		data, err = bc.codec.decompress(block[blockHeaderSize:blockHeaderSize+compLen], rawLen)
		if err != nil {
			return nil, fmt.Errorf("%s decompress: %w", bc.params.Codec, err)
		}
	}

	for i := len(bc.chain) - 1; i >= 0; i-- {
		data = bc.chain[i].backward(data, bc.itemsize)
	}
	return data, nil
}
