package promstats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qri-io/ndarray-go"
)

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveChunkWrite(4096, 512, time.Millisecond)
	m.ObserveChunkWrite(4096, 256, 2*time.Millisecond)
	m.ObserveChunkRead(512, time.Microsecond)
	m.ObserveFillChunk()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.chunkWrites))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunkReads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fillChunks))
	assert.Equal(t, 8192.0, testutil.ToFloat64(m.rawBytes))
	assert.Equal(t, 768.0, testutil.ToFloat64(m.storedBytes))
}

func TestArrayMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	a, err := ndarray.Zeros([]int64{16, 16},
		ndarray.WithDtype(ndarray.Float32),
		ndarray.WithChunks(8, 16),
		ndarray.WithMetrics(m),
	)
	require.NoError(t, err)
	require.NoError(t, a.SetScalar([]ndarray.Index{ndarray.SliceTo(8)}, 1.5))
	_, err = a.ToBuffer()
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunkWrites))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunkReads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fillChunks))
	assert.Equal(t, float64(8*16*4), testutil.ToFloat64(m.rawBytes))

	n, err := testutil.GatherAndCount(reg, "ndarray_chunk_stored_size_bytes")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
