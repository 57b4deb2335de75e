// Package promstats exports chunk store I/O as Prometheus metrics.
package promstats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/qri-io/ndarray-go"
)

// Metrics is the Prometheus implementation of ndarray.Metrics.
type Metrics struct {
	chunkReads    prometheus.Counter
	chunkWrites   prometheus.Counter
	fillChunks    prometheus.Counter
	rawBytes      prometheus.Counter
	storedBytes   prometheus.Counter
	readDuration  prometheus.Histogram
	writeDuration prometheus.Histogram
	chunkSize     *prometheus.HistogramVec
}

var _ ndarray.Metrics = (*Metrics)(nil)

var durationBuckets = []float64{
	0.01, // 10us - cached small chunks
	0.1,
	0.5,
	1,
	5,
	10,
	50,
	100,
	500, // large zstd chunks
}

var sizeBuckets = []float64{
	1024,
	16384,
	65536,
	262144,
	1048576,
	4194304, // default chunk target
	16777216,
	67108864,
}

// New registers the chunk store metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		chunkReads: f.NewCounter(prometheus.CounterOpts{
			Name: "ndarray_chunk_reads_total",
			Help: "Total number of stored chunks decoded for reads",
		}),
		chunkWrites: f.NewCounter(prometheus.CounterOpts{
			Name: "ndarray_chunk_writes_total",
			Help: "Total number of chunks encoded and stored",
		}),
		fillChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "ndarray_fill_chunks_total",
			Help: "Total number of reads served from the fill value of an unwritten chunk",
		}),
		rawBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "ndarray_chunk_raw_bytes_total",
			Help: "Uncompressed bytes of all chunks written",
		}),
		storedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "ndarray_chunk_stored_bytes_total",
			Help: "Encoded bytes of all chunks written",
		}),
		readDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ndarray_chunk_read_duration_milliseconds",
			Help:    "Duration of loading and decoding one chunk in milliseconds",
			Buckets: durationBuckets,
		}),
		writeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ndarray_chunk_write_duration_milliseconds",
			Help:    "Duration of encoding and storing one chunk in milliseconds",
			Buckets: durationBuckets,
		}),
		chunkSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ndarray_chunk_stored_size_bytes",
			Help:    "Distribution of encoded chunk sizes",
			Buckets: sizeBuckets,
		}, []string{"op"}), // "read", "write"
	}
}

func (m *Metrics) ObserveChunkRead(stored int, d time.Duration) {
	m.chunkReads.Inc()
	m.readDuration.Observe(milliseconds(d))
	m.chunkSize.WithLabelValues("read").Observe(float64(stored))
}

func (m *Metrics) ObserveChunkWrite(raw, stored int, d time.Duration) {
	m.chunkWrites.Inc()
	m.rawBytes.Add(float64(raw))
	m.storedBytes.Add(float64(stored))
	m.writeDuration.Observe(milliseconds(d))
	m.chunkSize.WithLabelValues("write").Observe(float64(stored))
}

func (m *Metrics) ObserveFillChunk() {
	m.fillChunks.Inc()
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
