package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope reported to OpenTelemetry.
const meterName = "github.com/wayneeseguin/spool"

// Collector handles metrics collection for a sink. Counters are kept locally
// for cheap snapshots and mirrored to OpenTelemetry instruments.
type Collector struct {
	// Producer side
	entriesAccepted uint64
	entriesRejected uint64

	// Worker side
	flushCount   uint64
	bytesWritten uint64
	bytesDropped uint64
	writeCount   uint64
	totalWriteNs int64
	maxWriteNs   int64

	// Rotation and retention
	rotationCount      uint64
	compressionCount   uint64
	compressionFailed  uint64
	compressionSkipped uint64
	inlineCompressions uint64
	archivesPruned     uint64

	// Error metrics
	errorCount     uint64
	errorsBySource sync.Map // map[string]*atomic.Uint64

	entries      metric.Int64Counter
	written      metric.Int64Counter
	dropped      metric.Int64Counter
	rotations    metric.Int64Counter
	compressions metric.Int64Counter
	pruned       metric.Int64Counter
	errors       metric.Int64Counter
	writeLatency metric.Float64Histogram
}

// Metrics is a point-in-time snapshot of a Collector.
type Metrics struct {
	EntriesAccepted uint64 `json:"entries_accepted"`
	EntriesRejected uint64 `json:"entries_rejected"`

	FlushCount   uint64 `json:"flush_count"`
	BytesWritten uint64 `json:"bytes_written"`
	BytesDropped uint64 `json:"bytes_dropped"`

	RotationCount      uint64 `json:"rotation_count"`
	CompressionCount   uint64 `json:"compression_count"`
	CompressionFailed  uint64 `json:"compression_failed"`
	CompressionSkipped uint64 `json:"compression_skipped"`
	InlineCompressions uint64 `json:"inline_compressions"`
	ArchivesPruned     uint64 `json:"archives_pruned"`

	ErrorCount     uint64            `json:"error_count"`
	ErrorsBySource map[string]uint64 `json:"errors_by_source"`

	AverageWriteTime time.Duration `json:"average_write_time"`
	MaxWriteTime     time.Duration `json:"max_write_time"`
}

// NewCollector creates a collector reporting to the given meter provider.
// A nil provider disables OpenTelemetry export.
func NewCollector(mp metric.MeterProvider) *Collector {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(meterName)

	c := &Collector{}
	// Instrument creation only fails on invalid names; fall back to noop so a
	// misconfigured provider never breaks logging.
	var err error
	if c.entries, err = meter.Int64Counter("spool.entries",
		metric.WithDescription("Log entries accepted by the sink")); err != nil {
		c.entries = noop.Int64Counter{}
	}
	if c.written, err = meter.Int64Counter("spool.bytes.written",
		metric.WithDescription("Bytes flushed to the active file"), metric.WithUnit("By")); err != nil {
		c.written = noop.Int64Counter{}
	}
	if c.dropped, err = meter.Int64Counter("spool.bytes.dropped",
		metric.WithDescription("Buffered bytes discarded after a failed or skipped write"), metric.WithUnit("By")); err != nil {
		c.dropped = noop.Int64Counter{}
	}
	if c.rotations, err = meter.Int64Counter("spool.rotations",
		metric.WithDescription("Completed file rotations")); err != nil {
		c.rotations = noop.Int64Counter{}
	}
	if c.compressions, err = meter.Int64Counter("spool.compressions",
		metric.WithDescription("Archive compression jobs by outcome")); err != nil {
		c.compressions = noop.Int64Counter{}
	}
	if c.pruned, err = meter.Int64Counter("spool.archives.pruned",
		metric.WithDescription("Archives removed by the retention window")); err != nil {
		c.pruned = noop.Int64Counter{}
	}
	if c.errors, err = meter.Int64Counter("spool.errors",
		metric.WithDescription("Errors reported by the sink, by operation")); err != nil {
		c.errors = noop.Int64Counter{}
	}
	if c.writeLatency, err = meter.Float64Histogram("spool.write.duration",
		metric.WithDescription("Duration of flush writes"), metric.WithUnit("s")); err != nil {
		c.writeLatency = noop.Float64Histogram{}
	}
	return c
}

// TrackEntry records an entry queued by a producer.
func (c *Collector) TrackEntry() {
	atomic.AddUint64(&c.entriesAccepted, 1)
	c.entries.Add(context.Background(), 1)
}

// TrackRejected records a submission refused because the sink was closed or stopped.
func (c *Collector) TrackRejected() {
	atomic.AddUint64(&c.entriesRejected, 1)
}

// TrackWrite records a successful flush write.
func (c *Collector) TrackWrite(bytes int, duration time.Duration) {
	atomic.AddUint64(&c.flushCount, 1)
	atomic.AddUint64(&c.bytesWritten, uint64(bytes))
	atomic.AddUint64(&c.writeCount, 1)
	atomic.AddInt64(&c.totalWriteNs, int64(duration))

	for {
		oldMax := atomic.LoadInt64(&c.maxWriteNs)
		if int64(duration) <= oldMax {
			break
		}
		if atomic.CompareAndSwapInt64(&c.maxWriteNs, oldMax, int64(duration)) {
			break
		}
	}

	ctx := context.Background()
	c.written.Add(ctx, int64(bytes))
	c.writeLatency.Record(ctx, duration.Seconds())
}

// TrackDropped records buffered bytes that never reached the file.
func (c *Collector) TrackDropped(bytes int) {
	atomic.AddUint64(&c.bytesDropped, uint64(bytes))
	c.dropped.Add(context.Background(), int64(bytes))
}

// TrackRotation increments the rotation counter.
func (c *Collector) TrackRotation() {
	atomic.AddUint64(&c.rotationCount, 1)
	c.rotations.Add(context.Background(), 1)
}

// TrackCompression records the outcome of one compression job.
func (c *Collector) TrackCompression(ok bool) {
	outcome := "ok"
	if ok {
		atomic.AddUint64(&c.compressionCount, 1)
	} else {
		atomic.AddUint64(&c.compressionFailed, 1)
		outcome = "failed"
	}
	c.compressions.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// TrackCompressionSkipped records a job dropped because its archive was
// pruned before it ran.
func (c *Collector) TrackCompressionSkipped() {
	atomic.AddUint64(&c.compressionSkipped, 1)
	c.compressions.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", "skipped")))
}

// TrackInlineCompression records a job run on the caller because the pool queue was full.
func (c *Collector) TrackInlineCompression() {
	atomic.AddUint64(&c.inlineCompressions, 1)
}

// TrackPruned records archives removed by retention.
func (c *Collector) TrackPruned(n int) {
	if n <= 0 {
		return
	}
	atomic.AddUint64(&c.archivesPruned, uint64(n))
	c.pruned.Add(context.Background(), int64(n))
}

// TrackError increments the error counter and tracks by source.
func (c *Collector) TrackError(source string) {
	atomic.AddUint64(&c.errorCount, 1)

	val, _ := c.errorsBySource.LoadOrStore(source, &atomic.Uint64{})
	val.(*atomic.Uint64).Add(1)

	c.errors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("op", source)))
}

// GetErrorCountBySource returns the error count for a specific source.
func (c *Collector) GetErrorCountBySource(source string) uint64 {
	if val, ok := c.errorsBySource.Load(source); ok {
		return val.(*atomic.Uint64).Load()
	}
	return 0
}

// GetMetrics returns a snapshot of all counters.
func (c *Collector) GetMetrics() Metrics {
	m := Metrics{
		EntriesAccepted:    atomic.LoadUint64(&c.entriesAccepted),
		EntriesRejected:    atomic.LoadUint64(&c.entriesRejected),
		FlushCount:         atomic.LoadUint64(&c.flushCount),
		BytesWritten:       atomic.LoadUint64(&c.bytesWritten),
		BytesDropped:       atomic.LoadUint64(&c.bytesDropped),
		RotationCount:      atomic.LoadUint64(&c.rotationCount),
		CompressionCount:   atomic.LoadUint64(&c.compressionCount),
		CompressionFailed:  atomic.LoadUint64(&c.compressionFailed),
		CompressionSkipped: atomic.LoadUint64(&c.compressionSkipped),
		InlineCompressions: atomic.LoadUint64(&c.inlineCompressions),
		ArchivesPruned:     atomic.LoadUint64(&c.archivesPruned),
		ErrorCount:         atomic.LoadUint64(&c.errorCount),
		ErrorsBySource:     make(map[string]uint64),
		MaxWriteTime:       time.Duration(atomic.LoadInt64(&c.maxWriteNs)),
	}

	if n := atomic.LoadUint64(&c.writeCount); n > 0 {
		m.AverageWriteTime = time.Duration(atomic.LoadInt64(&c.totalWriteNs)) / time.Duration(n)
	}

	c.errorsBySource.Range(func(key, value any) bool {
		if count := value.(*atomic.Uint64).Load(); count > 0 {
			m.ErrorsBySource[key.(string)] = count
		}
		return true
	})

	return m
}

// ResetMetrics resets all local counters. OpenTelemetry instruments are
// cumulative and are not affected.
func (c *Collector) ResetMetrics() {
	for _, p := range []*uint64{
		&c.entriesAccepted, &c.entriesRejected, &c.flushCount, &c.bytesWritten,
		&c.bytesDropped, &c.writeCount, &c.rotationCount, &c.compressionCount,
		&c.compressionFailed, &c.compressionSkipped, &c.inlineCompressions, &c.archivesPruned, &c.errorCount,
	} {
		atomic.StoreUint64(p, 0)
	}
	atomic.StoreInt64(&c.totalWriteNs, 0)
	atomic.StoreInt64(&c.maxWriteNs, 0)

	c.errorsBySource.Range(func(_, value any) bool {
		value.(*atomic.Uint64).Store(0)
		return true
	})
}
