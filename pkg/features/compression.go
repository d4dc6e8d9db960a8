package features

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// CompressSuffix is appended to a rotated file name once it is compressed.
const CompressSuffix = ".gz"

// CompressJob describes one rotated file to compress.
type CompressJob struct {
	Source string // uncompressed rotated file
	Target string // compressed output, normally Source + CompressSuffix
}

// CompressionManager runs gzip compression of rotated files on a bounded pool
// of workers. Each finished job is reported through the completion callback,
// successful or not, so callers can track archive state.
type CompressionManager struct {
	mu        sync.RWMutex
	workers   int
	queueSize int
	level     int
	jobs      chan CompressJob
	group     *errgroup.Group

	errorHandler   func(source, dest, msg string, err error)
	metricsHandler func(string)
	onComplete     func(job CompressJob, err error)
	skip           func(job CompressJob) bool
}

// NewCompressionManager creates a manager with the given worker count and
// queue capacity. Call Start before submitting jobs.
func NewCompressionManager(workers, queueSize int) *CompressionManager {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &CompressionManager{
		workers:   workers,
		queueSize: queueSize,
		level:     gzip.DefaultCompression,
	}
}

// SetErrorHandler sets the error handling function
func (c *CompressionManager) SetErrorHandler(handler func(source, dest, msg string, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandler = handler
}

// SetMetricsHandler sets the metrics tracking function
func (c *CompressionManager) SetMetricsHandler(handler func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metricsHandler = handler
}

// SetCompletionCallback sets the function called after every job.
func (c *CompressionManager) SetCompletionCallback(fn func(job CompressJob, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = fn
}

// SetSkipCheck sets a function consulted before each job runs. A job it
// reports as unwanted is dropped without an error and without a completion
// callback.
func (c *CompressionManager) SetSkipCheck(fn func(job CompressJob) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skip = fn
}

// SetLevel sets the gzip compression level.
func (c *CompressionManager) SetLevel(level int) error {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return errors.Errorf("invalid gzip level: %d", level)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = level
	return nil
}

// Start launches the worker goroutines. It is a no-op if already running.
func (c *CompressionManager) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.jobs != nil {
		return
	}
	c.jobs = make(chan CompressJob, c.queueSize)
	c.group = &errgroup.Group{}

	jobs := c.jobs
	for i := 0; i < c.workers; i++ {
		c.group.Go(func() error {
			for job := range jobs {
				c.run(job)
			}
			return nil
		})
	}
}

// Stop waits for queued and in-flight jobs to finish and stops the workers.
func (c *CompressionManager) Stop() {
	c.mu.Lock()
	jobs, group := c.jobs, c.group
	c.jobs, c.group = nil, nil
	c.mu.Unlock()

	if jobs == nil {
		return
	}
	close(jobs)
	_ = group.Wait()
}

// Submit queues a job without blocking. When the pool is stopped or its queue
// is full the job runs on the calling goroutine instead, so a rotated file is
// never left uncompressed.
func (c *CompressionManager) Submit(job CompressJob) {
	c.mu.RLock()
	jobs := c.jobs
	if jobs != nil {
		select {
		case jobs <- job:
			c.mu.RUnlock()
			return
		default:
		}
	}
	metricsHandler := c.metricsHandler
	c.mu.RUnlock()

	if metricsHandler != nil {
		metricsHandler("compression_inline")
	}
	c.run(job)
}

// QueueLength returns the number of jobs waiting for a worker.
func (c *CompressionManager) QueueLength() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.jobs == nil {
		return 0
	}
	return len(c.jobs)
}

// Workers returns the pool size.
func (c *CompressionManager) Workers() int {
	return c.workers
}

func (c *CompressionManager) run(job CompressJob) {
	c.mu.RLock()
	level := c.level
	errorHandler := c.errorHandler
	metricsHandler := c.metricsHandler
	onComplete := c.onComplete
	skip := c.skip
	c.mu.RUnlock()

	if skip != nil && skip(job) {
		if metricsHandler != nil {
			metricsHandler("compression_skipped")
		}
		return
	}

	err := CompressFile(job.Source, job.Target, level)
	if err != nil && errors.Is(err, os.ErrNotExist) && skip != nil && skip(job) {
		// Pruned between the check and opening the source.
		if metricsHandler != nil {
			metricsHandler("compression_skipped")
		}
		return
	}
	if err != nil {
		if errorHandler != nil {
			errorHandler("compress", job.Source, "Failed to compress rotated log", err)
		}
		if metricsHandler != nil {
			metricsHandler("compression_failed")
		}
	} else if metricsHandler != nil {
		metricsHandler("compression_completed")
	}

	if onComplete != nil {
		onComplete(job, err)
	}
}

// CompressFile streams src through gzip into dst, then removes src. A partial
// dst is removed on failure.
func CompressFile(src, dst string, level int) (err error) {
	src = filepath.Clean(src)
	dst = filepath.Clean(dst)

	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "opening source file for compression")
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrap(err, "stat source file")
	}

	// #nosec G302 - archives keep the same mode as the active log
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "creating compressed file")
	}
	written := false
	defer func() {
		if err != nil && !written {
			_ = out.Close()
			_ = os.Remove(dst)
		}
	}()

	gw, err := gzip.NewWriterLevel(out, level)
	if err != nil {
		return errors.Wrap(err, "creating gzip writer")
	}
	gw.Name = filepath.Base(src)
	gw.ModTime = info.ModTime()

	if _, err = io.Copy(gw, in); err != nil {
		return errors.Wrap(err, "compressing file")
	}
	if err = gw.Close(); err != nil {
		return errors.Wrap(err, "closing gzip writer")
	}
	if err = out.Sync(); err != nil {
		return errors.Wrap(err, "syncing compressed file")
	}
	if err = out.Close(); err != nil {
		return errors.Wrap(err, "closing compressed file")
	}
	written = true

	_ = in.Close()
	if rmErr := os.Remove(src); rmErr != nil && !os.IsNotExist(rmErr) {
		return errors.Wrap(rmErr, "removing original file after compression")
	}
	return nil
}
