package spool

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"

	"github.com/wayneeseguin/spool/internal/buffer"
	"github.com/wayneeseguin/spool/internal/metrics"
	"github.com/wayneeseguin/spool/pkg/backends"
	"github.com/wayneeseguin/spool/pkg/features"
)

// Sink is a buffered, rotating log file. All methods are safe for concurrent
// use; the file itself is only touched by the sink's worker goroutine.
type Sink struct {
	cfg          Config
	box          *mailbox
	done         chan struct{} // closed when the worker has exited
	stopped      chan struct{} // closed when the worker stopped on a fatal error
	closeOnce    sync.Once
	closeErr     error
	metrics      *metrics.Collector
	errorHandler ErrorHandler

	// Owned by the worker goroutine.
	backend    backends.Backend
	buf        *buffer.Buffer
	fileSize   int64
	rotateAt   int64 // fileSize limit for the next automatic rotation
	rotation   *features.RotationManager
	compressor *features.CompressionManager
	breaker    *gobreaker.CircuitBreaker[int]
	stdout     io.Writer
	halted     bool
}

// Open validates cfg, prepares the log directory, locks and opens the active
// file, seeds the retention window from archives already on disk and starts
// the worker. Any failure is returned as an *Error before a goroutine is
// started.
//
// Example:
//
//	cfg := spool.DefaultConfig()
//	cfg.Path = "logs/m.log"
//	sink, err := spool.Open(cfg)
//	if err != nil {
//		var serr *spool.Error
//		if errors.As(err, &serr) && errors.Is(err, spool.ErrLocked) {
//			// another instance is running
//		}
//		return err
//	}
//	defer sink.Close()
func Open(cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, newError("config", cfg.Path, ErrorLevelCritical, err)
	}

	path := filepath.Clean(cfg.Path)
	cfg.Path = path
	dir := filepath.Dir(path)

	if err := backends.EnsureDir(dir); err != nil {
		return nil, newError("mkdir", dir, ErrorLevelCritical, err)
	}
	if err := backends.CheckDirAccess(dir); err != nil {
		return nil, newError("access", dir, ErrorLevelCritical, err)
	}

	backend, err := backends.NewFileBackend(path, backends.Options{
		RenameAttempts: cfg.RenameAttempts,
		RenameDelay:    cfg.RenameDelay,
	})
	if err != nil {
		op := "open"
		if errors.Is(err, backends.ErrLocked) {
			op = "lock"
		}
		return nil, newError(op, path, ErrorLevelCritical, err)
	}

	s := newSink(cfg, backend)
	s.compressor.Start()
	if _, err := s.rotation.Reconcile(); err != nil {
		s.compressor.Stop()
		_ = backend.Close()
		return nil, newError("scan", dir, ErrorLevelCritical, err)
	}

	go s.run()
	return s, nil
}

// newSink wires the sink around an already opened backend. The worker is not
// started.
func newSink(cfg Config, backend backends.Backend) *Sink {
	s := &Sink{
		cfg:          cfg,
		box:          newMailbox(),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		metrics:      metrics.NewCollector(cfg.MeterProvider),
		errorHandler: cfg.ErrorHandler,
		backend:      backend,
		buf:          buffer.New(cfg.BufferSize),
		fileSize:     backend.Size(),
		rotateAt:     cfg.RotateSize,
	}

	if cfg.Stdout {
		s.stdout = cfg.StdoutWriter
		if s.stdout == nil {
			s.stdout = os.Stdout
		}
	}

	s.compressor = features.NewCompressionManager(cfg.CompressionWorkers, cfg.CompressionQueue)
	_ = s.compressor.SetLevel(cfg.CompressionLevel) // checked by Validate
	s.compressor.SetErrorHandler(s.handleFeatureError)
	s.compressor.SetMetricsHandler(s.handleFeatureMetric)

	s.rotation = features.NewRotationManager(cfg.Path, features.NewRetentionWindow(cfg.Retain), s.compressor)
	s.rotation.SetErrorHandler(s.handleFeatureError)
	s.rotation.SetMetricsHandler(s.handleFeatureMetric)

	s.breaker = newWriteBreaker(cfg, s.report)
	return s
}

// Submit queues one fully formatted log entry. It never blocks on I/O.
// It returns ErrClosed after Close and ErrStopped after a fatal error.
func (s *Sink) Submit(text string) error {
	if err := s.box.put(message{kind: kindEntry, text: text}); err != nil {
		s.metrics.TrackRejected()
		return err
	}
	s.metrics.TrackEntry()
	return nil
}

// Write implements io.Writer by submitting a copy of p as one entry, so a
// Sink can back a standard library logger.
func (s *Sink) Write(p []byte) (int, error) {
	if err := s.Submit(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush asks the worker to write the buffer to the active file. It does not
// wait for the write; follow it with Sync for that.
func (s *Sink) Flush() error {
	return s.box.put(message{kind: kindFlush})
}

// Rotate asks the worker to rotate the active file regardless of its size.
func (s *Sink) Rotate() error {
	return s.box.put(message{kind: kindRotate})
}

// Sync waits until the worker has handled every message submitted before the
// call. Buffered entries are not flushed by Sync itself.
func (s *Sink) Sync(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.box.put(message{kind: kindSync, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the worker state taken after every message
// submitted before the call was handled.
func (s *Sink) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := s.box.put(message{kind: kindStatus, status: reply}); err != nil {
		return Status{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-s.done:
		return Status{}, ErrClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Stopped returns a channel that is closed when the worker stops because the
// active file became inaccessible. Submissions fail with ErrStopped from then
// on; Close must still be called to release resources.
func (s *Sink) Stopped() <-chan struct{} {
	return s.stopped
}

// Metrics returns a snapshot of the sink's counters.
func (s *Sink) Metrics() metrics.Metrics {
	return s.metrics.GetMetrics()
}

// Path returns the active log file path.
func (s *Sink) Path() string {
	return s.cfg.Path
}

// Close flushes buffered entries, waits for running compressions, closes the
// active file and releases its lock. Later calls return the first result.
func (s *Sink) Close() error {
	return s.Shutdown(context.Background())
}

// Shutdown is Close bounded by ctx. If ctx expires first the worker keeps
// shutting down in the background and ctx.Err() is returned.
func (s *Sink) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.box.close(message{kind: kindShutdown})
	})

	select {
	case <-s.done:
		return s.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// report passes an error to the configured handler and counts it.
func (s *Sink) report(op, path string, level ErrorLevel, err error) {
	s.metrics.TrackError(op)
	if s.errorHandler != nil {
		s.errorHandler(newError(op, path, level, err))
	}
}

// handleFeatureError adapts rotation and compression errors.
func (s *Sink) handleFeatureError(source, dest, msg string, err error) {
	level := ErrorLevelMedium
	if source == "prune" {
		level = ErrorLevelLow
	}
	s.report(source, dest, level, errors.Wrap(err, msg))
}

func (s *Sink) handleFeatureMetric(event string) {
	switch event {
	case "rotation_completed":
		s.metrics.TrackRotation()
	case "archive_pruned":
		s.metrics.TrackPruned(1)
	case "compression_completed":
		s.metrics.TrackCompression(true)
	case "compression_failed":
		s.metrics.TrackCompression(false)
	case "compression_skipped":
		s.metrics.TrackCompressionSkipped()
	case "compression_inline":
		s.metrics.TrackInlineCompression()
	}
}
