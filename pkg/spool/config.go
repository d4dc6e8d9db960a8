package spool

import (
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultRetain             = 10
	defaultBufferSize         = 1024
	defaultRotateSize         = 5 * 1024
	defaultCompressionWorkers = 1
	defaultCompressionQueue   = 16
	defaultMaxWriteFailures   = 5
	defaultBreakerTimeout     = 30 * time.Second
	defaultRenameAttempts     = 3
	defaultRenameDelay        = 10 * time.Millisecond
	defaultFlushInterval      = time.Second
)

// Config contains all configuration options for a Sink.
type Config struct {
	// Core settings
	Path       string // Active log file path
	Level      Level  // Minimum level for loggers built from this config
	BufferSize int    // In-memory buffer capacity in bytes
	Stdout     bool   // Echo every flush to StdoutWriter

	// Rotation settings
	RotateSize     int64         // Rotate once the active file would exceed this many bytes
	Retain         int           // Maximum number of archives kept
	RenameAttempts uint          // Attempts at renaming the active file aside
	RenameDelay    time.Duration // Pause between rename attempts
	RotateSchedule string        // Cron spec for forced rotations, empty to disable

	// Compression settings
	CompressionWorkers int // Number of compression workers
	CompressionQueue   int // Jobs waiting for a worker before compression runs inline
	CompressionLevel   int // gzip level

	// Write failure handling
	MaxWriteFailures uint32        // Consecutive write failures before writes are skipped, 0 disables
	BreakerTimeout   time.Duration // How long writes are skipped before a retry

	// Periodic flushing, used by Scheduler
	FlushInterval time.Duration

	// Error handling
	ErrorHandler ErrorHandler // Custom error handler

	// Outputs
	StdoutWriter  io.Writer            // Destination of the stdout echo, os.Stdout if nil
	MeterProvider metric.MeterProvider // OpenTelemetry meter provider, noop if nil
}

// DefaultConfig returns a Config with sensible defaults. Path must still be
// set before calling Open.
//
// Example:
//
//	cfg := spool.DefaultConfig()
//	cfg.Path = "/var/log/app/m.log"
//	cfg.Retain = 5
//	sink, err := spool.Open(cfg)
func DefaultConfig() Config {
	return Config{
		Level:              LevelInfo,
		BufferSize:         defaultBufferSize,
		RotateSize:         defaultRotateSize,
		Retain:             defaultRetain,
		RenameAttempts:     defaultRenameAttempts,
		RenameDelay:        defaultRenameDelay,
		CompressionWorkers: defaultCompressionWorkers,
		CompressionQueue:   defaultCompressionQueue,
		CompressionLevel:   gzip.DefaultCompression,
		MaxWriteFailures:   defaultMaxWriteFailures,
		BreakerTimeout:     defaultBreakerTimeout,
		FlushInterval:      defaultFlushInterval,
		ErrorHandler:       StderrErrorHandler,
	}
}

// Validate checks the configuration for values the sink cannot work with.
// Every returned error wraps ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.Path == "":
		return errors.Wrap(ErrInvalidConfig, "path is required")
	case c.BufferSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "buffer size must be positive, got %d", c.BufferSize)
	case c.RotateSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "rotate size must be positive, got %d", c.RotateSize)
	case c.Retain < 0:
		return errors.Wrapf(ErrInvalidConfig, "retain must not be negative, got %d", c.Retain)
	case c.CompressionWorkers < 1:
		return errors.Wrapf(ErrInvalidConfig, "compression workers must be at least 1, got %d", c.CompressionWorkers)
	case c.CompressionQueue < 0:
		return errors.Wrapf(ErrInvalidConfig, "compression queue must not be negative, got %d", c.CompressionQueue)
	case c.CompressionLevel < gzip.HuffmanOnly || c.CompressionLevel > gzip.BestCompression:
		return errors.Wrapf(ErrInvalidConfig, "invalid gzip level %d", c.CompressionLevel)
	case c.Level < LevelTrace || c.Level > LevelError:
		return errors.Wrapf(ErrInvalidConfig, "invalid level %d", c.Level)
	case c.BreakerTimeout < 0 || c.RenameDelay < 0 || c.FlushInterval < 0:
		return errors.Wrap(ErrInvalidConfig, "durations must not be negative")
	}
	return nil
}
