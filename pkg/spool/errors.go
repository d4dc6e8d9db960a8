package spool

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/spool/pkg/backends"
)

var (
	// ErrClosed is returned by operations on a sink after Close or Shutdown.
	ErrClosed = errors.New("spool: sink closed")
	// ErrStopped is returned once the worker stopped because the active file
	// could not be reopened.
	ErrStopped = errors.New("spool: writer stopped")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("spool: invalid config")
	// ErrBreakerOpen is reported while writes are skipped after repeated
	// write failures.
	ErrBreakerOpen = errors.New("spool: write circuit open")

	// ErrDirAccess means the log directory is not readable and writable.
	ErrDirAccess = backends.ErrDirAccess
	// ErrLocked means another process has the log path open.
	ErrLocked = backends.ErrLocked
)

// ErrorLevel represents the severity of an error reported by the sink
type ErrorLevel int

const (
	// ErrorLevelLow represents minor errors that don't impact operation, such
	// as a failure to delete an old archive
	ErrorLevelLow ErrorLevel = iota
	// ErrorLevelWarn represents warning-level errors
	ErrorLevelWarn
	// ErrorLevelMedium represents errors that lose or delay some output
	ErrorLevelMedium
	// ErrorLevelHigh represents errors that lose log data
	ErrorLevelHigh
	// ErrorLevelCritical represents errors that stop the sink
	ErrorLevelCritical
)

// String returns the severity name.
func (l ErrorLevel) String() string {
	switch l {
	case ErrorLevelLow:
		return "low"
	case ErrorLevelWarn:
		return "warn"
	case ErrorLevelMedium:
		return "medium"
	case ErrorLevelHigh:
		return "high"
	case ErrorLevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error describes a failed sink operation.
type Error struct {
	Op    string     // The operation that failed, e.g. "write", "rotate"
	Path  string     // The file the operation was working on
	Level ErrorLevel // The severity level of the error
	Err   error      // The underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorHandler receives errors the sink cannot return to a caller. It may be
// called from the sink worker and from compression workers concurrently.
type ErrorHandler func(err *Error)

// SilentErrorHandler discards all errors (used in tests)
var SilentErrorHandler ErrorHandler = func(err *Error) {}

// StderrErrorHandler writes errors above ErrorLevelLow to stderr.
var StderrErrorHandler = NewWriterErrorHandler(os.Stderr, ErrorLevelWarn)

// NewWriterErrorHandler returns a handler printing errors at or above min to
// w, one per line.
func NewWriterErrorHandler(w io.Writer, min ErrorLevel) ErrorHandler {
	var mu sync.Mutex
	return func(err *Error) {
		if err == nil || err.Level < min {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(w, "spool error: %v\n", err)
	}
}

func newError(op, path string, level ErrorLevel, err error) *Error {
	return &Error{Op: op, Path: path, Level: level, Err: err}
}
