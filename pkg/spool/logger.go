package spool

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// timestampFormat is the timestamp at the start of every line written by a
// Logger, local time with milliseconds.
const timestampFormat = "2006-01-02 15:04:05.000"

// Submitter accepts formatted log entries. *Sink implements it.
type Submitter interface {
	Submit(text string) error
	Flush() error
}

// Logger filters by level and formats lines before handing them to a sink:
//
//	[2024-01-15 14:30:52.123 INFO] service started
//
// A Logger is safe for concurrent use and cheap to share.
type Logger struct {
	sink  Submitter
	level atomic.Int32
	now   func() time.Time
	eol   string
}

// NewLogger creates a logger writing entries at or above level to sink.
//
// Example:
//
//	logger := spool.NewLogger(sink, spool.LevelDebug)
//	logger.Debugf("loaded %d rules", len(rules))
func NewLogger(sink Submitter, level Level) *Logger {
	l := &Logger{
		sink: sink,
		now:  time.Now,
		eol:  lineEnding(),
	}
	l.level.Store(int32(level))
	return l
}

func lineEnding() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// SetLevel sets the minimum level written.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// Level returns the minimum level written.
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// Enabled reports whether entries at level are written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.Level()
}

// Log formats msg at level and submits it. Filtered entries return nil.
func (l *Logger) Log(level Level, msg string) error {
	if !l.Enabled(level) {
		return nil
	}
	return l.sink.Submit(l.format(level, msg))
}

func (l *Logger) format(level Level, msg string) string {
	return "[" + l.now().Format(timestampFormat) + " " + level.String() + "] " + msg + l.eol
}

// Flush asks the sink to write buffered entries.
func (l *Logger) Flush() error {
	return l.sink.Flush()
}

// Trace logs at trace level. Arguments are handled like fmt.Sprint.
func (l *Logger) Trace(args ...any) { l.logArgs(LevelTrace, args) }

// Debug logs at debug level.
func (l *Logger) Debug(args ...any) { l.logArgs(LevelDebug, args) }

// Info logs at info level.
func (l *Logger) Info(args ...any) { l.logArgs(LevelInfo, args) }

// Warn logs at warn level.
func (l *Logger) Warn(args ...any) { l.logArgs(LevelWarn, args) }

// Error logs at error level.
func (l *Logger) Error(args ...any) { l.logArgs(LevelError, args) }

// Tracef logs at trace level. Arguments are handled like fmt.Sprintf.
func (l *Logger) Tracef(format string, args ...any) { l.logf(LevelTrace, format, args) }

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args) }

// Submission errors are dropped here; callers that care use Log.
func (l *Logger) logArgs(level Level, args []any) {
	if l.Enabled(level) {
		_ = l.Log(level, fmt.Sprint(args...))
	}
}

func (l *Logger) logf(level Level, format string, args []any) {
	if l.Enabled(level) {
		_ = l.Log(level, fmt.Sprintf(format, args...))
	}
}
