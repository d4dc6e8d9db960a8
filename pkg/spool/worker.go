package spool

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"

	"github.com/wayneeseguin/spool/pkg/backends"
)

// run is the worker loop. It handles messages one at a time in mailbox order
// until the shutdown message arrives.
func (s *Sink) run() {
	defer close(s.done)

	for {
		for _, msg := range s.box.take() {
			if msg.kind == kindShutdown {
				s.shutdown()
				return
			}
			s.handle(msg)
		}
	}
}

func (s *Sink) handle(msg message) {
	switch msg.kind {
	case kindEntry:
		if s.halted {
			s.metrics.TrackDropped(len(msg.text))
			return
		}
		s.handleEntry(msg.text)
	case kindFlush:
		if !s.halted {
			s.flush()
		}
	case kindRotate:
		if !s.halted {
			s.rotate()
		}
	case kindSync:
		if s.halted {
			msg.reply <- ErrStopped
		} else {
			msg.reply <- nil
		}
	case kindStatus:
		msg.status <- s.status()
	}
}

// handleEntry accounts the entry against the active file, rotating first if
// the entry would push the file past RotateSize, then buffers it. A buffer
// that cannot take the entry is flushed and the entry placed alone, even if
// it is larger than the buffer.
func (s *Sink) handleEntry(text string) {
	n := int64(len(text))
	switch {
	case s.fileSize+n > s.rotateAt && s.rotate():
		// The entry belongs to the new generation.
		s.fileSize = n
	case s.halted:
		s.metrics.TrackDropped(len(text))
		return
	default:
		s.fileSize += n
	}

	if !s.buf.AppendString(text) {
		s.flush()
		s.buf.Reset(text)
	}
}

// flush writes the buffer to the active file and, if enabled, to stdout. The
// buffer is empty afterwards whether or not the write succeeded.
func (s *Sink) flush() {
	if s.buf.Len() == 0 {
		return
	}
	data := s.buf.TakeAndClear()

	start := time.Now()
	n, err := s.breaker.Execute(func() (int, error) {
		return s.backend.Write(data)
	})
	if n > 0 {
		s.metrics.TrackWrite(n, time.Since(start))
	}
	if err != nil {
		s.metrics.TrackDropped(len(data) - n)
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			s.report("write", s.cfg.Path, ErrorLevelLow,
				errors.Wrapf(ErrBreakerOpen, "dropped %d bytes", len(data)))
		case backends.IsDiskFull(err):
			s.report("write", s.cfg.Path, ErrorLevelCritical, errors.Wrap(err, "disk full"))
		default:
			s.report("write", s.cfg.Path, ErrorLevelHigh, err)
		}
	}

	if s.stdout != nil {
		if _, err := s.stdout.Write(data); err != nil {
			s.report("stdout", "", ErrorLevelWarn, err)
		}
	}
}

// rotate moves the active file aside, reopens it fresh and hands the old file
// to the rotation manager for retention and compression. Buffered entries
// stay in the buffer and land in the new file. It reports whether the file
// was rotated.
//
// A failed rename keeps the active file and its size. The next automatic
// attempt waits until another RotateSize bytes have been accounted.
func (s *Sink) rotate() bool {
	archive := s.rotation.NextArchivePath()
	if err := s.backend.Rotate(archive); err != nil {
		if errors.Is(err, backends.ErrReopen) {
			s.fileSize = 0
			s.report("reopen", s.cfg.Path, ErrorLevelCritical, err)
			s.halt()
			return false
		}
		s.rotateAt = s.fileSize + s.cfg.RotateSize
		s.report("rotate", s.cfg.Path, ErrorLevelHigh, err)
		return false
	}

	s.fileSize = 0
	s.rotateAt = s.cfg.RotateSize
	s.rotation.Commit(archive)
	return true
}

// halt stops accepting work after the active file became unusable.
func (s *Sink) halt() {
	if s.halted {
		return
	}
	s.halted = true
	if dropped := s.buf.Len(); dropped > 0 {
		s.buf.TakeAndClear()
		s.metrics.TrackDropped(dropped)
	}
	s.box.fail(ErrStopped)
	close(s.stopped)
}

func (s *Sink) status() Status {
	return Status{
		Path:      s.cfg.Path,
		FileSize:  s.fileSize,
		BufferLen: s.buf.Len(),
		BufferCap: s.buf.Cap(),
		Archives:  s.rotation.Window().Snapshot(),
		Breaker:   s.breaker.State().String(),
		Stopped:   s.halted,
	}
}

// shutdown flushes what is left, waits for compressions and closes the file.
func (s *Sink) shutdown() {
	if !s.halted {
		s.flush()
	}
	s.compressor.Stop()
	if err := s.backend.Close(); err != nil {
		s.closeErr = newError("close", s.cfg.Path, ErrorLevelHigh, err)
		s.report("close", s.cfg.Path, ErrorLevelHigh, err)
	}
}

// newWriteBreaker returns the circuit breaker guarding file writes. It opens
// after MaxWriteFailures consecutive failures; zero disables tripping.
func newWriteBreaker(cfg Config, report func(op, path string, level ErrorLevel, err error)) *gobreaker.CircuitBreaker[int] {
	return gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "spool:" + cfg.Path,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.MaxWriteFailures > 0 && counts.ConsecutiveFailures >= cfg.MaxWriteFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			level := ErrorLevelWarn
			if to == gobreaker.StateOpen {
				level = ErrorLevelMedium
			}
			report("breaker", cfg.Path, level, errors.Errorf("%s: write circuit %s -> %s", name, from, to))
		},
	})
}
