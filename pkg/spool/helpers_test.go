package spool

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wayneeseguin/spool/pkg/backends"
)

// testConfig returns a config for dir/m.log that records errors instead of
// printing them.
func testConfig(t *testing.T, dir string) (Config, *errorRecorder) {
	t.Helper()
	rec := &errorRecorder{}
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(dir, "m.log")
	cfg.ErrorHandler = rec.handle
	cfg.BreakerTimeout = time.Hour
	return cfg, rec
}

func openSink(t *testing.T, cfg Config) *Sink {
	t.Helper()
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// startSink runs a sink on a custom backend.
func startSink(t *testing.T, cfg Config, backend backends.Backend) *Sink {
	t.Helper()
	s := newSink(cfg, backend)
	s.compressor.Start()
	go s.run()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func syncSink(t *testing.T, s *Sink) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Sync(ctx))
}

func status(t *testing.T, s *Sink) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := s.Status(ctx)
	require.NoError(t, err)
	return st
}

type errorRecorder struct {
	mu   sync.Mutex
	errs []*Error
}

func (r *errorRecorder) handle(err *Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *errorRecorder) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]string, 0, len(r.errs))
	for _, e := range r.errs {
		ops = append(ops, e.Op)
	}
	return ops
}

func (r *errorRecorder) all() []*Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Error(nil), r.errs...)
}

// fakeBackend is an in-memory backend with injectable failures.
type fakeBackend struct {
	mu        sync.Mutex
	path      string
	data      bytes.Buffer
	writeErr  error
	renameErr error
	reopenErr error
	rotations []string
	closed    bool
}

func (f *fakeBackend) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.data.Write(p)
}

func (f *fakeBackend) Sync() error { return nil }

func (f *fakeBackend) Rotate(archivePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reopenErr != nil {
		return fmt.Errorf("%w: %w", backends.ErrReopen, f.reopenErr)
	}
	if f.renameErr != nil {
		return fmt.Errorf("%w: %w", backends.ErrRename, f.renameErr)
	}
	f.rotations = append(f.rotations, archivePath)
	f.data.Reset()
	return nil
}

func (f *fakeBackend) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(f.data.Len())
}

func (f *fakeBackend) Path() string { return f.path }

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBackend) content() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.String()
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}
