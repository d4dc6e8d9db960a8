package backends

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/gofrs/flock"
)

// LockSuffix is appended to the log path to name the instance lock file.
const LockSuffix = ".lock"

var (
	// ErrLocked means another process holds the lock for the log path.
	ErrLocked = errors.New("log file is locked by another process")
	// ErrDirAccess means the log directory is not readable and writable.
	ErrDirAccess = errors.New("log directory is not accessible")
	// ErrRename means the active file could not be moved aside. The backend
	// keeps writing to the original file.
	ErrRename = errors.New("rename active file")
	// ErrReopen means the active path could not be reopened after a rotation.
	// The backend has no open file afterwards.
	ErrReopen = errors.New("reopen active file")
)

// Options tune FileBackend behaviour.
type Options struct {
	RenameAttempts uint          // total rename attempts, at least 1
	RenameDelay    time.Duration // pause between rename attempts
}

// FileBackend is the active log file: an append-mode handle plus the
// exclusive lock that keeps a second process from writing the same path.
type FileBackend struct {
	file  *os.File
	lock  *flock.Flock
	path  string
	size  int64
	opts  Options
	stats BackendStats
}

// EnsureDir creates dir and its parents if needed.
func EnsureDir(dir string) error {
	// #nosec G301 - log directories need to be accessible by other processes
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return nil
}

// CheckDirAccess verifies that dir is a readable and writable directory.
func CheckDirAccess(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDirAccess, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrDirAccess, dir)
	}
	if err := accessible(dir); err != nil {
		return fmt.Errorf("%w: %w", ErrDirAccess, err)
	}
	return nil
}

// NewFileBackend locks path and opens it in append mode, creating it if
// needed. The directory must already exist.
func NewFileBackend(path string, opts Options) (*FileBackend, error) {
	cleanPath := filepath.Clean(path)
	if opts.RenameAttempts == 0 {
		opts.RenameAttempts = 1
	}

	lock := flock.New(cleanPath + LockSuffix)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	fb := &FileBackend{
		lock: lock,
		path: cleanPath,
		opts: opts,
	}
	if err := fb.open(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	fb.stats.Path = cleanPath
	return fb, nil
}

func (fb *FileBackend) open() error {
	file, err := os.OpenFile(fb.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644) // #nosec G302 - log files need to be readable
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat file: %w", err)
	}

	fb.file = file
	fb.size = info.Size()
	return nil
}

// Write appends p to the active file.
func (fb *FileBackend) Write(p []byte) (int, error) {
	if fb.file == nil {
		fb.stats.ErrorCount++
		return 0, os.ErrClosed
	}
	n, err := fb.file.Write(p)
	fb.size += int64(n)
	fb.stats.WriteCount++
	fb.stats.BytesWritten += uint64(n) // #nosec G115 - n is never negative
	if err != nil {
		fb.stats.ErrorCount++
	}
	return n, err
}

// Sync commits the active file to stable storage.
func (fb *FileBackend) Sync() error {
	if fb.file == nil {
		return nil
	}
	return fb.file.Sync()
}

// Rotate closes the active file, renames it to archivePath and opens the
// original path fresh. A failed rename reopens the original file so writing
// can continue; the returned error wraps ErrRename. A failed reopen leaves the
// backend without a file and returns an error wrapping ErrReopen.
func (fb *FileBackend) Rotate(archivePath string) error {
	if fb.file != nil {
		if err := fb.file.Close(); err != nil {
			fb.stats.ErrorCount++
		}
		fb.file = nil
	}

	renameErr := retry.New(
		retry.Attempts(fb.opts.RenameAttempts),
		retry.Delay(fb.opts.RenameDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, os.ErrNotExist) }),
	).Do(func() error {
		return os.Rename(fb.path, filepath.Clean(archivePath))
	})

	if err := fb.open(); err != nil {
		fb.stats.ErrorCount++
		if renameErr != nil {
			return fmt.Errorf("%w: %w (after rename failure: %v)", ErrReopen, err, renameErr)
		}
		return fmt.Errorf("%w: %w", ErrReopen, err)
	}
	if renameErr != nil {
		fb.stats.ErrorCount++
		return fmt.Errorf("%w: %w", ErrRename, renameErr)
	}

	fb.stats.Rotations++
	return nil
}

// Size returns the current file size
func (fb *FileBackend) Size() int64 {
	return fb.size
}

// Path returns the file path
func (fb *FileBackend) Path() string {
	return fb.path
}

// GetStats returns backend statistics
func (fb *FileBackend) GetStats() BackendStats {
	stats := fb.stats
	stats.Size = fb.size
	return stats
}

// Close syncs and closes the active file and releases the lock. The lock
// file itself stays on disk; removing it would race with a waiting process.
func (fb *FileBackend) Close() error {
	var errs []error

	if fb.file != nil {
		if err := fb.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync: %w", err))
		}
		if err := fb.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close file: %w", err))
		}
		fb.file = nil
	}

	if fb.lock != nil {
		if err := fb.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("unlock: %w", err))
		}
		fb.lock = nil
	}

	return errors.Join(errs...)
}

// IsDiskFull reports whether err means the device ran out of space.
func IsDiskFull(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full")
}
