package backends

// Backend is the destination a sink flushes its buffer to. It is owned by a
// single goroutine and is not safe for concurrent use.
type Backend interface {
	// Write appends p to the active file
	Write(p []byte) (int, error)

	// Sync commits written data to stable storage
	Sync() error

	// Rotate moves the active file to archivePath and reopens the original
	// path as a fresh, empty file
	Rotate(archivePath string) error

	// Size returns the number of bytes in the active file
	Size() int64

	// Path returns the active file path
	Path() string

	// Close closes the active file and releases the instance lock
	Close() error
}

// BackendStats represents statistics for a backend
type BackendStats struct {
	Path         string
	Size         int64
	WriteCount   uint64
	BytesWritten uint64
	ErrorCount   uint64
	Rotations    uint64
}
