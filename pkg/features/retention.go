package features

import (
	"sort"
	"sync"
)

// ArchiveState tracks whether an archive's compressed file exists yet.
type ArchiveState int

const (
	// ArchivePending means the file was rotated out but compression has not finished.
	ArchivePending ArchiveState = iota
	// ArchiveCompressed means the .gz file is complete and the source was removed.
	ArchiveCompressed
)

// String returns a human readable state name.
func (s ArchiveState) String() string {
	switch s {
	case ArchivePending:
		return "pending"
	case ArchiveCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// Archive is one rotated log file.
type Archive struct {
	Path   string       `json:"path"`   // final compressed path (<source>.gz)
	Source string       `json:"source"` // uncompressed path produced by the rename
	State  ArchiveState `json:"state"`
}

// RetentionWindow is the ordered set of archives a sink keeps, oldest first.
// Names embed a fixed-width timestamp so lexical order is chronological.
//
// The window is mutated by the sink worker (Add) and by compression workers
// (MarkCompressed), so all access is serialized.
type RetentionWindow struct {
	mu     sync.Mutex
	retain int
	items  []Archive
}

// NewRetentionWindow creates an empty window holding at most retain archives.
func NewRetentionWindow(retain int) *RetentionWindow {
	if retain < 0 {
		retain = 0
	}
	return &RetentionWindow{retain: retain}
}

// Seed replaces the window content with archives found on disk, sorted by
// name. No pruning happens here; the bound is restored on the next Add.
func (w *RetentionWindow) Seed(archives []Archive) {
	items := make([]Archive, len(archives))
	copy(items, archives)
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })

	w.mu.Lock()
	w.items = items
	w.mu.Unlock()
}

// Add appends a new archive and returns the archives evicted to keep the
// window within its bound, oldest first. The new archive itself is evicted
// when retain is zero.
func (w *RetentionWindow) Add(a Archive) []Archive {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.items = append(w.items, a)
	if len(w.items) <= w.retain {
		return nil
	}

	n := len(w.items) - w.retain
	pruned := make([]Archive, n)
	copy(pruned, w.items[:n])
	w.items = append(w.items[:0], w.items[n:]...)
	return pruned
}

// MarkCompressed flips the archive with the given compressed path to
// ArchiveCompressed. It returns false if the archive is no longer retained.
func (w *RetentionWindow) MarkCompressed(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.items {
		if w.items[i].Path == path {
			w.items[i].State = ArchiveCompressed
			return true
		}
	}
	return false
}

// Contains reports whether an archive with the given compressed path is retained.
func (w *RetentionWindow) Contains(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, a := range w.items {
		if a.Path == path {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the window, oldest first.
func (w *RetentionWindow) Snapshot() []Archive {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Archive, len(w.items))
	copy(out, w.items)
	return out
}

// Len returns the number of retained archives.
func (w *RetentionWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Retain returns the configured bound.
func (w *RetentionWindow) Retain() int {
	return w.retain
}
