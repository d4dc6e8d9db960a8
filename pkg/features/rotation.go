package features

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ArchiveTimeFormat is the timestamp embedded in rotated file names:
// two-digit year, month, day, then hour, minute, second and milliseconds.
// It is fixed width so lexical order matches chronological order.
// Example: "240115.143052.123"
const ArchiveTimeFormat = "060102.150405.000"

// nowFunc is replaced in tests.
var nowFunc = time.Now

// RotationManager names rotated files, keeps the retention window and hands
// rotated files to the compression pool. The rename and reopen of the active
// file are done by the file backend; the manager owns everything after that.
//
// NextArchivePath and Commit are called from the sink worker only.
type RotationManager struct {
	mu             sync.RWMutex
	path           string
	dir            string
	stem           string
	ext            string
	pattern        *regexp.Regexp
	window         *RetentionWindow
	compressor     *CompressionManager
	last           time.Time
	errorHandler   func(source, dest, msg string, err error)
	metricsHandler func(string)
}

// NewRotationManager creates a manager for the active log at path. The
// compressor's completion callback is taken over to track archive state.
func NewRotationManager(path string, window *RetentionWindow, compressor *CompressionManager) *RotationManager {
	cleanPath := filepath.Clean(path)
	dir, stem, ext := SplitLogPath(cleanPath)

	r := &RotationManager{
		path:       cleanPath,
		dir:        dir,
		stem:       stem,
		ext:        ext,
		pattern:    archivePattern(stem, ext),
		window:     window,
		compressor: compressor,
	}
	compressor.SetCompletionCallback(r.handleCompressed)
	compressor.SetSkipCheck(r.pruned)
	return r
}

// SplitLogPath splits a log path into directory, file stem and extension
// (without the leading dot). "logs/m.log" gives ("logs", "m", "log").
func SplitLogPath(path string) (dir, stem, ext string) {
	dir = filepath.Dir(path)
	base := filepath.Base(path)
	ext = filepath.Ext(base)
	stem = strings.TrimSuffix(base, ext)
	return dir, stem, strings.TrimPrefix(ext, ".")
}

// archivePattern matches "<stem>.<yyMMdd>.<HHmmss>.<mmm>.<ext>" with an
// optional ".gz". Group 1 is the timestamp, group 2 the compression suffix.
func archivePattern(stem, ext string) *regexp.Regexp {
	tail := ""
	if ext != "" {
		tail = `\.` + regexp.QuoteMeta(ext)
	}
	return regexp.MustCompile(fmt.Sprintf(`^%s\.(\d{6}\.\d{6}\.\d{3})%s(\.gz)?$`,
		regexp.QuoteMeta(stem), tail))
}

// SetErrorHandler sets the error handling function
func (r *RotationManager) SetErrorHandler(handler func(source, dest, msg string, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorHandler = handler
}

// SetMetricsHandler sets the metrics tracking function
func (r *RotationManager) SetMetricsHandler(handler func(string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metricsHandler = handler
}

// Window returns the retention window.
func (r *RotationManager) Window() *RetentionWindow {
	return r.window
}

// ArchiveName returns the uncompressed archive path for a rotation at t.
func (r *RotationManager) ArchiveName(t time.Time) string {
	name := r.stem + "." + t.Format(ArchiveTimeFormat)
	if r.ext != "" {
		name += "." + r.ext
	}
	return filepath.Join(r.dir, name)
}

// NextArchivePath returns a fresh archive path. Names are strictly increasing
// for the lifetime of the manager and never collide with a file on disk, even
// for several rotations within one millisecond.
func (r *RotationManager) NextArchivePath() string {
	t := nowFunc().Truncate(time.Millisecond)
	if !r.last.IsZero() && !t.After(r.last) {
		t = r.last.Add(time.Millisecond)
	}
	for {
		p := r.ArchiveName(t)
		if !exists(p) && !exists(p+CompressSuffix) {
			r.last = t
			return p
		}
		t = t.Add(time.Millisecond)
	}
}

// Scan lists archives of the managed log found on disk, sorted by name.
// Uncompressed leftovers, for example from a crash during compression, are
// returned as pending.
func (r *RotationManager) Scan() ([]Archive, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading log directory")
	}

	byPath := make(map[string]Archive)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := r.pattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}

		if ts, err := time.ParseInLocation(ArchiveTimeFormat, m[1], time.Local); err == nil && ts.After(r.last) {
			r.last = ts
		}

		full := filepath.Join(r.dir, entry.Name())
		if m[2] != "" {
			if _, seen := byPath[full]; !seen {
				byPath[full] = Archive{
					Path:   full,
					Source: strings.TrimSuffix(full, CompressSuffix),
					State:  ArchiveCompressed,
				}
			}
			continue
		}
		// A leftover source wins over a possibly partial .gz.
		byPath[full+CompressSuffix] = Archive{
			Path:   full + CompressSuffix,
			Source: full,
			State:  ArchivePending,
		}
	}

	archives := make([]Archive, 0, len(byPath))
	for _, a := range byPath {
		archives = append(archives, a)
	}
	w := NewRetentionWindow(0)
	w.Seed(archives)
	return w.Snapshot(), nil
}

// Reconcile seeds the retention window from disk and queues pending archives
// for compression. It returns the seeded archives.
func (r *RotationManager) Reconcile() ([]Archive, error) {
	archives, err := r.Scan()
	if err != nil {
		return nil, err
	}
	r.window.Seed(archives)

	for _, a := range archives {
		if a.State == ArchivePending {
			r.compressor.Submit(CompressJob{Source: a.Source, Target: a.Path})
		}
	}
	return archives, nil
}

// Commit records a file just renamed to source as a new archive, prunes the
// window and schedules compression. It returns the archives pruned.
func (r *RotationManager) Commit(source string) []Archive {
	archive := Archive{
		Path:   source + CompressSuffix,
		Source: source,
		State:  ArchivePending,
	}

	pruned := r.window.Add(archive)
	keep := true
	for _, old := range pruned {
		if old.Path == archive.Path {
			keep = false
		}
		r.remove(old)
	}

	r.mu.RLock()
	metricsHandler := r.metricsHandler
	r.mu.RUnlock()
	if metricsHandler != nil {
		metricsHandler("rotation_completed")
		for range pruned {
			metricsHandler("archive_pruned")
		}
	}

	if keep {
		r.compressor.Submit(CompressJob{Source: source, Target: archive.Path})
	}
	return pruned
}

// remove deletes both files of a pruned archive. Failures are reported and
// otherwise ignored: a stale archive is less harmful than a stopped logger.
func (r *RotationManager) remove(a Archive) {
	for _, p := range []string{a.Path, a.Source} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			r.mu.RLock()
			errorHandler := r.errorHandler
			r.mu.RUnlock()
			if errorHandler != nil {
				errorHandler("prune", p, "Failed to remove old archive", err)
			}
		}
	}
}

// pruned reports whether a compression job's archive has left the window.
func (r *RotationManager) pruned(job CompressJob) bool {
	return !r.window.Contains(job.Target)
}

// handleCompressed runs on a compression worker when a job finishes.
func (r *RotationManager) handleCompressed(job CompressJob, err error) {
	if err != nil {
		return
	}
	if r.window.MarkCompressed(job.Target) {
		return
	}
	// Pruned while compression was in flight.
	_ = os.Remove(job.Target)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
