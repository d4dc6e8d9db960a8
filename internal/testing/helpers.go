package testing

import (
	"io"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Short returns true if slow tests should be skipped. This is the case when
// the -short flag is set or SPOOL_SHORT_TESTS is "true". SPOOL_LONG_TESTS set
// to "true" overrides both.
func Short() bool {
	if os.Getenv("SPOOL_LONG_TESTS") == "true" {
		return false
	}
	if os.Getenv("SPOOL_SHORT_TESTS") == "true" {
		return true
	}
	return testing.Short()
}

// SkipIfShort skips the test when running in short mode.
func SkipIfShort(t *testing.T, message ...string) {
	t.Helper()
	if Short() {
		msg := "Skipping slow test in short mode"
		if len(message) > 0 {
			msg = message[0]
		}
		t.Skip(msg)
	}
}

// WaitFor polls cond every few milliseconds until it returns true or the
// timeout expires, in which case the test fails.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v waiting for: %s", timeout, msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ReadFile returns the content of path as a string, failing the test on error.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

// ReadGzip returns the decompressed content of a gzip file.
func ReadGzip(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader for %s: %v", path, err)
	}
	defer gr.Close()

	data, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("decompressing %s: %v", path, err)
	}
	return string(data)
}

// DirNames returns the sorted file names in dir.
func DirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// WriteFile creates path with content, failing the test on error.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// WriteGzip creates a gzip file at path holding content.
func WriteGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	gw := gzip.NewWriter(f)
	if _, err := io.WriteString(gw, content); err != nil {
		t.Fatalf("writing gzip %s: %v", path, err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("closing gzip %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing %s: %v", path, err)
	}
}
