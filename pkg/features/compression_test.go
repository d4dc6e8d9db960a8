package features

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	th "github.com/wayneeseguin/spool/internal/testing"
)

func TestCompressFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "m.240115.143052.123.log")
	content := strings.Repeat("log line\n", 200)
	th.WriteFile(t, src, content)

	require.NoError(t, CompressFile(src, src+CompressSuffix, gzip.DefaultCompression))

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source should be removed after compression")
	assert.Equal(t, content, th.ReadGzip(t, src+CompressSuffix))
}

func TestCompressFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "missing.log")

	err := CompressFile(src, src+CompressSuffix, gzip.DefaultCompression)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))

	_, statErr := os.Stat(src + CompressSuffix)
	assert.True(t, os.IsNotExist(statErr), "no output should be left behind")
}

func TestCompressFileOverwritesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "m.log")
	th.WriteFile(t, src, "complete\n")
	th.WriteFile(t, src+CompressSuffix, "garbage from an interrupted run")

	require.NoError(t, CompressFile(src, src+CompressSuffix, gzip.BestSpeed))
	assert.Equal(t, "complete\n", th.ReadGzip(t, src+CompressSuffix))
}

func TestCompressionManagerPool(t *testing.T) {
	dir := t.TempDir()
	cm := NewCompressionManager(2, 8)

	var mu sync.Mutex
	done := map[string]error{}
	cm.SetCompletionCallback(func(job CompressJob, err error) {
		mu.Lock()
		defer mu.Unlock()
		done[job.Target] = err
	})

	var events []string
	cm.SetMetricsHandler(func(event string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	})

	cm.Start()
	cm.Start() // idempotent

	for _, name := range []string{"a.log", "b.log", "c.log"} {
		src := filepath.Join(dir, name)
		th.WriteFile(t, src, name)
		cm.Submit(CompressJob{Source: src, Target: src + CompressSuffix})
	}
	cm.Stop()
	cm.Stop() // idempotent

	require.Len(t, done, 3)
	for target, err := range done {
		assert.NoError(t, err, target)
		assert.FileExists(t, target)
	}
	assert.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, "compression_completed", e)
	}
	assert.Equal(t, 2, cm.Workers())
	assert.Zero(t, cm.QueueLength())
}

func TestCompressionManagerInlineWhenStopped(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.log")
	th.WriteFile(t, src, "inline\n")

	cm := NewCompressionManager(1, 1)
	var events []string
	cm.SetMetricsHandler(func(event string) { events = append(events, event) })

	cm.Submit(CompressJob{Source: src, Target: src + CompressSuffix})

	assert.Equal(t, []string{"compression_inline", "compression_completed"}, events)
	assert.Equal(t, "inline\n", th.ReadGzip(t, src+CompressSuffix))
}

func TestCompressionManagerQueueFullRunsInline(t *testing.T) {
	dir := t.TempDir()
	cm := NewCompressionManager(1, 0)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	var once sync.Once
	cm.SetCompletionCallback(func(job CompressJob, err error) {
		once.Do(func() {
			started <- struct{}{}
			<-block
		})
	})
	cm.Start()
	defer cm.Stop()

	first := filepath.Join(dir, "first.log")
	th.WriteFile(t, first, "1")
	// An unbuffered queue only accepts a job when the worker is idle.
	th.WaitFor(t, time.Second, func() bool {
		select {
		case cm.jobs <- CompressJob{Source: first, Target: first + CompressSuffix}:
			return true
		default:
			return false
		}
	}, "worker accepts first job")
	<-started

	var inline bool
	cm.SetMetricsHandler(func(event string) {
		if event == "compression_inline" {
			inline = true
		}
	})

	second := filepath.Join(dir, "second.log")
	th.WriteFile(t, second, "2")
	cm.Submit(CompressJob{Source: second, Target: second + CompressSuffix})

	assert.True(t, inline, "busy pool should push the job back to the caller")
	assert.FileExists(t, second+CompressSuffix)
	close(block)
}

func TestCompressionManagerReportsFailure(t *testing.T) {
	cm := NewCompressionManager(1, 1)

	var source, message string
	var reported error
	cm.SetErrorHandler(func(src, dest, msg string, err error) {
		source, message, reported = src, msg, err
	})
	var completionErr error
	cm.SetCompletionCallback(func(job CompressJob, err error) { completionErr = err })

	missing := filepath.Join(t.TempDir(), "nope.log")
	cm.Submit(CompressJob{Source: missing, Target: missing + CompressSuffix})

	assert.Equal(t, "compress", source)
	assert.Equal(t, "Failed to compress rotated log", message)
	assert.Error(t, reported)
	assert.Error(t, completionErr)
}

func TestCompressionManagerSetLevel(t *testing.T) {
	cm := NewCompressionManager(0, -1)
	assert.Equal(t, 1, cm.Workers())

	assert.NoError(t, cm.SetLevel(gzip.BestCompression))
	assert.Error(t, cm.SetLevel(42))
}

func TestCompressionManagerSkipsUnwantedJobs(t *testing.T) {
	cm := NewCompressionManager(1, 1)

	var events []string
	cm.SetMetricsHandler(func(event string) { events = append(events, event) })
	cm.SetErrorHandler(func(src, dest, msg string, err error) {
		t.Errorf("unexpected error for %s: %v", src, err)
	})
	cm.SetCompletionCallback(func(job CompressJob, err error) {
		t.Errorf("unexpected completion for %s", job.Source)
	})
	cm.SetSkipCheck(func(CompressJob) bool { return true })

	src := filepath.Join(t.TempDir(), "m.240115.143052.123.log")
	th.WriteFile(t, src, "kept\n")
	cm.Submit(CompressJob{Source: src, Target: src + CompressSuffix})

	assert.Equal(t, []string{"compression_inline", "compression_skipped"}, events)
	assert.FileExists(t, src)
	assert.NoFileExists(t, src+CompressSuffix)
}

func TestCompressionManagerMissingSourceOfDroppedJob(t *testing.T) {
	cm := NewCompressionManager(1, 1)

	var events []string
	cm.SetMetricsHandler(func(event string) { events = append(events, event) })
	cm.SetErrorHandler(func(src, dest, msg string, err error) {
		t.Errorf("unexpected error for %s: %v", src, err)
	})

	// Wanted when the job starts, dropped by the time the source is opened.
	checks := 0
	cm.SetSkipCheck(func(CompressJob) bool {
		checks++
		return checks > 1
	})

	missing := filepath.Join(t.TempDir(), "m.240115.143052.123.log")
	cm.Submit(CompressJob{Source: missing, Target: missing + CompressSuffix})

	assert.Equal(t, 2, checks)
	assert.Equal(t, []string{"compression_inline", "compression_skipped"}, events)
}
