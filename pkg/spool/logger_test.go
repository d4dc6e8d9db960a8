package spool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu      sync.Mutex
	entries []string
	flushes int
	err     error
}

func (r *recordingSubmitter) Submit(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, text)
	return nil
}

func (r *recordingSubmitter) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return r.err
}

func newTestLogger(level Level) (*Logger, *recordingSubmitter) {
	rec := &recordingSubmitter{}
	l := NewLogger(rec, level)
	l.now = func() time.Time {
		return time.Date(2024, 1, 15, 14, 30, 52, 123_456_789, time.Local)
	}
	return l, rec
}

func TestLoggerFormat(t *testing.T) {
	l, rec := newTestLogger(LevelTrace)

	l.Info("service ", "started")
	l.Warnf("disk at %d%%", 91)

	eol := lineEnding()
	assert.Equal(t, []string{
		"[2024-01-15 14:30:52.123 INFO] service started" + eol,
		"[2024-01-15 14:30:52.123 WARN] disk at 91%" + eol,
	}, rec.entries)
}

func TestLoggerFiltersByLevel(t *testing.T) {
	l, rec := newTestLogger(LevelWarn)

	l.Trace("t")
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")
	l.Tracef("%s", "t")
	l.Debugf("%s", "d")
	l.Infof("%s", "i")
	l.Errorf("%s", "e")

	require.Len(t, rec.entries, 3)
	assert.Contains(t, rec.entries[0], " WARN] w")
	assert.Contains(t, rec.entries[1], " ERROR] e")
	assert.Contains(t, rec.entries[2], " ERROR] e")

	assert.False(t, l.Enabled(LevelInfo))
	l.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, l.Level())
	assert.True(t, l.Enabled(LevelDebug))
	assert.False(t, l.Enabled(LevelTrace))
}

func TestLoggerLogReturnsSubmitError(t *testing.T) {
	l, rec := newTestLogger(LevelInfo)
	rec.err = ErrClosed

	assert.ErrorIs(t, l.Log(LevelError, "x"), ErrClosed)
	assert.NoError(t, l.Log(LevelDebug, "filtered"))
	assert.ErrorIs(t, l.Flush(), ErrClosed)
	assert.Equal(t, 1, rec.flushes)
}

func TestLoggerWithSink(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := testConfig(t, dir)
	s := openSink(t, cfg)

	l := NewLogger(s, LevelInfo)
	l.Infof("message %d", 1)
	require.NoError(t, l.Flush())
	syncSink(t, s)

	st := status(t, s)
	assert.Zero(t, st.BufferLen)
	assert.Equal(t, int64(len("[2024-01-15 14:30:52.123 INFO] message 1")+len(lineEnding())), st.FileSize)
}

func TestLevelParseAndString(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", LevelDebug},
		{" info ", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"Error", LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)

	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())

	var l Level
	require.NoError(t, l.UnmarshalText([]byte("error")))
	assert.Equal(t, LevelError, l)
	assert.Error(t, l.UnmarshalText([]byte("nope")))

	text, err := LevelWarn.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "warn", string(text))
}
