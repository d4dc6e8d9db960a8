package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	th "github.com/wayneeseguin/spool/internal/testing"
	"github.com/wayneeseguin/spool/pkg/spool"
)

func TestLoadBytesYAML(t *testing.T) {
	data := []byte(`
level: debug
path: logs/m.log
retain: 3
buffer_size: 64
rotate_size: 4096
stdout: true
compression_workers: 2
breaker_timeout: 5s
rename_delay: 25ms
rotate_schedule: "@midnight"
`)

	cfg, err := LoadBytes(data, FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, spool.LevelDebug, cfg.Level)
	assert.Equal(t, "logs/m.log", cfg.Path)
	assert.Equal(t, 3, cfg.Retain)
	assert.Equal(t, 64, cfg.BufferSize)
	assert.Equal(t, int64(4096), cfg.RotateSize)
	assert.True(t, cfg.Stdout)
	assert.Equal(t, 2, cfg.CompressionWorkers)
	assert.Equal(t, 5*time.Second, cfg.BreakerTimeout)
	assert.Equal(t, 25*time.Millisecond, cfg.RenameDelay)
	assert.Equal(t, "@midnight", cfg.RotateSchedule)

	// Unset keys keep their defaults.
	def := spool.DefaultConfig()
	assert.Equal(t, def.CompressionQueue, cfg.CompressionQueue)
	assert.Equal(t, def.MaxWriteFailures, cfg.MaxWriteFailures)
	assert.Equal(t, def.FlushInterval, cfg.FlushInterval)
	assert.NotNil(t, cfg.ErrorHandler)
	assert.NoError(t, cfg.Validate())
}

func TestLoadBytesJSON(t *testing.T) {
	data := []byte(`{"level": "warn", "path": "m.log", "retain": 0, "flush_interval": "250ms"}`)

	cfg, err := LoadBytes(data, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, spool.LevelWarn, cfg.Level)
	assert.Equal(t, 0, cfg.Retain)
	assert.Equal(t, 250*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, 1024, cfg.BufferSize)
}

func TestLoadBytesErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"bad level", "level: loud\n", FormatYAML},
		{"bad yaml", "level: [\n", FormatYAML},
		{"bad json", "{", FormatJSON},
		{"wrong type", "buffer_size: lots\n", FormatYAML},
		{"unknown format", "", Format("toml")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spool.yml")
	th.WriteFile(t, path, "path: app.log\nretain: 4\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "app.log", cfg.Path)
	assert.Equal(t, 4, cfg.Retain)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "spool.ini"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"a.yaml": FormatYAML,
		"a.YML":  FormatYAML,
		"a.json": FormatJSON,
	}
	for path, want := range tests {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := FormatFromPath("a.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
