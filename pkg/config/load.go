// Package config loads spool sink configuration from YAML or JSON files and
// watches them for changes.
//
// Keys mirror the fields of spool.Config:
//
//	level: info
//	path: logs/m.log
//	retain: 10
//	buffer_size: 1024
//	rotate_size: 5120
//	stdout: false
//	compression_workers: 1
//	compression_queue: 16
//	max_write_failures: 5
//	breaker_timeout: 30s
//	rename_attempts: 3
//	rename_delay: 10ms
//	flush_interval: 1s
//	rotate_schedule: "@midnight"
//
// Missing keys keep the values of spool.DefaultConfig.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/spool/pkg/spool"
)

// Format is the encoding of a configuration document.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor JSON.
var ErrUnsupportedFormat = errors.New("config: unsupported format")

// fileConfig is the serialized form of spool.Config.
type fileConfig struct {
	Level              string        `koanf:"level"`
	Path               string        `koanf:"path"`
	Retain             int           `koanf:"retain"`
	BufferSize         int           `koanf:"buffer_size"`
	RotateSize         int64         `koanf:"rotate_size"`
	Stdout             bool          `koanf:"stdout"`
	CompressionWorkers int           `koanf:"compression_workers"`
	CompressionQueue   int           `koanf:"compression_queue"`
	CompressionLevel   int           `koanf:"compression_level"`
	MaxWriteFailures   uint32        `koanf:"max_write_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
	RenameAttempts     uint          `koanf:"rename_attempts"`
	RenameDelay        time.Duration `koanf:"rename_delay"`
	FlushInterval      time.Duration `koanf:"flush_interval"`
	RotateSchedule     string        `koanf:"rotate_schedule"`
}

func fromConfig(c spool.Config) fileConfig {
	return fileConfig{
		Level:              strings.ToLower(c.Level.String()),
		Path:               c.Path,
		Retain:             c.Retain,
		BufferSize:         c.BufferSize,
		RotateSize:         c.RotateSize,
		Stdout:             c.Stdout,
		CompressionWorkers: c.CompressionWorkers,
		CompressionQueue:   c.CompressionQueue,
		CompressionLevel:   c.CompressionLevel,
		MaxWriteFailures:   c.MaxWriteFailures,
		BreakerTimeout:     c.BreakerTimeout,
		RenameAttempts:     c.RenameAttempts,
		RenameDelay:        c.RenameDelay,
		FlushInterval:      c.FlushInterval,
		RotateSchedule:     c.RotateSchedule,
	}
}

// apply copies the serialized fields onto base, keeping its handlers and
// writers.
func (f fileConfig) apply(base spool.Config) (spool.Config, error) {
	level, err := spool.ParseLevel(f.Level)
	if err != nil {
		return base, err
	}
	base.Level = level
	base.Path = f.Path
	base.Retain = f.Retain
	base.BufferSize = f.BufferSize
	base.RotateSize = f.RotateSize
	base.Stdout = f.Stdout
	base.CompressionWorkers = f.CompressionWorkers
	base.CompressionQueue = f.CompressionQueue
	base.CompressionLevel = f.CompressionLevel
	base.MaxWriteFailures = f.MaxWriteFailures
	base.BreakerTimeout = f.BreakerTimeout
	base.RenameAttempts = f.RenameAttempts
	base.RenameDelay = f.RenameDelay
	base.FlushInterval = f.FlushInterval
	base.RotateSchedule = f.RotateSchedule
	return base, nil
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedFormat, "%s", path)
	}
}

// Load reads a configuration file. The format is taken from its extension.
//
// Example:
//
//	cfg, err := config.Load("/etc/app/spool.yaml")
//	if err != nil {
//		return err
//	}
//	sink, err := spool.Open(cfg)
func Load(path string) (spool.Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return spool.Config{}, err
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return spool.Config{}, errors.Wrap(err, "reading config file")
	}
	return LoadBytes(data, format)
}

// LoadBytes parses a configuration document on top of spool.DefaultConfig.
// The result is not validated; spool.Open does that.
func LoadBytes(data []byte, format Format) (spool.Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return spool.Config{}, errors.Wrapf(ErrUnsupportedFormat, "%q", format)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return spool.Config{}, errors.Wrap(err, "parsing config")
	}

	base := spool.DefaultConfig()
	fc := fromConfig(base)
	if err := k.UnmarshalWithConf("", &fc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return spool.Config{}, errors.Wrap(err, "decoding config")
	}

	cfg, err := fc.apply(base)
	if err != nil {
		return spool.Config{}, errors.Wrap(err, "decoding config")
	}
	return cfg, nil
}
