// spool writes a stream of demo log lines through a spool sink.
//
// Usage:
//
//	spool [options]
//
// A "started" line is logged first, then every interval a line "message N"
// at info level, each followed by a flush. The sink rotates the active file once it outgrows rotate-size,
// gzips the archive in the background and keeps at most retain archives.
//
// Exit codes:
//
//	0: stopped after count messages or on SIGINT/SIGTERM
//	1: the sink could not be opened or stopped on a fatal error
//	2: invalid arguments or configuration
//
// Examples:
//
//	spool --path logs/m.log --interval 50ms
//	spool --config spool.yaml --watch
//	spool --path /tmp/m.log --count 100 --rotate-size 1024 --retain 3
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/wayneeseguin/spool/pkg/config"
	"github.com/wayneeseguin/spool/pkg/spool"
)

const (
	defaultPath     = "logs/m.log"
	defaultInterval = 50 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// Build information, set with -ldflags:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

// exitError carries the process exit code of a failed run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErr(err error) error   { return &exitError{code: 2, err: err} }
func runtimeErr(err error) error { return &exitError{code: 1, err: err} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the app and maps its error to an exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)
	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintf(stderr, "spool: %v\n", err)
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		return 2
	}
	return 0
}

func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "spool",
		Usage:     "write demo log lines through a buffered rotating sink",
		Version:   fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML or JSON configuration file",
			},
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "active log file",
				Value:   defaultPath,
			},
			&cli.StringFlag{
				Name:    "level",
				Aliases: []string{"l"},
				Usage:   "minimum level (trace, debug, info, warn, error)",
			},
			&cli.IntFlag{
				Name:  "retain",
				Usage: "archives to keep",
			},
			&cli.IntFlag{
				Name:  "buffer-size",
				Usage: "buffer capacity in bytes",
			},
			&cli.Int64Flag{
				Name:  "rotate-size",
				Usage: "rotate once the active file would exceed this many bytes",
			},
			&cli.BoolFlag{
				Name:  "stdout",
				Usage: "echo flushed output to stdout",
			},
			&cli.DurationFlag{
				Name:  "flush-every",
				Usage: "periodic flush interval, 0 disables",
			},
			&cli.StringFlag{
				Name:  "rotate-cron",
				Usage: `cron spec for forced rotation, e.g. "@midnight"`,
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "reload the level when the config file changes",
			},
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "pause between demo messages",
				Value:   defaultInterval,
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "stop after this many messages, 0 runs until interrupted",
			},
		},
		// run maps errors to exit codes; keep cli from calling os.Exit.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := buildConfig(cmd, stdout, stderr)
			if err != nil {
				return usageErr(err)
			}
			return serve(ctx, cmd, cfg)
		},
	}
}

// buildConfig loads the config file, if any, and applies flag overrides.
func buildConfig(cmd *cli.Command, stdout, stderr io.Writer) (spool.Config, error) {
	cfg := spool.DefaultConfig()
	if file := cmd.String("config"); file != "" {
		loaded, err := config.Load(file)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if cmd.IsSet("path") || cfg.Path == "" {
		cfg.Path = cmd.String("path")
	}
	if cmd.IsSet("level") {
		level, err := spool.ParseLevel(cmd.String("level"))
		if err != nil {
			return cfg, err
		}
		cfg.Level = level
	}
	if cmd.IsSet("retain") {
		cfg.Retain = cmd.Int("retain")
	}
	if cmd.IsSet("buffer-size") {
		cfg.BufferSize = cmd.Int("buffer-size")
	}
	if cmd.IsSet("rotate-size") {
		cfg.RotateSize = cmd.Int64("rotate-size")
	}
	if cmd.IsSet("stdout") {
		cfg.Stdout = cmd.Bool("stdout")
	}
	if cmd.IsSet("flush-every") {
		cfg.FlushInterval = cmd.Duration("flush-every")
	}
	if cmd.IsSet("rotate-cron") {
		cfg.RotateSchedule = cmd.String("rotate-cron")
	}
	if cmd.Bool("watch") && cmd.String("config") == "" {
		return cfg, errors.New("--watch requires --config")
	}
	if cmd.Duration("interval") <= 0 {
		return cfg, errors.New("--interval must be positive")
	}
	if cmd.Int("count") < 0 {
		return cfg, errors.New("--count must not be negative")
	}

	cfg.StdoutWriter = stdout
	cfg.ErrorHandler = spool.NewWriterErrorHandler(stderr, spool.ErrorLevelWarn)
	return cfg, cfg.Validate()
}

// serve opens the sink and logs demo messages until done.
func serve(ctx context.Context, cmd *cli.Command, cfg spool.Config) (err error) {
	sink, err := spool.Open(cfg)
	if err != nil {
		return runtimeErr(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := sink.Shutdown(shutdownCtx); closeErr != nil && err == nil {
			err = runtimeErr(closeErr)
		}
	}()

	logger := spool.NewLogger(sink, cfg.Level)

	sched := spool.NewScheduler(sink, cfg.ErrorHandler)
	if cfg.FlushInterval > 0 {
		if _, err := sched.FlushEvery(cfg.FlushInterval); err != nil {
			return usageErr(err)
		}
	}
	if cfg.RotateSchedule != "" {
		if _, err := sched.RotateOn(cfg.RotateSchedule); err != nil {
			return usageErr(err)
		}
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = sched.Stop(stopCtx)
	}()

	if cmd.Bool("watch") {
		watcher, err := config.Watch(cmd.String("config"), func(next spool.Config, err error) {
			if err != nil {
				logger.Warnf("config reload failed: %v", err)
				return
			}
			logger.SetLevel(next.Level)
			logger.Infof("log level set to %s", next.Level)
		}, 0)
		if err != nil {
			return runtimeErr(err)
		}
		defer watcher.Close()
	}

	return demo(ctx, sink, logger, cmd.Duration("interval"), cmd.Int("count"))
}

// demo logs "started", then "message N" every interval, flushing after each
// line.
func demo(ctx context.Context, sink *spool.Sink, logger *spool.Logger, interval time.Duration, count int) error {
	if err := logger.Log(spool.LevelInfo, "started"); err != nil {
		return runtimeErr(err)
	}
	if err := logger.Flush(); err != nil {
		return runtimeErr(err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 1; count == 0 || i <= count; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-sink.Stopped():
			return runtimeErr(spool.ErrStopped)
		case <-ticker.C:
		}

		if err := logger.Log(spool.LevelInfo, fmt.Sprintf("message %d", i)); err != nil {
			return runtimeErr(err)
		}
		if err := logger.Flush(); err != nil {
			return runtimeErr(err)
		}
	}
	return nil
}
