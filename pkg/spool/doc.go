// Package spool provides a buffered, rotating, compressing log sink.
//
// Any number of goroutines submit formatted log lines to a Sink. A single
// background worker owns all mutable state: it accumulates lines in a bounded
// in-memory buffer, writes the buffer to the active log file when it fills up
// or when asked to, and rotates the file once it grows past a size threshold.
// Rotated files are renamed with a sortable timestamp, compressed with gzip on
// a small worker pool and pruned so that at most Retain archives are kept.
//
// Producers never block on I/O. Submit, Flush and Rotate enqueue a message and
// return immediately; messages are handled strictly in the order they were
// received.
//
// Basic Usage:
//
//	cfg := spool.DefaultConfig()
//	cfg.Path = "/var/log/app/m.log"
//	sink, err := spool.Open(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sink.Close()
//
//	logger := spool.NewLogger(sink, spool.LevelInfo)
//	logger.Infof("service started on %s", addr)
//
// Rotation:
//
// When an entry would push the active file past RotateSize, the file is
// rotated before the entry is accounted for:
//
//	m.log -> m.240115.143052.123.log -> m.240115.143052.123.log.gz
//
// Archive names embed local time with millisecond precision and are strictly
// increasing for one sink, so lexical order is chronological order.
//
// On-disk layout for a sink opened on "logs/m.log":
//
//	logs/m.log                         active file
//	logs/m.log.lock                    single-instance lock
//	logs/m.<yyMMdd>.<HHmmss>.<mmm>.log.gz  archives, at most Retain
//
// Errors:
//
// Problems at startup are returned from Open as *Error values. Once running,
// I/O errors are passed to Config.ErrorHandler and the offending write is
// dropped; the sink keeps running. Only a failure to reopen the active file
// after a rotation stops the sink, after which producers get ErrStopped.
package spool
