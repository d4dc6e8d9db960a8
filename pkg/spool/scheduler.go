package spool

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Controller is the part of a sink a Scheduler drives. *Sink implements it.
type Controller interface {
	Flush() error
	Rotate() error
}

// Scheduler issues flush and rotate requests to a sink on a timetable, for
// example a flush every second and a rotation every day at midnight.
type Scheduler struct {
	cron    *cron.Cron
	target  Controller
	onError ErrorHandler
}

// NewScheduler creates a stopped scheduler for target. Specs accept an
// optional seconds field and descriptors such as "@daily".
// Request failures other than ErrClosed are passed to onError, which may be
// nil.
func NewScheduler(target Controller, onError ErrorHandler) *Scheduler {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
		cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		target:  target,
		onError: onError,
	}
}

// FlushEvery schedules a flush every interval.
func (s *Scheduler) FlushEvery(interval time.Duration) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, errors.Errorf("flush interval must be positive, got %v", interval)
	}
	return s.cron.AddJob("@every "+interval.String(), s.job("flush", s.target.Flush))
}

// RotateOn schedules a rotation for every time matching spec, e.g.
// "0 0 0 * * *" or "@midnight".
func (s *Scheduler) RotateOn(spec string) (cron.EntryID, error) {
	id, err := s.cron.AddJob(spec, s.job("rotate", s.target.Rotate))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid rotate schedule %q", spec)
	}
	return id, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs or ctx, whichever comes
// first.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) job(op string, request func() error) cron.Job {
	return cron.FuncJob(func() {
		if err := request(); err != nil && !errors.Is(err, ErrClosed) && s.onError != nil {
			s.onError(newError("schedule "+op, "", ErrorLevelWarn, err))
		}
	})
}
