package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	applogger "FieldScan/pkg/logger"
)

// Job is one scheduled unit of work. The context is cancelled on Stop.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on standard five-field cron expressions. A job still
// running when its next tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	l      *applogger.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(l *applogger.Logger, opts ...cron.Option) *Scheduler {
	if l == nil {
		l = applogger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	opts = append([]cron.Option{
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	}, opts...)
	return &Scheduler{cron: cron.New(opts...), l: l, ctx: ctx, cancel: cancel}
}

// Register adds job under a cron schedule. An empty schedule disables the job.
func (s *Scheduler) Register(name, schedule string, job Job) error {
	if schedule == "" {
		s.l.Info("scheduled job disabled", applogger.String("job", name))
		return nil
	}
	_, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		s.l.Info("scheduled job started", applogger.String("job", name))
		if err := job(s.ctx); err != nil {
			s.l.Error("scheduled job failed", applogger.String("job", name), applogger.Error(err))
			return
		}
		s.l.Info("scheduled job finished",
			applogger.String("job", name),
			applogger.Duration("elapsed", time.Since(start)),
		)
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	return nil
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.l.Info("scheduler started", applogger.Int("jobs", s.Entries()))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.l.Info("scheduler stopped")
}
