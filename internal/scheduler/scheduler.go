package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/skycalc/internal/skycalc"
)

// SessionSource lists the sessions that may need a refresh.
type SessionSource interface {
	Sessions() []*skycalc.Session
}

// Scheduler periodically refreshes the almanac-derived parameters of tracked
// sessions at the current UTC time.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sessions  SessionSource
	interval  time.Duration
	timeout   time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// New creates a new Scheduler.
func New(sessions SessionSource, interval time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		sessions:  sessions,
		interval:  interval,
		timeout:   30 * time.Second,
		now:       time.Now,
		log:       log.Named("scheduler"),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	_, err := s.scheduler.Every(interval).WaitForSchedule().Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.Info("almanac refresh scheduled", zap.Duration("interval", interval))
	return nil
}

// RunOnce refreshes every tracked session concurrently and waits for all of
// them. Sessions without a pointing are skipped.
func (s *Scheduler) RunOnce() {
	at := s.now().UTC()

	var wg sync.WaitGroup
	refreshed := 0
	for _, sess := range s.sessions.Sessions() {
		if !sess.Tracked() {
			continue
		}
		refreshed++
		wg.Add(1)
		go func(sess *skycalc.Session) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()

			report, err := sess.RefreshAlmanac(ctx, at)
			if err != nil {
				s.log.Warn("almanac refresh failed", zap.String("session", sess.ID), zap.Error(err))
				return
			}
			s.log.Debug("almanac refreshed",
				zap.String("session", sess.ID),
				zap.Int("applied", report.Applied),
				zap.Int("rejected", len(report.Failures)),
			)
		}(sess)
	}
	wg.Wait()

	if refreshed > 0 {
		s.log.Info("completed almanac refresh", zap.Int("sessions", refreshed), zap.Time("at", at))
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
