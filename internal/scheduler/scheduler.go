package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/kisaansetu/kisaan-setu/internal/logger"
	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

const fetchTimeout = 30 * time.Second

// Refresher fetches and stores a report for one location.
type Refresher interface {
	FetchAndStore(ctx context.Context, loc weather.Location) error
}

// Sweeper evicts stale entries: idle dashboards or expired cache keys.
type Sweeper interface {
	Sweep() int
	Len() int
}

// Scheduler periodically refreshes tracked farms and evicts idle dashboards.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	locations []weather.Location
	interval  time.Duration

	sweeper       Sweeper
	sweepInterval time.Duration
	onSweep       func(live int)

	cache         Sweeper
	cacheInterval time.Duration
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithSweeper runs sw every interval. onSweep, if set, receives the number of
// dashboards left afterwards.
func WithSweeper(sw Sweeper, interval time.Duration, onSweep func(live int)) Option {
	return func(s *Scheduler) {
		s.sweeper = sw
		s.sweepInterval = interval
		s.onSweep = onSweep
	}
}

// WithCacheSweeper drops expired entries from an in-process cache every
// interval.
func WithCacheSweeper(c Sweeper, interval time.Duration) Option {
	return func(s *Scheduler) {
		s.cache = c
		s.cacheInterval = interval
	}
}

// New creates a new Scheduler.
func New(locations []weather.Location, interval time.Duration, refresher Refresher, opts ...Option) *Scheduler {
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		locations: locations,
		interval:  interval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the periodic jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	log := logger.GetLogger()

	if len(s.locations) == 0 {
		log.Info("scheduler: no tracked farms configured; skipping refresh job")
	} else {
		interval := s.interval
		if interval <= 0 {
			interval = 15 * time.Minute
		}
		if _, err := s.scheduler.Every(interval).Do(s.RefreshAll); err != nil {
			return err
		}
	}

	if s.sweeper != nil && s.sweepInterval > 0 {
		if _, err := s.scheduler.Every(s.sweepInterval).WaitForSchedule().Do(s.SweepDashboards); err != nil {
			return err
		}
	}

	if s.cache != nil && s.cacheInterval > 0 {
		if _, err := s.scheduler.Every(s.cacheInterval).WaitForSchedule().Do(s.SweepCache); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// RefreshAll fetches every tracked farm concurrently and waits for all of
// them. Failures are logged and leave the previous report in place.
func (s *Scheduler) RefreshAll() {
	log := logger.GetLogger()
	log.Infow("scheduler: running weather fetch job", "locations", len(s.locations))

	var wg sync.WaitGroup
	for _, loc := range s.locations {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
			defer cancel()

			if err := s.refresher.FetchAndStore(ctx, loc); err != nil {
				log.Warnw("scheduler: fetch failed", "location", loc.DisplayName(), "error", err)
			}
		}()
	}
	wg.Wait()
	log.Info("scheduler: completed weather fetch job")
}

// SweepDashboards evicts idle dashboards once.
func (s *Scheduler) SweepDashboards() {
	removed := s.sweeper.Sweep()
	live := s.sweeper.Len()
	if removed > 0 {
		logger.GetLogger().Infow("scheduler: evicted idle dashboards", "removed", removed, "live", live)
	}
	if s.onSweep != nil {
		s.onSweep(live)
	}
}

// SweepCache drops expired cache entries once.
func (s *Scheduler) SweepCache() {
	if removed := s.cache.Sweep(); removed > 0 {
		logger.GetLogger().Debugw("scheduler: dropped expired cache entries", "removed", removed, "live", s.cache.Len())
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
