package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kisaansetu/kisaan-setu/internal/logger"
)

var (
	// ErrEmptyQuery is returned when a geocoding query is blank.
	ErrEmptyQuery = errors.New("empty geocoding query")
	// ErrNoGeocoder is returned when the service was built without a geocoder.
	ErrNoGeocoder = errors.New("no geocoder configured")
)

// Service orchestrates the weather source, geocoder and report store.
type Service struct {
	source   Source
	geocoder Geocoder
	store    Store
	observer Observer
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithObserver records upstream call timings.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithClock overrides the fetch-time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service.
func NewService(source Source, geocoder Geocoder, store Store, opts ...Option) *Service {
	s := &Service{
		source:   source,
		geocoder: geocoder,
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchReport issues the current, air pollution and forecast requests
// concurrently and joins them. Any failure fails the whole report; there is
// no partial result.
func (s *Service) FetchReport(ctx context.Context, loc Location) (ClimateReport, error) {
	var (
		current   WeatherSnapshot
		pollution []PollutionReading
		timeline  []ForecastEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = observe(s, "current", func() (WeatherSnapshot, error) {
			return s.source.CurrentWeather(gctx, loc.Lat, loc.Lon)
		})
		if err != nil {
			return fmt.Errorf("current weather: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		pollution, err = observe(s, "air_pollution", func() ([]PollutionReading, error) {
			return s.source.AirPollution(gctx, loc.Lat, loc.Lon)
		})
		if err != nil {
			return fmt.Errorf("air pollution: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		timeline, err = observe(s, "forecast", func() ([]ForecastEntry, error) {
			return s.source.Forecast(gctx, loc.Lat, loc.Lon)
		})
		if err != nil {
			return fmt.Errorf("forecast: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.GetLogger().Warnw("Weather fetch failed", "location", loc.Key(), "error", err)
		return ClimateReport{}, err
	}

	fetchedAt := s.now()
	return ClimateReport{
		Location:    loc,
		Current:     current,
		AirQuality:  AirQualityFromReadings(pollution),
		Next24Hours: Next24Hours(timeline, fetchedAt),
		Periodic:    PeriodicForecast(timeline),
		Timeline:    timeline,
		FetchedAt:   fetchedAt,
	}, nil
}

// Geocode looks up at most limit candidates for query.
func (s *Service) Geocode(ctx context.Context, query string, limit int) ([]Location, error) {
	if s.geocoder == nil {
		return nil, ErrNoGeocoder
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 || limit > SuggestionLimit {
		limit = SuggestionLimit
	}

	locs, err := observe(s, "geocode", func() ([]Location, error) {
		return s.geocoder.Geocode(ctx, query, limit)
	})
	if err != nil {
		return nil, err
	}
	if len(locs) > limit {
		locs = locs[:limit]
	}
	return locs, nil
}

// FetchAndStore fetches a report for loc and appends it to the store. A
// failed fetch leaves the last good report in place.
func (s *Service) FetchAndStore(ctx context.Context, loc Location) error {
	if s.store == nil {
		return fmt.Errorf("no report store configured")
	}
	report, err := s.FetchReport(ctx, loc)
	if err != nil {
		return err
	}
	s.store.SaveReport(loc, report)
	return nil
}

// DailySummaries aggregates a report's full timeline per local day.
func (s *Service) DailySummaries(report ClimateReport) []DailySummary {
	return SummarizeDays(report.Timeline, report.Current.TimezoneOffset)
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(loc Location) (ClimateReport, error) {
	return s.store.GetLatest(loc)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(loc Location, from, to time.Time) ([]ClimateReport, error) {
	return s.store.GetRange(loc, from, to)
}

func observe[T any](s *Service, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	if s.observer != nil {
		s.observer.ObserveFetch(op, time.Since(start), err)
	}
	return v, err
}
