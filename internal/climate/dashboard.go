// Package climate implements the climate dashboard: location search with
// debounced suggestions, device location, and the concurrent weather fetch
// whose results are applied all at once.
package climate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kisaansetu/kisaan-setu/internal/logger"
	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

const (
	CurrentLocationLabel = "Your Current Location"
	UnsupportedAlert     = "Geolocation not supported"
)

// ErrSuperseded is returned by a fetch whose result was discarded because a
// newer fetch was issued while it was in flight.
var ErrSuperseded = errors.New("superseded by a newer request")

// ReportFetcher produces a complete climate report for a location.
type ReportFetcher interface {
	FetchReport(ctx context.Context, loc weather.Location) (weather.ClimateReport, error)
}

// State is a snapshot of everything the dashboard renders.
type State struct {
	Loading          bool                     `json:"loading"`
	Error            bool                     `json:"error"`
	SelectedLocation string                   `json:"selectedLocation"`
	SearchTerm       string                   `json:"searchTerm"`
	Suggestions      []weather.Location       `json:"suggestions"`
	Current          *weather.WeatherSnapshot `json:"current"`
	AirQuality       *int                     `json:"airQualityIndex"`
	Next24Hours      []weather.ForecastEntry  `json:"next24Hours"`
	Periodic         []weather.ForecastEntry  `json:"periodicForecast"`
	FetchedAt        *time.Time               `json:"fetchedAt,omitempty"`
	Alerts           []string                 `json:"alerts,omitempty"`
}

// Dashboard is one user's climate view. It is safe for concurrent use.
type Dashboard struct {
	mu    sync.Mutex
	state State

	fetcher  ReportFetcher
	search   *searchController
	reverse  weather.ReverseGeocoder
	fetchSeq atomic.Uint64

	lastActive atomic.Int64
	log        *zap.SugaredLogger
}

// Option customizes a Dashboard.
type Option func(*dashboardOptions)

type dashboardOptions struct {
	debounce time.Duration
	reverse  weather.ReverseGeocoder
	log      *zap.SugaredLogger
}

// WithDebounce overrides the search quiet period.
func WithDebounce(d time.Duration) Option {
	return func(o *dashboardOptions) { o.debounce = d }
}

// WithReverseGeocoder names device positions instead of using a generic label.
func WithReverseGeocoder(r weather.ReverseGeocoder) Option {
	return func(o *dashboardOptions) { o.reverse = r }
}

// WithLogger replaces the global logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *dashboardOptions) { o.log = l }
}

func NewDashboard(fetcher ReportFetcher, geocoder weather.Geocoder, opts ...Option) *Dashboard {
	o := dashboardOptions{debounce: DefaultSearchDebounce}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.GetLogger()
	}

	d := &Dashboard{
		fetcher: fetcher,
		search:  newSearchController(geocoder, o.debounce),
		reverse: o.reverse,
		log:     o.log,
	}
	d.touch()
	return d
}

// State returns a copy of the current dashboard state.
func (d *Dashboard) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.state
	s.Suggestions = slices.Clone(s.Suggestions)
	s.Next24Hours = slices.Clone(s.Next24Hours)
	s.Periodic = slices.Clone(s.Periodic)
	s.Alerts = slices.Clone(s.Alerts)
	if s.Current != nil {
		c := *s.Current
		s.Current = &c
	}
	if s.AirQuality != nil {
		v := *s.AirQuality
		s.AirQuality = &v
	}
	return s
}

// Search records the query and schedules a debounced suggestion lookup. A
// blank query clears suggestions and cancels any pending lookup.
func (d *Dashboard) Search(query string) {
	d.touch()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.SearchTerm = query
	if strings.TrimSpace(query) == "" {
		d.search.cancel()
		d.state.Suggestions = nil
		return
	}

	d.search.schedule(func(token uint64) {
		d.runLookup(token, query)
	})
}

func (d *Dashboard) runLookup(token uint64, query string) {
	locs, err := d.search.lookup(query)

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.search.current(token) {
		d.log.Debugw("Discarding stale suggestions", "query", query)
		return
	}
	if err != nil {
		d.log.Warnw("Geocoding error", "query", query, "error", err)
		d.state.Suggestions = nil
		return
	}
	if len(locs) > weather.SuggestionLimit {
		locs = locs[:weather.SuggestionLimit]
	}
	d.state.Suggestions = locs
}

// Submit selects the first suggestion, if there is one.
func (d *Dashboard) Submit(ctx context.Context) error {
	d.mu.Lock()
	if len(d.state.Suggestions) == 0 {
		d.mu.Unlock()
		return nil
	}
	first := d.state.Suggestions[0]
	d.mu.Unlock()

	return d.SelectLocation(ctx, first)
}

// SelectLocation clears the search box and fetches weather for candidate.
// The search state is cleared before the fetch starts.
func (d *Dashboard) SelectLocation(ctx context.Context, candidate weather.Location) error {
	d.touch()

	d.mu.Lock()
	d.state.SelectedLocation = candidate.DisplayName()
	d.state.SearchTerm = ""
	d.state.Suggestions = nil
	d.search.cancel()
	d.mu.Unlock()

	return d.fetch(ctx, candidate)
}

// UseCurrentLocation fetches weather for the device position. Without a
// geolocation capability it raises an alert and returns immediately, never
// entering the loading state.
func (d *Dashboard) UseCurrentLocation(ctx context.Context, geo Geolocator) error {
	d.touch()

	if geo == nil || !geo.Supported() {
		d.mu.Lock()
		d.state.Alerts = append(d.state.Alerts, UnsupportedAlert)
		d.mu.Unlock()
		return ErrGeolocationUnsupported
	}

	// A select or fetch issued while the position is pending owns the
	// loading and error flags from then on.
	token := d.fetchSeq.Add(1)

	d.mu.Lock()
	d.state.Loading = true
	d.mu.Unlock()

	pos, err := geo.CurrentPosition(ctx)
	if err != nil {
		d.log.Warnw("Geolocation failed", "error", err)
		d.mu.Lock()
		defer d.mu.Unlock()
		if token != d.fetchSeq.Load() {
			return ErrSuperseded
		}
		d.state.Error = true
		d.state.Loading = false
		return fmt.Errorf("current position: %w", err)
	}

	loc := weather.Location{Lat: pos.Lat, Lon: pos.Lon}
	label := CurrentLocationLabel
	if d.reverse != nil {
		named, err := d.reverse.ReverseGeocode(ctx, pos.Lat, pos.Lon)
		if err != nil {
			d.log.Infow("Reverse geocoding failed; using generic label", "error", err)
		} else {
			loc = named
			label = named.DisplayName()
		}
	}

	d.mu.Lock()
	if token != d.fetchSeq.Load() {
		d.mu.Unlock()
		return ErrSuperseded
	}
	d.state.SelectedLocation = label
	d.mu.Unlock()

	return d.fetch(ctx, loc)
}

// FetchWeather loads current conditions, air quality and forecast for the
// coordinates.
func (d *Dashboard) FetchWeather(ctx context.Context, lat, lon float64) error {
	d.touch()
	return d.fetch(ctx, weather.Location{Lat: lat, Lon: lon})
}

func (d *Dashboard) fetch(ctx context.Context, loc weather.Location) error {
	token := d.fetchSeq.Add(1)

	d.mu.Lock()
	d.state.Loading = true
	d.state.Error = false
	d.mu.Unlock()

	report, err := d.fetcher.FetchReport(ctx, loc)

	d.mu.Lock()
	defer d.mu.Unlock()

	if token != d.fetchSeq.Load() {
		d.log.Debugw("Discarding stale weather response", "location", loc.Key(), "token", token)
		return ErrSuperseded
	}

	d.state.Loading = false

	if err != nil {
		d.log.Errorw("Weather fetch failed", "location", loc.Key(), "error", err)
		d.state.Error = true
		return err
	}

	current := report.Current
	fetchedAt := report.FetchedAt
	d.state.Current = &current
	d.state.AirQuality = report.AirQuality
	d.state.Next24Hours = report.Next24Hours
	d.state.Periodic = report.Periodic
	d.state.FetchedAt = &fetchedAt
	return nil
}

// DismissAlerts clears raised alerts.
func (d *Dashboard) DismissAlerts() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Alerts = nil
}

// Close cancels any pending search.
func (d *Dashboard) Close() {
	d.search.cancel()
}

// LastActive is the time of the last user-initiated operation.
func (d *Dashboard) LastActive() time.Time {
	return time.Unix(0, d.lastActive.Load())
}

func (d *Dashboard) touch() {
	d.lastActive.Store(time.Now().UnixNano())
}
