package weather

import (
	"context"
	"time"
)

// Source is a weather provider able to serve the three dashboard feeds.
type Source interface {
	CurrentWeather(ctx context.Context, lat, lon float64) (WeatherSnapshot, error)
	AirPollution(ctx context.Context, lat, lon float64) ([]PollutionReading, error)
	Forecast(ctx context.Context, lat, lon float64) ([]ForecastEntry, error)
}

// Geocoder resolves free text into candidate locations.
type Geocoder interface {
	Geocode(ctx context.Context, query string, limit int) ([]Location, error)
}

// ReverseGeocoder names a coordinate pair.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (Location, error)
}

// Store is the contract the in-memory store (and any future persistent store) must satisfy.
type Store interface {
	SaveReport(loc Location, report ClimateReport)
	GetLatest(loc Location) (ClimateReport, error)
	GetRange(loc Location, from, to time.Time) ([]ClimateReport, error)
}

// Observer receives timing for every upstream call the service makes.
type Observer interface {
	ObserveFetch(operation string, elapsed time.Duration, err error)
}
