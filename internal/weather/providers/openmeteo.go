package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

const (
	defaultOpenMeteoForecastURL   = "https://api.open-meteo.com/v1/forecast"
	defaultOpenMeteoAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
	defaultOpenMeteoGeocodeURL    = "https://geocoding-api.open-meteo.com/v1/search"

	openMeteoForecastDays = 5
)

// OpenMeteoProvider is a keyless alternative to OpenWeatherMap. Its hourly
// timeline is thinned to the same 3-hour step and its European AQI is
// folded onto the 1-5 scale so the dashboard derives identical views.
type OpenMeteoProvider struct {
	name          string
	forecastURL   string
	airQualityURL string
	geocodeURL    string
	httpCfg       HTTPClientConfig
	circuit       *gobreaker.CircuitBreaker
	now           func() time.Time
}

var (
	_ weather.Source   = (*OpenMeteoProvider)(nil)
	_ weather.Geocoder = (*OpenMeteoProvider)(nil)
)

// OpenMeteoOption customizes an OpenMeteoProvider.
type OpenMeteoOption func(*OpenMeteoProvider)

// WithOpenMeteoHost serves all three Open-Meteo APIs from one host, under
// their usual paths.
func WithOpenMeteoHost(u string) OpenMeteoOption {
	return func(p *OpenMeteoProvider) {
		u = strings.TrimRight(u, "/")
		p.forecastURL = u + "/v1/forecast"
		p.airQualityURL = u + "/v1/air-quality"
		p.geocodeURL = u + "/v1/search"
	}
}

// WithOpenMeteoRetries sets how many times a failed request is retried.
func WithOpenMeteoRetries(n int) OpenMeteoOption {
	return func(p *OpenMeteoProvider) { p.httpCfg.Backoff.MaxRetries = n }
}

// WithOpenMeteoClock replaces time.Now when trimming past forecast hours.
func WithOpenMeteoClock(now func() time.Time) OpenMeteoOption {
	return func(p *OpenMeteoProvider) { p.now = now }
}

func NewOpenMeteoProvider(client *http.Client, opts ...OpenMeteoOption) *OpenMeteoProvider {
	p := &OpenMeteoProvider{
		name:          "openmeteo",
		forecastURL:   defaultOpenMeteoForecastURL,
		airQualityURL: defaultOpenMeteoAirQualityURL,
		geocodeURL:    defaultOpenMeteoGeocodeURL,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      0,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: newCircuitBreaker("openmeteo"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) CurrentWeather(ctx context.Context, lat, lon float64) (weather.WeatherSnapshot, error) {
	values := omCoordValues(lat, lon)
	values.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,surface_pressure,wind_speed_10m,weather_code")
	values.Set("daily", "sunrise,sunset")
	values.Set("forecast_days", "1")
	values.Set("wind_speed_unit", "ms")
	values.Set("timezone", "auto")

	var payload struct {
		UTCOffsetSeconds int `json:"utc_offset_seconds"`
		Current          struct {
			Time        int64   `json:"time"`
			Temperature float64 `json:"temperature_2m"`
			FeelsLike   float64 `json:"apparent_temperature"`
			Humidity    float64 `json:"relative_humidity_2m"`
			Pressure    float64 `json:"surface_pressure"`
			WindSpeed   float64 `json:"wind_speed_10m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
		Daily struct {
			Sunrise []int64 `json:"sunrise"`
			Sunset  []int64 `json:"sunset"`
		} `json:"daily"`
	}

	if err := p.getJSON(ctx, p.forecastURL, values, &payload); err != nil {
		return weather.WeatherSnapshot{}, err
	}

	ts := p.now().UTC()
	if payload.Current.Time > 0 {
		ts = time.Unix(payload.Current.Time, 0).UTC()
	}

	snap := weather.WeatherSnapshot{
		ObservedAt:     ts,
		Temperature:    payload.Current.Temperature,
		FeelsLike:      payload.Current.FeelsLike,
		Humidity:       payload.Current.Humidity,
		Pressure:       payload.Current.Pressure,
		WindSpeed:      payload.Current.WindSpeed,
		Description:    describeWeatherCode(payload.Current.WeatherCode),
		Condition:      mapOpenMeteoCondition(payload.Current.WeatherCode),
		TimezoneOffset: payload.UTCOffsetSeconds,
	}
	if len(payload.Daily.Sunrise) > 0 {
		snap.Sunrise = time.Unix(payload.Daily.Sunrise[0], 0).UTC()
	}
	if len(payload.Daily.Sunset) > 0 {
		snap.Sunset = time.Unix(payload.Daily.Sunset[0], 0).UTC()
	}
	return snap, nil
}

func (p *OpenMeteoProvider) AirPollution(ctx context.Context, lat, lon float64) ([]weather.PollutionReading, error) {
	values := omCoordValues(lat, lon)
	values.Set("current", "european_aqi")

	var payload struct {
		Current struct {
			Time        int64    `json:"time"`
			EuropeanAQI *float64 `json:"european_aqi"`
		} `json:"current"`
	}

	if err := p.getJSON(ctx, p.airQualityURL, values, &payload); err != nil {
		return nil, err
	}
	if payload.Current.EuropeanAQI == nil {
		return nil, nil
	}

	return []weather.PollutionReading{{
		Time: time.Unix(payload.Current.Time, 0).UTC(),
		AQI:  europeanAQIBand(*payload.Current.EuropeanAQI),
	}}, nil
}

func (p *OpenMeteoProvider) Forecast(ctx context.Context, lat, lon float64) ([]weather.ForecastEntry, error) {
	values := omCoordValues(lat, lon)
	values.Set("hourly", "temperature_2m,weather_code")
	values.Set("forecast_days", strconv.Itoa(openMeteoForecastDays+1))

	var payload struct {
		Hourly struct {
			Time        []int64   `json:"time"`
			Temperature []float64 `json:"temperature_2m"`
			WeatherCode []int     `json:"weather_code"`
		} `json:"hourly"`
	}

	if err := p.getJSON(ctx, p.forecastURL, values, &payload); err != nil {
		return nil, err
	}

	h := payload.Hourly
	if len(h.Temperature) != len(h.Time) || len(h.WeatherCode) != len(h.Time) {
		return nil, fmt.Errorf("%s: hourly arrays differ in length", p.name)
	}

	from := p.now().UTC().Truncate(time.Hour)
	limit := openMeteoForecastDays * weather.EntriesPerDay
	step := int(weather.ForecastStep / time.Hour)

	entries := make([]weather.ForecastEntry, 0, limit)
	for i, kept := 0, 0; i < len(h.Time) && len(entries) < limit; i++ {
		t := time.Unix(h.Time[i], 0).UTC()
		if t.Before(from) {
			continue
		}
		if kept%step == 0 {
			entries = append(entries, weather.ForecastEntry{
				Time:        t,
				Temperature: h.Temperature[i],
				Description: describeWeatherCode(h.WeatherCode[i]),
				Condition:   mapOpenMeteoCondition(h.WeatherCode[i]),
			})
		}
		kept++
	}
	return entries, nil
}

func (p *OpenMeteoProvider) Geocode(ctx context.Context, query string, limit int) ([]weather.Location, error) {
	values := url.Values{}
	values.Set("name", query)
	values.Set("count", strconv.Itoa(limit))
	values.Set("language", "en")
	values.Set("format", "json")

	var payload struct {
		Results []struct {
			Name        string  `json:"name"`
			Latitude    float64 `json:"latitude"`
			Longitude   float64 `json:"longitude"`
			CountryCode string  `json:"country_code"`
			Admin1      string  `json:"admin1"`
		} `json:"results"`
	}

	if err := p.getJSON(ctx, p.geocodeURL, values, &payload); err != nil {
		return nil, err
	}

	locs := make([]weather.Location, 0, len(payload.Results))
	for _, item := range payload.Results {
		locs = append(locs, weather.Location{
			Lat:     item.Latitude,
			Lon:     item.Longitude,
			Name:    item.Name,
			State:   item.Admin1,
			Country: item.CountryCode,
		})
	}
	return locs, nil
}

func (p *OpenMeteoProvider) getJSON(ctx context.Context, endpoint string, values url.Values, out any) error {
	buildRequest := func() (*http.Request, error) {
		q := url.Values{}
		for k, v := range values {
			q[k] = v
		}
		q.Set("timeformat", "unixtime")
		return http.NewRequest(http.MethodGet, endpoint+"?"+q.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return fmt.Errorf("%s %s: %w", p.name, endpoint, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", p.name, endpoint, err)
	}
	return nil
}

func omCoordValues(lat, lon float64) url.Values {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	return values
}

// europeanAQIBand folds the 0-100+ European index onto OpenWeather's 1-5
// scale (good, fair, moderate, poor, very poor).
func europeanAQIBand(v float64) int {
	switch {
	case v <= 20:
		return 1
	case v <= 40:
		return 2
	case v <= 60:
		return 3
	case v <= 80:
		return 4
	default:
		return 5
	}
}

// WMO weather interpretation codes.
func mapOpenMeteoCondition(code int) weather.Condition {
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}

func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code == 1:
		return "mainly clear"
	case code == 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case (code >= 61 && code <= 67) || (code >= 80 && code <= 82):
		return "rain"
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return "snow"
	case code >= 95:
		return "thunderstorm"
	default:
		return ""
	}
}
