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

	"github.com/kisaansetu/kisaan-setu/internal/common"
	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

const defaultOpenWeatherBaseURL = "https://api.openweathermap.org"

// OpenWeatherProvider serves current conditions, air pollution, the 5-day
// forecast and direct geocoding from OpenWeatherMap.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

var (
	_ weather.Source   = (*OpenWeatherProvider)(nil)
	_ weather.Geocoder = (*OpenWeatherProvider)(nil)
)

// OpenWeatherOption customizes an OpenWeatherProvider.
type OpenWeatherOption func(*OpenWeatherProvider)

// WithBaseURL points the provider at another host (tests, proxies).
func WithBaseURL(u string) OpenWeatherOption {
	return func(p *OpenWeatherProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) OpenWeatherOption {
	return func(p *OpenWeatherProvider) { p.httpCfg.Backoff.MaxRetries = n }
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, opts ...OpenWeatherOption) *OpenWeatherProvider {
	p := &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: defaultOpenWeatherBaseURL,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      0,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: newCircuitBreaker("openweather"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type owCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func (p *OpenWeatherProvider) CurrentWeather(ctx context.Context, lat, lon float64) (weather.WeatherSnapshot, error) {
	var payload struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  float64 `json:"humidity"`
			Pressure  float64 `json:"pressure"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Sys struct {
			Sunrise int64 `json:"sunrise"`
			Sunset  int64 `json:"sunset"`
		} `json:"sys"`
		Weather  []owCondition `json:"weather"`
		Timezone int           `json:"timezone"`
	}

	if err := p.getJSON(ctx, "/data/2.5/weather", coordValues(lat, lon, true), &payload); err != nil {
		return weather.WeatherSnapshot{}, err
	}

	ts := time.Now().UTC()
	if payload.Dt > 0 {
		ts = time.Unix(payload.Dt, 0).UTC()
	}

	first := firstCondition(payload.Weather)

	return weather.WeatherSnapshot{
		ObservedAt:     ts,
		Temperature:    payload.Main.Temp,
		FeelsLike:      payload.Main.FeelsLike,
		Humidity:       payload.Main.Humidity,
		Pressure:       payload.Main.Pressure,
		WindSpeed:      payload.Wind.Speed,
		Sunrise:        time.Unix(payload.Sys.Sunrise, 0).UTC(),
		Sunset:         time.Unix(payload.Sys.Sunset, 0).UTC(),
		Description:    first.Description,
		Icon:           first.Icon,
		Condition:      mapOpenWeatherCondition(first.Main),
		TimezoneOffset: payload.Timezone,
	}, nil
}

func (p *OpenWeatherProvider) AirPollution(ctx context.Context, lat, lon float64) ([]weather.PollutionReading, error) {
	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				AQI int `json:"aqi"`
			} `json:"main"`
		} `json:"list"`
	}

	if err := p.getJSON(ctx, "/data/2.5/air_pollution", coordValues(lat, lon, false), &payload); err != nil {
		return nil, err
	}

	readings := make([]weather.PollutionReading, 0, len(payload.List))
	for _, item := range payload.List {
		readings = append(readings, weather.PollutionReading{
			Time: time.Unix(item.Dt, 0).UTC(),
			AQI:  item.Main.AQI,
		})
	}
	return readings, nil
}

func (p *OpenWeatherProvider) Forecast(ctx context.Context, lat, lon float64) ([]weather.ForecastEntry, error) {
	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp float64 `json:"temp"`
			} `json:"main"`
			Weather []owCondition `json:"weather"`
		} `json:"list"`
	}

	if err := p.getJSON(ctx, "/data/2.5/forecast", coordValues(lat, lon, true), &payload); err != nil {
		return nil, err
	}

	entries := make([]weather.ForecastEntry, 0, len(payload.List))
	for _, item := range payload.List {
		first := firstCondition(item.Weather)
		entries = append(entries, weather.ForecastEntry{
			Time:        time.Unix(item.Dt, 0).UTC(),
			Temperature: item.Main.Temp,
			Description: first.Description,
			Icon:        first.Icon,
			Condition:   mapOpenWeatherCondition(first.Main),
		})
	}
	return entries, nil
}

func (p *OpenWeatherProvider) Geocode(ctx context.Context, query string, limit int) ([]weather.Location, error) {
	values := url.Values{}
	values.Set("q", query)
	values.Set("limit", strconv.Itoa(limit))

	var payload []struct {
		Name    string  `json:"name"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		Country string  `json:"country"`
		State   string  `json:"state"`
	}

	if err := p.getJSON(ctx, "/geo/1.0/direct", values, &payload); err != nil {
		return nil, err
	}

	locs := make([]weather.Location, 0, len(payload))
	for _, item := range payload {
		locs = append(locs, weather.Location{
			Lat:     item.Lat,
			Lon:     item.Lon,
			Name:    item.Name,
			State:   item.State,
			Country: item.Country,
		})
	}
	return locs, nil
}

func (p *OpenWeatherProvider) getJSON(ctx context.Context, path string, values url.Values, out any) error {
	if p.apiKey == "" {
		return fmt.Errorf("openweather api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		q := url.Values{}
		for k, v := range values {
			q[k] = v
		}
		q.Set("appid", p.apiKey)

		u := fmt.Sprintf("%s%s?%s", p.baseURL, path, q.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return fmt.Errorf("%s %s: %w", p.name, path, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", p.name, path, err)
	}
	return nil
}

func coordValues(lat, lon float64, metric bool) url.Values {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	if metric {
		values.Set("units", "metric")
	}
	return values
}

func firstCondition(items []owCondition) owCondition {
	if len(items) == 0 {
		return owCondition{}
	}
	return items[0]
}

func mapOpenWeatherCondition(main string) weather.Condition {
	switch {
	case main == "":
		return weather.ConditionUnknown
	case main == "Clear":
		return weather.ConditionClear
	case main == "Clouds":
		return weather.ConditionCloudy
	case common.HasAny(main, "rain", "drizzle"):
		return weather.ConditionRain
	case main == "Snow":
		return weather.ConditionSnow
	case main == "Thunderstorm" || main == "Squall" || main == "Tornado":
		return weather.ConditionStorm
	case common.HasAny(main, "mist", "fog", "haze", "smoke", "dust", "sand", "ash"):
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}
